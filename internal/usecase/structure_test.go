package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"prdgen/config"
	"prdgen/internal/adapter/analyzer"
	"prdgen/internal/adapter/extractor"
	"prdgen/internal/adapter/fs"
	"prdgen/internal/adapter/llm"
	"prdgen/internal/adapter/store"
	"prdgen/internal/domain"
	"prdgen/internal/gateway"
	"prdgen/internal/port"
	"prdgen/internal/retry"
)

type testEnv struct {
	root    string
	llm     *llm.Scripted
	store   *store.BoltStore
	gw      *gateway.Gateway
	retry   *retry.Controller
	walker  *fs.Walker
	tokens  *analyzer.TokenEstimator
	extract *extractor.TreeSitter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewBoltStore(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	scripted := llm.NewScripted()
	cfg := config.DefaultConfig()
	return &testEnv{
		root:    filepath.Join(dir, "repo"),
		llm:     scripted,
		store:   st,
		gw:      gateway.New(scripted, st, zap.NewNop(), 30*time.Second),
		retry:   retry.New(3, zap.NewNop()),
		walker:  fs.NewWalker(cfg.Scan.Includes, cfg.Scan.Excludes, cfg.Scan.MaxFileSizeMB),
		tokens:  analyzer.NewTokenEstimator(3),
		extract: extractor.NewTreeSitter(),
	}
}

func (e *testEnv) writeRepo(t *testing.T, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(e.root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func (e *testEnv) newStructure() *Structure {
	return NewStructure(e.root, domain.PerSubstep, e.walker, e.walker,
		e.extract, e.tokens, e.gw, e.retry, e.store, zap.NewNop())
}

func modulesJSON(mods ...domain.Module) string {
	buf, _ := json.Marshal(map[string]any{"modules": mods})
	return string(buf)
}

const overviewJSON = `{"overview": "A small authentication service.", "primary_language": "go", "kind": "service"}`

func TestStructureRunProducesManifest(t *testing.T) {
	env := newTestEnv(t)
	env.writeRepo(t, map[string]string{
		"auth/login.go":   "package auth\n\nimport \"fmt\"\n\nfunc Login() { fmt.Println(\"hi\") }\n",
		"auth/session.go": "package auth\n\nfunc NewSession() {}\n",
		"util/strings.go": "package util\n\nfunc Trim(s string) string { return s }\n",
	})

	env.llm.Respond = func(sessionID, prompt string, call int) (string, error) {
		switch {
		case strings.Contains(prompt, "Summarize what this project"):
			return overviewJSON, nil
		case strings.Contains(prompt, "Group every file"):
			return modulesJSON(
				domain.Module{Name: "auth", Responsibility: "login and sessions",
					Files: []string{"auth/login.go", "auth/session.go"}},
				domain.Module{Name: "util", Responsibility: "helpers",
					Files: []string{"util/strings.go"}},
			), nil
		}
		return "", fmt.Errorf("unexpected prompt")
	}

	manifest, err := env.newStructure().Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, "A small authentication service.", manifest.Overview)
	require.Len(t, manifest.Files, 3)
	require.Equal(t, "auth", manifest.Files["auth/login.go"].Module)
	require.Equal(t, "util", manifest.Files["util/strings.go"].Module)
	require.NotZero(t, manifest.Files["auth/login.go"].TokenCost)
	require.Contains(t, manifest.Files["auth/login.go"].Imports, "fmt")
	require.Contains(t, manifest.Files["auth/login.go"].Exports, "Login")
	require.NotNil(t, manifest.Graph)
	require.Len(t, manifest.Modules, 2)

	// The manifest is persisted for resume.
	_, ok, err := env.store.GetManifest(domain.StageStructure)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestStructureRepairsOrphanedFiles(t *testing.T) {
	env := newTestEnv(t)
	env.writeRepo(t, map[string]string{
		"auth/login.go": "package auth\n\nfunc Login() {}\n",
		"pay/bill.go":   "package pay\n\nfunc Bill() {}\n",
	})

	groupingCalls := 0
	env.llm.Respond = func(sessionID, prompt string, call int) (string, error) {
		if strings.Contains(prompt, "Summarize what this project") {
			return overviewJSON, nil
		}
		groupingCalls++
		if groupingCalls == 1 {
			// First answer leaves pay/bill.go orphaned.
			return modulesJSON(domain.Module{Name: "auth", Files: []string{"auth/login.go"}}), nil
		}
		// Repair prompt must name the orphan.
		if !strings.Contains(prompt, "pay/bill.go") {
			return "", fmt.Errorf("repair prompt did not name the orphan")
		}
		return modulesJSON(
			domain.Module{Name: "auth", Files: []string{"auth/login.go"}},
			domain.Module{Name: "pay", Files: []string{"pay/bill.go"}},
		), nil
	}

	manifest, err := env.newStructure().Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, groupingCalls)
	require.Equal(t, "pay", manifest.Files["pay/bill.go"].Module)
}

func TestStructureRepairsDoubleAssignedFiles(t *testing.T) {
	env := newTestEnv(t)
	env.writeRepo(t, map[string]string{
		"auth/login.go": "package auth\n\nfunc Login() {}\n",
		"pay/bill.go":   "package pay\n\nfunc Bill() {}\n",
	})

	groupingCalls := 0
	env.llm.Respond = func(sessionID, prompt string, call int) (string, error) {
		if strings.Contains(prompt, "Summarize what this project") {
			return overviewJSON, nil
		}
		groupingCalls++
		if groupingCalls == 1 {
			// Everything covered, but login.go lands in both modules.
			return modulesJSON(
				domain.Module{Name: "auth", Files: []string{"auth/login.go"}},
				domain.Module{Name: "pay", Files: []string{"pay/bill.go", "auth/login.go"}},
			), nil
		}
		// Repair prompt must flag the double assignment.
		if !strings.Contains(prompt, "more than once") {
			return "", fmt.Errorf("repair prompt did not flag the duplicate")
		}
		return modulesJSON(
			domain.Module{Name: "auth", Files: []string{"auth/login.go"}},
			domain.Module{Name: "pay", Files: []string{"pay/bill.go"}},
		), nil
	}

	manifest, err := env.newStructure().Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, groupingCalls)
	require.Equal(t, "auth", manifest.Files["auth/login.go"].Module)
	require.Equal(t, "pay", manifest.Files["pay/bill.go"].Module)
}

func TestStructureSkipsUnsupportedFiles(t *testing.T) {
	env := newTestEnv(t)
	env.writeRepo(t, map[string]string{
		"auth/login.go": "package auth\n\nfunc Login() {}\n",
		"native/core.c": "int main() { return 0; }\n",
	})
	// Widen includes so the unsupported file reaches the extractor.
	env.walker = fs.NewWalker([]string{"**/*"}, nil, 10)

	env.llm.Respond = func(sessionID, prompt string, call int) (string, error) {
		if strings.Contains(prompt, "Summarize what this project") {
			return overviewJSON, nil
		}
		// Only the supported file needs grouping.
		if strings.Contains(prompt, "native/core.c") {
			return "", fmt.Errorf("skipped file leaked into the grouping prompt")
		}
		return modulesJSON(domain.Module{Name: "auth", Files: []string{"auth/login.go"}}), nil
	}

	manifest, err := env.newStructure().Run(context.Background())
	require.NoError(t, err)
	require.Len(t, manifest.Files, 1)
	require.Len(t, manifest.Skipped, 1)
	require.Equal(t, "native/core.c", manifest.Skipped[0].Path)
}

func TestStructureFailsAfterExhaustedRetries(t *testing.T) {
	env := newTestEnv(t)
	env.writeRepo(t, map[string]string{
		"auth/login.go": "package auth\n\nfunc Login() {}\n",
	})

	env.llm.Respond = func(sessionID, prompt string, call int) (string, error) {
		return "no JSON here, ever", nil
	}

	_, err := env.newStructure().Run(context.Background())
	var exhausted *domain.RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 3, exhausted.Attempts)

	// No partial manifest may be marked complete.
	_, ok, storErr := env.store.GetManifest(domain.StageStructure)
	require.NoError(t, storErr)
	require.False(t, ok)
}

var _ port.FileReader = (*fs.Walker)(nil)
