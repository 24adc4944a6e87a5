package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"prdgen/internal/domain"
	"prdgen/internal/gateway"
	"prdgen/internal/graph"
	"prdgen/internal/port"
	"prdgen/internal/retry"
	"prdgen/internal/validate"
)

// TokenEstimator sizes a unit's contribution to a batch.
type TokenEstimator interface {
	EstimateFile(path string, content []byte) int
}

// Structure runs the structure stage: walk the repository, extract local
// structure, then ask the model for a project overview and a complete module
// grouping. Sessions are per-substep; no conversational memory carries over.
type Structure struct {
	root      string
	policy    domain.SessionPolicy
	walker    port.FileWalker
	reader    port.FileReader
	extractor port.SymbolExtractor
	tokens    TokenEstimator
	gw        *gateway.Gateway
	retry     *retry.Controller
	store     port.StateStore
	log       *zap.Logger
}

func NewStructure(root string, policy domain.SessionPolicy, walker port.FileWalker,
	reader port.FileReader, extractor port.SymbolExtractor, tokens TokenEstimator,
	gw *gateway.Gateway, retryCtl *retry.Controller, store port.StateStore,
	log *zap.Logger) *Structure {
	return &Structure{
		root:      root,
		policy:    policy,
		walker:    walker,
		reader:    reader,
		extractor: extractor,
		tokens:    tokens,
		gw:        gw,
		retry:     retryCtl,
		store:     store,
		log:       log,
	}
}

// Run executes the three sub-steps and persists the structure manifest.
// Extractor failures skip the file; stage-level errors abort with no
// manifest written.
func (s *Structure) Run(ctx context.Context) (*StructureManifest, error) {
	s.log.Info("structure stage starting",
		zap.String("root", s.root),
		zap.Stringer("session_policy", s.policy))

	manifest := &StructureManifest{
		Root:  s.root,
		Files: make(map[string]FileRecord),
	}

	if err := s.scan(manifest); err != nil {
		return nil, fmt.Errorf("structure scan failed: %w", err)
	}
	if len(manifest.Files) == 0 {
		return nil, fmt.Errorf("no analyzable files under %s", s.root)
	}
	s.snapshot("scan", manifest.Files)

	if err := s.describeProject(ctx, manifest); err != nil {
		return nil, err
	}
	s.snapshot("overview", manifest.Overview)

	if err := s.identifyModules(ctx, manifest); err != nil {
		return nil, err
	}
	s.snapshot("modules", manifest.Modules)

	s.finalize(manifest)

	data, err := marshalManifest(manifest)
	if err != nil {
		return nil, err
	}
	if err := s.store.PutManifest(domain.StageStructure, data); err != nil {
		return nil, fmt.Errorf("failed to persist structure manifest: %w", err)
	}
	s.log.Info("structure stage complete",
		zap.Int("files", len(manifest.Files)),
		zap.Int("modules", len(manifest.Modules)),
		zap.Int("skipped", len(manifest.Skipped)))
	return manifest, nil
}

// scan walks the tree and runs local extraction. A file the extractor cannot
// handle is recorded as skipped and excluded from all later stages.
func (s *Structure) scan(manifest *StructureManifest) error {
	files, err := s.walker.Walk(s.root)
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", s.root, err)
	}

	for _, fi := range files {
		content, err := s.reader.ReadFile(fi.Path)
		if err != nil {
			manifest.Skipped = append(manifest.Skipped, SkippedFile{
				Path: fi.RelPath, Reason: fmt.Sprintf("read failed: %v", err),
			})
			s.log.Warn("skipping unreadable file", zap.String("path", fi.RelPath), zap.Error(err))
			continue
		}

		lang := s.extractor.LangForPath(fi.RelPath)
		ie, err := s.extractor.Extract(fi.RelPath, lang, content)
		if err != nil {
			var xerr *domain.ExtractError
			if errors.As(err, &xerr) {
				manifest.Skipped = append(manifest.Skipped, SkippedFile{
					Path: fi.RelPath, Lang: lang, Reason: xerr.Error(),
				})
				s.log.Warn("skipping unit", zap.String("path", fi.RelPath), zap.Error(err))
				continue
			}
			return fmt.Errorf("extraction failed for %s: %w", fi.RelPath, err)
		}

		manifest.Files[fi.RelPath] = FileRecord{
			Lang:      ie.Lang,
			TokenCost: s.tokens.EstimateFile(fi.Path, content),
			Imports:   ie.Imports,
			Exports:   ie.Exports,
		}
	}
	return nil
}

// describeProject runs the overview sub-step in a fresh session per attempt.
func (s *Structure) describeProject(ctx context.Context, manifest *StructureManifest) error {
	prompt := overviewPrompt(s.root, sortedKeys(manifest.Files))
	rule := validate.Rule{RequiredKeys: []string{"overview"}}

	action := scopedAction(s.gw, s.policy, "structure", structureSystemPrompt, prompt, nil)
	raw, _, err := s.retry.Run(ctx, "structure/overview", action, func(r string) domain.ValidationResult {
		return validate.Validate(r, rule)
	})
	if err != nil {
		return err
	}

	obj := validate.ExtractJSON(raw)
	manifest.Overview, _ = obj["overview"].(string)
	return nil
}

// identifyModules asks for the module grouping and enforces that every
// scanned file lands in exactly one module.
func (s *Structure) identifyModules(ctx context.Context, manifest *StructureManifest) error {
	prompt := modulesPrompt(manifest.Files)
	rule := validate.Rule{
		RequiredKeys:  []string{"modules"},
		CoverageField: "modules",
		CoverageKey:   "files",
		CoverageSet:   sortedKeys(manifest.Files),
	}

	action := scopedAction(s.gw, s.policy, "structure", structureSystemPrompt, prompt, nil)
	raw, _, err := s.retry.Run(ctx, "structure/modules", action, func(r string) domain.ValidationResult {
		return validate.Validate(r, rule)
	})
	if err != nil {
		return err
	}

	var parsed struct {
		Modules []domain.Module `json:"modules"`
	}
	obj := validate.ExtractJSON(raw)
	buf, _ := json.Marshal(obj)
	if err := json.Unmarshal(buf, &parsed); err != nil {
		return fmt.Errorf("failed to decode module grouping: %w", err)
	}

	// Validation already rejected orphaned and doubly assigned files, so
	// anything dropped here is an invented path. Record the drops.
	sort.Slice(parsed.Modules, func(i, j int) bool {
		return parsed.Modules[i].Name < parsed.Modules[j].Name
	})
	assigned := make(map[string]bool, len(manifest.Files))
	var dropped []string
	for i := range parsed.Modules {
		var kept []string
		for _, f := range parsed.Modules[i].Files {
			if _, ok := manifest.Files[f]; ok && !assigned[f] {
				assigned[f] = true
				kept = append(kept, f)
				continue
			}
			dropped = append(dropped, f)
		}
		sort.Strings(kept)
		parsed.Modules[i].Files = kept
	}
	if len(dropped) > 0 {
		s.log.Warn("dropped module assignments", zap.Strings("files", dropped))
	}
	manifest.Modules = parsed.Modules

	for _, mod := range manifest.Modules {
		for _, f := range mod.Files {
			rec := manifest.Files[f]
			rec.Module = mod.Name
			manifest.Files[f] = rec
		}
	}
	return nil
}

// finalize builds the dependency graph and reconciles module layers with
// the fan-in/fan-out heuristic.
func (s *Structure) finalize(manifest *StructureManifest) {
	units := manifest.Units()
	manifest.Graph = graph.Build(units)

	for name, node := range manifest.Graph.Nodes {
		if rec, ok := manifest.Files[name]; ok {
			node.Module = rec.Module
		}
	}
	for i := range manifest.Modules {
		if manifest.Modules[i].Layer == "" {
			manifest.Modules[i].Layer = graph.ModuleLayer(manifest.Graph, manifest.Modules[i].Files)
		}
	}
}

func (s *Structure) snapshot(name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if _, err := s.store.PutSnapshot(domain.StageStructure, name, data); err != nil {
		s.log.Warn("failed to write snapshot", zap.String("name", name), zap.Error(err))
	}
}
