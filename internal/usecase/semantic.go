package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"prdgen/internal/domain"
	"prdgen/internal/gateway"
	"prdgen/internal/planner"
	"prdgen/internal/port"
	"prdgen/internal/retry"
	"prdgen/internal/validate"
)

// Semantic runs the semantic stage: for each module, one shared session
// carries an overview call and the planner's batched detail calls. Modules
// are analyzed in parallel; results merge into one put-once manifest.
type Semantic struct {
	root        string
	policy      domain.SessionPolicy
	reader      port.FileReader
	planner     *planner.Planner
	gw          *gateway.Gateway
	retry       *retry.Controller
	store       port.StateStore
	log         *zap.Logger
	concurrency int

	// Progress, when set, is called after each module completes. Calls are
	// serialized, so the callback needs no locking of its own.
	Progress func(done, total int, module string)
}

func NewSemantic(root string, policy domain.SessionPolicy, reader port.FileReader,
	plan *planner.Planner, gw *gateway.Gateway, retryCtl *retry.Controller,
	store port.StateStore, log *zap.Logger, concurrency int) *Semantic {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Semantic{
		root:        root,
		policy:      policy,
		reader:      reader,
		planner:     plan,
		gw:          gw,
		retry:       retryCtl,
		store:       store,
		log:         log,
		concurrency: concurrency,
	}
}

// Run analyzes every module from the structure manifest and persists the
// semantic manifest. Any module's retry exhaustion fails the whole stage;
// no partial manifest is written.
func (s *Semantic) Run(ctx context.Context, structure *StructureManifest) (*SemanticManifest, error) {
	s.log.Info("semantic stage starting",
		zap.Int("modules", len(structure.Modules)),
		zap.Stringer("session_policy", s.policy))

	unitsByModule := groupUnits(structure.Units())

	moduleResults := NewPutOnce[ModuleAnalysis]()
	fileResults := NewPutOnce[FileAnalysis]()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	total := 0
	for _, mod := range structure.Modules {
		if len(mod.Files) > 0 {
			total++
		}
	}

	var done atomic.Int64
	var progressMu sync.Mutex
	for _, mod := range structure.Modules {
		if len(mod.Files) == 0 {
			continue
		}
		mod := mod
		g.Go(func() error {
			if err := s.analyzeModule(gctx, structure, mod, unitsByModule[mod.Name], moduleResults, fileResults); err != nil {
				return err
			}
			if s.Progress != nil {
				n := int(done.Add(1))
				progressMu.Lock()
				s.Progress(n, total, mod.Name)
				progressMu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	manifest := &SemanticManifest{
		Modules: moduleResults.Snapshot(),
		Files:   fileResults.Snapshot(),
	}
	if err := s.checkCompleteness(structure, manifest); err != nil {
		return nil, err
	}

	data, err := marshalManifest(manifest)
	if err != nil {
		return nil, err
	}
	if err := s.store.PutManifest(domain.StageSemantic, data); err != nil {
		return nil, fmt.Errorf("failed to persist semantic manifest: %w", err)
	}
	s.log.Info("semantic stage complete",
		zap.Int("modules", len(manifest.Modules)),
		zap.Int("files", len(manifest.Files)))
	return manifest, nil
}

// analyzeModule drives one module's shared session through the overview call
// and every planned detail batch.
func (s *Semantic) analyzeModule(ctx context.Context, structure *StructureManifest,
	mod domain.Module, units []domain.AnalysisUnit,
	moduleResults *PutOnce[ModuleAnalysis], fileResults *PutOnce[FileAnalysis]) error {

	sess, err := s.gw.Open(ctx, "semantic/"+mod.Name, semanticSystemPrompt)
	if err != nil {
		return err
	}
	defer sess.Close()

	analysis, err := s.moduleOverview(ctx, sess, mod, structure.Overview)
	if err != nil {
		return err
	}
	if err := moduleResults.Put(mod.Name, analysis); err != nil {
		return err
	}

	for i, batch := range s.planner.Plan(units) {
		if err := s.analyzeBatch(ctx, sess, mod, i, batch, fileResults); err != nil {
			return err
		}
	}

	s.snapshot(fmt.Sprintf("module/%s", mod.Name), analysis)
	return nil
}

func (s *Semantic) moduleOverview(ctx context.Context, sess port.Session,
	mod domain.Module, projectOverview string) (ModuleAnalysis, error) {

	prompt := moduleOverviewPrompt(mod, projectOverview)
	rule := validate.Rule{RequiredKeys: []string{"overview", "responsibilities"}}

	action := scopedAction(s.gw, s.policy, "semantic/"+mod.Name, semanticSystemPrompt, prompt, sess)
	raw, _, err := s.retry.Run(ctx, "semantic/"+mod.Name+"/overview", action,
		func(r string) domain.ValidationResult { return validate.Validate(r, rule) })
	if err != nil {
		return ModuleAnalysis{}, err
	}

	var parsed ModuleAnalysis
	decodeObject(raw, &parsed)
	parsed.Name = mod.Name
	return parsed, nil
}

func (s *Semantic) analyzeBatch(ctx context.Context, sess port.Session,
	mod domain.Module, seq int, batch domain.Batch, fileResults *PutOnce[FileAnalysis]) error {

	contents := make(map[string]string, len(batch.Units))
	paths := make([]string, 0, len(batch.Units))
	for _, u := range batch.Units {
		data, err := s.reader.ReadFile(filepath.Join(s.root, filepath.FromSlash(u.Path)))
		if err != nil {
			return fmt.Errorf("failed to read %s for analysis: %w", u.Path, err)
		}
		contents[u.Path] = string(data)
		paths = append(paths, u.Path)
	}

	prompt := batchDetailPrompt(batch, contents)
	rule := validate.Rule{
		RequiredKeys:  []string{"files"},
		CoverageField: "files",
		CoverageKey:   "path",
		CoverageSet:   paths,
	}

	target := fmt.Sprintf("semantic/%s/batch-%d", mod.Name, seq)
	action := scopedAction(s.gw, s.policy, "semantic/"+mod.Name, semanticSystemPrompt, prompt, sess)
	raw, _, err := s.retry.Run(ctx, target, action,
		func(r string) domain.ValidationResult { return validate.Validate(r, rule) })
	if err != nil {
		return err
	}

	var parsed struct {
		Files []FileAnalysis `json:"files"`
	}
	decodeObject(raw, &parsed)
	for _, fa := range parsed.Files {
		if _, ok := contents[fa.Path]; !ok {
			continue
		}
		fa.Module = mod.Name
		if err := fileResults.Put(fa.Path, fa); err != nil {
			return err
		}
	}

	s.snapshot(target, parsed)
	return nil
}

// checkCompleteness ensures the semantic manifest keys equal the structure
// manifest's file keys. Skipped files were never units, so they do not count.
func (s *Semantic) checkCompleteness(structure *StructureManifest, manifest *SemanticManifest) error {
	var missing []string
	for path := range structure.Files {
		if _, ok := manifest.Files[path]; !ok {
			missing = append(missing, path)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("semantic stage incomplete: %d files unanalyzed (first: %s)",
			len(missing), missing[0])
	}
	return nil
}

func (s *Semantic) snapshot(name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if _, err := s.store.PutSnapshot(domain.StageSemantic, name, data); err != nil {
		s.log.Warn("failed to write snapshot", zap.String("name", name), zap.Error(err))
	}
}

func groupUnits(units []domain.AnalysisUnit) map[string][]domain.AnalysisUnit {
	byModule := make(map[string][]domain.AnalysisUnit)
	for _, u := range units {
		byModule[u.Module] = append(byModule[u.Module], u)
	}
	return byModule
}

// decodeObject re-marshals the extracted JSON object into a typed struct.
// Validation has already passed, so decode failures leave zero values.
func decodeObject(raw string, v any) {
	obj := validate.ExtractJSON(raw)
	if obj == nil {
		return
	}
	buf, err := json.Marshal(obj)
	if err != nil {
		return
	}
	_ = json.Unmarshal(buf, v)
}
