package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"prdgen/internal/domain"
	"prdgen/internal/port"
)

// Pipeline sequences the three stages. A stage whose manifest already exists
// is skipped, so an interrupted run resumes at the first incomplete stage.
// A stage error leaves no manifest behind, so a rerun repeats the stage.
type Pipeline struct {
	structure *Structure
	semantic  *Semantic
	docgen    *DocGen
	store     port.StateStore
	log       *zap.Logger
}

func NewPipeline(structure *Structure, semantic *Semantic, docgen *DocGen,
	store port.StateStore, log *zap.Logger) *Pipeline {
	return &Pipeline{
		structure: structure,
		semantic:  semantic,
		docgen:    docgen,
		store:     store,
		log:       log,
	}
}

// Run executes the stages in order and returns the final doc manifest.
func (p *Pipeline) Run(ctx context.Context) (*DocManifest, error) {
	structure, err := p.runStructure(ctx)
	if err != nil {
		return nil, fmt.Errorf("structure stage: %w", err)
	}

	semantic, err := p.runSemantic(ctx, structure)
	if err != nil {
		return nil, fmt.Errorf("semantic stage: %w", err)
	}

	doc, err := p.runDoc(ctx, structure, semantic)
	if err != nil {
		return nil, fmt.Errorf("doc stage: %w", err)
	}
	return doc, nil
}

func (p *Pipeline) runStructure(ctx context.Context) (*StructureManifest, error) {
	var cached StructureManifest
	if ok, err := p.load(domain.StageStructure, &cached); err != nil {
		return nil, err
	} else if ok {
		p.log.Info("structure manifest found, skipping stage",
			zap.Int("files", len(cached.Files)))
		return &cached, nil
	}
	return p.structure.Run(ctx)
}

func (p *Pipeline) runSemantic(ctx context.Context, structure *StructureManifest) (*SemanticManifest, error) {
	var cached SemanticManifest
	if ok, err := p.load(domain.StageSemantic, &cached); err != nil {
		return nil, err
	} else if ok {
		p.log.Info("semantic manifest found, skipping stage",
			zap.Int("modules", len(cached.Modules)))
		return &cached, nil
	}
	return p.semantic.Run(ctx, structure)
}

func (p *Pipeline) runDoc(ctx context.Context, structure *StructureManifest, semantic *SemanticManifest) (*DocManifest, error) {
	var cached DocManifest
	if ok, err := p.load(domain.StageDoc, &cached); err != nil {
		return nil, err
	} else if ok {
		p.log.Info("doc manifest found, skipping stage",
			zap.Int("domains", len(cached.Domains)))
		return &cached, nil
	}
	return p.docgen.Run(ctx, structure, semantic)
}

func (p *Pipeline) load(stage domain.Stage, v any) (bool, error) {
	data, ok, err := p.store.GetManifest(stage)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s manifest: %w", stage, err)
	}
	return true, nil
}

// StageStatus summarizes one stage for the status command.
type StageStatus struct {
	Stage    domain.Stage
	Complete bool
	Detail   string
}

// Status inspects the store and reports completion per stage.
func Status(store port.StateStore) ([]StageStatus, error) {
	var out []StageStatus
	for _, stage := range []domain.Stage{domain.StageStructure, domain.StageSemantic, domain.StageDoc} {
		data, ok, err := store.GetManifest(stage)
		if err != nil {
			return nil, err
		}
		st := StageStatus{Stage: stage, Complete: ok}
		if ok {
			st.Detail = describeManifest(stage, data)
		}
		out = append(out, st)
	}
	return out, nil
}

func describeManifest(stage domain.Stage, data []byte) string {
	switch stage {
	case domain.StageStructure:
		var m StructureManifest
		if json.Unmarshal(data, &m) == nil {
			return fmt.Sprintf("%d files, %d modules, %d skipped", len(m.Files), len(m.Modules), len(m.Skipped))
		}
	case domain.StageSemantic:
		var m SemanticManifest
		if json.Unmarshal(data, &m) == nil {
			return fmt.Sprintf("%d modules, %d files", len(m.Modules), len(m.Files))
		}
	case domain.StageDoc:
		var m DocManifest
		if json.Unmarshal(data, &m) == nil {
			return fmt.Sprintf("%d domains", len(m.Domains))
		}
	}
	return ""
}
