package usecase

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"prdgen/internal/domain"
)

// StructureManifest is the persisted output of the structure stage: the
// complete unit inventory, module grouping, and dependency graph.
type StructureManifest struct {
	Root     string                  `json:"root"`
	Overview string                  `json:"overview"`
	Files    map[string]FileRecord   `json:"files"`
	Modules  []domain.Module         `json:"modules"`
	Graph    *domain.DependencyGraph `json:"graph"`
	Skipped  []SkippedFile           `json:"skipped"`
}

// FileRecord is the per-unit structural summary keyed by relative path.
type FileRecord struct {
	Lang      string   `json:"lang"`
	Module    string   `json:"module"`
	TokenCost int      `json:"token_cost"`
	Imports   []string `json:"imports,omitempty"`
	Exports   []string `json:"exports,omitempty"`
}

// SkippedFile records a unit the extractor could not handle. Skips are
// logged, not fatal.
type SkippedFile struct {
	Path   string `json:"path"`
	Lang   string `json:"lang"`
	Reason string `json:"reason"`
}

// Units reconstructs the planner input from the manifest.
func (m *StructureManifest) Units() []domain.AnalysisUnit {
	units := make([]domain.AnalysisUnit, 0, len(m.Files))
	for _, path := range sortedKeys(m.Files) {
		rec := m.Files[path]
		units = append(units, domain.AnalysisUnit{
			Path:      path,
			Lang:      rec.Lang,
			TokenCost: rec.TokenCost,
			Imports:   rec.Imports,
			Exports:   rec.Exports,
			Module:    rec.Module,
		})
	}
	return units
}

// SemanticManifest is the persisted output of the semantic stage: one
// analysis per module plus one per file.
type SemanticManifest struct {
	Modules map[string]ModuleAnalysis `json:"modules"`
	Files   map[string]FileAnalysis   `json:"files"`
}

type ModuleAnalysis struct {
	Name             string   `json:"name"`
	Overview         string   `json:"overview"`
	Responsibilities []string `json:"responsibilities"`
	Interactions     []string `json:"interactions,omitempty"`
}

type FileAnalysis struct {
	Path         string   `json:"path"`
	Module       string   `json:"module"`
	Purpose      string   `json:"purpose"`
	KeyBehaviors []string `json:"key_behaviors,omitempty"`
}

// DocManifest is the persisted output of the doc stage.
type DocManifest struct {
	ProductOverview string                    `json:"product_overview"`
	Domains         []domain.FunctionalDomain `json:"domains"`
	Documents       map[string]DomainDoc      `json:"documents"`
}

// DomainDoc holds the four validated sections of one functional domain's
// document.
type DomainDoc struct {
	Name         string `json:"name"`
	Overview     string `json:"overview"`
	Behavior     string `json:"behavior"`
	Interactions string `json:"interactions"`
	Constraints  string `json:"constraints"`
}

// PutOnce is a write-once keyed accumulator. Concurrent module analyses
// merge into one manifest through it; a second write to an accepted key is
// an error, never a silent overwrite.
type PutOnce[V any] struct {
	mu sync.Mutex
	m  map[string]V
}

func NewPutOnce[V any]() *PutOnce[V] {
	return &PutOnce[V]{m: make(map[string]V)}
}

func (p *PutOnce[V]) Put(key string, v V) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.m[key]; exists {
		return fmt.Errorf("duplicate manifest key %q", key)
	}
	p.m[key] = v
	return nil
}

// Snapshot returns a copy of the accumulated map.
func (p *PutOnce[V]) Snapshot() map[string]V {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]V, len(p.m))
	for k, v := range p.m {
		out[k] = v
	}
	return out
}

// Len returns the number of accepted keys.
func (p *PutOnce[V]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func marshalManifest(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return data, nil
}
