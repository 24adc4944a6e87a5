package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"prdgen/internal/domain"
)

func unit(path string, cost int, imports ...string) domain.AnalysisUnit {
	return domain.AnalysisUnit{Path: path, TokenCost: cost, Imports: imports}
}

// collectPaths flattens batches into a multiset of member paths.
func collectPaths(batches []domain.Batch) map[string]int {
	out := make(map[string]int)
	for _, b := range batches {
		for _, u := range b.Units {
			out[u.Path]++
		}
	}
	return out
}

func TestPlanCoversInputExactlyOnce(t *testing.T) {
	units := []domain.AnalysisUnit{
		unit("a/x.go", 300),
		unit("a/y.go", 300, "./x"),
		unit("b/z.go", 900),
		unit("b/w.go", 400),
		unit("c/v.go", 2500),
	}

	p := New(1000, 0.3)
	batches := p.Plan(units)

	got := collectPaths(batches)
	require.Len(t, got, len(units))
	for _, u := range units {
		require.Equal(t, 1, got[u.Path], "unit %s must appear exactly once", u.Path)
	}
}

func TestPlanRespectsCeilingExceptOversized(t *testing.T) {
	units := []domain.AnalysisUnit{
		unit("a/x.go", 600),
		unit("a/y.go", 600),
		unit("a/huge.go", 5000),
	}

	p := New(1000, 0.3)
	batches := p.Plan(units)

	for _, b := range batches {
		if len(b.Units) == 1 && b.Units[0].TokenCost > 1000 {
			continue // a single oversized unit is allowed out alone
		}
		require.LessOrEqual(t, b.Tokens, 1000, "batch %v exceeds ceiling", b.Label)
	}
}

func TestPlanOversizedUnitIsolated(t *testing.T) {
	// Costs {50, 50, 5000} under a 1000 ceiling must yield {a.x, b.y}
	// together and c.x alone.
	units := []domain.AnalysisUnit{
		unit("a.x", 50),
		unit("b.y", 50),
		unit("c.x", 5000),
	}

	p := New(1000, 0.3)
	batches := p.Plan(units)
	require.Len(t, batches, 2)

	var pair, oversized *domain.Batch
	for i := range batches {
		if len(batches[i].Units) == 2 {
			pair = &batches[i]
		} else {
			oversized = &batches[i]
		}
	}
	require.NotNil(t, pair, "a.x and b.y should be packed together")
	require.NotNil(t, oversized)
	require.Equal(t, "c.x", oversized.Units[0].Path)
	require.Equal(t, 5000, oversized.Tokens)
}

func TestPlanDeterministic(t *testing.T) {
	units := []domain.AnalysisUnit{
		unit("m/a.py", 100, "m.b"),
		unit("m/b.py", 100),
		unit("n/c.py", 100),
		unit("n/d.py", 700),
	}

	p := New(500, 0.3)
	first := p.Plan(units)
	second := p.Plan(units)
	require.Equal(t, first, second)
}

func TestPlanKeepsImportNeighborsTogether(t *testing.T) {
	units := []domain.AnalysisUnit{
		unit("app/login.js", 100, "./session"),
		unit("app/session.js", 100),
		unit("web/theme.js", 100),
	}

	p := New(250, 0.9) // threshold high enough that nothing merges across
	batches := p.Plan(units)

	var loginBatch *domain.Batch
	for i := range batches {
		for _, u := range batches[i].Units {
			if u.Path == "app/login.js" {
				loginBatch = &batches[i]
			}
		}
	}
	require.NotNil(t, loginBatch)

	member := map[string]bool{}
	for _, u := range loginBatch.Units {
		member[u.Path] = true
	}
	require.True(t, member["app/session.js"], "import neighbors should share a batch")
	require.Greater(t, loginBatch.Cohesion, 0.0)
}

func TestPlanEmptyInput(t *testing.T) {
	p := New(1000, 0.3)
	require.Nil(t, p.Plan(nil))
}

func TestPlanMergesSmallBatches(t *testing.T) {
	units := []domain.AnalysisUnit{
		unit("a/one.go", 40),
		unit("b/two.go", 40),
		unit("c/three.go", 40),
	}

	p := New(1000, 0.3)
	batches := p.Plan(units)
	require.Len(t, batches, 1, "three tiny unrelated files should merge into one batch")
	require.Equal(t, 120, batches[0].Tokens)
}
