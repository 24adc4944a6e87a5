package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"prdgen/internal/domain"
)

func TestBuildResolvesRelativeImports(t *testing.T) {
	units := []domain.AnalysisUnit{
		{Path: "src/cart/view.js", Imports: []string{"./model", "react"}},
		{Path: "src/cart/model.js", Imports: []string{"../util/http"}},
		{Path: "src/util/http.js"},
	}

	g := Build(units)

	require.Len(t, g.Edges, 2)
	require.Equal(t, domain.GraphEdge{From: "src/cart/model.js", To: "src/util/http.js"}, g.Edges[0])
	require.Equal(t, domain.GraphEdge{From: "src/cart/view.js", To: "src/cart/model.js"}, g.Edges[1])

	require.Equal(t, 1, g.Nodes["src/util/http.js"].FanIn)
	require.Equal(t, 0, g.Nodes["src/util/http.js"].FanOut)
	require.Equal(t, 1, g.Nodes["src/cart/view.js"].FanOut)
}

func TestBuildResolvesDottedImports(t *testing.T) {
	units := []domain.AnalysisUnit{
		{Path: "app/billing/invoice.py", Imports: []string{"app.billing.tax", "os"}},
		{Path: "app/billing/tax.py"},
	}

	g := Build(units)
	require.Len(t, g.Edges, 1)
	require.Equal(t, "app/billing/tax.py", g.Edges[0].To)
}

func TestBuildAllowsCycles(t *testing.T) {
	units := []domain.AnalysisUnit{
		{Path: "a.py", Imports: []string{"b"}},
		{Path: "b.py", Imports: []string{"a"}},
	}

	g := Build(units)
	require.Len(t, g.Edges, 2, "cycles must be preserved, not broken")
	for _, node := range g.Nodes {
		require.NotEmpty(t, node.Layer, "every node gets a layer annotation even inside a cycle")
	}
}

func TestLayerAnnotation(t *testing.T) {
	units := []domain.AnalysisUnit{
		{Path: "core.py"},
		{Path: "feat_a.py", Imports: []string{"core"}},
		{Path: "feat_b.py", Imports: []string{"core"}},
		{Path: "lonely.py"},
	}

	g := Build(units)
	require.Equal(t, domain.LayerCore, g.Nodes["core.py"].Layer)
	require.Equal(t, domain.LayerBusiness, g.Nodes["feat_a.py"].Layer)
	require.Equal(t, domain.LayerUtility, g.Nodes["lonely.py"].Layer)
}

func TestModuleLayerMajority(t *testing.T) {
	units := []domain.AnalysisUnit{
		{Path: "m/core.py"},
		{Path: "m/a.py", Imports: []string{"m.core"}},
		{Path: "m/b.py", Imports: []string{"m.core"}},
	}
	g := Build(units)

	layer := ModuleLayer(g, []string{"m/a.py", "m/b.py"})
	require.Equal(t, domain.LayerBusiness, layer)
}

func TestBuildDeterministicEdgeOrder(t *testing.T) {
	units := []domain.AnalysisUnit{
		{Path: "b.py", Imports: []string{"a"}},
		{Path: "c.py", Imports: []string{"a"}},
		{Path: "a.py"},
	}
	reversed := []domain.AnalysisUnit{units[2], units[1], units[0]}

	g1 := Build(units)
	g2 := Build(reversed)
	require.Equal(t, g1.Edges, g2.Edges)
}
