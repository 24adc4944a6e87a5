// Package graph aggregates per-file import facts into a repository
// dependency graph with heuristic layer annotations.
package graph

import (
	"path"
	"sort"
	"strings"

	"prdgen/internal/domain"
)

// sourceExts are tried when resolving an extensionless import specifier.
var sourceExts = []string{"", ".go", ".py", ".js", ".jsx", ".ts", ".tsx", ".java"}

// Build constructs the dependency graph for a set of units. Imports that do
// not resolve to a file inside the set are external and ignored. Cycles are
// kept as-is; the layer field is a heuristic annotation.
func Build(units []domain.AnalysisUnit) *domain.DependencyGraph {
	paths := make(map[string]bool, len(units))
	for _, u := range units {
		paths[u.Path] = true
	}

	g := &domain.DependencyGraph{Nodes: make(map[string]*domain.GraphNode, len(units))}
	for _, u := range units {
		g.Nodes[u.Path] = &domain.GraphNode{Path: u.Path, Module: u.Module}
	}

	// Deterministic edge order regardless of input order.
	ordered := make([]domain.AnalysisUnit, len(units))
	copy(ordered, units)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Path < ordered[j].Path })

	for _, u := range ordered {
		seen := make(map[string]bool)
		for _, imp := range u.Imports {
			target := ResolveImport(imp, u.Path, paths)
			if target == "" || target == u.Path || seen[target] {
				continue
			}
			seen[target] = true
			g.Edges = append(g.Edges, domain.GraphEdge{From: u.Path, To: target})
			g.Nodes[u.Path].FanOut++
			g.Nodes[target].FanIn++
		}
	}

	annotateLayers(g)
	return g
}

// ResolveImport maps an import specifier to a repository-relative file path
// contained in paths, or "" when the import is external. Relative
// specifiers are resolved against the importing file; dotted and bare
// specifiers are tried as slash paths with known source extensions.
func ResolveImport(spec, fromPath string, paths map[string]bool) string {
	if spec == "" {
		return ""
	}

	if strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") {
		base := path.Join(path.Dir(fromPath), spec)
		for _, ext := range sourceExts {
			if paths[base+ext] {
				return base + ext
			}
			if paths[path.Join(base, "index"+ext)] {
				return path.Join(base, "index"+ext)
			}
		}
		return ""
	}

	// "@/..." alias convention: rooted at src/.
	if strings.HasPrefix(spec, "@/") {
		base := "src/" + strings.TrimPrefix(spec, "@/")
		for _, ext := range sourceExts {
			if paths[base+ext] {
				return base + ext
			}
		}
		return ""
	}

	// Dotted module (python/java style) as a slash path.
	slashed := strings.ReplaceAll(spec, ".", "/")
	for _, candidate := range []string{spec, slashed} {
		for _, ext := range sourceExts {
			if paths[candidate+ext] {
				return candidate + ext
			}
		}
	}

	// Package-path imports (go style): match by trailing path segments.
	if i := strings.LastIndex(spec, "/"); i >= 0 {
		tail := spec[i+1:]
		for _, ext := range sourceExts[1:] {
			if paths[tail+ext] {
				return tail + ext
			}
		}
	}

	return ""
}

// annotateLayers classifies nodes by dependency shape: heavily depended-on
// files with no further in-repo dependencies are core, files that only
// consume others are business, leaf helpers with light traffic are utility.
func annotateLayers(g *domain.DependencyGraph) {
	for _, node := range g.Nodes {
		switch {
		case node.FanIn >= 2 && node.FanOut == 0:
			node.Layer = domain.LayerCore
		case node.FanIn == 0 && node.FanOut > 0:
			node.Layer = domain.LayerBusiness
		case node.FanIn > node.FanOut:
			node.Layer = domain.LayerCore
		case node.FanOut >= node.FanIn && node.FanOut > 0:
			node.Layer = domain.LayerBusiness
		default:
			node.Layer = domain.LayerUtility
		}
	}
}

// ModuleLayer aggregates node layers into a per-module annotation by
// majority vote, defaulting to business on ties.
func ModuleLayer(g *domain.DependencyGraph, files []string) string {
	counts := map[string]int{}
	for _, f := range files {
		if node, ok := g.Nodes[f]; ok && node.Layer != "" {
			counts[node.Layer]++
		}
	}
	best, bestCount := domain.LayerBusiness, 0
	for _, layer := range []string{domain.LayerCore, domain.LayerBusiness, domain.LayerUtility} {
		if counts[layer] > bestCount {
			best, bestCount = layer, counts[layer]
		}
	}
	return best
}
