// Package planner partitions analysis units into token-bounded batches,
// keeping related files together: connected import groups first, then
// directory neighbors, only then crossing module boundaries.
package planner

import (
	"path"
	"sort"
	"strings"

	"prdgen/internal/domain"
	"prdgen/internal/graph"
)

type Planner struct {
	ceiling   int
	smallFrac float64
}

// New creates a planner with a usable per-batch token ceiling (the caller
// subtracts any prompt reservation first) and the small-batch merge
// threshold as a fraction of that ceiling.
func New(ceiling int, smallFrac float64) *Planner {
	if smallFrac <= 0 || smallFrac >= 1 {
		smallFrac = 0.3
	}
	return &Planner{ceiling: ceiling, smallFrac: smallFrac}
}

// Plan packs units into batches. Every input unit appears in exactly one
// batch; a unit whose cost alone exceeds the ceiling becomes its own
// oversized batch rather than being dropped. Output is deterministic for a
// given input order.
func (p *Planner) Plan(units []domain.AnalysisUnit) []domain.Batch {
	if len(units) == 0 {
		return nil
	}

	adj := p.adjacency(units)
	components := connectedComponents(units, adj)

	var batches []domain.Batch
	for _, component := range components {
		sortByDependents(component, adj)

		var current []domain.AnalysisUnit
		currentTokens := 0

		flush := func() {
			if len(current) > 0 {
				batches = append(batches, p.makeBatch(current, adj))
				current, currentTokens = nil, 0
			}
		}

		for _, u := range component {
			if u.TokenCost > p.ceiling {
				// Oversized unit: emit alone; splitting it further is the
				// caller's decision.
				flush()
				batches = append(batches, p.makeBatch([]domain.AnalysisUnit{u}, adj))
				continue
			}
			if currentTokens+u.TokenCost > p.ceiling {
				flush()
			}
			current = append(current, u)
			currentTokens += u.TokenCost
		}
		flush()
	}

	return p.mergeSmall(batches, adj)
}

// adjacency maps unit path -> set of in-set import targets (undirected use).
func (p *Planner) adjacency(units []domain.AnalysisUnit) map[string][]string {
	paths := make(map[string]bool, len(units))
	for _, u := range units {
		paths[u.Path] = true
	}

	adj := make(map[string][]string, len(units))
	for _, u := range units {
		for _, imp := range u.Imports {
			if target := graph.ResolveImport(imp, u.Path, paths); target != "" && target != u.Path {
				adj[u.Path] = append(adj[u.Path], target)
			}
		}
	}
	return adj
}

// connectedComponents groups units that import each other, directly or
// transitively. Components are ordered largest first, then by their
// smallest member path, so planning is reproducible.
func connectedComponents(units []domain.AnalysisUnit, adj map[string][]string) [][]domain.AnalysisUnit {
	byPath := make(map[string]domain.AnalysisUnit, len(units))
	neighbors := make(map[string][]string, len(units))
	for _, u := range units {
		byPath[u.Path] = u
	}
	for from, targets := range adj {
		for _, to := range targets {
			neighbors[from] = append(neighbors[from], to)
			neighbors[to] = append(neighbors[to], from)
		}
	}

	// Directory-sorted seed order keeps sibling files adjacent even when
	// they share no imports.
	seeds := make([]string, 0, len(units))
	for _, u := range units {
		seeds = append(seeds, u.Path)
	}
	sort.Slice(seeds, func(i, j int) bool {
		di, dj := path.Dir(seeds[i]), path.Dir(seeds[j])
		if di != dj {
			return di < dj
		}
		return seeds[i] < seeds[j]
	})

	visited := make(map[string]bool, len(units))
	var components [][]domain.AnalysisUnit

	for _, seed := range seeds {
		if visited[seed] {
			continue
		}
		var member []string
		queue := []string{seed}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if visited[cur] {
				continue
			}
			visited[cur] = true
			member = append(member, cur)
			next := append([]string(nil), neighbors[cur]...)
			sort.Strings(next)
			queue = append(queue, next...)
		}
		sort.Strings(member)
		component := make([]domain.AnalysisUnit, 0, len(member))
		for _, m := range member {
			component = append(component, byPath[m])
		}
		components = append(components, component)
	}

	sort.SliceStable(components, func(i, j int) bool {
		if len(components[i]) != len(components[j]) {
			return len(components[i]) > len(components[j])
		}
		return components[i][0].Path < components[j][0].Path
	})
	return components
}

// sortByDependents orders a component so the most depended-on files come
// first, giving the model foundations before their consumers.
func sortByDependents(component []domain.AnalysisUnit, adj map[string][]string) {
	dependents := make(map[string]int)
	for _, targets := range adj {
		for _, to := range targets {
			dependents[to]++
		}
	}
	sort.SliceStable(component, func(i, j int) bool {
		di, dj := dependents[component[i].Path], dependents[component[j].Path]
		if di != dj {
			return di > dj
		}
		return component[i].Path < component[j].Path
	})
}

// mergeSmall combines trailing fragments below the merge threshold so the
// token budget is not wasted on many tiny calls.
func (p *Planner) mergeSmall(batches []domain.Batch, adj map[string][]string) []domain.Batch {
	if len(batches) <= 1 {
		return batches
	}

	threshold := int(float64(p.ceiling) * p.smallFrac)
	var large, small []domain.Batch
	for _, b := range batches {
		if b.Tokens > threshold {
			large = append(large, b)
		} else {
			small = append(small, b)
		}
	}
	if len(small) <= 1 {
		return batches
	}

	merged := large
	var current []domain.AnalysisUnit
	currentTokens := 0
	for _, b := range small {
		if currentTokens+b.Tokens > p.ceiling && len(current) > 0 {
			merged = append(merged, p.makeBatch(current, adj))
			current, currentTokens = nil, 0
		}
		current = append(current, b.Units...)
		currentTokens += b.Tokens
	}
	if len(current) > 0 {
		merged = append(merged, p.makeBatch(current, adj))
	}
	return merged
}

func (p *Planner) makeBatch(units []domain.AnalysisUnit, adj map[string][]string) domain.Batch {
	tokens := 0
	for _, u := range units {
		tokens += u.TokenCost
	}
	return domain.Batch{
		Units:    units,
		Tokens:   tokens,
		Cohesion: cohesion(units, adj),
		Label:    commonDir(units),
	}
}

// cohesion is the ratio of in-batch import edges to the maximum possible.
func cohesion(units []domain.AnalysisUnit, adj map[string][]string) float64 {
	if len(units) <= 1 {
		return 1.0
	}
	member := make(map[string]bool, len(units))
	for _, u := range units {
		member[u.Path] = true
	}
	internal := 0
	for _, u := range units {
		for _, to := range adj[u.Path] {
			if member[to] {
				internal++
			}
		}
	}
	max := len(units) * (len(units) - 1)
	return float64(internal) / float64(max)
}

func commonDir(units []domain.AnalysisUnit) string {
	if len(units) == 0 {
		return ""
	}
	common := strings.Split(path.Dir(units[0].Path), "/")
	for _, u := range units[1:] {
		parts := strings.Split(path.Dir(u.Path), "/")
		i := 0
		for i < len(common) && i < len(parts) && common[i] == parts[i] {
			i++
		}
		common = common[:i]
	}
	return strings.Join(common, "/")
}
