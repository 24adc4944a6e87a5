package domain

import "time"

// Stage identifies one of the three sequential analysis phases.
type Stage string

const (
	StageStructure Stage = "structure"
	StageSemantic  Stage = "semantic"
	StageDoc       Stage = "doc"
)

// SessionPolicy is the session-sharing rule a stage orchestrator runs under.
type SessionPolicy int

const (
	// PerSubstep opens a fresh session for every sub-step; inputs are passed
	// explicitly and no conversational memory is relied upon.
	PerSubstep SessionPolicy = iota
	// PerModule shares one session across a module's overview and detail
	// passes so the detail pass can build on the overview's framing.
	PerModule
	// PerDomain isolates each functional domain in its own session to avoid
	// cross-domain content bleed.
	PerDomain
)

func (p SessionPolicy) String() string {
	switch p {
	case PerSubstep:
		return "per-substep"
	case PerModule:
		return "per-module"
	case PerDomain:
		return "per-domain"
	default:
		return "unknown"
	}
}

// AnalysisUnit is one file handed to the model for analysis. Units are
// created by the structural extraction pass and immutable afterwards.
type AnalysisUnit struct {
	Path      string
	Lang      string
	TokenCost int
	Imports   []string
	Exports   []string
	Module    string
}

// Batch is an ordered group of units assigned to a single model call.
// Sum of member token costs stays within the planner's ceiling, except for
// a single unit that alone exceeds it.
type Batch struct {
	Units    []AnalysisUnit
	Tokens   int
	Cohesion float64
	Label    string
}

// Module is a structure-stage grouping of files with a layering hint.
type Module struct {
	Name           string   `json:"name"`
	Layer          string   `json:"layer"`
	Responsibility string   `json:"responsibility"`
	Files          []string `json:"files"`
	KeyFiles       []string `json:"key_files"`
}

// DependencyGraph holds file-level import edges plus per-node layer
// annotations. Cycles are allowed; the layer is a heuristic, not a
// topological guarantee.
type DependencyGraph struct {
	Nodes map[string]*GraphNode `json:"nodes"`
	Edges []GraphEdge           `json:"edges"`
}

type GraphNode struct {
	Path   string `json:"path"`
	Module string `json:"module"`
	Layer  string `json:"layer"`
	FanIn  int    `json:"fan_in"`
	FanOut int    `json:"fan_out"`
}

type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Layer annotations inferred for graph nodes and modules.
const (
	LayerCore     = "core"
	LayerBusiness = "business"
	LayerUtility  = "utility"
)

// FunctionalDomain is a business-feature grouping produced by the doc stage.
type FunctionalDomain struct {
	Name        string   `json:"domain_name"`
	Description string   `json:"domain_description"`
	Value       string   `json:"business_value"`
	Modules     []string `json:"modules"`
}

// CallRecord is the append-only diagnostic record of one gateway call.
// Records are never mutated after being written.
type CallRecord struct {
	Seq          uint64    `json:"seq"`
	SessionID    string    `json:"session_id"`
	PromptDigest string    `json:"prompt_digest"`
	LatencyMS    int64     `json:"latency_ms"`
	Outcome      string    `json:"outcome"`
	At           time.Time `json:"at"`
}

// RetryRecord tracks re-attempt state for one query target. It exists from
// the first failure until validation passes or the budget runs out.
type RetryRecord struct {
	Target   string
	Attempts int
	LastKind FailKind
	Hint     string
}
