package analyzer

import "sync"

// defaultCost is charged for files whose contents could not be read.
const defaultCost = 1000

// TokenEstimator approximates model token cost from byte length using a
// fixed chars-per-token ratio. Estimates are cached per path because the
// planner asks repeatedly while packing.
type TokenEstimator struct {
	charsPerToken int

	mu    sync.Mutex
	cache map[string]int
}

func NewTokenEstimator(charsPerToken int) *TokenEstimator {
	if charsPerToken <= 0 {
		charsPerToken = 3
	}
	return &TokenEstimator{
		charsPerToken: charsPerToken,
		cache:         make(map[string]int),
	}
}

// EstimateBytes returns the estimated token cost of raw content.
func (e *TokenEstimator) EstimateBytes(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	cost := len(content) / e.charsPerToken
	if cost == 0 {
		cost = 1
	}
	return cost
}

// EstimateFile returns the cached or computed cost for a path. A nil content
// slice means the file was unreadable; it is charged a conservative default
// so the unit is never silently dropped from planning.
func (e *TokenEstimator) EstimateFile(path string, content []byte) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cost, ok := e.cache[path]; ok {
		return cost
	}

	cost := defaultCost
	if content != nil {
		cost = e.EstimateBytes(content)
	}
	e.cache[path] = cost
	return cost
}

// EstimateString is EstimateBytes for prompt fragments.
func (e *TokenEstimator) EstimateString(s string) int {
	return e.EstimateBytes([]byte(s))
}
