package domain

import "fmt"

// FailKind classifies why a model call or its response was unusable.
type FailKind string

const (
	// Gateway-level kinds: did we get an answer at all.
	FailTimeout   FailKind = "timeout"
	FailTransport FailKind = "transport"
	FailRefusal   FailKind = "model_refusal"

	// Validator-level kinds: is the answer usable.
	FailMalformed  FailKind = "malformed_structure"
	FailIncomplete FailKind = "incomplete_grouping"
	FailPolicy     FailKind = "policy_violation"
)

// Retryable reports whether a failure of this kind may be re-attempted
// within the bounded retry budget.
func (k FailKind) Retryable() bool {
	return k != FailRefusal
}

// GatewayError wraps a failed model call with its classified kind.
type GatewayError struct {
	Kind      FailKind
	SessionID string
	Err       error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s (session %s): %v", e.Kind, e.SessionID, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// ValidationResult is the outcome of checking a manifest fragment against
// its schema and completeness rule.
type ValidationResult struct {
	OK          bool
	Kind        FailKind
	MissingKeys []string
	Duplicates  []string
	Forbidden   []string
	Detail      string
}

// Valid returns a passing result.
func Valid() ValidationResult { return ValidationResult{OK: true} }

// Invalid returns a failing result of the given kind.
func Invalid(kind FailKind, missing, forbidden []string, detail string) ValidationResult {
	return ValidationResult{Kind: kind, MissingKeys: missing, Forbidden: forbidden, Detail: detail}
}

// RetryExhaustedError is terminal: the retry budget for one query target ran
// out. It is fatal to the surrounding stage.
type RetryExhaustedError struct {
	Target   string
	Attempts int
	LastKind FailKind
	LastErr  error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted for %s after %d attempts (last: %s)",
		e.Target, e.Attempts, e.LastKind)
}

func (e *RetryExhaustedError) Unwrap() error { return e.LastErr }

// ExtractError reports a structural-extraction failure for one file. The
// affected unit is excluded from further analysis; the scan continues.
type ExtractError struct {
	Path        string
	Lang        string
	Unsupported bool
	Err         error
}

func (e *ExtractError) Error() string {
	if e.Unsupported {
		return fmt.Sprintf("unsupported language %q for %s", e.Lang, e.Path)
	}
	return fmt.Sprintf("parse error in %s: %v", e.Path, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }
