package port

import "prdgen/internal/domain"

// StateStore persists stage manifests, per-substep debug snapshots, and the
// append-only gateway call log. Manifests make restart from any stage
// boundary possible; snapshots enable post-hoc audit of retries.
type StateStore interface {
	// PutManifest stores the final manifest of a stage.
	PutManifest(stage domain.Stage, data []byte) error

	// GetManifest returns the stored manifest, or ok=false if the stage has
	// not completed.
	GetManifest(stage domain.Stage) (data []byte, ok bool, err error)

	// PutSnapshot stores an intermediate sub-step result under a
	// monotonically increasing sequence number and returns that number.
	PutSnapshot(stage domain.Stage, name string, data []byte) (seq uint64, err error)

	// AppendCallRecord adds one immutable gateway call record.
	AppendCallRecord(rec domain.CallRecord) error

	// CallRecords returns all recorded calls in append order.
	CallRecords() ([]domain.CallRecord, error)

	Close() error
}
