package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. The history sequence has no generic
// setter: entries enter through the append operations only.
type Transaction interface {
	// CreateSample stores a new sample. The ID is generated when empty.
	CreateSample(Sample) (Sample, error)
	// AdvanceSample appends entry and moves the status to next in one unit.
	// The commit is conditioned on the sample's current status still matching
	// expected; a mismatch fails with StaleStateError and leaves the record
	// untouched.
	AdvanceSample(id string, expected, next SampleStatus, entry HistoryEntry) (Sample, error)
	// AnnotateSample appends an evidence entry without moving the machine.
	// The sample must currently sit at the required status. When results is
	// non-nil it replaces the sample's latest result set in the same unit.
	AnnotateSample(id string, required SampleStatus, entry HistoryEntry, results []NuclideResult) (Sample, error)
	// ApplyModification patches descriptive fields and appends one
	// modification ledger entry atomically. It never touches history or
	// status.
	ApplyModification(id string, patch SamplePatch, entry ModificationEntry) (Sample, error)
	// DeleteSample removes a record. Administrative operation outside the
	// workflow; the engine restricts it to privileged roles.
	DeleteSample(id string) error
	// NextSequence increments and returns the named counter, used for
	// registry-backed sample code generation.
	NextSequence(key string) int
	FindSample(id string) (Sample, bool)
	FindSampleByCode(code string) (Sample, bool)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	ListSamples() []Sample
	ListSamplesByLabs(labIDs []string) []Sample
	FindSample(id string) (Sample, bool)
	FindSampleByCode(code string) (Sample, bool)
}

// CancelFunc detaches a live-view subscriber and releases its resources.
type CancelFunc func()

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetSample(id string) (Sample, bool)
	ListSamples() []Sample
	ListSamplesByLabs(labIDs []string) []Sample
	// Subscribe registers a live-view reader over the given lab set. An empty
	// set subscribes to everything. The returned channel delivers a snapshot
	// of committed state after every relevant commit, coalescing under a slow
	// reader so writers never block; it is closed when the context ends or
	// cancel is called.
	Subscribe(ctx context.Context, labIDs []string) (<-chan SampleSetSnapshot, CancelFunc)
}
