// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments. It is also the
// transactional engine that the sqlite and postgres stores wrap with durable
// snapshots.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"samplecore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Sample aliases domain.Sample for in-memory persistence operations.
	Sample = domain.Sample
	// HistoryEntry aliases domain.HistoryEntry.
	HistoryEntry = domain.HistoryEntry
	// ModificationEntry aliases domain.ModificationEntry.
	ModificationEntry = domain.ModificationEntry
	// SamplePatch aliases domain.SamplePatch.
	SamplePatch = domain.SamplePatch
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

func mustApply(label string, err error) {
	if err != nil {
		panic(fmt.Errorf("memory store %s: %w", label, err))
	}
}

type memoryState struct {
	samples   map[string]Sample
	sequences map[string]int
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Samples   map[string]Sample `json:"samples"`
	Sequences map[string]int    `json:"sequences"`
}

func newMemoryState() memoryState {
	return memoryState{
		samples:   make(map[string]Sample),
		sequences: make(map[string]int),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.samples {
		cloned.samples[k] = cloneSample(v)
	}
	for k, v := range s.sequences {
		cloned.sequences[k] = v
	}
	return cloned
}

func cloneSample(s Sample) Sample {
	cp := s
	if s.History != nil {
		cp.History = make([]HistoryEntry, len(s.History))
		for i, e := range s.History {
			cp.History[i] = cloneHistoryEntry(e)
		}
	}
	if s.ModificationHistory != nil {
		cp.ModificationHistory = make([]ModificationEntry, len(s.ModificationHistory))
		for i, e := range s.ModificationHistory {
			me := e
			me.Fields = append([]string(nil), e.Fields...)
			cp.ModificationHistory[i] = me
		}
	}
	cp.AnalysisResults = cloneResults(s.AnalysisResults)
	cp.PhotoRefs = append([]string(nil), s.PhotoRefs...)
	return cp
}

func cloneHistoryEntry(e HistoryEntry) HistoryEntry {
	cp := e
	if e.Location != nil {
		loc := *e.Location
		cp.Location = &loc
	}
	if e.Signature != nil {
		sig := *e.Signature
		cp.Signature = &sig
	}
	cp.PhotoRefs = append([]string(nil), e.PhotoRefs...)
	if d, ok := e.Details.(domain.ResultsSavedDetails); ok {
		cp.Details = domain.ResultsSavedDetails{Results: cloneResults(d.Results)}
	}
	return cp
}

func cloneResults(rows []domain.NuclideResult) []domain.NuclideResult {
	if rows == nil {
		return nil
	}
	out := make([]domain.NuclideResult, len(rows))
	for i, r := range rows {
		cp := r
		if r.Uncertainty != nil {
			v := *r.Uncertainty
			cp.Uncertainty = &v
		}
		out[i] = cp
	}
	return out
}

// Store provides an in-memory transactional store for the sample domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time

	watchMu    sync.Mutex
	watchers   map[int]*watcher
	watcherSeq int
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:    newMemoryState(),
		engine:   engine,
		nowFn:    func() time.Time { return time.Now().UTC() },
		watchers: make(map[int]*watcher),
	}
}

// SetClock overrides the transaction clock. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.nowFn = now
	}
}

func newID() string { return uuid.NewString() }

// memTx is the in-memory realization of domain.Transaction.
type memTx struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

// ListSamples returns all samples within the snapshot, ordered by creation
// time then code for stable iteration.
func (v transactionView) ListSamples() []Sample {
	out := make([]Sample, 0, len(v.state.samples))
	for _, s := range v.state.samples {
		out = append(out, cloneSample(s))
	}
	sortSamples(out)
	return out
}

// ListSamplesByLabs returns the samples whose custodian office is in the set.
// An empty set matches everything.
func (v transactionView) ListSamplesByLabs(labIDs []string) []Sample {
	if len(labIDs) == 0 {
		return v.ListSamples()
	}
	set := make(map[string]struct{}, len(labIDs))
	for _, id := range labIDs {
		set[id] = struct{}{}
	}
	var out []Sample
	for _, s := range v.state.samples {
		if _, ok := set[s.LabID]; ok {
			out = append(out, cloneSample(s))
		}
	}
	sortSamples(out)
	return out
}

// FindSample retrieves a sample by ID from the snapshot.
func (v transactionView) FindSample(id string) (Sample, bool) {
	s, ok := v.state.samples[id]
	if !ok {
		return Sample{}, false
	}
	return cloneSample(s), true
}

// FindSampleByCode retrieves a sample by its human-facing code.
func (v transactionView) FindSampleByCode(code string) (Sample, bool) {
	for _, s := range v.state.samples {
		if s.Code == code {
			return cloneSample(s), true
		}
	}
	return Sample{}, false
}

func sortSamples(out []Sample) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Code < out[j].Code
	})
}

// RunInTransaction executes fn within a transactional copy of the store
// state. The mutation set is evaluated by the rules engine before commit;
// blocking violations abort and the committed state is untouched entirely.
func (s *Store) RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error) {
	s.mu.Lock()

	tx := &memTx{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		s.mu.Unlock()
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := transactionView{state: &tx.state}
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			s.mu.Unlock()
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			s.mu.Unlock()
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	labs := touchedLabs(tx.changes)
	s.mu.Unlock()

	if len(labs) > 0 {
		s.notify(labs)
	}
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(transactionView{state: &snapshot})
}

func (tx *memTx) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

func samplePayload(label string, s Sample) domain.ChangePayload {
	payload, err := domain.NewChangePayloadFromValue(s)
	mustApply(label, err)
	return payload
}

// CreateSample stores a new sample within the transaction.
func (tx *memTx) CreateSample(s Sample) (Sample, error) {
	if s.ID == "" {
		s.ID = newID()
	}
	if _, exists := tx.state.samples[s.ID]; exists {
		return Sample{}, fmt.Errorf("sample %q already exists", s.ID)
	}
	if strings.TrimSpace(s.Code) == "" {
		return Sample{}, fmt.Errorf("sample code must not be empty")
	}
	if _, dup := tx.findByCode(s.Code); dup {
		return Sample{}, fmt.Errorf("sample code %q already in use", s.Code)
	}
	s.CreatedAt = tx.now
	s.UpdatedAt = tx.now
	s.Revision = 1
	tx.state.samples[s.ID] = cloneSample(s)
	tx.recordChange(Change{
		Entity: domain.EntitySample,
		Action: domain.ChangeCreate,
		Before: domain.UndefinedChangePayload(),
		After:  samplePayload("create sample", s),
	})
	return cloneSample(s), nil
}

// AdvanceSample appends entry and moves the status forward in one unit. The
// write is conditioned on the current status matching expected.
func (tx *memTx) AdvanceSample(id string, expected, next domain.SampleStatus, entry HistoryEntry) (Sample, error) {
	current, ok := tx.state.samples[id]
	if !ok {
		return Sample{}, domain.NotFoundError{Entity: domain.EntitySample, ID: id}
	}
	if current.Status != expected {
		return Sample{}, domain.StaleStateError{Expected: expected, Actual: current.Status}
	}
	before := cloneSample(current)
	appendEntry(&current, &entry, tx.now)
	current.Status = next
	tx.commitUpdate("advance sample", id, before, current)
	return cloneSample(current), nil
}

// AnnotateSample appends an evidence entry without advancing the machine.
func (tx *memTx) AnnotateSample(id string, required domain.SampleStatus, entry HistoryEntry, results []domain.NuclideResult) (Sample, error) {
	current, ok := tx.state.samples[id]
	if !ok {
		return Sample{}, domain.NotFoundError{Entity: domain.EntitySample, ID: id}
	}
	if current.Status != required {
		return Sample{}, domain.StaleStateError{Expected: required, Actual: current.Status}
	}
	before := cloneSample(current)
	appendEntry(&current, &entry, tx.now)
	if results != nil {
		current.AnalysisResults = cloneResults(results)
	}
	tx.commitUpdate("annotate sample", id, before, current)
	return cloneSample(current), nil
}

// ApplyModification patches descriptive fields and appends one modification
// ledger entry. The history sequence and status are never touched here.
func (tx *memTx) ApplyModification(id string, patch SamplePatch, entry ModificationEntry) (Sample, error) {
	current, ok := tx.state.samples[id]
	if !ok {
		return Sample{}, domain.NotFoundError{Entity: domain.EntitySample, ID: id}
	}
	if strings.TrimSpace(entry.Reason) == "" {
		return Sample{}, domain.ReasonRequiredError{}
	}
	before := cloneSample(current)
	patch.Apply(&current)
	if entry.Timestamp.IsZero() {
		entry.Timestamp = tx.now
	}
	if len(entry.Fields) == 0 {
		entry.Fields = patch.Fields()
	}
	current.ModificationHistory = append(current.ModificationHistory, entry)
	tx.commitUpdate("modify sample", id, before, current)
	return cloneSample(current), nil
}

// DeleteSample removes a record. This is the administrative escape hatch; the
// workflow itself never deletes.
func (tx *memTx) DeleteSample(id string) error {
	current, ok := tx.state.samples[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntitySample, ID: id}
	}
	delete(tx.state.samples, id)
	tx.recordChange(Change{
		Entity: domain.EntitySample,
		Action: domain.ChangeDelete,
		Before: samplePayload("delete sample", current),
		After:  domain.UndefinedChangePayload(),
	})
	return nil
}

// NextSequence increments and returns the named counter.
func (tx *memTx) NextSequence(key string) int {
	tx.state.sequences[key]++
	return tx.state.sequences[key]
}

// FindSample retrieves a sample by ID within the transaction snapshot.
func (tx *memTx) FindSample(id string) (Sample, bool) {
	return transactionView{state: &tx.state}.FindSample(id)
}

// FindSampleByCode retrieves a sample by code within the transaction snapshot.
func (tx *memTx) FindSampleByCode(code string) (Sample, bool) {
	s, ok := tx.findByCode(code)
	if !ok {
		return Sample{}, false
	}
	return cloneSample(s), true
}

func (tx *memTx) findByCode(code string) (Sample, bool) {
	for _, s := range tx.state.samples {
		if s.Code == code {
			return s, true
		}
	}
	return Sample{}, false
}

// appendEntry stamps and appends a history entry, keeping timestamps
// non-decreasing within the sample and folding entry photos into the
// sample-level reference list.
func appendEntry(s *Sample, entry *HistoryEntry, now time.Time) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}
	if n := len(s.History); n > 0 {
		if last := s.History[n-1].Timestamp; entry.Timestamp.Before(last) {
			entry.Timestamp = last
		}
	}
	s.History = append(s.History, cloneHistoryEntry(*entry))
	s.PhotoRefs = append(s.PhotoRefs, entry.PhotoRefs...)
}

func (tx *memTx) commitUpdate(label, id string, before, after Sample) {
	after.UpdatedAt = tx.now
	after.Revision = before.Revision + 1
	tx.state.samples[id] = cloneSample(after)
	tx.recordChange(Change{
		Entity: domain.EntitySample,
		Action: domain.ChangeUpdate,
		Before: samplePayload(label, before),
		After:  samplePayload(label, after),
	})
}

// Read helpers ---------------------------------------------------------------

// GetSample retrieves a sample by ID from committed state.
func (s *Store) GetSample(id string) (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.state.samples[id]
	if !ok {
		return Sample{}, false
	}
	return cloneSample(record), true
}

// ListSamples returns all samples from committed state.
func (s *Store) ListSamples() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionView{state: &s.state}.ListSamples()
}

// ListSamplesByLabs returns committed samples whose office is in the set.
func (s *Store) ListSamplesByLabs(labIDs []string) []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionView{state: &s.state}.ListSamplesByLabs(labIDs)
}

// ExportState returns a deep-copied snapshot of committed state for durable
// backends.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cloned := s.state.clone()
	return Snapshot{Samples: cloned.samples, Sequences: cloned.sequences}
}

// ImportState replaces committed state from a snapshot, e.g. on startup.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := newMemoryState()
	for k, v := range snapshot.Samples {
		state.samples[k] = cloneSample(v)
	}
	for k, v := range snapshot.Sequences {
		state.sequences[k] = v
	}
	s.state = state
}

func touchedLabs(changes []Change) map[string]struct{} {
	labs := make(map[string]struct{})
	for _, change := range changes {
		for _, payload := range []domain.ChangePayload{change.Before, change.After} {
			if payload.IsEmpty() {
				continue
			}
			var s Sample
			if err := json.Unmarshal(payload.Raw(), &s); err == nil && s.LabID != "" {
				labs[s.LabID] = struct{}{}
			}
		}
	}
	return labs
}
