// Package core implements the sample lifecycle workflow: the transition
// guard, the audit ledger rules, result capture, and the service operations
// exposed to transports.
package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"samplecore/internal/infra/persistence/memory"
	"samplecore/pkg/domain"
)

// Service exposes the transactional workflow operations over a persistent
// store. All role and status enforcement happens here and in the store's
// rules engine; transports are untrusted callers.
type Service struct {
	store domain.PersistentStore
	opts  serviceOptions
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...ServiceOption) *Service {
	options := defaultServiceOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Service{store: store, opts: options}
}

// NewInMemoryService creates a service with an in-memory store and the given
// rules engine. Used by tests and ephemeral deployments.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore { return s.store }

// NewSample is the registration payload for a specimen entering the system.
// Code is optional; when empty a per-type per-day sequential code is issued.
type NewSample struct {
	Code                   string
	LabID                  string
	ItemName               string
	SampleType             string
	SampleAmount           string
	CollectionLocation     string
	CollectionTimestamp    time.Time
	Collector              string
	CollectorContact       string
	CollectingOrganization string
	Notes                  string
	Location               *Geo
	Signature              *Signature
	PhotoRefs              []string
}

// TransitionInput carries the optional evidence attached to a workflow
// action. Details must match the action's variant; plain actions carry nil.
type TransitionInput struct {
	Location  *Geo
	Signature *Signature
	PhotoRefs []string
	Details   HistoryDetails
}

// RegisterSample records the reception of a new specimen. The sample enters
// the machine at Received with a single reception ledger entry.
func (s *Service) RegisterSample(ctx context.Context, p Principal, draft NewSample) (Sample, Result, error) {
	var created Sample
	var result Result
	err := s.run(ctx, "register_sample", p, func() string { return created.ID }, func(ctx context.Context) error {
		if _, ok := receptionRoles[p.Role]; !ok {
			return domain.ForbiddenError{Role: p.Role, Action: ActionReception}
		}
		if !p.AssignedTo(draft.LabID) {
			return domain.ForbiddenError{Role: p.Role, Action: ActionReception}
		}
		if !s.opts.offices.Valid(draft.LabID) {
			return domain.NotFoundError{Entity: domain.EntityLabOffice, ID: draft.LabID}
		}
		now := s.opts.clock.Now()
		res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			code := strings.TrimSpace(draft.Code)
			if code == "" {
				code = issueCode(tx, draft.SampleType, now)
			}
			var err error
			created, err = tx.CreateSample(Sample{
				Code:                   code,
				Status:                 StatusReceived,
				LabID:                  draft.LabID,
				ItemName:               draft.ItemName,
				SampleType:             draft.SampleType,
				SampleAmount:           draft.SampleAmount,
				CollectionLocation:     draft.CollectionLocation,
				CollectionTimestamp:    draft.CollectionTimestamp,
				Collector:              draft.Collector,
				CollectorContact:       draft.CollectorContact,
				CollectingOrganization: draft.CollectingOrganization,
				Notes:                  draft.Notes,
				History: []HistoryEntry{{
					Action:    ActionReception,
					Actor:     p.DisplayName,
					ActorID:   p.UserID,
					Role:      p.Role,
					Timestamp: now,
					Location:  draft.Location,
					Signature: draft.Signature,
					PhotoRefs: draft.PhotoRefs,
				}},
			})
			return err
		})
		result = res
		return err
	})
	return created, result, err
}

// issueCode reserves the next per-type per-day sequence number inside the
// transaction, so concurrent registrations can never collide.
func issueCode(tx domain.Transaction, sampleType string, now time.Time) string {
	prefix := codePrefix(sampleType)
	day := now.UTC().Format("060102")
	seq := tx.NextSequence(fmt.Sprintf("%s-%s", prefix, day))
	return fmt.Sprintf("%s-%s-%d", prefix, day, seq)
}

func codePrefix(sampleType string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(sampleType) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "SAMPLE"
	}
	return b.String()
}

// RequestTransition performs a workflow action on a sample: guard, ledger
// append, and status move happen in one atomic commit. Annotation actions
// (PrepDone, ResultsSaved) append their evidence without moving the machine.
func (s *Service) RequestTransition(ctx context.Context, sampleID string, action ActionType, p Principal, input TransitionInput) (Sample, Result, error) {
	var updated Sample
	var result Result
	err := s.run(ctx, "transition_"+string(action), p, func() string { return sampleID }, func(ctx context.Context) error {
		details, results, err := detailsFor(action, input.Details)
		if err != nil {
			return err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			sample, ok := tx.FindSample(sampleID)
			if !ok {
				return domain.NotFoundError{Entity: EntitySample, ID: sampleID}
			}
			step, err := guard(sample.Status, action, p, sample.LabID)
			if err != nil {
				return err
			}
			entry := HistoryEntry{
				Action:    action,
				Actor:     p.DisplayName,
				ActorID:   p.UserID,
				Role:      p.Role,
				Timestamp: s.opts.clock.Now(),
				Location:  input.Location,
				Signature: input.Signature,
				Details:   details,
				PhotoRefs: input.PhotoRefs,
			}
			if step.From == step.To {
				updated, err = tx.AnnotateSample(sampleID, step.From, entry, results)
			} else {
				updated, err = tx.AdvanceSample(sampleID, step.From, step.To, entry)
			}
			return err
		})
		result = res
		return err
	})
	return updated, result, err
}

// detailsFor validates that the supplied details variant matches the action,
// normalizing result rows on the way in.
func detailsFor(action ActionType, details HistoryDetails) (HistoryDetails, []NuclideResult, error) {
	switch action {
	case ActionPrepDone:
		d, ok := details.(domain.PrepDoneDetails)
		if !ok {
			return nil, nil, fmt.Errorf("action %s requires prep done details", action)
		}
		return d, nil, nil
	case ActionResultsSaved:
		d, ok := details.(domain.ResultsSavedDetails)
		if !ok {
			return nil, nil, fmt.Errorf("action %s requires result rows", action)
		}
		rows := domain.NormalizeResults(d.Results)
		return domain.ResultsSavedDetails{Results: rows}, rows, nil
	case ActionAnalysisStart:
		if details == nil {
			return nil, nil, nil
		}
		d, ok := details.(domain.AnalysisStartDetails)
		if !ok {
			return nil, nil, fmt.Errorf("action %s accepts only analysis start details", action)
		}
		return d, nil, nil
	default:
		if details != nil {
			return nil, nil, fmt.Errorf("action %s carries no details payload", action)
		}
		return nil, nil, nil
	}
}

// RecordPrepDone appends the pre-treatment completion entry with the measured
// weight. Legal only while the sample awaits analysis.
func (s *Service) RecordPrepDone(ctx context.Context, sampleID string, p Principal, weightGrams float64, input TransitionInput) (Sample, Result, error) {
	input.Details = domain.PrepDoneDetails{MeasuredWeightGrams: weightGrams}
	return s.RequestTransition(ctx, sampleID, ActionPrepDone, p, input)
}

// SaveResults appends a results entry while the sample is analyzing and
// stores the normalized rows as the sample's current result set. Rows with
// BelowDetectionLimit set have their uncertainty cleared.
func (s *Service) SaveResults(ctx context.Context, sampleID string, p Principal, rows []NuclideResult, input TransitionInput) (Sample, Result, error) {
	input.Details = domain.ResultsSavedDetails{Results: rows}
	return s.RequestTransition(ctx, sampleID, ActionResultsSaved, p, input)
}

// modificationRoles may apply corrective edits to descriptive fields.
var modificationRoles = roleSet(RoleAnalyst, RoleTechnicalLead, RoleAssociationAdmin, RoleSuperAdmin)

// RecordModification applies a corrective edit to descriptive fields and
// appends one modification ledger entry. The reason is mandatory; the
// workflow history and status are never touched.
func (s *Service) RecordModification(ctx context.Context, sampleID string, patch SamplePatch, reason string, p Principal) (Sample, Result, error) {
	var updated Sample
	var result Result
	err := s.run(ctx, "record_modification", p, func() string { return sampleID }, func(ctx context.Context) error {
		if patch.IsEmpty() {
			return fmt.Errorf("modification patch is empty")
		}
		res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			sample, ok := tx.FindSample(sampleID)
			if !ok {
				return domain.NotFoundError{Entity: EntitySample, ID: sampleID}
			}
			if _, ok := modificationRoles[p.Role]; !ok {
				return domain.ForbiddenError{Role: p.Role}
			}
			if !p.AssignedTo(sample.LabID) {
				return domain.ForbiddenError{Role: p.Role}
			}
			var err error
			updated, err = tx.ApplyModification(sampleID, patch, ModificationEntry{
				Reason:    reason,
				Editor:    p.DisplayName,
				EditorID:  p.UserID,
				Timestamp: s.opts.clock.Now(),
			})
			return err
		})
		result = res
		return err
	})
	return updated, result, err
}

// deletionRoles may remove a sample record outside the workflow.
var deletionRoles = roleSet(RoleAssociationAdmin, RoleSuperAdmin)

// DeleteSample removes a record entirely. This is an administrative
// operation; the workflow itself never deletes.
func (s *Service) DeleteSample(ctx context.Context, sampleID string, p Principal) (Result, error) {
	var result Result
	err := s.run(ctx, "delete_sample", p, func() string { return sampleID }, func(ctx context.Context) error {
		res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			sample, ok := tx.FindSample(sampleID)
			if !ok {
				return domain.NotFoundError{Entity: EntitySample, ID: sampleID}
			}
			if _, ok := deletionRoles[p.Role]; !ok {
				return domain.ForbiddenError{Role: p.Role}
			}
			if !p.AssignedTo(sample.LabID) {
				return domain.ForbiddenError{Role: p.Role}
			}
			return tx.DeleteSample(sampleID)
		})
		result = res
		return err
	})
	return result, err
}

// GetSample returns one sample visible to the principal.
func (s *Service) GetSample(_ context.Context, sampleID string, p Principal) (Sample, error) {
	sample, ok := s.store.GetSample(sampleID)
	if !ok {
		return Sample{}, domain.NotFoundError{Entity: EntitySample, ID: sampleID}
	}
	if !p.AssignedTo(sample.LabID) {
		return Sample{}, domain.ForbiddenError{Role: p.Role}
	}
	return sample, nil
}

// Queues returns the principal's visible samples grouped by status, the feed
// behind the step-queue display.
func (s *Service) Queues(_ context.Context, p Principal) SampleSetSnapshot {
	samples := s.store.ListSamplesByLabs(labsFor(p))
	byStatus := make(map[SampleStatus][]Sample)
	for _, sample := range samples {
		byStatus[sample.Status] = append(byStatus[sample.Status], sample)
	}
	return SampleSetSnapshot{ByStatus: byStatus, At: s.opts.clock.Now()}
}

// Subscribe opens a live view over the principal's offices. Snapshots arrive
// after every commit touching the set; delivery coalesces so a slow reader
// always wakes to the latest committed state.
func (s *Service) Subscribe(ctx context.Context, p Principal) (<-chan SampleSetSnapshot, domain.CancelFunc) {
	return s.store.Subscribe(ctx, labsFor(p))
}

func labsFor(p Principal) []string {
	if p.Role == RoleSuperAdmin {
		return nil
	}
	return p.LabIDs
}

// run wraps an operation with tracing, metrics, audit, and logging.
func (s *Service) run(ctx context.Context, op string, p Principal, entityID func() string, fn func(context.Context) error) error {
	start := time.Now()
	spanCtx := ctx
	var span TraceSpan
	if s.opts.tracer != nil {
		spanCtx, span = s.opts.tracer.Start(ctx, op)
	}

	err := fn(spanCtx)
	duration := time.Since(start)

	if span != nil {
		span.End(err)
	}
	if s.opts.metrics != nil {
		s.opts.metrics.Observe(ctx, op, err == nil, duration)
	}
	if s.opts.audit != nil {
		entry := AuditEntry{
			Operation: op,
			EntityID:  entityID(),
			ActorID:   p.UserID,
			Status:    AuditStatusSuccess,
			At:        s.opts.clock.Now(),
		}
		if err != nil {
			entry.Status = AuditStatusError
			entry.Error = err.Error()
		}
		s.opts.audit.Record(ctx, entry)
	}
	if err != nil {
		s.opts.logger.Error("operation failed", "operation", op, "entity_id", entityID(), "actor_id", p.UserID, "error", err)
	} else {
		s.opts.logger.Debug("operation completed", "operation", op, "entity_id", entityID(), "actor_id", p.UserID, "duration", duration)
	}
	return err
}
