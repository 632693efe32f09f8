package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"samplecore/internal/core"
	"samplecore/pkg/domain"
)

type geoDTO struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
}

type signatureDTO struct {
	Name     string    `json:"name" validate:"required"`
	SignedAt time.Time `json:"signed_at"`
}

func (g *geoDTO) toDomain() *domain.Geo {
	if g == nil {
		return nil
	}
	return &domain.Geo{Lat: g.Lat, Lon: g.Lon}
}

func (s *signatureDTO) toDomain() *domain.Signature {
	if s == nil {
		return nil
	}
	return &domain.Signature{Name: s.Name, SignedAt: s.SignedAt}
}

type createSampleRequest struct {
	Code                   string        `json:"code"`
	LabID                  string        `json:"lab_id" validate:"required"`
	ItemName               string        `json:"item_name" validate:"required"`
	SampleType             string        `json:"sample_type" validate:"required"`
	SampleAmount           string        `json:"sample_amount"`
	CollectionLocation     string        `json:"collection_location"`
	CollectionTimestamp    time.Time     `json:"collection_timestamp"`
	Collector              string        `json:"collector"`
	CollectorContact       string        `json:"collector_contact"`
	CollectingOrganization string        `json:"collecting_organization"`
	Notes                  string        `json:"notes"`
	Location               *geoDTO       `json:"location,omitempty"`
	Signature              *signatureDTO `json:"signature,omitempty"`
	PhotoRefs              []string      `json:"photo_refs,omitempty"`
}

func (a *API) decode(r *http.Request, into any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return a.validate.Struct(into)
}

func (a *API) principal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "no principal in request context")
	}
	return p, ok
}

func (a *API) handleCreateSample(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req createSampleRequest
	if err := a.decode(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	sample, _, err := a.service.RegisterSample(r.Context(), p, core.NewSample{
		Code:                   req.Code,
		LabID:                  req.LabID,
		ItemName:               req.ItemName,
		SampleType:             req.SampleType,
		SampleAmount:           req.SampleAmount,
		CollectionLocation:     req.CollectionLocation,
		CollectionTimestamp:    req.CollectionTimestamp,
		Collector:              req.Collector,
		CollectorContact:       req.CollectorContact,
		CollectingOrganization: req.CollectingOrganization,
		Notes:                  req.Notes,
		Location:               req.Location.toDomain(),
		Signature:              req.Signature.toDomain(),
		PhotoRefs:              req.PhotoRefs,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sample)
}

func (a *API) handleGetSample(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	sample, err := a.service.GetSample(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

func (a *API) handleListSamples(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	snapshot := a.service.Queues(r.Context(), p)
	var out []domain.Sample
	for _, bucket := range snapshot.ByStatus {
		out = append(out, bucket...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleDeleteSample(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	if _, err := a.service.DeleteSample(r.Context(), chi.URLParam(r, "id"), p); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transitionRequest struct {
	Action    string          `json:"action" validate:"required"`
	Location  *geoDTO         `json:"location,omitempty"`
	Signature *signatureDTO   `json:"signature,omitempty"`
	PhotoRefs []string        `json:"photo_refs,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
}

type prepDoneDetailsDTO struct {
	MeasuredWeightGrams float64 `json:"measured_weight_grams" validate:"gt=0"`
}

type analysisStartDetailsDTO struct {
	Equipment string    `json:"equipment" validate:"required"`
	StartedAt time.Time `json:"started_at"`
}

type nuclideResultDTO struct {
	Nuclide             string   `json:"nuclide" validate:"required"`
	BelowDetectionLimit bool     `json:"below_detection_limit"`
	Concentration       float64  `json:"concentration" validate:"gte=0"`
	Uncertainty         *float64 `json:"uncertainty,omitempty"`
}

type resultsDetailsDTO struct {
	Results []nuclideResultDTO `json:"results" validate:"required,min=1,dive"`
}

func toNuclideResults(rows []nuclideResultDTO) []domain.NuclideResult {
	out := make([]domain.NuclideResult, len(rows))
	for i, r := range rows {
		out[i] = domain.NuclideResult{
			Nuclide:             r.Nuclide,
			BelowDetectionLimit: r.BelowDetectionLimit,
			Concentration:       r.Concentration,
			Uncertainty:         r.Uncertainty,
		}
	}
	return out
}

// decodeDetails builds the action's details variant from the raw payload.
// Actions without a variant must not carry a details object.
func (a *API) decodeDetails(action domain.ActionType, raw json.RawMessage) (domain.HistoryDetails, error) {
	decode := func(into any) error {
		if err := json.Unmarshal(raw, into); err != nil {
			return fmt.Errorf("invalid details for %s: %w", action, err)
		}
		return a.validate.Struct(into)
	}
	switch action {
	case domain.ActionPrepDone:
		if raw == nil {
			return nil, fmt.Errorf("action %s requires details", action)
		}
		var d prepDoneDetailsDTO
		if err := decode(&d); err != nil {
			return nil, err
		}
		return domain.PrepDoneDetails{MeasuredWeightGrams: d.MeasuredWeightGrams}, nil
	case domain.ActionResultsSaved:
		if raw == nil {
			return nil, fmt.Errorf("action %s requires details", action)
		}
		var d resultsDetailsDTO
		if err := decode(&d); err != nil {
			return nil, err
		}
		return domain.ResultsSavedDetails{Results: toNuclideResults(d.Results)}, nil
	case domain.ActionAnalysisStart:
		if raw == nil {
			return nil, nil
		}
		var d analysisStartDetailsDTO
		if err := decode(&d); err != nil {
			return nil, err
		}
		return domain.AnalysisStartDetails{Equipment: d.Equipment, StartedAt: d.StartedAt}, nil
	default:
		if raw != nil {
			return nil, fmt.Errorf("action %s does not accept details", action)
		}
		return nil, nil
	}
}

func (a *API) handleTransition(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if err := a.decode(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	action := domain.ActionType(req.Action)
	details, err := a.decodeDetails(action, req.Details)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	sample, _, err := a.service.RequestTransition(r.Context(), chi.URLParam(r, "id"), action, p, core.TransitionInput{
		Location:  req.Location.toDomain(),
		Signature: req.Signature.toDomain(),
		PhotoRefs: req.PhotoRefs,
		Details:   details,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

type saveResultsRequest struct {
	Results   []nuclideResultDTO `json:"results" validate:"required,min=1,dive"`
	Location  *geoDTO            `json:"location,omitempty"`
	Signature *signatureDTO      `json:"signature,omitempty"`
}

func (a *API) handleSaveResults(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req saveResultsRequest
	if err := a.decode(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	sample, _, err := a.service.SaveResults(r.Context(), chi.URLParam(r, "id"), p, toNuclideResults(req.Results), core.TransitionInput{
		Location:  req.Location.toDomain(),
		Signature: req.Signature.toDomain(),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

type prepResultRequest struct {
	MeasuredWeightGrams float64       `json:"measured_weight_grams" validate:"gt=0"`
	Location            *geoDTO       `json:"location,omitempty"`
	Signature           *signatureDTO `json:"signature,omitempty"`
}

func (a *API) handlePrepResult(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req prepResultRequest
	if err := a.decode(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	sample, _, err := a.service.RecordPrepDone(r.Context(), chi.URLParam(r, "id"), p, req.MeasuredWeightGrams, core.TransitionInput{
		Location:  req.Location.toDomain(),
		Signature: req.Signature.toDomain(),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

type modificationRequest struct {
	Reason string             `json:"reason" validate:"required"`
	Patch  domain.SamplePatch `json:"patch"`
}

func (a *API) handleModification(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req modificationRequest
	if err := a.decode(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	sample, _, err := a.service.RecordModification(r.Context(), chi.URLParam(r, "id"), req.Patch, req.Reason, p)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

func (a *API) handleQueues(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.service.Queues(r.Context(), p))
}
