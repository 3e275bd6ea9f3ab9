package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
)

const (
	contentTypeGeoJSON = "application/geo+json"

	headerStoreVersion  = "X-Store-Version"
	headerReferenceTime = "X-Reference-Time"
	headerHorizonDays   = "X-Horizon-Days"

	retryAfterSeconds = "5"
)

// errorBody is the JSON shape of every API error.
type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	set, err := s.svc.Events(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body, err := json.Marshal(eventsCollection(set.Incidents))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set(headerStoreVersion, strconv.FormatUint(set.StoreVersion, 10))
	writeRaw(w, contentTypeGeoJSON, body)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	horizon, err := s.svc.ParseHorizon(r.URL.Query().Get("horizon_days"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pred, err := s.svc.Predict(r.Context(), horizon)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body, err := json.Marshal(cellsCollection(pred.Cells))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	h := w.Header()
	h.Set(headerStoreVersion, strconv.FormatUint(pred.StoreVersion, 10))
	h.Set(headerReferenceTime, pred.ReferenceTime.Format(time.RFC3339))
	h.Set(headerHorizonDays, strconv.Itoa(pred.HorizonDays))
	writeRaw(w, contentTypeGeoJSON, body)
}

func (s *Server) handleMeta(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.svc.Meta())
}

// writeError maps domain errors to status codes. Internal failures are logged
// and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *domain.ValidationError
		te *domain.ComputationTimeoutError
	)
	switch {
	case errors.As(err, &ve):
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request", Message: ve.Error()})
	case errors.As(err, &te):
		w.Header().Set("Retry-After", retryAfterSeconds)
		sharedobs.WriteJSON(w, http.StatusServiceUnavailable, errorBody{Error: "timeout", Message: te.Error(), Retryable: true})
	case errors.Is(err, domain.ErrNotReady):
		w.Header().Set("Retry-After", retryAfterSeconds)
		sharedobs.WriteJSON(w, http.StatusServiceUnavailable, errorBody{Error: "not_ready", Message: err.Error(), Retryable: true})
	case errors.Is(err, context.Canceled):
		// The client went away; nobody reads the response.
		s.logger.Debug("request cancelled", "path", r.URL.Path)
		sharedobs.WriteJSON(w, http.StatusServiceUnavailable, errorBody{Error: "cancelled", Message: "request cancelled", Retryable: true})
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal error"})
	}
}

func writeRaw(w http.ResponseWriter, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(body) //nolint:errcheck // best-effort response
}

