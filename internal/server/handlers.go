package server

import (
	"encoding/json"
	"net/http"

	"github.com/photocopy/geocoder/internal/errors"
	"github.com/photocopy/geocoder/internal/model"
	"github.com/photocopy/geocoder/internal/service"
	"github.com/photocopy/geocoder/internal/validation"
)

// maxBatchBodyBytes caps a batch request body
const maxBatchBodyBytes = 4 << 20

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Status    string                 `json:"status"`
	ErrorCode string                 `json:"error_code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// BatchRequest is the body of POST /v1/reverse/batch
type BatchRequest struct {
	Coordinates []service.BatchItem `json:"coordinates"`
}

// BatchResponse is the reply to a batch request
type BatchResponse struct {
	Results []service.BatchResult `json:"results"`
}

// StatsResponse is the reply to GET /v1/stats
type StatsResponse struct {
	Geocoder   service.ServiceStats `json:"geocoder"`
	Boundaries bool                 `json:"boundaries"`
	Batch      interface{}          `json:"batch,omitempty"`
}

func (s *Server) handleReverse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, lon, err := validation.ParseCoordinate(q.Get("lat"), q.Get("lon"))
	if err != nil {
		writeGeoError(w, r, err)
		return
	}
	if state := s.geocoder.State(); state != model.StateReady {
		writeGeoError(w, r, errors.NotInitialized(state.String()))
		return
	}

	loc := s.geocoder.ReverseGeocode(r.Context(), lat, lon)
	if loc == nil {
		writeGeoError(w, r, errors.NoMatch(lat, lon))
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if s.batch == nil {
		writeError(w, r, http.StatusNotImplemented, "unsupported", "batch lookups are not enabled")
		return
	}

	var req BatchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeGeoError(w, r, errors.InvalidArgument("malformed batch request", err))
		return
	}
	if state := s.geocoder.State(); state != model.StateReady {
		writeGeoError(w, r, errors.NotInitialized(state.String()))
		return
	}

	results, err := s.batch.Geocode(r.Context(), req.Coordinates)
	if err != nil {
		writeGeoError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BatchResponse{Results: results})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{}
	if s.stats != nil {
		resp.Geocoder = s.stats.Stats()
	}
	if s.boundaries != nil {
		resp.Boundaries = s.boundaries.HasBoundaries()
	}
	if s.batch != nil {
		resp.Batch = s.batch.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeGeoError(w http.ResponseWriter, r *http.Request, err error) {
	var ge *errors.GeoError
	if !errors.As(err, &ge) {
		writeError(w, r, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, ge.HTTPStatus(), ErrorResponse{
		Status:    "error",
		ErrorCode: ge.Code.String(),
		Message:   ge.Message,
		Details:   ge.Details,
		RequestID: r.Header.Get(RequestIDHeader),
	})
}

func writeError(w http.ResponseWriter, r *http.Request, code int, errorCode, message string) {
	writeJSON(w, code, ErrorResponse{
		Status:    "error",
		ErrorCode: errorCode,
		Message:   message,
		RequestID: r.Header.Get(RequestIDHeader),
	})
}
