package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"hypo-churn/internal/common"
	"hypo-churn/internal/serving"

	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

// errorResponse is the only error shape clients see. It never carries
// internal error text.
type errorResponse struct {
	Error       string               `json:"error"`
	Message     string               `json:"message"`
	Fields      []serving.FieldError `json:"fields,omitempty"`
	Predictions []serving.BatchItem  `json:"predictions,omitempty"`
}

type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Version     string `json:"version"`
}

type batchRequest struct {
	Customers []serving.CustomerRecord `json:"customers"`
}

type probabilityResponse struct {
	ChurnProbability float64 `json:"churn_probability"`
	RiskLevel        string  `json:"risk_level"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, body errorResponse) {
	writeJSON(w, status, body)
}

// handleServiceError maps serving errors to status codes and generic messages.
func (s *Server) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *serving.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusUnprocessableEntity, errorResponse{
			Error:   "validation_error",
			Message: "Invalid input data",
			Fields:  verr.Fields,
		})
	case errors.Is(err, serving.ErrBatchTooLarge):
		writeError(w, http.StatusUnprocessableEntity, errorResponse{
			Error:   "batch_too_large",
			Message: fmt.Sprintf("Batch exceeds the maximum of %d customers", s.svc.MaxBatchSize()),
		})
	case errors.Is(err, serving.ErrEmptyBatch):
		writeError(w, http.StatusUnprocessableEntity, errorResponse{
			Error:   "empty_batch",
			Message: "Batch must contain at least one customer",
		})
	case errors.Is(err, serving.ErrModelUnavailable):
		writeError(w, http.StatusServiceUnavailable, errorResponse{
			Error:   "model_unavailable",
			Message: "Model not available",
		})
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, errorResponse{
			Error:   "timeout",
			Message: "Request timed out",
		})
	case errors.Is(err, context.Canceled):
		// client went away; the response is unlikely to be read
		log.Debug().
			Str("request_id", RequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("Prediction request canceled")
		writeError(w, http.StatusServiceUnavailable, errorResponse{
			Error:   "request_canceled",
			Message: "Request canceled",
		})
	default:
		log.Error().
			Err(err).
			Str("request_id", RequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("Prediction request failed")
		writeError(w, http.StatusInternalServerError, errorResponse{
			Error:   "internal_error",
			Message: "Prediction service temporarily unavailable",
		})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusUnprocessableEntity, errorResponse{
			Error:   "invalid_json",
			Message: "Request body must be a valid JSON object",
		})
		return false
	}
	return true
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.settings.RequestTimeout > 0 {
		return context.WithTimeout(r.Context(), s.settings.RequestTimeout)
	}
	return context.WithCancel(r.Context())
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": common.ServiceName,
		"version": common.ServiceVersion,
		"health":  "/health",
		"metrics": "/metrics",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:      "healthy",
		ModelLoaded: s.svc.ModelLoaded(),
		Version:     common.ServiceVersion,
	}
	if !resp.ModelLoaded {
		resp.Status = "unhealthy"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.Info()
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if !s.svc.ModelLoaded() {
		s.handleServiceError(w, r, serving.ErrModelUnavailable)
		return
	}

	var rec serving.CustomerRecord
	if !decodeBody(w, r, &rec) {
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	result, err := s.svc.Predict(ctx, rec)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePredictBatch(w http.ResponseWriter, r *http.Request) {
	if !s.svc.ModelLoaded() {
		s.handleServiceError(w, r, serving.ErrModelUnavailable)
		return
	}

	var req batchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	result, err := s.svc.PredictBatch(ctx, req.Customers)
	if errors.Is(err, serving.ErrEmptyAggregate) && result != nil {
		writeError(w, http.StatusUnprocessableEntity, errorResponse{
			Error:       "validation_error",
			Message:     "No customer in the batch passed validation",
			Predictions: result.Predictions,
		})
		return
	}
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleProbability scores a customer given as query parameters. Optional
// attributes that are not supplied are derived.
func (s *Server) handleProbability(w http.ResponseWriter, r *http.Request) {
	if !s.svc.ModelLoaded() {
		s.handleServiceError(w, r, serving.ErrModelUnavailable)
		return
	}

	query := r.URL.Query()
	rec := make(serving.CustomerRecord)
	for _, field := range serving.DefaultSchema() {
		if query.Has(field.Name) {
			rec[field.Name] = query.Get(field.Name)
		}
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	result, err := s.svc.Predict(ctx, rec)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, probabilityResponse{
		ChurnProbability: result.ChurnProbability,
		RiskLevel:        result.RiskLevel,
	})
}
