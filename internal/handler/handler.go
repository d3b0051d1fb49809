// Package handler exposes the services over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"commerceflow/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

var statusByCode = map[string]int{
	model.ErrCodeInvalidJSON:      http.StatusBadRequest,
	model.ErrCodeMissingField:     http.StatusBadRequest,
	model.ErrCodeInvalidQuantity:  http.StatusBadRequest,
	model.ErrCodeValidation:       http.StatusBadRequest,
	model.ErrCodeUnauthorised:     http.StatusUnauthorized,
	model.ErrCodeForbidden:        http.StatusForbidden,
	model.ErrCodeNotFound:         http.StatusNotFound,
	model.ErrCodeConflict:         http.StatusConflict,
	model.ErrCodeInvalidOperation: http.StatusUnprocessableEntity,
	model.ErrCodeGatewayFailure:   http.StatusBadGateway,
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps err to a status and an ErrorResponse. Internal errors are
// logged and hidden from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error, logger zerolog.Logger) {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, model.ErrorResponse{
			Error:   model.ErrCodeValidation,
			Message: verr.Error(),
			Fields:  verr.Fields,
		})
		return
	}

	code := model.ErrorCode(err)
	status, ok := statusByCode[code]
	if !ok {
		logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, model.ErrorResponse{
			Error:   model.ErrCodeInternalError,
			Message: "internal server error",
		})
		return
	}

	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("upstream failure")
	} else {
		logger.Debug().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request rejected")
	}
	writeJSON(w, status, model.ErrorResponse{Error: code, Message: err.Error()})
}

func badRequest(code, message string) error {
	return model.NewDomainError(code, message)
}

// decodeJSON reads a JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return badRequest(model.ErrCodeInvalidJSON, "invalid request body")
	}
	return nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return uuid.Nil, badRequest(model.ErrCodeMissingField, name+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, badRequest(model.ErrCodeValidation, "invalid "+name+" format")
	}
	return id, nil
}

// intQuery returns the integer query parameter name, or def when absent.
func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest(model.ErrCodeValidation, "invalid "+name+" parameter")
	}
	return v, nil
}

func pagination(r *http.Request, defaultLimit int) (limit, offset int, err error) {
	if limit, err = intQuery(r, "limit", defaultLimit); err != nil {
		return 0, 0, err
	}
	if offset, err = intQuery(r, "offset", 0); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}
