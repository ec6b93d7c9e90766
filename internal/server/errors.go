package server

import (
	"fmt"
	"net/http"

	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
	"github.com/YuminosukeSato/scigo-workbench/pkg/log"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}

// statusFor maps a workbench error to an HTTP status.
func statusFor(err error) (int, string) {
	var (
		maxBytes   *http.MaxBytesError
		validation *errors.ValidationError
		parse      *errors.ParseError
		coercion   *errors.CoercionError
		dimension  *errors.DimensionError
		value      *errors.ValueError
	)
	switch {
	case errors.Is(err, errNoStore):
		return http.StatusServiceUnavailable, "StoreDisabled"
	case errors.Is(err, errors.ErrModelNotFitted):
		return http.StatusConflict, "NotFittedError"
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound, "NotFound"
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "RequestTooLarge"
	case errors.As(err, &validation):
		return http.StatusBadRequest, "ValidationError"
	case errors.As(err, &parse):
		return http.StatusBadRequest, "ParseError"
	case errors.As(err, &coercion):
		return http.StatusBadRequest, "CoercionError"
	case errors.As(err, &dimension):
		return http.StatusBadRequest, "DimensionError"
	case errors.As(err, &value):
		return http.StatusBadRequest, "ValueError"
	}
	return http.StatusInternalServerError, fmt.Sprintf("%T", err)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err, "path", r.URL.Path)
	} else {
		s.logger.Debug("request rejected", "error", err, log.ErrorTypeKey, kind, "path", r.URL.Path)
	}
	s.writeJSON(w, status, ErrorResponse{Error: err.Error(), Type: kind})
}
