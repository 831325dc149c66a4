package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/leave"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeValidation          = "validation_error"
	CodeInsufficientBalance = "insufficient_balance"
	CodeUnauthorized        = "unauthorized"
	CodeForbidden           = "forbidden"
	CodeNotFound            = "not_found"
	CodeConflict            = "conflict"
	CodeInternal            = "internal_error"
	CodeBadRequest          = "bad_request"
)

// statusFor maps a service error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, leave.ErrInsufficientBalance):
		return http.StatusBadRequest, CodeInsufficientBalance
	case errors.Is(err, leave.ErrValidation):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, leave.ErrUnauthorized):
		return http.StatusUnauthorized, CodeUnauthorized
	case errors.Is(err, leave.ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, leave.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, leave.ErrConflict):
		return http.StatusConflict, CodeConflict
	}
	return http.StatusInternalServerError, CodeInternal
}

// writeServiceError writes err as an ErrorResponse. Internal errors are
// logged and their message is not exposed.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, status, code, "Internal server error", nil)
		return
	}

	resp := ErrorResponse{Error: err.Error(), Code: code}
	var verr *leave.ValidationError
	var ibe *leave.InsufficientBalanceError
	switch {
	case errors.As(err, &ibe):
		resp.Error = "Not enough leave balance"
		resp.Details = map[string]string{
			"available": ibe.Available.String(),
			"requested": ibe.Requested.String(),
		}
	case errors.As(err, &verr) && verr.Field != "":
		resp.Details = map[string]string{verr.Field: verr.Message}
	}
	writeJSON(w, status, resp)
}
