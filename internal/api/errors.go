package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"raggingwatch/internal/captcha"
	"raggingwatch/internal/complaint"
	"raggingwatch/internal/middleware"
	"raggingwatch/internal/service"
	"raggingwatch/internal/util"
)

// writeComplaintError maps engine errors onto HTTP responses. Submitter
// facing routes pass verbose=false so storage details stay in the logs.
func (h *Handlers) writeComplaintError(w http.ResponseWriter, r *http.Request, err error, verbose bool) {
	rid := middleware.RequestID(r.Context())
	var ve *complaint.ValidationError
	switch {
	case errors.As(err, &ve):
		util.WriteFieldError(w, http.StatusBadRequest, "validation_failed", ve.Error(), ve.Fields, rid)
	case errors.Is(err, complaint.ErrValidation):
		util.WriteError(w, http.StatusBadRequest, "validation_failed", err.Error(), rid)
	case errors.Is(err, complaint.ErrInvalidEvidence):
		msg := "evidence file was rejected"
		if verbose {
			msg = err.Error()
		}
		util.WriteError(w, http.StatusBadRequest, "invalid_evidence", msg, rid)
	case errors.Is(err, complaint.ErrUnauthorized):
		util.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required", rid)
	case errors.Is(err, complaint.ErrNotFound):
		util.WriteError(w, http.StatusNotFound, "not_found", "complaint not found", rid)
	case errors.Is(err, complaint.ErrConflict):
		util.WriteError(w, http.StatusConflict, "conflict", "could not allocate a tracking number, please retry", rid)
	default:
		h.log.Error("complaint request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", rid),
			zap.Error(err),
		)
		msg := "the request could not be completed"
		if verbose {
			msg = err.Error()
		}
		util.WriteError(w, http.StatusInternalServerError, "storage_failure", msg, rid)
	}
}

func (h *Handlers) writeAccountError(w http.ResponseWriter, r *http.Request, err error) {
	rid := middleware.RequestID(r.Context())
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		util.WriteError(w, http.StatusBadRequest, "validation_failed", err.Error(), rid)
	case errors.Is(err, service.ErrEmailTaken):
		util.WriteError(w, http.StatusConflict, "email_taken", "An account with this email already exists", rid)
	case errors.Is(err, service.ErrInvalidCredentials):
		util.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password", rid)
	case errors.Is(err, service.ErrEmailNotVerified):
		util.WriteError(w, http.StatusForbidden, "email_not_verified", "Please verify your email before logging in", rid)
	case errors.Is(err, service.ErrInvalidToken):
		util.WriteError(w, http.StatusBadRequest, "invalid_token", "Invalid or already used verification token", rid)
	default:
		h.log.Error("account request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", rid),
			zap.Error(err),
		)
		util.WriteError(w, http.StatusInternalServerError, "internal_error", "the request could not be completed", rid)
	}
}

// verifyCaptcha writes the error response itself and reports whether the
// handler may continue.
func (h *Handlers) verifyCaptcha(w http.ResponseWriter, r *http.Request, token string) bool {
	err := h.captcha.Verify(r.Context(), token, middleware.ClientIP(r, h.cfg.TrustProxy))
	if err == nil {
		return true
	}
	rid := middleware.RequestID(r.Context())
	switch {
	case errors.Is(err, captcha.ErrCaptchaUnavailable):
		h.log.Warn("captcha provider unavailable", zap.Error(err))
		util.WriteError(w, http.StatusServiceUnavailable, "captcha_unavailable", "captcha verification is temporarily unavailable", rid)
	default:
		util.WriteError(w, http.StatusBadRequest, "captcha_required", "captcha validation failed", rid)
	}
	return false
}
