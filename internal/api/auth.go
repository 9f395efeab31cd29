package api

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"raggingwatch/internal/middleware"
	"raggingwatch/internal/models"
	"raggingwatch/internal/util"
)

type accountResponse struct {
	ID            string      `json:"id"`
	Email         string      `json:"email"`
	FullName      string      `json:"full_name"`
	Role          models.Role `json:"role"`
	EmailVerified bool        `json:"email_verified"`
	CSRFToken     string      `json:"csrf_token,omitempty"`
}

func accountJSON(a models.Account) accountResponse {
	return accountResponse{ID: a.ID, Email: a.Email, FullName: a.FullName, Role: a.Role, EmailVerified: a.EmailVerified}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := util.DecodeJSON(w, r, maxJSONBody, dst)
	switch {
	case err == nil:
		return true
	case errors.Is(err, util.ErrBodyTooLarge):
		util.WriteError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large", middleware.RequestID(r.Context()))
	default:
		util.WriteError(w, http.StatusBadRequest, "bad_request", "invalid json", middleware.RequestID(r.Context()))
	}
	return false
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email        string `json:"email"`
		Password     string `json:"password"`
		FullName     string `json:"full_name"`
		CaptchaToken string `json:"captcha_token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !h.verifyCaptcha(w, r, req.CaptchaToken) {
		return
	}
	a, err := h.accounts.RegisterStudent(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		h.writeAccountError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusCreated, accountJSON(a))
}

func (h *Handlers) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := h.accounts.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		h.writeAccountError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, accountJSON(a))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := h.accounts.LoginStudent(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeAccountError(w, r, err)
		return
	}
	token, _, err := h.sessions.Issue(models.StudentPrincipal(a.ID, a.Email, a.FullName))
	if err != nil {
		h.writeAccountError(w, r, err)
		return
	}
	h.setSessionCookie(w, r, h.cfg.StudentCookieName, token)
	util.WriteJSON(w, http.StatusOK, accountJSON(a))
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.endSession(r, models.RoleStudent)
	h.clearCookie(w, r, h.cfg.StudentCookieName, true)
	util.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	util.WriteJSON(w, http.StatusOK, principalJSON(middleware.Principal(r.Context())))
}

func (h *Handlers) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := h.accounts.LoginAdmin(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeAccountError(w, r, err)
		return
	}
	token, _, err := h.sessions.Issue(models.AdminPrincipal(a.ID, a.Email, a.FullName))
	if err != nil {
		h.writeAccountError(w, r, err)
		return
	}
	csrfToken := randomToken()
	h.setSessionCookie(w, r, h.cfg.AdminCookieName, token)
	h.setCSRFCookie(w, r, csrfToken)
	out := accountJSON(a)
	out.CSRFToken = csrfToken
	util.WriteJSON(w, http.StatusOK, out)
}

func (h *Handlers) AdminLogout(w http.ResponseWriter, r *http.Request) {
	h.endSession(r, models.RoleAdmin)
	h.clearCookie(w, r, h.cfg.AdminCookieName, true)
	h.clearCookie(w, r, h.cfg.CSRFCookieName, false)
	util.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) AdminMe(w http.ResponseWriter, r *http.Request) {
	util.WriteJSON(w, http.StatusOK, principalJSON(middleware.Principal(r.Context())))
}

func principalJSON(p models.Principal) map[string]any {
	return map[string]any{"id": p.ID, "email": p.Email, "full_name": p.Name, "role": p.Kind}
}

// endSession revokes the session resolved by OptionalSession, if any.
func (h *Handlers) endSession(r *http.Request, role models.Role) {
	claims, ok := middleware.Claims(r.Context())
	if !ok {
		return
	}
	if err := h.sessions.Revoke(r.Context(), claims); err != nil {
		h.log.Warn("session revoke failed", zap.String("role", string(role)), zap.Error(err))
	}
}

func randomToken() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, r *http.Request, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.ResolveCookieSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.sessions.TTL() / time.Second),
	})
}

// setCSRFCookie issues the double-submit token; scripts must be able to read
// it to echo it in X-CSRF-Token.
func (h *Handlers) setCSRFCookie(w http.ResponseWriter, r *http.Request, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CSRFCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: false,
		Secure:   h.cfg.ResolveCookieSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.sessions.TTL() / time.Second),
	})
}

func (h *Handlers) clearCookie(w http.ResponseWriter, r *http.Request, name string, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: httpOnly,
		Secure:   h.cfg.ResolveCookieSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(1, 0).UTC(),
	})
}
