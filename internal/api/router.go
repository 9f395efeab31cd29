package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"raggingwatch/internal/analytics"
	"raggingwatch/internal/captcha"
	"raggingwatch/internal/complaint"
	"raggingwatch/internal/config"
	"raggingwatch/internal/evidence"
	"raggingwatch/internal/middleware"
	"raggingwatch/internal/models"
	"raggingwatch/internal/rate"
	"raggingwatch/internal/service"
	"raggingwatch/internal/session"
	"raggingwatch/internal/store"
	"raggingwatch/internal/util"
	"raggingwatch/internal/version"
)

// Deps are the collaborators the HTTP layer is built from. Captcha and
// Limiter default to a no-op verifier and a fresh in-memory limiter.
type Deps struct {
	Config    config.Config
	Store     *store.Store
	Accounts  *service.Service
	Sessions  *session.Manager
	Engine    *complaint.Engine
	Analytics *analytics.Aggregator
	Evidence  evidence.Store
	Captcha   captcha.Verifier
	Limiter   *rate.Limiter
	Log       *zap.Logger
}

type Handlers struct {
	cfg       config.Config
	st        *store.Store
	accounts  *service.Service
	sessions  *session.Manager
	engine    *complaint.Engine
	analytics *analytics.Aggregator
	evidence  evidence.Store
	captcha   captcha.Verifier
	limiter   *rate.Limiter
	log       *zap.Logger
}

const (
	// multipart framing and text fields on top of the largest attachment
	reportBodyOverhead = 1 << 20
	maxJSONBody        = 1 << 20
)

func NewRouter(d Deps) http.Handler {
	h := &Handlers{
		cfg:       d.Config,
		st:        d.Store,
		accounts:  d.Accounts,
		sessions:  d.Sessions,
		engine:    d.Engine,
		analytics: d.Analytics,
		evidence:  d.Evidence,
		captcha:   d.Captcha,
		limiter:   d.Limiter,
		log:       d.Log,
	}
	if h.captcha == nil {
		h.captcha = captcha.NoopVerifier{}
	}
	if h.limiter == nil {
		h.limiter = rate.NewLimiter()
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.RequestLogger(h.log, h.cfg.TrustProxy))
	r.Use(middleware.SecurityHeaders)
	if len(h.cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "X-CSRF-Token"},
			ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health/live", h.Live)
	r.Get("/health/ready", h.Ready)

	trust := h.cfg.TrustProxy
	studentCookie, adminCookie := h.cfg.StudentCookieName, h.cfg.AdminCookieName

	r.Route("/api/v1", func(r chi.Router) {
		r.With(
			middleware.RateLimit(h.limiter, rate.ReportSubmission, trust),
			middleware.OptionalSession(h.sessions, studentCookie, models.RoleStudent),
		).Post("/reports", h.SubmitReport)
		r.With(middleware.RateLimit(h.limiter, rate.StatusLookup, trust)).Get("/status/{tracking}", h.ReportStatus)
		r.Get("/evidence/{ref}", h.ServeEvidence)

		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.RateLimit(h.limiter, rate.Register, trust)).Post("/register", h.Register)
			r.With(middleware.RateLimit(h.limiter, rate.VerifyEmail, trust)).Post("/verify", h.VerifyEmail)
			r.With(middleware.RateLimit(h.limiter, rate.StudentLogin, trust)).Post("/login", h.Login)
			r.With(middleware.OptionalSession(h.sessions, studentCookie, models.RoleStudent)).Post("/logout", h.Logout)
			r.With(middleware.RequireSession(h.sessions, studentCookie, models.RoleStudent)).Get("/me", h.Me)
		})

		r.Route("/me", func(r chi.Router) {
			r.Use(middleware.RequireSession(h.sessions, studentCookie, models.RoleStudent))
			r.Get("/complaints", h.ListMyComplaints)
			r.Get("/complaints/{id}", h.GetMyComplaint)
			r.Get("/complaints/{id}/evidence", h.MyComplaintEvidence)
		})

		r.Route("/admin", func(r chi.Router) {
			r.With(middleware.RateLimit(h.limiter, rate.AdminLogin, trust)).Post("/login", h.AdminLogin)
			r.With(middleware.OptionalSession(h.sessions, adminCookie, models.RoleAdmin)).Post("/logout", h.AdminLogout)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireSession(h.sessions, adminCookie, models.RoleAdmin))
				r.Use(middleware.CSRFFromCookie(h.cfg.CSRFCookieName))
				r.Get("/me", h.AdminMe)
				r.Get("/complaints", h.AdminListComplaints)
				r.Get("/complaints/{id}", h.AdminGetComplaint)
				r.Get("/complaints/{id}/history", h.AdminComplaintHistory)
				r.Get("/complaints/{id}/evidence", h.AdminComplaintEvidence)
				r.Post("/complaints/{id}/transition", h.AdminTransition)
				r.Get("/stats", h.AdminStats)
				r.Get("/analytics/monthly", h.AdminMonthly)
				r.Get("/analytics/categories", h.AdminCategories)
				r.Get("/analytics/statuses", h.AdminStatuses)
				r.Get("/analytics/locations", h.AdminLocations)
				r.Get("/analytics/response-times", h.AdminResponseTimes)
				r.Get("/export.xlsx", h.AdminExport)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		util.WriteError(w, http.StatusNotFound, "not_found", "route not found", middleware.RequestID(r.Context()))
	})
	return r
}

func (h *Handlers) Live(w http.ResponseWriter, r *http.Request) {
	util.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": version.Current()})
}

// Ready reports per-component health. Any failing component turns the
// response into a 503.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	comps := map[string]any{}
	ok := true
	check := func(name string, err error) {
		if err != nil {
			ok = false
			h.log.Warn("readiness check failed", zap.String("component", name), zap.Error(err))
			comps[name] = map[string]any{"ok": false}
			return
		}
		comps[name] = map[string]any{"ok": true}
	}
	check("database", h.st.Ping(r.Context()))
	check("session_denylist", h.sessions.Denylist().Ping(r.Context()))
	if h.evidence != nil {
		check("evidence", h.evidence.Ping(r.Context()))
	}

	ready := map[string]any{
		"status":     "ready",
		"checked_at": time.Now().UTC().Format(time.RFC3339),
		"components": comps,
	}
	if ok {
		util.WriteJSON(w, http.StatusOK, ready)
		return
	}
	ready["status"] = "degraded"
	util.WriteJSON(w, http.StatusServiceUnavailable, ready)
}
