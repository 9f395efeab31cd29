package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"raggingwatch/internal/complaint"
	"raggingwatch/internal/middleware"
	"raggingwatch/internal/models"
	"raggingwatch/internal/util"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h *Handlers) AdminListComplaints(w http.ResponseWriter, r *http.Request) {
	page, pageSize := parsePagination(r)
	items, total, err := h.engine.ListAll(r.Context(), middleware.Principal(r.Context()), complaint.ListFilter{
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("q"),
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	})
	if err != nil {
		h.writeComplaintError(w, r, err, true)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"items": items, "total": total, "page": page, "page_size": pageSize})
}

func (h *Handlers) AdminGetComplaint(w http.ResponseWriter, r *http.Request) {
	v, err := h.engine.AdminView(r.Context(), middleware.Principal(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeComplaintError(w, r, err, true)
		return
	}
	util.WriteJSON(w, http.StatusOK, v)
}

func (h *Handlers) AdminComplaintHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.engine.History(r.Context(), middleware.Principal(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeComplaintError(w, r, err, true)
		return
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (h *Handlers) AdminComplaintEvidence(w http.ResponseWriter, r *http.Request) {
	url, err := h.engine.EvidenceHandle(r.Context(), middleware.Principal(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeComplaintError(w, r, err, true)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *Handlers) AdminTransition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status        string  `json:"status"`
		InternalNotes *string `json:"internal_notes"`
		PublicNotes   *string `json:"public_notes"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := h.engine.Transition(r.Context(), middleware.Principal(r.Context()), chi.URLParam(r, "id"), complaint.TransitionRequest{
		Status:        req.Status,
		InternalNotes: req.InternalNotes,
		PublicNotes:   req.PublicNotes,
	})
	if err != nil {
		h.writeComplaintError(w, r, err, true)
		return
	}
	util.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handlers) AdminStats(w http.ResponseWriter, r *http.Request) {
	dash, err := h.analytics.Dashboard(r.Context())
	h.writeAnalytics(w, r, dash, err)
}

func (h *Handlers) AdminMonthly(w http.ResponseWriter, r *http.Request) {
	items, err := h.analytics.MonthlyTrend(r.Context())
	h.writeAnalytics(w, r, map[string]any{"items": items}, err)
}

func (h *Handlers) AdminCategories(w http.ResponseWriter, r *http.Request) {
	items, err := h.analytics.Categories(r.Context())
	h.writeAnalytics(w, r, map[string]any{"items": items}, err)
}

func (h *Handlers) AdminStatuses(w http.ResponseWriter, r *http.Request) {
	items, err := h.analytics.Statuses(r.Context())
	h.writeAnalytics(w, r, map[string]any{"items": items}, err)
}

func (h *Handlers) AdminLocations(w http.ResponseWriter, r *http.Request) {
	items, err := h.analytics.Locations(r.Context())
	h.writeAnalytics(w, r, map[string]any{"items": items}, err)
}

func (h *Handlers) AdminResponseTimes(w http.ResponseWriter, r *http.Request) {
	rt, err := h.analytics.ResponseTimes(r.Context())
	h.writeAnalytics(w, r, rt, err)
}

func (h *Handlers) writeAnalytics(w http.ResponseWriter, r *http.Request, payload any, err error) {
	if err != nil {
		util.WriteError(w, http.StatusInternalServerError, "storage_failure", err.Error(), middleware.RequestID(r.Context()))
		return
	}
	util.WriteJSON(w, http.StatusOK, payload)
}

func (h *Handlers) AdminExport(w http.ResponseWriter, r *http.Request) {
	rid := middleware.RequestID(r.Context())
	var status models.Status
	if s := strings.TrimSpace(r.URL.Query().Get("status")); s != "" && !strings.EqualFold(s, "all") {
		st, ok := complaint.ParseStatus(s)
		if !ok {
			util.WriteError(w, http.StatusBadRequest, "validation_failed", fmt.Sprintf("unknown status %q", s), rid)
			return
		}
		status = st
	}
	data, err := h.analytics.ExportXLSX(r.Context(), status)
	if err != nil {
		util.WriteError(w, http.StatusInternalServerError, "storage_failure", err.Error(), rid)
		return
	}
	name := "complaints-" + time.Now().UTC().Format("20060102") + ".xlsx"
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func parsePagination(r *http.Request) (int, int) {
	page := 1
	pageSize := 25
	if v := r.URL.Query().Get("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			page = p
		}
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		if ps, err := strconv.Atoi(v); err == nil {
			if ps < 1 {
				ps = 1
			}
			if ps > 100 {
				ps = 100
			}
			pageSize = ps
		}
	}
	return page, pageSize
}
