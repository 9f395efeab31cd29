package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"raggingwatch/internal/complaint"
	"raggingwatch/internal/evidence"
	"raggingwatch/internal/middleware"
	"raggingwatch/internal/util"
)

type reportRequest struct {
	IncidentDate     string          `json:"incident_date"`
	IncidentTime     string          `json:"incident_time"`
	IncidentLocation string          `json:"incident_location"`
	Category         string          `json:"category"`
	Description      string          `json:"description"`
	Anonymous        bool            `json:"anonymous"`
	CaptchaToken     string          `json:"captcha_token"`
	Evidence         *jsonAttachment `json:"evidence,omitempty"`
}

// jsonAttachment carries the file body base64 encoded.
type jsonAttachment struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// SubmitReport accepts a complaint as multipart/form-data (with an optional
// "evidence" file) or as JSON.
func (h *Handlers) SubmitReport(w http.ResponseWriter, r *http.Request) {
	rid := middleware.RequestID(r.Context())
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	r.Body = http.MaxBytesReader(w, r.Body, reportBodyLimit(mediaType))
	req, err := decodeReport(r, mediaType)
	if errors.Is(err, util.ErrBodyTooLarge) {
		util.WriteError(w, http.StatusRequestEntityTooLarge, "invalid_evidence", "evidence file exceeds the size limit", rid)
		return
	}
	if err != nil {
		util.WriteError(w, http.StatusBadRequest, "bad_request", "invalid request body", rid)
		return
	}
	if !h.verifyCaptcha(w, r, req.CaptchaToken) {
		return
	}

	sub := complaint.Submission{
		IncidentDate:     req.IncidentDate,
		IncidentTime:     req.IncidentTime,
		IncidentLocation: req.IncidentLocation,
		Category:         req.Category,
		Description:      req.Description,
		Anonymous:        req.Anonymous,
	}
	if req.Evidence != nil && len(req.Evidence.Data) > 0 {
		sub.Evidence = &complaint.Attachment{
			FileName:    req.Evidence.FileName,
			ContentType: req.Evidence.ContentType,
			Data:        req.Evidence.Data,
		}
	}
	receipt, err := h.engine.Submit(r.Context(), middleware.Principal(r.Context()), sub)
	if err != nil {
		h.writeComplaintError(w, r, err, false)
		return
	}
	util.WriteJSON(w, http.StatusCreated, receipt)
}

// reportBodyLimit caps the body so the largest allowed attachment still fits
// in the request's encoding. JSON carries the file base64 encoded.
func reportBodyLimit(mediaType string) int64 {
	if mediaType == "multipart/form-data" {
		return evidence.MaxSize + reportBodyOverhead
	}
	return int64(base64.StdEncoding.EncodedLen(int(evidence.MaxSize))) + reportBodyOverhead
}

func decodeReport(r *http.Request, mediaType string) (reportRequest, error) {
	var req reportRequest
	if mediaType != "multipart/form-data" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return reportRequest{}, util.BodyError(err)
		}
		return req, nil
	}

	if err := r.ParseMultipartForm(8 << 20); err != nil {
		return reportRequest{}, util.BodyError(err)
	}
	defer r.MultipartForm.RemoveAll()
	req = reportRequest{
		IncidentDate:     r.FormValue("incident_date"),
		IncidentTime:     r.FormValue("incident_time"),
		IncidentLocation: r.FormValue("incident_location"),
		Category:         r.FormValue("category"),
		Description:      r.FormValue("description"),
		Anonymous:        formBool(r.FormValue("anonymous")),
		CaptchaToken:     r.FormValue("captcha_token"),
	}
	files := r.MultipartForm.File["evidence"]
	if len(files) == 0 {
		return req, nil
	}
	fh := files[0]
	f, err := fh.Open()
	if err != nil {
		return reportRequest{}, err
	}
	defer f.Close()
	// one byte past the limit is enough for the size check to reject it
	data, err := io.ReadAll(io.LimitReader(f, evidence.MaxSize+1))
	if err != nil {
		return reportRequest{}, err
	}
	req.Evidence = &jsonAttachment{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}
	return req, nil
}

func formBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

func (h *Handlers) ReportStatus(w http.ResponseWriter, r *http.Request) {
	v, err := h.engine.PublicView(r.Context(), chi.URLParam(r, "tracking"))
	if err != nil {
		h.writeComplaintError(w, r, err, false)
		return
	}
	util.WriteJSON(w, http.StatusOK, v)
}

// ServeEvidence streams a locally stored attachment behind a signed,
// expiring link. Remote backends hand out their own URLs.
func (h *Handlers) ServeEvidence(w http.ResponseWriter, r *http.Request) {
	rid := middleware.RequestID(r.Context())
	local, ok := h.evidence.(*evidence.LocalStore)
	if !ok {
		util.WriteError(w, http.StatusNotFound, "not_found", "evidence not found", rid)
		return
	}
	ref := chi.URLParam(r, "ref")
	q := r.URL.Query()
	if !local.Verify(ref, q.Get("exp"), q.Get("sig")) {
		util.WriteError(w, http.StatusForbidden, "invalid_signature", "evidence link is invalid or has expired", rid)
		return
	}
	data, contentType, err := local.Open(r.Context(), ref)
	if errors.Is(err, evidence.ErrNotFound) {
		util.WriteError(w, http.StatusNotFound, "not_found", "evidence not found", rid)
		return
	}
	if err != nil {
		h.log.Error("open evidence", zap.String("ref", ref), zap.Error(err))
		util.WriteError(w, http.StatusInternalServerError, "storage_failure", "evidence could not be read", rid)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": ref}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handlers) ListMyComplaints(w http.ResponseWriter, r *http.Request) {
	items, err := h.engine.ListMine(r.Context(), middleware.Principal(r.Context()))
	if err != nil {
		h.writeComplaintError(w, r, err, false)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handlers) GetMyComplaint(w http.ResponseWriter, r *http.Request) {
	v, err := h.engine.OwnerView(r.Context(), middleware.Principal(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeComplaintError(w, r, err, false)
		return
	}
	util.WriteJSON(w, http.StatusOK, v)
}

func (h *Handlers) MyComplaintEvidence(w http.ResponseWriter, r *http.Request) {
	url, err := h.engine.EvidenceHandle(r.Context(), middleware.Principal(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeComplaintError(w, r, err, false)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]string{"url": url})
}
