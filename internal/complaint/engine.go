package complaint

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"raggingwatch/internal/evidence"
	"raggingwatch/internal/models"
)

const (
	maxTrackingAttempts = 5
	submittedNote       = "Complaint submitted"

	maxLocationLen    = 255
	maxDescriptionLen = 10000
	maxNotesLen       = 10000
)

// Repository is the persistence the engine needs. *store.Store satisfies it.
type Repository interface {
	CreateComplaint(ctx context.Context, c models.Complaint, notes string) (models.Complaint, models.HistoryEntry, error)
	GetComplaintByID(ctx context.Context, id string) (models.Complaint, error)
	GetComplaintByTrackingNumber(ctx context.Context, number string) (models.Complaint, error)
	ListComplaintsByOwner(ctx context.Context, ownerID string) ([]models.Complaint, error)
	ListComplaints(ctx context.Context, query models.ComplaintQuery) ([]models.Complaint, int, error)
	ApplyTransition(ctx context.Context, id string, status models.Status, internalNotes, publicNotes, historyNotes *string, actingAdminID string) (models.HistoryEntry, error)
	ListHistory(ctx context.Context, complaintID string) ([]models.HistoryEntry, error)
}

type Options struct {
	// ViewTTL bounds evidence handles issued to admins and owners.
	ViewTTL time.Duration
	// ReceiptTTL bounds the handle returned with a fresh submission.
	ReceiptTTL time.Duration
}

type Engine struct {
	repo       Repository
	evidence   evidence.Store
	log        *zap.Logger
	viewTTL    time.Duration
	receiptTTL time.Duration
	now        func() time.Time
	intn       func(int) int
}

func NewEngine(repo Repository, ev evidence.Store, log *zap.Logger, opts Options) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.ViewTTL <= 0 {
		opts.ViewTTL = time.Hour
	}
	if opts.ReceiptTTL <= 0 {
		opts.ReceiptTTL = 7 * 24 * time.Hour
	}
	return &Engine{
		repo:       repo,
		evidence:   ev,
		log:        log,
		viewTTL:    opts.ViewTTL,
		receiptTTL: opts.ReceiptTTL,
		now:        func() time.Time { return time.Now().UTC() },
		intn:       rand.Intn,
	}
}

type Attachment struct {
	FileName    string
	ContentType string
	Data        []byte
}

type Submission struct {
	IncidentDate     string
	IncidentTime     string
	IncidentLocation string
	Category         string
	Description      string
	Anonymous        bool
	Evidence         *Attachment
}

type Receipt struct {
	TrackingNumber string `json:"tracking_number"`
	EvidenceURL    string `json:"evidence_url,omitempty"`
}

type TransitionRequest struct {
	Status        string
	InternalNotes *string
	PublicNotes   *string
}

// Submit validates and records a new complaint. The owning account is set
// only for a student session submitting without the anonymous flag.
func (e *Engine) Submit(ctx context.Context, submitter models.Principal, in Submission) (Receipt, error) {
	c, err := validateSubmission(in)
	if err != nil {
		return Receipt{}, err
	}
	var att *Attachment
	if in.Evidence != nil && len(in.Evidence.Data) > 0 {
		att = in.Evidence
		if err := evidence.Validate(att.ContentType, int64(len(att.Data))); err != nil {
			return Receipt{}, fmt.Errorf("%w: %v", ErrInvalidEvidence, err)
		}
		if e.evidence == nil {
			return Receipt{}, fmt.Errorf("%w: evidence storage is not configured", ErrStorage)
		}
	}
	if submitter.IsStudent() && !c.Anonymous {
		owner := submitter.ID
		c.OwnerID = &owner
	}
	c.Status = models.StatusPending

	var created models.Complaint
	for attempt := 1; ; attempt++ {
		now := e.now()
		c.TrackingNumber = formatTrackingNumber(now, e.intn)
		c.SubmittedAt = now
		c.Evidence = nil

		if att != nil {
			key := evidence.ObjectKey(c.TrackingNumber, now, att.ContentType)
			ref, err := e.evidence.Put(ctx, key, att.ContentType, att.Data)
			if errors.Is(err, evidence.ErrKeyExists) {
				if attempt < maxTrackingAttempts {
					e.log.Debug("evidence key taken, retrying", zap.String("key", key), zap.Int("attempt", attempt))
					continue
				}
				return Receipt{}, fmt.Errorf("%w: %v", ErrConflict, err)
			}
			if err != nil {
				if errors.Is(err, evidence.ErrInvalidEvidence) {
					return Receipt{}, fmt.Errorf("%w: %v", ErrInvalidEvidence, err)
				}
				return Receipt{}, fmt.Errorf("%w: store evidence: %v", ErrStorage, err)
			}
			c.Evidence = &models.Evidence{
				Ref:         ref,
				FileName:    cleanFileName(att.FileName),
				ContentType: evidence.NormalizeContentType(att.ContentType),
				Size:        int64(len(att.Data)),
			}
		}

		created, _, err = e.repo.CreateComplaint(ctx, c, submittedNote)
		if err == nil {
			break
		}
		if c.Evidence != nil {
			if derr := e.evidence.Delete(ctx, c.Evidence.Ref); derr != nil {
				e.log.Warn("failed to remove orphaned evidence", zap.String("ref", c.Evidence.Ref), zap.Error(derr))
			}
		}
		err = repoErr("insert complaint", err)
		if errors.Is(err, ErrConflict) && attempt < maxTrackingAttempts {
			e.log.Debug("tracking number collision, retrying", zap.String("tracking_number", c.TrackingNumber), zap.Int("attempt", attempt))
			continue
		}
		return Receipt{}, err
	}

	receipt := Receipt{TrackingNumber: created.TrackingNumber}
	if created.Evidence != nil {
		url, err := e.evidence.Handle(ctx, created.Evidence.Ref, e.receiptTTL)
		if err != nil {
			e.log.Warn("failed to sign evidence receipt", zap.String("tracking_number", created.TrackingNumber), zap.Error(err))
		} else {
			receipt.EvidenceURL = url
		}
	}
	e.log.Info("complaint submitted",
		zap.String("tracking_number", created.TrackingNumber),
		zap.Bool("anonymous", created.Anonymous),
		zap.Bool("has_evidence", created.Evidence != nil),
	)
	return receipt, nil
}

// Transition moves a complaint to a new status and records the change in its
// history. Nil notes leave the stored notes unchanged.
func (e *Engine) Transition(ctx context.Context, admin models.Principal, id string, req TransitionRequest) (models.HistoryEntry, error) {
	if !admin.IsAdmin() {
		return models.HistoryEntry{}, ErrUnauthorized
	}
	to, ok := ParseStatus(req.Status)
	if !ok {
		return models.HistoryEntry{}, &ValidationError{Fields: []string{"status"}, Reason: fmt.Sprintf("unknown status %q", req.Status)}
	}
	var bad []string
	if req.InternalNotes != nil && len(*req.InternalNotes) > maxNotesLen {
		bad = append(bad, "internal_notes")
	}
	if req.PublicNotes != nil && len(*req.PublicNotes) > maxNotesLen {
		bad = append(bad, "public_notes")
	}
	if len(bad) > 0 {
		return models.HistoryEntry{}, &ValidationError{Fields: bad}
	}
	current, err := e.repo.GetComplaintByID(ctx, id)
	if err != nil {
		return models.HistoryEntry{}, repoErr("load complaint", err)
	}
	if !CanTransition(current.Status, to) {
		return models.HistoryEntry{}, &ValidationError{
			Fields: []string{"status"},
			Reason: fmt.Sprintf("cannot move complaint from %s to %s", current.Status, to),
		}
	}
	var historyNotes *string
	if req.InternalNotes != nil && strings.TrimSpace(*req.InternalNotes) != "" {
		historyNotes = req.InternalNotes
	}
	entry, err := e.repo.ApplyTransition(ctx, id, to, req.InternalNotes, req.PublicNotes, historyNotes, admin.ID)
	if err != nil {
		return models.HistoryEntry{}, repoErr("apply transition", err)
	}
	e.log.Info("complaint status changed",
		zap.String("complaint_id", id),
		zap.String("from", string(current.Status)),
		zap.String("to", string(to)),
		zap.String("admin_id", admin.ID),
	)
	return entry, nil
}

// PublicView looks a complaint up by tracking number. No session is needed.
func (e *Engine) PublicView(ctx context.Context, trackingNumber string) (View, error) {
	number, ok := NormalizeTrackingNumber(trackingNumber)
	if !ok {
		return View{}, ErrNotFound
	}
	c, err := e.repo.GetComplaintByTrackingNumber(ctx, number)
	if err != nil {
		return View{}, repoErr("get complaint", err)
	}
	return publicView(c), nil
}

// OwnerView returns a complaint by id for the student who filed it. Anyone
// else gets ErrNotFound.
func (e *Engine) OwnerView(ctx context.Context, student models.Principal, id string) (View, error) {
	c, err := e.owned(ctx, student, id)
	if err != nil {
		return View{}, err
	}
	return publicView(c), nil
}

func (e *Engine) owned(ctx context.Context, student models.Principal, id string) (models.Complaint, error) {
	if !student.IsStudent() {
		return models.Complaint{}, ErrUnauthorized
	}
	c, err := e.repo.GetComplaintByID(ctx, id)
	if err != nil {
		return models.Complaint{}, repoErr("get complaint", err)
	}
	if c.Anonymous || c.OwnerID == nil || *c.OwnerID != student.ID {
		return models.Complaint{}, ErrNotFound
	}
	return c, nil
}

func (e *Engine) AdminView(ctx context.Context, admin models.Principal, id string) (AdminView, error) {
	if !admin.IsAdmin() {
		return AdminView{}, ErrUnauthorized
	}
	c, err := e.repo.GetComplaintByID(ctx, id)
	if err != nil {
		return AdminView{}, repoErr("get complaint", err)
	}
	return adminView(c), nil
}

// ListMine returns the student's own complaints, newest first.
func (e *Engine) ListMine(ctx context.Context, student models.Principal) ([]View, error) {
	if !student.IsStudent() {
		return nil, ErrUnauthorized
	}
	items, err := e.repo.ListComplaintsByOwner(ctx, student.ID)
	if err != nil {
		return nil, repoErr("list complaints", err)
	}
	out := make([]View, 0, len(items))
	for _, c := range items {
		out = append(out, publicView(c))
	}
	return out, nil
}

type ListFilter struct {
	Status string
	Search string
	Limit  int
	Offset int
}

// ListAll pages through every complaint for the admin dashboard.
func (e *Engine) ListAll(ctx context.Context, admin models.Principal, f ListFilter) ([]AdminView, int, error) {
	if !admin.IsAdmin() {
		return nil, 0, ErrUnauthorized
	}
	q := models.ComplaintQuery{Search: f.Search, Limit: f.Limit, Offset: f.Offset}
	if s := strings.TrimSpace(f.Status); s != "" && !strings.EqualFold(s, "all") {
		st, ok := ParseStatus(s)
		if !ok {
			return nil, 0, &ValidationError{Fields: []string{"status"}, Reason: fmt.Sprintf("unknown status %q", f.Status)}
		}
		q.Status = st
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 25
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	items, total, err := e.repo.ListComplaints(ctx, q)
	if err != nil {
		return nil, 0, repoErr("list complaints", err)
	}
	out := make([]AdminView, 0, len(items))
	for _, c := range items {
		out = append(out, adminView(c))
	}
	return out, total, nil
}

func (e *Engine) History(ctx context.Context, admin models.Principal, id string) ([]models.HistoryEntry, error) {
	if !admin.IsAdmin() {
		return nil, ErrUnauthorized
	}
	if _, err := e.repo.GetComplaintByID(ctx, id); err != nil {
		return nil, repoErr("get complaint", err)
	}
	entries, err := e.repo.ListHistory(ctx, id)
	if err != nil {
		return nil, repoErr("list history", err)
	}
	return entries, nil
}

// EvidenceHandle returns a short-lived URL for the complaint's attachment.
// Admins may fetch any attachment, students only their own.
func (e *Engine) EvidenceHandle(ctx context.Context, p models.Principal, id string) (string, error) {
	var c models.Complaint
	var err error
	switch {
	case p.IsAdmin():
		c, err = e.repo.GetComplaintByID(ctx, id)
		if err != nil {
			err = repoErr("get complaint", err)
		}
	case p.IsStudent():
		c, err = e.owned(ctx, p, id)
	default:
		return "", ErrUnauthorized
	}
	if err != nil {
		return "", err
	}
	if c.Evidence == nil || e.evidence == nil {
		return "", ErrNotFound
	}
	url, err := e.evidence.Handle(ctx, c.Evidence.Ref, e.viewTTL)
	if errors.Is(err, evidence.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: sign evidence: %v", ErrStorage, err)
	}
	return url, nil
}

func validateSubmission(in Submission) (models.Complaint, error) {
	c := models.Complaint{
		IncidentDate:     strings.TrimSpace(in.IncidentDate),
		IncidentTime:     strings.TrimSpace(in.IncidentTime),
		IncidentLocation: strings.TrimSpace(in.IncidentLocation),
		Description:      strings.TrimSpace(in.Description),
		Anonymous:        in.Anonymous,
	}
	var bad []string
	if _, err := time.Parse("2006-01-02", c.IncidentDate); err != nil {
		bad = append(bad, "incident_date")
	}
	if !validClock(c.IncidentTime) {
		bad = append(bad, "incident_time")
	}
	if c.IncidentLocation == "" || len(c.IncidentLocation) > maxLocationLen {
		bad = append(bad, "incident_location")
	}
	if cat := strings.ToLower(strings.TrimSpace(in.Category)); cat != "" {
		v := models.Category(cat)
		if v.Valid() {
			c.Category = &v
		} else {
			bad = append(bad, "category")
		}
	}
	if c.Description == "" || len(c.Description) > maxDescriptionLen {
		bad = append(bad, "description")
	}
	if len(bad) > 0 {
		return models.Complaint{}, &ValidationError{Fields: bad}
	}
	return c, nil
}

func validClock(s string) bool {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func cleanFileName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if len(name) > 255 {
		name = name[len(name)-255:]
	}
	return name
}
