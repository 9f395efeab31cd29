package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"raggingwatch/internal/models"
)

const complaintColumns = `id,tracking_number,owner_id,anonymous,incident_date,incident_time,incident_location,category,description,status,internal_notes,public_notes,evidence_ref,evidence_file_name,evidence_content_type,evidence_size,submitted_at,updated_at`

// InsertComplaint writes a single complaint row. A tracking number collision
// returns ErrConflict.
func (s *Store) InsertComplaint(ctx context.Context, c models.Complaint) (string, error) {
	if err := s.insertComplaint(ctx, s.db, &c); err != nil {
		return "", err
	}
	return c.ID, nil
}

// CreateComplaint inserts the complaint and its first history row in one
// transaction.
func (s *Store) CreateComplaint(ctx context.Context, c models.Complaint, notes string) (models.Complaint, models.HistoryEntry, error) {
	var entry models.HistoryEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.insertComplaint(ctx, tx, &c); err != nil {
			return err
		}
		e, err := s.appendHistory(ctx, tx, c.ID, c.Status, &notes, nil, c.SubmittedAt)
		if err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return models.Complaint{}, models.HistoryEntry{}, err
	}
	return c, entry, nil
}

func (s *Store) insertComplaint(ctx context.Context, q queryer, c *models.Complaint) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.SubmittedAt.IsZero() {
		c.SubmittedAt = time.Now().UTC()
	}
	c.UpdatedAt = c.SubmittedAt
	if c.Anonymous {
		c.OwnerID = nil
	}
	var category *string
	if c.Category != nil {
		v := string(*c.Category)
		category = &v
	}
	var evRef, evName, evType *string
	var evSize *int64
	if c.Evidence != nil {
		evRef, evName, evType, evSize = &c.Evidence.Ref, &c.Evidence.FileName, &c.Evidence.ContentType, &c.Evidence.Size
	}
	_, err := q.ExecContext(ctx, s.q(`INSERT INTO complaints(`+complaintColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`),
		c.ID, c.TrackingNumber, c.OwnerID, c.Anonymous, c.IncidentDate, c.IncidentTime, c.IncidentLocation,
		category, c.Description, string(c.Status), c.InternalNotes, c.PublicNotes,
		evRef, evName, evType, evSize, c.SubmittedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("tracking number %s: %w", c.TrackingNumber, ErrConflict)
		}
		return err
	}
	return nil
}

func (s *Store) GetComplaintByID(ctx context.Context, id string) (models.Complaint, error) {
	return s.getComplaint(ctx, `id=?`, id)
}

func (s *Store) GetComplaintByTrackingNumber(ctx context.Context, number string) (models.Complaint, error) {
	return s.getComplaint(ctx, `tracking_number=?`, number)
}

func (s *Store) getComplaint(ctx context.Context, where string, arg any) (models.Complaint, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+complaintColumns+` FROM complaints WHERE `+where), arg)
	c, err := scanComplaint(row)
	if err == sql.ErrNoRows {
		return models.Complaint{}, ErrNotFound
	}
	if err != nil {
		return models.Complaint{}, err
	}
	return c, nil
}

// ListComplaintsByOwner returns the owner's complaints, newest first.
func (s *Store) ListComplaintsByOwner(ctx context.Context, ownerID string) ([]models.Complaint, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT `+complaintColumns+` FROM complaints WHERE owner_id=? ORDER BY submitted_at DESC, id DESC`),
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	return collectComplaints(rows)
}

// ListComplaints returns complaints matching the query, newest first, plus
// the total number of matches.
func (s *Store) ListComplaints(ctx context.Context, query models.ComplaintQuery) ([]models.Complaint, int, error) {
	where, args := complaintFilter(query)
	var total int
	if err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(1) FROM complaints`+where), args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := query.Limit
	if limit <= 0 {
		limit = 25
	}
	pageArgs := append(append([]any{}, args...), limit, query.Offset)
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT `+complaintColumns+` FROM complaints`+where+` ORDER BY submitted_at DESC, id DESC LIMIT ? OFFSET ?`),
		pageArgs...,
	)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectComplaints(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// likeEscaper makes % and _ in a search term match literally.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func complaintFilter(query models.ComplaintQuery) (string, []any) {
	var clauses []string
	var args []any
	if query.Status != "" {
		clauses = append(clauses, `status=?`)
		args = append(args, string(query.Status))
	}
	if term := strings.ToLower(strings.TrimSpace(query.Search)); term != "" {
		like := "%" + likeEscaper.Replace(term) + "%"
		clauses = append(clauses, `(LOWER(tracking_number) LIKE ? ESCAPE '!' OR LOWER(incident_location) LIKE ? ESCAPE '!' OR LOWER(description) LIKE ? ESCAPE '!')`)
		args = append(args, like, like, like)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// updateComplaint sets the status and, when non-nil, the notes. Ownership,
// anonymity and evidence columns are never touched after creation.
func (s *Store) updateComplaint(ctx context.Context, q queryer, id string, status models.Status, internalNotes, publicNotes *string, at time.Time) error {
	res, err := q.ExecContext(ctx,
		s.q(`UPDATE complaints SET status=?, internal_notes=COALESCE(?, internal_notes), public_notes=COALESCE(?, public_notes), updated_at=? WHERE id=?`),
		string(status), internalNotes, publicNotes, at, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) appendHistory(ctx context.Context, q queryer, complaintID string, status models.Status, notes, actingAdminID *string, at time.Time) (models.HistoryEntry, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return models.HistoryEntry{}, err
	}
	e := models.HistoryEntry{
		ID:            id.String(),
		ComplaintID:   complaintID,
		Status:        status,
		Notes:         notes,
		ActingAdminID: actingAdminID,
		CreatedAt:     at,
	}
	_, err = q.ExecContext(ctx,
		s.q(`INSERT INTO complaint_history(id,complaint_id,status,notes,acting_admin_id,created_at) VALUES(?,?,?,?,?,?)`),
		e.ID, e.ComplaintID, string(e.Status), e.Notes, e.ActingAdminID, e.CreatedAt,
	)
	if err != nil {
		return models.HistoryEntry{}, err
	}
	return e, nil
}

// ApplyTransition updates the complaint and appends the matching history row
// atomically: either both writes land or neither does.
func (s *Store) ApplyTransition(ctx context.Context, id string, status models.Status, internalNotes, publicNotes, historyNotes *string, actingAdminID string) (models.HistoryEntry, error) {
	var entry models.HistoryEntry
	now := time.Now().UTC()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.updateComplaint(ctx, tx, id, status, internalNotes, publicNotes, now); err != nil {
			return err
		}
		admin := actingAdminID
		e, err := s.appendHistory(ctx, tx, id, status, historyNotes, &admin, now)
		if err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		entry = e
		return nil
	})
	if err != nil {
		return models.HistoryEntry{}, err
	}
	return entry, nil
}

// ListHistory returns the audit trail oldest first.
func (s *Store) ListHistory(ctx context.Context, complaintID string) ([]models.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT id,complaint_id,status,notes,acting_admin_id,created_at FROM complaint_history WHERE complaint_id=? ORDER BY created_at ASC, id ASC`),
		complaintID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		var notes, admin sql.NullString
		if err := rows.Scan(&e.ID, &e.ComplaintID, &e.Status, &notes, &admin, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Notes = nullString(notes)
		e.ActingAdminID = nullString(admin)
		out = append(out, e)
	}
	return out, rows.Err()
}

func collectComplaints(rows *sql.Rows) ([]models.Complaint, error) {
	defer rows.Close()
	var out []models.Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanComplaint(row rowScanner) (models.Complaint, error) {
	var c models.Complaint
	var owner, category, internal, public, evRef, evName, evType sql.NullString
	var evSize sql.NullInt64
	err := row.Scan(
		&c.ID, &c.TrackingNumber, &owner, &c.Anonymous, &c.IncidentDate, &c.IncidentTime, &c.IncidentLocation,
		&category, &c.Description, &c.Status, &internal, &public,
		&evRef, &evName, &evType, &evSize, &c.SubmittedAt, &c.UpdatedAt,
	)
	if err != nil {
		return models.Complaint{}, err
	}
	if !c.Anonymous {
		c.OwnerID = nullString(owner)
	}
	if category.Valid && category.String != "" {
		v := models.Category(category.String)
		c.Category = &v
	}
	c.InternalNotes = nullString(internal)
	c.PublicNotes = nullString(public)
	if evRef.Valid && evRef.String != "" {
		c.Evidence = &models.Evidence{
			Ref:         evRef.String,
			FileName:    evName.String,
			ContentType: evType.String,
			Size:        evSize.Int64,
		}
	}
	return c, nil
}
