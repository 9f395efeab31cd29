package store

import (
	"context"
	"database/sql"
	"time"

	"raggingwatch/internal/models"
)

// ComplaintFacts returns the analytics projection of every complaint. The
// earliest history row with status Resolved is attached as ResolvedAt.
func (s *Store) ComplaintFacts(ctx context.Context) ([]models.ComplaintFacts, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,status,category,incident_location,anonymous,submitted_at FROM complaints ORDER BY submitted_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ComplaintFacts
	index := map[string]int{}
	for rows.Next() {
		var f models.ComplaintFacts
		var status, category, location sql.NullString
		if err := rows.Scan(&f.ID, &status, &category, &location, &f.Anonymous, &f.SubmittedAt); err != nil {
			return nil, err
		}
		f.Status = nullString(status)
		f.Category = nullString(category)
		f.Location = nullString(location)
		index[f.ID] = len(out)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	resolved, err := s.db.QueryContext(ctx,
		s.q(`SELECT complaint_id,created_at FROM complaint_history WHERE status=?`),
		string(models.StatusResolved),
	)
	if err != nil {
		return nil, err
	}
	defer resolved.Close()
	for resolved.Next() {
		var id string
		var at time.Time
		if err := resolved.Scan(&id, &at); err != nil {
			return nil, err
		}
		i, ok := index[id]
		if !ok {
			continue
		}
		if cur := out[i].ResolvedAt; cur == nil || at.Before(*cur) {
			t := at
			out[i].ResolvedAt = &t
		}
	}
	return out, resolved.Err()
}
