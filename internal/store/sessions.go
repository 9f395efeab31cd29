package store

import (
	"context"
	"time"
)

// RevokeSession records a session id as revoked until it would have expired
// anyway. Revoking twice is not an error.
func (s *Store) RevokeSession(ctx context.Context, sessionID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO revoked_sessions(session_id,expires_at) VALUES(?,?)`),
		sessionID, expiresAt.UTC(),
	)
	if err != nil && !isUniqueViolation(err) {
		return err
	}
	return nil
}

func (s *Store) IsSessionRevoked(ctx context.Context, sessionID string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		s.q(`SELECT COUNT(1) FROM revoked_sessions WHERE session_id=?`), sessionID,
	).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// PurgeRevokedSessions drops denylist rows whose tokens have expired.
func (s *Store) PurgeRevokedSessions(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM revoked_sessions WHERE expires_at < ?`), before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
