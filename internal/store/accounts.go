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

const accountColumns = `id,email,password_hash,role,full_name,email_verified,created_at,verified_at,last_login_at`

// CreateAccount inserts a new account. verificationTokenHash may be nil for
// accounts that start verified. A duplicate e-mail returns ErrConflict.
func (s *Store) CreateAccount(ctx context.Context, a models.Account, verificationTokenHash *string) (models.Account, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO accounts(id,email,password_hash,role,full_name,email_verified,verification_token_hash,created_at,verified_at) VALUES(?,?,?,?,?,?,?,?,?)`),
		a.ID, a.Email, a.PasswordHash, string(a.Role), a.FullName, a.EmailVerified, verificationTokenHash, a.CreatedAt, a.VerifiedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Account{}, ErrConflict
		}
		return models.Account{}, err
	}
	return a, nil
}

// EnsureAdmin creates the admin account, or re-keys an existing admin with the
// same e-mail. An e-mail held by a student returns ErrConflict.
func (s *Store) EnsureAdmin(ctx context.Context, email, fullName, passwordHash string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || passwordHash == "" {
		return nil
	}
	if strings.TrimSpace(fullName) == "" {
		fullName = "Administrator"
	}
	a, err := s.GetAccountByEmail(ctx, email)
	if err == ErrNotFound {
		now := time.Now().UTC()
		_, err = s.CreateAccount(ctx, models.Account{
			Email:         email,
			PasswordHash:  passwordHash,
			Role:          models.RoleAdmin,
			FullName:      fullName,
			EmailVerified: true,
			CreatedAt:     now,
			VerifiedAt:    &now,
		}, nil)
		return err
	}
	if err != nil {
		return err
	}
	if a.Role != models.RoleAdmin {
		return fmt.Errorf("%s belongs to a %s account: %w", email, a.Role, ErrConflict)
	}
	_, err = s.db.ExecContext(ctx,
		s.q(`UPDATE accounts SET email_verified=?, password_hash=?, full_name=?, verification_token_hash=NULL WHERE id=? AND role='admin'`),
		true, passwordHash, fullName, a.ID,
	)
	return err
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (models.Account, error) {
	return s.getAccount(ctx, `email=?`, email)
}

func (s *Store) GetAccountByID(ctx context.Context, id string) (models.Account, error) {
	return s.getAccount(ctx, `id=?`, id)
}

func (s *Store) getAccount(ctx context.Context, where string, arg any) (models.Account, error) {
	var a models.Account
	var verifiedAt, lastLogin sql.NullTime
	err := s.db.QueryRowContext(ctx, s.q(`SELECT `+accountColumns+` FROM accounts WHERE `+where), arg).
		Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Role, &a.FullName, &a.EmailVerified, &a.CreatedAt, &verifiedAt, &lastLogin)
	if err == sql.ErrNoRows {
		return models.Account{}, ErrNotFound
	}
	if err != nil {
		return models.Account{}, err
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		a.VerifiedAt = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		a.LastLoginAt = &t
	}
	return a, nil
}

// ConsumeVerificationToken flips email_verified for the account holding the
// token and clears the token so it cannot be used again.
func (s *Store) ConsumeVerificationToken(ctx context.Context, tokenHash string) (models.Account, error) {
	var accountID string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, s.q(`SELECT id FROM accounts WHERE verification_token_hash=?`), tokenHash).Scan(&accountID)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			s.q(`UPDATE accounts SET email_verified=?, verification_token_hash=NULL, verified_at=? WHERE id=? AND verification_token_hash=?`),
			true, time.Now().UTC(), accountID, tokenHash,
		)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return models.Account{}, err
	}
	return s.GetAccountByID(ctx, accountID)
}

func (s *Store) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE accounts SET last_login_at=? WHERE id=?`), at, id)
	return err
}

func (s *Store) CountAdmins(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM accounts WHERE role='admin'`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE accounts SET password_hash=? WHERE id=?`), passwordHash, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}
	return nil
}
