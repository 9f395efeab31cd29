package service

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"raggingwatch/internal/auth"
	"raggingwatch/internal/config"
	"raggingwatch/internal/models"
	"raggingwatch/internal/notify"
	"raggingwatch/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrEmailNotVerified   = errors.New("please verify your email before logging in")
	ErrInvalidToken       = errors.New("invalid or already used verification token")
	ErrInvalidInput       = errors.New("invalid input")
)

// Service owns student and admin accounts: registration, e-mail
// verification and credential checks. Sessions are issued by the caller.
type Service struct {
	cfg    config.Config
	st     *store.Store
	sender notify.Sender
	log    *zap.Logger
	now    func() time.Time
}

func New(cfg config.Config, st *store.Store, sender notify.Sender, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if sender == nil {
		sender = notify.LogSender{}
	}
	return &Service{cfg: cfg, st: st, sender: sender, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := netmail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: email address is not valid", ErrInvalidInput)
	}
	return email, nil
}

// RegisterStudent creates an unverified student account and sends the
// one-time verification token. Only the token's hash is stored.
func (s *Service) RegisterStudent(ctx context.Context, email, password, fullName string) (models.Account, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return models.Account{}, err
	}
	fullName = strings.TrimSpace(fullName)
	if fullName == "" || len(fullName) > 255 {
		return models.Account{}, fmt.Errorf("%w: full name is required", ErrInvalidInput)
	}
	if err := s.ValidatePassword(password); err != nil {
		return models.Account{}, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return models.Account{}, err
	}
	raw, tokenHash, err := auth.NewOpaqueToken()
	if err != nil {
		return models.Account{}, err
	}
	a, err := s.st.CreateAccount(ctx, models.Account{
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleStudent,
		FullName:     fullName,
		CreatedAt:    s.now(),
	}, &tokenHash)
	if errors.Is(err, store.ErrConflict) {
		return models.Account{}, ErrEmailTaken
	}
	if err != nil {
		return models.Account{}, err
	}
	if err := s.sender.SendVerification(ctx, email, fullName, raw); err != nil {
		s.log.Error("failed to send verification email", zap.String("account_id", a.ID), zap.Error(err))
	}
	s.log.Info("student registered", zap.String("account_id", a.ID))
	return a, nil
}

func (s *Service) VerifyEmail(ctx context.Context, token string) (models.Account, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.Account{}, ErrInvalidToken
	}
	a, err := s.st.ConsumeVerificationToken(ctx, auth.HashToken(token))
	if errors.Is(err, store.ErrNotFound) {
		return models.Account{}, ErrInvalidToken
	}
	if err != nil {
		return models.Account{}, err
	}
	s.log.Info("student email verified", zap.String("account_id", a.ID))
	return a, nil
}

func (s *Service) LoginStudent(ctx context.Context, email, password string) (models.Account, error) {
	a, err := s.checkCredentials(ctx, email, password, models.RoleStudent)
	if err != nil {
		return models.Account{}, err
	}
	if !a.EmailVerified {
		return models.Account{}, ErrEmailNotVerified
	}
	s.afterLogin(ctx, &a, password)
	return a, nil
}

// LoginAdmin accepts only admin accounts stored in the database.
func (s *Service) LoginAdmin(ctx context.Context, email, password string) (models.Account, error) {
	a, err := s.checkCredentials(ctx, email, password, models.RoleAdmin)
	if err != nil {
		s.log.Warn("admin login failed", zap.String("email", strings.ToLower(strings.TrimSpace(email))))
		return models.Account{}, err
	}
	s.afterLogin(ctx, &a, password)
	return a, nil
}

func (s *Service) checkCredentials(ctx context.Context, email, password string, role models.Role) (models.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return models.Account{}, ErrInvalidCredentials
	}
	a, err := s.st.GetAccountByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return models.Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.Account{}, err
	}
	if a.Role != role || !auth.VerifyPassword(a.PasswordHash, password) {
		return models.Account{}, ErrInvalidCredentials
	}
	return a, nil
}

func (s *Service) afterLogin(ctx context.Context, a *models.Account, password string) {
	now := s.now()
	if err := s.st.TouchLastLogin(ctx, a.ID, now); err != nil {
		s.log.Warn("failed to record last login", zap.String("account_id", a.ID), zap.Error(err))
	} else {
		a.LastLoginAt = &now
	}
	if !auth.NeedsRehash(a.PasswordHash) {
		return
	}
	hash, err := auth.HashPassword(password)
	if err == nil {
		err = s.st.UpdatePasswordHash(ctx, a.ID, hash)
	}
	if err != nil {
		s.log.Warn("failed to upgrade password hash", zap.String("account_id", a.ID), zap.Error(err))
		return
	}
	a.PasswordHash = hash
}

// CreateAdmin provisions an admin account or re-keys an existing one. An
// e-mail already registered to a student returns ErrEmailTaken. It is
// reachable only from the command line and the startup bootstrap.
func (s *Service) CreateAdmin(ctx context.Context, email, password, fullName string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if err := s.ValidatePassword(password); err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.st.EnsureAdmin(ctx, email, fullName, hash); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return ErrEmailTaken
		}
		return err
	}
	s.log.Info("admin account provisioned", zap.String("email", email))
	return nil
}

// EnsureBootstrapAdmin creates the BOOTSTRAP_ADMIN_* account when no admin
// exists yet. It never overwrites an existing admin.
func (s *Service) EnsureBootstrapAdmin(ctx context.Context) error {
	if strings.TrimSpace(s.cfg.BootstrapAdminEmail) == "" || s.cfg.BootstrapAdminPassword == "" {
		return nil
	}
	n, err := s.st.CountAdmins(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	return s.CreateAdmin(ctx, s.cfg.BootstrapAdminEmail, s.cfg.BootstrapAdminPassword, s.cfg.BootstrapAdminName)
}

func (s *Service) ValidatePassword(pw string) error {
	pw = strings.TrimSpace(pw)
	if pw == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if len(pw) < s.cfg.PasswordMinLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, s.cfg.PasswordMinLength)
	}
	if len(pw) > s.cfg.PasswordMaxLength {
		return fmt.Errorf("%w: password must be at most %d characters", ErrInvalidInput, s.cfg.PasswordMaxLength)
	}
	classes := 0
	if strings.IndexFunc(pw, func(r rune) bool { return r >= 'a' && r <= 'z' }) >= 0 {
		classes++
	}
	if strings.IndexFunc(pw, func(r rune) bool { return r >= 'A' && r <= 'Z' }) >= 0 {
		classes++
	}
	if strings.IndexFunc(pw, func(r rune) bool { return r >= '0' && r <= '9' }) >= 0 {
		classes++
	}
	if strings.IndexFunc(pw, func(r rune) bool {
		return (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126)
	}) >= 0 {
		classes++
	}
	if classes < 3 {
		return fmt.Errorf("%w: password must include at least 3 character classes (lower/upper/number/symbol)", ErrInvalidInput)
	}
	return nil
}
