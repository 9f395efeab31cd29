package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"raggingwatch/internal/auth"
	"raggingwatch/internal/config"
	"raggingwatch/internal/db"
	"raggingwatch/internal/models"
	"raggingwatch/internal/store"
)

type captureSender struct {
	mu     sync.Mutex
	tokens map[string]string
	err    error
}

func (c *captureSender) SendVerification(ctx context.Context, toEmail, fullName, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokens == nil {
		c.tokens = map[string]string{}
	}
	c.tokens[toEmail] = token
	return c.err
}

func newTestService(t *testing.T) (*Service, *store.Store, *captureSender) {
	t.Helper()
	sqdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "app.db"), 1, 1, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqdb.Close() })
	_, err = db.Migrate(context.Background(), sqdb, db.DriverSQLite)
	require.NoError(t, err)
	st := store.New(sqdb, db.DriverSQLite)
	sender := &captureSender{}
	cfg := config.Config{
		PasswordMinLength:      8,
		PasswordMaxLength:      128,
		BootstrapAdminEmail:    "Warden@Uni.test",
		BootstrapAdminPassword: "Adm1n-Passw0rd",
		BootstrapAdminName:     "Chief Warden",
	}
	return New(cfg, st, sender, nil), st, sender
}

func TestRegisterVerifyLogin(t *testing.T) {
	svc, st, sender := newTestService(t)
	ctx := context.Background()

	a, err := svc.RegisterStudent(ctx, "  Asha@Uni.test ", "Str0ng-pass", "Asha Rao")
	require.NoError(t, err)
	assert.Equal(t, "asha@uni.test", a.Email)
	assert.False(t, a.EmailVerified)

	_, err = svc.LoginStudent(ctx, "asha@uni.test", "Str0ng-pass")
	assert.ErrorIs(t, err, ErrEmailNotVerified)

	token := sender.tokens["asha@uni.test"]
	require.NotEmpty(t, token)
	stored, err := st.GetAccountByEmail(ctx, "asha@uni.test")
	require.NoError(t, err)
	assert.NotContains(t, stored.PasswordHash, "Str0ng-pass")

	verified, err := svc.VerifyEmail(ctx, token)
	require.NoError(t, err)
	assert.True(t, verified.EmailVerified)

	_, err = svc.VerifyEmail(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken, "tokens are single use")

	got, err := svc.LoginStudent(ctx, "ASHA@uni.test", "Str0ng-pass")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.NotNil(t, got.LastLoginAt)

	_, err = svc.LoginStudent(ctx, "asha@uni.test", "wrong-Pass1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.LoginStudent(ctx, "nobody@uni.test", "Str0ng-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, "invalid email or password", ErrInvalidCredentials.Error())
}

func TestRegisterRejectsDuplicatesAndWeakPasswords(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RegisterStudent(ctx, "dup@uni.test", "Str0ng-pass", "Dup")
	require.NoError(t, err)
	_, err = svc.RegisterStudent(ctx, "DUP@uni.test", "Str0ng-pass", "Dup")
	assert.ErrorIs(t, err, ErrEmailTaken)

	for _, pw := range []string{"", "Sh0rt!", "alllowercase", "NoDigitsHere"} {
		_, err = svc.RegisterStudent(ctx, "weak@uni.test", pw, "Weak")
		assert.ErrorIs(t, err, ErrInvalidInput, pw)
	}
	_, err = svc.RegisterStudent(ctx, "not-an-email", "Str0ng-pass", "X")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.RegisterStudent(ctx, "noname@uni.test", "Str0ng-pass", " ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegisterSucceedsWhenVerificationMailFails(t *testing.T) {
	svc, _, sender := newTestService(t)
	sender.err = errors.New("smtp down")
	_, err := svc.RegisterStudent(context.Background(), "late@uni.test", "Str0ng-pass", "Late")
	assert.NoError(t, err)
}

func TestAdminLoginIsSeparateFromStudentLogin(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureBootstrapAdmin(ctx))
	admin, err := svc.LoginAdmin(ctx, "warden@uni.test", "Adm1n-Passw0rd")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)
	assert.Equal(t, "Chief Warden", admin.FullName)

	_, err = svc.LoginStudent(ctx, "warden@uni.test", "Adm1n-Passw0rd")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.RegisterStudent(ctx, "stu@uni.test", "Str0ng-pass", "Stu")
	require.NoError(t, err)
	_, err = svc.VerifyEmail(ctx, sender.tokens["stu@uni.test"])
	require.NoError(t, err)
	_, err = svc.LoginAdmin(ctx, "stu@uni.test", "Str0ng-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCreateAdminRefusesStudentEmail(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	student, err := svc.RegisterStudent(ctx, "kid@uni.test", "Str0ng-pass", "Kid")
	require.NoError(t, err)

	err = svc.CreateAdmin(ctx, "Kid@uni.test", "Adm1n-Passw0rd", "Kid Admin")
	assert.ErrorIs(t, err, ErrEmailTaken)

	got, err := st.GetAccountByEmail(ctx, "kid@uni.test")
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, got.Role)
	assert.Equal(t, student.PasswordHash, got.PasswordHash)
	n, err := st.CountAdmins(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEnsureBootstrapAdminDoesNotOverwrite(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.CreateAdmin(ctx, "first@uni.test", "F1rst-admin", "First"))

	require.NoError(t, svc.EnsureBootstrapAdmin(ctx))
	_, err := svc.LoginAdmin(ctx, "warden@uni.test", "Adm1n-Passw0rd")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUpgradesLegacyBcryptHash(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	legacy, err := bcrypt.GenerateFromPassword([]byte("Legacy-pass1"), bcrypt.MinCost)
	require.NoError(t, err)
	now := time.Now().UTC()
	_, err = st.CreateAccount(ctx, models.Account{
		Email:         "old@uni.test",
		PasswordHash:  string(legacy),
		Role:          models.RoleStudent,
		FullName:      "Old",
		EmailVerified: true,
		CreatedAt:     now,
		VerifiedAt:    &now,
	}, nil)
	require.NoError(t, err)

	_, err = svc.LoginStudent(ctx, "old@uni.test", "Legacy-pass1")
	require.NoError(t, err)
	a, err := st.GetAccountByEmail(ctx, "old@uni.test")
	require.NoError(t, err)
	assert.False(t, auth.NeedsRehash(a.PasswordHash))
	assert.True(t, auth.VerifyPassword(a.PasswordHash, "Legacy-pass1"))
}
