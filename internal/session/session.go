package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"raggingwatch/internal/models"
)

// ErrInvalid covers every reason a token is not accepted. Callers treat it
// as an absent session.
var ErrInvalid = errors.New("invalid session")

type Claims struct {
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
	Name  string      `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Manager issues and validates signed, stateless session tokens. Revocation
// before expiry goes through the denylist keyed by the token's jti.
type Manager struct {
	key    []byte
	issuer string
	ttl    time.Duration
	deny   Denylist
	now    func() time.Time
}

func NewManager(signingKey, issuer string, ttl time.Duration, deny Denylist) *Manager {
	if deny == nil {
		deny = NewMemoryDenylist()
	}
	return &Manager{
		key:    []byte(signingKey),
		issuer: issuer,
		ttl:    ttl,
		deny:   deny,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (m *Manager) TTL() time.Duration { return m.ttl }

func (m *Manager) Denylist() Denylist { return m.deny }

func (m *Manager) Issue(p models.Principal) (string, Claims, error) {
	if p.Anonymous() {
		return "", Claims{}, fmt.Errorf("issue session: principal has no identity")
	}
	now := m.now()
	claims := Claims{
		Email: p.Email,
		Role:  p.Kind,
		Name:  p.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   p.ID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, claims, nil
}

// Parse validates the token for the given role slot. Any failure, including
// an unreachable denylist, yields ErrInvalid.
func (m *Manager) Parse(ctx context.Context, token string, role models.Role) (models.Principal, Claims, error) {
	if token == "" {
		return models.Principal{}, Claims{}, ErrInvalid
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return m.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return models.Principal{}, Claims{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if claims.Role != role || claims.Subject == "" || claims.ID == "" {
		return models.Principal{}, Claims{}, ErrInvalid
	}
	revoked, err := m.deny.IsRevoked(ctx, claims.ID)
	if err != nil {
		return models.Principal{}, Claims{}, fmt.Errorf("%w: denylist: %v", ErrInvalid, err)
	}
	if revoked {
		return models.Principal{}, Claims{}, ErrInvalid
	}

	var p models.Principal
	switch role {
	case models.RoleStudent:
		p = models.StudentPrincipal(claims.Subject, claims.Email, claims.Name)
	case models.RoleAdmin:
		p = models.AdminPrincipal(claims.Subject, claims.Email, claims.Name)
	default:
		return models.Principal{}, Claims{}, ErrInvalid
	}
	return p, claims, nil
}

// Revoke denylists the token's session id until its natural expiry.
func (m *Manager) Revoke(ctx context.Context, claims Claims) error {
	if claims.ID == "" {
		return nil
	}
	until := m.now().Add(m.ttl)
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	if !until.After(m.now()) {
		return nil
	}
	return m.deny.Revoke(ctx, claims.ID, until)
}
