package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultSigningKey = "CHANGE_ME_PRODUCTION_SESSION_SIGNING_KEY"

type Config struct {
	ListenAddr    string
	PublicBaseURL string

	LogLevel  string
	LogFormat string

	DBDriver          string
	DBDSN             string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	SessionSigningKey  string
	SessionIssuer      string
	SessionTTLHours    int
	StudentCookieName  string
	AdminCookieName    string
	CSRFCookieName     string
	CookieSecureMode   string
	TrustProxy         bool
	CORSAllowedOrigins []string
	RedisURL           string

	EvidenceBackend      string
	EvidenceDir          string
	EvidenceEncryptKey   string
	EvidenceRemoteURL    string
	EvidenceRemoteBucket string
	EvidenceRemoteKey    string
	EvidenceViewTTL      time.Duration
	EvidenceReceiptTTL   time.Duration

	CaptchaEnabled   bool
	CaptchaProvider  string
	CaptchaVerifyURL string
	CaptchaSecret    string

	PasswordMinLength int
	PasswordMaxLength int

	HTTPReadTimeoutSec       int
	HTTPReadHeaderTimeoutSec int
	HTTPWriteTimeoutSec      int
	HTTPIdleTimeoutSec       int

	BootstrapAdminEmail    string
	BootstrapAdminPassword string
	BootstrapAdminName     string

	VerificationSender string
	MailFrom           string
	SMTPHost           string
	SMTPPort           int
	SMTPUsername       string
	SMTPPassword       string
}

// LoadDotEnv seeds the process environment from the given files. Variables
// already set win, and a missing file is skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func Load() (Config, error) {
	cfg := Config{
		ListenAddr:               env("LISTEN_ADDR", ":8080"),
		PublicBaseURL:            strings.TrimRight(env("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		LogLevel:                 strings.ToLower(env("LOG_LEVEL", "info")),
		LogFormat:                strings.ToLower(env("LOG_FORMAT", "json")),
		DBDriver:                 strings.ToLower(env("DB_DRIVER", "sqlite")),
		DBDSN:                    env("DB_DSN", "./data/raggingwatch.db"),
		DBMaxOpenConns:           envInt("DB_MAX_OPEN_CONNS", 4),
		DBMaxIdleConns:           envInt("DB_MAX_IDLE_CONNS", 2),
		DBConnMaxLifetime:        time.Duration(envInt("DB_CONN_MAX_LIFETIME_MIN", 30)) * time.Minute,
		SessionSigningKey:        env("SESSION_SIGNING_KEY", defaultSigningKey),
		SessionIssuer:            env("SESSION_ISSUER", "raggingwatch"),
		SessionTTLHours:          envInt("SESSION_TTL_HOURS", 24*7),
		StudentCookieName:        env("STUDENT_SESSION_COOKIE", "user-session"),
		AdminCookieName:          env("ADMIN_SESSION_COOKIE", "admin-session"),
		CSRFCookieName:           env("CSRF_COOKIE_NAME", "admin-csrf"),
		CookieSecureMode:         strings.ToLower(strings.TrimSpace(os.Getenv("COOKIE_SECURE_MODE"))),
		TrustProxy:               envBool("TRUST_PROXY", false),
		CORSAllowedOrigins:       envCSV("CORS_ALLOWED_ORIGINS"),
		RedisURL:                 env("REDIS_URL", ""),
		EvidenceBackend:          strings.ToLower(env("EVIDENCE_BACKEND", "local")),
		EvidenceDir:              env("EVIDENCE_DIR", "./data/evidence"),
		EvidenceEncryptKey:       env("EVIDENCE_ENCRYPT_KEY", ""),
		EvidenceRemoteURL:        strings.TrimRight(env("EVIDENCE_REMOTE_URL", ""), "/"),
		EvidenceRemoteBucket:     env("EVIDENCE_REMOTE_BUCKET", "evidence"),
		EvidenceRemoteKey:        env("EVIDENCE_REMOTE_KEY", ""),
		EvidenceViewTTL:          envDuration("EVIDENCE_VIEW_TTL", time.Hour),
		EvidenceReceiptTTL:       envDuration("EVIDENCE_RECEIPT_TTL", 7*24*time.Hour),
		CaptchaEnabled:           envBool("CAPTCHA_ENABLED", false),
		CaptchaProvider:          strings.ToLower(env("CAPTCHA_PROVIDER", "turnstile")),
		CaptchaVerifyURL:         env("CAPTCHA_VERIFY_URL", ""),
		CaptchaSecret:            env("CAPTCHA_SECRET", ""),
		PasswordMinLength:        envInt("PASSWORD_MIN_LENGTH", 8),
		PasswordMaxLength:        envInt("PASSWORD_MAX_LENGTH", 128),
		HTTPReadTimeoutSec:       envInt("HTTP_READ_TIMEOUT_SEC", 15),
		HTTPReadHeaderTimeoutSec: envInt("HTTP_READ_HEADER_TIMEOUT_SEC", 5),
		HTTPWriteTimeoutSec:      envInt("HTTP_WRITE_TIMEOUT_SEC", 30),
		HTTPIdleTimeoutSec:       envInt("HTTP_IDLE_TIMEOUT_SEC", 60),
		BootstrapAdminEmail:      env("BOOTSTRAP_ADMIN_EMAIL", ""),
		BootstrapAdminPassword:   env("BOOTSTRAP_ADMIN_PASSWORD", ""),
		BootstrapAdminName:       env("BOOTSTRAP_ADMIN_NAME", "Administrator"),
		VerificationSender:       strings.ToLower(env("VERIFICATION_SENDER", "log")),
		MailFrom:                 env("MAIL_FROM", "no-reply@example.com"),
		SMTPHost:                 env("SMTP_HOST", "127.0.0.1"),
		SMTPPort:                 envInt("SMTP_PORT", 587),
		SMTPUsername:             env("SMTP_USERNAME", ""),
		SMTPPassword:             env("SMTP_PASSWORD", ""),
	}

	if cfg.CookieSecureMode == "" {
		switch v := strings.TrimSpace(os.Getenv("COOKIE_SECURE")); {
		case v == "":
			cfg.CookieSecureMode = "auto"
		case envBool("COOKIE_SECURE", false):
			cfg.CookieSecureMode = "always"
		default:
			cfg.CookieSecureMode = "never"
		}
	}
	switch cfg.CookieSecureMode {
	case "auto", "always", "never":
	default:
		return Config{}, fmt.Errorf("COOKIE_SECURE_MODE must be one of: auto, always, never")
	}
	if cfg.CookieSecureMode == "never" && !isLocalListen(cfg.ListenAddr) {
		return Config{}, fmt.Errorf("COOKIE_SECURE_MODE=never is allowed only for local listen addresses")
	}

	if strings.TrimSpace(cfg.SessionSigningKey) == "" ||
		cfg.SessionSigningKey == defaultSigningKey ||
		len(cfg.SessionSigningKey) < 32 {
		return Config{}, fmt.Errorf("SESSION_SIGNING_KEY must be set to a strong non-default value (>=32 chars)")
	}
	if cfg.SessionTTLHours <= 0 {
		return Config{}, fmt.Errorf("SESSION_TTL_HOURS must be positive")
	}
	if cfg.DBMaxOpenConns <= 0 || cfg.DBMaxIdleConns < 0 {
		return Config{}, fmt.Errorf("invalid DB pool config")
	}
	switch cfg.DBDriver {
	case "sqlite":
	case "pgx", "mysql":
		if strings.TrimSpace(os.Getenv("DB_DSN")) == "" {
			return Config{}, fmt.Errorf("DB_DSN is required when DB_DRIVER=%s", cfg.DBDriver)
		}
	default:
		return Config{}, fmt.Errorf("DB_DRIVER must be one of: sqlite, pgx, mysql")
	}
	if cfg.PasswordMinLength < 8 {
		return Config{}, fmt.Errorf("password min length must be >= 8")
	}
	if cfg.PasswordMaxLength < cfg.PasswordMinLength {
		return Config{}, fmt.Errorf("password max length must be >= min length")
	}

	switch cfg.EvidenceBackend {
	case "local":
		if cfg.EvidenceEncryptKey == "" {
			cfg.EvidenceEncryptKey = cfg.SessionSigningKey
		}
	case "remote":
		if cfg.EvidenceRemoteURL == "" || strings.TrimSpace(cfg.EvidenceRemoteKey) == "" {
			return Config{}, fmt.Errorf("EVIDENCE_REMOTE_URL and EVIDENCE_REMOTE_KEY are required when EVIDENCE_BACKEND=remote")
		}
	default:
		return Config{}, fmt.Errorf("EVIDENCE_BACKEND must be one of: local, remote")
	}
	if cfg.EvidenceViewTTL <= 0 || cfg.EvidenceReceiptTTL <= 0 {
		return Config{}, fmt.Errorf("evidence link lifetimes must be positive")
	}

	switch cfg.VerificationSender {
	case "log", "smtp":
	default:
		return Config{}, fmt.Errorf("VERIFICATION_SENDER must be one of: log, smtp")
	}

	if cfg.CaptchaEnabled {
		if strings.TrimSpace(cfg.CaptchaSecret) == "" {
			return Config{}, fmt.Errorf("CAPTCHA_SECRET is required when CAPTCHA_ENABLED=true")
		}
		if strings.TrimSpace(cfg.CaptchaVerifyURL) == "" {
			switch cfg.CaptchaProvider {
			case "turnstile", "":
				cfg.CaptchaVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"
			case "hcaptcha":
				cfg.CaptchaVerifyURL = "https://hcaptcha.com/siteverify"
			default:
				return Config{}, fmt.Errorf("unsupported CAPTCHA_PROVIDER: %s", cfg.CaptchaProvider)
			}
		}
	}
	return cfg, nil
}

func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// ResolveCookieSecure reports whether cookies set on this response should
// carry the Secure attribute.
func (c Config) ResolveCookieSecure(r *http.Request) bool {
	switch c.CookieSecureMode {
	case "always":
		return true
	case "never":
		return false
	}
	if r == nil {
		return false
	}
	if r.TLS != nil {
		return true
	}
	if c.TrustProxy {
		proto := strings.TrimSpace(strings.Split(r.Header.Get("X-Forwarded-Proto"), ",")[0])
		return strings.EqualFold(proto, "https")
	}
	return false
}

func env(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return d
	}
	return n
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return d
	}
	return b
}

func envDuration(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		return d
	}
	return dur
}

func envCSV(k string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isLocalListen(addr string) bool {
	a := strings.ToLower(strings.TrimSpace(addr))
	return strings.Contains(a, "127.0.0.1") || strings.Contains(a, "localhost") || strings.Contains(a, "[::1]") || strings.HasPrefix(a, ":")
}
