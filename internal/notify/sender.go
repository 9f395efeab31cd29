package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"raggingwatch/internal/config"
)

const dialTimeout = 10 * time.Second

// Sender delivers the one-time e-mail verification token to a new student.
type Sender interface {
	SendVerification(ctx context.Context, toEmail, fullName, token string) error
}

func NewSender(cfg config.Config, log *zap.Logger) Sender {
	switch cfg.VerificationSender {
	case "smtp":
		return SMTPSender{
			host:     cfg.SMTPHost,
			port:     cfg.SMTPPort,
			username: cfg.SMTPUsername,
			password: cfg.SMTPPassword,
			from:     cfg.MailFrom,
			baseURL:  cfg.PublicBaseURL,
		}
	default:
		return LogSender{baseURL: cfg.PublicBaseURL, log: log}
	}
}

func verificationLink(baseURL, token string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		return token
	}
	return fmt.Sprintf("%s/verify-email?token=%s", base, url.QueryEscape(token))
}

// LogSender writes the verification link to the log. Meant for development.
type LogSender struct {
	baseURL string
	log     *zap.Logger
}

func (s LogSender) SendVerification(ctx context.Context, toEmail, fullName, token string) error {
	log := s.log
	if log == nil {
		log = zap.NewNop()
	}
	log.Info("email verification link generated",
		zap.String("email", toEmail),
		zap.String("link", verificationLink(s.baseURL, token)),
	)
	return nil
}

type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
	baseURL  string
}

func (s SMTPSender) SendVerification(ctx context.Context, toEmail, fullName, token string) error {
	raw, err := BuildVerificationMessage(s.from, toEmail, fullName, verificationLink(s.baseURL, token), time.Now())
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, raw)
}

// BuildVerificationMessage renders the verification e-mail as RFC 5322 bytes.
func BuildVerificationMessage(from, to, fullName, link string, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{{Name: "Anti-Ragging Cell", Address: from}})
	h.SetAddressList("To", []*mail.Address{{Name: fullName, Address: to}})
	h.SetSubject("Verify your email address")
	if err := h.GenerateMessageID(); err != nil {
		return nil, err
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(fullName)
	if name == "" {
		name = "there"
	}
	body := fmt.Sprintf("Hello %s,\r\n\r\nConfirm your email address to finish creating your account:\r\n%s\r\n\r\nIf you did not sign up, ignore this message.\r\n", name, link)
	if _, err := io.WriteString(w, body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s SMTPSender) send(ctx context.Context, to string, raw []byte) error {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if s.port == 465 {
		conn = tls.Client(conn, &tls.Config{ServerName: s.host})
	}

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			return err
		}
	}
	if s.username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(smtp.PlainAuth("", s.username, s.password, s.host)); err != nil {
				return err
			}
		}
	}
	if err := client.Mail(s.from); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	wc, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write(raw); err != nil {
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return client.Quit()
}
