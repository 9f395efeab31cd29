package captcha

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"raggingwatch/internal/config"
)

var (
	ErrCaptchaRequired    = errors.New("captcha_required")
	ErrCaptchaUnavailable = errors.New("captcha_unavailable")
)

type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

type NoopVerifier struct{}

func (NoopVerifier) Verify(ctx context.Context, token, remoteIP string) error { return nil }

type HTTPVerifier struct {
	provider  string
	verifyURL string
	secret    string
	client    *resty.Client
}

func NewVerifier(cfg config.Config) Verifier {
	if !cfg.CaptchaEnabled {
		return NoopVerifier{}
	}
	return newHTTPVerifier(cfg.CaptchaProvider, cfg.CaptchaVerifyURL, cfg.CaptchaSecret)
}

func newHTTPVerifier(provider, verifyURL, secret string) *HTTPVerifier {
	return &HTTPVerifier{
		provider:  strings.ToLower(strings.TrimSpace(provider)),
		verifyURL: strings.TrimSpace(verifyURL),
		secret:    strings.TrimSpace(secret),
		client: resty.New().
			SetTimeout(8*time.Second).
			SetHeader("Accept", "application/json"),
	}
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
	Error      string   `json:"error"`
	Message    string   `json:"message"`
}

func (v *HTTPVerifier) Verify(ctx context.Context, token, remoteIP string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: captcha token is required", ErrCaptchaRequired)
	}
	remoteIP = strings.TrimSpace(remoteIP)
	req := v.client.R().SetContext(ctx)
	capProvider := false
	switch v.provider {
	case "", "turnstile", "hcaptcha":
		form := map[string]string{"secret": v.secret, "response": token}
		if remoteIP != "" {
			form["remoteip"] = remoteIP
		}
		req.SetFormData(form)
	case "cap":
		capProvider = true
		payload := map[string]string{"secret": v.secret, "response": token}
		if remoteIP != "" {
			payload["remoteip"] = remoteIP
		}
		req.SetHeader("Content-Type", "application/json").SetBody(payload)
	default:
		return fmt.Errorf("%w: unsupported captcha provider %q", ErrCaptchaUnavailable, v.provider)
	}

	var out verifyResponse
	resp, err := req.ForceContentType("application/json").SetResult(&out).SetError(&out).Post(v.verifyURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCaptchaUnavailable, err)
	}
	status := resp.StatusCode()
	if status >= 500 || (capProvider && resp.IsError()) {
		return fmt.Errorf("%w: captcha verify HTTP %d", ErrCaptchaUnavailable, status)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: captcha verify HTTP %d", ErrCaptchaRequired, status)
	}
	if !out.Success {
		if capProvider && strings.TrimSpace(out.Error) != "" {
			return fmt.Errorf("%w: %s", ErrCaptchaRequired, out.Error)
		}
		if capProvider && strings.TrimSpace(out.Message) != "" {
			return fmt.Errorf("%w: %s", ErrCaptchaRequired, out.Message)
		}
		if len(out.ErrorCodes) > 0 {
			return fmt.Errorf("%w: captcha rejected: %s", ErrCaptchaRequired, strings.Join(out.ErrorCodes, ","))
		}
		return fmt.Errorf("%w: captcha rejected", ErrCaptchaRequired)
	}
	return nil
}
