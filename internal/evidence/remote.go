package evidence

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// RemoteStore talks to a Supabase-compatible object storage API.
type RemoteStore struct {
	client  *resty.Client
	baseURL string
	bucket  string
}

func NewRemoteStore(baseURL, bucket, serviceKey string) *RemoteStore {
	baseURL = strings.TrimRight(baseURL, "/")
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetAuthToken(serviceKey).
		SetHeader("apikey", serviceKey).
		SetHeader("Accept", "application/json")
	return &RemoteStore{client: client, baseURL: baseURL, bucket: bucket}
}

type signRequest struct {
	ExpiresIn int64 `json:"expiresIn"`
}

type signResponse struct {
	SignedURL string `json:"signedURL"`
}

func (s *RemoteStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := Validate(contentType, int64(len(data))); err != nil {
		return "", err
	}
	if !validKey(key) {
		return "", fmt.Errorf("%w: bad object key", ErrInvalidEvidence)
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"bucket": s.bucket, "key": key}).
		SetHeader("Content-Type", NormalizeContentType(contentType)).
		SetHeader("x-upsert", "false").
		SetBody(data).
		Post("/object/{bucket}/{key}")
	if err != nil {
		return "", fmt.Errorf("upload evidence: %w", err)
	}
	if resp.StatusCode() == http.StatusConflict {
		return "", fmt.Errorf("%s: %w", key, ErrKeyExists)
	}
	if resp.IsError() {
		return "", fmt.Errorf("upload evidence: status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return key, nil
}

func (s *RemoteStore) Delete(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"bucket": s.bucket, "key": ref}).
		Delete("/object/{bucket}/{key}")
	if err != nil {
		return fmt.Errorf("delete evidence: %w", err)
	}
	if resp.IsError() && resp.StatusCode() != 404 {
		return fmt.Errorf("delete evidence: status %d", resp.StatusCode())
	}
	return nil
}

func (s *RemoteStore) Handle(ctx context.Context, ref string, ttl time.Duration) (string, error) {
	var out signResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"bucket": s.bucket, "key": ref}).
		SetHeader("Content-Type", "application/json").
		SetBody(signRequest{ExpiresIn: int64(ttl / time.Second)}).
		SetResult(&out).
		Post("/object/sign/{bucket}/{key}")
	if err != nil {
		return "", fmt.Errorf("sign evidence url: %w", err)
	}
	if resp.StatusCode() == 404 {
		return "", ErrNotFound
	}
	if resp.IsError() || out.SignedURL == "" {
		return "", fmt.Errorf("sign evidence url: status %d", resp.StatusCode())
	}
	if strings.HasPrefix(out.SignedURL, "http://") || strings.HasPrefix(out.SignedURL, "https://") {
		return out.SignedURL, nil
	}
	return s.baseURL + "/" + strings.TrimLeft(out.SignedURL, "/"), nil
}

func (s *RemoteStore) Ping(ctx context.Context) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("bucket", s.bucket).
		Get("/bucket/{bucket}")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("evidence bucket: status %d", resp.StatusCode())
	}
	return nil
}
