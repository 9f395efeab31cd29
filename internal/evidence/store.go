package evidence

import (
	"context"
	"fmt"
	"time"

	"raggingwatch/internal/config"
)

// Store persists complaint attachments and hands out time-limited retrieval
// URLs for them.
type Store interface {
	// Put validates and stores data under key and returns the reference to
	// keep on the complaint.
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, ref string) error
	Handle(ctx context.Context, ref string, ttl time.Duration) (string, error)
	Ping(ctx context.Context) error
}

// New builds the backend selected by EVIDENCE_BACKEND.
func New(cfg config.Config) (Store, error) {
	switch cfg.EvidenceBackend {
	case "", "local":
		return NewLocalStore(cfg.EvidenceDir, cfg.EvidenceEncryptKey, cfg.SessionSigningKey, cfg.PublicBaseURL)
	case "remote":
		return NewRemoteStore(cfg.EvidenceRemoteURL, cfg.EvidenceRemoteBucket, cfg.EvidenceRemoteKey), nil
	default:
		return nil, fmt.Errorf("unknown evidence backend %q", cfg.EvidenceBackend)
	}
}
