package evidence

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"raggingwatch/internal/util"
)

// LocalStore keeps attachments on disk, sealed with AES-GCM. Retrieval
// handles are HMAC-signed URLs served back through the API.
type LocalStore struct {
	dir     string
	encKey  []byte
	signKey []byte
	baseURL string
	now     func() time.Time
}

func NewLocalStore(dir, encryptKey, signingKey, publicBaseURL string) (*LocalStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("evidence dir is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create evidence dir: %w", err)
	}
	return &LocalStore{
		dir:     dir,
		encKey:  util.Derive32ByteKey(encryptKey),
		signKey: util.Derive32ByteKey("evidence-url:" + signingKey),
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		now:     time.Now,
	}, nil
}

func (s *LocalStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := Validate(contentType, int64(len(data))); err != nil {
		return "", err
	}
	if !validKey(key) {
		return "", fmt.Errorf("%w: bad object key", ErrInvalidEvidence)
	}
	sealed, err := util.EncryptBytes(s.encKey, data)
	if err != nil {
		return "", fmt.Errorf("seal evidence: %w", err)
	}
	final := filepath.Join(s.dir, key)
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("write evidence: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write evidence: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("write evidence: %w", err)
	}
	// fails when the key is already taken
	if err := os.Link(tmp.Name(), final); err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%s: %w", key, ErrKeyExists)
		}
		return "", fmt.Errorf("write evidence: %w", err)
	}
	return key, nil
}

func (s *LocalStore) Delete(ctx context.Context, ref string) error {
	if !validKey(ref) {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, ref))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Handle returns /api/v1/evidence/{ref}?exp=<unix>&sig=<hmac>.
func (s *LocalStore) Handle(ctx context.Context, ref string, ttl time.Duration) (string, error) {
	if !validKey(ref) {
		return "", ErrNotFound
	}
	exp := strconv.FormatInt(s.now().Add(ttl).Unix(), 10)
	q := url.Values{}
	q.Set("exp", exp)
	q.Set("sig", util.SignHex(s.signKey, ref+"\n"+exp))
	return s.baseURL + "/api/v1/evidence/" + url.PathEscape(ref) + "?" + q.Encode(), nil
}

// Verify checks a handle's signature and expiry.
func (s *LocalStore) Verify(ref, exp, sig string) bool {
	if !validKey(ref) {
		return false
	}
	unix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil || s.now().Unix() > unix {
		return false
	}
	return util.VerifyHex(s.signKey, ref+"\n"+exp, sig)
}

// Open returns the decrypted attachment and its media type.
func (s *LocalStore) Open(ctx context.Context, ref string) ([]byte, string, error) {
	if !validKey(ref) {
		return nil, "", ErrNotFound
	}
	sealed, err := os.ReadFile(filepath.Join(s.dir, ref))
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	data, err := util.DecryptBytes(s.encKey, sealed)
	if err != nil {
		return nil, "", fmt.Errorf("open evidence: %w", err)
	}
	return data, ContentTypeForKey(ref), nil
}

func (s *LocalStore) Ping(ctx context.Context) error {
	st, err := os.Stat(s.dir)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return fmt.Errorf("%s is not a directory", s.dir)
	}
	return nil
}
