package evidence

import (
	"errors"
	"fmt"
	"mime"
	"path"
	"sort"
	"strings"
	"time"
)

// MaxSize is the largest accepted attachment, in bytes.
const MaxSize int64 = 5 * 1024 * 1024

var ErrInvalidEvidence = errors.New("invalid evidence")

// ErrKeyExists is returned by Put when the object key is already taken.
// Existing objects are never replaced.
var ErrKeyExists = errors.New("evidence key already exists")

// ErrNotFound is returned by Open for unknown or removed objects.
var ErrNotFound = errors.New("evidence not found")

var extensions = map[string]string{
	"image/jpeg":         ".jpg",
	"image/png":          ".png",
	"image/gif":          ".gif",
	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
}

func AllowedTypes() []string {
	out := make([]string, 0, len(extensions))
	for ct := range extensions {
		out = append(out, ct)
	}
	sort.Strings(out)
	return out
}

// NormalizeContentType lower-cases the media type and drops parameters.
func NormalizeContentType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

// Validate checks an attachment against the type whitelist and the size
// ceiling. It runs before anything is written.
func Validate(contentType string, size int64) error {
	ct := NormalizeContentType(contentType)
	if _, ok := extensions[ct]; !ok {
		return fmt.Errorf("%w: content type %q is not allowed", ErrInvalidEvidence, ct)
	}
	if size <= 0 {
		return fmt.Errorf("%w: empty file", ErrInvalidEvidence)
	}
	if size > MaxSize {
		return fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrInvalidEvidence, size, MaxSize)
	}
	return nil
}

func Extension(contentType string) string {
	return extensions[NormalizeContentType(contentType)]
}

// ContentTypeForKey maps an object key back to its media type by extension.
func ContentTypeForKey(key string) string {
	ext := strings.ToLower(path.Ext(key))
	for ct, e := range extensions {
		if e == ext {
			return ct
		}
	}
	return "application/octet-stream"
}

// ObjectKey names a complaint's attachment: <tracking>_<unixmillis>.<ext>.
func ObjectKey(trackingNumber string, at time.Time, contentType string) string {
	return fmt.Sprintf("%s_%d%s", trackingNumber, at.UnixMilli(), Extension(contentType))
}

func validKey(key string) bool {
	if key == "" || len(key) > 200 || strings.HasPrefix(key, ".") {
		return false
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}
