// Package blob turns image bytes into publicly fetchable URLs. The Graph API
// pulls media by URL, so every inline image must be materialized in object
// storage before a container can be created from it.
package blob

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Store uploads and removes objects. Implementations must return a URL the
// remote publishing API can fetch without credentials.
type Store interface {
	// Upload writes data at path and returns its public URL. Paths are
	// never overwritten by callers in this module; ObjectPath guarantees
	// a fresh name per call.
	Upload(ctx context.Context, data []byte, contentType, path string) (string, error)

	// Delete removes the object at path. Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error
}

// ObjectPath builds a collision-resistant key of the form
// {prefix}/{unixMillis}-{token}.{ext}. The prefix is usually the owning
// user's ID; frames use a fixed "frames" prefix.
func ObjectPath(prefix, ext string, now time.Time) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s/%d-%s.%s", strings.Trim(prefix, "/"), now.UnixMilli(), RandomToken(), ext)
}

// RandomToken returns 16 hex characters from crypto/rand.
func RandomToken() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms; fall back to the clock.
		return fmt.Sprintf("%016x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
