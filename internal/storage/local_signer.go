package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	ErrSignatureInvalid = errors.New("storage: signature invalid")
	ErrURLExpired       = errors.New("storage: url expired")
)

// LocalSigner issues HMAC-signed URLs for objects held in a FileStore. The
// URLs are served by the handler returned from Handler.
type LocalSigner struct {
	baseURL string
	key     []byte
	now     func() time.Time
}

// NewLocalSigner builds a signer producing URLs under baseURL.
func NewLocalSigner(baseURL string, key []byte, now func() time.Time) (*LocalSigner, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("storage: base url is required")
	}
	if len(key) == 0 {
		return nil, errors.New("storage: signing key is required")
	}
	if now == nil {
		now = time.Now
	}
	return &LocalSigner{baseURL: baseURL, key: append([]byte(nil), key...), now: now}, nil
}

// Sign returns a URL for bucket/path valid for ttl.
func (s *LocalSigner) Sign(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if ttl <= 0 {
		return "", errors.New("storage: ttl must be positive")
	}
	key, err := ObjectKey(bucket, path)
	if err != nil {
		return "", err
	}
	expires := s.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", s.signature(key, expires))
	return s.baseURL + "/" + escapeKey(key) + "?" + q.Encode(), nil
}

// Verify checks a signature produced by Sign for the object key.
func (s *LocalSigner) Verify(key, expires, sig string) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrSignatureInvalid
	}
	want := s.signature(key, exp)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return ErrSignatureInvalid
	}
	if !s.now().Before(time.Unix(exp, 0)) {
		return ErrURLExpired
	}
	return nil
}

func (s *LocalSigner) signature(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.key)
	fmt.Fprintf(mac, "%s\n%d", key, expires)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Handler serves files from store after verifying the URL signature. Mount
// it with http.StripPrefix so the request path is "/{bucket}/{path}".
func (s *LocalSigner) Handler(store *FileStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		key, err := sanitizeKey(r.URL.Path)
		if err != nil || !strings.Contains(key, "/") {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		switch err := s.Verify(key, q.Get("expires"), q.Get("sig")); {
		case errors.Is(err, ErrURLExpired):
			http.Error(w, "link expired", http.StatusGone)
			return
		case err != nil:
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		fullPath, err := store.Path(key)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		if info, err := os.Stat(fullPath); err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "private, max-age=60")
		http.ServeFile(w, r, fullPath)
	})
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
