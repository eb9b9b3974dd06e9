package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"
)

func newSignerFixture(t *testing.T) (*FileStore, *LocalSigner, *time.Time) {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	signer, err := NewLocalSigner("http://localhost:8080/v1/files/", []byte("secret"), func() time.Time { return now })
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return store, signer, &now
}

func TestFileStoreWriteSanitizesKeys(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	key, err := store.Write(context.Background(), "./references\\shots/a.png", []byte("x"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if key != "references/shots/a.png" {
		t.Fatalf("key = %q", key)
	}
	if _, err := store.Write(context.Background(), "../escape.png", []byte("x")); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
}

func TestLocalSignerRoundTrip(t *testing.T) {
	store, signer, _ := newSignerFixture(t)
	if _, err := store.Write(context.Background(), "references/shot 1.png", []byte("png-data")); err != nil {
		t.Fatalf("write: %v", err)
	}
	signed, err := signer.Sign(context.Background(), "references", "/shot 1.png", 15*time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !strings.HasPrefix(signed, "http://localhost:8080/v1/files/references/shot%201.png?") {
		t.Fatalf("signed url = %q", signed)
	}

	u, _ := url.Parse(signed)
	handler := http.StripPrefix("/v1/files", signer.Handler(store))
	req := httptest.NewRequest(http.MethodGet, u.RequestURI(), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body, _ := io.ReadAll(rec.Body)
	if string(body) != "png-data" {
		t.Fatalf("body = %q", body)
	}
}

func TestLocalSignerRejectsTamperedAndExpired(t *testing.T) {
	store, signer, now := newSignerFixture(t)
	if _, err := store.Write(context.Background(), "workspace/a.mp4", []byte("video")); err != nil {
		t.Fatalf("write: %v", err)
	}
	signed, err := signer.Sign(context.Background(), "workspace", "a.mp4", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	u, _ := url.Parse(signed)
	handler := http.StripPrefix("/v1/files", signer.Handler(store))

	tampered := strings.Replace(u.RequestURI(), "a.mp4", "b.mp4", 1)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tampered, nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("tampered status = %d, want 403", rec.Code)
	}

	*now = now.Add(2 * time.Minute)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, u.RequestURI(), nil))
	if rec.Code != http.StatusGone {
		t.Fatalf("expired status = %d, want 410", rec.Code)
	}
	q := u.Query()
	if err := signer.Verify("workspace/a.mp4", q.Get("expires"), q.Get("sig")); !errors.Is(err, ErrURLExpired) {
		t.Fatalf("verify error = %v, want ErrURLExpired", err)
	}
}

func TestLocalSignerValidation(t *testing.T) {
	_, signer, _ := newSignerFixture(t)
	if _, err := signer.Sign(context.Background(), "", "a.png", time.Minute); err == nil {
		t.Fatalf("expected error for empty bucket")
	}
	if _, err := signer.Sign(context.Background(), "refs", "../../etc/passwd", time.Minute); err == nil {
		t.Fatalf("expected error for traversal")
	}
	if _, err := signer.Sign(context.Background(), "refs", "a.png", 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
	if _, err := NewLocalSigner("http://x", nil, nil); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestFileStorePutUsesBucketDirectory(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Put(context.Background(), "workspace", "/clips/a.mp4", []byte("v"), "video/mp4"); err != nil {
		t.Fatalf("put: %v", err)
	}
	path, err := store.Path("workspace/clips/a.mp4")
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	if err := store.Put(context.Background(), "a/b", "x.mp4", []byte("v"), ""); err == nil {
		t.Fatalf("expected nested bucket to be rejected")
	}
}
