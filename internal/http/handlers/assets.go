package handlers

import (
	"net/http"
	"strings"
	"time"
)

type signedAssetResponse struct {
	URL       string     `json:"url"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// SignedAsset returns a usable signed URL for ?bucket=&path= from the cache.
func (a *App) SignedAsset(w http.ResponseWriter, r *http.Request) {
	if a.urls == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "storage signing not configured")
		return
	}
	bucket := strings.TrimSpace(r.URL.Query().Get("bucket"))
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if bucket == "" || path == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "bucket and path are required")
		return
	}
	if len(a.buckets) > 0 {
		if _, ok := a.buckets[bucket]; !ok {
			a.error(w, http.StatusBadRequest, "bad_request", "unknown bucket")
			return
		}
	}

	url, err := a.urls.Get(r.Context(), bucket, path)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	resp := signedAssetResponse{URL: url}
	if entry, ok := a.urls.Entry(bucket, path); ok && entry.URL == url {
		expires := entry.ExpiresAt.UTC()
		resp.ExpiresAt = &expires
	}
	w.Header().Set("Cache-Control", "no-store")
	a.json(w, http.StatusOK, resp)
}
