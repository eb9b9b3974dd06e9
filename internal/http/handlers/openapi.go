package handlers

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"html/template"
	"net/http"
)

//go:embed openapi.json
var openAPIDocument []byte

const openAPIPath = "/v1/openapi.json"

var docsTemplate = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <title>{{.Title}} {{.Version}}</title>
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <style>body { margin: 0; } redoc { display: block; height: 100vh; }</style>
  </head>
  <body>
    <redoc spec-url="{{.Path}}" hide-download-button></redoc>
    <script src="https://cdn.jsdelivr.net/npm/redoc@2.2.0/bundles/redoc.standalone.js"></script>
  </body>
</html>`))

// apiDocs is the embedded description plus what the docs page needs from it.
type apiDocs struct {
	document []byte
	etag     string
	page     []byte
}

func loadAPIDocs(document []byte) (*apiDocs, error) {
	var meta struct {
		Info struct {
			Title   string `json:"title"`
			Version string `json:"version"`
		} `json:"info"`
	}
	if err := json.Unmarshal(document, &meta); err != nil {
		return nil, err
	}
	var page bytes.Buffer
	err := docsTemplate.Execute(&page, map[string]string{
		"Title":   meta.Info.Title,
		"Version": meta.Info.Version,
		"Path":    openAPIPath,
	})
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(document)
	return &apiDocs{
		document: document,
		etag:     `"` + hex.EncodeToString(sum[:8]) + `"`,
		page:     page.Bytes(),
	}, nil
}

// OpenAPIJSON serves the embedded API description. Clients holding the
// current ETag get 304.
func (a *App) OpenAPIJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("ETag", a.docs.etag)
	w.Header().Set("Cache-Control", "public, max-age=300")
	if r.Header.Get("If-None-Match") == a.docs.etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(a.docs.document)
}

func (a *App) OpenAPIDocs(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(a.docs.page)
}
