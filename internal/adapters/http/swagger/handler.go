// Package swagger serves the OpenAPI description of the relay's HTTP API.
package swagger

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// OpenAPI is the relay's API description.
//
//go:embed openapi.yaml
var OpenAPI []byte

// Paths of the docs routes.
const (
	DocsPath    = "/api-docs"
	OpenAPIPath = "/openapi.yaml"
)

var (
	openapiETag = func() string { sum := sha256.Sum256(OpenAPI); return `"` + hex.EncodeToString(sum[:8]) + `"` }()
	servedSince = time.Now()
)

// Register mounts DocsPath (ReDoc page) and OpenAPIPath on r.
func Register(r chi.Router) {
	r.Get(DocsPath, serveDocs)
	r.Get(OpenAPIPath, serveOpenAPI)
}

func serveDocs(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(docsPage))
}

// serveOpenAPI answers conditional requests with 304 via the content hash.
func serveOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	w.Header().Set("ETag", openapiETag)
	http.ServeContent(w, r, "openapi.yaml", servedSince, bytes.NewReader(OpenAPI))
}

const docsPage = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>livebid relay API</title></head>
<body style="margin:0">
<div id="docs"></div>
<script src="https://cdn.redoc.ly/redoc/latest/bundles/redoc.standalone.js"></script>
<script>Redoc.init('` + OpenAPIPath + `', {hideDownloadButton: false}, document.getElementById('docs'));</script>
</body>
</html>`
