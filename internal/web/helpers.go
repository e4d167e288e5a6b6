package web

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"
)

func itoa(value int) string {
	return strconv.Itoa(value)
}

func esc(value string) string {
	return templ.EscapeString(value)
}

func pageURL(base string, page, limit int) string {
	if strings.Contains(base, "?") {
		return base + "&page=" + itoa(page) + "&limit=" + itoa(limit)
	}
	return base + "?page=" + itoa(page) + "&limit=" + itoa(limit)
}

func queryURL(base string, values url.Values) string {
	encoded := values.Encode()
	if encoded == "" {
		return base
	}
	return base + "?" + encoded
}

var prodAssetVersion = func() string {
	startedAt := time.Now().UTC().Format(time.RFC3339)
	sum := sha256.Sum256([]byte(startedAt))
	return hex.EncodeToString(sum[:8])
}()

func assetPath(path string) string {
	if path == "" || !strings.HasPrefix(path, "/static/") {
		return path
	}
	if os.Getenv("ENV") == "prod" {
		return appendAssetVersion(path, prodAssetVersion)
	}
	trimmed := strings.TrimPrefix(path, "/static/")
	fsPath := filepath.Join("static", trimmed)
	data, err := os.ReadFile(fsPath)
	if err != nil {
		return path
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:8])
	return appendAssetVersion(path, hash)
}

func appendAssetVersion(path string, hash string) string {
	if hash == "" {
		return path
	}
	if strings.Contains(path, "?") {
		return path + "&v=" + hash
	}
	return path + "?v=" + hash
}

// htmlWriter collects the first write error so page bodies can be written
// without checking every call.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (h *htmlWriter) raw(parts ...string) {
	for _, part := range parts {
		if h.err != nil {
			return
		}
		_, h.err = io.WriteString(h.w, part)
	}
}

func (h *htmlWriter) text(value string) {
	h.raw(esc(value))
}

func (h *htmlWriter) pagination(p PaginationData) {
	if p.TotalPages <= 1 {
		return
	}
	h.raw(`<nav class="pagination">`)
	if p.HasPrev {
		h.raw(`<a href="`, esc(pageURL(p.BasePath, p.PrevPage, p.PerPage)), `">Previous</a>`)
	}
	h.raw(`<span>Page `, itoa(p.Page), ` of `, itoa(p.TotalPages), ` (`, itoa(p.Total), ` total)</span>`)
	if p.HasNext {
		h.raw(`<a href="`, esc(pageURL(p.BasePath, p.NextPage, p.PerPage)), `">Next</a>`)
	}
	h.raw(`</nav>`)
}
