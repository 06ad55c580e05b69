// Package middleware implements the static-file serving pipeline: URI
// decoding and traversal rejection, directory-to-index resolution with a
// trailing-slash redirect, a single-page-application fallback, and MIME
// type resolution, all driven off the request line httpparse hands back.
package middleware

import (
	"context"
	"errors"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/groove-net/ignis/internal/httpparse"
	"github.com/groove-net/ignis/internal/logging"
)

// ErrMalformedURI names a request URI that cannot be safely mapped to a
// filesystem path: invalid percent-encoding, or a decoded path with a ".."
// segment. Resolve does not return it; it answers those cases with a
// Response whose Status is 400.
var ErrMalformedURI = errors.New("middleware: malformed request URI")

// Response is the middleware's decision for one request: either a file to
// stream, a redirect, or an error status with no body.
type Response struct {
	Status      int
	FilePath    string // set when Status == 200 and a file should be streamed
	ContentType string
	Location    string // set when Status == 301
}

// Router maps request URIs onto files beneath Root, falling back to a
// single-page-application entry point when IndexFallback is set and the
// path doesn't resolve to a real file.
type Router struct {
	Root          string
	IndexFallback string // e.g. "index.html", served for any non-file path
	log           *logging.Logger
}

// NewRouter builds a Router serving files out of root, with an SPA
// fallback to root/indexFallback (pass "" to disable the fallback and
// return 404 for unknown paths instead).
func NewRouter(root, indexFallback string, log *logging.Logger) *Router {
	return &Router{Root: root, IndexFallback: indexFallback, log: log}
}

// Resolve decides how to answer req. It never touches the network; the
// caller is responsible for streaming FilePath's contents (typically via
// engine.Conn.SendfileAsync) once Resolve returns a 200.
func (r *Router) Resolve(ctx context.Context, req *httpparse.Request) Response {
	rawPath := req.URI
	if idx := strings.IndexByte(rawPath, '?'); idx >= 0 {
		rawPath = rawPath[:idx]
	}

	decoded, err := url.PathUnescape(rawPath)
	if err != nil {
		return Response{Status: 400}
	}

	if hasDotDotSegment(decoded) {
		return Response{Status: 400}
	}

	cleaned := path.Clean("/" + decoded)
	fsPath := filepath.Join(r.Root, filepath.FromSlash(cleaned))

	info, err := os.Stat(fsPath)
	switch {
	case err == nil && info.IsDir():
		if !strings.HasSuffix(rawPath, "/") {
			return Response{Status: 301, Location: rawPath + "/"}
		}
		indexPath := filepath.Join(fsPath, "index.html")
		if idxInfo, idxErr := os.Stat(indexPath); idxErr == nil && !idxInfo.IsDir() {
			return Response{Status: 200, FilePath: indexPath, ContentType: contentType(indexPath)}
		}
		return r.fallbackOrNotFound()

	case err == nil:
		return Response{Status: 200, FilePath: fsPath, ContentType: contentType(fsPath)}

	case os.IsNotExist(err):
		return r.fallbackOrNotFound()

	default:
		r.log.Err().Err(err).Log("middleware: stat failed")
		return Response{Status: 500}
	}
}

func (r *Router) fallbackOrNotFound() Response {
	if r.IndexFallback == "" {
		return Response{Status: 404}
	}
	fallback := filepath.Join(r.Root, r.IndexFallback)
	if info, err := os.Stat(fallback); err == nil && !info.IsDir() {
		return Response{Status: 200, FilePath: fallback, ContentType: contentType(fallback)}
	}
	return Response{Status: 404}
}

// hasDotDotSegment reports whether decoded contains a literal ".." path
// segment, rejected unconditionally per the static file middleware's
// traversal policy regardless of whether path.Clean would otherwise
// neutralize it: a segment name like "a..b" is untouched and allowed.
func hasDotDotSegment(decoded string) bool {
	for _, seg := range strings.Split(decoded, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

func contentType(fsPath string) string {
	ext := filepath.Ext(fsPath)
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func statusText(status int) string {
	switch status {
	case 200:
		return "OK"
	case 301:
		return "Moved Permanently"
	case 400:
		return "Bad Request"
	case 404:
		return "Not Found"
	case 500:
		return "Internal Server Error"
	default:
		return strconv.Itoa(status)
	}
}
