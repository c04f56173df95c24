package parts

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// MirrorPrefix is the URL path under which a Mirror serves the library.
// A viewer pointed at the mirror uses "http://host:port" + MirrorPrefix
// as its parts base.
const MirrorPrefix = "/ldraw/"

// Mirror serves a local LDraw library directory over HTTP. Lookups ignore
// case, since library archives mix "PARTS/3001.DAT" and "parts/3001.dat".
type Mirror struct {
	router chi.Router
	root   string
	log    *zap.Logger
}

// NewMirror creates a Mirror for the library rooted at root.
func NewMirror(root string, log *zap.Logger) *Mirror {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Mirror{root: root, log: log}
	m.setupRoutes()
	return m
}

func (m *Mirror) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.router.ServeHTTP(w, r)
}

func (m *Mirror) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(requestLogger(m.log))

	r.Get("/health", m.handleHealth)
	r.Get(MirrorPrefix+"*", m.handleFile)
	r.Head(MirrorPrefix+"*", m.handleFile)

	m.router = r
}

func (m *Mirror) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (m *Mirror) handleFile(w http.ResponseWriter, r *http.Request) {
	rel := chi.URLParam(r, "*")
	full, ok := m.lookup(rel)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	http.ServeFile(w, r, full)
}

// lookup resolves rel under the root, matching each segment
// case-insensitively. Paths escaping the root are rejected.
func (m *Mirror) lookup(rel string) (string, bool) {
	clean := path.Clean("/" + rel)
	if clean == "/" {
		return "", false
	}
	cur := m.root
	for _, seg := range strings.Split(strings.TrimPrefix(clean, "/"), "/") {
		next := filepath.Join(cur, seg)
		if _, err := os.Stat(next); err == nil {
			cur = next
			continue
		}
		entries, err := os.ReadDir(cur)
		if err != nil {
			return "", false
		}
		found := false
		for _, e := range entries {
			if strings.EqualFold(e.Name(), seg) {
				cur = filepath.Join(cur, e.Name())
				found = true
				break
			}
		}
		if !found {
			return "", false
		}
	}
	info, err := os.Stat(cur)
	if err != nil || info.IsDir() {
		return "", false
	}
	return cur, true
}

// requestLogger logs incoming requests.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.status),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.Duration("took", time.Since(start)),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
