// Package web serves the timeline over HTTP: a JSON API, a server-rendered
// timeline page, an ICS feed and a PNG preview.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"tztimeline/internal/app"
	"tztimeline/internal/capture"
	"tztimeline/internal/catalog"
	"tztimeline/internal/config"
	"tztimeline/internal/ics"
	appLog "tztimeline/internal/log"
	"tztimeline/internal/timerange"
)

const previewCacheTTL = 30 * time.Second

// Server provides the HTTP surface over one App.
type Server struct {
	cfg      *config.Config
	app      *app.App
	fetcher  *ics.Fetcher
	capturer capture.Capturer
	router   chi.Router
	page     *template.Template

	// The PNG preview launches a browser; keep the last one briefly.
	previewMu sync.RWMutex
	preview   *previewCache
}

type previewCache struct {
	png       []byte
	updatedAt time.Time
}

// NewServer wires routes. A nil capturer selects headless Chromium.
func NewServer(cfg *config.Config, a *app.App, capturer capture.Capturer) *Server {
	if capturer == nil {
		capturer = capture.Chromium{}
	}
	s := &Server{
		cfg:      cfg,
		app:      a,
		fetcher:  newFetcher(cfg),
		capturer: capturer,
		page:     timelineTemplate,
	}
	s.router = s.routes()
	return s
}

// newFetcher refuses inward addresses unless the config allows them.
func newFetcher(cfg *config.Config) *ics.Fetcher {
	if cfg != nil && cfg.Import.AllowPrivateHosts {
		return ics.NewFetcher(nil)
	}
	return ics.NewFetcher(ics.PublicOnlyClient(15 * time.Second))
}

// Handler returns the router, behind Basic Auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/timezones", s.handleTimezones)
		r.Get("/selection", s.handleSelection)
		r.Post("/selection/toggle", s.handleToggle)
		r.Post("/selection/all", s.handleSelectAll)
		r.Get("/range", s.handleGetRange)
		r.Put("/range", s.handleSetRange)
		r.Get("/timeline", s.handleTimeline)
		r.Get("/now", s.handleNow)
		r.Get("/series", s.handleSeries)
		r.Post("/import", s.handleImport)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/timeline", http.StatusFound)
	})
	r.Get("/timeline", s.handleTimelinePage)
	r.Get("/timeline.ics", s.handleExport)
	r.Get("/preview.png", s.handlePreview)
	return r
}

// ListenAndServe runs the server until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		appLog.Info("stopping HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

// SelfURL is the address the server can reach itself at, for captures.
func (s *Server) SelfURL(path string) string {
	host, port, err := net.SplitHostPort(s.cfg.Listen)
	if err != nil {
		return "http://" + s.cfg.Listen + path
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + path
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start),
		)
	})
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="tztimeline", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// statusFor maps domain errors to client errors; anything else is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrUnknownTimezone),
		errors.Is(err, timerange.ErrInvalidInstant),
		errors.Is(err, ics.ErrNoEvent):
		return http.StatusBadRequest
	case errors.Is(err, ics.ErrForbiddenHost):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// writeFailure logs server-side failures and reports err to the client.
func writeFailure(w http.ResponseWriter, err error, msg string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		appLog.Error(msg, err)
		writeError(w, status, msg)
		return
	}
	writeError(w, status, err.Error())
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}
