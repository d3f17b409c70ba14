// Package http serves the sheet editor: the HTMX page, its partials, a small
// JSON API and the operational endpoints.
package http

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"quotesheet/internal/core"
	"quotesheet/internal/log"
	"quotesheet/internal/middleware/ratelimit"
	"quotesheet/internal/middleware/security"
	"quotesheet/internal/middleware/trace"
	"quotesheet/internal/session"
	appweb "quotesheet/web"
)

// Pinger reports whether the row storage is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configure a Server.
type Options struct {
	Addr               string
	Registry           *session.Registry
	Pinger             Pinger
	RateLimitPerMinute int
	Logger             *log.Logger
}

// Server wraps http.Server with the sheet routes and their middleware.
type Server struct {
	http.Server
	templates *template.Template
	registry  *session.Registry
	pinger    Pinger
	logger    *log.Logger

	detector *security.Detector
	tracer   *trace.Middleware
	limiter  *ratelimit.Limiter
	stats    *sheetStats

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(opts Options) (*Server, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("new server: session registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}

	t, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("new server: %w", err)
	}

	limiterCfg := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		limiterCfg.RequestsPerMinute = opts.RateLimitPerMinute
	}

	s := &Server{
		templates: t,
		registry:  opts.Registry,
		pinger:    opts.Pinger,
		logger:    logger.WithComponent(log.ComponentHTTP),
		detector:  security.NewDetector(),
		limiter:   ratelimit.NewLimiter(limiterCfg),
		stats:     newSheetStats(),
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	mux := http.NewServeMux()

	static, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("new server: mount static assets: %w", err)
	}
	mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(
		http.StripPrefix("/static/", http.FileServer(http.FS(static)))))

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /ui/sheet", s.handleSheet)
	mux.HandleFunc("POST /rows", s.handleAppendRow)
	mux.HandleFunc("POST /rows/{id}", s.handleEditRow)

	mux.HandleFunc("GET /api/sheet", s.handleAPISheet)
	mux.HandleFunc("POST /api/rows", s.handleAPIAppendRow)
	mux.HandleFunc("PUT /api/rows/{id}", s.handleAPIEditRow)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.chain(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// chain wraps the mux, outermost first: tracing, probe detection, security
// headers, rate limiting of mutations, then no-store caching.
func (s *Server) chain(h http.Handler) http.Handler {
	h = security.NoStore(h)
	h = s.limiter.Middleware(s.detector.ExtractClientIP, isMutation)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.detector.Middleware(h)
	return s.tracer.Middleware(h)
}

func isMutation(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func parseTemplates() (*template.Template, error) {
	funcs := template.FuncMap{
		"total":  formatTotal,
		"amount": core.FormatAmount,
	}
	t, err := template.New("").Funcs(funcs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return t, nil
}

// Shutdown stops background work and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
