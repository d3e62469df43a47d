package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/leadflow/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/leadflow/internal/http/middleware"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// Scopes checked on operator routes.
const (
	ScopeMonitoringRead = "monitoring:read"
	ScopeLeadsRead      = "leads:read"
)

// Config holds router configuration
type Config struct {
	Logger     *logging.Logger
	Sessions   *handlers.SessionHandler
	Monitoring *handlers.MonitoringHandler
	Leads      *handlers.LeadsHandler

	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// AdminAuthSecret enables the operator routes. Without it they are not
	// mounted.
	AdminAuthSecret string

	// MessageRateLimit is messages per second per session; zero disables it.
	MessageRateLimit float64
	MessageBurst     int
	RequestTimeout   time.Duration
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg.Sessions == nil {
		panic("router: session handler cannot be nil")
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/v1/sessions/{sessionID}", func(s chi.Router) {
		post := s.With()
		if cfg.MessageRateLimit > 0 {
			post = s.With(httpmiddleware.SessionRateLimit(httpmiddleware.NewRateLimiter(cfg.MessageRateLimit, cfg.MessageBurst)))
		}
		post.Post("/messages", cfg.Sessions.PostMessage)
		s.Get("/", cfg.Sessions.GetSession)
		s.Post("/abandon", cfg.Sessions.Abandon)
	})

	if cfg.AdminAuthSecret == "" {
		return r
	}
	if cfg.Monitoring != nil {
		r.Route("/v1/monitoring", func(m chi.Router) {
			m.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret, ScopeMonitoringRead))
			m.Get("/sessions/{sessionID}/logs", cfg.Monitoring.SessionLogs)
			m.Get("/correlations/{correlationID}/logs", cfg.Monitoring.CorrelationLogs)
			m.Get("/metrics", cfg.Monitoring.Metrics)
		})
	}
	if cfg.Leads != nil {
		r.Route("/v1/leads", func(l chi.Router) {
			l.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret, ScopeLeadsRead))
			l.Get("/", cfg.Leads.List)
			l.Get("/{sessionID}", cfg.Leads.Get)
		})
	}
	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
