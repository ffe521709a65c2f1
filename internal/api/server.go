package api

import (
	"net/http"
	"os"
	"strings"

	"kpicalc/internal/auth"
	"kpicalc/internal/calendar"
	"kpicalc/internal/config"
	"kpicalc/internal/kpi"
	"kpicalc/internal/store"
	"kpicalc/internal/webhooks"
)

type Server struct {
	Store  store.Store
	Calc   *kpi.Calculator
	Pub    *webhooks.Publisher
	Auth   *auth.Verifier
	Broker EventBroker
	Limits *TenantLimiter
}

// NewServer creates a Server. If DATABASE_URL is unset, uses the
// in-memory store; if REDIS_URL is unset, uses the in-memory broker.
func NewServer() (*Server, error) {
	dsn := os.Getenv("DATABASE_URL")
	var s store.Store
	if strings.TrimSpace(dsn) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		// Run migrations (dev helper)
		if os.Getenv("DB_MIGRATE") != "false" {
			_ = sp.MigrateDir("db/migrations")
		}
		s = sp
	}

	families, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	calc := kpi.NewCalculator(calendar.New(calendar.SpainNationalHolidays{}), families)

	var broker EventBroker
	if os.Getenv("REDIS_URL") != "" {
		if rb, err := NewRedisBroker(); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	return &Server{
		Store:  s,
		Calc:   calc,
		Pub:    webhooks.NewPublisher(s),
		Auth:   auth.NewVerifierFromEnv(),
		Broker: broker,
		Limits: NewTenantLimiterFromEnv(),
	}, nil
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}

// HealthHandler reports liveness.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler reports readiness.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
