package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/assanaclinic/whatsapp-concierge/internal/http/handlers"
	httpmiddleware "github.com/assanaclinic/whatsapp-concierge/internal/http/middleware"
	"github.com/assanaclinic/whatsapp-concierge/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger          *logging.Logger
	WebhookHandler  *handlers.WebhookHandler
	TestingHandler  *handlers.TestingHandler
	MetricsHandler  http.Handler
	AdminAuthSecret string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints: the platform handshake and delivery, plus health.
	r.Get("/webhook", cfg.WebhookHandler.HandleVerification)
	r.Post("/webhook", cfg.WebhookHandler.HandleInbound)
	r.Get("/", cfg.TestingHandler.Home)
	r.Get("/health", cfg.TestingHandler.Health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Manual testing endpoints. Protected when an admin secret is set,
	// open on local development setups without one.
	r.Group(func(manual chi.Router) {
		if cfg.AdminAuthSecret != "" {
			manual.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
		}
		manual.Post("/send-message", cfg.TestingHandler.SendMessage)
		manual.Post("/test-openai", cfg.TestingHandler.TestOpenAI)
		manual.Get("/check-appointment/{whatsapp_number}", cfg.TestingHandler.CheckAppointment)
		manual.Post("/send-appointment/{whatsapp_number}", cfg.TestingHandler.SendAppointment)
		manual.Post("/update-name/{whatsapp_number}", cfg.TestingHandler.UpdateName)
		manual.Post("/test-template/{whatsapp_number}", cfg.TestingHandler.TestTemplate)
		manual.Get("/check-templates", cfg.TestingHandler.CheckTemplates)
	})

	return r
}
