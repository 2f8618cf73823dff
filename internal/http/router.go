package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/luisfernandobanegasro/parcial/internal/http/charge"
	"github.com/luisfernandobanegasro/parcial/internal/http/export"
	"github.com/luisfernandobanegasro/parcial/internal/http/intent"
	"github.com/luisfernandobanegasro/parcial/internal/http/matching"
	"github.com/luisfernandobanegasro/parcial/internal/http/payment"
	"github.com/luisfernandobanegasro/parcial/internal/http/reconciliation"
	"github.com/luisfernandobanegasro/parcial/internal/http/statement"
	"github.com/luisfernandobanegasro/parcial/internal/http/webhookauth"
)

type Options struct {
	Timeout        time.Duration
	AllowedOrigins []string
	Production     bool

	WebhookSecret    []byte
	WebhookIssuer    string
	WebhookRateLimit int
}

type Handlers struct {
	Charges        *charge.Handler
	Payments       *payment.Handler
	Intents        *intent.Handler
	Statements     *statement.Handler
	Exports        *export.Handler
	Reconciliation *reconciliation.Handler
	PayerMappings  *matching.Handler
}

func New(opts Options, h Handlers) http.Handler {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	if opts.WebhookRateLimit <= 0 {
		opts.WebhookRateLimit = 60
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeaders(opts.Production))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(opts.Timeout))

		r.Route("/concepts", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			h.Charges.ConceptRoutes(r)
		})

		r.Route("/charges", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			h.Charges.Routes(r)
		})

		r.Route("/late-fees", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			h.Charges.LateFeeRoutes(r)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			h.Payments.Routes(r)
		})

		r.Route("/payment-intents", func(r chi.Router) {
			h.Intents.Routes(r)

			r.Group(func(r chi.Router) {
				r.Use(httprate.Limit(opts.WebhookRateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
				r.Use(webhookauth.Middleware(opts.WebhookSecret, opts.WebhookIssuer))
				r.Use(middleware.AllowContentType("application/json"))
				h.Intents.WebhookRoutes(r)
			})
		})

		r.Route("/account-statement", func(r chi.Router) {
			h.Statements.Routes(r)

			if h.Exports != nil {
				h.Exports.Routes(r)
			}
		})

		r.Route("/reconciliation", h.Reconciliation.Routes)

		r.Route("/payer-mappings", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			h.PayerMappings.Routes(r)
		})
	})

	return router
}

func securityHeaders(production bool) func(http.Handler) http.Handler {
	sec := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'",
		SSLRedirect:           production,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         !production,
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := sec.Process(w, r); err != nil {
				slog.Warn("secure headers blocked request", "error", err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
