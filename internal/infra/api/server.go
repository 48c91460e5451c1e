package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"telegram-access-subscription/internal/config"
	"telegram-access-subscription/internal/domain/model"
	ucport "telegram-access-subscription/internal/domain/ports/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// PassRunner triggers one guarded reconciler pass (sched.ReconcilerWorker).
type PassRunner interface {
	RunOnce(ctx context.Context) (model.PassReport, error)
}

// Deps are the use cases the API drives. Scheduler, Limiter and Health are optional.
type Deps struct {
	Subscriptions ucport.SubscriptionAdmin
	Payments      ucport.PaymentIntake
	Promos        ucport.PromoResolver
	Checkout      ucport.Checkout
	Scheduler     PassRunner
	Limiter       Limiter
	Health        func(ctx context.Context) error
}

// WebhookRateLimit caps payment deliveries per remote host.
type WebhookRateLimit struct {
	Limit  int
	Window time.Duration
}

type Server struct {
	deps    Deps
	cfg     config.HTTPConfig
	auth    *AdminAuth
	rate    WebhookRateLimit
	log     *zerolog.Logger
	handler http.Handler
	srv     *http.Server
}

func NewServer(deps Deps, cfg config.HTTPConfig, rate WebhookRateLimit, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "api").Logger()
	s := &Server{
		deps: deps,
		cfg:  cfg,
		auth: NewAdminAuth(cfg.JWTSecret),
		rate: rate,
		log:  &l,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if s.cfg.WriteTimeout > 0 {
				r.Use(Timeout(s.cfg.WriteTimeout))
			}

			r.Group(func(r chi.Router) {
				r.Use(RateLimit(s.deps.Limiter, s.rate.Limit, s.rate.Window, s.log))
				r.Use(WebhookSecret(s.cfg.WebhookSecret))
				r.Post("/payments/confirmed", paymentConfirmedHandler(s.deps.Payments, s.log))
				r.Post("/payments/events", paymentEventHandler(s.deps.Payments, s.log))
			})

			r.Post("/promocodes/check", promoCheckHandler(s.deps.Promos, s.log))
			r.Post("/checkout", checkoutHandler(s.deps.Checkout, s.log))

			r.Group(func(r chi.Router) {
				r.Use(AdminOnly(s.auth))
				r.Post("/subscriptions", subscriptionCreateHandler(s.deps.Subscriptions, s.log))
				r.Get("/subscriptions/{id}", subscriptionGetHandler(s.deps.Subscriptions, s.log))
				r.Put("/subscriptions/{id}", subscriptionUpdateHandler(s.deps.Subscriptions, s.log))
				r.Delete("/subscriptions/{id}", subscriptionDeleteHandler(s.deps.Subscriptions, s.log))
				r.Post("/subscriptions/{id}/access/sync", subscriptionSyncHandler(s.deps.Subscriptions, s.log))
				r.Get("/subscriptions/{id}/actions", subscriptionActionsHandler(s.deps.Subscriptions, s.log))
				r.Post("/promocodes", promoCreateHandler(s.deps.Promos, s.log))
			})
		})

		// a manual pass is bounded by the worker's pass timeout, not the HTTP one
		r.With(AdminOnly(s.auth), NoWriteDeadline()).Post("/scheduler/run", schedulerRunHandler(s.deps.Scheduler, s.log))
	})

	return Chain(r, Recover(s.log), TraceID(), RequestLog(s.log))
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health(r.Context()); err != nil {
			writeMessage(w, http.StatusServiceUnavailable, "unhealthy")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListenAndServe blocks until ctx is cancelled, then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout + time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info().Msg("http server stopped")
	return nil
}
