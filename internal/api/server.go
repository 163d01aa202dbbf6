// Package api exposes settler state over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

type Server struct {
	Router *chi.Mux
	log    *logrus.Entry
	srv    *http.Server
}

func NewServer(handler *Handler, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", handler.ListOrders)
		r.Post("/id", handler.OrderID)
		r.Get("/{orderId}", handler.GetOrder)
		r.Get("/{orderId}/deposit", handler.GetDeposit)
		r.Post("/claim", handler.ClaimOrder)
		r.Post("/deposit", handler.Deposit)
		r.Post("/cancel-deposit", handler.CancelDeposit)
		r.Post("/purchase", handler.PurchaseOrder)
		r.Post("/purchase-terms", handler.ModifyPurchaseTerms)
		r.Post("/prove", handler.Prove)
		r.Post("/optimistic-payout", handler.OptimisticPayout)
		r.Post("/dispute", handler.Dispute)
		r.Post("/complete-dispute", handler.CompleteDispute)
	})
	r.Route("/governance/fee", func(r chi.Router) {
		r.Get("/", handler.GetGovernanceFee)
		r.Post("/", handler.ScheduleGovernanceFee)
		r.Post("/apply", handler.ApplyGovernanceFee)
	})
	if handler.Faucet != nil {
		r.Post("/custody/mint", handler.Mint)
	}
	if handler.Attester != nil {
		r.Post("/oracle/attest", handler.Attest)
	}

	return &Server{Router: r, log: logger.WithField("component", "api")}
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("http server listening")
		errCh <- s.srv.ListenAndServe()
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
		return s.srv.Shutdown(shutdownCtx)
	}
}

func requestLogger(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.WithFields(logrus.Fields{
				"component":  "api",
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"duration":   time.Since(start),
				"request_id": middleware.GetReqID(r.Context()),
			}).Debug("http request")
		})
	}
}
