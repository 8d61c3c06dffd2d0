package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/example/tablesched/internal/auth"
	"github.com/example/tablesched/internal/engine"
	"github.com/example/tablesched/internal/metrics"
)

// Authenticator checks a username and password pair.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (auth.User, error)
}

type Server struct {
	Service  *engine.Service
	Users    Authenticator
	Sessions *auth.Sessions
	// Ping reports backend health for /healthz. Nil means always healthy.
	Ping func(ctx context.Context) error

	RequestTimeout time.Duration
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if s.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.RequestTimeout))
	}

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.Sessions.OptionalAuth)
			r.Get("/availability", s.handleAvailability)
			r.Post("/reservations", s.handleBook)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.Sessions.RequireAuth)
			r.Get("/reservations/{id}", s.handleGet)
			r.Post("/reservations/{id}/cancel", s.handleCancel)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.Sessions.RequireStaff)
			r.Get("/reservations", s.handleList)
			r.Patch("/reservations/{id}", s.handleUpdate)
			r.Post("/reservations/{id}/seat", s.handleSeat)
			r.Post("/reservations/{id}/complete", s.handleComplete)
			r.Post("/reservations/{id}/no-show", s.handleNoShow)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.Ping != nil {
		if err := s.Ping(r.Context()); err != nil {
			log.WithError(err).Warn("health check failed")
			respondError(w, http.StatusServiceUnavailable, "unhealthy", err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			log.WithFields(log.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Debug("http request")
		}()
		next.ServeHTTP(ww, r)
	})
}

func Start(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.WithField("addr", addr).Info("listening")
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
