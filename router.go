package livetiming

import (
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
)

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)

	r.Get("/metrics", s.metrics.Handler().ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		// the live feed is long lived, so it sits outside the timeout group
		r.Get("/live", s.liveHandler)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/sessions/latest", s.latestSessionHandler)
			r.Get("/sessions/{sessionID}/laps", s.sessionLapsHandler)
			r.Get("/sessions/{sessionID}/events", s.sessionEventsHandler)
			r.Get("/drivers", s.listDriversHandler)
			r.Get("/leaderboard", s.leaderboardHandler)

			// race control
			r.Group(func(r chi.Router) {
				r.Use(s.auth.Require(RoleOperator))

				r.Post("/session/{transition}", s.transitionHandler)
				r.Post("/drivers/{driverID}/capture", s.captureHandler)
				r.Post("/drivers/{driverID}/undo", s.undoHandler)
			})

			// admin
			r.Group(func(r chi.Router) {
				r.Use(s.auth.Require(RoleAdmin))

				r.Post("/sessions", s.createSessionHandler)
				r.Put("/drivers/{driverID}", s.upsertDriverHandler)
				r.Delete("/drivers/{driverID}", s.deactivateDriverHandler)
				r.Get("/export", s.exportHandler)
			})
		})
	})

	r.With(s.auth.Require(RoleAdmin)).Get("/debug/bundle", NewDebugger(s.store, s.broker, s.view, s.config, s.logs, s.logger).ServeHTTP)

	return r
}
