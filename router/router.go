// router/router.go

// Package router builds a chi.Router pre-wired with the corsgate middleware
// stack for applications that want the batteries included.
package router

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dalemusser/corsgate/config"
	"github.com/dalemusser/corsgate/logging"
	"github.com/dalemusser/corsgate/middleware"
)

// New creates a chi.Router pre-wired with:
//   - RequestID / RealIP
//   - panic recovery (logging.Recoverer)
//   - request logging with CORS fields (logging.RequestLogger)
//   - CORS enforcement from config (no-op when enable_cors=false)
//
// Metrics exposition stays an app-level decision; mount metrics.Handler()
// wherever it belongs. Returns an error when the configuration resolves to
// a contradictory policy.
func New(cfg *config.Config, logger *zap.Logger) (chi.Router, error) {
	cors, err := middleware.CORSFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(logging.Recoverer(logger))

	// Logging wraps CORS so the emitted allow-origin header is visible in
	// the request record.
	r.Use(logging.RequestLogger(logger))
	r.Use(cors)

	return r, nil
}
