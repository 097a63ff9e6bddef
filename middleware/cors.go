// middleware/cors.go

// Package middleware applies corsgate policies to net/http request handling.
// It is chi-compatible but depends only on the standard handler signature:
//
//	mw, err := middleware.CORS(middleware.Options{Base: pol, Registry: reg})
//	if err != nil { ... }
//	r.Use(mw)
//
// Or, letting configuration decide whether CORS is active at all:
//
//	r.Use(middleware.CORSFromConfig(cfg, logger))
package middleware

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dalemusser/corsgate/config"
	"github.com/dalemusser/corsgate/engine"
	"github.com/dalemusser/corsgate/httputil"
	"github.com/dalemusser/corsgate/metrics"
	"github.com/dalemusser/corsgate/policy"
)

// Options configures the CORS middleware.
type Options struct {
	// Base is the application-wide policy applied to every route that has
	// no override.
	Base policy.Policy

	// Registry optionally supplies per-route / per-group overrides and the
	// exempt set. Routes are looked up by chi route pattern when available,
	// falling back to the request path.
	Registry *policy.Registry

	// Logger receives debug records for rejected requests. Nil disables.
	Logger *zap.Logger
}

// CORS returns a middleware enforcing the configured policies. Every
// policy combination reachable through the registry is resolved and
// validated here, at construction time, so contradictions such as a
// credentialed wildcard-only origin set surface as an error before the
// server starts — never per request.
func CORS(opts Options) (func(next http.Handler) http.Handler, error) {
	if _, err := policy.Resolve(opts.Base); err != nil {
		return nil, err
	}
	for key, frags := range opts.Registry.Fragments() {
		if _, err := policy.Resolve(opts.Base, frags...); err != nil {
			return nil, fmt.Errorf("route %q: %w", key, err)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			frags, exempt := lookupRoute(opts.Registry, r)
			if exempt {
				metrics.Observe(metrics.KindSimple, metrics.OutcomeExempt)
				next.ServeHTTP(w, r)
				return
			}

			// Fragments were validated at construction; a resolve error here
			// would mean the registry was mutated after the server started.
			pol, err := policy.Resolve(opts.Base, frags...)
			if err != nil {
				logger.Error("cors policy resolve failed", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			origin := r.Header.Get(engine.HeaderOrigin)

			if engine.IsPreflight(r) {
				d := engine.Preflight(pol, origin,
					r.Header.Get(engine.HeaderRequestMethod),
					engine.ParseRequestHeaders(r.Header.Get(engine.HeaderRequestHeaders)))
				mergeHeaders(w.Header(), d.Header)

				if d.Rejected {
					metrics.Observe(metrics.KindPreflight, rejectOutcome(d.Reason))
					logger.Debug("cors preflight rejected",
						zap.String("path", r.URL.Path),
						zap.String("origin", origin),
						zap.String("reason", string(d.Reason)),
					)
					httputil.JSONError(w, http.StatusForbidden, "cors_rejected", string(d.Reason))
					return
				}

				metrics.Observe(metrics.KindPreflight, grantOutcome(d, origin))
				// Preflight responses are header-only.
				w.WriteHeader(http.StatusNoContent)
				return
			}

			d := engine.Simple(pol, origin)
			mergeHeaders(w.Header(), d.Header)
			metrics.Observe(metrics.KindSimple, grantOutcome(d, origin))
			next.ServeHTTP(w, r)
		})
	}, nil
}

// CORSFromConfig returns a middleware built from the loaded configuration.
//
// If cfg is nil or cfg.EnableCORS is false, it returns an identity
// middleware that does nothing, making it safe to unconditionally call:
//
//	r.Use(middleware.CORSFromConfig(cfg, logger))
//
// and let config decide whether CORS is active. Configuration errors are
// returned rather than deferred to request time.
func CORSFromConfig(cfg *config.Config, logger *zap.Logger) (func(next http.Handler) http.Handler, error) {
	if cfg == nil || !cfg.EnableCORS {
		return func(next http.Handler) http.Handler { return next }, nil
	}

	base, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	return CORS(Options{Base: base, Registry: reg, Logger: logger})
}

// WebsocketCORS returns a middleware that gates WebSocket upgrade routes on
// origin policy alone. Disallowed or missing origins are refused with 400
// before any upgrade takes place; admitted requests pass through untouched,
// since the opening handshake carries no access-control response headers.
//
// Mount it only on upgrade routes; for a combined Accept helper see the
// websocket package.
func WebsocketCORS(opts Options) (func(next http.Handler) http.Handler, error) {
	if _, err := policy.Resolve(opts.Base); err != nil {
		return nil, err
	}
	for key, frags := range opts.Registry.Fragments() {
		if _, err := policy.Resolve(opts.Base, frags...); err != nil {
			return nil, fmt.Errorf("route %q: %w", key, err)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			frags, exempt := lookupRoute(opts.Registry, r)
			if exempt {
				metrics.Observe(metrics.KindWebsocket, metrics.OutcomeExempt)
				next.ServeHTTP(w, r)
				return
			}

			pol, err := policy.Resolve(opts.Base, frags...)
			if err != nil {
				logger.Error("cors policy resolve failed", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			origin := r.Header.Get(engine.HeaderOrigin)
			if !engine.Websocket(pol, origin) {
				metrics.Observe(metrics.KindWebsocket, metrics.OutcomeOriginRejected)
				logger.Debug("websocket origin rejected",
					zap.String("path", r.URL.Path),
					zap.String("origin", origin),
				)
				httputil.JSONError(w, http.StatusBadRequest, "origin_not_allowed",
					"websocket origin is not allowed")
				return
			}

			metrics.Observe(metrics.KindWebsocket, metrics.OutcomeAllowed)
			next.ServeHTTP(w, r)
		})
	}, nil
}

// lookupRoute finds the registry entry for a request, preferring the chi
// route pattern (populated once routing has happened, e.g. for middleware
// mounted with r.With / r.Route) and falling back to the URL path, which is
// what top-level r.Use middleware sees.
func lookupRoute(reg *policy.Registry, r *http.Request) ([]policy.Fragment, bool) {
	if reg == nil {
		return nil, false
	}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			if frags, exempt := reg.Lookup(pattern); exempt || len(frags) > 0 {
				return frags, exempt
			}
		}
	}
	return reg.Lookup(r.URL.Path)
}

// mergeHeaders copies decision headers into the response. Vary is appended
// rather than replaced so values set by other middleware survive.
func mergeHeaders(dst, src http.Header) {
	for name, values := range src {
		if name == engine.HeaderVary {
			for _, v := range values {
				dst.Add(name, v)
			}
			continue
		}
		dst[name] = append([]string(nil), values...)
	}
}

func rejectOutcome(reason engine.RejectReason) string {
	switch reason {
	case engine.ReasonMethod:
		return metrics.OutcomeMethodRejected
	case engine.ReasonHeader:
		return metrics.OutcomeHeaderRejected
	default:
		return metrics.OutcomeOriginRejected
	}
}

// grantOutcome classifies a non-rejected decision for the metrics counter.
func grantOutcome(d engine.Decision, origin string) string {
	switch {
	case origin == "":
		return metrics.OutcomeNoOrigin
	case d.Header.Get(engine.HeaderAllowOrigin) == "":
		return metrics.OutcomeOriginMismatch
	default:
		return metrics.OutcomeAllowed
	}
}
