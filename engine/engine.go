// engine/engine.go

// Package engine computes CORS decisions. Given a resolved policy and the
// relevant parts of an incoming request it returns the response headers to
// emit and, for preflight and WebSocket cases, whether the request must be
// rejected outright.
//
// Every function here is pure: no I/O, no shared state, deterministic for
// identical inputs. Policies are read-only, so decisions are safe from any
// number of concurrent goroutines.
package engine

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dalemusser/corsgate/policy"
)

// Response header names emitted by the engine.
const (
	HeaderAllowOrigin      = "Access-Control-Allow-Origin"
	HeaderAllowCredentials = "Access-Control-Allow-Credentials"
	HeaderAllowMethods     = "Access-Control-Allow-Methods"
	HeaderAllowHeaders     = "Access-Control-Allow-Headers"
	HeaderExposeHeaders    = "Access-Control-Expose-Headers"
	HeaderMaxAge           = "Access-Control-Max-Age"
	HeaderVary             = "Vary"

	// Request header names consumed by callers when extracting preflight
	// inputs.
	HeaderOrigin         = "Origin"
	HeaderRequestMethod  = "Access-Control-Request-Method"
	HeaderRequestHeaders = "Access-Control-Request-Headers"
)

// RejectReason classifies why a preflight or WebSocket request was rejected.
type RejectReason string

const (
	// ReasonNone means the request was not rejected.
	ReasonNone RejectReason = ""

	// ReasonMethod means the preflight requested a method the policy does
	// not allow.
	ReasonMethod RejectReason = "method_not_allowed"

	// ReasonHeader means the preflight requested a header the policy does
	// not allow.
	ReasonHeader RejectReason = "header_not_allowed"

	// ReasonOrigin means a WebSocket upgrade came from a disallowed or
	// missing origin.
	ReasonOrigin RejectReason = "origin_not_allowed"
)

// Decision is the outcome of a CORS evaluation: the headers to merge into
// the outgoing response, and whether the caller must refuse the request with
// a client-error status. A rejected decision still carries its headers
// (at minimum Vary: Origin).
//
// Decisions are ephemeral per-request values; nothing retains them.
type Decision struct {
	Header   http.Header
	Rejected bool
	Reason   RejectReason
}

// Simple evaluates a non-preflight request. The returned headers always
// include Vary: Origin — even when the request carries no Origin header —
// so shared caches never serve an origin-tailored response to a different
// origin.
func Simple(p policy.Policy, origin string) Decision {
	d := Decision{Header: make(http.Header, 4)}
	d.Header.Add(HeaderVary, "Origin")

	allowed, viaWildcard := policy.MatchOrigin(p.AllowOrigin, origin)
	if !allowed {
		return d
	}

	setAllowOrigin(d.Header, p, origin, viaWildcard)
	if len(p.ExposeHeaders) > 0 {
		d.Header.Set(HeaderExposeHeaders, strings.Join(p.ExposeHeaders, ", "))
	}
	return d
}

// Preflight evaluates an OPTIONS preflight request. Origin mismatches are
// not rejections: the response simply carries no allow headers and the
// browser blocks the follow-up request. A matched origin with a disallowed
// method or header yields a rejected decision, which the caller should
// answer with a 4xx status and no body.
func Preflight(p policy.Policy, origin, requestedMethod string, requestedHeaders []string) Decision {
	d := Decision{Header: make(http.Header, 6)}
	d.Header.Add(HeaderVary, "Origin")

	allowed, viaWildcard := policy.MatchOrigin(p.AllowOrigin, origin)
	if !allowed {
		return d
	}

	methodWildcard := contains(p.AllowMethods, policy.WildcardToken)
	if !methodWildcard && !contains(p.AllowMethods, strings.ToUpper(strings.TrimSpace(requestedMethod))) {
		d.Rejected = true
		d.Reason = ReasonMethod
		return d
	}

	headerWildcard := contains(p.AllowHeaders, policy.WildcardToken)
	if !headerWildcard {
		for _, h := range requestedHeaders {
			if !contains(p.AllowHeaders, strings.ToLower(strings.TrimSpace(h))) {
				d.Rejected = true
				d.Reason = ReasonHeader
				return d
			}
		}
	}

	setAllowOrigin(d.Header, p, origin, viaWildcard)
	if len(p.ExposeHeaders) > 0 {
		d.Header.Set(HeaderExposeHeaders, strings.Join(p.ExposeHeaders, ", "))
	}

	if methodWildcard {
		d.Header.Set(HeaderAllowMethods, strings.ToUpper(strings.TrimSpace(requestedMethod)))
	} else {
		d.Header.Set(HeaderAllowMethods, strings.Join(p.AllowMethods, ", "))
	}

	if headerWildcard {
		if len(requestedHeaders) > 0 {
			d.Header.Set(HeaderAllowHeaders, strings.Join(trimAll(requestedHeaders), ", "))
		}
	} else if len(p.AllowHeaders) > 0 {
		d.Header.Set(HeaderAllowHeaders, strings.Join(p.AllowHeaders, ", "))
	}

	if p.MaxAge > 0 {
		d.Header.Set(HeaderMaxAge, strconv.Itoa(int(p.MaxAge.Seconds())))
	}
	return d
}

// Websocket reports whether a WebSocket upgrade from the given origin may
// proceed. Absent origins are rejected; wildcard matchers admit any origin.
// No headers are produced — the WebSocket handshake has no access-control
// header vocabulary, so this is a boolean gate only.
func Websocket(p policy.Policy, origin string) bool {
	if origin == "" {
		return false
	}
	allowed, _ := policy.MatchOrigin(p.AllowOrigin, origin)
	return allowed
}

// IsPreflight reports whether the request is a CORS preflight: an OPTIONS
// request announcing the method of the follow-up request.
func IsPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions && r.Header.Get(HeaderRequestMethod) != ""
}

// ParseRequestHeaders splits an Access-Control-Request-Headers value into
// individual header names, dropping surrounding whitespace and empty items.
func ParseRequestHeaders(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// setAllowOrigin writes the allow-origin (and credentials) headers for a
// matched origin. Credentialed policies always echo the concrete origin;
// the "*" token is only ever sent for an uncredentialed wildcard match with
// SendOriginWildcard enabled.
func setAllowOrigin(h http.Header, p policy.Policy, origin string, viaWildcard bool) {
	switch {
	case p.AllowCredentials:
		h.Set(HeaderAllowOrigin, origin)
		h.Set(HeaderAllowCredentials, "true")
	case viaWildcard && p.SendOriginWildcard:
		h.Set(HeaderAllowOrigin, policy.WildcardToken)
	default:
		h.Set(HeaderAllowOrigin, origin)
	}
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
