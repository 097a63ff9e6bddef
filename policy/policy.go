// policy/policy.go

// Package policy defines CORS policies and resolves layered policy
// fragments (application-wide defaults, group overrides, route overrides)
// into one effective policy per route.
//
// Policies are plain immutable values. Build them once at startup, validate
// them with Resolve, and share them freely across request goroutines; nothing
// in this package mutates a Policy after construction.
package policy

import "time"

// WildcardToken is the literal token that, when present in AllowMethods or
// AllowHeaders, permits any requested method or header.
const WildcardToken = "*"

// Policy is a fully resolved CORS policy. Every field has a concrete value;
// use Default() or Resolve to obtain one.
type Policy struct {
	// AllowOrigin is the set of origin matchers. An empty set grants no
	// cross-origin access.
	AllowOrigin []OriginMatcher

	// AllowCredentials controls whether cookies and auth headers may
	// accompany cross-origin requests. Incompatible with a wildcard-only
	// AllowOrigin set.
	AllowCredentials bool

	// AllowMethods lists permitted preflight methods, stored upper-case.
	// May contain WildcardToken.
	AllowMethods []string

	// AllowHeaders lists permitted preflight request headers, stored
	// lower-case. May contain WildcardToken.
	AllowHeaders []string

	// ExposeHeaders lists response headers exposed to cross-origin clients.
	ExposeHeaders []string

	// MaxAge is the preflight cache lifetime. Zero means no caching hint.
	MaxAge time.Duration

	// SendOriginWildcard controls whether a wildcard match emits the literal
	// "*" token (true) or echoes the concrete requesting origin (false).
	// Ignored when AllowCredentials is set, which always echoes the origin.
	SendOriginWildcard bool
}

// Default returns the baseline policy used when no configuration is supplied:
// no origins allowed, no credentials, empty method/header sets, no max-age,
// wildcard token sent on wildcard matches.
func Default() Policy {
	return Policy{SendOriginWildcard: true}
}

// Fragment is a partial policy contributed by one configuration layer. A nil
// slice or nil pointer means "unset: inherit from the less specific layer".
// A non-nil empty slice is an explicit override to the empty set.
type Fragment struct {
	AllowOrigin        []OriginMatcher
	AllowCredentials   *bool
	AllowMethods       []string
	AllowHeaders       []string
	ExposeHeaders      []string
	MaxAge             *time.Duration
	SendOriginWildcard *bool
}

// IsZero reports whether the fragment sets no fields at all.
func (f Fragment) IsZero() bool {
	return f.AllowOrigin == nil &&
		f.AllowCredentials == nil &&
		f.AllowMethods == nil &&
		f.AllowHeaders == nil &&
		f.ExposeHeaders == nil &&
		f.MaxAge == nil &&
		f.SendOriginWildcard == nil
}

// Bool is a convenience for building fragment pointer fields in place.
func Bool(v bool) *bool { return &v }

// Duration is a convenience for building fragment pointer fields in place.
func Duration(d time.Duration) *time.Duration { return &d }
