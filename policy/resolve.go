// policy/resolve.go
package policy

import "strings"

// Resolve merges a base policy with zero or more override fragments, ordered
// from least to most specific (e.g. group-level, then route-level), and
// returns the effective policy. Each set field of a fragment entirely
// replaces the corresponding field of the less specific layer; unset fields
// inherit. The merge is pure: inputs are not modified.
//
// Method names are normalized upper-case and header names lower-case, so all
// request-time comparisons are plain equality.
//
// Resolve fails with a *ConfigurationError (wrapping ErrCredentialedWildcard)
// when the resolved policy allows credentials while every origin matcher is
// the wildcard. That contradiction is caught here, at configuration time,
// so it can never surface per request.
func Resolve(base Policy, frags ...Fragment) (Policy, error) {
	p := base
	for _, f := range frags {
		if f.AllowOrigin != nil {
			p.AllowOrigin = f.AllowOrigin
		}
		if f.AllowCredentials != nil {
			p.AllowCredentials = *f.AllowCredentials
		}
		if f.AllowMethods != nil {
			p.AllowMethods = f.AllowMethods
		}
		if f.AllowHeaders != nil {
			p.AllowHeaders = f.AllowHeaders
		}
		if f.ExposeHeaders != nil {
			p.ExposeHeaders = f.ExposeHeaders
		}
		if f.MaxAge != nil {
			p.MaxAge = *f.MaxAge
		}
		if f.SendOriginWildcard != nil {
			p.SendOriginWildcard = *f.SendOriginWildcard
		}
	}

	p.AllowMethods = normalize(p.AllowMethods, strings.ToUpper)
	p.AllowHeaders = normalize(p.AllowHeaders, strings.ToLower)
	p.ExposeHeaders = normalize(p.ExposeHeaders, func(s string) string { return s })

	if p.AllowCredentials && wildcardOnly(p.AllowOrigin) {
		return Policy{}, newCredentialedWildcardError()
	}
	return p, nil
}

// wildcardOnly reports whether the set is non-empty and consists solely of
// wildcard matchers. A mixed set is permitted with credentials: wildcard
// matches then echo the concrete origin instead of the "*" token.
func wildcardOnly(set []OriginMatcher) bool {
	if len(set) == 0 {
		return false
	}
	for _, m := range set {
		if !m.IsWildcard() {
			return false
		}
	}
	return true
}

// normalize maps fn over values, trims whitespace, drops empties, and
// removes duplicates while preserving first-seen order. It always allocates
// so callers' slices are never aliased.
func normalize(values []string, fn func(string) string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = fn(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
