// policy/origin.go
package policy

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

// matcherKind discriminates the origin matching strategy. Modeling this as a
// closed variant keeps match-time dispatch to a switch instead of type
// inspection.
type matcherKind int

const (
	matchWildcard matcherKind = iota
	matchExact
	matchPattern
)

// OriginMatcher matches a request Origin header value. A matcher is one of:
//   - the wildcard, matching every origin
//   - an exact origin (scheme + host + optional port), compared after
//     normalization
//   - a compiled regular expression matched against the full origin string
//
// The zero value is the wildcard matcher; construct matchers with Wildcard,
// Exact, or Pattern.
type OriginMatcher struct {
	kind    matcherKind
	exact   string
	pattern *regexp.Regexp
}

// Wildcard returns the matcher that matches any origin.
func Wildcard() OriginMatcher {
	return OriginMatcher{kind: matchWildcard}
}

// Exact returns a matcher for a single concrete origin such as
// "https://app.example.com" or "http://localhost:3000". The origin is
// normalized: scheme and host are lower-cased, internationalized hostnames
// are converted to their punycode (ASCII) form, and a default port for the
// scheme is dropped. Request origins are compared verbatim against the
// normalized value.
func Exact(origin string) (OriginMatcher, error) {
	norm, err := NormalizeOrigin(origin)
	if err != nil {
		return OriginMatcher{}, err
	}
	return OriginMatcher{kind: matchExact, exact: norm}, nil
}

// MustExact is Exact but panics on error. Intended for static configuration
// in tests and package-level variables.
func MustExact(origin string) OriginMatcher {
	m, err := Exact(origin)
	if err != nil {
		panic(err)
	}
	return m
}

// Pattern returns a matcher that applies the regular expression expr to the
// full origin string (e.g. `^https://[a-z]+\.example\.com$`). The expression
// is anchored by the caller; no implicit anchoring is added.
func Pattern(expr string) (OriginMatcher, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return OriginMatcher{}, &ConfigurationError{
			Field:  "allow_origin",
			Reason: fmt.Sprintf("invalid origin pattern %q: %v", expr, err),
		}
	}
	return OriginMatcher{kind: matchPattern, pattern: re}, nil
}

// MustPattern is Pattern but panics on error.
func MustPattern(expr string) OriginMatcher {
	m, err := Pattern(expr)
	if err != nil {
		panic(err)
	}
	return m
}

// Subdomains returns a matcher for an origin spec with a single subdomain
// wildcard, e.g. "https://*.example.com". The wildcard covers exactly one or
// more subdomain labels; the bare apex ("https://example.com") does not match.
func Subdomains(spec string) (OriginMatcher, error) {
	scheme, rest, ok := strings.Cut(spec, "://*.")
	if !ok || scheme == "" || rest == "" {
		return OriginMatcher{}, &ConfigurationError{
			Field:  "allow_origin",
			Reason: fmt.Sprintf("invalid subdomain origin spec %q (want e.g. \"https://*.example.com\")", spec),
		}
	}
	expr := "^" + regexp.QuoteMeta(strings.ToLower(scheme)) +
		`://([a-z0-9-]+\.)+` + regexp.QuoteMeta(strings.ToLower(rest)) + "$"
	return Pattern(expr)
}

// IsWildcard reports whether the matcher is the wildcard matcher.
func (m OriginMatcher) IsWildcard() bool { return m.kind == matchWildcard }

// Match reports whether the matcher matches the given (already normalized)
// request origin. Empty origins never match.
func (m OriginMatcher) Match(origin string) bool {
	if origin == "" {
		return false
	}
	switch m.kind {
	case matchWildcard:
		return true
	case matchExact:
		return origin == m.exact
	case matchPattern:
		return m.pattern.MatchString(origin)
	default:
		return false
	}
}

// String renders the matcher for logs and error messages.
func (m OriginMatcher) String() string {
	switch m.kind {
	case matchWildcard:
		return "*"
	case matchExact:
		return m.exact
	case matchPattern:
		return "~" + m.pattern.String()
	default:
		return "?"
	}
}

// MatchOrigin checks origin against every matcher in the set and reports
// whether any matched and whether the first match was the wildcard. The
// wildcard distinction drives whether a response may carry the literal "*"
// token.
//
// The request origin is compared verbatim; only configured origins are
// normalized. Browsers send origins in canonical (lower-case, punycode)
// form, and anything else should not match.
func MatchOrigin(set []OriginMatcher, origin string) (matched, viaWildcard bool) {
	for _, m := range set {
		if m.Match(origin) {
			return true, m.IsWildcard()
		}
	}
	return false, false
}

// defaultPorts maps schemes to the port that is implied when absent.
var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
}

// NormalizeOrigin canonicalizes an origin string: lower-cased scheme and
// host, punycode host, default port removed. It rejects values that are not
// a bare scheme://host[:port] origin (paths, queries, userinfo).
func NormalizeOrigin(origin string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", &ConfigurationError{
			Field:  "allow_origin",
			Reason: fmt.Sprintf("invalid origin %q: %v", origin, err),
		}
	}
	if u.Scheme == "" || u.Host == "" || u.Path != "" || u.RawQuery != "" || u.User != nil || u.Fragment != "" {
		return "", &ConfigurationError{
			Field:  "allow_origin",
			Reason: fmt.Sprintf("origin %q must be scheme://host[:port] with no path", origin),
		}
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		host = ascii
	}
	port := u.Port()
	if port == defaultPorts[scheme] {
		port = ""
	}
	if port != "" {
		host += ":" + port
	}
	return scheme + "://" + host, nil
}
