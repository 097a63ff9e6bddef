// policy/registry.go
package policy

import (
	"sort"
	"strings"
)

// Registry associates policy fragments with routes. It replaces the
// decorator-style attachment of the original design with an explicit table:
//   - Route registers a fragment for one route pattern (exact match against
//     the router's route pattern, e.g. "/api/items/{id}").
//   - Group registers a fragment for every route under a path prefix, the
//     analogue of applying CORS to a whole route collection.
//   - Exempt marks a route as fully exempt: no CORS processing at all.
//
// Lookup returns fragments ordered least to most specific (group, then
// route), ready to be passed to Resolve after the application-wide base.
//
// A Registry is mutable only while it is being built; populate it before the
// server starts serving and treat it as read-only afterwards. Reads take no
// locks.
type Registry struct {
	routes  map[string]Fragment
	groups  map[string]Fragment
	exempt  map[string]struct{}
	ordered []string // group prefixes, longest first
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		routes: make(map[string]Fragment),
		groups: make(map[string]Fragment),
		exempt: make(map[string]struct{}),
	}
}

// Route attaches a fragment to a single route pattern. Registering the same
// pattern twice replaces the earlier fragment. Returns the registry for
// chaining.
func (r *Registry) Route(pattern string, frag Fragment) *Registry {
	r.routes[pattern] = frag
	return r
}

// Group attaches a fragment to every route whose pattern starts with prefix.
// When multiple group prefixes match a route, the longest one wins.
func (r *Registry) Group(prefix string, frag Fragment) *Registry {
	if _, exists := r.groups[prefix]; !exists {
		r.ordered = append(r.ordered, prefix)
		sort.Slice(r.ordered, func(i, j int) bool {
			return len(r.ordered[i]) > len(r.ordered[j])
		})
	}
	r.groups[prefix] = frag
	return r
}

// Exempt marks a route pattern as exempt from all CORS processing. Callers
// must short-circuit before invoking the decision engine.
func (r *Registry) Exempt(pattern string) *Registry {
	r.exempt[pattern] = struct{}{}
	return r
}

// IsExempt reports whether the route pattern was marked exempt.
func (r *Registry) IsExempt(pattern string) bool {
	if r == nil {
		return false
	}
	_, ok := r.exempt[pattern]
	return ok
}

// Lookup returns the fragments that apply to the given route pattern,
// ordered least to most specific, plus the exempt flag. A nil registry
// returns no fragments.
func (r *Registry) Lookup(pattern string) (frags []Fragment, exempt bool) {
	if r == nil {
		return nil, false
	}
	if _, ok := r.exempt[pattern]; ok {
		return nil, true
	}
	for _, prefix := range r.ordered {
		if strings.HasPrefix(pattern, prefix) {
			frags = append(frags, r.groups[prefix])
			break
		}
	}
	if frag, ok := r.routes[pattern]; ok {
		frags = append(frags, frag)
	}
	return frags, false
}

// Fragments returns every registered fragment combination, keyed by route
// pattern and group prefix. Used to validate the whole table at startup.
func (r *Registry) Fragments() map[string][]Fragment {
	if r == nil {
		return nil
	}
	out := make(map[string][]Fragment, len(r.routes)+len(r.groups))
	for prefix, frag := range r.groups {
		out[prefix] = []Fragment{frag}
	}
	for pattern := range r.routes {
		frags, _ := r.Lookup(pattern)
		out[pattern] = frags
	}
	return out
}
