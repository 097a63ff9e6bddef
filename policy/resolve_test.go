package policy

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestResolve_Defaults(t *testing.T) {
	p, err := Resolve(Default())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if len(p.AllowOrigin) != 0 {
		t.Errorf("AllowOrigin should default empty, got %v", p.AllowOrigin)
	}
	if p.AllowCredentials {
		t.Error("AllowCredentials should default false")
	}
	if len(p.AllowMethods) != 0 || len(p.AllowHeaders) != 0 || len(p.ExposeHeaders) != 0 {
		t.Error("method/header sets should default empty")
	}
	if p.MaxAge != 0 {
		t.Errorf("MaxAge should default 0, got %v", p.MaxAge)
	}
	if !p.SendOriginWildcard {
		t.Error("SendOriginWildcard should default true")
	}
}

func TestResolve_FieldReplacement(t *testing.T) {
	base := Policy{
		AllowOrigin:        []OriginMatcher{MustExact("https://app.com")},
		AllowMethods:       []string{"GET"},
		AllowHeaders:       []string{"accept"},
		SendOriginWildcard: true,
	}

	// A route-level override fully replaces the fields it sets; everything
	// else is inherited.
	route := Fragment{AllowMethods: []string{"POST"}}

	p, err := Resolve(base, route)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if want := []string{"POST"}; !reflect.DeepEqual(p.AllowMethods, want) {
		t.Errorf("AllowMethods = %v, want %v (replacement, not union)", p.AllowMethods, want)
	}
	if want := []string{"accept"}; !reflect.DeepEqual(p.AllowHeaders, want) {
		t.Errorf("AllowHeaders = %v, want %v (inherited)", p.AllowHeaders, want)
	}
	if len(p.AllowOrigin) != 1 {
		t.Errorf("AllowOrigin should be inherited, got %v", p.AllowOrigin)
	}
}

func TestResolve_LayerOrder(t *testing.T) {
	base := Policy{AllowMethods: []string{"GET"}, SendOriginWildcard: true}
	group := Fragment{AllowMethods: []string{"PUT"}, MaxAge: Duration(time.Minute)}
	route := Fragment{AllowMethods: []string{"DELETE"}}

	p, err := Resolve(base, group, route)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if want := []string{"DELETE"}; !reflect.DeepEqual(p.AllowMethods, want) {
		t.Errorf("most specific layer wins: AllowMethods = %v, want %v", p.AllowMethods, want)
	}
	if p.MaxAge != time.Minute {
		t.Errorf("group MaxAge should survive: got %v", p.MaxAge)
	}
}

func TestResolve_ExplicitEmptyOverride(t *testing.T) {
	base := Policy{AllowMethods: []string{"GET", "POST"}, SendOriginWildcard: true}

	p, err := Resolve(base, Fragment{AllowMethods: []string{}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(p.AllowMethods) != 0 {
		t.Errorf("non-nil empty slice must override to empty, got %v", p.AllowMethods)
	}
}

func TestResolve_Normalization(t *testing.T) {
	base := Policy{
		AllowMethods:       []string{"get", " Post ", "GET"},
		AllowHeaders:       []string{"Content-Type", "content-type", " X-Token "},
		SendOriginWildcard: true,
	}

	p, err := Resolve(base)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if want := []string{"GET", "POST"}; !reflect.DeepEqual(p.AllowMethods, want) {
		t.Errorf("AllowMethods = %v, want %v", p.AllowMethods, want)
	}
	if want := []string{"content-type", "x-token"}; !reflect.DeepEqual(p.AllowHeaders, want) {
		t.Errorf("AllowHeaders = %v, want %v", p.AllowHeaders, want)
	}
}

func TestResolve_CredentialedWildcard(t *testing.T) {
	base := Policy{
		AllowOrigin:        []OriginMatcher{Wildcard()},
		AllowCredentials:   true,
		SendOriginWildcard: true,
	}

	_, err := Resolve(base)
	if err == nil {
		t.Fatal("credentialed wildcard-only policy must fail")
	}
	if !errors.Is(err, ErrCredentialedWildcard) {
		t.Errorf("error should wrap ErrCredentialedWildcard, got %v", err)
	}
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Errorf("error should be a *ConfigurationError, got %T", err)
	}
}

func TestResolve_CredentialedWildcard_ViaFragment(t *testing.T) {
	base := Policy{
		AllowOrigin:        []OriginMatcher{MustExact("https://a.com")},
		SendOriginWildcard: true,
	}

	// The fragment swaps in a wildcard-only origin set while credentials
	// are enabled; the contradiction must surface at resolve time.
	frag := Fragment{
		AllowOrigin:      []OriginMatcher{Wildcard()},
		AllowCredentials: Bool(true),
	}

	if _, err := Resolve(base, frag); !errors.Is(err, ErrCredentialedWildcard) {
		t.Errorf("want ErrCredentialedWildcard, got %v", err)
	}
}

func TestResolve_CredentialedMixedSet(t *testing.T) {
	// A mixed set is fine: wildcard matches echo the concrete origin when
	// credentials are enabled, so the "*" token can never leak.
	base := Policy{
		AllowOrigin:        []OriginMatcher{Wildcard(), MustExact("https://a.com")},
		AllowCredentials:   true,
		SendOriginWildcard: true,
	}

	if _, err := Resolve(base); err != nil {
		t.Errorf("mixed matcher set with credentials should resolve: %v", err)
	}
}

func TestResolve_Pure(t *testing.T) {
	base := Policy{AllowMethods: []string{"get"}, SendOriginWildcard: true}
	frag := Fragment{AllowHeaders: []string{"X-Token"}}

	if _, err := Resolve(base, frag); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if base.AllowMethods[0] != "get" {
		t.Error("Resolve must not mutate the base policy")
	}
	if frag.AllowHeaders[0] != "X-Token" {
		t.Error("Resolve must not mutate fragments")
	}
}
