package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/dalemusser/corsgate/config"
	"github.com/dalemusser/corsgate/engine"
	"github.com/dalemusser/corsgate/policy"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
}

func newRouter(t *testing.T, opts Options) chi.Router {
	t.Helper()
	mw, err := CORS(opts)
	if err != nil {
		t.Fatalf("CORS: %v", err)
	}
	r := chi.NewRouter()
	r.Use(mw)
	r.Handle("/*", okHandler())
	return r
}

func basePolicy() policy.Policy {
	return policy.Policy{
		AllowOrigin:        []policy.OriginMatcher{policy.MustExact("https://app.test")},
		AllowMethods:       []string{"GET", "POST"},
		AllowHeaders:       []string{"content-type"},
		SendOriginWildcard: true,
	}
}

func TestCORS_SimpleRequest(t *testing.T) {
	r := newRouter(t, Options{Base: basePolicy()})

	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	req.Header.Set("Origin", "https://app.test")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get(engine.HeaderAllowOrigin); got != "https://app.test" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := rec.Header().Get(engine.HeaderVary); got != "Origin" {
		t.Errorf("Vary = %q", got)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("handler should have run, body = %q", rec.Body.String())
	}
}

func TestCORS_SimpleMismatchStillServes(t *testing.T) {
	r := newRouter(t, Options{Base: basePolicy()})

	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	req.Header.Set("Origin", "https://evil.test")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("mismatched simple requests are served without CORS grants, got %d", rec.Code)
	}
	if got := rec.Header().Get(engine.HeaderAllowOrigin); got != "" {
		t.Errorf("Allow-Origin should be absent, got %q", got)
	}
	if got := rec.Header().Get(engine.HeaderVary); got != "Origin" {
		t.Errorf("Vary = %q", got)
	}
}

func TestCORS_NoOriginPassesThrough(t *testing.T) {
	r := newRouter(t, Options{Base: basePolicy()})

	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("same-origin traffic must be untouched, got %d %q", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(engine.HeaderVary); got != "Origin" {
		t.Errorf("Vary = %q, want Origin on every response", got)
	}
}

func TestCORS_PreflightAllowed(t *testing.T) {
	r := newRouter(t, Options{Base: basePolicy()})

	req := httptest.NewRequest(http.MethodOptions, "/items", nil)
	req.Header.Set("Origin", "https://app.test")
	req.Header.Set(engine.HeaderRequestMethod, "POST")
	req.Header.Set(engine.HeaderRequestHeaders, "content-type")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("preflight responses have no body, got %q", rec.Body.String())
	}
	if got := rec.Header().Get(engine.HeaderAllowMethods); got != "GET, POST" {
		t.Errorf("Allow-Methods = %q", got)
	}
	if got := rec.Header().Get(engine.HeaderAllowHeaders); got != "content-type" {
		t.Errorf("Allow-Headers = %q", got)
	}
}

func TestCORS_PreflightRejected(t *testing.T) {
	r := newRouter(t, Options{Base: basePolicy()})

	req := httptest.NewRequest(http.MethodOptions, "/items", nil)
	req.Header.Set("Origin", "https://app.test")
	req.Header.Set(engine.HeaderRequestMethod, "DELETE")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if got := rec.Header().Get(engine.HeaderAllowOrigin); got != "" {
		t.Errorf("rejected preflight must not grant an origin, got %q", got)
	}
}

func TestCORS_RouteOverride(t *testing.T) {
	reg := policy.NewRegistry().
		Route("/open", policy.Fragment{
			AllowOrigin: []policy.OriginMatcher{policy.Wildcard()},
		})
	r := newRouter(t, Options{Base: basePolicy(), Registry: reg})

	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	req.Header.Set("Origin", "https://anyone.test")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if got := rec.Header().Get(engine.HeaderAllowOrigin); got != "*" {
		t.Errorf("route override should apply, Allow-Origin = %q", got)
	}
}

func TestCORS_ExemptRoute(t *testing.T) {
	reg := policy.NewRegistry().Exempt("/webhooks")
	r := newRouter(t, Options{Base: basePolicy(), Registry: reg})

	req := httptest.NewRequest(http.MethodGet, "/webhooks", nil)
	req.Header.Set("Origin", "https://app.test")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("exempt route should serve normally, got %d", rec.Code)
	}
	if len(rec.Header().Values(engine.HeaderVary)) != 0 {
		t.Errorf("exempt routes get no CORS headers at all, got Vary %v", rec.Header().Values(engine.HeaderVary))
	}
	if got := rec.Header().Get(engine.HeaderAllowOrigin); got != "" {
		t.Errorf("exempt routes get no CORS headers at all, got Allow-Origin %q", got)
	}
}

func TestCORS_ConstructionValidation(t *testing.T) {
	bad := policy.Policy{
		AllowOrigin:        []policy.OriginMatcher{policy.Wildcard()},
		AllowCredentials:   true,
		SendOriginWildcard: true,
	}
	if _, err := CORS(Options{Base: bad}); err == nil {
		t.Error("credentialed wildcard base must fail at construction")
	}

	reg := policy.NewRegistry().Route("/x", policy.Fragment{
		AllowOrigin:      []policy.OriginMatcher{policy.Wildcard()},
		AllowCredentials: policy.Bool(true),
	})
	if _, err := CORS(Options{Base: basePolicy(), Registry: reg}); err == nil {
		t.Error("credentialed wildcard route fragment must fail at construction")
	}
}

func TestCORS_VaryMergedNotReplaced(t *testing.T) {
	mw, err := CORS(Options{Base: basePolicy()})
	if err != nil {
		t.Fatalf("CORS: %v", err)
	}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Add("Vary", "Accept-Encoding")
			next.ServeHTTP(w, req)
		})
	})
	r.Use(mw)
	r.Handle("/*", okHandler())

	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	req.Header.Set("Origin", "https://app.test")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	vary := rec.Header().Values("Vary")
	if len(vary) != 2 || vary[0] != "Accept-Encoding" || vary[1] != "Origin" {
		t.Errorf("Vary values set upstream must survive, got %v", vary)
	}
}

func TestCORSFromConfig_Disabled(t *testing.T) {
	mw, err := CORSFromConfig(&config.Config{EnableCORS: false}, nil)
	if err != nil {
		t.Fatalf("CORSFromConfig: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	req.Header.Set("Origin", "https://app.test")
	rec := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rec, req)

	if got := rec.Header().Get(engine.HeaderVary); got != "" {
		t.Errorf("disabled config must yield an identity middleware, got Vary %q", got)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("handler should have run, body = %q", rec.Body.String())
	}

	if mw, err = CORSFromConfig(nil, nil); err != nil || mw == nil {
		t.Errorf("nil config should also yield identity middleware, err=%v", err)
	}
}

func TestCORSFromConfig_Enabled(t *testing.T) {
	cfg := &config.Config{
		EnableCORS:         true,
		AllowedOrigins:     []string{"https://app.test"},
		AllowedMethods:     []string{"GET"},
		SendOriginWildcard: true,
	}
	mw, err := CORSFromConfig(cfg, nil)
	if err != nil {
		t.Fatalf("CORSFromConfig: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	req.Header.Set("Origin", "https://app.test")
	rec := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rec, req)

	if got := rec.Header().Get(engine.HeaderAllowOrigin); got != "https://app.test" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestWebsocketCORS(t *testing.T) {
	mw, err := WebsocketCORS(Options{Base: basePolicy()})
	if err != nil {
		t.Fatalf("WebsocketCORS: %v", err)
	}
	h := mw(okHandler())

	allowed := httptest.NewRequest(http.MethodGet, "/ws", nil)
	allowed.Header.Set("Origin", "https://app.test")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, allowed)
	if rec.Code != http.StatusOK {
		t.Errorf("allowed origin should pass, got %d", rec.Code)
	}

	denied := httptest.NewRequest(http.MethodGet, "/ws", nil)
	denied.Header.Set("Origin", "https://evil.test")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, denied)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("disallowed origin should be refused with 400, got %d", rec.Code)
	}

	missing := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, missing)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing origin should be refused with 400, got %d", rec.Code)
	}
}
