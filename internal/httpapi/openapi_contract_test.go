package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type openAPISpec struct {
	Paths map[string]map[string]any `yaml:"paths"`
}

func TestOpenAPIDoesNotDriftFromRouter(t *testing.T) {
	// Load canonical OpenAPI spec from repo root.
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	repoRoot := filepath.Clean(filepath.Join(filepath.Dir(thisFile), "..", ".."))
	openAPIPath := filepath.Join(repoRoot, "api", "openapi.yaml")

	b, err := os.ReadFile(openAPIPath)
	if err != nil {
		t.Fatalf("read openapi spec %q: %v", openAPIPath, err)
	}

	var spec openAPISpec
	if err := yaml.Unmarshal(b, &spec); err != nil {
		t.Fatalf("parse openapi spec %q: %v", openAPIPath, err)
	}

	expected := expectedRoutesFromOpenAPI(t, spec)
	actual := actualRoutesFromRouter(t)

	missing := diff(expected, actual)
	extra := diff(actual, expected)

	// Every documented route must be registered and vice versa.
	if len(missing) > 0 || len(extra) > 0 {
		var sb strings.Builder
		if len(missing) > 0 {
			sb.WriteString("missing routes (in OpenAPI but not registered in chi router):\n")
			for _, k := range missing {
				sb.WriteString("  - ")
				sb.WriteString(k)
				sb.WriteString("\n")
			}
		}
		if len(extra) > 0 {
			sb.WriteString("extra routes (registered in chi router but not present in OpenAPI):\n")
			for _, k := range extra {
				sb.WriteString("  - ")
				sb.WriteString(k)
				sb.WriteString("\n")
			}
		}
		t.Fatalf("OpenAPI drift detected. Update api/openapi.yaml or the router.\n\n%s", sb.String())
	}
}

func expectedRoutesFromOpenAPI(t *testing.T, spec openAPISpec) map[string]struct{} {
	t.Helper()

	validMethods := map[string]struct{}{
		"get": {}, "post": {}, "put": {}, "patch": {}, "delete": {}, "head": {}, "options": {},
	}

	out := make(map[string]struct{})
	for p, ops := range spec.Paths {
		for m := range ops {
			mLower := strings.ToLower(m)
			if _, ok := validMethods[mLower]; !ok {
				continue
			}
			method := strings.ToUpper(mLower)
			// OpenAPI paths are rooted at /v1/... with servers.url=/api.
			route := normalizeRoute("/api" + p)
			out[method+" "+route] = struct{}{}
		}
	}

	return out
}

func actualRoutesFromRouter(t *testing.T) map[string]struct{} {
	t.Helper()

	log := zerolog.New(io.Discard)
	h := NewHandler(log, nil, Options{})
	raw := h.Router()

	mux, ok := raw.(*chi.Mux)
	if !ok {
		t.Fatalf("expected *chi.Mux from Handler.Router(), got %T", raw)
	}

	validMethods := map[string]struct{}{
		http.MethodGet: {}, http.MethodPost: {}, http.MethodPut: {}, http.MethodPatch: {}, http.MethodDelete: {}, http.MethodHead: {}, http.MethodOptions: {},
	}

	out := make(map[string]struct{})
	if err := chi.Walk(mux, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if _, ok := validMethods[method]; !ok {
			return nil
		}
		route = normalizeRoute(route)
		if !strings.HasPrefix(route, "/api/") {
			return nil
		}
		out[method+" "+route] = struct{}{}
		return nil
	}); err != nil {
		t.Fatalf("walk chi router: %v", err)
	}

	return out
}

func normalizeRoute(route string) string {
	if route == "" {
		return route
	}
	if len(route) > 1 {
		route = strings.TrimSuffix(route, "/")
	}
	return route
}

func diff(a, b map[string]struct{}) []string {
	out := make([]string, 0)
	for k := range a {
		if _, ok := b[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

type objectSchema struct {
	Required   []string                `yaml:"required"`
	Properties map[string]objectSchema `yaml:"properties"`
}

func loadOpenAPIDocument(t *testing.T) map[string]any {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	b, err := os.ReadFile(filepath.Join(filepath.Dir(thisFile), "..", "..", "api", "openapi.yaml"))
	if err != nil {
		t.Fatalf("read openapi spec: %v", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		t.Fatalf("parse openapi spec: %v", err)
	}
	return doc
}

func errorResponseSchema(t *testing.T, doc map[string]any) objectSchema {
	t.Helper()
	components, _ := doc["components"].(map[string]any)
	schemas, _ := components["schemas"].(map[string]any)
	raw, ok := schemas["ErrorResponse"]
	if !ok {
		t.Fatal("components.schemas.ErrorResponse is missing")
	}
	b, err := yaml.Marshal(raw)
	if err != nil {
		t.Fatalf("re-encode ErrorResponse: %v", err)
	}
	var s objectSchema
	if err := yaml.Unmarshal(b, &s); err != nil {
		t.Fatalf("decode ErrorResponse: %v", err)
	}
	return s
}

func checkObjectAgainstSchema(t *testing.T, where string, obj map[string]any, s objectSchema) {
	t.Helper()
	for _, k := range s.Required {
		if _, ok := obj[k]; !ok {
			t.Errorf("%s: required key %q missing from %v", where, k, obj)
		}
	}
	for k := range obj {
		if _, ok := s.Properties[k]; !ok {
			t.Errorf("%s: key %q is not documented in ErrorResponse", where, k)
		}
	}
}

func TestErrorEnvelopeMatchesOpenAPI(t *testing.T) {
	schema := errorResponseSchema(t, loadOpenAPIDocument(t))
	inner, ok := schema.Properties["error"]
	if !ok {
		t.Fatal("ErrorResponse has no error property")
	}

	bare := NewHandler(zerolog.New(io.Discard), nil, Options{}).Router()
	full := newTestRouter(t)
	cases := []struct {
		name string
		h    http.Handler
		path string
		code int
	}{
		{"storage not configured", bare, "/readyz", http.StatusServiceUnavailable},
		{"invalid workspace", full, "/api/v1/workspaces/bad.id/state", http.StatusBadRequest},
		{"unknown export type", full, "/api/v1/workspaces/north/export?types=bogus", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, tc.h, http.MethodGet, tc.path, "")
			if rr.Code != tc.code {
				t.Fatalf("expected %d, got %d: %s", tc.code, rr.Code, rr.Body.String())
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			checkObjectAgainstSchema(t, "envelope", body, schema)
			obj, ok := body["error"].(map[string]any)
			if !ok {
				t.Fatalf("error is not an object: %v", body["error"])
			}
			checkObjectAgainstSchema(t, "error", obj, inner)
		})
	}
}

func TestOpenAPIOperationsDeclareResponses(t *testing.T) {
	doc := loadOpenAPIDocument(t)
	paths, _ := doc["paths"].(map[string]any)
	for p, rawOps := range paths {
		ops, _ := rawOps.(map[string]any)
		for m, rawOp := range ops {
			op, ok := rawOp.(map[string]any)
			if !ok {
				continue
			}
			responses, _ := op["responses"].(map[string]any)
			if len(responses) == 0 {
				t.Errorf("%s %s declares no responses", strings.ToUpper(m), p)
			}
		}
	}
}
