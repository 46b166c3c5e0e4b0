package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"fibermap/core-go/internal/editor"
	"fibermap/core-go/internal/metrics"
	"fibermap/core-go/internal/storage"
	"fibermap/core-go/internal/workspace"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	log := zerolog.New(io.Discard)
	reg := workspace.NewRegistry(log, storage.NewMemory(), nil, workspace.Options{
		Editor: editor.Options{Features: editor.AllFeatures()},
	}, nil)
	return NewHandler(log, reg, Options{
		MapsAPIKey: "test-key",
		Features:   editor.AllFeatures(),
		Metrics:    metrics.New(),
	}).Router()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return v
}

type errorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) errorBody {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	body := decode[errorBody](t, rr)
	if body.Error.Code != code {
		t.Fatalf("expected error code %q, got %q", code, body.Error.Code)
	}
	return body
}

type fakeWorkspaces struct {
	pingErr error
}

func (f fakeWorkspaces) Get(context.Context, string) (*editor.Editor, error) {
	return nil, errors.New("not implemented")
}

func (f fakeWorkspaces) Known(context.Context) ([]string, error) {
	return nil, errors.New("not implemented")
}

func (f fakeWorkspaces) Ping(context.Context) error {
	return f.pingErr
}

func TestReadyz_NoStorage(t *testing.T) {
	h := NewHandler(zerolog.New(io.Discard), nil, Options{}).Router()
	expectError(t, do(t, h, http.MethodGet, "/readyz", ""), http.StatusServiceUnavailable, "storage_unavailable")
}

func TestReadyz_PingFailure(t *testing.T) {
	h := NewHandler(zerolog.New(io.Discard), fakeWorkspaces{pingErr: errors.New("down")}, Options{}).Router()
	body := expectError(t, do(t, h, http.MethodGet, "/readyz", ""), http.StatusServiceUnavailable, "storage_unavailable")
	if body.Error.Details["error"] != "down" {
		t.Fatalf("expected ping error in details, got %+v", body.Error.Details)
	}
}

func TestReadyz_OK(t *testing.T) {
	h := newTestRouter(t)
	if rr := do(t, h, http.MethodGet, "/readyz", ""); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestConfig(t *testing.T) {
	rr := do(t, newTestRouter(t), http.MethodGet, "/api/v1/config", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decode[struct {
		MapsAPIKey     string          `json:"mapsApiKey"`
		Features       editor.Features `json:"features"`
		SplitterRatios []string        `json:"splitterRatios"`
		IconTypes      []string        `json:"iconTypes"`
	}](t, rr)
	if body.MapsAPIKey != "test-key" || !body.Features.RatioLimits || len(body.SplitterRatios) != 5 {
		t.Fatalf("unexpected config %+v", body)
	}
	if len(body.IconTypes) != 5 || body.IconTypes[0] != "BTS" || body.IconTypes[4] != "Custom" {
		t.Fatalf("unexpected icon types %v", body.IconTypes)
	}
}

func TestSplitterLimitOverHTTP(t *testing.T) {
	h := newTestRouter(t)
	base := "/api/v1/workspaces/north"

	rr := do(t, h, http.MethodPost, base+"/icons", `{"type":"splitter","position":{"lat":45,"lng":7}}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("place icon: %d %s", rr.Code, rr.Body.String())
	}
	icon := decode[struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}](t, rr)
	if icon.Type != "Splitter" {
		t.Fatalf("expected canonical type, got %q", icon.Type)
	}

	if rr := do(t, h, http.MethodPut, base+"/icons/"+icon.ID+"/ratio", `{"ratio":"1:2"}`); rr.Code != http.StatusOK {
		t.Fatalf("set ratio: %d %s", rr.Code, rr.Body.String())
	}

	var ids []string
	for _, from := range []string{`{"lat":45.1,"lng":7.1}`, `{"lat":45.2,"lng":7.2}`, `{"lat":45.3,"lng":7.3}`} {
		rr := do(t, h, http.MethodPost, base+"/lines", `{"from":`+from+`}`)
		if rr.Code != http.StatusCreated {
			t.Fatalf("create line: %d %s", rr.Code, rr.Body.String())
		}
		ids = append(ids, decode[struct {
			ID string `json:"id"`
		}](t, rr).ID)
	}

	for i, want := range []string{"Line 1", "Line 2"} {
		rr := do(t, h, http.MethodPut, base+"/lines/"+ids[i]+"/vertices/to", `{"lat":45.00005,"lng":7}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("attach %d: %d %s", i, rr.Code, rr.Body.String())
		}
		if got := decode[struct {
			Name string `json:"name"`
		}](t, rr).Name; got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}

	rr = do(t, h, http.MethodPut, base+"/lines/"+ids[2]+"/vertices/to", `{"lat":45.00005,"lng":7}`)
	body := expectError(t, rr, http.StatusConflict, "splitter_limit_exceeded")
	if body.Error.Details["ratio"] != "1:2" || body.Error.Details["currentCount"] != float64(2) {
		t.Fatalf("unexpected details %+v", body.Error.Details)
	}

	rr = do(t, h, http.MethodGet, base+"/icons/"+icon.ID+"/splitter", "")
	status := decode[struct {
		Connected    int    `json:"connected"`
		NextLineName string `json:"nextLineName"`
	}](t, rr)
	if status.Connected != 2 || status.NextLineName != "Line 3" {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestSavedScopeIsReadOnlyByDefault(t *testing.T) {
	h := newTestRouter(t)
	base := "/api/v1/workspaces/north"

	expectError(t, do(t, h, http.MethodPost, base+"/lines?scope=saved", `{"from":{"lat":1,"lng":1}}`), http.StatusForbidden, "saved_read_only")
	expectError(t, do(t, h, http.MethodPost, base+"/lines?scope=draft", `{"from":{"lat":1,"lng":1}}`), http.StatusBadRequest, "validation_failed")

	if rr := do(t, h, http.MethodPut, base+"/flags", `{"isSavedRoutesEditable":true}`); rr.Code != http.StatusOK {
		t.Fatalf("set flags: %d %s", rr.Code, rr.Body.String())
	}
	if rr := do(t, h, http.MethodPost, base+"/lines?scope=saved", `{"from":{"lat":1,"lng":1}}`); rr.Code != http.StatusCreated {
		t.Fatalf("expected saved create to succeed, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestSaveAndState(t *testing.T) {
	h := newTestRouter(t)
	base := "/api/v1/workspaces/north"

	if rr := do(t, h, http.MethodPost, base+"/lines", `{"from":{"lat":1,"lng":1},"to":{"lat":2,"lng":2}}`); rr.Code != http.StatusCreated {
		t.Fatalf("create line: %d %s", rr.Code, rr.Body.String())
	}
	rr := do(t, h, http.MethodPost, base+"/save", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("save: %d %s", rr.Code, rr.Body.String())
	}
	if added := decode[editor.SaveResult](t, rr).Added; added != 1 {
		t.Fatalf("expected 1 added, got %d", added)
	}

	state := decode[editor.View](t, do(t, h, http.MethodGet, base+"/state", ""))
	if !state.Flags.ShowSaved || state.Saved == nil || len(state.Saved.Lines) != 1 {
		t.Fatalf("expected saved routes visible after save, got %+v", state)
	}

	rr = do(t, h, http.MethodGet, "/api/v1/workspaces", "")
	list := decode[struct {
		Workspaces []string `json:"workspaces"`
	}](t, rr)
	if len(list.Workspaces) != 1 || list.Workspaces[0] != "north" {
		t.Fatalf("unexpected workspaces %+v", list)
	}
}

func TestErrorsMapToEnvelope(t *testing.T) {
	h := newTestRouter(t)
	base := "/api/v1/workspaces/north"

	expectError(t, do(t, h, http.MethodDelete, base+"/lines/missing", ""), http.StatusNotFound, "not_found")
	expectError(t, do(t, h, http.MethodGet, "/api/v1/workspaces/bad.id/state", ""), http.StatusBadRequest, "invalid_workspace")
	expectError(t, do(t, h, http.MethodPost, base+"/lines", `{"from":{"lat":1,"lng":1},"extra":true}`), http.StatusBadRequest, "validation_failed")
	expectError(t, do(t, h, http.MethodPut, base+"/lines/x/vertices/middle", `{"lat":1,"lng":1}`), http.StatusBadRequest, "validation_failed")
	expectError(t, do(t, h, http.MethodPost, base+"/icons", `{"type":"router","position":{"lat":1,"lng":1}}`), http.StatusBadRequest, "validation_failed")
	expectError(t, do(t, h, http.MethodDelete, base+"/lines/x/waypoints/-1", ""), http.StatusBadRequest, "validation_failed")
}

func TestPolygonOverHTTP(t *testing.T) {
	h := newTestRouter(t)
	base := "/api/v1/workspaces/north"

	for _, p := range []string{`{"lat":0,"lng":0}`, `{"lat":0,"lng":1}`, `{"lat":1,"lng":1}`} {
		if rr := do(t, h, http.MethodPost, base+"/polygons/draft/points", p); rr.Code != http.StatusOK {
			t.Fatalf("add point: %d %s", rr.Code, rr.Body.String())
		}
	}
	rr := do(t, h, http.MethodPost, base+"/polygons/draft/points", `{"lat":0,"lng":0}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("close polygon: %d %s", rr.Code, rr.Body.String())
	}
	res := decode[editor.DraftResult](t, rr)
	if res.Closed == nil || len(res.Closed.Path) != 4 {
		t.Fatalf("expected closed triangle, got %+v", res)
	}
	id := res.Closed.ID

	if rr := do(t, h, http.MethodPut, base+"/polygons/"+id+"/lock", `{"locked":true}`); rr.Code != http.StatusOK {
		t.Fatalf("lock: %d %s", rr.Code, rr.Body.String())
	}
	expectError(t, do(t, h, http.MethodDelete, base+"/polygons/"+id, ""), http.StatusConflict, "polygon_locked")
	expectError(t, do(t, h, http.MethodPatch, base+"/polygons/"+id, `{"name":"A"}`), http.StatusConflict, "polygon_locked")
}

func TestSelectionOverHTTP(t *testing.T) {
	h := newTestRouter(t)
	base := "/api/v1/workspaces/north"

	rr := do(t, h, http.MethodPost, base+"/selection/actions/delete", "")
	if rr.Code != http.StatusOK || decode[editor.ActionResult](t, rr).Applied {
		t.Fatalf("expected ignored action, got %d %s", rr.Code, rr.Body.String())
	}

	rr = do(t, h, http.MethodPut, base+"/selection", `{"kind":"context_menu","point":{"lat":45,"lng":7},"anchor":{"x":3,"y":4}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("open context menu: %d %s", rr.Code, rr.Body.String())
	}
	rr = do(t, h, http.MethodPost, base+"/selection/actions/place_icon", `{"iconType":"BTS","name":"Tower"}`)
	res := decode[editor.ActionResult](t, rr)
	if !res.Applied || res.EntityID == "" {
		t.Fatalf("expected icon placed, got %+v", res)
	}

	expectError(t, do(t, h, http.MethodPost, base+"/selection/actions/explode", ""), http.StatusBadRequest, "validation_failed")
	expectError(t, do(t, h, http.MethodPut, base+"/selection", `{"kind":"line","lineId":"nope"}`), http.StatusNotFound, "not_found")
}

func TestExportOverHTTP(t *testing.T) {
	h := newTestRouter(t)
	base := "/api/v1/workspaces/north"
	_ = do(t, h, http.MethodPost, base+"/icons", `{"type":"ONU","position":{"lat":45,"lng":7}}`)

	rr := do(t, h, http.MethodGet, base+"/export?types=bts", "")
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "application/geo+json" {
		t.Fatalf("unexpected export response %d %q", rr.Code, rr.Header().Get("Content-Type"))
	}
	fc := decode[struct {
		Features []any `json:"features"`
	}](t, rr)
	if len(fc.Features) != 0 {
		t.Fatalf("expected ONU filtered out, got %d features", len(fc.Features))
	}

	body := expectError(t, do(t, h, http.MethodGet, base+"/export?types=bts,bogus", ""), http.StatusBadRequest, "validation_failed")
	if body.Error.Details["type"] != "bogus" {
		t.Fatalf("expected the unknown type in details, got %+v", body.Error.Details)
	}
}

func TestMetricsRoute(t *testing.T) {
	h := newTestRouter(t)
	_ = do(t, h, http.MethodGet, "/healthz", "")
	rr := do(t, h, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `fibermap_http_requests_total{method="GET",path="/healthz",status="200"} 1`) {
		t.Fatalf("expected request metrics, got %d %s", rr.Code, rr.Body.String())
	}
}
