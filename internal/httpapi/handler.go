package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"fibermap/core-go/internal/editor"
	"fibermap/core-go/internal/events"
	"fibermap/core-go/internal/metrics"
	"fibermap/core-go/internal/splitter"
	"fibermap/core-go/internal/topology"
	"fibermap/core-go/internal/workspace"
)

// Workspaces is the registry surface the handlers need. *workspace.Registry
// satisfies it.
type Workspaces interface {
	Get(ctx context.Context, id string) (*editor.Editor, error)
	Known(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

type Options struct {
	MapsAPIKey string
	Features   editor.Features
	Hub        *events.Hub
	Metrics    *metrics.Metrics
}

type Handler struct {
	log        zerolog.Logger
	workspaces Workspaces
	opts       Options
}

func NewHandler(log zerolog.Logger, ws Workspaces, opts Options) *Handler {
	return &Handler{log: log, workspaces: ws, opts: opts}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.accessLog)

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyZ)
	r.Method(http.MethodGet, "/metrics", h.opts.Metrics.Handler())

	// API
	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.Timeout(15*time.Second)).Get("/config", h.handleConfig)
		r.With(middleware.Timeout(15*time.Second)).Get("/workspaces", h.handleListWorkspaces)

		r.Route("/workspaces/{ws}", func(r chi.Router) {
			// Long-lived; kept out of the request timeout.
			r.Get("/events", h.handleEvents)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(15 * time.Second))

				r.Get("/state", h.handleState)
				r.Put("/flags", h.handleSetFlags)
				r.Post("/save", h.handleSave)
				r.Get("/export", h.handleExport)

				r.Route("/lines", func(r chi.Router) {
					r.Post("/", h.handleCreateLine)
					r.Route("/{id}", func(r chi.Router) {
						r.Patch("/", h.handleUpdateLine)
						r.Delete("/", h.handleDeleteLine)
						r.Put("/vertices/{vertex}", h.handleMoveVertex)
						r.Post("/waypoints", h.handleInsertWaypoint)
						r.Delete("/waypoints/{index}", h.handleDeleteWaypoint)
						r.Post("/waypoints/{index}/icon", h.handleAddIconAtWaypoint)
					})
				})

				r.Route("/icons", func(r chi.Router) {
					r.Post("/", h.handlePlaceIcon)
					r.Route("/{id}", func(r chi.Router) {
						r.Patch("/", h.handleUpdateIcon)
						r.Delete("/", h.handleDeleteIcon)
						r.Put("/position", h.handleMoveIcon)
						r.Put("/ratio", h.handleSetRatio)
						r.Get("/splitter", h.handleSplitterStatus)
					})
				})

				r.Route("/polygons", func(r chi.Router) {
					r.Post("/draft/points", h.handleAddPolygonPoint)
					r.Delete("/draft", h.handleCancelPolygonDraft)
					r.Route("/{id}", func(r chi.Router) {
						r.Patch("/", h.handleRenamePolygon)
						r.Delete("/", h.handleDeletePolygon)
						r.Put("/lock", h.handleLockPolygon)
					})
				})

				r.Route("/selection", func(r chi.Router) {
					r.Get("/", h.handleGetSelection)
					r.Put("/", h.handleSetSelection)
					r.Delete("/", h.handleClearSelection)
					r.Post("/actions/{action}", h.handleSelectionAction)
				})
			})
		})
	})

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		h.opts.Metrics.ObserveHTTPRequest(r.Method, route, ww.Status(), time.Since(start))

		log := requestLogger(h.log, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("route", route).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("http_request")
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if details != nil {
		resp["error"].(map[string]any)["details"] = details
	}
	h.writeJSON(w, status, resp)
}

// writeEditorError maps editor and splitter errors onto the error envelope.
func (h *Handler) writeEditorError(w http.ResponseWriter, r *http.Request, err error) {
	var limit *splitter.LimitExceededError
	var tooLow *splitter.RatioTooLowError
	switch {
	case errors.As(err, &limit):
		h.writeError(w, http.StatusConflict, "splitter_limit_exceeded", err.Error(), map[string]any{
			"ratio":        limit.Ratio,
			"currentCount": limit.Count,
		})
	case errors.As(err, &tooLow):
		h.writeError(w, http.StatusConflict, "splitter_ratio_too_low", err.Error(), map[string]any{
			"ratio":        tooLow.Ratio,
			"currentCount": tooLow.Count,
		})
	case errors.Is(err, editor.ErrSavedReadOnly):
		h.writeError(w, http.StatusForbidden, "saved_read_only", err.Error(), nil)
	case errors.Is(err, editor.ErrFeatureDisabled):
		h.writeError(w, http.StatusForbidden, "feature_disabled", err.Error(), nil)
	case errors.Is(err, editor.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, editor.ErrPolygonLocked):
		h.writeError(w, http.StatusConflict, "polygon_locked", err.Error(), nil)
	case errors.Is(err, editor.ErrWaypointOccupied):
		h.writeError(w, http.StatusConflict, "waypoint_occupied", err.Error(), nil)
	case errors.Is(err, workspace.ErrInvalidWorkspace):
		h.writeError(w, http.StatusBadRequest, "invalid_workspace", err.Error(), nil)
	case errors.Is(err, editor.ErrInvalidArgument),
		errors.Is(err, splitter.ErrInvalidRatio),
		errors.Is(err, splitter.ErrNotSplitter):
		h.writeError(w, http.StatusBadRequest, "validation_failed", err.Error(), nil)
	default:
		log := requestLogger(h.log, r)
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		h.writeError(w, http.StatusInternalServerError, "storage_error", "failed to apply change", nil)
	}
}

func decodeJSONStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("unexpected extra data after JSON body")
		}
		return err
	}
	return nil
}

// decodeBody is decodeJSONStrict that writes the 400 itself.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSONStrict(r, dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return false
	}
	return true
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.workspaces == nil {
		h.writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "storage not configured", nil)
		return
	}

	if err := h.workspaces.Ping(ctx); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "storage not ready", map[string]any{"error": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"mapsApiKey":     h.opts.MapsAPIKey,
		"features":       h.opts.Features,
		"splitterRatios": splitter.Ratios(),
		"iconTypes":      topology.AllIconTypes(),
	})
}
