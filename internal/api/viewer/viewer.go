// Package viewer contains the Datastar SSE handlers behind the atlas page.
// Every browser tab holds a session id signal; the handlers look the
// session's controller up, apply the selection and patch the page.
package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-atlas/internal/humastar"
	"github.com/joeblew999/plat-atlas/internal/metrics"
	"github.com/joeblew999/plat-atlas/internal/service"
	"github.com/joeblew999/plat-atlas/internal/templates"
	"github.com/joeblew999/plat-atlas/internal/tiler"
	"github.com/joeblew999/plat-atlas/internal/view"
)

// Routes are the endpoint URLs the page calls.
type Routes struct {
	Status  string
	Mode    string
	Class   string
	Species string
	Click   string
	Notes   string
	Legend  string
	Tiles   string
	Grid    string
}

// DefaultRoutes match RegisterRoutes.
var DefaultRoutes = Routes{
	Status:  "/api/v1/viewer/status",
	Mode:    "/api/v1/viewer/mode",
	Class:   "/api/v1/viewer/class",
	Species: "/api/v1/viewer/species",
	Click:   "/api/v1/viewer/click",
	Notes:   "/api/v1/viewer/notes",
	Legend:  "/api/v1/viewer/legend",
	Tiles:   "/api/v1/viewer/tiles",
	Grid:    "/api/v1/grid",
}

// Options tune the handler.
type Options struct {
	Sessions  int    // live sessions kept, view.DefaultSessions when 0
	TileCache int    // encoded tiles kept, tiler.DefaultCacheSize when 0
	NotesBase string // directory or URL overlay note links resolve against
}

// Handler serves the viewer page and its SSE events.
type Handler struct {
	humastar.Handler
	svc      *service.Atlas
	fetcher  service.Fetcher
	sessions *view.Sessions
	tiles    atomic.Pointer[tiler.Cache]
	metrics  *metrics.Metrics
	log      *zap.Logger
	opts     Options
	routes   Routes
}

// New creates the handler. Register h.Ready as a service ready hook so
// tiles can be served once the grid is loaded.
func New(svc *service.Atlas, fetcher service.Fetcher, renderer *templates.Renderer, m *metrics.Metrics, log *zap.Logger, opts Options) (*Handler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	h := &Handler{
		Handler: humastar.Handler{Renderer: renderer},
		svc:     svc,
		fetcher: fetcher,
		metrics: m,
		log:     log,
		opts:    opts,
		routes:  DefaultRoutes,
	}
	sessions, err := view.NewSessions(opts.Sessions, func(id string) {
		log.Debug("viewer session evicted", zap.String("session", id))
	})
	if err != nil {
		return nil, err
	}
	h.sessions = sessions
	return h, nil
}

// Ready builds the tile cache for the loaded grid.
func (h *Handler) Ready(ctx context.Context, snap *service.Snapshot) error {
	cache, err := tiler.NewCache(tiler.New(snap.Grid), h.opts.TileCache)
	if err != nil {
		return err
	}
	h.tiles.Store(cache)
	return nil
}

func (h *Handler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/viewer/status", h.Status, huma.OperationTags("viewer"))
	huma.Post(api, "/api/v1/viewer/mode", h.Mode, huma.OperationTags("viewer"))
	huma.Post(api, "/api/v1/viewer/class", h.Class, huma.OperationTags("viewer"))
	huma.Post(api, "/api/v1/viewer/species", h.Species, huma.OperationTags("viewer"))
	huma.Get(api, "/api/v1/viewer/click", h.Click, huma.OperationTags("viewer"))
	huma.Get(api, "/api/v1/viewer/notes", h.Notes, huma.OperationTags("viewer"))
	huma.Get(api, "/api/v1/viewer/legend/{session}", h.Legend, huma.OperationTags("viewer"))
	huma.Get(api, "/api/v1/viewer/tiles/{session}/{z}/{x}/{y}", h.Tile, huma.OperationTags("viewer"))
}

// PageData feeds the "viewer" page template.
type PageData struct {
	Title   string
	Footer  string
	Signals string
	Routes  Routes

	// Tile grid of the map source; matches what the tiler renders.
	TileSize int
	MaxZoom  int
}

// Page renders the viewer with a fresh session id. The controller behind
// it is created on the first selection.
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	cfg := h.svc.Config()
	state, loadErr := h.svc.State()
	signals := map[string]any{
		"session":        uuid.NewString(),
		"mode":           "",
		"classname":      "",
		"speciesname":    "",
		"revision":       0,
		"classEnabled":   false,
		"speciesEnabled": false,
		"ready":          state == service.StateReady,
		"error":          "",
		"popup":          "",
		"noteOpen":       false,
	}
	if loadErr != nil {
		signals["error"] = loadErr.Error()
	}
	raw, err := json.Marshal(signals)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	page, err := h.Renderer.Render("viewer", PageData{
		Title:   cfg.Title,
		Footer:  cfg.Footer,
		Signals: string(raw),
		Routes:  h.routes,

		TileSize: tiler.TileSize,
		MaxZoom:  tiler.MaxZoom,
	})
	if err != nil {
		h.log.Error("rendering viewer page", zap.Error(err))
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(page))
}

// Status waits for the asset load and reports the outcome.
func (h *Handler) Status(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		state, _ := h.svc.State()
		if state == service.StateLoading {
			sse.Patch(h.render("load-status", map[string]string{"State": string(state)}), "#status")
		}
		err := h.svc.Wait(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		state, _ = h.svc.State()
		data := map[string]string{"State": string(state)}
		if err != nil {
			data["Error"] = err.Error()
		}
		sse.Patch(h.render("load-status", data), "#status")
		sse.Signals(map[string]any{"ready": state == service.StateReady})
	}), nil
}

// session returns the controller of the session signal, creating it when
// the session is new or was evicted.
func (h *Handler) session(id string) (string, *view.Controller, error) {
	snap, err := h.svc.Snapshot()
	if err != nil {
		return "", nil, err
	}
	id, c := h.sessions.Ensure(id, func() *view.Controller {
		return view.NewController(snap.Dataset, snap.Config)
	})
	h.metrics.Sessions.Set(float64(h.sessions.Len()))
	return id, c, nil
}

func (h *Handler) render(name string, data any) string {
	out, err := h.Renderer.Render(name, data)
	if err != nil {
		h.log.Error("rendering fragment", zap.String("template", name), zap.Error(err))
		return ""
	}
	return out
}

// stateSignals mirrors a controller state into the page signals.
func stateSignals(id string, st view.State) map[string]any {
	return map[string]any{
		"session":        id,
		"mode":           string(st.Mode),
		"classname":      st.Class,
		"speciesname":    st.Species,
		"revision":       st.Revision,
		"classEnabled":   st.ClassEnabled,
		"speciesEnabled": st.SpeciesEnabled,
		"popup":          "",
		"error":          "",
	}
}

// fail maps errors raised before the stream starts.
func fail(err error) error {
	if errors.Is(err, service.ErrNotReady) {
		return huma.Error503ServiceUnavailable(err.Error())
	}
	return huma.Error400BadRequest(err.Error())
}
