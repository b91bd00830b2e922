package api

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-atlas/internal/atlas"
	"github.com/joeblew999/plat-atlas/internal/service"
)

type InfoHandler struct {
	svc  *service.Atlas
	dbOK func() bool
}

// NewInfoHandler reports on svc. dbOK may be nil when no read model is wired.
func NewInfoHandler(svc *service.Atlas, dbOK func() bool) *InfoHandler {
	return &InfoHandler{svc: svc, dbOK: dbOK}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name     string        `json:"name" doc:"Service name"`
	Version  string        `json:"version" doc:"Service version"`
	Title    string        `json:"title" doc:"Page title"`
	Footer   string        `json:"footer" doc:"Page footer (HTML)"`
	State    service.State `json:"state" enum:"loading,ready,failed" doc:"Asset load state"`
	Error    string        `json:"error,omitempty" doc:"Load error when state is failed"`
	Dataset  string        `json:"dataset" doc:"Dataset location"`
	Grid     string        `json:"grid" doc:"Grid location"`
	Stats    *atlas.Stats  `json:"stats,omitempty" doc:"Dataset size once loaded"`
	Cells    int           `json:"cells,omitempty" doc:"Grid cells once loaded"`
	LoadedAt *time.Time    `json:"loadedAt,omitempty" doc:"When the assets finished loading"`
	DB       bool          `json:"db" doc:"Whether the observations read model is available"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	cfg := h.svc.Config()
	state, loadErr := h.svc.State()
	body := InfoBody{
		Name:    "plat-atlas",
		Version: Version,
		Title:   cfg.Title,
		Footer:  cfg.Footer,
		State:   state,
		Dataset: cfg.Dataset,
		Grid:    cfg.Grid,
	}
	if loadErr != nil {
		body.Error = loadErr.Error()
	}
	if snap, err := h.svc.Snapshot(); err == nil {
		st := snap.Dataset.Stats()
		body.Stats = &st
		body.Cells = snap.Grid.Len()
		body.LoadedAt = &snap.Loaded
	}
	if h.dbOK != nil {
		body.DB = h.dbOK()
	}
	return &struct{ Body InfoBody }{Body: body}, nil
}
