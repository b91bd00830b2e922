// Package api defines the Huma API routes and handlers.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-atlas/internal/atlas"
	"github.com/joeblew999/plat-atlas/internal/humastar"
	"github.com/joeblew999/plat-atlas/internal/legend"
	"github.com/joeblew999/plat-atlas/internal/metrics"
	"github.com/joeblew999/plat-atlas/internal/service"
	"github.com/joeblew999/plat-atlas/internal/style"
	"github.com/joeblew999/plat-atlas/internal/view"
)

// Version is reported by /health and /api/v1/info.
const Version = "0.1.0"

// Types

type ClassInput struct {
	Class string `path:"class" doc:"Class name" example:"Class1"`
}

type SpeciesInput struct {
	ClassInput
	Species string `path:"species" doc:"Species name" example:"Species 1"`
}

type HealthBody struct {
	Status  string        `json:"status" doc:"Health status" example:"ok"`
	Version string        `json:"version" doc:"API version" example:"0.1.0"`
	State   service.State `json:"state" enum:"loading,ready,failed" doc:"Asset load state"`
}

type ClassSummary struct {
	Name    string `json:"name" doc:"Class name"`
	Species int    `json:"species" doc:"Number of species"`
}

type ClassBody struct {
	Name    string   `json:"name" doc:"Class name"`
	Info    string   `json:"info" doc:"Additional information (HTML fragment)"`
	Species []string `json:"species" doc:"Species names in dataset order"`
}

var classActions = []humastar.ActionDef{
	{Rel: "species", Pattern: "/api/v1/classes/%s/species", Method: http.MethodGet, Title: "List species"},
	{Rel: "richness", Pattern: "/api/v1/classes/%s/richness", Method: http.MethodGet, Title: "Species richness per cell"},
	{Rel: "legend", Pattern: "/api/v1/legend.png?mode=richness&class=%s", Method: http.MethodGet, Title: "Richness legend"},
}

// Actions implements humastar.Actor.
func (c ClassBody) Actions() []humastar.Action {
	return humastar.ActionsFor(c.Name, classActions)
}

type SpeciesSummary struct {
	Name  string `json:"name" doc:"Species name"`
	Cells int    `json:"cells" doc:"Number of cells with records"`
}

type SpeciesListInput struct {
	ClassInput
	Offset int `query:"offset" minimum:"0" default:"0" doc:"First item"`
	Limit  int `query:"limit" minimum:"1" maximum:"500" default:"50" doc:"Page size"`
}

type CellValuesBody struct {
	Cell   string        `json:"cell" doc:"Grid cell id"`
	Values []atlas.Level `json:"values" doc:"Attribute levels recorded in the cell"`
}

type SpeciesBody struct {
	Class          string           `json:"class" doc:"Class name"`
	Name           string           `json:"name" doc:"Species name"`
	Cells          []CellValuesBody `json:"cells" doc:"Cells in source order"`
	UniqueValues   []atlas.Level    `json:"uniqueValues" doc:"Distinct levels in natural order"`
	MultipleValues bool             `json:"multipleValues" doc:"More than one distinct level"`
}

type StylesInput struct {
	SpeciesInput
	Resolution float64 `query:"resolution" minimum:"0" default:"0" doc:"Map resolution in meters per pixel; 0 leaves marker radii unscaled"`
}

type StylesBody struct {
	Resolution float64                  `json:"resolution" doc:"Resolution the radii were scaled for"`
	Cells      map[string][]style.Style `json:"cells" doc:"Styles per cell, polygon first then markers by descending radius"`
}

type RichnessBody struct {
	Class  string         `json:"class" doc:"Class name"`
	Min    int            `json:"min" doc:"Lowest count"`
	Max    int            `json:"max" doc:"Highest count"`
	Counts map[string]int `json:"counts" doc:"Species count per cell"`
	Legend legend.Legend  `json:"legend" doc:"Legend bins"`
}

type CellInput struct {
	ClassInput
	Cell string `path:"cell" doc:"Grid cell id" example:"Q1"`
}

type CellCountBody struct {
	Cell  string `json:"cell" doc:"Grid cell id"`
	Count int    `json:"count" doc:"Species recorded in the cell"`
	Text  string `json:"text" doc:"Popup text" example:"3 species"`
}

type LegendInput struct {
	Mode    string `query:"mode" enum:"distribution,richness" required:"true" doc:"Map type"`
	Class   string `query:"class" required:"true" doc:"Class name"`
	Species string `query:"species" doc:"Species name (distribution mode)"`
}

type PNGOutput struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}

type GridBody struct {
	Bound      [4]float64 `json:"bound" doc:"Bounding box [minLon, minLat, maxLon, maxLat]"`
	Center     [2]float64 `json:"center" doc:"Center [lon, lat]"`
	Cells      int        `json:"cells" doc:"Number of cells"`
	IDProperty string     `json:"idProperty" doc:"Feature property holding the cell id"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc     *service.Atlas
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewAPIHandler(svc *service.Atlas, m *metrics.Metrics, log *zap.Logger) *APIHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &APIHandler{svc: svc, metrics: m, log: log}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterClasses registers the dataset browsing routes.
func (h *APIHandler) RegisterClasses(api huma.API) {
	huma.Get(api, "/api/v1/classes", h.GetClasses, huma.OperationTags("classes"))
	huma.Get(api, "/api/v1/classes/{class}", h.GetClass, huma.OperationTags("classes"))
	huma.Get(api, "/api/v1/classes/{class}/species", h.GetSpeciesList, huma.OperationTags("species"))
	huma.Get(api, "/api/v1/classes/{class}/species/{species}", h.GetSpecies, huma.OperationTags("species"))
	huma.Get(api, "/api/v1/classes/{class}/species/{species}/styles", h.GetSpeciesStyles, huma.OperationTags("species"))
}

// RegisterRichness registers the richness routes.
func (h *APIHandler) RegisterRichness(api huma.API) {
	huma.Get(api, "/api/v1/classes/{class}/richness", h.GetRichness, huma.OperationTags("richness"))
	huma.Get(api, "/api/v1/classes/{class}/richness/{cell}", h.GetRichnessCell, huma.OperationTags("richness"))
}

// RegisterLegend registers the raster legend route.
func (h *APIHandler) RegisterLegend(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-legend",
		Method:      http.MethodGet,
		Path:        "/api/v1/legend.png",
		Summary:     "Legend image",
		Tags:        []string{"legend"},
		Responses: map[string]*huma.Response{
			"200": {Description: "PNG legend", Content: map[string]*huma.MediaType{"image/png": {}}},
		},
	}, h.GetLegend)
}

// RegisterGrid registers the grid geometry summary route.
func (h *APIHandler) RegisterGrid(api huma.API) {
	huma.Get(api, "/api/v1/grid", h.GetGrid, huma.OperationTags("grid"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	state, _ := h.svc.State()
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version, State: state}}, nil
}

func (h *APIHandler) GetClasses(ctx context.Context, input *struct{}) (*struct{ Body []ClassSummary }, error) {
	snap, err := h.snapshot()
	if err != nil {
		return nil, err
	}
	out := make([]ClassSummary, len(snap.Dataset.Classes))
	for i, c := range snap.Dataset.Classes {
		out[i] = ClassSummary{Name: c.Name, Species: len(c.Species)}
	}
	return &struct{ Body []ClassSummary }{Body: out}, nil
}

func (h *APIHandler) GetClass(ctx context.Context, input *ClassInput) (*struct{ Body ClassBody }, error) {
	cl, err := h.class(input.Class)
	if err != nil {
		return nil, err
	}
	return &struct{ Body ClassBody }{Body: ClassBody{Name: cl.Name, Info: cl.Info, Species: cl.SpeciesNames()}}, nil
}

func (h *APIHandler) GetSpeciesList(ctx context.Context, input *SpeciesListInput) (*struct {
	Body humastar.PageBody[SpeciesSummary]
}, error) {
	cl, err := h.class(input.Class)
	if err != nil {
		return nil, err
	}
	page := humastar.PageBody[SpeciesSummary]{
		Total:  len(cl.Species),
		Offset: input.Offset,
		Limit:  input.Limit,
		Data:   []SpeciesSummary{},
	}
	for i := input.Offset; i < len(cl.Species) && i < input.Offset+input.Limit; i++ {
		sp := cl.Species[i]
		page.Data = append(page.Data, SpeciesSummary{Name: sp.Name, Cells: len(sp.Quad)})
	}
	return &struct {
		Body humastar.PageBody[SpeciesSummary]
	}{Body: page}, nil
}

func (h *APIHandler) GetSpecies(ctx context.Context, input *SpeciesInput) (*struct{ Body SpeciesBody }, error) {
	q, err := h.quads(input.Class, input.Species)
	if err != nil {
		return nil, err
	}
	body := SpeciesBody{
		Class:          input.Class,
		Name:           q.Name(),
		Cells:          make([]CellValuesBody, 0, q.Len()),
		UniqueValues:   q.UniqueValues(),
		MultipleValues: q.HasMultipleValues(),
	}
	for _, cell := range q.Cells() {
		values, _ := q.Value(cell)
		body.Cells = append(body.Cells, CellValuesBody{Cell: cell, Values: append([]atlas.Level{}, values...)})
	}
	return &struct{ Body SpeciesBody }{Body: body}, nil
}

func (h *APIHandler) GetSpeciesStyles(ctx context.Context, input *StylesInput) (*struct{ Body StylesBody }, error) {
	snap, err := h.snapshot()
	if err != nil {
		return nil, err
	}
	q, err := h.quads(input.Class, input.Species)
	if err != nil {
		return nil, err
	}
	cfg := snap.Config
	fn := style.Distribution(q, cfg.Observation, cfg.MarkersFor(input.Class), cfg.MarkerScale)

	body := StylesBody{Resolution: input.Resolution, Cells: map[string][]style.Style{}}
	for _, id := range q.Cells() {
		f := style.Feature{ID: id}
		if cell, ok := snap.Grid.Cell(id); ok {
			f.Centroid = cell.Centroid
		}
		if styles := fn(f, input.Resolution); styles != nil {
			body.Cells[id] = styles
		}
	}
	return &struct{ Body StylesBody }{Body: body}, nil
}

func (h *APIHandler) GetRichness(ctx context.Context, input *ClassInput) (*struct{ Body RichnessBody }, error) {
	snap, err := h.snapshot()
	if err != nil {
		return nil, err
	}
	cl, err := h.class(input.Class)
	if err != nil {
		return nil, err
	}
	r := atlas.ComputeRichness(cl)
	lo, hi, _ := r.Range()
	return &struct{ Body RichnessBody }{Body: RichnessBody{
		Class:  cl.Name,
		Min:    lo,
		Max:    hi,
		Counts: r,
		Legend: legend.ForRichness(r, snap.Config.Ramp()),
	}}, nil
}

func (h *APIHandler) GetRichnessCell(ctx context.Context, input *CellInput) (*struct{ Body CellCountBody }, error) {
	cl, err := h.class(input.Class)
	if err != nil {
		return nil, err
	}
	n, _ := atlas.ComputeRichness(cl).Count(input.Cell)
	return &struct{ Body CellCountBody }{Body: CellCountBody{
		Cell:  input.Cell,
		Count: n,
		Text:  fmt.Sprintf("%d species", n),
	}}, nil
}

// GetLegend draws the legend a viewer session would show for the same
// selection.
func (h *APIHandler) GetLegend(ctx context.Context, input *LegendInput) (*PNGOutput, error) {
	snap, err := h.snapshot()
	if err != nil {
		return nil, err
	}
	mode, err := view.ParseMode(input.Mode)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	c := view.NewController(snap.Dataset, snap.Config)
	if err := c.SetMode(mode); err != nil {
		return nil, problem(err)
	}
	if err := c.SelectClass(input.Class); err != nil {
		return nil, problem(err)
	}
	if mode == view.ModeDistribution {
		if input.Species == "" {
			return nil, huma.Error400BadRequest("species is required in distribution mode")
		}
		if err := c.SelectSpecies(input.Species); err != nil {
			return nil, problem(err)
		}
	}

	var buf bytes.Buffer
	if err := legend.EncodePNG(&buf, c.Legend()); err != nil {
		h.log.Error("legend draw failed", zap.String("class", input.Class), zap.Error(err))
		return nil, huma.Error500InternalServerError("Failed to draw legend", err)
	}
	if h.metrics != nil {
		h.metrics.Legends.Inc()
	}
	return &PNGOutput{ContentType: "image/png", CacheControl: "public, max-age=300", Body: buf.Bytes()}, nil
}

func (h *APIHandler) GetGrid(ctx context.Context, input *struct{}) (*struct{ Body GridBody }, error) {
	snap, err := h.snapshot()
	if err != nil {
		return nil, err
	}
	b := snap.Grid.Bound()
	c := b.Center()
	return &struct{ Body GridBody }{Body: GridBody{
		Bound:      boundArray(b),
		Center:     [2]float64{c.Lon(), c.Lat()},
		Cells:      snap.Grid.Len(),
		IDProperty: snap.Config.IDProperty,
	}}, nil
}

// helpers

func (h *APIHandler) snapshot() (*service.Snapshot, error) {
	snap, err := h.svc.Snapshot()
	if err != nil {
		return nil, problem(err)
	}
	return snap, nil
}

func (h *APIHandler) class(name string) (*atlas.ClassRecord, error) {
	snap, err := h.snapshot()
	if err != nil {
		return nil, err
	}
	cl, err := snap.Dataset.Class(name)
	if err != nil {
		return nil, problem(err)
	}
	return cl, nil
}

func (h *APIHandler) quads(class, species string) (*atlas.QuadsData, error) {
	snap, err := h.snapshot()
	if err != nil {
		return nil, err
	}
	q, err := snap.Dataset.Quads(class, species)
	if err != nil {
		return nil, problem(err)
	}
	return q, nil
}

func boundArray(b orb.Bound) [4]float64 {
	return [4]float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}
}

// problem maps domain errors to HTTP errors.
func problem(err error) error {
	switch {
	case errors.Is(err, service.ErrNotReady):
		return huma.Error503ServiceUnavailable(err.Error())
	case errors.Is(err, atlas.ErrClassNotFound), errors.Is(err, atlas.ErrSpeciesNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, view.ErrInvalidMode), errors.Is(err, view.ErrSelectorDisabled):
		return huma.Error400BadRequest(err.Error())
	}
	return huma.Error500InternalServerError("internal error", err)
}
