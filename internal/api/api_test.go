package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-atlas/internal/assets"
	"github.com/joeblew999/plat-atlas/internal/atlas"
	"github.com/joeblew999/plat-atlas/internal/config"
	"github.com/joeblew999/plat-atlas/internal/db"
	"github.com/joeblew999/plat-atlas/internal/humastar"
	"github.com/joeblew999/plat-atlas/internal/legend"
	"github.com/joeblew999/plat-atlas/internal/metrics"
	"github.com/joeblew999/plat-atlas/internal/service"
	"github.com/joeblew999/plat-atlas/internal/style"
)

const (
	datasetDoc = `[
	{"name":"Class1","info":"<p>Birds</p>","species":[
		{"name":"Species 1","quad":["Q1","Q2"],"value":[[2],[3,4]]},
		{"name":"Species 2","quad":["Q2","Q3"],"value":[[2],[2]]}]},
	{"name":"Class2","info":"","species":[
		{"name":"A","quad":["Q1"],"value":[[1]]},
		{"name":"B","quad":["Q1"],"value":[[1]]},
		{"name":"C","quad":["Q3"],"value":[[1]]}]}]`
	gridDoc = `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"grdref":"Q1"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}},
		{"type":"Feature","properties":{"grdref":"Q2"},"geometry":{"type":"Polygon","coordinates":[[[1,0],[2,0],[2,1],[1,1],[1,0]]]}},
		{"type":"Feature","properties":{"grdref":"Q3"},"geometry":{"type":"Polygon","coordinates":[[[2,0],[3,0],[3,1],[2,1],[2,0]]]}}]}`
)

func newService(t *testing.T, load bool) *service.Atlas {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "species.json"), []byte(datasetDoc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "grid.geojson"), []byte(gridDoc), 0o644))
	cfg := config.Default()
	cfg.Dataset = filepath.Join(dir, "species.json")
	cfg.Grid = filepath.Join(dir, "grid.geojson")
	svc := service.New(cfg, &assets.Fetcher{}, zap.NewNop())
	if load {
		require.NoError(t, svc.Load(context.Background()))
	}
	return svc
}

func newAPI(t *testing.T, svc *service.Atlas) humatest.TestAPI {
	t.Helper()
	cfg := huma.DefaultConfig("Test", "1.0.0")
	cfg.Transformers = append(cfg.Transformers, humastar.LinkTransformer())
	_, api := humatest.New(t, cfg)
	huma.AutoRegister(api, NewAPIHandler(svc, metrics.New(), zap.NewNop()))
	NewInfoHandler(svc, nil).RegisterRoutes(api)
	humastar.AutoLinks(api)
	return api
}

func decode[T any](t *testing.T, body *bytes.Buffer) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	api := newAPI(t, newService(t, true))
	resp := api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)
	body := decode[HealthBody](t, resp.Body)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, service.StateReady, body.State)
	assert.Contains(t, resp.Header().Values("Link"), `</api/v1/classes>; rel="classes"`)
}

func TestNotReady(t *testing.T) {
	api := newAPI(t, newService(t, false))

	resp := api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, service.StateLoading, decode[HealthBody](t, resp.Body).State)

	for _, path := range []string{
		"/api/v1/classes",
		"/api/v1/classes/Class1/richness",
		"/api/v1/grid",
		"/api/v1/legend.png?mode=richness&class=Class1",
	} {
		assert.Equal(t, http.StatusServiceUnavailable, api.Get(path).Code, path)
	}
}

func TestInfo(t *testing.T) {
	api := newAPI(t, newService(t, true))
	body := decode[InfoBody](t, api.Get("/api/v1/info").Body)
	assert.Equal(t, "plat-atlas", body.Name)
	assert.Equal(t, "Species Atlas example", body.Title)
	require.NotNil(t, body.Stats)
	assert.Equal(t, atlas.Stats{Classes: 2, Species: 5, Observations: 7}, *body.Stats)
	assert.Equal(t, 3, body.Cells)
	assert.NotNil(t, body.LoadedAt)
	assert.False(t, body.DB)
}

func TestClasses(t *testing.T) {
	api := newAPI(t, newService(t, true))

	list := decode[[]ClassSummary](t, api.Get("/api/v1/classes").Body)
	assert.Equal(t, []ClassSummary{{Name: "Class1", Species: 2}, {Name: "Class2", Species: 3}}, list)

	resp := api.Get("/api/v1/classes/Class1")
	require.Equal(t, http.StatusOK, resp.Code)
	cl := decode[ClassBody](t, resp.Body)
	assert.Equal(t, "<p>Birds</p>", cl.Info)
	assert.Equal(t, []string{"Species 1", "Species 2"}, cl.Species)
	links := resp.Header().Values("Link")
	assert.Contains(t, links, `</api/v1/classes/Class1>; rel="self"`)
	assert.Contains(t, links, `</api/v1/classes/Class1/richness>; rel="richness"; method="GET"; title="Species richness per cell"`)

	assert.Equal(t, http.StatusNotFound, api.Get("/api/v1/classes/Nope").Code)
}

func TestSpeciesList(t *testing.T) {
	api := newAPI(t, newService(t, true))

	resp := api.Get("/api/v1/classes/Class2/species?limit=2")
	require.Equal(t, http.StatusOK, resp.Code)
	page := decode[humastar.PageBody[SpeciesSummary]](t, resp.Body)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, []SpeciesSummary{{Name: "A", Cells: 1}, {Name: "B", Cells: 1}}, page.Data)
	assert.Contains(t, resp.Header().Values("Link"), `</api/v1/classes/Class2/species?offset=2&limit=2>; rel="next"`)

	page = decode[humastar.PageBody[SpeciesSummary]](t, api.Get("/api/v1/classes/Class2/species?offset=2&limit=2").Body)
	assert.Equal(t, []SpeciesSummary{{Name: "C", Cells: 1}}, page.Data)
}

func TestSpecies(t *testing.T) {
	api := newAPI(t, newService(t, true))

	resp := api.Get("/api/v1/classes/Class1/species/Species%201")
	require.Equal(t, http.StatusOK, resp.Code)
	body := decode[SpeciesBody](t, resp.Body)
	assert.Equal(t, "Species 1", body.Name)
	assert.Equal(t, []atlas.Level{"2", "3", "4"}, body.UniqueValues)
	assert.True(t, body.MultipleValues)
	require.Len(t, body.Cells, 2)
	assert.Equal(t, CellValuesBody{Cell: "Q2", Values: []atlas.Level{"3", "4"}}, body.Cells[1])

	assert.Equal(t, http.StatusNotFound, api.Get("/api/v1/classes/Class1/species/Nope").Code)
	assert.Equal(t, http.StatusNotFound, api.Get("/api/v1/classes/Nope/species/Species%201").Code)
}

func TestSpeciesStyles(t *testing.T) {
	api := newAPI(t, newService(t, true))

	resp := api.Get("/api/v1/classes/Class1/species/Species%201/styles")
	require.Equal(t, http.StatusOK, resp.Code)
	body := decode[StylesBody](t, resp.Body)
	require.Len(t, body.Cells, 2)

	q2 := body.Cells["Q2"]
	require.Len(t, q2, 3)
	assert.Equal(t, style.KindPolygon, q2[0].Kind)
	assert.Equal(t, style.KindCircle, q2[1].Kind)
	assert.Greater(t, q2[1].Radius, q2[2].Radius, "larger markers draw first")
	require.NotNil(t, q2[1].Anchor)
	assert.InDelta(t, 1.5, q2[1].Anchor.Lon(), 1e-9)
}

func TestRichness(t *testing.T) {
	api := newAPI(t, newService(t, true))

	resp := api.Get("/api/v1/classes/Class1/richness")
	require.Equal(t, http.StatusOK, resp.Code)
	body := decode[RichnessBody](t, resp.Body)
	assert.Equal(t, map[string]int{"Q1": 1, "Q2": 2, "Q3": 1}, body.Counts)
	assert.Equal(t, 1, body.Min)
	assert.Equal(t, 2, body.Max)
	assert.Equal(t, legend.KindRichness, body.Legend.Kind)

	cell := decode[CellCountBody](t, api.Get("/api/v1/classes/Class1/richness/Q2").Body)
	assert.Equal(t, CellCountBody{Cell: "Q2", Count: 2, Text: "2 species"}, cell)

	cell = decode[CellCountBody](t, api.Get("/api/v1/classes/Class1/richness/Q9").Body)
	assert.Equal(t, "0 species", cell.Text)
}

func TestLegend(t *testing.T) {
	api := newAPI(t, newService(t, true))

	resp := api.Get("/api/v1/legend.png?mode=richness&class=Class1")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "image/png", resp.Header().Get("Content-Type"))
	img, err := png.Decode(bytes.NewReader(resp.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, legend.Height, img.Bounds().Dy())

	resp = api.Get("/api/v1/legend.png?mode=distribution&class=Class1&species=Species%201")
	assert.Equal(t, http.StatusOK, resp.Code)

	assert.Equal(t, http.StatusBadRequest, api.Get("/api/v1/legend.png?mode=distribution&class=Class1").Code)
	assert.Equal(t, http.StatusNotFound, api.Get("/api/v1/legend.png?mode=richness&class=Nope").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, api.Get("/api/v1/legend.png?mode=heatmap&class=Class1").Code)
}

func TestGrid(t *testing.T) {
	api := newAPI(t, newService(t, true))
	body := decode[GridBody](t, api.Get("/api/v1/grid").Body)
	assert.Equal(t, [4]float64{0, 0, 3, 1}, body.Bound)
	assert.Equal(t, [2]float64{1.5, 0.5}, body.Center)
	assert.Equal(t, 3, body.Cells)
	assert.Equal(t, "grdref", body.IDProperty)
}

func TestDBHandler(t *testing.T) {
	svc := newService(t, false)
	conn, err := db.Open(db.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Lock(context.Background(), conn))
	svc.OnReady(func(ctx context.Context, snap *service.Snapshot) error {
		return db.LoadDataset(ctx, conn, snap.Dataset)
	})

	_, api := humatest.New(t)
	NewDBHandler(conn, svc).RegisterRoutes(api)

	assert.Equal(t, http.StatusServiceUnavailable, api.Get("/api/v1/tables").Code)
	require.NoError(t, svc.Load(context.Background()))

	var listed struct {
		Tables []string `json:"tables"`
	}
	require.NoError(t, json.Unmarshal(api.Get("/api/v1/tables").Body.Bytes(), &listed))
	assert.Contains(t, listed.Tables, "occurrences")
	assert.Contains(t, listed.Tables, "classes")

	resp := api.Post("/api/v1/query", map[string]any{
		"query": "SELECT quad, species FROM richness WHERE class = 'Class1' ORDER BY quad",
	})
	require.Equal(t, http.StatusOK, resp.Code)
	var out struct {
		Columns []string         `json:"columns"`
		Rows    []map[string]any `json:"rows"`
		Count   int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.Equal(t, []string{"quad", "species"}, out.Columns)
	assert.Equal(t, 3, out.Count)
	assert.Equal(t, "Q2", out.Rows[1]["quad"])
	assert.EqualValues(t, 2, out.Rows[1]["species"])

	resp = api.Post("/api/v1/query", map[string]any{"query": "SELECT * FROM nowhere"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	for _, query := range []string{
		"DROP TABLE occurrences",
		"  delete FROM occurrences",
		"SELECT 1; DROP TABLE occurrences",
		"WITH x AS (SELECT 1) INSERT INTO classes SELECT 'a', 'b', 1",
		"COPY occurrences TO '" + filepath.Join(t.TempDir(), "out.csv") + "'",
		"SELECT * FROM read_text('/etc/hostname')",
		"SET enable_external_access = true",
		"",
	} {
		resp = api.Post("/api/v1/query", map[string]any{"query": query})
		assert.Equal(t, http.StatusBadRequest, resp.Code, query)
	}

	// The read model survived.
	resp = api.Post("/api/v1/query", map[string]any{"query": "SELECT count(*) AS n FROM occurrences;"})
	require.Equal(t, http.StatusOK, resp.Code)
	count := decode[struct {
		Rows []map[string]any `json:"rows"`
	}](t, resp.Body)
	require.Len(t, count.Rows, 1)
	assert.EqualValues(t, 7, count.Rows[0]["n"])
}

func TestReadOnly(t *testing.T) {
	for _, query := range []string{
		"SELECT 1",
		"select quad from richness;",
		"WITH r AS (SELECT * FROM richness) SELECT * FROM r",
		"SHOW TABLES",
		"DESCRIBE occurrences",
	} {
		_, err := readOnly(query)
		assert.NoError(t, err, query)
	}
	for _, query := range []string{"DROP TABLE x", "ATTACH 'x.db'", "INSTALL httpfs", "PRAGMA version", "SELECT 1;SELECT 2"} {
		_, err := readOnly(query)
		assert.Error(t, err, query)
	}
}
