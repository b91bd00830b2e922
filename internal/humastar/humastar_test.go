package humastar

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-atlas/internal/templates"
)

func TestSignals(t *testing.T) {
	s, err := ParseSignals([]byte(`{"session":"abc","revision":3,"ready":true,"lon":1.5}`))
	require.NoError(t, err)
	assert.Equal(t, "abc", s.String("session"))
	assert.Equal(t, 3, s.Int("revision"))
	assert.True(t, s.Bool("ready"))
	assert.InDelta(t, 1.5, s.Float("lon"), 1e-9)
	assert.Empty(t, s.String("missing"))
	assert.False(t, s.Has("missing"))

	in := &SignalsInput{RawBody: []byte("{")}
	_, err = in.MustParse()
	assert.Error(t, err)
}

func TestRenderSelect(t *testing.T) {
	r, err := templates.Embedded()
	require.NoError(t, err)

	out := RenderSelect(r, "Choose a class", Options([]string{"Class1", "Class2"}, "Class2"))
	assert.Equal(t,
		`<option value="">Choose a class</option><option value="Class1">Class1</option><option value="Class2" selected>Class2</option>`,
		out)
}

func TestPaginationLinks(t *testing.T) {
	p := PageBody[string]{Total: 25, Offset: 10, Limit: 10}
	links := p.PaginationLinks("/api/v1/classes/Class1/species")
	assert.Equal(t, []string{
		`</api/v1/classes/Class1/species?offset=0&limit=10>; rel="first"`,
		`</api/v1/classes/Class1/species?offset=0&limit=10>; rel="prev"`,
		`</api/v1/classes/Class1/species?offset=20&limit=10>; rel="next"`,
		`</api/v1/classes/Class1/species?offset=20&limit=10>; rel="last"`,
	}, links)
}

func TestActions(t *testing.T) {
	acts := ActionsFor("Class1", []ActionDef{
		{Rel: "richness", Pattern: "/api/v1/classes/%s/richness", Method: http.MethodGet, Title: "Species richness"},
	})
	require.Len(t, acts, 1)
	assert.Equal(t, `</api/v1/classes/Class1/richness>; rel="richness"; method="GET"; title="Species richness"`, acts[0].LinkHeader())
}

type itemBody struct {
	Name string `json:"name"`
}

func (itemBody) Actions() []Action {
	return []Action{{Rel: "legend", Href: "/legend.png", Method: http.MethodGet}}
}

func TestAutoLinks(t *testing.T) {
	mux := http.NewServeMux()
	cfg := huma.DefaultConfig("Test", "1.0.0")
	cfg.Transformers = append(cfg.Transformers, LinkTransformer())
	api := humatest.Wrap(t, humago.New(mux, cfg))

	huma.Get(api, "/health", func(ctx context.Context, _ *struct{}) (*struct{ Body itemBody }, error) {
		return &struct{ Body itemBody }{Body: itemBody{Name: "ok"}}, nil
	}, huma.OperationTags("health"))
	huma.Get(api, "/api/v1/classes", func(ctx context.Context, _ *struct{}) (*struct{ Body []string }, error) {
		return &struct{ Body []string }{Body: []string{"Class1"}}, nil
	}, huma.OperationTags("classes"))
	huma.Get(api, "/api/v1/classes/{class}", func(ctx context.Context, in *struct {
		Class string `path:"class"`
	}) (*struct{ Body itemBody }, error) {
		return &struct{ Body itemBody }{Body: itemBody{Name: in.Class}}, nil
	}, huma.OperationTags("classes"))
	huma.Get(api, "/api/v1/viewer/status", func(ctx context.Context, _ *struct{}) (*struct{ Body string }, error) {
		return &struct{ Body string }{Body: "ok"}, nil
	}, huma.OperationTags("viewer"))

	AutoLinks(api)

	resp := api.Get("/api/v1/classes/Class1")
	require.Equal(t, http.StatusOK, resp.Code)
	links := strings.Join(resp.Header().Values("Link"), "\n")
	assert.Contains(t, links, `</api/v1/classes>; rel="collection"`)
	assert.Contains(t, links, `</api/v1/classes/Class1>; rel="self"`)
	assert.Contains(t, links, `</legend.png>; rel="legend"; method="GET"`)

	resp = api.Get("/health")
	links = strings.Join(resp.Header().Values("Link"), "\n")
	assert.Contains(t, links, `</api/v1/classes>; rel="classes"`)
	assert.NotContains(t, links, "/api/v1/viewer/status")
	assert.Subset(t, resp.Header().Values("Link"), RootLinks())
}
