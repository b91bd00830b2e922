package templates

import (
	"bytes"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedded(t *testing.T) {
	r, err := Embedded()
	require.NoError(t, err)

	out, err := r.Render("select-option", map[string]any{"Value": "Class1", "Label": "Class1", "Selected": true})
	require.NoError(t, err)
	assert.Equal(t, `<option value="Class1" selected>Class1</option>`, out)

	out, err = r.Render("popup", "3 species")
	require.NoError(t, err)
	assert.Contains(t, out, "3 species")

	out, err = r.Render("class-info", `<p>Birds <b>here</b></p>`)
	require.NoError(t, err)
	assert.Contains(t, out, `<p>Birds <b>here</b></p>`, "info markup is trusted")

	out, err = r.Render("class-info", "")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestViewerPage(t *testing.T) {
	r, err := Embedded()
	require.NoError(t, err)

	var buf bytes.Buffer
	err = r.RenderToBuffer(&buf, "viewer", map[string]any{
		"Title":   "Species Atlas example",
		"Footer":  "Some <b>text</b>",
		"Signals": `{"session":"abc"}`,
		"Routes": map[string]string{
			"Status": "/api/v1/viewer/status", "Mode": "/api/v1/viewer/mode",
			"Class": "/api/v1/viewer/class", "Species": "/api/v1/viewer/species",
			"Click": "/api/v1/viewer/click", "Legend": "/api/v1/viewer/legend",
			"Tiles": "/api/v1/viewer/tiles", "Grid": "/api/v1/grid",
		},
		"TileSize": 256,
		"MaxZoom":  22,
	})
	require.NoError(t, err)
	page := buf.String()
	assert.Contains(t, page, "<title>Species Atlas example</title>")
	assert.Contains(t, page, "Some <b>text</b>")
	assert.Contains(t, page, "session")
	assert.Contains(t, page, `data-on:change="@post('`)
	assert.Regexp(t, `tileSize:\s*256\s*,`, page)
}

func TestLoadStatus(t *testing.T) {
	r, err := Embedded()
	require.NoError(t, err)

	out := r.MustRender("load-status", map[string]string{"State": "failed", "Error": "grid: no such file"})
	assert.Contains(t, out, "grid: no such file")
	assert.Contains(t, out, "is-danger")

	out = r.MustRender("load-status", map[string]string{"State": "ready"})
	assert.Empty(t, out)
}

func TestReload(t *testing.T) {
	fsys := fstest.MapFS{
		"fragments/a.html": {Data: []byte(`{{define "a"}}one{{end}}`)},
		"pages/p.html":     {Data: []byte(`{{define "p"}}page{{end}}`)},
	}
	r, err := New(fsys)
	require.NoError(t, err)
	assert.Equal(t, "one", r.MustRender("a", nil))

	fsys["fragments/a.html"] = &fstest.MapFile{Data: []byte(`{{define "a"}}two{{end}}`)}
	require.NoError(t, r.Reload(fsys))
	assert.Equal(t, "two", r.MustRender("a", nil))

	_, err = r.Render("missing", nil)
	assert.Error(t, err)
}

func TestDirFallsBackToEmbedded(t *testing.T) {
	r, err := Dir(t.TempDir())
	require.NoError(t, err)
	out, err := r.Render("popup", "1 species")
	require.NoError(t, err)
	assert.Contains(t, out, "1 species")
}
