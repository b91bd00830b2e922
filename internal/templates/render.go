// Package templates handles HTML template rendering for the viewer page and
// its Datastar SSE fragments.
package templates

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

//go:embed fragments/*.html pages/*.html
var embedded embed.FS

var patterns = []string{"fragments/*.html", "pages/*.html"}

// funcMap provides common template functions.
var funcMap = template.FuncMap{
	// dict creates a map from key-value pairs, useful for passing multiple values to nested templates
	"dict": func(values ...any) map[string]any {
		if len(values)%2 != 0 {
			return nil
		}
		m := make(map[string]any, len(values)/2)
		for i := 0; i < len(values); i += 2 {
			key, ok := values[i].(string)
			if !ok {
				continue
			}
			m[key] = values[i+1]
		}
		return m
	},
	// safe marks trusted dataset and config markup as safe.
	"safe": func(s string) template.HTML {
		return template.HTML(s)
	},
}

// Renderer manages the page and fragment templates.
type Renderer struct {
	templates *template.Template
	mu        sync.RWMutex
}

// New parses the templates found in fsys under fragments/ and pages/.
func New(fsys fs.FS) (*Renderer, error) {
	tmpl, err := parse(fsys)
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: tmpl}, nil
}

// Embedded returns a renderer over the templates compiled into the binary.
func Embedded() (*Renderer, error) {
	return New(embedded)
}

// Dir loads templates from a web/templates style directory, falling back to
// the embedded set when dir has none.
func Dir(dir string) (*Renderer, error) {
	if dir == "" {
		return Embedded()
	}
	if _, err := os.Stat(filepath.Join(dir, "pages")); err != nil {
		return Embedded()
	}
	return New(os.DirFS(dir))
}

func parse(fsys fs.FS) (*template.Template, error) {
	tmpl := template.New("").Funcs(funcMap)
	for _, p := range patterns {
		var err error
		if tmpl, err = tmpl.ParseFS(fsys, p); err != nil {
			return nil, err
		}
	}
	return tmpl, nil
}

// Render renders a named template to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderToBuffer renders a named template to a buffer.
func (r *Renderer) RenderToBuffer(buf *bytes.Buffer, name string, data any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.templates.ExecuteTemplate(buf, name, data)
}

// MustRender renders a template and panics on error.
// Use only when you're certain the template exists.
func (r *Renderer) MustRender(name string, data any) string {
	s, err := r.Render(name, data)
	if err != nil {
		panic(err)
	}
	return s
}

// Reload re-parses templates from fsys (useful for dev hot-reload).
func (r *Renderer) Reload(fsys fs.FS) error {
	tmpl, err := parse(fsys)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.templates = tmpl
	r.mu.Unlock()

	return nil
}
