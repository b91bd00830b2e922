package viewer

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-atlas/internal/assets"
	"github.com/joeblew999/plat-atlas/internal/humastar"
	"github.com/joeblew999/plat-atlas/internal/view"
)

// Select placeholders.
const (
	classPlaceholder   = "Choose a class"
	speciesPlaceholder = "Choose a species"
)

// Mode switches the map type and resets both selectors.
func (h *Handler) Mode(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	mode, err := view.ParseMode(signals.String("mode"))
	if err != nil {
		return nil, fail(err)
	}
	id, c, err := h.session(signals.String("session"))
	if err != nil {
		return nil, fail(err)
	}

	return h.Stream(func(sse humastar.SSE) {
		if err := c.SetMode(mode); err != nil {
			sse.Error(err.Error())
			return
		}
		h.metrics.Selections.WithLabelValues("mode").Inc()
		h.log.Debug("mode selected", zap.String("session", id), zap.String("mode", string(mode)))

		st := c.State()
		sse.Patch(h.RenderSelect(classPlaceholder, humastar.Options(st.Classes, "")), "#class")
		sse.Patch(h.RenderSelect(speciesPlaceholder, nil), "#species")
		sse.Patch(h.render("class-info", ""), "#infomessage")
		sse.Signals(stateSignals(id, st))
	}), nil
}

// Class selects a class: richness mode draws it, distribution mode fills
// the species selector.
func (h *Handler) Class(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	name := signals.String("classname")
	id, c, err := h.session(signals.String("session"))
	if err != nil {
		return nil, fail(err)
	}

	return h.Stream(func(sse humastar.SSE) {
		if name == "" {
			return
		}
		if err := c.SelectClass(name); err != nil {
			sse.Error(err.Error())
			return
		}
		h.metrics.Selections.WithLabelValues("class").Inc()

		st := c.State()
		if st.SpeciesEnabled {
			sse.Patch(h.RenderSelect(speciesPlaceholder, humastar.Options(st.SpeciesOptions, "")), "#species")
		}
		info, err := view.RewriteInfo(st.Info, h.routes.Notes)
		if err != nil {
			h.log.Warn("class info left as is", zap.String("class", name), zap.Error(err))
			info = st.Info
		}
		sse.Patch(h.render("class-info", info), "#infomessage")
		sse.Signals(stateSignals(id, st))
	}), nil
}

// Species draws the distribution of one species of the selected class.
func (h *Handler) Species(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	name := signals.String("speciesname")
	id, c, err := h.session(signals.String("session"))
	if err != nil {
		return nil, fail(err)
	}

	return h.Stream(func(sse humastar.SSE) {
		if name == "" {
			return
		}
		if err := c.SelectSpecies(name); err != nil {
			sse.Error(err.Error())
			return
		}
		h.metrics.Selections.WithLabelValues("species").Inc()
		sse.Signals(stateSignals(id, c.State()))
	}), nil
}

type ClickInput struct {
	Session string  `query:"session" required:"true" doc:"Viewer session id"`
	Lon     float64 `query:"lon" minimum:"-180" maximum:"180" doc:"Longitude of the click"`
	Lat     float64 `query:"lat" minimum:"-90" maximum:"90" doc:"Latitude of the click"`
}

// Click answers a map click with the richness popup of the cell under it.
// Outside richness mode, or outside the grid, the popup is closed.
func (h *Handler) Click(ctx context.Context, input *ClickInput) (*huma.StreamResponse, error) {
	snap, err := h.svc.Snapshot()
	if err != nil {
		return nil, fail(err)
	}
	return h.Stream(func(sse humastar.SSE) {
		c, ok := h.sessions.Get(input.Session)
		if !ok {
			sse.Signals(map[string]any{"popup": ""})
			return
		}
		cell, ok := snap.Grid.At(orb.Point{input.Lon, input.Lat})
		if !ok || cell.ID == "" {
			sse.Signals(map[string]any{"popup": ""})
			return
		}
		text, ok := c.CellInfo(cell.ID)
		if !ok {
			sse.Signals(map[string]any{"popup": ""})
			return
		}
		h.metrics.Selections.WithLabelValues("click").Inc()
		sse.Patch(h.render("popup", text), "#popup-content")
		sse.Signals(map[string]any{"popup": text})
	}), nil
}

type NotesInput struct {
	Href  string `query:"href" required:"true" doc:"Note document, relative to the notes base"`
	Title string `query:"title" doc:"Modal title"`
}

// NoteData feeds the "note" fragment.
type NoteData struct {
	Title string
	Body  string
}

// Notes loads an overlay note and opens it in the page modal.
func (h *Handler) Notes(ctx context.Context, input *NotesInput) (*huma.StreamResponse, error) {
	ref, err := notePath(input.Href)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	uri := assets.Resolve(h.opts.NotesBase, ref)

	return h.Stream(func(sse humastar.SSE) {
		body, err := h.fetcher.Fetch(ctx, uri)
		if err != nil {
			h.log.Warn("note not found", zap.String("href", input.Href), zap.Error(err))
			sse.Error(fmt.Sprintf("Note %s is not available", input.Href))
			return
		}
		sse.Patch(h.render("note", NoteData{Title: input.Title, Body: string(body)}), "#note-card")
		sse.Signals(map[string]any{"noteOpen": true})
	}), nil
}

// notePath cleans a note reference. Only relative HTML documents below the
// notes base are served.
func notePath(href string) (string, error) {
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	if strings.Contains(href, ":") || strings.Contains(href, `\`) {
		return "", fmt.Errorf("note reference %q must be a relative path", href)
	}
	clean := path.Clean(href)
	if path.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("note reference %q leaves the notes directory", href)
	}
	switch strings.ToLower(path.Ext(clean)) {
	case ".html", ".htm":
	default:
		return "", fmt.Errorf("note reference %q is not an HTML document", href)
	}
	return clean, nil
}
