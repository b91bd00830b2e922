package viewer

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/maptile"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-atlas/internal/legend"
	"github.com/joeblew999/plat-atlas/internal/tiler"
)

// MVTContentType is the media type of the served tiles.
const MVTContentType = "application/vnd.mapbox-vector-tile"

type SessionInput struct {
	Session  string `path:"session" doc:"Viewer session id"`
	Revision uint64 `query:"r" doc:"Selection revision, used by the page to bust caches"`
}

type LegendOutput struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}

// Legend draws the legend of a session. Unknown sessions get the empty
// legend.
func (h *Handler) Legend(ctx context.Context, input *SessionInput) (*LegendOutput, error) {
	lg := legend.Empty()
	if c, ok := h.sessions.Get(input.Session); ok {
		lg = c.Legend()
	}
	var buf bytes.Buffer
	if err := legend.EncodePNG(&buf, lg); err != nil {
		h.log.Error("legend draw failed", zap.String("session", input.Session), zap.Error(err))
		return nil, huma.Error500InternalServerError("Failed to draw legend", err)
	}
	h.metrics.Legends.Inc()
	return &LegendOutput{ContentType: "image/png", CacheControl: "no-cache", Body: buf.Bytes()}, nil
}

type TileInput struct {
	SessionInput
	Z int `path:"z" minimum:"0" maximum:"22" doc:"Zoom"`
	X int `path:"x" minimum:"0" doc:"Column"`
	Y int `path:"y" minimum:"0" doc:"Row"`
}

type TileOutput struct {
	Status          int
	ContentType     string `header:"Content-Type"`
	ContentEncoding string `header:"Content-Encoding"`
	CacheControl    string `header:"Cache-Control"`
	Body            []byte
}

// Tile serves one gzipped vector tile of the grid styled for the session.
// Tiles with nothing to draw answer 204.
func (h *Handler) Tile(ctx context.Context, input *TileInput) (*TileOutput, error) {
	cache := h.tiles.Load()
	if cache == nil {
		return nil, huma.Error503ServiceUnavailable("tiles are not ready")
	}
	c, ok := h.sessions.Get(input.Session)
	if !ok {
		return &TileOutput{Status: http.StatusNoContent, CacheControl: "no-cache"}, nil
	}
	if input.Z > tiler.MaxZoom || input.X >= 1<<input.Z || input.Y >= 1<<input.Z {
		return nil, huma.Error400BadRequest(fmt.Sprintf("tile %d/%d/%d out of range", input.Z, input.X, input.Y))
	}

	fn, rev := c.StyleFunc()
	t := maptile.New(uint32(input.X), uint32(input.Y), maptile.Zoom(input.Z))
	start := time.Now()
	data, hit, err := cache.Tile(fmt.Sprintf("%s/%d", input.Session, rev), t, fn)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	h.metrics.ObserveTile(hit, data == nil, time.Since(start))

	if data == nil {
		return &TileOutput{Status: http.StatusNoContent, CacheControl: "private, max-age=3600"}, nil
	}
	return &TileOutput{
		Status:          http.StatusOK,
		ContentType:     MVTContentType,
		ContentEncoding: "gzip",
		CacheControl:    "private, max-age=3600",
		Body:            data,
	}, nil
}
