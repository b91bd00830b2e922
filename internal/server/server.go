// Package server wires the atlas service, the REST API and the viewer into
// one HTTP handler.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-atlas/internal/api"
	"github.com/joeblew999/plat-atlas/internal/api/viewer"
	"github.com/joeblew999/plat-atlas/internal/assets"
	"github.com/joeblew999/plat-atlas/internal/config"
	"github.com/joeblew999/plat-atlas/internal/db"
	"github.com/joeblew999/plat-atlas/internal/humastar"
	"github.com/joeblew999/plat-atlas/internal/metrics"
	"github.com/joeblew999/plat-atlas/internal/service"
	"github.com/joeblew999/plat-atlas/internal/templates"
)

// Config holds the server configuration.
type Config struct {
	Host       string
	Port       string
	DataDir    string // DuckDB files; empty keeps the read model in memory
	WebDir     string // static files, notes and template overrides
	ConfigPath string // atlas YAML; empty uses the built-in defaults
	Dataset    string // overrides the dataset location of the YAML
	Grid       string // overrides the grid location of the YAML
	S3         assets.S3Options
	Sessions   int
	TileCache  int
	Logger     *zap.Logger
}

// Server is the atlas HTTP server.
type Server struct {
	config  Config
	mux     *http.ServeMux
	humaAPI huma.API
	db      *sql.DB
	svc     *service.Atlas
	viewer  *viewer.Handler
	metrics *metrics.Metrics
	log     *zap.Logger
}

// New creates the server. Assets are not loaded until Start.
func New(cfg Config) (*Server, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	atlasCfg, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	if cfg.Dataset != "" {
		atlasCfg.Dataset = cfg.Dataset
	}
	if cfg.Grid != "" {
		atlasCfg.Grid = cfg.Grid
	}
	// Relative asset paths live next to the page, as the stock atlas does.
	atlasCfg.Dataset = assets.Resolve(cfg.WebDir, atlasCfg.Dataset)
	atlasCfg.Grid = assets.Resolve(cfg.WebDir, atlasCfg.Grid)

	mux := http.NewServeMux()

	humaConfig := huma.DefaultConfig("plat-atlas API", api.Version)
	humaConfig.Info.Description = "Species atlas: occurrence and class richness maps over a fixed grid."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, humastar.LinkTransformer())

	m := metrics.New()
	fetcher := &assets.Fetcher{S3: cfg.S3}
	svc := service.New(atlasCfg, fetcher, log.Named("service"))

	renderer, err := templates.Dir(webPath(cfg.WebDir, "templates"))
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}
	vh, err := viewer.New(svc, fetcher, renderer, m, log.Named("viewer"), viewer.Options{
		Sessions:  cfg.Sessions,
		TileCache: cfg.TileCache,
		NotesBase: cfg.WebDir,
	})
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:  cfg,
		mux:     mux,
		humaAPI: humago.New(mux, humaConfig),
		svc:     svc,
		viewer:  vh,
		metrics: m,
		log:     log,
	}

	conn, err := db.Get(db.Config{DataDir: cfg.DataDir, DBName: "atlas"})
	if err == nil {
		// Clients run SQL on this connection.
		err = db.Lock(context.Background(), conn)
	}
	if err != nil {
		log.Warn("duckdb unavailable, query routes disabled", zap.Error(err))
	} else {
		s.db = conn
		svc.OnReady(func(ctx context.Context, snap *service.Snapshot) error {
			if err := db.LoadDataset(ctx, conn, snap.Dataset); err != nil {
				// The map works without the read model.
				log.Warn("loading observations into duckdb", zap.Error(err))
			}
			return nil
		})
	}
	svc.OnReady(vh.Ready)
	svc.OnState(func(st service.State) { m.SetLoadState(string(st)) })

	s.routes()
	return s, nil
}

// Start loads the assets in the background.
func (s *Server) Start(ctx context.Context) {
	s.svc.Start(ctx)
}

// Service exposes the atlas service, mostly for tests and tooling.
func (s *Server) Service() *service.Atlas { return s.svc }

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Close closes server resources.
func (s *Server) Close() error {
	return db.Close()
}

func (s *Server) routes() {
	// Register* methods are discovered by name.
	huma.AutoRegister(s.humaAPI, api.NewAPIHandler(s.svc, s.metrics, s.log.Named("api")))
	api.NewInfoHandler(s.svc, func() bool { return s.db != nil }).RegisterRoutes(s.humaAPI)
	api.NewDBHandler(s.db, s.svc).RegisterRoutes(s.humaAPI)
	s.viewer.RegisterRoutes(s.humaAPI)

	// Links are derived from the registered operations, so this runs last.
	humastar.AutoLinks(s.humaAPI)

	s.mux.Handle("/metrics", s.metrics.Handler())

	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}

	s.mux.HandleFunc("/viewer", s.viewer.Page)
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		http.Redirect(w, r, "/viewer", http.StatusFound)
		return
	}
	for _, link := range humastar.RootLinks() {
		w.Header().Add("Link", link)
	}
	state, _ := s.svc.State()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-atlas",
		"status":  "running",
		"state":   string(state),
	})
}

func webPath(dir, name string) string {
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, name)
}
