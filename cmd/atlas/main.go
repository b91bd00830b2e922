package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-atlas/internal/api"
	"github.com/joeblew999/plat-atlas/internal/assets"
	"github.com/joeblew999/plat-atlas/internal/atlas"
	"github.com/joeblew999/plat-atlas/internal/config"
	"github.com/joeblew999/plat-atlas/internal/legend"
	"github.com/joeblew999/plat-atlas/internal/server"
	"github.com/joeblew999/plat-atlas/internal/view"
)

// Options defines all CLI flags and env vars for the atlas server.
// Flags: --host, --port, --config, --dataset, --grid, --data-dir, --web-dir, --debug
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_CONFIG, SERVICE_DATASET, ...
type Options struct {
	Host       string `doc:"Host to bind to" default:"0.0.0.0"`
	Port       int    `doc:"Port to listen on" short:"p" default:"8086"`
	Config     string `doc:"Atlas YAML configuration (title, footer, styles)"`
	Dataset    string `doc:"Dataset location: path, http(s) URL or s3://bucket/key"`
	Grid       string `doc:"Grid GeoJSON location: path, http(s) URL or s3://bucket/key"`
	DataDir    string `doc:"Directory for the DuckDB read model; empty keeps it in memory"`
	WebDir     string `doc:"Path to web/ directory (assets, notes, static files)" default:"web"`
	S3Region   string `doc:"Region for s3:// assets"`
	S3Endpoint string `doc:"Endpoint for S3-compatible stores"`
	Sessions   int    `doc:"Viewer sessions kept in memory" default:"1024"`
	Debug      bool   `doc:"Enable debug logging"`
}

func newLogger(opts *Options) *zap.Logger {
	var (
		log *zap.Logger
		err error
	)
	if opts.Debug {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	return log
}

func newServer(opts *Options, log *zap.Logger) *server.Server {
	srv, err := server.New(server.Config{
		Host:       opts.Host,
		Port:       fmt.Sprintf("%d", opts.Port),
		DataDir:    opts.DataDir,
		WebDir:     opts.WebDir,
		ConfigPath: opts.Config,
		Dataset:    opts.Dataset,
		Grid:       opts.Grid,
		S3:         assets.S3Options{Region: opts.S3Region, Endpoint: opts.S3Endpoint, PathStyle: opts.S3Endpoint != ""},
		Sessions:   opts.Sessions,
		Logger:     log,
	})
	if err != nil {
		log.Fatal("creating server", zap.Error(err))
	}
	return srv
}

// loadDataset reads the dataset the server would load.
func loadDataset(ctx context.Context, opts *Options) (*config.Atlas, *atlas.Dataset, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, nil, err
	}
	uri := cfg.Dataset
	if opts.Dataset != "" {
		uri = opts.Dataset
	}
	fetcher := &assets.Fetcher{S3: assets.S3Options{Region: opts.S3Region, Endpoint: opts.S3Endpoint}}
	raw, err := fetcher.Fetch(ctx, assets.Resolve(opts.WebDir, uri))
	if err != nil {
		return nil, nil, err
	}
	ds, err := atlas.Parse(raw)
	if err != nil {
		return nil, nil, err
	}
	return cfg, ds, nil
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Handler is set on start, so subcommands never build a server.
		httpSrv := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", opts.Host, opts.Port),
			ReadHeaderTimeout: 10 * time.Second,
		}

		hooks.OnStart(func() {
			log := newLogger(opts)
			srv := newServer(opts, log)
			httpSrv.Handler = srv

			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-atlas server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Web:     %s\n", opts.WebDir)
			fmt.Println()
			fmt.Printf("  Page:    %s/viewer\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Printf("  Metrics: %s/metrics\n", baseURL)
			fmt.Println()

			srv.Start(context.Background())
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal("server error", zap.Error(err))
			}
			_ = srv.Close()
			_ = log.Sync()
		})

		hooks.OnStop(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(ctx)
		})
	})

	cli.Root().Use = "atlas"
	cli.Root().Short = "Species atlas: occurrence and richness maps over a grid"
	cli.Root().Version = api.Version

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv := newServer(opts, zap.NewNop())
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fail("Error marshaling spec: %v", err)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// convert subcommand: species.csv + info.csv -> dataset JSON
	convertCmd := &cobra.Command{
		Use:   "convert <species.csv> [info.csv]",
		Short: "Build the dataset JSON from CSV tables",
		Args:  cobra.RangeArgs(1, 2),
		Run: func(cmd *cobra.Command, args []string) {
			species, err := os.Open(args[0])
			if err != nil {
				fail("Error opening %s: %v", args[0], err)
			}
			defer species.Close()

			var ds *atlas.Dataset
			if len(args) == 2 {
				info, openErr := os.Open(args[1])
				if openErr != nil {
					fail("Error opening %s: %v", args[1], openErr)
				}
				defer info.Close()
				ds, err = atlas.FromCSV(species, info)
			} else {
				ds, err = atlas.FromCSV(species, nil)
			}
			if err != nil {
				fail("Error converting: %v", err)
			}

			out, err := json.Marshal(ds)
			if err != nil {
				fail("Error encoding dataset: %v", err)
			}
			target, _ := cmd.Flags().GetString("output")
			if target == "" || target == "-" {
				fmt.Println(string(out))
				return
			}
			if err := os.WriteFile(target, out, 0o644); err != nil {
				fail("Error writing %s: %v", target, err)
			}
			stats := ds.Stats()
			fmt.Printf("Wrote %s: %d classes, %d species, %d records\n", target, stats.Classes, stats.Species, stats.Observations)
		},
	}
	convertCmd.Flags().StringP("output", "o", "species.json", "Output file, - for stdout")
	cli.Root().AddCommand(convertCmd)

	// legend subcommand: draw the legend of a selection
	legendCmd := &cobra.Command{
		Use:   "legend <class> [species]",
		Short: "Draw the legend PNG of a class (richness) or species (distribution)",
		Args:  cobra.RangeArgs(1, 2),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			cfg, ds, err := loadDataset(context.Background(), opts)
			if err != nil {
				fail("Error loading dataset: %v", err)
			}
			c := view.NewController(ds, cfg)
			mode := view.ModeRichness
			if len(args) == 2 {
				mode = view.ModeDistribution
			}
			if err := c.SetMode(mode); err != nil {
				fail("Error: %v", err)
			}
			if err := c.SelectClass(args[0]); err != nil {
				fail("Error: %v", err)
			}
			if len(args) == 2 {
				if err := c.SelectSpecies(args[1]); err != nil {
					fail("Error: %v", err)
				}
			}

			target, _ := cmd.Flags().GetString("output")
			f, err := os.Create(target)
			if err != nil {
				fail("Error creating %s: %v", target, err)
			}
			defer f.Close()
			if err := legend.EncodePNG(f, c.Legend()); err != nil {
				fail("Error drawing legend: %v", err)
			}
			fmt.Printf("Legend written to %s\n", target)
		}),
	}
	legendCmd.Flags().StringP("output", "o", "legend.png", "Output PNG file")
	cli.Root().AddCommand(legendCmd)

	// richness subcommand: print species counts per cell
	richnessCmd := &cobra.Command{
		Use:   "richness <class>",
		Short: "Print the species count of every cell of a class",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			_, ds, err := loadDataset(context.Background(), opts)
			if err != nil {
				fail("Error loading dataset: %v", err)
			}
			cl, err := ds.Class(args[0])
			if err != nil {
				fail("Error: %v", err)
			}
			r := atlas.ComputeRichness(cl)
			cells := make([]string, 0, len(r))
			for cell := range r {
				cells = append(cells, cell)
			}
			slices.Sort(cells)
			for _, cell := range cells {
				fmt.Printf("%s\t%d\n", cell, r[cell])
			}
			if lo, hi, ok := r.Range(); ok {
				fmt.Printf("# %d cells, min %d, max %d\n", len(cells), lo, hi)
			}
		}),
	}
	cli.Root().AddCommand(richnessCmd)

	cli.Run()
}
