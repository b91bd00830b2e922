// Package service owns the loaded atlas assets and the gate that keeps
// handlers away from them until the one-shot load has finished.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/joeblew999/plat-atlas/internal/atlas"
	"github.com/joeblew999/plat-atlas/internal/config"
	"github.com/joeblew999/plat-atlas/internal/grid"
)

// ErrNotReady is returned while assets are loading or after the load failed.
var ErrNotReady = errors.New("atlas not ready")

// State is the load gate position.
type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// Fetcher reads an asset by URI.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// Snapshot is the immutable result of a successful load.
type Snapshot struct {
	Dataset *atlas.Dataset
	Grid    *grid.Grid
	Config  *config.Atlas
	Loaded  time.Time
}

// ReadyHook runs once after the assets parsed, before the gate opens. A
// hook error fails the load.
type ReadyHook func(ctx context.Context, snap *Snapshot) error

// Atlas loads the dataset and grid once and hands out the snapshot.
type Atlas struct {
	cfg     *config.Atlas
	fetcher Fetcher
	log     *zap.Logger

	mu        sync.RWMutex
	state     State
	err       error
	snap      *Snapshot
	hooks     []ReadyHook
	listeners []func(State)
	started   bool
	done      chan struct{}
}

// New creates the service in the loading state.
func New(cfg *config.Atlas, fetcher Fetcher, log *zap.Logger) *Atlas {
	if log == nil {
		log = zap.NewNop()
	}
	return &Atlas{
		cfg:     cfg,
		fetcher: fetcher,
		log:     log,
		state:   StateLoading,
		done:    make(chan struct{}),
	}
}

// OnReady registers a hook. Hooks must be registered before Load.
func (a *Atlas) OnReady(h ReadyHook) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hooks = append(a.hooks, h)
}

// OnState registers a callback for every state change, called with the
// current state right away.
func (a *Atlas) OnState(fn func(State)) {
	a.mu.Lock()
	a.listeners = append(a.listeners, fn)
	state := a.state
	a.mu.Unlock()
	fn(state)
}

// Start runs Load in the background.
func (a *Atlas) Start(ctx context.Context) {
	go func() {
		_ = a.Load(ctx)
	}()
}

// Load fetches and parses the assets and opens the gate. It runs at most
// once; later calls wait for the first and return its result.
func (a *Atlas) Load(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return a.Wait(ctx)
	}
	a.started = true
	hooks := append([]ReadyHook(nil), a.hooks...)
	a.mu.Unlock()

	start := time.Now()
	snap, err := a.load(ctx)
	if err == nil {
		for _, h := range hooks {
			if err = h(ctx, snap); err != nil {
				break
			}
		}
	}

	a.mu.Lock()
	if err != nil {
		a.state, a.err = StateFailed, err
		a.log.Error("atlas load failed", zap.Error(err))
	} else {
		a.state, a.snap = StateReady, snap
		stats := snap.Dataset.Stats()
		a.log.Info("atlas loaded",
			zap.Int("classes", stats.Classes),
			zap.Int("species", stats.Species),
			zap.Int("observations", stats.Observations),
			zap.Int("cells", snap.Grid.Len()),
			zap.Duration("took", time.Since(start)),
		)
	}
	state := a.state
	listeners := append([]func(State){}, a.listeners...)
	close(a.done)
	a.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
	return err
}

func (a *Atlas) load(ctx context.Context) (*Snapshot, error) {
	a.log.Info("loading atlas assets", zap.String("dataset", a.cfg.Dataset), zap.String("grid", a.cfg.Grid))

	raw, err := a.fetcher.Fetch(ctx, a.cfg.Dataset)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	ds, err := atlas.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", a.cfg.Dataset, err)
	}

	raw, err = a.fetcher.Fetch(ctx, a.cfg.Grid)
	if err != nil {
		return nil, fmt.Errorf("grid: %w", err)
	}
	g, err := grid.Parse(raw, a.cfg.IDProperty)
	if err != nil {
		return nil, fmt.Errorf("grid %s: %w", a.cfg.Grid, err)
	}

	for class := range a.cfg.Markers {
		if _, err := ds.Class(class); err != nil {
			a.log.Warn("markers configured for unknown class", zap.String("class", class))
		}
	}

	return &Snapshot{Dataset: ds, Grid: g, Config: a.cfg, Loaded: time.Now()}, nil
}

// State reports the gate position and the load error, if any.
func (a *Atlas) State() (State, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state, a.err
}

// Snapshot returns the loaded assets, or an error wrapping ErrNotReady.
func (a *Atlas) Snapshot() (*Snapshot, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	switch a.state {
	case StateReady:
		return a.snap, nil
	case StateFailed:
		return nil, fmt.Errorf("%w: %v", ErrNotReady, a.err)
	default:
		return nil, fmt.Errorf("%w: assets are still loading", ErrNotReady)
	}
}

// Config is the atlas configuration, available in every state.
func (a *Atlas) Config() *config.Atlas { return a.cfg }

// Wait blocks until the load finished or ctx is done. It returns the load
// error, if any.
func (a *Atlas) Wait(ctx context.Context) error {
	select {
	case <-a.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	_, err := a.State()
	return err
}
