package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-atlas/internal/config"
)

const (
	datasetDoc = `[{"name":"Class1","info":"<p>i</p>","species":[
		{"name":"Species 1","quad":["Q1","Q2"],"value":[[2],[3,4]]},
		{"name":"Species 2","quad":["Q2"],"value":[[2]]}]}]`
	gridDoc = `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"grdref":"Q1"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}},
		{"type":"Feature","properties":{"grdref":"Q2"},"geometry":{"type":"Polygon","coordinates":[[[1,0],[2,0],[2,1],[1,1],[1,0]]]}}]}`
)

// memFetcher serves assets from memory; gate blocks fetches until closed.
type memFetcher struct {
	files map[string]string
	gate  chan struct{}
}

func (m *memFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s, ok := m.files[uri]
	if !ok {
		return nil, fmt.Errorf("%s: not found", uri)
	}
	return []byte(s), nil
}

func newFetcher() *memFetcher {
	return &memFetcher{files: map[string]string{
		"species.json": datasetDoc,
		"grid.geojson": gridDoc,
	}}
}

func TestLoadReady(t *testing.T) {
	svc := New(config.Default(), newFetcher(), zap.NewNop())

	require.NoError(t, svc.Load(context.Background()))

	state, err := svc.State()
	assert.Equal(t, StateReady, state)
	assert.NoError(t, err)

	snap, err := svc.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Grid.Len())
	assert.Equal(t, []string{"Class1"}, snap.Dataset.ClassNames())
	assert.Same(t, svc.Config(), snap.Config)
}

func TestSnapshotWhileLoading(t *testing.T) {
	f := newFetcher()
	f.gate = make(chan struct{})
	svc := New(config.Default(), f, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	_, err := svc.Snapshot()
	assert.ErrorIs(t, err, ErrNotReady)
	state, _ := svc.State()
	assert.Equal(t, StateLoading, state)

	close(f.gate)
	require.NoError(t, svc.Wait(ctx))
	_, err = svc.Snapshot()
	assert.NoError(t, err)
}

func TestLoadFailures(t *testing.T) {
	cases := map[string]map[string]string{
		"missing dataset": {"grid.geojson": gridDoc},
		"missing grid":    {"species.json": datasetDoc},
		"bad dataset":     {"species.json": `{"not":"a list"}`, "grid.geojson": gridDoc},
		"bad grid":        {"species.json": datasetDoc, "grid.geojson": `[]`},
	}
	for name, files := range cases {
		t.Run(name, func(t *testing.T) {
			svc := New(config.Default(), &memFetcher{files: files}, zap.NewNop())
			err := svc.Load(context.Background())
			require.Error(t, err)

			state, loadErr := svc.State()
			assert.Equal(t, StateFailed, state)
			assert.Equal(t, err, loadErr)

			_, err = svc.Snapshot()
			assert.ErrorIs(t, err, ErrNotReady)
			assert.Contains(t, err.Error(), loadErr.Error())
		})
	}
}

func TestReadyHooks(t *testing.T) {
	svc := New(config.Default(), newFetcher(), zap.NewNop())
	var got *Snapshot
	svc.OnReady(func(_ context.Context, s *Snapshot) error {
		got = s
		return nil
	})
	require.NoError(t, svc.Load(context.Background()))
	require.NotNil(t, got)

	failing := New(config.Default(), newFetcher(), zap.NewNop())
	boom := errors.New("boom")
	failing.OnReady(func(context.Context, *Snapshot) error { return boom })
	assert.ErrorIs(t, failing.Load(context.Background()), boom)
	state, _ := failing.State()
	assert.Equal(t, StateFailed, state)
}

func TestOnState(t *testing.T) {
	svc := New(config.Default(), newFetcher(), zap.NewNop())

	var mu sync.Mutex
	var seen []State
	svc.OnState(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	require.NoError(t, svc.Load(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateLoading, StateReady}, seen)
}

func TestLoadRunsOnce(t *testing.T) {
	svc := New(config.Default(), newFetcher(), zap.NewNop())
	require.NoError(t, svc.Load(context.Background()))
	first, _ := svc.Snapshot()

	require.NoError(t, svc.Load(context.Background()))
	second, _ := svc.Snapshot()
	assert.Same(t, first, second)
}

func TestWaitHonorsContext(t *testing.T) {
	f := newFetcher()
	f.gate = make(chan struct{})
	defer close(f.gate)
	svc := New(config.Default(), f, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, svc.Wait(ctx), context.DeadlineExceeded)
}
