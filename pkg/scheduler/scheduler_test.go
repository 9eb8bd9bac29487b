package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/swarmanchor/pkg/config"
	"github.com/cuemby/swarmanchor/pkg/metrics"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLeaderChecker struct {
	mu     sync.Mutex
	leader bool
	err    error
	calls  int
}

func (f *fakeLeaderChecker) AmLeader(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.leader, f.err
}

type fakeAnchorRunner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeAnchorRunner) Run(ctx context.Context, deps config.Dependencies) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeAnchorRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDependentRunner struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeDependentRunner) Run(ctx context.Context, deps config.Dependencies) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
}

func (f *fakeDependentRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRebalanceRunner struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeRebalanceRunner) Run(ctx context.Context, deps config.Dependencies, rcfg *config.RebalanceConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
}

func (f *fakeRebalanceRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newStoreForTest(t *testing.T) *config.Store {
	t.Helper()
	dir := t.TempDir()
	depsPath := filepath.Join(dir, "dependencies.yaml")
	rebalPath := filepath.Join(dir, "rebalance.yaml")

	require.NoError(t, os.WriteFile(depsPath, []byte("{}\n"), 0o644))
	require.NoError(t, os.WriteFile(rebalPath, []byte(
		"default:\n"+
			"  cooldown_minutes: 15\n"+
			"  sustained_high_minutes: 10\n"+
			"  memory_difference_gb: 2\n"+
			"  rebalance_buffer_gb: 1\n"+
			"  check_interval_seconds: 60\n"), 0o644))

	store, err := config.NewStore(config.Paths{
		DependenciesFile: depsPath,
		RebalanceFile:    rebalPath,
	})
	require.NoError(t, err)
	return store
}

func gaugeValue(t *testing.T) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, metrics.SwarmOrchLeader.Write(&m))
	return m.GetGauge().GetValue()
}

func TestRunSyncPassSkipsWhenNotLeader(t *testing.T) {
	leader := &fakeLeaderChecker{leader: false}
	anchors := &fakeAnchorRunner{}
	deps := &fakeDependentRunner{}
	reb := &fakeRebalanceRunner{}
	store := newStoreForTest(t)

	s := New(leader, anchors, deps, reb, store, time.Hour, time.Hour)
	s.runSyncPass(context.Background(), "")

	assert.Equal(t, 0, anchors.callCount())
	assert.Equal(t, 0, deps.callCount())
	assert.Equal(t, float64(0), gaugeValue(t))
}

func TestRunSyncPassRunsAnchorsAndDependentsWhenLeader(t *testing.T) {
	leader := &fakeLeaderChecker{leader: true}
	anchors := &fakeAnchorRunner{}
	deps := &fakeDependentRunner{}
	reb := &fakeRebalanceRunner{}
	store := newStoreForTest(t)

	s := New(leader, anchors, deps, reb, store, time.Hour, time.Hour)
	s.runSyncPass(context.Background(), "")

	assert.Equal(t, 1, anchors.callCount())
	assert.Equal(t, 1, deps.callCount())
	assert.Equal(t, 0, reb.callCount())
	assert.Equal(t, float64(1), gaugeValue(t))
}

func TestRunSyncPassLeadershipErrorSkipsWork(t *testing.T) {
	leader := &fakeLeaderChecker{err: errors.New("info failed")}
	anchors := &fakeAnchorRunner{}
	deps := &fakeDependentRunner{}
	reb := &fakeRebalanceRunner{}
	store := newStoreForTest(t)

	s := New(leader, anchors, deps, reb, store, time.Hour, time.Hour)
	s.runSyncPass(context.Background(), "")

	assert.Equal(t, 0, anchors.callCount())
	assert.Equal(t, 0, deps.callCount())
}

func TestRunRebalancePassRunsOnlyWhenLeader(t *testing.T) {
	leader := &fakeLeaderChecker{leader: true}
	anchors := &fakeAnchorRunner{}
	deps := &fakeDependentRunner{}
	reb := &fakeRebalanceRunner{}
	store := newStoreForTest(t)

	s := New(leader, anchors, deps, reb, store, time.Hour, time.Hour)
	s.runRebalancePass(context.Background())
	assert.Equal(t, 1, reb.callCount())

	leader.mu.Lock()
	leader.leader = false
	leader.mu.Unlock()

	s.runRebalancePass(context.Background())
	assert.Equal(t, 1, reb.callCount())
}

func TestPauseSkipsMutatingWork(t *testing.T) {
	leader := &fakeLeaderChecker{leader: true}
	anchors := &fakeAnchorRunner{}
	deps := &fakeDependentRunner{}
	reb := &fakeRebalanceRunner{}
	store := newStoreForTest(t)

	s := New(leader, anchors, deps, reb, store, time.Hour, time.Hour)
	s.Pause()
	assert.True(t, s.Paused())

	s.runSyncPass(context.Background(), "")
	assert.Equal(t, 0, anchors.callCount())
	assert.Equal(t, 0, deps.callCount())

	s.Resume()
	assert.False(t, s.Paused())

	s.runSyncPass(context.Background(), "")
	assert.Equal(t, 1, anchors.callCount())
}

func TestRunSyncPassUnknownAnchorIsNoOp(t *testing.T) {
	leader := &fakeLeaderChecker{leader: true}
	anchors := &fakeAnchorRunner{}
	deps := &fakeDependentRunner{}
	reb := &fakeRebalanceRunner{}
	store := newStoreForTest(t)

	s := New(leader, anchors, deps, reb, store, time.Hour, time.Hour)
	s.runSyncPass(context.Background(), "does-not-exist")

	assert.Equal(t, 0, anchors.callCount())
	assert.Equal(t, 0, deps.callCount())
}

func TestTriggerSyncWakesSyncLoop(t *testing.T) {
	leader := &fakeLeaderChecker{leader: true}
	anchors := &fakeAnchorRunner{}
	deps := &fakeDependentRunner{}
	reb := &fakeRebalanceRunner{}
	store := newStoreForTest(t)

	s := New(leader, anchors, deps, reb, store, time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	defer cancel()

	s.TriggerSync("")

	require.Eventually(t, func() bool {
		return anchors.callCount() >= 1
	}, time.Second, 10*time.Millisecond)

	s.Stop()
}
