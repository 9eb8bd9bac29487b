package rebalance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/swarmanchor/pkg/config"
	"github.com/cuemby/swarmanchor/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	nodes     []types.NodeInfo
	specs     map[string]types.ServiceSpec
	locations map[string]location
	memGB     map[string]float64 // fullName -> reservation GB
	nodeMem   map[string]uint64  // nodeID -> capacity bytes
	updated   []string
}

type location struct {
	state  types.TaskState
	nodeID string
}

func (f *fakeAdapter) ListNodes(ctx context.Context) ([]types.NodeInfo, error) {
	return f.nodes, nil
}

func (f *fakeAdapter) InspectService(ctx context.Context, fullName string) (types.ServiceSpec, error) {
	return f.specs[fullName], nil
}

func (f *fakeAdapter) AnchorLocation(ctx context.Context, fullName string) (types.TaskState, string, error) {
	loc := f.locations[fullName]
	return loc.state, loc.nodeID, nil
}

func (f *fakeAdapter) ForceUpdate(ctx context.Context, fullName string) error {
	f.updated = append(f.updated, fullName)
	return nil
}

func (f *fakeAdapter) NodeMemoryBytes(ctx context.Context, nodeID string) (uint64, error) {
	return f.nodeMem[nodeID], nil
}

func (f *fakeAdapter) ServiceMemoryReservationBytes(ctx context.Context, fullName string) (uint64, error) {
	return uint64(f.memGB[fullName] * bytesPerGB), nil
}

func newState(t *testing.T) *StateStore {
	t.Helper()
	s, err := OpenState(filepath.Join(t.TempDir(), "rebalance.json"))
	require.NoError(t, err)
	return s
}

func baseRebalanceConfig() *config.RebalanceConfig {
	return &config.RebalanceConfig{
		Default: config.RebalanceDefaults{
			CooldownMinutes:      15,
			SustainedHighMinutes: 10,
			MemoryDifferenceGB:   2,
			RebalanceBufferGB:    1,
			CheckIntervalSeconds: 60,
		},
	}
}

func TestRunServiceFirstDetectionDoesNotMoveImmediately(t *testing.T) {
	adapter := &fakeAdapter{
		nodes: []types.NodeInfo{{ID: "node-a", Hostname: "a"}, {ID: "node-b", Hostname: "b"}},
		specs: map[string]types.ServiceSpec{"swarm-dev_svc": {Labels: map[string]string{}}},
		locations: map[string]location{
			"swarm-dev_svc": {state: types.TaskStateRunning, nodeID: "node-a"},
		},
	}
	loop := New(adapter, newState(t), "swarm-dev")
	freeMem := map[string]float64{"node-a": 4, "node-b": 10}
	hostToID := map[string]string{"a": "node-a", "b": "node-b"}

	loop.runService(context.Background(), "swarm-dev_svc", nil, freeMem, hostToID, baseRebalanceConfig().ForService("svc"))

	assert.Empty(t, adapter.updated)
}

func TestRunServiceSustainedImbalanceMoves(t *testing.T) {
	adapter := &fakeAdapter{
		nodes: []types.NodeInfo{{ID: "node-a", Hostname: "a"}, {ID: "node-b", Hostname: "b"}},
		specs: map[string]types.ServiceSpec{"swarm-dev_svc": {Labels: map[string]string{}}},
		locations: map[string]location{
			"swarm-dev_svc": {state: types.TaskStateRunning, nodeID: "node-a"},
		},
	}
	state := newState(t)
	past := time.Now().Add(-11 * time.Minute)
	require.NoError(t, state.SetFirstDetected("swarm-dev_svc", past))

	loop := New(adapter, state, "swarm-dev")
	freeMem := map[string]float64{"node-a": 4, "node-b": 10}
	hostToID := map[string]string{"a": "node-a", "b": "node-b"}

	loop.runService(context.Background(), "swarm-dev_svc", nil, freeMem, hostToID, baseRebalanceConfig().ForService("svc"))

	assert.Equal(t, []string{"swarm-dev_svc"}, adapter.updated)
}

func TestRunServiceCooldownBlocksRepeatMove(t *testing.T) {
	adapter := &fakeAdapter{
		nodes: []types.NodeInfo{{ID: "node-a", Hostname: "a"}, {ID: "node-b", Hostname: "b"}},
		specs: map[string]types.ServiceSpec{"swarm-dev_svc": {Labels: map[string]string{}}},
		locations: map[string]location{
			"swarm-dev_svc": {state: types.TaskStateRunning, nodeID: "node-a"},
		},
	}
	state := newState(t)
	past := time.Now().Add(-20 * time.Minute)
	require.NoError(t, state.RecordMove("swarm-dev_svc", "node-b", time.Now().Add(-5*time.Minute)))
	require.NoError(t, state.SetFirstDetected("swarm-dev_svc", past))

	loop := New(adapter, state, "swarm-dev")
	freeMem := map[string]float64{"node-a": 4, "node-b": 10}
	hostToID := map[string]string{"a": "node-a", "b": "node-b"}

	loop.runService(context.Background(), "swarm-dev_svc", nil, freeMem, hostToID, baseRebalanceConfig().ForService("svc"))

	assert.Empty(t, adapter.updated)
}

func TestRunServiceOptOutSkips(t *testing.T) {
	adapter := &fakeAdapter{
		nodes: []types.NodeInfo{{ID: "node-a", Hostname: "a"}, {ID: "node-b", Hostname: "b"}},
		specs: map[string]types.ServiceSpec{"swarm-dev_svc": {Labels: map[string]string{"orchestration.rebalance": "false"}}},
		locations: map[string]location{
			"swarm-dev_svc": {state: types.TaskStateRunning, nodeID: "node-a"},
		},
	}
	loop := New(adapter, newState(t), "swarm-dev")
	freeMem := map[string]float64{"node-a": 4, "node-b": 10}
	hostToID := map[string]string{"a": "node-a", "b": "node-b"}

	loop.runService(context.Background(), "swarm-dev_svc", nil, freeMem, hostToID, baseRebalanceConfig().ForService("svc"))

	assert.Empty(t, adapter.updated)
}

func TestRunServicePreferredNodeOverrideRequiresBuffer(t *testing.T) {
	adapter := &fakeAdapter{
		nodes: []types.NodeInfo{{ID: "node-a", Hostname: "a"}, {ID: "node-b", Hostname: "b"}},
		specs: map[string]types.ServiceSpec{"swarm-dev_svc": {Labels: map[string]string{"orchestration.preferred.node": "b"}}},
		locations: map[string]location{
			"swarm-dev_svc": {state: types.TaskStateRunning, nodeID: "node-a"},
		},
		memGB: map[string]float64{"swarm-dev_svc": 0.1},
	}
	loop := New(adapter, newState(t), "swarm-dev")
	hostToID := map[string]string{"a": "node-a", "b": "node-b"}

	// 0.5 GiB advantage, below the 1 GiB buffer: no move.
	freeMemSmall := map[string]float64{"node-a": 4, "node-b": 4.5}
	loop.runService(context.Background(), "swarm-dev_svc", nil, freeMemSmall, hostToID, baseRebalanceConfig().ForService("svc"))
	assert.Empty(t, adapter.updated)

	// 1.5 GiB advantage, above the buffer: move.
	freeMemLarge := map[string]float64{"node-a": 4, "node-b": 5.5}
	loop.runService(context.Background(), "swarm-dev_svc", nil, freeMemLarge, hostToID, baseRebalanceConfig().ForService("svc"))
	assert.Equal(t, []string{"swarm-dev_svc"}, adapter.updated)
}

func TestBuildGroups(t *testing.T) {
	deps := config.NewDependencies(
		config.AnchorConfig{Name: "db", Dependents: []string{"web", "worker"}},
	)
	groups, order := buildGroups(deps)

	assert.ElementsMatch(t, []string{"web", "worker"}, groups["db"])
	assert.ElementsMatch(t, []string{"db", "worker"}, groups["web"])
	assert.ElementsMatch(t, []string{"db", "web"}, groups["worker"])
	assert.Equal(t, []string{"db", "web", "worker"}, order)
}
