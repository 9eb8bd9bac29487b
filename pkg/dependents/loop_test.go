package dependents

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cuemby/swarmanchor/pkg/config"
	"github.com/cuemby/swarmanchor/pkg/retrystate"
	"github.com/cuemby/swarmanchor/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type location struct {
	state  types.TaskState
	nodeID string
}

type fakeAdapter struct {
	locations map[string]location
	updated   []string
}

func (f *fakeAdapter) AnchorLocation(ctx context.Context, fullName string) (types.TaskState, string, error) {
	loc := f.locations[fullName]
	return loc.state, loc.nodeID, nil
}

func (f *fakeAdapter) ForceUpdate(ctx context.Context, fullName string) error {
	f.updated = append(f.updated, fullName)
	return nil
}

func newStore(t *testing.T) *retrystate.Store {
	t.Helper()
	s, err := retrystate.Open(filepath.Join(t.TempDir(), "retry.json"))
	require.NoError(t, err)
	return s
}

func TestRunDependentCoLocatedClearsMismatch(t *testing.T) {
	adapter := &fakeAdapter{locations: map[string]location{
		"swarm-dev_web": {state: types.TaskStateRunning, nodeID: "node-x"},
	}}
	loop := New(adapter, newStore(t), "swarm-dev")
	anchor := config.AnchorConfig{Name: "db", Dependents: []string{"web"}, RetryIntervals: []int{2}, MaxMismatchSeconds: 600}

	loop.runDependent(context.Background(), anchor, "web", "node-x")

	assert.Empty(t, adapter.updated)
	assert.Empty(t, loop.mismatch)
}

func TestRunDependentMismatchedTriggersForceUpdate(t *testing.T) {
	adapter := &fakeAdapter{locations: map[string]location{
		"swarm-dev_web": {state: types.TaskStateRunning, nodeID: "node-y"},
	}}
	loop := New(adapter, newStore(t), "swarm-dev")
	anchor := config.AnchorConfig{Name: "db", Dependents: []string{"web"}, RetryIntervals: []int{2}, MaxMismatchSeconds: 600}

	loop.runDependent(context.Background(), anchor, "web", "node-x")

	assert.Equal(t, []string{"swarm-dev_web"}, adapter.updated)
	assert.Contains(t, loop.mismatch, "swarm-dev_web")
}

func TestRunDependentInitializingNoAction(t *testing.T) {
	adapter := &fakeAdapter{locations: map[string]location{
		"swarm-dev_web": {state: types.TaskStateStarting, nodeID: "node-y"},
	}}
	loop := New(adapter, newStore(t), "swarm-dev")
	anchor := config.AnchorConfig{Name: "db", Dependents: []string{"web"}, RetryIntervals: []int{2}, MaxMismatchSeconds: 600}

	loop.runDependent(context.Background(), anchor, "web", "node-x")

	assert.Empty(t, adapter.updated)
}

func TestRunDependentMismatchBeyondMaxDurationDefers(t *testing.T) {
	adapter := &fakeAdapter{locations: map[string]location{
		"swarm-dev_web": {state: types.TaskStateRunning, nodeID: "node-y"},
	}}
	loop := New(adapter, newStore(t), "swarm-dev")
	anchor := config.AnchorConfig{Name: "db", Dependents: []string{"web"}, RetryIntervals: []int{2}, MaxMismatchSeconds: 0}

	loop.runDependent(context.Background(), anchor, "web", "node-x")

	assert.Empty(t, adapter.updated)
}

func TestRunAnchorWaitingNoAction(t *testing.T) {
	adapter := &fakeAdapter{locations: map[string]location{
		"swarm-dev_db": {state: types.TaskStateStarting, nodeID: "node-x"},
	}}
	loop := New(adapter, newStore(t), "swarm-dev")
	anchor := config.AnchorConfig{Name: "db", Dependents: []string{"web"}, RetryIntervals: []int{2}}

	loop.runAnchor(context.Background(), anchor)

	assert.Empty(t, adapter.updated)
}

func TestRunAnchorFailureRetriesAnchorOnly(t *testing.T) {
	adapter := &fakeAdapter{locations: map[string]location{
		"swarm-dev_db": {state: types.TaskStateFailed, nodeID: ""},
	}}
	loop := New(adapter, newStore(t), "swarm-dev")
	anchor := config.AnchorConfig{Name: "db", Dependents: []string{"web"}, RetryIntervals: []int{2}, RestartDependents: false}

	loop.runAnchor(context.Background(), anchor)

	assert.Equal(t, []string{"swarm-dev_db"}, adapter.updated)
}

func TestRunAnchorFailureRestartsDependentsWhenConfigured(t *testing.T) {
	adapter := &fakeAdapter{locations: map[string]location{
		"swarm-dev_db": {state: types.TaskStateFailed, nodeID: ""},
	}}
	loop := New(adapter, newStore(t), "swarm-dev")
	anchor := config.AnchorConfig{Name: "db", Dependents: []string{"web"}, RetryIntervals: []int{2}, RestartDependents: true}

	loop.runAnchor(context.Background(), anchor)

	assert.ElementsMatch(t, []string{"swarm-dev_db", "swarm-dev_web"}, adapter.updated)
}
