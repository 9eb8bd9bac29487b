package docker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cuemby/swarmanchor/pkg/log"
	"github.com/cuemby/swarmanchor/pkg/types"
	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/rs/zerolog"
)

// defaultDeadline bounds every adapter call; networkProbeDeadline
// bounds the cheaper read-only probes.
const (
	defaultDeadline      = 10 * time.Second
	networkProbeDeadline = 2 * time.Second
	labelConflictRetries = 3
	labelConflictBackoff = 100 * time.Millisecond
)

// Adapter is the typed interface over the Docker Engine API's Swarm
// endpoints. It owns no reconciliation state of its own — every loop
// keeps its own view of the world and calls back into Adapter only to
// observe or mutate the cluster.
type Adapter struct {
	cli    *client.Client
	logger zerolog.Logger
	dryRun bool
}

// New wraps an already-configured Docker Engine API client.
func New(cli *client.Client) *Adapter {
	return &Adapter{
		cli:    cli,
		logger: log.WithComponent("docker"),
	}
}

// NewFromEnvironment builds a client from the standard DOCKER_HOST /
// DOCKER_TLS environment variables, the way the engine CLI itself does.
func NewFromEnvironment() (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker: new client: %w", err)
	}
	return New(cli), nil
}

// SetDryRun toggles dry-run mode: every mutating call (ForceUpdate,
// AddLabel, RemoveLabel) is logged and skipped instead of issued
// against the engine API.
func (a *Adapter) SetDryRun(dryRun bool) {
	a.dryRun = dryRun
}

// ListNodes returns every node currently known to the swarm.
func (a *Adapter) ListNodes(ctx context.Context) ([]types.NodeInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultDeadline)
	defer cancel()

	nodes, err := a.cli.NodeList(ctx, dockertypes.NodeListOptions{})
	if err != nil {
		return nil, classify(err)
	}

	out := make([]types.NodeInfo, 0, len(nodes))
	for _, n := range nodes {
		var mem uint64
		if n.Description.Resources.MemoryBytes > 0 {
			mem = uint64(n.Description.Resources.MemoryBytes)
		}
		out = append(out, types.NodeInfo{
			ID:          n.ID,
			Hostname:    n.Description.Hostname,
			Labels:      cloneLabels(n.Spec.Labels),
			MemoryBytes: mem,
		})
	}
	return out, nil
}

// InspectService returns the subset of a service's spec the loops
// care about.
func (a *Adapter) InspectService(ctx context.Context, fullName string) (types.ServiceSpec, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultDeadline)
	defer cancel()

	svc, _, err := a.cli.ServiceInspectWithRaw(ctx, fullName, dockertypes.ServiceInspectOptions{})
	if err != nil {
		return types.ServiceSpec{}, classify(err)
	}

	var placement []string
	if svc.Spec.TaskTemplate.Placement != nil {
		placement = svc.Spec.TaskTemplate.Placement.Constraints
	}
	return types.ServiceSpec{
		ID:        svc.ID,
		Name:      svc.Spec.Name,
		Labels:    cloneLabels(svc.Spec.Labels),
		Placement: placement,
	}, nil
}

// ListTasks returns every task belonging to fullName, most recent
// first.
func (a *Adapter) ListTasks(ctx context.Context, fullName string) ([]types.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultDeadline)
	defer cancel()

	f := filters.NewArgs()
	f.Add("service", fullName)
	tasks, err := a.cli.TaskList(ctx, dockertypes.TaskListOptions{Filters: f})
	if err != nil {
		return nil, classify(err)
	}

	out := make([]types.Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, types.Task{
			ID:           t.ID,
			ServiceID:    t.ServiceID,
			NodeID:       t.NodeID,
			State:        types.TaskState(t.Status.State),
			DesiredState: types.TaskState(t.DesiredState),
			Timestamp:    t.Status.Timestamp,
			Message:      t.Status.Message,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// ForceUpdate triggers a no-op rolling update, the moral equivalent of
// `docker service update --force`. The existing spec, task-template
// and placement are preserved unchanged.
func (a *Adapter) ForceUpdate(ctx context.Context, fullName string) error {
	if a.dryRun {
		a.logger.Info().Str("service", fullName).Msg("dry run: skipping force update")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, defaultDeadline)
	defer cancel()

	svc, _, err := a.cli.ServiceInspectWithRaw(ctx, fullName, dockertypes.ServiceInspectOptions{})
	if err != nil {
		return classify(err)
	}

	spec := svc.Spec
	spec.TaskTemplate.ForceUpdate++

	_, err = a.cli.ServiceUpdate(ctx, svc.ID, svc.Version, spec, dockertypes.ServiceUpdateOptions{})
	return classify(err)
}

// AddLabel sets node.labels.<key>=value on nodeID, retrying on
// optimistic-concurrency conflicts.
func (a *Adapter) AddLabel(ctx context.Context, nodeID, key, value string) error {
	return a.mutateNodeLabels(ctx, nodeID, func(labels map[string]string) {
		labels[key] = value
	})
}

// RemoveLabel deletes node.labels.<key> from nodeID, retrying on
// optimistic-concurrency conflicts.
func (a *Adapter) RemoveLabel(ctx context.Context, nodeID, key string) error {
	return a.mutateNodeLabels(ctx, nodeID, func(labels map[string]string) {
		delete(labels, key)
	})
}

func (a *Adapter) mutateNodeLabels(ctx context.Context, nodeID string, mutate func(map[string]string)) error {
	if a.dryRun {
		a.logger.Info().Str("node_id", nodeID).Msg("dry run: skipping label update")
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < labelConflictRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(labelConflictBackoff)
		}

		callCtx, cancel := context.WithTimeout(ctx, defaultDeadline)
		node, _, err := a.cli.NodeInspectWithRaw(callCtx, nodeID)
		cancel()
		if err != nil {
			return classify(err)
		}

		spec := node.Spec
		if spec.Labels == nil {
			spec.Labels = map[string]string{}
		}
		mutate(spec.Labels)

		callCtx, cancel = context.WithTimeout(ctx, defaultDeadline)
		err = a.cli.NodeUpdate(callCtx, nodeID, node.Version, spec)
		cancel()
		if err == nil {
			return nil
		}

		lastErr = classify(err)
		if !IsTransient(lastErr) {
			return lastErr
		}
		a.logger.Debug().Str("node_id", nodeID).Int("attempt", attempt+1).Msg("label update conflict, retrying")
	}
	return lastErr
}

// NodeMemoryBytes reads the orchestrator-reported memory capacity for
// a node; used as a fallback when a node's node_exporter endpoint is
// unreachable.
func (a *Adapter) NodeMemoryBytes(ctx context.Context, nodeID string) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, networkProbeDeadline)
	defer cancel()

	node, _, err := a.cli.NodeInspectWithRaw(ctx, nodeID)
	if err != nil {
		return 0, classify(err)
	}
	if node.Description.Resources.MemoryBytes <= 0 {
		return 0, nil
	}
	return uint64(node.Description.Resources.MemoryBytes), nil
}

// ServiceMemoryReservationBytes reads the memory reservation declared
// on a service's task template, used by the rebalance loop as a
// best-effort estimate of how much memory moves with the service.
func (a *Adapter) ServiceMemoryReservationBytes(ctx context.Context, fullName string) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, networkProbeDeadline)
	defer cancel()

	svc, _, err := a.cli.ServiceInspectWithRaw(ctx, fullName, dockertypes.ServiceInspectOptions{})
	if err != nil {
		return 0, classify(err)
	}
	res := svc.Spec.TaskTemplate.Resources
	if res == nil || res.Reservations == nil || res.Reservations.MemoryBytes <= 0 {
		return 0, nil
	}
	return uint64(res.Reservations.MemoryBytes), nil
}

// AmLeader reports whether this process is running on the current
// swarm manager leader.
func (a *Adapter) AmLeader(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, networkProbeDeadline)
	defer cancel()

	info, err := a.cli.Info(ctx)
	if err != nil {
		return false, classify(err)
	}
	if !info.Swarm.ControlAvailable || info.Swarm.NodeID == "" {
		return false, nil
	}

	node, _, err := a.cli.NodeInspectWithRaw(ctx, info.Swarm.NodeID)
	if err != nil {
		return false, classify(err)
	}
	return node.ManagerStatus != nil && node.ManagerStatus.Leader, nil
}

// AnchorLocation returns the state and node of the most recent task
// for fullName, used by failover decisions (C4) which must react to
// a task in any state, not just running.
func (a *Adapter) AnchorLocation(ctx context.Context, fullName string) (types.TaskState, string, error) {
	tasks, err := a.ListTasks(ctx, fullName)
	if err != nil {
		return "", "", err
	}
	if len(tasks) == 0 {
		return "", "", nil
	}
	latest := tasks[0]
	return latest.State, latest.NodeID, nil
}

// AnchorLabelLocation returns the node id of fullName's task only when
// that task is both running and desired-running — stricter than
// AnchorLocation so a node hosting only a failing task is never
// labelled.
func (a *Adapter) AnchorLabelLocation(ctx context.Context, fullName string) (string, error) {
	tasks, err := a.ListTasks(ctx, fullName)
	if err != nil {
		return "", err
	}
	for _, t := range tasks {
		if t.State == types.TaskStateRunning && t.DesiredState == types.TaskStateRunning {
			return t.NodeID, nil
		}
	}
	return "", nil
}

func cloneLabels(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
