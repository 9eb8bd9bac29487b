package rebalance

import (
	"context"
	"sort"
	"time"

	"github.com/cuemby/swarmanchor/pkg/config"
	"github.com/cuemby/swarmanchor/pkg/log"
	"github.com/cuemby/swarmanchor/pkg/metrics"
	"github.com/cuemby/swarmanchor/pkg/types"
	"github.com/rs/zerolog"
)

const (
	labelOptOut    = "orchestration.rebalance"
	labelPreferred = "orchestration.preferred.node"
	bytesPerGB     = 1024 * 1024 * 1024
)

// Adapter is the subset of the orchestrator adapter this loop needs.
type Adapter interface {
	ListNodes(ctx context.Context) ([]types.NodeInfo, error)
	InspectService(ctx context.Context, fullName string) (types.ServiceSpec, error)
	AnchorLocation(ctx context.Context, fullName string) (types.TaskState, string, error)
	ForceUpdate(ctx context.Context, fullName string) error
	NodeMemoryBytes(ctx context.Context, nodeID string) (uint64, error)
	ServiceMemoryReservationBytes(ctx context.Context, fullName string) (uint64, error)
}

// Loop runs one memory-rebalance pass over every managed service.
type Loop struct {
	adapter   Adapter
	state     *StateStore
	stackName string
	logger    zerolog.Logger
}

// New builds a Loop.
func New(adapter Adapter, state *StateStore, stackName string) *Loop {
	return &Loop{
		adapter:   adapter,
		state:     state,
		stackName: stackName,
		logger:    log.WithComponent("rebalance"),
	}
}

// Run executes one pass over every service named in deps (anchors and
// their dependents form the managed universe), using rcfg for tuning
// and node_exporter endpoints.
func (l *Loop) Run(ctx context.Context, deps config.Dependencies, rcfg *config.RebalanceConfig) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationGauge(metrics.RebalanceLastDuration)

	nodes, err := l.adapter.ListNodes(ctx)
	if err != nil {
		l.logger.Error().Err(err).Msg("could not list nodes")
		return
	}

	freeMem, hostToID := l.collectFreeMemory(ctx, nodes, rcfg)
	groups, order := buildGroups(deps)

	for _, svc := range order {
		l.runService(ctx, l.stackName+"_"+svc, groups[svc], freeMem, hostToID, rcfg.ForService(svc))
	}
}

func (l *Loop) collectFreeMemory(ctx context.Context, nodes []types.NodeInfo, rcfg *config.RebalanceConfig) (map[string]float64, map[string]string) {
	freeMem := make(map[string]float64, len(nodes))
	hostToID := make(map[string]string, len(nodes))

	for _, n := range nodes {
		hostToID[n.Hostname] = n.ID

		if url, ok := rcfg.NodeExporters[n.Hostname]; ok && url != "" {
			if gb, err := freeMemoryGB(url); err == nil {
				freeMem[n.ID] = gb
				continue
			}
			l.logger.Warn().Str("node", n.Hostname).Msg("node_exporter unreachable, falling back to reported capacity")
		}

		capBytes, err := l.adapter.NodeMemoryBytes(ctx, n.ID)
		if err != nil {
			l.logger.Error().Err(err).Str("node_id", n.ID).Msg("could not read node memory capacity")
			continue
		}
		freeMem[n.ID] = float64(capBytes) / bytesPerGB
	}
	return freeMem, hostToID
}

func (l *Loop) runService(ctx context.Context, fullName string, siblings []string, freeMem map[string]float64, hostToID map[string]string, tuning config.RebalanceDefaults) {
	spec, err := l.adapter.InspectService(ctx, fullName)
	if err != nil {
		l.logger.Debug().Err(err).Str("service", fullName).Msg("could not inspect service")
		return
	}
	if spec.Labels[labelOptOut] == "false" {
		return
	}

	state, currentNode, err := l.adapter.AnchorLocation(ctx, fullName)
	if err != nil || currentNode == "" || !state.IsSuccess() {
		return
	}

	groupMem := l.groupMemoryGB(ctx, fullName, siblings)

	if preferredHost := spec.Labels[labelPreferred]; preferredHost != "" {
		if preferredID, ok := hostToID[preferredHost]; ok && preferredID != currentNode {
			improvement := netImprovement(freeMem[preferredID], freeMem[currentNode], groupMem)
			if improvement >= tuning.RebalanceBufferGB {
				l.move(ctx, fullName, preferredID)
				return
			}
		}
	}

	currentFree := freeMem[currentNode]
	better := betterNodes(freeMem, currentNode, tuning.MemoryDifferenceGB)
	if len(better) == 0 {
		_ = l.state.Clear(fullName)
		return
	}

	if groupMem >= spread(freeMem) {
		return
	}

	st := l.state.Get(fullName)
	now := time.Now()
	if st.FirstDetected == nil {
		_ = l.state.SetFirstDetected(fullName, now)
		return
	}
	if now.Sub(*st.FirstDetected) < time.Duration(tuning.SustainedHighMinutes)*time.Minute {
		return
	}
	if st.LastMoved != nil && now.Sub(*st.LastMoved) < time.Duration(tuning.CooldownMinutes)*time.Minute {
		return
	}

	target := argmaxFree(freeMem)
	if netImprovement(freeMem[target], currentFree, groupMem) < tuning.RebalanceBufferGB {
		return
	}

	l.move(ctx, fullName, target)
}

func (l *Loop) move(ctx context.Context, fullName, targetNode string) {
	metrics.RebalanceAttemptsTotal.Inc()
	if err := l.adapter.ForceUpdate(ctx, fullName); err != nil {
		metrics.RebalanceFailuresTotal.Inc()
		l.logger.Error().Err(err).Str("service", fullName).Msg("rebalance force update failed")
		return
	}
	metrics.RebalanceSuccessTotal.Inc()
	if err := l.state.RecordMove(fullName, targetNode, time.Now()); err != nil {
		l.logger.Error().Err(err).Str("service", fullName).Msg("failed to persist rebalance state")
	}
	l.logger.Info().Str("service", fullName).Str("target_node", targetNode).Msg("service rebalanced")
}

func (l *Loop) groupMemoryGB(ctx context.Context, fullName string, siblings []string) float64 {
	total := l.serviceMemGB(ctx, fullName)
	for _, sib := range siblings {
		total += l.serviceMemGB(ctx, l.stackName+"_"+sib)
	}
	return total
}

func (l *Loop) serviceMemGB(ctx context.Context, fullName string) float64 {
	bytes, err := l.adapter.ServiceMemoryReservationBytes(ctx, fullName)
	if err != nil {
		return 0
	}
	return float64(bytes) / bytesPerGB
}

func betterNodes(freeMem map[string]float64, current string, memoryDifferenceGB float64) []string {
	var out []string
	currentFree := freeMem[current]
	for id, free := range freeMem {
		if id == current {
			continue
		}
		if free-currentFree >= memoryDifferenceGB {
			out = append(out, id)
		}
	}
	return out
}

func netImprovement(targetFree, currentFree, groupMem float64) float64 {
	return (targetFree - groupMem) - (currentFree + groupMem)
}

func spread(freeMem map[string]float64) float64 {
	if len(freeMem) == 0 {
		return 0
	}
	min, max := minMax(freeMem)
	return max - min
}

func minMax(freeMem map[string]float64) (float64, float64) {
	first := true
	var min, max float64
	for _, v := range freeMem {
		if first {
			min, max = v, v
			first = false
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

func argmaxFree(freeMem map[string]float64) string {
	ids := make([]string, 0, len(freeMem))
	for id := range freeMem {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var best string
	var bestVal float64
	first := true
	for _, id := range ids {
		v := freeMem[id]
		if first || v > bestVal {
			best, bestVal = id, v
			first = false
		}
	}
	return best
}

// buildGroups derives, for each service short name, the siblings that
// would move with it: an anchor's group is itself plus its
// dependents; each dependent's group is the anchor plus the other
// dependents.
// buildGroups also returns the service names in configuration order
// (anchor, then each of its dependents) so callers can process them
// deterministically instead of ranging over the returned map.
func buildGroups(deps config.Dependencies) (map[string][]string, []string) {
	groups := make(map[string][]string)
	var order []string
	set := func(name string, siblings []string) {
		if _, ok := groups[name]; !ok {
			order = append(order, name)
		}
		groups[name] = siblings
	}

	for _, name := range deps.Names() {
		anchor, _ := deps.Get(name)
		set(name, append([]string{}, anchor.Dependents...))
		for _, dep := range anchor.Dependents {
			siblings := []string{anchor.Name}
			for _, other := range anchor.Dependents {
				if other != dep {
					siblings = append(siblings, other)
				}
			}
			set(dep, siblings)
		}
	}
	return groups, order
}
