package dependents

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/swarmanchor/pkg/config"
	"github.com/cuemby/swarmanchor/pkg/log"
	"github.com/cuemby/swarmanchor/pkg/metrics"
	"github.com/cuemby/swarmanchor/pkg/retrystate"
	"github.com/cuemby/swarmanchor/pkg/types"
	"github.com/rs/zerolog"
)

// Adapter is the subset of the orchestrator adapter this loop needs.
type Adapter interface {
	AnchorLocation(ctx context.Context, fullName string) (types.TaskState, string, error)
	ForceUpdate(ctx context.Context, fullName string) error
}

// Loop runs one dependent-placement pass for every anchor/dependent
// pair in configuration.
type Loop struct {
	adapter   Adapter
	retry     *retrystate.Store
	stackName string
	logger    zerolog.Logger

	mu       sync.Mutex
	mismatch map[string]time.Time // dependent full name -> first observed mismatch
}

// New builds a Loop.
func New(adapter Adapter, retry *retrystate.Store, stackName string) *Loop {
	return &Loop{
		adapter:   adapter,
		retry:     retry,
		stackName: stackName,
		logger:    log.WithComponent("dependents"),
		mismatch:  make(map[string]time.Time),
	}
}

// Run executes one pass, processing anchors and their dependents in
// the order they appear in deps.
func (l *Loop) Run(ctx context.Context, deps config.Dependencies) {
	for _, name := range deps.Names() {
		anchor, _ := deps.Get(name)
		l.runAnchor(ctx, anchor)
	}
}

func (l *Loop) runAnchor(ctx context.Context, anchor config.AnchorConfig) {
	anchorFull := l.stackName + "_" + anchor.Name
	state, nodeID, err := l.adapter.AnchorLocation(ctx, anchorFull)
	if err != nil {
		l.logger.Error().Err(err).Str("anchor", anchor.Name).Msg("could not observe anchor location")
		metrics.AnchorSyncErrorsTotal.Inc()
		return
	}

	switch {
	case state.IsWaiting():
		return

	case state.IsFailure() || nodeID == "":
		if l.retry.ShouldRetry(anchorFull, anchor.RetryIntervals) {
			l.forceUpdateAnchor(ctx, anchorFull, anchor.Name)
		}
		if anchor.RestartDependents {
			for _, dep := range anchor.Dependents {
				depFull := l.stackName + "_" + dep
				if l.retry.ShouldRetry(depFull, anchor.RetryIntervals) {
					l.forceUpdateDependent(ctx, depFull, anchor.Name, dep)
				}
			}
		}
		return
	}

	// Any other state (normally running) with a known nodeID: evaluate
	// each dependent against that node.
	for _, dep := range anchor.Dependents {
		l.runDependent(ctx, anchor, dep, nodeID)
	}
}

func (l *Loop) runDependent(ctx context.Context, anchor config.AnchorConfig, dep string, anchorNodeID string) {
	depFull := l.stackName + "_" + dep
	depState, depNodeID, err := l.adapter.AnchorLocation(ctx, depFull)
	if err != nil {
		l.logger.Error().Err(err).Str("dependent", dep).Msg("could not observe dependent location")
		metrics.AnchorSyncErrorsTotal.Inc()
		return
	}

	switch {
	case depNodeID == "":
		return

	case depState.IsIgnored() || depState.IsWaiting():
		return

	case depNodeID == anchorNodeID:
		_ = l.retry.Clear(depFull)
		l.clearMismatch(depFull)

	default:
		first := l.markMismatch(depFull)
		dur := time.Since(first)
		maxDur := time.Duration(anchor.MaxMismatchSeconds) * time.Second
		if dur >= maxDur {
			l.logger.Debug().Str("dependent", dep).Dur("mismatch_duration", dur).Msg("mismatch exceeds max duration, deferring")
			return
		}
		if l.retry.ShouldRetry(depFull, anchor.RetryIntervals) {
			l.forceUpdateDependent(ctx, depFull, anchor.Name, dep)
		}
	}
}

func (l *Loop) forceUpdateAnchor(ctx context.Context, anchorFull, anchorName string) {
	if err := l.retry.Record(anchorFull); err != nil {
		l.logger.Error().Err(err).Str("anchor", anchorName).Msg("failed to record retry state")
	}
	if err := l.adapter.ForceUpdate(ctx, anchorFull); err != nil {
		l.logger.Error().Err(err).Str("anchor", anchorName).Msg("force update failed")
		metrics.AnchorSyncErrorsTotal.Inc()
		return
	}
	l.logger.Info().Str("anchor", anchorName).Msg("anchor force-updated")
	metrics.AnchorUpdatesTotal.Inc()
}

func (l *Loop) forceUpdateDependent(ctx context.Context, depFull, anchorName, dep string) {
	if err := l.retry.Record(depFull); err != nil {
		l.logger.Error().Err(err).Str("dependent", dep).Msg("failed to record retry state")
	}
	if err := l.adapter.ForceUpdate(ctx, depFull); err != nil {
		l.logger.Error().Err(err).Str("anchor", anchorName).Str("dependent", dep).Msg("force update failed")
		metrics.AnchorSyncErrorsTotal.Inc()
		return
	}
	l.logger.Info().Str("anchor", anchorName).Str("dependent", dep).Msg("dependent force-updated")
	metrics.DependentUpdatesTotal.Inc()
}

func (l *Loop) markMismatch(depFull string) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	first, ok := l.mismatch[depFull]
	if !ok {
		first = time.Now()
		l.mismatch[depFull] = first
	}
	return first
}

func (l *Loop) clearMismatch(depFull string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.mismatch, depFull)
}
