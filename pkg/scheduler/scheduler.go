package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/swarmanchor/pkg/config"
	"github.com/cuemby/swarmanchor/pkg/log"
	"github.com/cuemby/swarmanchor/pkg/metrics"
	"github.com/rs/zerolog"
)

// LeaderChecker is the subset of the orchestrator adapter the
// supervisor needs to gate mutating work to the elected leader.
type LeaderChecker interface {
	AmLeader(ctx context.Context) (bool, error)
}

// AnchorRunner is satisfied by anchorlabel.Loop.
type AnchorRunner interface {
	Run(ctx context.Context, deps config.Dependencies) error
}

// DependentRunner is satisfied by dependents.Loop.
type DependentRunner interface {
	Run(ctx context.Context, deps config.Dependencies)
}

// RebalanceRunner is satisfied by rebalance.Loop.
type RebalanceRunner interface {
	Run(ctx context.Context, deps config.Dependencies, rcfg *config.RebalanceConfig)
}

// Supervisor runs the anchor-label loop, dependent-placement loop, and
// memory-rebalance loop concurrently with independent periods,
// consulting AmLeader before every iteration so only the manager
// leader ever issues mutating calls.
type Supervisor struct {
	adapter   LeaderChecker
	anchors   AnchorRunner
	deps      DependentRunner
	rebalance RebalanceRunner
	store     *config.Store

	syncInterval      time.Duration
	rebalanceInterval time.Duration

	logger zerolog.Logger
	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	paused atomic.Bool

	syncNowCh chan string
}

// New builds a Supervisor. syncInterval governs C3+C4 (piggybacked
// together); rebalanceInterval governs C5.
func New(
	adapter LeaderChecker,
	anchors AnchorRunner,
	deps DependentRunner,
	reb RebalanceRunner,
	store *config.Store,
	syncInterval, rebalanceInterval time.Duration,
) *Supervisor {
	return &Supervisor{
		adapter:           adapter,
		anchors:           anchors,
		deps:              deps,
		rebalance:         reb,
		store:             store,
		syncInterval:      syncInterval,
		rebalanceInterval: rebalanceInterval,
		logger:            log.WithComponent("scheduler"),
		syncNowCh:         make(chan string, 1),
	}
}

// Start launches the sync loop and the rebalance loop as independent
// goroutines under a shared cancellable context.
func (s *Supervisor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(2)
	go s.runSyncLoop(ctx)
	go s.runRebalanceLoop(ctx)
}

// Stop cancels both loops and waits for them to exit.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// TriggerSync requests one immediate C3+C4 pass, outside the regular
// tick — used by SIGHUP and the HTTP /sync endpoint. An empty anchor
// re-syncs every configured anchor; a non-empty anchor restricts the
// pass to that one (the HTTP admin surface's per-anchor resync).
func (s *Supervisor) TriggerSync(anchor string) {
	select {
	case s.syncNowCh <- anchor:
	default:
	}
}

// Pause sets the runtime pause flag: until Resume, every C3+C4 pass
// is skipped entirely, so neither loop observes nor mutates anything.
func (s *Supervisor) Pause() {
	s.paused.Store(true)
	s.logger.Info().Msg("sync passes paused")
}

// Resume clears the pause flag set by Pause.
func (s *Supervisor) Resume() {
	s.paused.Store(false)
	s.logger.Info().Msg("sync passes resumed")
}

// Paused reports whether Pause has been called without a matching
// Resume.
func (s *Supervisor) Paused() bool {
	return s.paused.Load()
}

func (s *Supervisor) runSyncLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.syncInterval).Msg("sync loop started")

	for {
		select {
		case <-ticker.C:
			s.runSyncPass(ctx, "")
		case anchor := <-s.syncNowCh:
			s.runSyncPass(ctx, anchor)
		case <-ctx.Done():
			s.logger.Info().Msg("sync loop stopped")
			return
		}
	}
}

func (s *Supervisor) runRebalanceLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.rebalanceInterval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.rebalanceInterval).Msg("rebalance loop started")

	for {
		select {
		case <-ticker.C:
			s.runRebalancePass(ctx)
		case <-ctx.Done():
			s.logger.Info().Msg("rebalance loop stopped")
			return
		}
	}
}

// runSyncPass runs one C3+C4 pass, triggered either by the regular
// ticker or by TriggerSync. A non-empty anchor restricts the pass to
// that anchor only.
func (s *Supervisor) runSyncPass(ctx context.Context, anchor string) {
	leader, err := s.adapter.AmLeader(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("could not determine leadership")
		metrics.AnchorSyncErrorsTotal.Inc()
		return
	}
	metrics.SwarmOrchLeader.Set(boolToFloat(leader))
	if !leader {
		return
	}
	if s.paused.Load() {
		s.logger.Debug().Msg("sync pass skipped, paused")
		return
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDurationGauge(metrics.AnchorSyncLastDuration)

	deps := s.store.Snapshot().Dependencies
	if anchor != "" {
		cfg, ok := deps.Get(anchor)
		if !ok {
			s.logger.Warn().Str("anchor", anchor).Msg("unknown anchor requested for manual resync")
			return
		}
		deps = config.NewDependencies(cfg)
	}

	if err := s.anchors.Run(ctx, deps); err != nil {
		s.logger.Error().Err(err).Msg("anchor label pass failed")
		metrics.AnchorSyncErrorsTotal.Inc()
	}
	s.deps.Run(ctx, deps)
}

func (s *Supervisor) runRebalancePass(ctx context.Context) {
	leader, err := s.adapter.AmLeader(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("could not determine leadership")
		return
	}
	metrics.SwarmOrchLeader.Set(boolToFloat(leader))
	if !leader {
		return
	}

	snap := s.store.Snapshot()
	s.rebalance.Run(ctx, snap.Dependencies, snap.Rebalance)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
