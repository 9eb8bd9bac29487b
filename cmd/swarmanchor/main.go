package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cuemby/swarmanchor/pkg/adminhttp"
	"github.com/cuemby/swarmanchor/pkg/anchorlabel"
	"github.com/cuemby/swarmanchor/pkg/config"
	"github.com/cuemby/swarmanchor/pkg/configwatch"
	"github.com/cuemby/swarmanchor/pkg/dependents"
	"github.com/cuemby/swarmanchor/pkg/docker"
	"github.com/cuemby/swarmanchor/pkg/log"
	"github.com/cuemby/swarmanchor/pkg/rebalance"
	"github.com/cuemby/swarmanchor/pkg/retrystate"
	"github.com/cuemby/swarmanchor/pkg/scheduler"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "swarmanchor",
	Short: "Docker Swarm placement reconciler",
	Long: `swarmanchor is a control-plane daemon that keeps "dependent"
services co-located with their "anchor" service's node, labels worker
nodes to match, and rebalances services across the cluster when
memory usage grows imbalanced.`,
	Version: Version,
	RunE:    run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"swarmanchor version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.Flags().String("listen-addr", ":8080", "HTTP admin surface listen address")
	rootCmd.Flags().String("dependencies-file", "/etc/swarmanchor/dependencies.yaml", "Anchor/dependent configuration file")
	rootCmd.Flags().String("rebalance-file", "/etc/swarmanchor/rebalance.yaml", "Memory rebalance tuning file")
	rootCmd.Flags().String("node-inventory-file", "", "Static node inventory file (optional)")
	rootCmd.Flags().String("retry-state-file", "/var/lib/swarmanchor/retry-state.json", "Retry/cooldown state file")
	rootCmd.Flags().String("rebalance-state-file", "/var/lib/swarmanchor/rebalance-state.json", "Rebalance state file")
}

// envString reads an environment variable, falling back to a default
// when unset.
func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envSeconds(key string, fallback int) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return time.Duration(fallback) * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return time.Duration(fallback) * time.Second
	}
	return time.Duration(n) * time.Second
}

func logLevel(debug bool) log.Level {
	if debug {
		return log.DebugLevel
	}
	return log.InfoLevel
}

func run(cmd *cobra.Command, args []string) error {
	debug := envBool("DEBUG", false)
	log.Init(log.Config{
		Level:      logLevel(debug),
		JSONOutput: true,
	})
	logger := log.WithComponent("main")

	stackName := envString("STACK_NAME", "swarm-dev")
	relabelInterval := envSeconds("RELABEL_TIME", 60)
	dryRun := envBool("DRY_RUN", false)

	depsPath, _ := cmd.Flags().GetString("dependencies-file")
	rebalPath, _ := cmd.Flags().GetString("rebalance-file")
	inventoryPath, _ := cmd.Flags().GetString("node-inventory-file")
	retryStatePath, _ := cmd.Flags().GetString("retry-state-file")
	rebalStatePath, _ := cmd.Flags().GetString("rebalance-state-file")
	listenAddr, _ := cmd.Flags().GetString("listen-addr")

	store, err := config.NewStore(config.Paths{
		DependenciesFile:   depsPath,
		RebalanceFile:      rebalPath,
		NodeInventory:      inventoryPath,
		RetryStateFile:     retryStatePath,
		RebalanceStateFile: rebalStatePath,
	})
	if err != nil {
		return fmt.Errorf("swarmanchor: load configuration: %w", err)
	}

	watchPaths := []string{depsPath, rebalPath}
	if inventoryPath != "" {
		watchPaths = append(watchPaths, inventoryPath)
	}
	watcher, err := configwatch.New(store, watchPaths)
	if err != nil {
		return fmt.Errorf("swarmanchor: start config watcher: %w", err)
	}
	watcher.Start()
	defer watcher.Stop()

	adapter, err := docker.NewFromEnvironment()
	if err != nil {
		return fmt.Errorf("swarmanchor: connect to docker engine: %w", err)
	}
	adapter.SetDryRun(dryRun)

	retryStore, err := retrystate.Open(retryStatePath)
	if err != nil {
		return fmt.Errorf("swarmanchor: open retry state: %w", err)
	}
	rebalanceState, err := rebalance.OpenState(rebalStatePath)
	if err != nil {
		return fmt.Errorf("swarmanchor: open rebalance state: %w", err)
	}

	anchorLoop := anchorlabel.New(adapter, stackName)
	dependentLoop := dependents.New(adapter, retryStore, stackName)
	rebalanceLoop := rebalance.New(adapter, rebalanceState, stackName)

	rebalanceInterval := time.Duration(store.Snapshot().Rebalance.EffectiveDefaults().CheckIntervalSeconds) * time.Second

	supervisor := scheduler.New(
		adapter,
		anchorLoop,
		dependentLoop,
		rebalanceLoop,
		store,
		relabelInterval,
		rebalanceInterval,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	supervisor.Start(ctx)
	logger.Info().
		Str("stack", stackName).
		Dur("sync_interval", relabelInterval).
		Dur("rebalance_interval", rebalanceInterval).
		Bool("dry_run", dryRun).
		Msg("swarmanchor started")

	admin := adminhttp.New(supervisor)
	httpServer := &http.Server{Addr: listenAddr, Handler: admin}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("admin http server failed")
		}
	}()

	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	go func() {
		for range hupCh {
			logger.Info().Msg("SIGHUP received, triggering immediate sync pass")
			supervisor.TriggerSync("")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	signal.Stop(hupCh)
	close(hupCh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	supervisor.Stop()
	logger.Info().Msg("shutdown complete")
	return nil
}
