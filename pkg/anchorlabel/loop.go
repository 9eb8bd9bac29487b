package anchorlabel

import (
	"context"

	"github.com/cuemby/swarmanchor/pkg/config"
	"github.com/cuemby/swarmanchor/pkg/log"
	"github.com/cuemby/swarmanchor/pkg/types"
	"github.com/rs/zerolog"
)

// Adapter is the subset of the orchestrator adapter this loop needs.
type Adapter interface {
	ListNodes(ctx context.Context) ([]types.NodeInfo, error)
	AnchorLabelLocation(ctx context.Context, fullName string) (string, error)
	AddLabel(ctx context.Context, nodeID, key, value string) error
	RemoveLabel(ctx context.Context, nodeID, key string) error
}

// Loop runs one anchor-labelling pass against the configured anchors.
type Loop struct {
	adapter   Adapter
	stackName string
	logger    zerolog.Logger
}

// New builds a Loop. stackName is prefixed onto each anchor's short
// name to form the fully-qualified service name the adapter expects.
func New(adapter Adapter, stackName string) *Loop {
	return &Loop{
		adapter:   adapter,
		stackName: stackName,
		logger:    log.WithComponent("anchorlabel"),
	}
}

// Run executes one pass over every anchor in deps, in configuration
// order. Per-anchor and per-label failures are logged and skipped; the
// only error returned is a failure to list the nodes.
func (l *Loop) Run(ctx context.Context, deps config.Dependencies) error {
	names := deps.Names()
	targets := make(map[string]string, len(names))
	for _, name := range names {
		anchor, _ := deps.Get(name)
		full := l.stackName + "_" + anchor.Name
		nodeID, err := l.adapter.AnchorLabelLocation(ctx, full)
		if err != nil {
			l.logger.Error().Err(err).Str("anchor", anchor.Name).Msg("could not resolve anchor location")
			continue
		}
		targets[anchor.Name] = nodeID
	}

	nodes, err := l.adapter.ListNodes(ctx)
	if err != nil {
		return err
	}

	for _, node := range nodes {
		for _, anchor := range names {
			targetNode, ok := targets[anchor]
			if !ok {
				continue
			}
			_, labelled := node.Labels[anchor]
			switch {
			case labelled && targetNode != node.ID:
				if err := l.adapter.RemoveLabel(ctx, node.ID, anchor); err != nil {
					l.logger.Error().Err(err).Str("anchor", anchor).Str("node_id", node.ID).Msg("failed to remove anchor label")
				} else {
					l.logger.Info().Str("anchor", anchor).Str("node_id", node.ID).Msg("anchor label removed")
				}
			case !labelled && targetNode == node.ID && targetNode != "":
				if err := l.adapter.AddLabel(ctx, node.ID, anchor, "true"); err != nil {
					l.logger.Error().Err(err).Str("anchor", anchor).Str("node_id", node.ID).Msg("failed to add anchor label")
				} else {
					l.logger.Info().Str("anchor", anchor).Str("node_id", node.ID).Msg("anchor label applied")
				}
			}
		}
	}

	return nil
}
