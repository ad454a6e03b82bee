package commands

import (
	"fmt"

	"github.com/p2pim/node/pkg/boundary/grpcserver"
	"github.com/p2pim/node/pkg/config"
)

// dialNode loads the configuration from the global --config flag and
// dials the node's gRPC boundary. Every operator command but start/init
// goes through this, so a single place decides how the CLI finds a
// running node.
func dialNode() (*grpcserver.Client, *config.Config, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	client, err := grpcserver.Dial(dialAddress(cfg.Boundary.GRPC.ListenAddress), cfg.Boundary.GRPC.AuthToken)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial node: %w", err)
	}

	return client, cfg, nil
}
