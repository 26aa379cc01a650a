// File: internal/service/factory.go
// Description: Builds fully wired components from configuration. The cmd
// layer only ever talks to this factory.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Activer007/computer-use-ootb/internal/agent"
	"github.com/Activer007/computer-use-ootb/internal/bridge"
	"github.com/Activer007/computer-use-ootb/internal/capture"
	"github.com/Activer007/computer-use-ootb/internal/config"
	"github.com/Activer007/computer-use-ootb/internal/display"
	"github.com/Activer007/computer-use-ootb/internal/executor"
	"github.com/Activer007/computer-use-ootb/internal/modelclient"
	"github.com/Activer007/computer-use-ootb/internal/stream"
)

// NewAgentComponents wires an orchestrator against the real OS: display
// enumeration, screen grabbing and input synthesis. When eventFeed is true a
// websocket hub is attached and started.
func NewAgentComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, eventFeed bool) (*Components, error) {
	router, err := modelclient.NewRouter(cfg.Models, logger)
	if err != nil {
		return nil, fmt.Errorf("building model router: %w", err)
	}

	orch, err := agent.New(
		cfg,
		logger,
		display.NewOSProvider(),
		capture.New(capture.NewOSGrabber(), logger),
		executor.New(executor.NewOSInput(), logger),
		router,
	)
	if err != nil {
		return nil, fmt.Errorf("building orchestrator: %w", err)
	}

	c := &Components{Orchestrator: orch}

	if eventFeed {
		hub := stream.NewHub(logger)
		hubCtx, cancel := context.WithCancel(ctx)
		go hub.Run(hubCtx)
		orch.SetEventSink(hub.Publish)
		c.Hub = hub
		c.hubCancel = cancel
	}

	return c, nil
}

// NewBridgeServer wires the stateless inference relay from configuration.
func NewBridgeServer(cfg *config.Config, logger *zap.Logger) (*bridge.Server, error) {
	router, err := modelclient.NewRouter(cfg.Models, logger)
	if err != nil {
		return nil, fmt.Errorf("building model router: %w", err)
	}
	return bridge.NewServer(cfg.Bridge, router, logger), nil
}
