// File: internal/service/components.go
package service

import (
	"context"

	"github.com/Activer007/computer-use-ootb/internal/agent"
	"github.com/Activer007/computer-use-ootb/internal/observability"
	"github.com/Activer007/computer-use-ootb/internal/stream"
)

// Components holds the initialized services behind one agent process. This
// struct centralizes lifecycle management of task-related dependencies.
type Components struct {
	Orchestrator *agent.Orchestrator
	Hub          *stream.Hub

	hubCancel context.CancelFunc
}

// Shutdown releases component resources. Safe to call once, after the last
// task's event channel has been drained.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	if c.Orchestrator != nil {
		c.Orchestrator.Cancel()
		logger.Debug("Orchestrator cancel requested.")
	}

	if c.hubCancel != nil {
		c.hubCancel()
		logger.Debug("Event hub stopped.")
	}

	observability.Sync()
}
