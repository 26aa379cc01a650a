// File: internal/modelclient/router.go
package modelclient

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Activer007/computer-use-ootb/api/schemas"
	"github.com/Activer007/computer-use-ootb/internal/config"
)

// Router holds the configured clients keyed by role. In unified mode one
// client answers for every role; in split mode the planner and actor are
// distinct models.
type Router struct {
	logger  *zap.Logger
	clients map[schemas.Role]schemas.ModelClient
	unified bool
}

// NewRouter builds the role map from the models configuration. The rate
// limiter is shared across roles so split mode cannot double the request
// rate against a single provider.
func NewRouter(cfg config.ModelsConfig, logger *zap.Logger) (*Router, error) {
	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), 1)
	}

	r := &Router{
		logger:  logger.Named("model_router"),
		clients: make(map[schemas.Role]schemas.ModelClient),
		unified: cfg.Mode != config.ModelsModeSplit,
	}

	if r.unified {
		client, err := buildClient(schemas.RoleUnified, cfg.Unified, cfg.RetryAttempts, limiter, logger)
		if err != nil {
			return nil, fmt.Errorf("building unified client: %w", err)
		}
		r.clients[schemas.RoleUnified] = client
		return r, nil
	}

	planner, err := buildClient(schemas.RolePlanner, cfg.Planner, cfg.RetryAttempts, limiter, logger)
	if err != nil {
		return nil, fmt.Errorf("building planner client: %w", err)
	}
	actor, err := buildClient(schemas.RoleActor, cfg.Actor, cfg.RetryAttempts, limiter, logger)
	if err != nil {
		return nil, fmt.Errorf("building actor client: %w", err)
	}
	r.clients[schemas.RolePlanner] = planner
	r.clients[schemas.RoleActor] = actor
	return r, nil
}

// Unified reports whether one model plays both roles.
func (r *Router) Unified() bool { return r.unified }

// ForRole returns the client serving the given role. In unified mode every
// role resolves to the single configured client.
func (r *Router) ForRole(role schemas.Role) (schemas.ModelClient, error) {
	if r.unified {
		return r.clients[schemas.RoleUnified], nil
	}
	client, ok := r.clients[role]
	if !ok {
		return nil, fmt.Errorf("no model client configured for role %q", role)
	}
	return client, nil
}

func buildClient(role schemas.Role, cfg config.ModelConfig, retries uint64, limiter *rate.Limiter, logger *zap.Logger) (schemas.ModelClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(role, cfg, retries, limiter, logger)
	case config.ProviderOpenAI:
		return NewOpenAIClient(role, cfg, retries, limiter, logger)
	case config.ProviderBridge:
		return NewBridgeClient(role, cfg, retries, limiter, logger)
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}
