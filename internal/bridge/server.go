// File: internal/bridge/server.go
// Description: Stateless HTTP relay that runs inference on behalf of agents
// whose host cannot reach the model provider directly. Session identity
// lives entirely in the request payload.
package bridge

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/Activer007/computer-use-ootb/api/schemas"
	"github.com/Activer007/computer-use-ootb/internal/config"
)

// Backend resolves the model client serving a role. The modelclient router
// satisfies this.
type Backend interface {
	ForRole(role schemas.Role) (schemas.ModelClient, error)
}

// Server hosts the inference relay endpoints.
type Server struct {
	echo    *echo.Echo
	backend Backend
	cfg     config.BridgeConfig
	logger  *zap.Logger
}

// NewServer wires routes and middleware. The payload size cap applies before
// any base64 decode so oversized screenshots are rejected cheaply.
func NewServer(cfg config.BridgeConfig, backend Backend, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	if cfg.MaxImageBytes > 0 {
		e.Use(middleware.BodyLimit(fmt.Sprintf("%d", cfg.MaxImageBytes)))
	}

	s := &Server{
		echo:    e,
		backend: backend,
		cfg:     cfg,
		logger:  logger.Named("bridge"),
	}

	e.POST("/v1/infer", s.handleInfer)
	e.GET("/healthz", s.handleHealth)
	return s
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.echo.Server.ReadTimeout = s.cfg.ReadTimeout
	s.echo.Server.WriteTimeout = s.cfg.WriteTimeout

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Bridge listening", zap.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("bridge shutdown: %w", err)
		}
		return <-errCh
	}
}

// Handler exposes the routing tree for httptest use.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleInfer decodes the wire request, runs inference through the backend
// client for the requested role, and replies with the canonical decision.
func (s *Server) handleInfer(c echo.Context) error {
	var wireReq schemas.WireInferRequest
	if err := c.Bind(&wireReq); err != nil {
		return c.JSON(http.StatusBadRequest, schemas.WireError{
			Error: "invalid request body", Kind: "bad_request",
		})
	}

	if wireReq.Image == "" || wireReq.Width <= 0 || wireReq.Height <= 0 {
		return c.JSON(http.StatusBadRequest, schemas.WireError{
			Error: "image, width and height are required", Kind: "bad_request",
		})
	}

	imgPNG, err := base64.StdEncoding.DecodeString(wireReq.Image)
	if err != nil {
		return c.JSON(http.StatusBadRequest, schemas.WireError{
			Error: "image is not valid base64", Kind: "bad_request",
		})
	}

	role := wireReq.Role
	if role == "" {
		role = schemas.RoleUnified
	}

	client, err := s.backend.ForRole(role)
	if err != nil {
		return c.JSON(http.StatusBadRequest, schemas.WireError{
			Error: err.Error(), Kind: "bad_request",
		})
	}

	req := schemas.InferRequest{
		ImagePNG:    imgPNG,
		ImageWidth:  wireReq.Width,
		ImageHeight: wireReq.Height,
		Instruction: wireReq.Instruction,
		History:     historyFromWire(wireReq.History),
	}

	startTime := time.Now()
	result, err := client.Infer(c.Request().Context(), req)
	if err != nil {
		s.logger.Warn("Relay inference failed",
			zap.String("role", string(role)),
			zap.Duration("duration", time.Since(startTime)),
			zap.Error(err))

		switch {
		case errors.Is(err, schemas.ErrInferenceMalformed):
			return c.JSON(http.StatusUnprocessableEntity, schemas.WireError{
				Error: err.Error(), Kind: "malformed",
			})
		case errors.Is(err, schemas.ErrInferenceUnavailable):
			return c.JSON(http.StatusBadGateway, schemas.WireError{
				Error: err.Error(), Kind: "unavailable",
			})
		default:
			return c.JSON(http.StatusInternalServerError, schemas.WireError{
				Error: err.Error(), Kind: "internal",
			})
		}
	}

	s.logger.Info("Relay inference complete",
		zap.String("role", string(role)),
		zap.String("decision", string(result.Decision.Kind)),
		zap.Int("tokens", result.TokensUsed),
		zap.Duration("duration", time.Since(startTime)))

	return c.JSON(http.StatusOK, result.Decision.ToWire(result.TokensUsed))
}

// historyFromWire rebuilds enough of the session history for prompt
// rendering. Timestamps and screen actions never cross the wire.
func historyFromWire(entries []schemas.WireHistoryEntry) []schemas.HistoryEntry {
	if len(entries) == 0 {
		return nil
	}
	out := make([]schemas.HistoryEntry, 0, len(entries))
	for _, w := range entries {
		e := schemas.HistoryEntry{Decision: w.Decision, Err: w.Error}
		e.Outcome = &schemas.Outcome{OK: w.OK, Reason: w.Error}
		out = append(out, e)
	}
	return out
}
