// Package mcp exposes the balancer to agents as MCP tools over stdio.
package mcp

import (
	"context"
	"log/slog"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jwebster45206/storyworld-balancer/internal/config"
	"github.com/jwebster45206/storyworld-balancer/pkg/rehearsal"
	"github.com/jwebster45206/storyworld-balancer/pkg/tuner"
)

type Server struct {
	cfg    config.BalanceConfig
	sim    tuner.Simulator
	logger *slog.Logger
	mcp    *sdk.Server
}

// NewServer creates the tool server. A nil sim runs rehearsals in process
// with cfg's options.
func NewServer(cfg config.BalanceConfig, sim tuner.Simulator, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if sim == nil {
		sim = rehearsal.Simulator{Options: cfg.Rehearsal(logger)}
	}
	s := &Server{
		cfg:    cfg,
		sim:    sim,
		logger: logger,
		mcp: sdk.NewServer(&sdk.Implementation{
			Name:    "storyworld-balancer",
			Version: version,
		}, nil),
	}
	s.registerTools()
	return s
}

func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	return s.mcp.Run(ctx, transport)
}
