package main

import (
	"os"
	"os/signal"
	"syscall"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/jwebster45206/storyworld-balancer/internal/mcp"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the balancer as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd, nil)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim, closeSim := simulator(ctx, cfg, log)
	defer closeSim()

	log.Info("MCP server starting", "version", version)
	return mcp.NewServer(cfg.Balance, sim, log, version).Run(ctx, &sdk.StdioTransport{})
}
