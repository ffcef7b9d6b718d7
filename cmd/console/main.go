package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jwebster45206/storyworld-balancer/internal/config"
	"github.com/jwebster45206/storyworld-balancer/internal/logger"
	"github.com/jwebster45206/storyworld-balancer/internal/services"
)

var (
	configPath string
	followAll  bool
	writeBack  bool
)

func main() {
	root := &cobra.Command{
		Use:   "console [storyworld.json]",
		Short: "Watch balance sessions live",
		Long: `Runs a balance session on the given storyworld and shows each iteration as
it completes. With --follow, watches every session published by workers on
REDIS_URL instead.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE:         runConsole,
	}
	root.Flags().StringVar(&configPath, "config", "", "balance config YAML (overrides BALANCER_CONFIG)")
	root.Flags().BoolVar(&followAll, "follow", false, "follow sessions run by workers instead of running one")
	root.Flags().BoolVar(&writeBack, "write", false, "save the tuned document back to the input file")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runConsole(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if configPath != "" {
		if cfg.Balance, err = config.LoadBalanceFile(configPath); err != nil {
			return err
		}
	}

	// The alt screen owns stdout, so logs only go to LOG_FILE
	logOut := io.Discard
	if path := getEnv("LOG_FILE", ""); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer func() {
			_ = f.Close() // Ignore error in defer
		}()
		logOut = f
	}
	log := logger.New(logOut, cfg)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var (
		title   string
		updates <-chan tea.Msg
	)
	switch {
	case followAll:
		if cfg.RedisURL == "" {
			return fmt.Errorf("--follow needs REDIS_URL")
		}
		rs, err := services.NewRedisService(cfg.RedisURL, log)
		if err != nil {
			return err
		}
		defer func() {
			_ = rs.Close() // Ignore error in defer
		}()
		if err := rs.Ping(ctx); err != nil {
			return fmt.Errorf("could not connect to redis: %w", err)
		}
		title = "following " + cfg.RedisURL
		updates = follow(ctx, rs.Client(), log)
	case len(args) == 1:
		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		title = path
		updates = runLocal(ctx, cfg.Balance, log, path, writeBack)
	default:
		return fmt.Errorf("a storyworld path or --follow is required")
	}

	p := tea.NewProgram(NewConsoleUI(title, followAll, updates, cancel),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running program: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
