package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jwebster45206/storyworld-balancer/internal/report"
	"github.com/jwebster45206/storyworld-balancer/pkg/storyworld"
)

var checkStrict bool

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <storyworld.json>...",
		Short: "Check storyworlds for structural and consistency problems",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCheck,
	}
	cmd.Flags().BoolVar(&checkStrict, "strict", false, "report legacy script nodes as errors")
	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, _, err := setup(cmd, nil)
	if err != nil {
		return err
	}
	strict := checkStrict || cfg.Balance.StrictScripts
	out := report.New(os.Stdout, report.DefaultWidth)

	failed := 0
	for _, path := range args {
		issues, err := checkFile(path, strict)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s\n", path)
		out.Check(issues)
		if storyworld.HasErrors(issues) {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("check found errors in %d of %d storyworlds", failed, len(args))
	}
	return nil
}

// checkFile runs the schema check, then the consistency check when the
// document parses
func checkFile(path string, strict bool) ([]storyworld.Issue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading storyworld: %w", err)
	}
	issues, err := storyworld.ValidateSchema(data)
	if err != nil {
		return nil, err
	}
	w, err := storyworld.Parse(data)
	if err != nil {
		if len(issues) > 0 {
			return issues, nil
		}
		return nil, err
	}
	return append(issues, storyworld.Check(w, storyworld.CheckOptions{Strict: strict})...), nil
}
