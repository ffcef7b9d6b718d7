package mcp

import (
	"context"
	"fmt"
	"os"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jwebster45206/storyworld-balancer/pkg/balance"
	"github.com/jwebster45206/storyworld-balancer/pkg/rehearsal"
	"github.com/jwebster45206/storyworld-balancer/pkg/storyworld"
	"github.com/jwebster45206/storyworld-balancer/pkg/tuner"
)

// Every tool takes the storyworld as a file path or as the document JSON
// itself.

type SimulateInput struct {
	Path     string `json:"path,omitempty" jsonschema:"path to a storyworld JSON file"`
	Document string `json:"document,omitempty" jsonschema:"storyworld JSON, used when path is empty"`
	Runs     int    `json:"runs,omitempty" jsonschema:"number of episodes; defaults to the configured run count"`
	Seed     *int64 `json:"seed,omitempty" jsonschema:"base seed; defaults to the configured seed"`
}

type CheckInput struct {
	Path     string `json:"path,omitempty" jsonschema:"path to a storyworld JSON file"`
	Document string `json:"document,omitempty" jsonschema:"storyworld JSON, used when path is empty"`
	Strict   bool   `json:"strict,omitempty" jsonschema:"treat legacy script nodes as errors"`
}

type BalanceInput struct {
	Path          string `json:"path,omitempty" jsonschema:"path to a storyworld JSON file"`
	Document      string `json:"document,omitempty" jsonschema:"storyworld JSON, used when path is empty"`
	Runs          int    `json:"runs,omitempty" jsonschema:"episodes per iteration; defaults to the configured run count"`
	Seed          *int64 `json:"seed,omitempty" jsonschema:"base seed; defaults to the configured seed"`
	MaxIterations int    `json:"max_iterations,omitempty" jsonschema:"iteration limit; defaults to the configured limit"`
	Write         bool   `json:"write,omitempty" jsonschema:"save the tuned document back to path"`
}

type EndingOutput struct {
	ID    string  `json:"id"`
	Count int     `json:"count"`
	Share float64 `json:"share"`
}

type PropertyOutput struct {
	Key    string  `json:"key"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

type IssueOutput struct {
	Kind        string  `json:"kind"`
	EncounterID string  `json:"encounter_id,omitempty"`
	Value       float64 `json:"value"`
	Message     string  `json:"message"`
}

type SimulateOutput struct {
	Runs             int              `json:"runs"`
	Seed             int64            `json:"seed"`
	Endings          []EndingOutput   `json:"endings"`
	Secrets          []EndingOutput   `json:"secrets,omitempty"`
	DeadEndRate      float64          `json:"dead_end_rate"`
	TimeoutRate      float64          `json:"timeout_rate"`
	FailureRate      float64          `json:"failure_rate"`
	BlockingRate     *float64         `json:"blocking_rate,omitempty"`
	Entropy          float64          `json:"entropy_bits"`
	EffectiveEndings float64          `json:"effective_endings"`
	MeanTurns        float64          `json:"mean_turns"`
	Properties       []PropertyOutput `json:"properties"`
	FailureSamples   []string         `json:"failure_samples,omitempty"`
}

type AnalyzeOutput struct {
	Balanced bool          `json:"balanced"`
	Issues   []IssueOutput `json:"issues"`
}

type CheckIssueOutput struct {
	Severity  string `json:"severity"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Encounter string `json:"encounter,omitempty"`
}

type CheckOutput struct {
	OK     bool               `json:"ok"`
	Issues []CheckIssueOutput `json:"issues"`
}

type IterationOutput struct {
	Number      int           `json:"number"`
	Seed        int64         `json:"seed"`
	Issues      []IssueOutput `json:"issues"`
	Adjustments []string      `json:"adjustments"`
}

type BalanceOutput struct {
	SessionID  string            `json:"session_id"`
	Outcome    string            `json:"outcome"`
	Preflight  []string          `json:"preflight,omitempty"`
	Iterations []IterationOutput `json:"iterations"`
	Written    bool              `json:"written"`
	Document   string            `json:"document,omitempty"`
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "simulate",
		Description: "Play many random episodes of a storyworld and report ending distribution and metrics",
	}, s.handleSimulate)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "analyze",
		Description: "Simulate a storyworld and list the balance issues found",
	}, s.handleAnalyze)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "check",
		Description: "Check a storyworld for structural and consistency problems without simulating",
	}, s.handleCheck)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "balance",
		Description: "Run the simulate, analyze, tune loop; optionally save the tuned document",
	}, s.handleBalance)
}

func load(path, document string) (*storyworld.Storyworld, []byte, error) {
	switch {
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("reading storyworld: %w", err)
		}
		w, err := storyworld.Parse(data)
		return w, data, err
	case document != "":
		w, err := storyworld.Parse([]byte(document))
		return w, []byte(document), err
	default:
		return nil, nil, fmt.Errorf("path or document is required")
	}
}

// params resolves optional run parameters against the configuration
func (s *Server) params(runs int, seed *int64) (int, int64) {
	if runs <= 0 {
		runs = s.cfg.RunCount
	}
	if seed == nil {
		return runs, s.cfg.Seed
	}
	return runs, *seed
}

func (s *Server) simulate(ctx context.Context, in SimulateInput) (*rehearsal.Statistics, error) {
	w, _, err := load(in.Path, in.Document)
	if err != nil {
		return nil, err
	}
	if _, err := w.StartEncounter(); err != nil {
		return nil, err
	}
	runs, seed := s.params(in.Runs, in.Seed)
	return s.sim.Simulate(ctx, w, runs, seed)
}

func (s *Server) handleSimulate(ctx context.Context, req *sdk.CallToolRequest, input SimulateInput) (*sdk.CallToolResult, SimulateOutput, error) {
	stats, err := s.simulate(ctx, input)
	if err != nil {
		return nil, SimulateOutput{}, err
	}
	return nil, simulateOutputFromStats(stats), nil
}

func (s *Server) handleAnalyze(ctx context.Context, req *sdk.CallToolRequest, input SimulateInput) (*sdk.CallToolResult, AnalyzeOutput, error) {
	stats, err := s.simulate(ctx, input)
	if err != nil {
		return nil, AnalyzeOutput{}, err
	}
	issues := balance.Analyze(stats, s.cfg.Targets)
	return nil, AnalyzeOutput{Balanced: len(issues) == 0, Issues: issueOutputs(issues)}, nil
}

func (s *Server) handleCheck(ctx context.Context, req *sdk.CallToolRequest, input CheckInput) (*sdk.CallToolResult, CheckOutput, error) {
	w, data, err := load(input.Path, input.Document)
	if err != nil {
		return nil, CheckOutput{}, err
	}
	issues, err := storyworld.ValidateSchema(data)
	if err != nil {
		return nil, CheckOutput{}, err
	}
	issues = append(issues, storyworld.Check(w, storyworld.CheckOptions{Strict: input.Strict || s.cfg.StrictScripts})...)

	out := CheckOutput{OK: !storyworld.HasErrors(issues), Issues: make([]CheckIssueOutput, 0, len(issues))}
	for _, issue := range issues {
		out.Issues = append(out.Issues, CheckIssueOutput{
			Severity:  string(issue.Severity),
			Code:      issue.Code,
			Message:   issue.Message,
			Encounter: issue.Encounter,
		})
	}
	return nil, out, nil
}

func (s *Server) handleBalance(ctx context.Context, req *sdk.CallToolRequest, input BalanceInput) (*sdk.CallToolResult, BalanceOutput, error) {
	if input.Write && input.Path == "" {
		return nil, BalanceOutput{}, fmt.Errorf("write requires path")
	}
	w, _, err := load(input.Path, input.Document)
	if err != nil {
		return nil, BalanceOutput{}, err
	}

	cfg := s.cfg.Session()
	cfg.RunCount, cfg.Seed = s.params(input.Runs, input.Seed)
	if input.MaxIterations > 0 {
		cfg.MaxIterations = input.MaxIterations
	}

	report, err := tuner.NewSession(cfg, s.sim, s.logger).Run(ctx, w)
	if err != nil {
		return nil, BalanceOutput{}, err
	}

	out := BalanceOutput{
		SessionID:  report.SessionID.String(),
		Outcome:    string(report.Outcome),
		Iterations: make([]IterationOutput, 0, len(report.Iterations)),
	}
	for _, adj := range report.Preflight {
		out.Preflight = append(out.Preflight, adj.String())
	}
	for _, it := range report.Iterations {
		row := IterationOutput{Number: it.Number, Seed: it.Seed, Issues: issueOutputs(it.Issues), Adjustments: []string{}}
		for _, adj := range it.Adjustments {
			row.Adjustments = append(row.Adjustments, adj.String())
		}
		out.Iterations = append(out.Iterations, row)
	}

	if input.Write {
		if err := storyworld.Save(input.Path, report.Final); err != nil {
			return nil, BalanceOutput{}, err
		}
		out.Written = true
	} else {
		data, err := storyworld.Encode(report.Final)
		if err != nil {
			return nil, BalanceOutput{}, err
		}
		out.Document = string(data)
	}
	return nil, out, nil
}

func simulateOutputFromStats(stats *rehearsal.Statistics) SimulateOutput {
	out := SimulateOutput{
		Runs:             stats.RunCount,
		Seed:             stats.Seed,
		DeadEndRate:      stats.DeadEndRate(),
		TimeoutRate:      stats.TimeoutRate(),
		FailureRate:      stats.FailureRate(),
		Entropy:          stats.Entropy(),
		EffectiveEndings: stats.EffectiveEndings(),
		MeanTurns:        stats.MeanTurns(),
		Endings:          make([]EndingOutput, 0, len(stats.EndingCounts)),
		Properties:       make([]PropertyOutput, 0, len(stats.Properties)),
		FailureSamples:   stats.FailureSamples,
	}
	if rate, ok := stats.BlockingRate(); ok {
		out.BlockingRate = &rate
	}
	for _, id := range stats.EndingIDs() {
		out.Endings = append(out.Endings, EndingOutput{ID: id, Count: stats.EndingCounts[id], Share: stats.Share(id)})
	}
	for _, id := range stats.Secrets {
		out.Secrets = append(out.Secrets, EndingOutput{ID: id, Count: stats.SecretHits[id], Share: stats.SecretRate(id)})
	}
	for _, p := range stats.Properties {
		out.Properties = append(out.Properties, PropertyOutput{
			Key:    p.Key.String(),
			Mean:   p.Mean(stats.RunCount),
			StdDev: p.StdDev(stats.RunCount),
		})
	}
	return out
}

func issueOutputs(issues []balance.Issue) []IssueOutput {
	out := make([]IssueOutput, 0, len(issues))
	for _, issue := range issues {
		out = append(out, IssueOutput{
			Kind:        string(issue.Kind),
			EncounterID: issue.EncounterID,
			Value:       issue.Value,
			Message:     issue.String(),
		})
	}
	return out
}
