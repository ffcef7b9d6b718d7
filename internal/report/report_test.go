package report

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/storyworld-balancer/internal/history"
	"github.com/jwebster45206/storyworld-balancer/internal/testworld"
	"github.com/jwebster45206/storyworld-balancer/pkg/balance"
	"github.com/jwebster45206/storyworld-balancer/pkg/rehearsal"
	"github.com/jwebster45206/storyworld-balancer/pkg/script"
	"github.com/jwebster45206/storyworld-balancer/pkg/storyworld"
	"github.com/jwebster45206/storyworld-balancer/pkg/tuner"
)

func TestStatistics(t *testing.T) {
	stats, err := rehearsal.Run(context.Background(), testworld.Crossroads(), 12000, 42, rehearsal.Options{Workers: 2})
	require.NoError(t, err)

	var buf bytes.Buffer
	New(&buf, 0).Statistics(stats, balance.Analyze(stats, balance.DefaultRules()))
	out := buf.String()

	assert.Contains(t, out, "12,000 runs, seed 42")
	assert.Contains(t, out, "ending_brave")
	assert.Contains(t, out, "ending_meek")
	assert.Contains(t, out, "effective endings")
	assert.Contains(t, out, "hero.Courage")
	assert.Contains(t, out, "Dominant")
	assert.NotContains(t, out, "\x1b[", "no colour when not writing to a terminal")
}

func TestStatisticsSecretReachability(t *testing.T) {
	w := testworld.Crossroads()
	w.Encounters = append(w.Encounters,
		testworld.Terminal("page_secret_bold", script.AtLeast("hero", "Courage", 0.5)),
		testworld.Terminal("page_secret_lost", script.AtLeast("hero", "Courage", 2)),
	)
	stats, err := rehearsal.Run(context.Background(), w, 1000, 3, rehearsal.Options{})
	require.NoError(t, err)

	var buf bytes.Buffer
	New(&buf, 0).Statistics(stats, nil)
	out := buf.String()

	assert.Contains(t, out, "Secret Reachability")
	assert.Contains(t, out, "page_secret_bold")
	assert.Contains(t, out, "page_secret_lost")
	assert.NotContains(t, out, "no secret is reachable")

	buf.Reset()
	New(&buf, 0).Statistics(&rehearsal.Statistics{
		RunCount:   10,
		Secrets:    []string{"page_secret_lost"},
		SecretHits: map[string]int{"page_secret_lost": 0},
	}, nil)
	assert.Contains(t, buf.String(), "no secret is reachable")

	buf.Reset()
	New(&buf, 0).Statistics(&rehearsal.Statistics{RunCount: 10}, nil)
	assert.NotContains(t, buf.String(), "Secret Reachability")
}

func TestIssuesWrapToWidth(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, 30).Issues([]balance.Issue{
		{Kind: balance.HighDeadEnd, Value: 0.125},
		{Kind: balance.Unreachable, EncounterID: "page_end_with_a_rather_long_identifier"},
	})
	out := buf.String()

	assert.Contains(t, out, "High Dead End")
	assert.Contains(t, out, "Unreachable")
	for _, l := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if strings.Contains(l, "page_end_with_a_rather_long_identifier") {
			continue
		}
		assert.LessOrEqual(t, len([]rune(l)), 30, "line %q", l)
	}
}

func TestIssuesBalanced(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, 0).Issues(nil)
	assert.Contains(t, buf.String(), "balanced")
}

func TestKindLabel(t *testing.T) {
	w := New(&bytes.Buffer{}, 0)
	assert.Equal(t, "High Dead End", w.KindLabel(balance.HighDeadEnd))
	assert.Equal(t, "Script Failures", w.KindLabel(balance.ScriptFailures))
}

func TestNumber(t *testing.T) {
	w := New(&bytes.Buffer{}, 0)
	assert.Equal(t, "1,234,567", w.Number(1234567))
	assert.Equal(t, "42", w.Number(42))
}

func TestSession(t *testing.T) {
	report := &tuner.Report{
		SessionID: uuid.New(),
		Outcome:   tuner.Stalled,
		Preflight: []tuner.Adjustment{{Action: tuner.ActivateSpool, SpoolID: "spool_secrets"}},
		Iterations: []tuner.Iteration{{
			Number: 1,
			Seed:   43,
			Stats:  &rehearsal.Statistics{RunCount: 10, EndingCounts: map[string]int{"a": 10}},
			Issues: []balance.Issue{{Kind: balance.Dominant, EncounterID: "a", Value: 1}},
			Adjustments: []tuner.Adjustment{
				{Issue: balance.Issue{Kind: balance.Dominant}, Action: tuner.ScaleThresholds, EncounterID: "a", Factor: 1.15, Changed: 1},
			},
		}},
	}

	var buf bytes.Buffer
	New(&buf, 0).Session(report)
	out := buf.String()

	assert.Contains(t, out, report.SessionID.String())
	assert.Contains(t, out, "Iteration 1")
	assert.Contains(t, out, "seed 43")
	assert.Contains(t, out, "ending a is dominant")
	assert.Contains(t, out, "scaled 1 threshold(s) in a by 1.15")
	assert.Contains(t, out, "pre-flight: spool spool_secrets now starts active")
	assert.Contains(t, out, "Stalled after 1 iteration(s)")
	assert.Contains(t, out, "1 issue(s) remain")
}

func TestCheck(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, 0).Check([]storyworld.Issue{
		{Severity: storyworld.SeverityError, Code: storyworld.CodeUnresolvedConsequence, Message: "reaction r1 points at missing encounter x"},
	})
	assert.Contains(t, buf.String(), "error")
	assert.Contains(t, buf.String(), "missing encounter x")

	buf.Reset()
	New(&buf, 0).Check(nil)
	assert.Contains(t, buf.String(), "no problems found")
}

func TestHistory(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, 0)
	w.History(nil)
	assert.Contains(t, buf.String(), "no sessions recorded")

	buf.Reset()
	id := uuid.New()
	w.History([]history.Summary{{
		SessionID:  id,
		Path:       "world.json",
		Outcome:    tuner.Balanced,
		Iterations: 3,
		Changed:    true,
		FinishedAt: time.Now(),
	}})
	out := buf.String()
	assert.Contains(t, out, id.String()[:8])
	assert.Contains(t, out, "Balanced")
	assert.Contains(t, out, "world.json")
	assert.Contains(t, out, "document changed")
}
