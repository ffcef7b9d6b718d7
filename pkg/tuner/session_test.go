package tuner

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/storyworld-balancer/internal/testworld"
	"github.com/jwebster45206/storyworld-balancer/pkg/balance"
	"github.com/jwebster45206/storyworld-balancer/pkg/episode"
	"github.com/jwebster45206/storyworld-balancer/pkg/rehearsal"
	"github.com/jwebster45206/storyworld-balancer/pkg/script"
	"github.com/jwebster45206/storyworld-balancer/pkg/storyworld"
)

// mockSimulator implements Simulator for testing
type mockSimulator struct {
	SimulateFunc func(ctx context.Context, w *storyworld.Storyworld, runCount int, seed int64) (*rehearsal.Statistics, error)
	seeds        []int64
}

func (m *mockSimulator) Simulate(ctx context.Context, w *storyworld.Storyworld, runCount int, seed int64) (*rehearsal.Statistics, error) {
	m.seeds = append(m.seeds, seed)
	if m.SimulateFunc != nil {
		return m.SimulateFunc(ctx, w, runCount, seed)
	}
	return &rehearsal.Statistics{RunCount: runCount}, nil
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.RunCount = 4000
	cfg.MaxIterations = 4
	return cfg
}

func TestSessionBalanced(t *testing.T) {
	cfg := smallConfig()
	cfg.Rules.MinBlockingRate = 0
	w := testworld.Spread([]string{"a", "b", "c", "d"}, nil)

	var observed []int
	report, err := NewSession(cfg, rehearsal.Simulator{}, nil).
		WithObserver(func(it Iteration) { observed = append(observed, it.Number) }).
		Run(context.Background(), w)
	require.NoError(t, err)

	assert.Equal(t, Balanced, report.Outcome)
	require.Len(t, report.Iterations, 1)
	assert.Equal(t, int64(43), report.Iterations[0].Seed)
	assert.Empty(t, report.FinalIssues())
	assert.False(t, report.Adjusted())
	assert.Same(t, w, report.Final)
	assert.Equal(t, []int{1}, observed)
}

func TestSessionStalled(t *testing.T) {
	w := testworld.Spread([]string{"a", "b", "c", "d"}, nil)

	report, err := NewSession(smallConfig(), rehearsal.Simulator{}, nil).Run(context.Background(), w)
	require.NoError(t, err)

	assert.Equal(t, Stalled, report.Outcome)
	require.Len(t, report.Iterations, 1)
	assert.Equal(t, 1, balance.Count(report.FinalIssues(), balance.LowBlocking))
}

func TestSessionExhausted(t *testing.T) {
	cfg := smallConfig()
	w := testworld.Spread([]string{"a", "b", "c", "d"}, map[string]float64{"d": 0.5})

	report, err := NewSession(cfg, rehearsal.Simulator{}, nil).Run(context.Background(), w)
	require.NoError(t, err)

	assert.Equal(t, Exhausted, report.Outcome)
	require.Len(t, report.Iterations, cfg.MaxIterations)
	for _, it := range report.Iterations {
		assert.Equal(t, 1, balance.Count(it.Issues, balance.Unreachable))
		require.Len(t, it.Adjustments, 1)
	}
	// 0.5 * 0.7^4
	assert.Equal(t, 0.12005, threshold(t, report.Final, "d"))
	assert.Equal(t, 0.5, threshold(t, w, "d"))
}

func TestSessionEnsuresFallback(t *testing.T) {
	w := &storyworld.Storyworld{Encounters: []storyworld.Encounter{
		testworld.Step("start", testworld.Choice("finish", "end"), testworld.Choice("stuck", "dead")),
		testworld.Step("dead", testworld.Hidden("nothing", "end")),
		testworld.Terminal("end", script.AtLeast("hero", "Luck", 0.5)),
	}}

	report, err := NewSession(smallConfig(), rehearsal.Simulator{}, nil).Run(context.Background(), w)
	require.NoError(t, err)

	require.Len(t, report.Preflight, 1)
	assert.Equal(t, EnsureFallback, report.Preflight[0].Action)
	assert.Equal(t, "end", report.Preflight[0].EncounterID)
	assert.True(t, report.Adjusted())

	first := report.Iterations[0]
	assert.Zero(t, first.Stats.EndingCounts[episode.FallbackEndingID], "the fallback is in place before the first rehearsal")
	assert.Equal(t, 1, balance.Count(first.Issues, balance.HighDeadEnd))
	assert.Empty(t, first.Adjustments)

	end, _ := report.Final.Encounter("end")
	assert.True(t, script.IsTrue(end.Acceptability()))
	original, _ := w.Encounter("end")
	assert.False(t, script.IsTrue(original.Acceptability()))
	// the dead end is structural, so the loop stops once nothing else can change
	assert.Equal(t, Stalled, report.Outcome)
}

func TestSessionActivatesLateSpools(t *testing.T) {
	w := testworld.Crossroads()
	w.Spools = append(w.Spools,
		storyworld.Spool{ID: "spool_secrets", Name: "Secrets", CreationIndex: 2, EncounterIDs: []string{"page_secret_a"}},
		storyworld.Spool{ID: "spool_endgame", Name: "Endgame", CreationIndex: -1, EncounterIDs: []string{"ending_brave"}},
	)
	w.Encounters = append(w.Encounters, testworld.Terminal("page_secret_a", nil))

	sim := &mockSimulator{}
	report, err := NewSession(smallConfig(), sim, nil).Run(context.Background(), w)
	require.NoError(t, err)

	var spools []string
	for _, adj := range report.Preflight {
		if adj.Action == ActivateSpool {
			spools = append(spools, adj.SpoolID)
		}
	}
	// the endgame spool sorts first and would take over the start encounter
	assert.Equal(t, []string{"spool_secrets"}, spools)

	secrets, _ := spoolByID(report.Final, "spool_secrets")
	assert.True(t, secrets.StartsActive)
	endgame, _ := spoolByID(report.Final, "spool_endgame")
	assert.False(t, endgame.StartsActive)
	start, err := report.Final.StartEncounter()
	require.NoError(t, err)
	assert.Equal(t, "start", start)
}

func spoolByID(w *storyworld.Storyworld, id string) (storyworld.Spool, bool) {
	for _, sp := range w.Spools {
		if sp.ID == id {
			return sp, true
		}
	}
	return storyworld.Spool{}, false
}

func TestSessionSeedsAdvancePerIteration(t *testing.T) {
	sim := &mockSimulator{
		SimulateFunc: func(ctx context.Context, w *storyworld.Storyworld, runCount int, seed int64) (*rehearsal.Statistics, error) {
			return &rehearsal.Statistics{
				RunCount:     runCount,
				KnownEndings: w.Terminals(),
				EndingCounts: map[string]int{"ending_brave": runCount},
			}, nil
		},
	}
	cfg := smallConfig()
	cfg.Seed = 100

	report, err := NewSession(cfg, sim, nil).Run(context.Background(), testworld.Crossroads())
	require.NoError(t, err)

	assert.Equal(t, Exhausted, report.Outcome)
	assert.Equal(t, []int64{101, 102, 103, 104}, sim.seeds)
}

func TestSessionSimulatorError(t *testing.T) {
	boom := errors.New("boom")
	sim := &mockSimulator{
		SimulateFunc: func(context.Context, *storyworld.Storyworld, int, int64) (*rehearsal.Statistics, error) {
			return nil, boom
		},
	}

	_, err := NewSession(smallConfig(), sim, nil).Run(context.Background(), testworld.Crossroads())
	assert.ErrorIs(t, err, boom)
}

func TestSessionRejectsBadInput(t *testing.T) {
	_, err := NewSession(smallConfig(), &mockSimulator{}, nil).Run(context.Background(), &storyworld.Storyworld{})
	assert.ErrorIs(t, err, storyworld.ErrMissingStartEncounter)

	cfg := smallConfig()
	cfg.MaxIterations = 0
	_, err = NewSession(cfg, &mockSimulator{}, nil).Run(context.Background(), testworld.Crossroads())
	assert.Error(t, err)
}

func TestSessionRunFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.json")
	require.NoError(t, storyworld.Save(path, testworld.Spread([]string{"a", "b", "c", "d"}, map[string]float64{"d": 0.5})))

	cfg := smallConfig()
	cfg.MaxIterations = 1
	report, err := NewSession(cfg, rehearsal.Simulator{}, nil).RunFile(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, report.Adjusted())

	saved, err := storyworld.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.35, threshold(t, saved, "d"))

	_, err = NewSession(cfg, rehearsal.Simulator{}, nil).RunFile(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoDocumentPath)
}

func TestSessionIDsAreUnique(t *testing.T) {
	a := NewSession(smallConfig(), &mockSimulator{}, nil)
	b := NewSession(smallConfig(), &mockSimulator{}, nil)
	assert.NotEqual(t, a.ID(), b.ID())
}
