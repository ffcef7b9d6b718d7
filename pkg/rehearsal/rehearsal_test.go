package rehearsal

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/storyworld-balancer/internal/testworld"
	"github.com/jwebster45206/storyworld-balancer/pkg/episode"
	"github.com/jwebster45206/storyworld-balancer/pkg/script"
	"github.com/jwebster45206/storyworld-balancer/pkg/storyworld"
)

func TestRunCrossroads(t *testing.T) {
	stats, err := Run(context.Background(), testworld.Crossroads(), 2000, 42, Options{Workers: 4})
	require.NoError(t, err)

	assert.True(t, stats.Conserved())
	assert.Equal(t, 2000, stats.Completed())
	assert.Equal(t, []string{"ending_brave", "ending_meek"}, stats.KnownEndings)
	assert.InDelta(t, 0.5, stats.Share("ending_brave"), 0.05)
	assert.InDelta(t, 0.5, stats.Share("ending_meek"), 0.05)
	assert.InDelta(t, 1.0, stats.Entropy(), 0.01)
	assert.InDelta(t, 2.0, stats.EffectiveEndings(), 0.02)
	assert.Equal(t, 2.0, stats.MeanTurns())

	courage, ok := stats.Property("hero", "Courage")
	require.True(t, ok)
	brave := float64(stats.EndingCounts["ending_brave"])
	meek := float64(stats.EndingCounts["ending_meek"])
	assert.InDelta(t, 0.5*brave-0.5*meek, courage.Sum, 1e-9)
	assert.InDelta(t, 0.5, courage.StdDev(stats.RunCount), 0.01)

	rate, ok := stats.BlockingRate()
	require.True(t, ok)
	assert.Equal(t, 0.0, rate)
}

func TestRunIsIndependentOfWorkerCount(t *testing.T) {
	w := testworld.Crossroads()
	ctx := context.Background()

	one, err := Run(ctx, w, 1500, 7, Options{Workers: 1})
	require.NoError(t, err)
	many, err := Run(ctx, w, 1500, 7, Options{Workers: 8})
	require.NoError(t, err)
	odd, err := Run(ctx, w, 1500, 7, Options{Workers: 7})
	require.NoError(t, err)

	assert.Equal(t, one, many)
	assert.Equal(t, one, odd)
}

func TestRunSeedChangesOutcome(t *testing.T) {
	w := testworld.Crossroads()
	a, err := Run(context.Background(), w, 500, 1, Options{})
	require.NoError(t, err)
	b, err := Run(context.Background(), w, 500, 2, Options{})
	require.NoError(t, err)

	assert.NotEqual(t, a.EndingCounts, b.EndingCounts)
}

func TestRunCountsBuckets(t *testing.T) {
	broken := testworld.Choice("broken", "end")
	broken.VisibilityScript = script.New(&script.Malformed{Reason: "unknown script node"})

	w := &storyworld.Storyworld{Encounters: []storyworld.Encounter{
		testworld.Step("start",
			testworld.Choice("finish", "end"),
			testworld.Choice("stuck", "dead"),
			testworld.Choice("spin", "loop"),
		),
		testworld.Terminal("end", nil),
		testworld.Step("dead", testworld.Hidden("nothing", "end")),
		testworld.Step("loop", testworld.Choice("again", "loop")),
	}}

	stats, err := Run(context.Background(), w, 900, 3, Options{Episode: episode.Options{StepCeiling: 10}})
	require.NoError(t, err)

	assert.True(t, stats.Conserved())
	assert.InDelta(t, 1.0/3, stats.Share("end"), 0.06)
	assert.InDelta(t, 2.0/3, stats.DeadEndRate(), 0.06, "timeouts count toward the dead-end rate")
	assert.InDelta(t, 1.0/3, stats.TimeoutRate(), 0.06)
	assert.InDelta(t, stats.rate(stats.DeadEnds)+stats.TimeoutRate(), stats.DeadEndRate(), 1e-12)
	assert.Zero(t, stats.Failures)

	w.Encounters[0].Options = append(w.Encounters[0].Options, broken)
	stats, err = Run(context.Background(), w, 800, 3, Options{})
	require.NoError(t, err)
	assert.True(t, stats.Conserved())
	assert.Equal(t, stats.RunCount, stats.Failures, "every episode evaluates the broken visibility script")
	require.Len(t, stats.FailureSamples, 1)
	assert.Contains(t, stats.FailureSamples[0], "malformed script")
}

func TestRunSingleOpenEnding(t *testing.T) {
	w := &storyworld.Storyworld{Encounters: []storyworld.Encounter{
		testworld.Step("start", testworld.Choice("left", "middle"), testworld.Choice("right", "middle")),
		testworld.Step("middle", testworld.Choice("on", "end")),
		testworld.Terminal("end", &script.BoolConstant{Value: true}),
	}}

	stats, err := Run(context.Background(), w, 10000, 5, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1.0, stats.Share("end"))
	assert.Equal(t, 10000, stats.EndingCounts["end"])
	assert.Zero(t, stats.DeadEndRate())
	assert.Equal(t, 1.0, stats.EffectiveEndings())
}

func TestRunSecretReachability(t *testing.T) {
	w := testworld.Crossroads()
	w.Encounters = append(w.Encounters,
		testworld.Terminal("page_secret_bold", script.AtLeast("hero", "Courage", 0.5)),
		testworld.Terminal("page_secret_never", script.AtLeast("hero", "Courage", 2)),
	)

	stats, err := Run(context.Background(), w, 2000, 17, Options{Workers: 3})
	require.NoError(t, err)

	assert.Equal(t, []string{"page_secret_bold", "page_secret_never"}, stats.Secrets)
	assert.Equal(t, stats.EndingCounts["ending_brave"], stats.SecretHits["page_secret_bold"])
	assert.InDelta(t, 0.5, stats.SecretRate("page_secret_bold"), 0.05)
	assert.Zero(t, stats.SecretHits["page_secret_never"])
	assert.Zero(t, stats.SecretRate("page_secret_never"))
}

func TestRollerIsDeterministic(t *testing.T) {
	for i := range 10 {
		a, err := Roller(99, i).Roll("1d1000")
		require.NoError(t, err)
		b, err := Roller(99, i).Roll("1d1000")
		require.NoError(t, err)
		assert.Equal(t, a.Value, b.Value)
	}
}

func TestRunFallbackCounted(t *testing.T) {
	w := testworld.Spread([]string{"a", "b"}, map[string]float64{"b": 0.5})

	stats, err := Run(context.Background(), w, 1000, 11, Options{})
	require.NoError(t, err)

	assert.Zero(t, stats.EndingCounts["b"])
	assert.Greater(t, stats.EndingCounts[episode.FallbackEndingID], 0)
	assert.Equal(t, []string{"a", "b", episode.FallbackEndingID}, stats.EndingIDs())

	rate, ok := stats.BlockingRate()
	require.True(t, ok)
	assert.InDelta(t, 0.5, rate, 0.06)
}

func TestRunMissingStart(t *testing.T) {
	_, err := Run(context.Background(), &storyworld.Storyworld{}, 10, 1, Options{})
	assert.ErrorIs(t, err, storyworld.ErrMissingStartEncounter)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, testworld.Crossroads(), 1000, 1, Options{Workers: 2})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunZeroEpisodes(t *testing.T) {
	stats, err := Run(context.Background(), testworld.Crossroads(), 0, 1, Options{})
	require.NoError(t, err)
	assert.True(t, stats.Conserved())
	assert.Zero(t, stats.Entropy())
	assert.Zero(t, stats.DeadEndRate())
}

func TestPropertyStatStdDev(t *testing.T) {
	p := PropertyStat{Sum: 0, SumSquares: 2}
	assert.InDelta(t, 1, p.StdDev(2), 1e-12)
	assert.Equal(t, 0.0, p.Mean(2))

	// rounding can push the variance slightly negative
	p = PropertyStat{Sum: 0.3, SumSquares: 0.09 - 1e-18}
	assert.False(t, math.IsNaN(p.StdDev(1)))
}
