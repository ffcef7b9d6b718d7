package mcp

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/storyworld-balancer/internal/config"
	"github.com/jwebster45206/storyworld-balancer/internal/testworld"
	"github.com/jwebster45206/storyworld-balancer/pkg/script"
	"github.com/jwebster45206/storyworld-balancer/pkg/storyworld"
)

func testServer() *Server {
	cfg := config.Defaults()
	cfg.RunCount = 2000
	cfg.Workers = 2
	return NewServer(cfg, nil, nil, "test")
}

func savedWorld(t *testing.T, w *storyworld.Storyworld) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "world.json")
	require.NoError(t, storyworld.Save(path, w))
	return path
}

func encoded(t *testing.T, w *storyworld.Storyworld) string {
	t.Helper()
	data, err := storyworld.Encode(w)
	require.NoError(t, err)
	return string(data)
}

func TestHandleSimulate(t *testing.T) {
	s := testServer()
	seed := int64(7)

	_, out, err := s.handleSimulate(context.Background(), nil, SimulateInput{
		Path: savedWorld(t, testworld.Crossroads()),
		Runs: 1000,
		Seed: &seed,
	})
	require.NoError(t, err)

	assert.Equal(t, 1000, out.Runs)
	assert.Equal(t, int64(7), out.Seed)
	require.Len(t, out.Endings, 2)
	assert.Equal(t, "ending_brave", out.Endings[0].ID)
	assert.InDelta(t, 1.0, out.Endings[0].Share+out.Endings[1].Share, 1e-9)
	assert.Equal(t, 0.0, out.DeadEndRate)
	assert.Equal(t, 2.0, out.MeanTurns)
	require.NotNil(t, out.BlockingRate)
	require.Len(t, out.Properties, 1)
	assert.Equal(t, "hero.Courage", out.Properties[0].Key)
	assert.Empty(t, out.Secrets)
}

func TestHandleSimulateSecrets(t *testing.T) {
	w := testworld.Crossroads()
	w.Encounters = append(w.Encounters, testworld.Terminal("page_secret_meek", script.AtMost("hero", "Courage", -0.5)))

	_, out, err := testServer().handleSimulate(context.Background(), nil, SimulateInput{Document: encoded(t, w)})
	require.NoError(t, err)
	require.Len(t, out.Secrets, 1)
	assert.Equal(t, "page_secret_meek", out.Secrets[0].ID)
	assert.InDelta(t, 0.5, out.Secrets[0].Share, 0.05)
}

func TestHandleSimulateDefaults(t *testing.T) {
	s := testServer()
	_, out, err := s.handleSimulate(context.Background(), nil, SimulateInput{Document: encoded(t, testworld.Crossroads())})
	require.NoError(t, err)
	assert.Equal(t, 2000, out.Runs)
	assert.Equal(t, int64(42), out.Seed)
}

func TestHandleSimulateErrors(t *testing.T) {
	s := testServer()

	_, _, err := s.handleSimulate(context.Background(), nil, SimulateInput{})
	assert.Error(t, err)

	_, _, err = s.handleSimulate(context.Background(), nil, SimulateInput{Document: `{"encounters":[]}`})
	assert.ErrorIs(t, err, storyworld.ErrMissingStartEncounter)

	_, _, err = s.handleSimulate(context.Background(), nil, SimulateInput{Path: filepath.Join(t.TempDir(), "nope.json")})
	assert.Error(t, err)
}

func TestHandleAnalyze(t *testing.T) {
	s := testServer()
	_, out, err := s.handleAnalyze(context.Background(), nil, SimulateInput{Document: encoded(t, testworld.Crossroads())})
	require.NoError(t, err)

	assert.False(t, out.Balanced)
	kinds := map[string]int{}
	for _, issue := range out.Issues {
		kinds[issue.Kind]++
		assert.NotEmpty(t, issue.Message)
	}
	assert.Equal(t, 2, kinds["dominant"])
}

func TestHandleCheck(t *testing.T) {
	s := testServer()

	_, out, err := s.handleCheck(context.Background(), nil, CheckInput{Document: encoded(t, testworld.Crossroads())})
	require.NoError(t, err)
	assert.True(t, out.OK)

	broken := testworld.Crossroads()
	broken.Encounters[0].Options[0].Reactions[0].ConsequenceID = "nowhere"
	_, out, err = s.handleCheck(context.Background(), nil, CheckInput{Document: encoded(t, broken)})
	require.NoError(t, err)
	assert.False(t, out.OK)

	var codes []string
	for _, issue := range out.Issues {
		codes = append(codes, issue.Code)
	}
	assert.Contains(t, codes, storyworld.CodeUnresolvedConsequence)
}

func TestHandleBalanceWrite(t *testing.T) {
	s := testServer()
	path := savedWorld(t, testworld.Spread([]string{"a", "b", "c", "d"}, map[string]float64{"d": 0.5}))

	_, out, err := s.handleBalance(context.Background(), nil, BalanceInput{
		Path:          path,
		Runs:          4000,
		MaxIterations: 1,
		Write:         true,
	})
	require.NoError(t, err)

	assert.True(t, out.Written)
	assert.Empty(t, out.Document)
	assert.Equal(t, "exhausted", out.Outcome)
	require.Len(t, out.Iterations, 1)
	assert.NotEmpty(t, out.Iterations[0].Adjustments)

	saved, err := storyworld.Load(path)
	require.NoError(t, err)
	d, ok := saved.Encounter("d")
	require.True(t, ok)
	assert.Equal(t, 0.35, script.Thresholds(d.Acceptability())[0].Value)
}

func TestHandleBalanceDryRun(t *testing.T) {
	s := testServer()
	w := testworld.Spread([]string{"a", "b", "c", "d"}, map[string]float64{"d": 0.5})

	_, out, err := s.handleBalance(context.Background(), nil, BalanceInput{
		Document:      encoded(t, w),
		Runs:          4000,
		MaxIterations: 1,
	})
	require.NoError(t, err)
	assert.False(t, out.Written)

	tuned, err := storyworld.Parse([]byte(out.Document))
	require.NoError(t, err)
	d, _ := tuned.Encounter("d")
	assert.Equal(t, 0.35, script.Thresholds(d.Acceptability())[0].Value)
	assert.Empty(t, out.Preflight, "a, b and c are already open endings")

	_, out, err = s.handleBalance(context.Background(), nil, BalanceInput{
		Document:      encoded(t, testworld.Crossroads()),
		Runs:          1000,
		MaxIterations: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"pre-flight: ending_brave is now an always-acceptable fallback ending"}, out.Preflight)

	_, _, err = s.handleBalance(context.Background(), nil, BalanceInput{Document: encoded(t, w), Write: true})
	assert.Error(t, err, "write needs a path")
}
