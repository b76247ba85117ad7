package deepq

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridops/grid-dqn-trainer/pkg/replay"
)

func testConfig() Config {
	cfg := DefaultConfig(4, 3)
	cfg.Hidden1 = 8
	cfg.Hidden2 = 8
	cfg.LearningRate = 1e-3
	return cfg
}

func TestNewRejectsInvalidDimensions(t *testing.T) {
	_, err := New(Config{InputSize: 0, ActionCount: 3}, nil)
	assert.Error(t, err)

	_, err = New(Config{InputSize: 4, ActionCount: 0}, nil)
	assert.Error(t, err)
}

func TestGreedyPredictionIsDeterministic(t *testing.T) {
	dq, err := New(testConfig(), rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	state := []float64{0.1, 0.2, 0.3, 0.4}

	first, firstQ, err := dq.PredictMovement(state, 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, first, 0)
	assert.Less(t, first, 3)

	for i := 0; i < 5; i++ {
		action, q, err := dq.PredictMovement(state, 0)
		require.NoError(t, err)
		assert.Equal(t, first, action)
		assert.InDelta(t, firstQ, q, 1e-12)
	}
}

func TestExplorationStaysInActionSpace(t *testing.T) {
	dq, err := New(testConfig(), rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	state := []float64{0.1, 0.2, 0.3, 0.4}
	for i := 0; i < 50; i++ {
		action, _, err := dq.PredictMovement(state, 1.0)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, action, 0)
		assert.Less(t, action, 3)
	}
}

func TestTargetStartsAsCopyOfOnline(t *testing.T) {
	dq, err := New(testConfig(), rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	state := []float64{0.5, -0.5, 0.25, 1.0}
	online, err := dq.predict(dq.online, state, 1)
	require.NoError(t, err)
	target, err := dq.predict(dq.target, state, 1)
	require.NoError(t, err)
	assert.Equal(t, online, target)
}

func TestTrainReturnsFiniteLossAndUpdatesWeights(t *testing.T) {
	dq, err := New(testConfig(), rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	before := make([]float64, len(dq.online.params[0].Data().([]float64)))
	copy(before, dq.online.params[0].Data().([]float64))

	batch := replay.Batch{
		States:     [][]float64{{0.1, 0.2, 0.3, 0.4}, {0.4, 0.3, 0.2, 0.1}},
		Actions:    []int{0, 2},
		Rewards:    []float64{1.0, 0.5},
		NextStates: [][]float64{{0.2, 0.3, 0.4, 0.5}, {0.5, 0.4, 0.3, 0.2}},
		Dones:      []bool{false, true},
	}

	loss, err := dq.Train(batch, 1)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(loss))
	assert.False(t, math.IsInf(loss, 0))
	assert.GreaterOrEqual(t, loss, 0.0)

	after := dq.online.params[0].Data().([]float64)
	assert.NotEqual(t, before, after)
}

func TestTrainRejectsEmptyBatch(t *testing.T) {
	dq, err := New(testConfig(), rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	_, err = dq.Train(replay.Batch{}, 1)
	assert.Error(t, err)
}

func TestTargetTrainMovesTargetTowardOnline(t *testing.T) {
	cfg := testConfig()
	cfg.Tau = 0.5
	dq, err := New(cfg, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	// Diverge the networks by hand, then blend back.
	onlineData := dq.online.params[0].Data().([]float64)
	targetData := dq.target.params[0].Data().([]float64)
	onlineData[0] = 1.0
	targetData[0] = 0.0

	dq.TargetTrain()
	assert.InDelta(t, 0.5, targetData[0], 1e-12)

	dq.TargetTrain()
	assert.InDelta(t, 0.75, targetData[0], 1e-12)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := testConfig()
	saved, err := New(cfg, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	state := []float64{0.3, 0.1, -0.2, 0.7}
	wantQ, err := saved.predict(saved.online, state, 1)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, saved.Save(dir))

	restored, err := New(cfg, rand.New(rand.NewSource(99)))
	require.NoError(t, err)
	require.NoError(t, restored.Load(dir))

	gotQ, err := restored.predict(restored.online, state, 1)
	require.NoError(t, err)
	assert.InDeltaSlice(t, wantQ, gotQ, 1e-12)

	// The target network is restored too.
	gotTargetQ, err := restored.predict(restored.target, state, 1)
	require.NoError(t, err)
	assert.InDeltaSlice(t, wantQ, gotTargetQ, 1e-12)
}

func TestLoadRejectsMismatchedShapes(t *testing.T) {
	dir := t.TempDir()

	small, err := New(testConfig(), rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.NoError(t, small.Save(dir))

	bigCfg := testConfig()
	bigCfg.InputSize = 10
	big, err := New(bigCfg, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Error(t, big.Load(dir))
}

func TestLoadMissingFile(t *testing.T) {
	dq, err := New(testConfig(), rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Error(t, dq.Load(t.TempDir()))
}
