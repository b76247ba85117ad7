package replay_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridops/grid-dqn-trainer/pkg/replay"
)

func makeTransition(i int) replay.Transition {
	return replay.Transition{
		State:     []float64{float64(i), float64(i) * 2},
		Action:    i % 3,
		Reward:    float64(i) * 0.1,
		Done:      i%5 == 0,
		NextState: []float64{float64(i) + 1, float64(i)*2 + 1},
	}
}

func TestBufferRejectsNonPositiveCapacity(t *testing.T) {
	_, err := replay.NewBuffer(0, nil)
	assert.Error(t, err)

	_, err = replay.NewBuffer(-10, nil)
	assert.Error(t, err)
}

func TestBufferNeverExceedsCapacity(t *testing.T) {
	buf, err := replay.NewBuffer(16, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		buf.Add(makeTransition(i))
		assert.LessOrEqual(t, buf.Size(), buf.Capacity())
	}
	assert.Equal(t, 16, buf.Size())
}

func TestBufferEvictsOldest(t *testing.T) {
	buf, err := replay.NewBuffer(4, rand.New(rand.NewSource(2)))
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		buf.Add(makeTransition(i))
	}

	// Transitions 0 and 1 were overwritten; only 2..5 remain.
	batch, err := buf.Sample(64)
	require.NoError(t, err)
	for _, s := range batch.States {
		assert.GreaterOrEqual(t, s[0], 2.0)
	}
}

func TestSampleNeverReturnsMoreThanStored(t *testing.T) {
	buf, err := replay.NewBuffer(100, rand.New(rand.NewSource(3)))
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		buf.Add(makeTransition(i))
	}

	batch, err := buf.Sample(32)
	require.NoError(t, err)
	assert.Equal(t, 7, batch.Len())
	assert.Len(t, batch.States, 7)
	assert.Len(t, batch.Rewards, 7)
	assert.Len(t, batch.NextStates, 7)
}

func TestSampleEmptyBuffer(t *testing.T) {
	buf, err := replay.NewBuffer(8, nil)
	require.NoError(t, err)

	_, err = buf.Sample(4)
	assert.ErrorIs(t, err, replay.ErrEmptyBuffer)
}
