package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoBusCase has two parallel lines between a generator bus and a load
// bus, so disconnecting one line never islands the grid.
func twoBusCase(firstLineLimit float64) *Case {
	return &Case{
		Name:  "twobus",
		Buses: []Bus{{ID: 0}, {ID: 1}},
		Lines: []Line{
			{Name: "a", FromBus: 0, ToBus: 1, Reactance: 0.1, ThermalLimit: firstLineLimit},
			{Name: "b", FromBus: 0, ToBus: 1, Reactance: 0.1, ThermalLimit: 100},
		},
		Loads:      []Load{{Name: "load_1", Bus: 1, P: 50}},
		Generators: []Generator{{Name: "gen_0", Bus: 0, PMax: 100}},
	}
}

func TestEnvResetRestoresTopology(t *testing.T) {
	c := twoBusCase(100)
	env, err := NewEnv(c, NewSyntheticChronics(c, 2, 50, 1))
	require.NoError(t, err)

	obs, err := env.Reset()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1}, obs.LineStatus)

	// Disconnect line 0, then reset: everything back in service.
	obs, _, done, err := env.Step(1)
	require.NoError(t, err)
	require.False(t, done)
	assert.Equal(t, []float64{0, 1}, obs.LineStatus)

	obs, err = env.Reset()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1}, obs.LineStatus)
	assert.Equal(t, 0, env.Steps())
}

func TestEnvObservationShapes(t *testing.T) {
	c := DefaultCase()
	env, err := NewEnv(c, NewSyntheticChronics(c, 1, 50, 1))
	require.NoError(t, err)

	obs, err := env.Reset()
	require.NoError(t, err)
	assert.Len(t, obs.Rho, len(c.Lines))
	assert.Len(t, obs.LineStatus, len(c.Lines))
	assert.Len(t, obs.TopoVect, 2*len(c.Lines)+len(c.Loads)+len(c.Generators))
	assert.Equal(t, 1+len(c.Lines), env.ActionCount())
}

func TestEnvStepValidation(t *testing.T) {
	c := twoBusCase(100)
	env, err := NewEnv(c, NewSyntheticChronics(c, 1, 50, 1))
	require.NoError(t, err)

	_, _, _, err = env.Step(ActionDoNothing)
	assert.ErrorContains(t, err, "reset")

	_, err = env.Reset()
	require.NoError(t, err)

	_, _, _, err = env.Step(-1)
	assert.Error(t, err)
	_, _, _, err = env.Step(env.ActionCount())
	assert.Error(t, err)
}

func TestEnvRewardBounded(t *testing.T) {
	c := twoBusCase(100)
	env, err := NewEnv(c, NewSyntheticChronics(c, 1, 50, 1))
	require.NoError(t, err)

	_, err = env.Reset()
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		_, reward, done, err := env.Step(ActionDoNothing)
		require.NoError(t, err)
		require.False(t, done)
		assert.GreaterOrEqual(t, reward, 0.0)
		assert.LessOrEqual(t, reward, 1.0)
	}
}

func TestEnvEndsWhenChronicExhausted(t *testing.T) {
	c := twoBusCase(100)
	env, err := NewEnv(c, NewSyntheticChronics(c, 1, 5, 1))
	require.NoError(t, err)

	_, err = env.Reset()
	require.NoError(t, err)

	// Reset consumes the first row, so 4 live steps remain.
	survived := 0
	for {
		_, reward, done, err := env.Step(ActionDoNothing)
		require.NoError(t, err)
		if done {
			assert.Zero(t, reward)
			break
		}
		survived++
	}
	assert.Equal(t, 4, survived)
}

func TestEnvTripsPersistentlyOverloadedLine(t *testing.T) {
	// Line 0 is rated far below the flow it carries, so it overloads
	// from the first step and trips after three in a row.
	c := twoBusCase(10)
	env, err := NewEnv(c, NewSyntheticChronics(c, 1, 50, 1))
	require.NoError(t, err)

	_, err = env.Reset()
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		obs, _, done, err := env.Step(ActionDoNothing)
		require.NoError(t, err)
		require.False(t, done)
		// The trip lands after the step's observation is built.
		assert.Equal(t, 1.0, obs.LineStatus[0], "step %d", i)
		assert.Greater(t, obs.Rho[0], 1.0, "step %d", i)
	}

	obs, _, done, err := env.Step(ActionDoNothing)
	require.NoError(t, err)
	require.False(t, done)
	assert.Equal(t, 0.0, obs.LineStatus[0])
	assert.Equal(t, 1.0, obs.LineStatus[1])
}

func TestEnvCooldownBlocksReconnection(t *testing.T) {
	c := twoBusCase(100)
	env, err := NewEnv(c, NewSyntheticChronics(c, 1, 50, 1))
	require.NoError(t, err)

	_, err = env.Reset()
	require.NoError(t, err)

	obs, _, _, err := env.Step(1)
	require.NoError(t, err)
	require.Equal(t, 0.0, obs.LineStatus[0])

	// Reconnection attempts are refused while the cooldown runs.
	for i := 0; i < reconnectCooldown-1; i++ {
		obs, _, _, err = env.Step(1)
		require.NoError(t, err)
		assert.Equal(t, 0.0, obs.LineStatus[0], "step %d", i)
	}

	obs, _, _, err = env.Step(1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, obs.LineStatus[0])
}

func TestEnvEndsOnIslanding(t *testing.T) {
	// Single line feeding the load: disconnecting it islands bus 1.
	c := &Case{
		Name:       "radial",
		Buses:      []Bus{{ID: 0}, {ID: 1}},
		Lines:      []Line{{Name: "a", FromBus: 0, ToBus: 1, Reactance: 0.1, ThermalLimit: 100}},
		Loads:      []Load{{Name: "load_1", Bus: 1, P: 50}},
		Generators: []Generator{{Name: "gen_0", Bus: 0, PMax: 100}},
	}
	env, err := NewEnv(c, NewSyntheticChronics(c, 1, 50, 1))
	require.NoError(t, err)

	_, err = env.Reset()
	require.NoError(t, err)

	_, reward, done, err := env.Step(1)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Zero(t, reward)
}
