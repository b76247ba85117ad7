package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTrainingParamIsValid(t *testing.T) {
	assert.NoError(t, DefaultTrainingParam().Validate())
}

func TestValidateCatchesBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*TrainingParam)
	}{
		{"zero buffer", func(p *TrainingParam) { p.BufferSize = 0 }},
		{"zero minibatch", func(p *TrainingParam) { p.MinibatchSize = 0 }},
		{"min observation below minibatch", func(p *TrainingParam) { p.MinObservation = p.MinibatchSize - 1 }},
		{"negative final epsilon", func(p *TrainingParam) { p.FinalEpsilon = -0.1 }},
		{"initial below final epsilon", func(p *TrainingParam) { p.InitialEpsilon = 0.001 }},
		{"zero decay steps", func(p *TrainingParam) { p.EpsilonDecaySteps = 0 }},
		{"zero frames", func(p *TrainingParam) { p.NumFrames = 0 }},
		{"zero update freq", func(p *TrainingParam) { p.UpdateFreq = 0 }},
		{"zero saving num", func(p *TrainingParam) { p.SavingNum = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultTrainingParam()
			tc.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestLoadTrainingParamOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"minibatch_size": 64, "final_epsilon": 0.05}`), 0o644))

	p, err := LoadTrainingParam(path)
	require.NoError(t, err)

	assert.Equal(t, 64, p.MinibatchSize)
	assert.InDelta(t, 0.05, p.FinalEpsilon, 1e-12)
	// Untouched fields keep their defaults.
	assert.Equal(t, DefaultTrainingParam().BufferSize, p.BufferSize)
}

func TestLoadTrainingParamRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"buffer_size": -1}`), 0o644))

	_, err := LoadTrainingParam(path)
	assert.Error(t, err)
}

func TestLoadTrainingParamMissingFile(t *testing.T) {
	_, err := LoadTrainingParam(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestTrainingParamSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.json")

	want := DefaultTrainingParam()
	want.MinibatchSize = 16
	want.InitialEpsilon = 0.9
	require.NoError(t, want.Save(path))

	got, err := LoadTrainingParam(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
