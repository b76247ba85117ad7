package agent

import (
	"encoding/json"
	"fmt"
	"os"
)

// TrainingParam is the static configuration bag for a training run.
// It is read-only while training.
type TrainingParam struct {
	// Replay buffer capacity.
	BufferSize int `json:"buffer_size"`
	// Transitions per network training step.
	MinibatchSize int `json:"minibatch_size"`
	// Buffer must hold more than this many transitions before training starts.
	MinObservation int `json:"min_observation"`

	// Epsilon decays linearly from initial to final over decay steps.
	InitialEpsilon    float64 `json:"initial_epsilon"`
	FinalEpsilon      float64 `json:"final_epsilon"`
	EpsilonDecaySteps int     `json:"epsilon_decay_steps"`

	// Environment steps taken per training iteration.
	NumFrames int `json:"num_frames"`

	// Summary metrics are emitted every UpdateFreq iterations; the
	// network is checkpointed every SavingNum iterations.
	UpdateFreq int `json:"update_freq"`
	SavingNum  int `json:"saving_num"`
}

// DefaultTrainingParam returns the parameters used when no config file
// is given.
func DefaultTrainingParam() TrainingParam {
	return TrainingParam{
		BufferSize:        40000,
		MinibatchSize:     32,
		MinObservation:    5000,
		InitialEpsilon:    0.4,
		FinalEpsilon:      0.01,
		EpsilonDecaySteps: 10000,
		NumFrames:         1,
		UpdateFreq:        100,
		SavingNum:         1000,
	}
}

// Validate checks the parameter bag for values the training loop cannot
// work with.
func (p TrainingParam) Validate() error {
	if p.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive, got %d", p.BufferSize)
	}
	if p.MinibatchSize <= 0 {
		return fmt.Errorf("minibatch_size must be positive, got %d", p.MinibatchSize)
	}
	if p.MinObservation < p.MinibatchSize {
		return fmt.Errorf("min_observation %d must be at least minibatch_size %d", p.MinObservation, p.MinibatchSize)
	}
	if p.FinalEpsilon < 0 || p.InitialEpsilon < p.FinalEpsilon {
		return fmt.Errorf("epsilon schedule must satisfy 0 <= final <= initial, got initial=%v final=%v", p.InitialEpsilon, p.FinalEpsilon)
	}
	if p.EpsilonDecaySteps <= 0 {
		return fmt.Errorf("epsilon_decay_steps must be positive, got %d", p.EpsilonDecaySteps)
	}
	if p.NumFrames <= 0 {
		return fmt.Errorf("num_frames must be positive, got %d", p.NumFrames)
	}
	if p.UpdateFreq <= 0 || p.SavingNum <= 0 {
		return fmt.Errorf("update_freq and saving_num must be positive")
	}
	return nil
}

// LoadTrainingParam reads a parameter bag from a JSON file. Fields absent
// from the file keep their defaults.
func LoadTrainingParam(path string) (TrainingParam, error) {
	p := DefaultTrainingParam()

	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read training params: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse training params: %w", err)
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("invalid training params: %w", err)
	}
	return p, nil
}

// Save writes the parameter bag as indented JSON, so a run's exact
// configuration can be kept next to its checkpoints.
func (p TrainingParam) Save(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal training params: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write training params: %w", err)
	}
	return nil
}
