package main

import (
	"fmt"
	"math/rand"

	"github.com/gridops/grid-dqn-trainer/pkg/agent"
	"github.com/gridops/grid-dqn-trainer/pkg/deepq"
	"github.com/gridops/grid-dqn-trainer/pkg/grid"
)

// Demo: a short training run on the built-in 14-bus case with synthetic
// chronics. No database, no checkpoints; see cmd/trainer for the real thing.
func main() {
	fmt.Println("Grid DQN Trainer - Demo")
	fmt.Println("=======================")

	c := grid.DefaultCase()
	rng := rand.New(rand.NewSource(42))
	chronics := grid.NewSyntheticChronics(c, 5, 288, 42)

	env, err := grid.NewEnv(c, chronics)
	if err != nil {
		fmt.Printf("Failed to create environment: %v\n", err)
		return
	}

	fmt.Printf("✓ Environment ready: %d buses, %d lines, %d actions\n",
		len(c.Buses), len(c.Lines), env.ActionCount())

	param := agent.TrainingParam{
		BufferSize:        2000,
		MinibatchSize:     16,
		MinObservation:    100,
		InitialEpsilon:    0.4,
		FinalEpsilon:      0.05,
		EpsilonDecaySteps: 500,
		NumFrames:         1,
		UpdateFreq:        100,
		SavingNum:         1000,
	}

	a := agent.NewDeepQAgent("demo", func(obsSize, actionCount int) (agent.QNetwork, error) {
		cfg := deepq.DefaultConfig(obsSize, actionCount)
		cfg.Hidden1 = 64
		cfg.Hidden2 = 32
		cfg.LearningRate = 1e-4
		return deepq.New(cfg, rng)
	}, nil, rng)

	fmt.Println("✓ Agent initialized, training for 1000 iterations...")

	if err := a.Train(env, 1000, "", param); err != nil {
		fmt.Printf("Training failed: %v\n", err)
		return
	}

	fmt.Println("✓ Training finished")
}
