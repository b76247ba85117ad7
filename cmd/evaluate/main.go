package main

import (
	"flag"
	"log"
	"math/rand"
	"time"

	"github.com/gridops/grid-dqn-trainer/pkg/agent"
	"github.com/gridops/grid-dqn-trainer/pkg/deepq"
	"github.com/gridops/grid-dqn-trainer/pkg/grid"
)

// evaluate replays episodes with the greedy policy of a trained network
// and reports reward and survival per episode. No learning happens here.
func main() {
	var (
		casePath    = flag.String("case", "", "Path to grid case JSON (empty: built-in 14-bus case)")
		chronicsDir = flag.String("chronics", "", "Path to chronics directory (empty: synthetic chronics)")
		savePath    = flag.String("save", "checkpoints", "Directory holding network checkpoints")
		agentName   = flag.String("name", "DeepQAgent", "Agent name (checkpoint subdirectory)")
		episodes    = flag.Int("episodes", 10, "Number of episodes to evaluate")
		seed        = flag.Int64("seed", 1, "Random seed")
	)
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	var c *grid.Case
	var err error
	if *casePath != "" {
		c, err = grid.LoadCase(*casePath)
		if err != nil {
			log.Fatalf("Failed to load case: %v", err)
		}
	} else {
		c = grid.DefaultCase()
	}

	var chronics grid.Provider
	if *chronicsDir != "" {
		chronics, err = grid.NewDiskChronics(c, *chronicsDir, rng)
		if err != nil {
			log.Fatalf("Failed to load chronics: %v", err)
		}
	} else {
		chronics = grid.NewSyntheticChronics(c, *episodes, 2016, *seed)
	}

	env, err := grid.NewEnv(c, chronics)
	if err != nil {
		log.Fatalf("Failed to create environment: %v", err)
	}

	a := agent.NewDeepQAgent(*agentName, func(obsSize, actionCount int) (agent.QNetwork, error) {
		return deepq.New(deepq.DefaultConfig(obsSize, actionCount), rng)
	}, nil, rng)

	// Probe the environment once to size the network before loading.
	obs, err := env.Reset()
	if err != nil {
		log.Fatalf("Failed to reset environment: %v", err)
	}
	obsSize := len(a.ConvertObs(obs))
	if err := a.Load(*savePath, obsSize, env.ActionCount()); err != nil {
		log.Fatalf("Failed to load network: %v", err)
	}
	log.Printf("Loaded network for %s (obs=%d, actions=%d)", *agentName, obsSize, env.ActionCount())

	start := time.Now()
	var totalReward float64
	var totalAlive int

	for ep := 0; ep < *episodes; ep++ {
		if ep > 0 {
			obs, err = env.Reset()
			if err != nil {
				log.Fatalf("Failed to reset environment: %v", err)
			}
		}

		var episodeReward float64
		alive := 0
		for {
			action, err := a.Act(obs)
			if err != nil {
				log.Fatalf("Action selection failed: %v", err)
			}
			next, reward, done, err := env.Step(action)
			if err != nil {
				log.Fatalf("Environment step failed: %v", err)
			}
			episodeReward += reward
			alive++
			obs = next
			if done {
				break
			}
		}

		log.Printf("Episode %d (%s): reward=%.3f, survived %d steps", ep+1, env.EpisodeName(), episodeReward, alive)
		totalReward += episodeReward
		totalAlive += alive
	}

	log.Printf("Evaluated %d episodes in %v: mean reward=%.3f, mean survival=%.1f steps",
		*episodes, time.Since(start),
		totalReward/float64(*episodes),
		float64(totalAlive)/float64(*episodes))
}
