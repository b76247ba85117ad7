package main

import (
	"encoding/json"
	"errors"
	"flag"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/gridops/grid-dqn-trainer/internal/database"
	"github.com/gridops/grid-dqn-trainer/internal/monitor"
	"github.com/gridops/grid-dqn-trainer/pkg/agent"
	"github.com/gridops/grid-dqn-trainer/pkg/deepq"
	"github.com/gridops/grid-dqn-trainer/pkg/grid"
)

func main() {
	var (
		casePath    = flag.String("case", "", "Path to grid case JSON (empty: built-in 14-bus case)")
		chronicsDir = flag.String("chronics", "", "Path to chronics directory (empty: synthetic chronics)")
		paramsPath  = flag.String("params", "", "Path to training params JSON (empty: defaults)")
		dbPath      = flag.String("db", "training.db", "Path to SQLite analytics database")
		savePath    = flag.String("save", "checkpoints", "Directory for network checkpoints")
		agentName   = flag.String("name", "DeepQAgent", "Agent name (checkpoint subdirectory)")
		description = flag.String("description", "DQN training on grid chronics", "Run description")
		iterations  = flag.Int("iterations", 100000, "Number of training iterations")
		seed        = flag.Int64("seed", 0, "Random seed (0: time-based)")
	)
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	// Grid case
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
	log.Printf("Loaded case %s: %d buses, %d lines", c.Name, len(c.Buses), len(c.Lines))

	// Chronics
	var chronics grid.Provider
	if *chronicsDir != "" {
		chronics, err = grid.NewDiskChronics(c, *chronicsDir, rng)
		if err != nil {
			log.Fatalf("Failed to load chronics: %v", err)
		}
	} else {
		log.Printf("No chronics directory given, using synthetic chronics")
		chronics = grid.NewSyntheticChronics(c, 20, 2016, *seed)
	}
	log.Printf("Found %d chronics", chronics.Count())

	env, err := grid.NewEnv(c, chronics)
	if err != nil {
		log.Fatalf("Failed to create environment: %v", err)
	}

	// Training parameters
	param := agent.DefaultTrainingParam()
	if *paramsPath != "" {
		param, err = agent.LoadTrainingParam(*paramsPath)
		if err != nil {
			log.Fatalf("Failed to load training params: %v", err)
		}
	}
	configJSON, err := json.Marshal(param)
	if err != nil {
		log.Fatalf("Failed to marshal training params: %v", err)
	}

	// Database and metrics collection
	dbDir := filepath.Dir(*dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	log.Printf("Connecting to database at %s", *dbPath)
	db, err := database.NewDatabase(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	repo := database.NewRepository(db)
	collector, err := monitor.NewCollector(repo, *agentName, *description, string(configJSON))
	if err != nil {
		log.Fatalf("Failed to create metrics collector: %v", err)
	}
	log.Printf("Created training run %s", collector.RunID())

	// Agent
	a := agent.NewDeepQAgent(*agentName, func(obsSize, actionCount int) (agent.QNetwork, error) {
		return deepq.New(deepq.DefaultConfig(obsSize, actionCount), rng)
	}, collector, rng)

	log.Printf("Starting training for %d iterations at %s", *iterations, time.Now().Format(time.RFC3339))
	start := time.Now()

	trainErr := a.Train(env, *iterations, *savePath, param)
	status := monitor.StatusCompleted
	switch {
	case errors.Is(trainErr, agent.ErrDivergence):
		status = monitor.StatusDiverged
		collector.RecordEvent("divergence", "error", trainErr.Error())
	case trainErr != nil:
		status = monitor.StatusFailed
		collector.RecordEvent("error", "error", trainErr.Error())
	}

	if err := collector.Close(status); err != nil {
		log.Printf("Warning: failed to finalize run: %v", err)
	}

	if trainErr != nil {
		log.Fatalf("Training ended with status %s after %v: %v", status, time.Since(start), trainErr)
	}
	log.Printf("Training completed in %v, checkpoints under %s", time.Since(start), filepath.Join(*savePath, *agentName))
}
