package agent

import (
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"path/filepath"

	"github.com/gridops/grid-dqn-trainer/pkg/grid"
	"github.com/gridops/grid-dqn-trainer/pkg/replay"
)

// ErrDivergence is returned by Train when a training step produces a
// non-finite loss. The run is unrecoverable at that point.
var ErrDivergence = errors.New("training diverged: non-finite loss")

// Environment is the simulation the agent interacts with.
type Environment interface {
	Reset() (*grid.Observation, error)
	Step(action int) (*grid.Observation, float64, bool, error)
	ActionCount() int
	SetChunkSize(n int)
	ChronicsCount() int
	ShuffleChronics()
	EpisodeName() string
}

// QNetwork is the action-value network the agent trains. Epsilon-greedy
// selection lives inside PredictMovement.
type QNetwork interface {
	PredictMovement(state []float64, epsilon float64) (action int, value float64, err error)
	Train(batch replay.Batch, step int) (loss float64, err error)
	TargetTrain()
	Save(dir string) error
	Load(dir string) error
}

// NetworkFactory builds a QNetwork once the observation size is known.
// The network is created lazily on the first observation because the
// state dimension depends on the environment.
type NetworkFactory func(obsSize, actionCount int) (QNetwork, error)

// Summary carries rolling episode statistics over the last 30 and 100
// episodes.
type Summary struct {
	MeanReward30  float64
	MeanAlive30   float64
	MeanReward100 float64
	MeanAlive100  float64
}

// Recorder receives training metrics. Implementations must tolerate being
// called every iteration.
type Recorder interface {
	RecordStep(step int, epsilon, loss float64)
	RecordEpisode(epoch int, chronic string, reward float64, aliveFrames int)
	RecordSummary(step, epoch int, s Summary)
}

type noopRecorder struct{}

func (noopRecorder) RecordStep(int, float64, float64)        {}
func (noopRecorder) RecordEpisode(int, string, float64, int) {}
func (noopRecorder) RecordSummary(int, int, Summary)         {}

// DeepQAgent drives the interaction between a Q-network and a grid
// environment: epsilon-greedy acting, experience replay, periodic
// training steps with target-network sync, and checkpointing.
type DeepQAgent struct {
	name     string
	factory  NetworkFactory
	deepQ    QNetwork
	buffer   *replay.Buffer
	recorder Recorder
	rng      *rand.Rand
}

// NewDeepQAgent creates an agent. The network itself is built lazily from
// factory on the first observation. A nil recorder discards metrics.
func NewDeepQAgent(name string, factory NetworkFactory, recorder Recorder, rng *rand.Rand) *DeepQAgent {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &DeepQAgent{
		name:     name,
		factory:  factory,
		recorder: recorder,
		rng:      rng,
	}
}

// Name returns the agent's name, used as the checkpoint subdirectory.
func (a *DeepQAgent) Name() string {
	return a.name
}

// ConvertObs flattens an observation into the network input: line loading
// ratios, then line status, then the topology vector.
func (a *DeepQAgent) ConvertObs(obs *grid.Observation) []float64 {
	state := make([]float64, 0, len(obs.Rho)+len(obs.LineStatus)+len(obs.TopoVect))
	state = append(state, obs.Rho...)
	state = append(state, obs.LineStatus...)
	state = append(state, obs.TopoVect...)
	return state
}

// Act returns the greedy action for an observation. Used for evaluation;
// the network must already exist (trained or loaded).
func (a *DeepQAgent) Act(obs *grid.Observation) (int, error) {
	if a.deepQ == nil {
		return 0, fmt.Errorf("agent %s has no network: train or load first", a.name)
	}
	action, _, err := a.deepQ.PredictMovement(a.ConvertObs(obs), 0)
	return action, err
}

// Save checkpoints the network under savePath/<agent name>.
func (a *DeepQAgent) Save(savePath string) error {
	if a.deepQ == nil {
		return fmt.Errorf("agent %s has no network to save", a.name)
	}
	return a.deepQ.Save(filepath.Join(savePath, a.name))
}

// Load builds the network for the given dimensions and restores weights
// from savePath/<agent name>.
func (a *DeepQAgent) Load(savePath string, obsSize, actionCount int) error {
	net, err := a.factory(obsSize, actionCount)
	if err != nil {
		return fmt.Errorf("failed to build network: %w", err)
	}
	if err := net.Load(filepath.Join(savePath, a.name)); err != nil {
		return err
	}
	a.deepQ = net
	return nil
}

// Train runs the training loop for the given number of iterations.
// savePath may be empty to disable checkpointing.
func (a *DeepQAgent) Train(env Environment, iterations int, savePath string, param TrainingParam) error {
	if err := param.Validate(); err != nil {
		return err
	}

	buffer, err := replay.NewBuffer(param.BufferSize, a.rng)
	if err != nil {
		return err
	}
	a.buffer = buffer

	epsilon := param.InitialEpsilon
	epsilonStep := (param.InitialEpsilon - param.FinalEpsilon) / float64(param.EpsilonDecaySteps)

	var (
		state         []float64
		done          bool
		epochNum      int
		episodeReward float64
		aliveFrames   int
		lastLoss      float64
		epochRewards  []float64
		epochAlive    []float64
	)

	for obsNum := 0; obsNum < iterations; obsNum++ {
		// Early in training episodes end quickly, so loading chronics in
		// small chunks avoids reading data the episode never reaches.
		if obsNum%1000 == 999 {
			chunk := 10000 * (iterations / obsNum)
			if chunk > 10000 {
				chunk = 10000
			}
			if chunk < 10 {
				chunk = 10
			}
			a.setChunk(env, chunk)
		}

		if done || obsNum == 0 {
			obs, err := env.Reset()
			if err != nil {
				return fmt.Errorf("environment reset failed: %w", err)
			}
			state = a.ConvertObs(obs)
			episodeReward = 0
			aliveFrames = 0
			epochNum++
			if epochNum%env.ChronicsCount() == 0 {
				env.ShuffleChronics()
			}
		}

		if epsilon > param.FinalEpsilon {
			epsilon -= epsilonStep
			if epsilon < param.FinalEpsilon {
				epsilon = param.FinalEpsilon
			}
		}

		if a.deepQ == nil {
			a.deepQ, err = a.factory(len(state), env.ActionCount())
			if err != nil {
				return fmt.Errorf("failed to build network: %w", err)
			}
		}

		action, _, err := a.deepQ.PredictMovement(state, epsilon)
		if err != nil {
			return fmt.Errorf("action selection failed: %w", err)
		}

		var reward float64
		done = false
		next := state
		for frame := 0; frame < param.NumFrames && !done; frame++ {
			obs, r, d, err := env.Step(action)
			if err != nil {
				return fmt.Errorf("environment step failed: %w", err)
			}
			next = a.ConvertObs(obs)
			reward += r
			done = d
			aliveFrames++
		}

		episodeReward += reward
		buffer.Add(replay.Transition{
			State:     state,
			Action:    action,
			Reward:    reward,
			Done:      done,
			NextState: next,
		})
		state = next

		if done {
			epochRewards = append(epochRewards, episodeReward)
			epochAlive = append(epochAlive, float64(aliveFrames))
			a.recorder.RecordEpisode(epochNum, env.EpisodeName(), episodeReward, aliveFrames)
		}

		if buffer.Size() > param.MinObservation {
			batch, err := buffer.Sample(param.MinibatchSize)
			if err != nil {
				return err
			}
			lastLoss, err = a.deepQ.Train(batch, obsNum)
			if err != nil {
				return fmt.Errorf("training step failed: %w", err)
			}
			a.deepQ.TargetTrain()
			if math.IsNaN(lastLoss) || math.IsInf(lastLoss, 0) {
				log.Printf("aborting training at iteration %d: loss=%v", obsNum, lastLoss)
				a.recorder.RecordStep(obsNum, epsilon, lastLoss)
				return ErrDivergence
			}
		}

		if savePath != "" && (obsNum%param.SavingNum == 0 || obsNum == iterations-1) {
			log.Printf("saving network at iteration %d", obsNum)
			if err := a.Save(savePath); err != nil {
				return fmt.Errorf("checkpoint failed: %w", err)
			}
		}

		if obsNum%param.UpdateFreq == 0 {
			a.recorder.RecordStep(obsNum, epsilon, lastLoss)
			a.recorder.RecordSummary(obsNum, epochNum, Summary{
				MeanReward30:  rollingMean(epochRewards, 30),
				MeanAlive30:   rollingMean(epochAlive, 30),
				MeanReward100: rollingMean(epochRewards, 100),
				MeanAlive100:  rollingMean(epochAlive, 100),
			})
		}
	}
	return nil
}

// setChunk forwards the chunk size with the floor the environment data
// pipeline expects.
func (a *DeepQAgent) setChunk(env Environment, n int) {
	if n < 100 {
		n = 100
	}
	env.SetChunkSize(n)
}

// rollingMean averages the last window values, or all of them when fewer
// are available. Returns 0 for an empty series.
func rollingMean(values []float64, window int) float64 {
	if len(values) == 0 {
		return 0
	}
	if window > len(values) {
		window = len(values)
	}
	var sum float64
	for _, v := range values[len(values)-window:] {
		sum += v
	}
	return sum / float64(window)
}
