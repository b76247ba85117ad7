package grid

import (
	"fmt"
	"io"
	"math"
)

const (
	// ActionDoNothing leaves the topology untouched for one step.
	ActionDoNothing = 0

	// Lines loaded above 100% for this many consecutive steps trip.
	overflowTripSteps = 3
	// Steps a tripped or disconnected line stays unavailable.
	reconnectCooldown = 10
)

// Observation is the per-step view of the grid the agent learns from:
// line loading ratios, line connection status, and the topology vector
// (busbar assignment of every load, generator and line end; -1 when the
// element is disconnected).
type Observation struct {
	Rho        []float64
	LineStatus []float64
	TopoVect   []float64
}

// Env simulates grid operation over replayed chronics. Each episode
// replays one chronic; the agent's discrete actions toggle line status.
// The episode ends when the grid islands, when more than half the lines
// are out, or when the chronic's data runs out.
type Env struct {
	c        *Case
	chronics Provider
	episode  Episode

	inService []bool
	overflow  []int
	cooldown  []int

	lastObs *Observation
	steps   int
}

// NewEnv creates an environment over the given case and chronics source.
func NewEnv(c *Case, chronics Provider) (*Env, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid case: %w", err)
	}
	if chronics.Count() == 0 {
		return nil, fmt.Errorf("chronics provider has no chronics")
	}
	return &Env{
		c:         c,
		chronics:  chronics,
		inService: make([]bool, len(c.Lines)),
		overflow:  make([]int, len(c.Lines)),
		cooldown:  make([]int, len(c.Lines)),
	}, nil
}

// ActionCount returns the size of the discrete action space:
// do-nothing plus one status toggle per line.
func (e *Env) ActionCount() int {
	return 1 + len(e.c.Lines)
}

// ChronicsCount returns the number of chronics available for replay.
func (e *Env) ChronicsCount() int {
	return e.chronics.Count()
}

// ShuffleChronics randomly permutes the chronics replay order.
func (e *Env) ShuffleChronics() {
	e.chronics.Shuffle()
}

// SetChunkSize controls how many chronic rows are loaded per disk read.
func (e *Env) SetChunkSize(n int) {
	e.chronics.SetChunkSize(n)
}

// EpisodeName returns the name of the chronic currently being replayed.
func (e *Env) EpisodeName() string {
	if e.episode == nil {
		return ""
	}
	return e.episode.Name()
}

// Steps returns the number of steps taken in the current episode.
func (e *Env) Steps() int {
	return e.steps
}

// Reset starts a new episode on the next chronic with the full topology
// restored, and returns the initial observation.
func (e *Env) Reset() (*Observation, error) {
	if e.episode != nil {
		if err := e.episode.Close(); err != nil {
			return nil, fmt.Errorf("failed to close chronic: %w", err)
		}
	}

	episode, err := e.chronics.Next()
	if err != nil {
		return nil, fmt.Errorf("failed to open next chronic: %w", err)
	}
	e.episode = episode
	e.steps = 0

	for i := range e.inService {
		e.inService[i] = true
		e.overflow[i] = 0
		e.cooldown[i] = 0
	}

	loadP, genP, err := e.episode.Step()
	if err != nil {
		return nil, fmt.Errorf("chronic %s has no data: %w", e.episode.Name(), err)
	}

	flows, err := solveDC(e.c, e.inService, loadP, genP)
	if err != nil {
		return nil, fmt.Errorf("initial power flow failed: %w", err)
	}

	e.lastObs = e.buildObservation(flows)
	return e.lastObs, nil
}

// Step applies one discrete action, advances the chronic by one timestep
// and recomputes the power flow. It returns the new observation, the
// reward, and whether the episode is over.
func (e *Env) Step(action int) (*Observation, float64, bool, error) {
	if e.episode == nil {
		return nil, 0, false, fmt.Errorf("environment must be reset before stepping")
	}
	if action < 0 || action >= e.ActionCount() {
		return nil, 0, false, fmt.Errorf("action %d out of range [0, %d)", action, e.ActionCount())
	}

	e.applyAction(action)

	loadP, genP, err := e.episode.Step()
	if err == io.EOF {
		// Chronic exhausted: the agent survived the full scenario.
		return e.lastObs, 0, true, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to advance chronic: %w", err)
	}
	e.steps++

	flows, err := solveDC(e.c, e.inService, loadP, genP)
	if err != nil {
		// Game over: the grid split into islands.
		e.lastObs = e.buildObservation(make([]float64, len(e.c.Lines)))
		return e.lastObs, 0, true, nil
	}

	obs := e.buildObservation(flows)
	e.updateOverflow(obs.Rho)

	if e.linesOut() > len(e.c.Lines)/2 {
		e.lastObs = obs
		return obs, 0, true, nil
	}

	e.lastObs = obs
	return obs, e.reward(obs.Rho), false, nil
}

// applyAction toggles the status of the selected line. Reconnection is
// refused while the line's cooldown is running.
func (e *Env) applyAction(action int) {
	if action == ActionDoNothing {
		return
	}
	li := action - 1
	if e.inService[li] {
		e.inService[li] = false
		e.cooldown[li] = reconnectCooldown
		e.overflow[li] = 0
	} else if e.cooldown[li] == 0 {
		e.inService[li] = true
	}
}

// updateOverflow advances per-line overflow counters and trips lines that
// stayed above their thermal limit too long. Cooldowns tick down here.
func (e *Env) updateOverflow(rho []float64) {
	for i := range e.c.Lines {
		if e.cooldown[i] > 0 {
			e.cooldown[i]--
		}
		if !e.inService[i] {
			continue
		}
		if rho[i] > 1.0 {
			e.overflow[i]++
			if e.overflow[i] >= overflowTripSteps {
				e.inService[i] = false
				e.cooldown[i] = reconnectCooldown
				e.overflow[i] = 0
			}
		} else {
			e.overflow[i] = 0
		}
	}
}

func (e *Env) linesOut() int {
	out := 0
	for _, s := range e.inService {
		if !s {
			out++
		}
	}
	return out
}

// reward is the mean capacity margin over in-service lines: a line at 0%
// loading contributes 1, a line at or above its limit contributes 0.
func (e *Env) reward(rho []float64) float64 {
	var sum float64
	var count int
	for i, s := range e.inService {
		if !s {
			continue
		}
		margin := 1.0 - math.Pow(math.Min(rho[i], 1.0), 2)
		sum += margin
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func (e *Env) buildObservation(flows []float64) *Observation {
	nLines := len(e.c.Lines)
	obs := &Observation{
		Rho:        make([]float64, nLines),
		LineStatus: make([]float64, nLines),
		TopoVect:   make([]float64, 2*nLines+len(e.c.Loads)+len(e.c.Generators)),
	}

	for i := range e.c.Lines {
		if e.inService[i] {
			obs.Rho[i] = math.Abs(flows[i]) / e.c.Lines[i].ThermalLimit
			obs.LineStatus[i] = 1
			obs.TopoVect[2*i] = 1
			obs.TopoVect[2*i+1] = 1
		} else {
			obs.TopoVect[2*i] = -1
			obs.TopoVect[2*i+1] = -1
		}
	}
	// Loads and generators stay on their busbar in this action space.
	for i := 2 * nLines; i < len(obs.TopoVect); i++ {
		obs.TopoVect[i] = 1
	}
	return obs
}
