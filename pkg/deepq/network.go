package deepq

import (
	"encoding/gob"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/gridops/grid-dqn-trainer/pkg/replay"
)

func init() {
	gob.Register(&tensor.Dense{})
	gob.Register(map[string]*tensor.Dense{})
}

const weightsFileName = "weights.gob"

// Config holds the network hyperparameters.
type Config struct {
	InputSize    int     `json:"input_size"`
	ActionCount  int     `json:"action_count"`
	Hidden1      int     `json:"hidden_1"`
	Hidden2      int     `json:"hidden_2"`
	LearningRate float64 `json:"learning_rate"`
	Discount     float64 `json:"discount"`
	Tau          float64 `json:"tau"`
	GradientClip float64 `json:"gradient_clip"`
}

// DefaultConfig returns the network defaults for the given state and
// action dimensions.
func DefaultConfig(inputSize, actionCount int) Config {
	return Config{
		InputSize:    inputSize,
		ActionCount:  actionCount,
		Hidden1:      128,
		Hidden2:      64,
		LearningRate: 1e-5,
		Discount:     0.99,
		Tau:          0.01,
		GradientClip: 1.0,
	}
}

// DeepQ is a feed-forward action-value network with a target copy for
// stable TD targets. Both networks are three-layer MLPs with ReLU
// activations; training uses Adam on an MSE TD loss.
type DeepQ struct {
	cfg    Config
	online *weights
	target *weights
	solver gorgonia.Solver
	rng    *rand.Rand
}

// weights holds the parameter tensors of one network in a fixed order:
// w1, b1, w2, b2, w3, b3.
type weights struct {
	params []*tensor.Dense
}

var paramNames = []string{"w1", "b1", "w2", "b2", "w3", "b3"}

// New creates a DeepQ network with Glorot-initialized weights. The target
// network starts as an exact copy of the online network.
func New(cfg Config, rng *rand.Rand) (*DeepQ, error) {
	if cfg.InputSize <= 0 || cfg.ActionCount <= 0 {
		return nil, fmt.Errorf("invalid network dimensions: input=%d actions=%d", cfg.InputSize, cfg.ActionCount)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	online := newWeights(cfg)
	target := newWeights(cfg)
	target.copyFrom(online, 1.0)

	return &DeepQ{
		cfg:    cfg,
		online: online,
		target: target,
		solver: gorgonia.NewAdamSolver(
			gorgonia.WithLearnRate(cfg.LearningRate),
			gorgonia.WithL2Reg(1e-6),
		),
		rng: rng,
	}, nil
}

// newWeights initializes parameter tensors through a scratch graph so the
// Glorot initializer applies.
func newWeights(cfg Config) *weights {
	g := gorgonia.NewGraph()
	shapes := [][2]int{
		{cfg.InputSize, cfg.Hidden1},
		{1, cfg.Hidden1},
		{cfg.Hidden1, cfg.Hidden2},
		{1, cfg.Hidden2},
		{cfg.Hidden2, cfg.ActionCount},
		{1, cfg.ActionCount},
	}

	w := &weights{params: make([]*tensor.Dense, len(shapes))}
	for i, shape := range shapes {
		var init gorgonia.InitWFn
		if i%2 == 0 {
			init = gorgonia.GlorotU(1.0)
		} else {
			init = gorgonia.Zeroes()
		}
		node := gorgonia.NewMatrix(g,
			tensor.Float64,
			gorgonia.WithShape(shape[0], shape[1]),
			gorgonia.WithInit(init))
		w.params[i] = node.Value().(*tensor.Dense)
	}
	return w
}

// copyFrom blends source parameters into w: w = tau*src + (1-tau)*w.
// tau=1 is a hard copy.
func (w *weights) copyFrom(src *weights, tau float64) {
	for i := range w.params {
		dst := w.params[i].Data().([]float64)
		from := src.params[i].Data().([]float64)
		for j := range dst {
			dst[j] = tau*from[j] + (1-tau)*dst[j]
		}
	}
}

// forward builds the MLP on graph g over the given input node, returning
// the prediction node and the parameter nodes (in case gradients are
// needed). Parameter nodes share backing storage with the stored tensors.
func (w *weights) forward(g *gorgonia.ExprGraph, input *gorgonia.Node) (*gorgonia.Node, gorgonia.Nodes, error) {
	nodes := make(gorgonia.Nodes, len(w.params))
	for i, p := range w.params {
		nodes[i] = gorgonia.NewMatrix(g,
			tensor.Float64,
			gorgonia.WithShape(p.Shape()...),
			gorgonia.WithValue(p),
			gorgonia.WithName(fmt.Sprintf("%s_%p", paramNames[i], p)))
	}

	h1, err := fullyConnected(input, nodes[0], nodes[1], true)
	if err != nil {
		return nil, nil, fmt.Errorf("layer 1: %w", err)
	}
	h2, err := fullyConnected(h1, nodes[2], nodes[3], true)
	if err != nil {
		return nil, nil, fmt.Errorf("layer 2: %w", err)
	}
	out, err := fullyConnected(h2, nodes[4], nodes[5], false)
	if err != nil {
		return nil, nil, fmt.Errorf("output layer: %w", err)
	}
	return out, nodes, nil
}

func fullyConnected(x, w, b *gorgonia.Node, relu bool) (*gorgonia.Node, error) {
	h, err := gorgonia.Mul(x, w)
	if err != nil {
		return nil, err
	}
	h, err = gorgonia.BroadcastAdd(h, b, nil, []byte{0})
	if err != nil {
		return nil, err
	}
	if relu {
		return gorgonia.Rectify(h)
	}
	return h, nil
}

// predict runs a forward pass without gradients and returns the flat
// action values, batchSize*ActionCount long.
func (dq *DeepQ) predict(net *weights, states []float64, batchSize int) ([]float64, error) {
	if len(states) != batchSize*dq.cfg.InputSize {
		return nil, fmt.Errorf("state length %d does not match batch %d x input %d", len(states), batchSize, dq.cfg.InputSize)
	}

	g := gorgonia.NewGraph()
	input := gorgonia.NodeFromAny(g,
		tensor.New(tensor.WithBacking(states), tensor.WithShape(batchSize, dq.cfg.InputSize)),
		gorgonia.WithName("states"))

	pred, _, err := net.forward(g, input)
	if err != nil {
		return nil, err
	}

	vm := gorgonia.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return nil, fmt.Errorf("forward pass failed: %w", err)
	}

	out := make([]float64, batchSize*dq.cfg.ActionCount)
	copy(out, pred.Value().Data().([]float64))
	return out, nil
}

// PredictMovement implements epsilon-greedy action selection: with
// probability epsilon a uniformly random action, otherwise the argmax of
// the online network's action values. It returns the chosen action and
// its predicted value.
func (dq *DeepQ) PredictMovement(state []float64, epsilon float64) (int, float64, error) {
	qValues, err := dq.predict(dq.online, state, 1)
	if err != nil {
		return 0, 0, err
	}

	action := argmax(qValues)
	if epsilon > 0 && dq.rng.Float64() < epsilon {
		action = dq.rng.Intn(dq.cfg.ActionCount)
	}
	return action, qValues[action], nil
}

// Train performs one gradient step on a minibatch using the standard DQN
// target r + gamma*max_a' Q_target(s', a'), with zero bootstrap on
// terminal transitions. Returns the minibatch loss.
func (dq *DeepQ) Train(batch replay.Batch, step int) (float64, error) {
	n := batch.Len()
	if n == 0 {
		return 0, fmt.Errorf("empty training batch")
	}

	states := flatten(batch.States, dq.cfg.InputSize)
	nextStates := flatten(batch.NextStates, dq.cfg.InputSize)

	nextQ, err := dq.predict(dq.target, nextStates, n)
	if err != nil {
		return 0, fmt.Errorf("target prediction failed: %w", err)
	}
	currentQ, err := dq.predict(dq.online, states, n)
	if err != nil {
		return 0, fmt.Errorf("online prediction failed: %w", err)
	}

	// TD targets differ from the current prediction only at the taken action.
	targets := make([]float64, len(currentQ))
	copy(targets, currentQ)
	for i := 0; i < n; i++ {
		y := batch.Rewards[i]
		if !batch.Dones[i] {
			maxNext := nextQ[i*dq.cfg.ActionCount]
			for a := 1; a < dq.cfg.ActionCount; a++ {
				if v := nextQ[i*dq.cfg.ActionCount+a]; v > maxNext {
					maxNext = v
				}
			}
			y += dq.cfg.Discount * maxNext
		}
		targets[i*dq.cfg.ActionCount+batch.Actions[i]] = y
	}

	g := gorgonia.NewGraph()
	input := gorgonia.NodeFromAny(g,
		tensor.New(tensor.WithBacking(states), tensor.WithShape(n, dq.cfg.InputSize)),
		gorgonia.WithName("states"))

	pred, params, err := dq.online.forward(g, input)
	if err != nil {
		return 0, err
	}

	targetNode := gorgonia.NodeFromAny(g,
		tensor.New(tensor.WithBacking(targets), tensor.WithShape(n, dq.cfg.ActionCount)),
		gorgonia.WithName("targets"))

	diff, err := gorgonia.Sub(pred, targetNode)
	if err != nil {
		return 0, err
	}
	sq, err := gorgonia.Square(diff)
	if err != nil {
		return 0, err
	}
	loss, err := gorgonia.Mean(sq)
	if err != nil {
		return 0, err
	}

	if _, err := gorgonia.Grad(loss, params...); err != nil {
		return 0, fmt.Errorf("failed to build gradients: %w", err)
	}

	vm := gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(params...))
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return 0, fmt.Errorf("training pass failed: %w", err)
	}

	grads := gorgonia.NodesToValueGrads(params)
	dq.clipGradients(grads)
	if err := dq.solver.Step(grads); err != nil {
		return 0, fmt.Errorf("solver step failed: %w", err)
	}

	return loss.Value().Data().(float64), nil
}

// clipGradients rescales individual gradient entries exceeding the
// configured threshold.
func (dq *DeepQ) clipGradients(grads []gorgonia.ValueGrad) {
	if dq.cfg.GradientClip <= 0 {
		return
	}
	for _, vg := range grads {
		grad, err := vg.Grad()
		if err != nil {
			continue
		}
		t, ok := grad.(tensor.Tensor)
		if !ok {
			continue
		}
		data := t.Data().([]float64)
		for i := range data {
			if math.Abs(data[i]) > dq.cfg.GradientClip {
				data[i] *= dq.cfg.GradientClip / math.Abs(data[i])
			}
		}
	}
}

// TargetTrain soft-updates the target network toward the online network:
// theta_target = tau*theta + (1-tau)*theta_target.
func (dq *DeepQ) TargetTrain() {
	dq.target.copyFrom(dq.online, dq.cfg.Tau)
}

// Save writes the online network weights under dir, creating it if needed.
func (dq *DeepQ) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, weightsFileName))
	if err != nil {
		return fmt.Errorf("failed to create weights file: %w", err)
	}
	defer f.Close()

	snapshot := make(map[string]*tensor.Dense, len(dq.online.params))
	for i, p := range dq.online.params {
		snapshot[paramNames[i]] = p
	}
	if err := gob.NewEncoder(f).Encode(snapshot); err != nil {
		return fmt.Errorf("failed to encode weights: %w", err)
	}
	return nil
}

// Load restores weights saved by Save into both the online and target
// networks.
func (dq *DeepQ) Load(dir string) error {
	f, err := os.Open(filepath.Join(dir, weightsFileName))
	if err != nil {
		return fmt.Errorf("failed to open weights file: %w", err)
	}
	defer f.Close()

	var snapshot map[string]*tensor.Dense
	if err := gob.NewDecoder(f).Decode(&snapshot); err != nil {
		return fmt.Errorf("failed to decode weights: %w", err)
	}

	for i, name := range paramNames {
		saved, ok := snapshot[name]
		if !ok {
			return fmt.Errorf("weights file is missing parameter %q", name)
		}
		if !saved.Shape().Eq(dq.online.params[i].Shape()) {
			return fmt.Errorf("parameter %q has shape %v, expected %v", name, saved.Shape(), dq.online.params[i].Shape())
		}
		if err := tensor.Copy(dq.online.params[i], saved); err != nil {
			return fmt.Errorf("failed to restore parameter %q: %w", name, err)
		}
		if err := tensor.Copy(dq.target.params[i], saved); err != nil {
			return fmt.Errorf("failed to restore target parameter %q: %w", name, err)
		}
	}
	return nil
}

func argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}

func flatten(rows [][]float64, width int) []float64 {
	out := make([]float64, 0, len(rows)*width)
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}
