package replay

import (
	"errors"
	"math/rand"
)

// Transition is a single agent-environment interaction, immutable once stored.
type Transition struct {
	State     []float64
	Action    int
	Reward    float64
	Done      bool
	NextState []float64
}

// Batch holds a sampled minibatch as parallel slices, in the layout the
// network training step consumes.
type Batch struct {
	States     [][]float64
	Actions    []int
	Rewards    []float64
	Dones      []bool
	NextStates [][]float64
}

// Len returns the number of transitions in the batch.
func (b Batch) Len() int {
	return len(b.Actions)
}

var ErrEmptyBuffer = errors.New("replay buffer is empty")

// Buffer is a fixed-capacity circular store of past transitions.
// When full, the oldest transition is evicted. Sampling is uniform
// with replacement across the stored window.
type Buffer struct {
	transitions []Transition
	capacity    int
	position    int
	size        int
	rng         *rand.Rand
}

// NewBuffer creates a buffer holding at most capacity transitions.
// A nil rng falls back to a randomly seeded source.
func NewBuffer(capacity int, rng *rand.Rand) (*Buffer, error) {
	if capacity <= 0 {
		return nil, errors.New("capacity must be greater than zero")
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Buffer{
		transitions: make([]Transition, capacity),
		capacity:    capacity,
		rng:         rng,
	}, nil
}

// Add stores a transition, evicting the oldest one if the buffer is full.
func (b *Buffer) Add(t Transition) {
	b.transitions[b.position] = t
	b.position = (b.position + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Sample draws a uniform random minibatch. It never returns more
// transitions than are currently stored.
func (b *Buffer) Sample(batchSize int) (Batch, error) {
	if b.size == 0 {
		return Batch{}, ErrEmptyBuffer
	}
	if batchSize > b.size {
		batchSize = b.size
	}

	batch := Batch{
		States:     make([][]float64, batchSize),
		Actions:    make([]int, batchSize),
		Rewards:    make([]float64, batchSize),
		Dones:      make([]bool, batchSize),
		NextStates: make([][]float64, batchSize),
	}
	for i := 0; i < batchSize; i++ {
		t := b.transitions[b.rng.Intn(b.size)]
		batch.States[i] = t.State
		batch.Actions[i] = t.Action
		batch.Rewards[i] = t.Reward
		batch.Dones[i] = t.Done
		batch.NextStates[i] = t.NextState
	}
	return batch, nil
}

// Size returns the number of transitions currently stored.
func (b *Buffer) Size() int {
	return b.size
}

// Capacity returns the maximum number of transitions the buffer can hold.
func (b *Buffer) Capacity() int {
	return b.capacity
}
