package monitor

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/gridops/grid-dqn-trainer/internal/database"
	"github.com/gridops/grid-dqn-trainer/pkg/agent"
)

const (
	flushBatchSize = 100
	flushInterval  = 5 * time.Second
)

// run status values
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusDiverged  = "diverged"
)

// Collector stores training metrics in the database. It implements
// agent.Recorder; step metrics are buffered and flushed by size or age so
// the training loop is not blocked on every write.
type Collector struct {
	repo  *database.Repository
	runID string

	buffer    []database.StepMetric
	lastFlush time.Time

	// summary values carried into the next step metric row
	epoch   int
	summary agent.Summary
}

// NewCollector creates a TrainingRun record and returns a collector bound
// to it. configJSON is stored verbatim for later inspection.
func NewCollector(repo *database.Repository, name, description, configJSON string) (*Collector, error) {
	run := &database.TrainingRun{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		StartTime:   time.Now(),
		Status:      StatusRunning,
		Config:      configJSON,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if err := repo.CreateRun(run); err != nil {
		return nil, fmt.Errorf("failed to create training run: %w", err)
	}

	return &Collector{
		repo:      repo,
		runID:     run.ID,
		buffer:    make([]database.StepMetric, 0, flushBatchSize),
		lastFlush: time.Now(),
	}, nil
}

// RunID returns the ID of the training run this collector writes to.
func (c *Collector) RunID() string {
	return c.runID
}

// RecordStep buffers a step metric row.
func (c *Collector) RecordStep(step int, epsilon, loss float64) {
	c.buffer = append(c.buffer, database.StepMetric{
		RunID:         c.runID,
		Step:          step,
		Epsilon:       epsilon,
		Loss:          loss,
		Epoch:         c.epoch,
		MeanReward30:  c.summary.MeanReward30,
		MeanAlive30:   c.summary.MeanAlive30,
		MeanReward100: c.summary.MeanReward100,
		MeanAlive100:  c.summary.MeanAlive100,
		CreatedAt:     time.Now(),
	})

	if len(c.buffer) >= flushBatchSize || time.Since(c.lastFlush) > flushInterval {
		if err := c.flush(); err != nil {
			log.Printf("Warning: failed to flush step metrics: %v", err)
		}
	}
}

// RecordEpisode writes an episode record immediately; episodes are far
// rarer than steps.
func (c *Collector) RecordEpisode(epoch int, chronic string, reward float64, aliveFrames int) {
	err := c.repo.SaveEpisode(&database.EpisodeRecord{
		RunID:       c.runID,
		Epoch:       epoch,
		Chronic:     chronic,
		Reward:      reward,
		AliveFrames: aliveFrames,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		log.Printf("Warning: failed to save episode record: %v", err)
	}
}

// RecordSummary keeps the latest rolling statistics; they ride along with
// subsequent step metrics.
func (c *Collector) RecordSummary(step, epoch int, s agent.Summary) {
	c.epoch = epoch
	c.summary = s
}

// RecordEvent writes a run lifecycle event.
func (c *Collector) RecordEvent(eventType, severity, message string) {
	err := c.repo.SaveEvent(&database.Event{
		RunID:     c.runID,
		EventType: eventType,
		Severity:  severity,
		Message:   message,
		CreatedAt: time.Now(),
	})
	if err != nil {
		log.Printf("Warning: failed to save event: %v", err)
	}
}

func (c *Collector) flush() error {
	if len(c.buffer) == 0 {
		return nil
	}
	if err := c.repo.BatchSaveStepMetrics(c.buffer); err != nil {
		return err
	}
	c.buffer = c.buffer[:0]
	c.lastFlush = time.Now()
	return nil
}

// Close flushes pending metrics and marks the run with the final status.
func (c *Collector) Close(status string) error {
	if err := c.flush(); err != nil {
		return err
	}
	return c.repo.EndRun(c.runID, status)
}
