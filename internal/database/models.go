package database

import (
	"time"
)

// TrainingRun represents a single training run of the agent.
type TrainingRun struct {
	ID          string     `json:"id" gorm:"primaryKey"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	Status      string     `json:"status"` // running, completed, failed, diverged
	Config      string     `json:"config"` // JSON training parameters
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// StepMetric represents a point-in-time snapshot of the training loop.
type StepMetric struct {
	ID    uint   `json:"id" gorm:"primaryKey"`
	RunID string `json:"run_id" gorm:"index"`
	Step  int    `json:"step" gorm:"index"`

	Epsilon float64 `json:"epsilon"`
	Loss    float64 `json:"loss"`

	// Rolling episode statistics at this step
	Epoch         int     `json:"epoch"`
	MeanReward30  float64 `json:"mean_reward_30"`
	MeanAlive30   float64 `json:"mean_alive_30"`
	MeanReward100 float64 `json:"mean_reward_100"`
	MeanAlive100  float64 `json:"mean_alive_100"`

	CreatedAt time.Time `json:"created_at"`
}

// EpisodeRecord represents one completed episode.
type EpisodeRecord struct {
	ID    uint   `json:"id" gorm:"primaryKey"`
	RunID string `json:"run_id" gorm:"index"`

	Epoch       int     `json:"epoch" gorm:"index"`
	Chronic     string  `json:"chronic"`
	Reward      float64 `json:"reward"`
	AliveFrames int     `json:"alive_frames"`

	CreatedAt time.Time `json:"created_at"`
}

// Event represents run lifecycle events (checkpoints, divergence, errors).
type Event struct {
	ID    uint   `json:"id" gorm:"primaryKey"`
	RunID string `json:"run_id" gorm:"index"`

	EventType string `json:"event_type"` // checkpoint, divergence, error
	Severity  string `json:"severity"`   // info, warning, error
	Message   string `json:"message"`

	CreatedAt time.Time `json:"created_at"`
}
