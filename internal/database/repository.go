package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// CreateRun creates a new training run record
func (r *Repository) CreateRun(run *TrainingRun) error {
	return r.db.Create(run).Error
}

// GetRun retrieves a training run by ID
func (r *Repository) GetRun(id string) (*TrainingRun, error) {
	var run TrainingRun
	err := r.db.First(&run, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns lists all training runs, newest first
func (r *Repository) ListRuns() ([]TrainingRun, error) {
	var runs []TrainingRun
	err := r.db.Order("created_at DESC").Find(&runs).Error
	return runs, err
}

// EndRun marks a training run as finished with the given status
func (r *Repository) EndRun(id string, status string) error {
	now := time.Now()
	return r.db.Model(&TrainingRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"end_time": now,
			"status":   status,
		}).Error
}

// SaveStepMetric saves a step metric snapshot
func (r *Repository) SaveStepMetric(metric *StepMetric) error {
	return r.db.Create(metric).Error
}

// BatchSaveStepMetrics saves multiple step metrics efficiently
func (r *Repository) BatchSaveStepMetrics(metrics []StepMetric) error {
	if len(metrics) == 0 {
		return nil
	}
	return r.db.CreateInBatches(metrics, 100).Error
}

// GetStepMetrics retrieves step metrics for a run, newest first
func (r *Repository) GetStepMetrics(runID string, limit int) ([]StepMetric, error) {
	var metrics []StepMetric
	query := r.db.Where("run_id = ?", runID).Order("step DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&metrics).Error
	return metrics, err
}

// SaveEpisode saves an episode record
func (r *Repository) SaveEpisode(episode *EpisodeRecord) error {
	return r.db.Create(episode).Error
}

// GetEpisodes retrieves episode records for a run
func (r *Repository) GetEpisodes(runID string, limit int) ([]EpisodeRecord, error) {
	var episodes []EpisodeRecord
	query := r.db.Where("run_id = ?", runID).Order("epoch DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&episodes).Error
	return episodes, err
}

// SaveEvent saves a run event
func (r *Repository) SaveEvent(event *Event) error {
	return r.db.Create(event).Error
}

// GetEvents retrieves events for a run
func (r *Repository) GetEvents(runID string, eventType string) ([]Event, error) {
	var events []Event
	query := r.db.Where("run_id = ?", runID)

	if eventType != "" {
		query = query.Where("event_type = ?", eventType)
	}

	err := query.Order("created_at DESC").Find(&events).Error
	return events, err
}

// GetRunSummary gets aggregated stats for a training run
func (r *Repository) GetRunSummary(runID string) (map[string]interface{}, error) {
	summary := make(map[string]interface{})

	run, err := r.GetRun(runID)
	if err != nil {
		return nil, err
	}
	summary["run"] = run

	var stats struct {
		TotalEpisodes int64
		BestReward    float64
		MeanReward    float64
		BestAlive     int
		MeanAlive     float64
		LastLoss      float64
	}

	r.db.Model(&EpisodeRecord{}).
		Where("run_id = ?", runID).
		Count(&stats.TotalEpisodes)

	r.db.Model(&EpisodeRecord{}).
		Where("run_id = ?", runID).
		Select("MAX(reward) as best_reward, AVG(reward) as mean_reward, " +
			"MAX(alive_frames) as best_alive, AVG(alive_frames) as mean_alive").
		Scan(&stats)

	var last StepMetric
	if err := r.db.Where("run_id = ?", runID).Order("step DESC").First(&last).Error; err == nil {
		stats.LastLoss = last.Loss
	}

	summary["statistics"] = stats
	return summary, nil
}

// DeleteRun deletes a training run and all related data
func (r *Repository) DeleteRun(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", id).Delete(&StepMetric{}).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", id).Delete(&EpisodeRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", id).Delete(&Event{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&TrainingRun{}).Error
	})
}

// GetLatestStepMetric gets the most recent metric snapshot for a run
func (r *Repository) GetLatestStepMetric(runID string) (*StepMetric, error) {
	var metric StepMetric
	err := r.db.Where("run_id = ?", runID).
		Order("step DESC").
		First(&metric).Error

	if err != nil {
		return nil, fmt.Errorf("failed to get latest step metric: %w", err)
	}

	return &metric, nil
}
