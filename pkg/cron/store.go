package cron

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hearthstack/mcfleet/pkg/errs"
	"github.com/hearthstack/mcfleet/pkg/types"
)

// store wraps the gorm handle for the two cron tables. All writes go
// through here so the manager never touches gorm directly.
type store struct {
	db *gorm.DB
}

func openStore(dsn string) (*store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("cron: open sqlite database %q: %w", dsn, err)
	}
	if err := runMigrations(db); err != nil {
		return nil, err
	}
	return &store{db: db}, nil
}

func (s *store) close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *store) listJobs() ([]types.CronJob, error) {
	var jobs []types.CronJob
	if err := s.db.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("cron: list jobs: %w", err)
	}
	return jobs, nil
}

func (s *store) getJob(cronJobID string) (*types.CronJob, error) {
	var job types.CronJob
	err := s.db.First(&job, "cronjob_id = ?", cronJobID).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		return nil, errs.NotFoundf("cron job %q not found", cronJobID)
	case err != nil:
		return nil, fmt.Errorf("cron: get job %s: %w", cronJobID, err)
	}
	return &job, nil
}

// upsertJob inserts a new row or, for a recovery re-submit, overwrites the
// existing one in place.
func (s *store) upsertJob(job *types.CronJob) error {
	now := time.Now().UTC()
	job.UpdatedAt = now
	var existing types.CronJob
	err := s.db.First(&existing, "cronjob_id = ?", job.CronJobID).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		job.CreatedAt = now
		if err := s.db.Create(job).Error; err != nil {
			return fmt.Errorf("cron: create job %s: %w", job.CronJobID, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("cron: lookup job %s: %w", job.CronJobID, err)
	default:
		job.CreatedAt = existing.CreatedAt
		job.ExecutionCount = existing.ExecutionCount
		if err := s.db.Save(job).Error; err != nil {
			return fmt.Errorf("cron: update job %s: %w", job.CronJobID, err)
		}
		return nil
	}
}

func (s *store) setStatus(cronJobID string, status types.CronJobStatus) error {
	err := s.db.Model(&types.CronJob{}).
		Where("cronjob_id = ?", cronJobID).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()}).Error
	if err != nil {
		return fmt.Errorf("cron: set status on job %s: %w", cronJobID, err)
	}
	return nil
}

func (s *store) incrementExecutionCount(cronJobID string) error {
	err := s.db.Model(&types.CronJob{}).
		Where("cronjob_id = ?", cronJobID).
		UpdateColumn("execution_count", gorm.Expr("execution_count + 1")).Error
	if err != nil {
		return fmt.Errorf("cron: increment execution count on job %s: %w", cronJobID, err)
	}
	return nil
}

func (s *store) insertExecution(exec *types.CronExecution) error {
	if err := s.db.Create(exec).Error; err != nil {
		return fmt.Errorf("cron: insert execution %s: %w", exec.ExecutionID, err)
	}
	return nil
}

func (s *store) updateExecution(exec *types.CronExecution) error {
	if err := s.db.Save(exec).Error; err != nil {
		return fmt.Errorf("cron: update execution %s: %w", exec.ExecutionID, err)
	}
	return nil
}

func (s *store) listExecutions(cronJobID string) ([]types.CronExecution, error) {
	var execs []types.CronExecution
	err := s.db.Where("cronjob_id = ?", cronJobID).Order("started_at desc").Find(&execs).Error
	if err != nil {
		return nil, fmt.Errorf("cron: list executions for job %s: %w", cronJobID, err)
	}
	return execs, nil
}
