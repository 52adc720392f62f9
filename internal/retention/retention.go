package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/aliuyar1234/pmdash/internal/audit"
	"github.com/aliuyar1234/pmdash/internal/db"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultRetentionDays applies when the configured value is not positive.
	DefaultRetentionDays = 30

	// ProductionSchedule runs the job daily at 03:00 UTC.
	ProductionSchedule = "0 3 * * *"
	// DevSchedule runs the job every minute.
	DevSchedule = "* * * * *"
)

// PurgeInvitations deletes invitations that can no longer change state and
// have been idle for more than retentionDays: accepted and canceled rows by
// their last update, pending or expired rows by their expiry. Pending rows
// inside the window are left alone so lazy expiry keeps reporting them as
// expired.
//
// Returns the number of rows deleted.
func PurgeInvitations(ctx context.Context, q db.DBTX, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}

	result, err := q.Exec(ctx, `
		DELETE FROM invitations
		WHERE (status IN ('accepted', 'canceled') AND updated_at < NOW() - INTERVAL '1 day' * $1)
		   OR (status IN ('pending', 'expired') AND expires_at < NOW() - INTERVAL '1 day' * $1)
	`, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("failed to purge invitations: %w", err)
	}

	return result.RowsAffected(), nil
}

// Job runs the invitation purge and records it in the audit log.
type Job struct {
	db            db.DBTX
	auditor       *audit.Writer
	retentionDays int
}

// NewJob creates the retention job.
func NewJob(q db.DBTX, auditor *audit.Writer, retentionDays int) *Job {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Job{db: q, auditor: auditor, retentionDays: retentionDays}
}

// Run executes one purge pass.
func (j *Job) Run(ctx context.Context) error {
	log.Info().Int("retention_days", j.retentionDays).Msg("Starting retention job")
	startTime := time.Now()

	deleted, err := PurgeInvitations(ctx, j.db, j.retentionDays)
	if err != nil {
		log.Error().Err(err).Msg("Failed to purge invitations")
		return fmt.Errorf("invitation cleanup failed: %w", err)
	}

	if deleted > 0 && j.auditor != nil {
		if err := j.auditor.LogInvitationsPurged(ctx, deleted, j.retentionDays); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}
	}

	log.Info().
		Int64("invitations_deleted", deleted).
		Dur("duration", time.Since(startTime)).
		Msg("Retention job completed")

	return nil
}

// Schedule registers job on a new UTC cron scheduler. The caller starts and
// stops the returned scheduler.
func Schedule(job *Job, dev bool) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(time.UTC))

	schedule := ProductionSchedule
	if dev {
		schedule = DevSchedule
	}

	_, err := c.AddFunc(schedule, func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Retention job panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := job.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Retention job failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule retention job: %w", err)
	}

	return c, nil
}
