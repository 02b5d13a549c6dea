package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/propdesk/propdesk/internal/rbac"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSeedPolicy re-applies the default permission catalog and roles.
	TaskTypeSeedPolicy = "rbac:seed_policy"
	// TaskTypeDefaultRoleBackfill grants the default role to users with none.
	TaskTypeDefaultRoleBackfill = "rbac:default_role_backfill"
	// TaskTypeExpiredAssignmentSweep deletes long-expired role assignments.
	TaskTypeExpiredAssignmentSweep = "rbac:expired_assignment_sweep"
)

// SeedPolicyPayload carries scheduling metadata for a policy seed run.
type SeedPolicyPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewSeedPolicyTask constructs an Asynq task that re-runs the policy seeder.
func NewSeedPolicyTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SeedPolicyPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSeedPolicy, body, asynq.Queue(QueueDefault)), nil
}

// NewSeedPolicyHandler processes TaskTypeSeedPolicy tasks. The seeder is
// idempotent so replays are harmless.
func NewSeedPolicyHandler(seeder *rbac.Seeder, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SeedPolicyPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if err := seeder.Run(ctx); err != nil {
			logger.Error("seed policy job failed", slog.Any("error", err))
			return err
		}
		logger.Info("seed policy job done",
			slog.String("scheduled_for", payload.ScheduledFor.Format(time.RFC3339)))
		return nil
	}
}

// DefaultRoleBackfillPayload carries scheduling metadata for a backfill run.
type DefaultRoleBackfillPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewDefaultRoleBackfillTask constructs an Asynq task that assigns the
// default role to users who hold no role at all.
func NewDefaultRoleBackfillTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(DefaultRoleBackfillPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDefaultRoleBackfill, body, asynq.Queue(QueueDefault)), nil
}

// NewDefaultRoleBackfillHandler processes TaskTypeDefaultRoleBackfill tasks.
func NewDefaultRoleBackfillHandler(seeder *rbac.Seeder, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload DefaultRoleBackfillPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		granted, err := seeder.BackfillDefaultRole(ctx)
		if err != nil {
			logger.Error("default role backfill failed", slog.Any("error", err))
			return err
		}
		if granted > 0 {
			logger.Info("default role backfill done", slog.Int64("granted", granted))
		}
		return nil
	}
}

// SweepExpiredAssignments deletes role assignments whose expiry passed more
// than the retention window ago. Live evaluation already ignores expired
// rows; this only keeps the table small.
func SweepExpiredAssignments(ctx context.Context, pool *pgxpool.Pool, retention time.Duration, logger *slog.Logger) (int64, error) {
	if pool == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-retention)
	tag, err := pool.Exec(ctx, `DELETE FROM user_roles WHERE expires_at IS NOT NULL AND expires_at < $1`, cutoff)
	if err != nil {
		if logger != nil {
			logger.Error("sweep expired assignments", slog.Any("error", err))
		}
		return 0, err
	}
	removed := tag.RowsAffected()
	if logger != nil && removed > 0 {
		logger.Info("swept expired assignments", slog.Int64("removed", removed))
	}
	return removed, nil
}

// NewExpiredAssignmentSweepHandler processes TaskTypeExpiredAssignmentSweep
// tasks with a 30 day retention window.
func NewExpiredAssignmentSweepHandler(pool *pgxpool.Pool, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		_, err := SweepExpiredAssignments(ctx, pool, 30*24*time.Hour, logger)
		return err
	}
}
