/**
 * @description
 * Scheduled job implementations for the scheduler process.
 */
package scheduler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/config"
	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/domain"
	"github.com/yaairnaavaa/veridoc-ai-sub000/pkg/releaseclient"
)

// ReleaseTrigger defines the interface for invoking an escrow release run.
type ReleaseTrigger interface {
	TriggerRelease(ctx context.Context) (*domain.ReleaseSummary, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	release ReleaseTrigger
	logger  *slog.Logger
	config  config.SchedulerConfig
}

// NewJobs creates a new Jobs runner.
func NewJobs(release ReleaseTrigger, logger *slog.Logger, cfg config.SchedulerConfig) *Jobs {
	return &Jobs{
		release: release,
		logger:  logger,
		config:  cfg,
	}
}

// ProcessEscrowRelease triggers one escrow release run and logs its outcome.
func (j *Jobs) ProcessEscrowRelease() {
	j.logger.Info("starting escrow release job")
	ctx, cancel := context.WithTimeout(context.Background(), j.config.RequestTimeout())
	defer cancel()

	summary, err := j.release.TriggerRelease(ctx)
	if err != nil {
		if errors.Is(err, releaseclient.ErrUnauthorized) {
			j.logger.Error("escrow release trigger rejected the shared secret; check RELEASE_TRIGGER_SECRET", "error", err)
			return
		}
		j.logger.Error("failed to trigger escrow release", "error", err)
		return
	}

	if summary.Total == 0 {
		j.logger.Info("no consultations ready for release")
		return
	}

	for _, released := range summary.ReleasedConsultations {
		j.logger.Info("consultation released", "consultation_id", released.ConsultationID, "tx_hash", released.TxHash)
	}
	for _, itemErr := range summary.Errors {
		j.logger.Error("consultation release failed", "consultation_id", itemErr.ConsultationID, "error", itemErr.Error)
	}

	j.logger.Info("escrow release job finished", "released", summary.Released, "total", summary.Total, "errors", len(summary.Errors))
}
