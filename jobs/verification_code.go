package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jonboulle/clockwork"

	jobmetrics "github.com/tasklane/tasklane/internal/jobs"
)

// VerificationCodeJob mails step-up verification codes.
type VerificationCodeJob struct {
	mailer  Mailer
	logger  *slog.Logger
	clock   clockwork.Clock
	metrics *jobmetrics.Metrics
}

// NewVerificationCodeJob constructs the job handler.
func NewVerificationCodeJob(mailer Mailer, logger *slog.Logger, clock clockwork.Clock, metrics *jobmetrics.Metrics) *VerificationCodeJob {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &VerificationCodeJob{mailer: mailer, logger: logger, clock: clock, metrics: metrics}
}

// Handle processes TaskTypeSendVerificationCode tasks.
func (j *VerificationCodeJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload VerificationCodePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("jobs: decode verification payload: %v: %w", err, asynq.SkipRetry)
	}
	ttl := time.Duration(payload.ExpiresIn) * time.Second
	if !payload.IssuedAt.IsZero() && j.clock.Since(payload.IssuedAt) >= ttl {
		j.logger.Warn("verification code expired before delivery", slog.String("admin_id", payload.AdminID))
		j.metrics.Drop(TaskTypeSendVerificationCode, "expired")
		return nil
	}

	tracker := j.metrics.Track(TaskTypeSendVerificationCode)

	minutes := max(1, payload.ExpiresIn/60)
	msg := Message{
		To:      payload.To,
		Subject: "Your Tasklane verification code",
		Body: fmt.Sprintf("Hi %s,\n\nYour verification code is %s.\nIt expires in %d minute(s). If you did not try to sign in, ignore this email.\n",
			payload.Name, payload.Code, minutes),
	}
	if err := j.mailer.Send(ctx, msg); err != nil {
		j.logger.Warn("send verification code", slog.String("admin_id", payload.AdminID), slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger.Info("verification code sent", slog.String("admin_id", payload.AdminID))
	return tracker.End(nil)
}
