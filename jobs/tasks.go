package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/campusflow/campusflow/internal/approval"
	jobmetrics "github.com/campusflow/campusflow/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskApprovalNotify delivers a committed approval transition to interested users.
	TaskApprovalNotify = "approval:notify"
)

// Notifier delivers approval events. Push and email delivery live outside
// this service and plug in here.
type Notifier interface {
	Notify(ctx context.Context, event approval.Event) error
}

// LogNotifier writes each event as a structured log line.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(ctx context.Context, event approval.Event) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "approval notification",
		slog.String("subject_id", event.SubjectID),
		slog.String("kind", string(event.Kind)),
		slog.String("owner_id", event.OwnerID),
		slog.String("actor_id", event.ActorID),
		slog.String("op", string(event.Op)),
		slog.String("from", string(event.From)),
		slog.String("to", string(event.To)))
	return nil
}

// NewApprovalNotifyTask constructs an Asynq task for an approval event.
func NewApprovalNotifyTask(event approval.Event) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskApprovalNotify, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// ApprovalNotifyJob handles TaskApprovalNotify tasks.
type ApprovalNotifyJob struct {
	Notifier Notifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// Handle processes TaskApprovalNotify tasks.
func (j *ApprovalNotifyJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Notifier == nil {
		return errors.New("approval notify: handler not configured")
	}
	tracker := j.Metrics.Track(TaskApprovalNotify)
	defer func() {
		err = tracker.End(err)
	}()
	var event approval.Event
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return fmt.Errorf("approval notify: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if event.SubjectID == "" {
		return fmt.Errorf("approval notify: empty subject id: %w", asynq.SkipRetry)
	}
	if err := j.Notifier.Notify(ctx, event); err != nil {
		if j.Logger != nil {
			j.Logger.Warn("approval notify", slog.String("subject_id", event.SubjectID), slog.Any("error", err))
		}
		return err
	}
	return nil
}
