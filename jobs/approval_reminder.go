package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/campusflow/campusflow/internal/approval"
	jobmetrics "github.com/campusflow/campusflow/internal/jobs"
)

// TaskApprovalReminder summarises undecided subjects once a day.
const TaskApprovalReminder = "approval:reminder"

// QueueCounter reports undecided subjects per kind.
type QueueCounter interface {
	QueueSizes(ctx context.Context) (map[approval.Kind]int, error)
}

// ApprovalReminderJob logs and exports approval queue sizes.
type ApprovalReminderJob struct {
	Queue   QueueCounter
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// NewApprovalReminderTask builds the reminder task registered with the scheduler.
func NewApprovalReminderTask() *asynq.Task {
	return asynq.NewTask(TaskApprovalReminder, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}

// Handle processes TaskApprovalReminder tasks.
func (j *ApprovalReminderJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Queue == nil {
		return errors.New("approval reminder: handler not configured")
	}
	tracker := j.Metrics.Track(TaskApprovalReminder)
	defer func() {
		err = tracker.End(err)
	}()

	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sizes, err := j.Queue.QueueSizes(runCtx)
	if err != nil {
		j.logger().Error("approval reminder", slog.Any("error", err))
		return err
	}
	total := 0
	for _, kind := range approval.Kinds() {
		n := sizes[kind]
		total += n
		j.Metrics.SetQueueDepth(string(kind), n)
		if n > 0 {
			j.logger().Info("approvals awaiting decision", slog.String("kind", string(kind)), slog.Int("count", n))
		}
	}
	j.logger().Info("approval reminder complete", slog.Int("pending", total))
	return nil
}

func (j *ApprovalReminderJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
