package shared

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ApprovalAction enumerates approval log actions.
type ApprovalAction string

const (
	// ApprovalSubmit marks a submit action.
	ApprovalSubmit ApprovalAction = "SUBMIT"
	// ApprovalApproveLevel1 marks the first approval of a two-level chain.
	ApprovalApproveLevel1 ApprovalAction = "APPROVE_L1"
	// ApprovalApprove marks a final approve action.
	ApprovalApprove ApprovalAction = "APPROVE"
	// ApprovalReject marks a reject action.
	ApprovalReject ApprovalAction = "REJECT"
	// ApprovalResubmit marks a resubmission after rejection.
	ApprovalResubmit ApprovalAction = "RESUBMIT"
	// ApprovalCancel marks an owner cancellation.
	ApprovalCancel ApprovalAction = "CANCEL"
)

// ApprovalLog represents a single approval record.
type ApprovalLog struct {
	ID        int64          `json:"id"`
	Kind      string         `json:"kind"`
	SubjectID string         `json:"subject_id"`
	ActorID   string         `json:"actor_id"`
	Action    ApprovalAction `json:"action"`
	Note      string         `json:"note,omitempty"`
	At        time.Time      `json:"at"`
}

// Validate checks mandatory fields.
func (l ApprovalLog) Validate() error {
	if l.Kind == "" {
		return errors.New("approval kind required")
	}
	if l.ActorID == "" {
		return errors.New("approval actor required")
	}
	if l.SubjectID == "" {
		return errors.New("approval subject id required")
	}
	if l.Action == "" {
		return errors.New("approval action required")
	}
	return nil
}

// ApprovalRecorder persists approval history.
type ApprovalRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewApprovalRecorder constructs ApprovalRecorder.
func NewApprovalRecorder(pool *pgxpool.Pool, logger *slog.Logger) *ApprovalRecorder {
	return &ApprovalRecorder{pool: pool, logger: logger}
}

// Record writes approval entry to database.
func (r *ApprovalRecorder) Record(ctx context.Context, log ApprovalLog) error {
	if r == nil || r.pool == nil {
		return errors.New("approval recorder not initialised")
	}
	if err := log.Validate(); err != nil {
		return err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO approval_logs (kind, subject_id, actor_id, action, note, at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`, log.Kind, log.SubjectID, log.ActorID, string(log.Action), log.Note, at)
	if err != nil {
		if r.logger != nil {
			r.logger.Error("record approval", slog.Any("error", err))
		}
		return err
	}
	return nil
}

// List returns approvals for a subject in chronological order.
func (r *ApprovalRecorder) List(ctx context.Context, subjectID string) ([]ApprovalLog, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("approval recorder not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, kind, subject_id, actor_id, action, note, at
FROM approval_logs WHERE subject_id=$1 ORDER BY at ASC, id ASC`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []ApprovalLog
	for rows.Next() {
		var l ApprovalLog
		var action string
		if err := rows.Scan(&l.ID, &l.Kind, &l.SubjectID, &l.ActorID, &action, &l.Note, &l.At); err != nil {
			return nil, err
		}
		l.Action = ApprovalAction(action)
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

// MemoryApprovalLog keeps approval history in process memory.
type MemoryApprovalLog struct {
	mu   sync.Mutex
	logs []ApprovalLog
}

// NewMemoryApprovalLog constructs an empty MemoryApprovalLog.
func NewMemoryApprovalLog() *MemoryApprovalLog {
	return &MemoryApprovalLog{}
}

// Record appends the entry, stamping id and time when missing.
func (m *MemoryApprovalLog) Record(ctx context.Context, log ApprovalLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	log.ID = int64(len(m.logs) + 1)
	if log.At.IsZero() {
		log.At = time.Now().UTC()
	}
	m.logs = append(m.logs, log)
	return nil
}

// List returns the entries of a subject in the order they were recorded.
func (m *MemoryApprovalLog) List(ctx context.Context, subjectID string) ([]ApprovalLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ApprovalLog
	for _, l := range m.logs {
		if l.SubjectID == subjectID {
			out = append(out, l)
		}
	}
	return out, nil
}
