package approval

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of an approval subject.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusSubmitted   Status = "submitted"
	StatusHODApproved Status = "hod_approved"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusCancelled   Status = "cancelled"
)

// Legacy spellings still found in persisted rows.
const (
	legacyPending           = "pending"
	legacyPrincipalApproved = "principal_approved"
)

// ParseStatus normalises a persisted status string.
func ParseStatus(raw string) (Status, error) {
	switch s := strings.ToLower(strings.TrimSpace(raw)); s {
	case legacyPending:
		return StatusSubmitted, nil
	case legacyPrincipalApproved:
		return StatusApproved, nil
	case string(StatusDraft), string(StatusSubmitted), string(StatusHODApproved),
		string(StatusApproved), string(StatusRejected), string(StatusCancelled):
		return Status(s), nil
	default:
		return "", fmt.Errorf("approval: unknown status %q", raw)
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusCancelled
}

// Kind identifies the domain an approval subject belongs to.
type Kind string

const (
	KindLessonPlanner       Kind = "lesson_planner"
	KindWorkDiary           Kind = "work_diary"
	KindLeaveApplication    Kind = "leave_application"
	KindSubstitutionRequest Kind = "substitution_request"
)

// Subject is a single approvable record.
type Subject struct {
	ID              string          `json:"id"`
	Kind            Kind            `json:"kind"`
	OwnerID         string          `json:"owner_id"`
	Status          Status          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	SubmittedAt     *time.Time      `json:"submitted_at,omitempty"`
	Level1At        *time.Time      `json:"level1_at,omitempty"`
	Level1By        *string         `json:"level1_by,omitempty"`
	DecidedAt       *time.Time      `json:"decided_at,omitempty"`
	DecidedBy       *string         `json:"decided_by,omitempty"`
	RejectionReason *string         `json:"rejection_reason,omitempty"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	Version         int64           `json:"version"`
}

// ListFilter narrows ListSubjects.
type ListFilter struct {
	Kinds    []Kind
	Statuses []Status
	OwnerID  string
	Limit    int
}

var (
	// ErrUnauthorized indicates the actor may not perform the transition.
	ErrUnauthorized = errors.New("approval: unauthorized")
	// ErrInvalidTransition indicates the current status forbids the operation.
	ErrInvalidTransition = errors.New("approval: invalid state transition")
	// ErrMissingReason indicates a rejection without a reason.
	ErrMissingReason = errors.New("approval: rejection reason required")
	// ErrNotFound indicates the subject does not exist.
	ErrNotFound = errors.New("approval: subject not found")
	// ErrConflict indicates another transition changed the subject first.
	ErrConflict = errors.New("approval: concurrent modification")
	// ErrUnavailable indicates the store could not be reached in time.
	ErrUnavailable = errors.New("approval: repository unavailable")
	// ErrOutcomeUnknown indicates a save timed out and may or may not have applied.
	ErrOutcomeUnknown = fmt.Errorf("%w: outcome unknown, re-fetch the subject before retrying", ErrUnavailable)
	// ErrSelfDecision indicates the actor tried to decide on their own subject.
	ErrSelfDecision = fmt.Errorf("%w: self-decision", ErrUnauthorized)
	// ErrUnknownKind indicates an unsupported subject kind.
	ErrUnknownKind = errors.New("approval: unknown subject kind")
)

// Op names a state machine operation.
type Op string

const (
	OpSubmit        Op = "submit"
	OpApproveLevel1 Op = "approve_level1"
	OpApproveFinal  Op = "approve_final"
	OpReject        Op = "reject"
	OpResubmit      Op = "resubmit"
	OpCancel        Op = "cancel"
)

// TransitionError describes a refused transition.
type TransitionError struct {
	Op        Op
	SubjectID string
	From      Status
	Err       error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %s from %s: %v", e.Op, e.SubjectID, e.From, e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }
