package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/campusflow/campusflow/internal/rbac"
	"github.com/campusflow/campusflow/internal/shared"
)

// RepositoryPort describes subject persistence used by Service.
type RepositoryPort interface {
	LoadSubject(ctx context.Context, id string) (Subject, error)
	// SaveSubject fails with ErrConflict when the stored status or version no
	// longer matches what the caller loaded.
	SaveSubject(ctx context.Context, s Subject, expected Status, expectedVersion int64) error
	CreateSubject(ctx context.Context, s Subject) error
	ListSubjects(ctx context.Context, f ListFilter) ([]Subject, error)
}

// RolesPort resolves the caller's current roles.
type RolesPort interface {
	Principal(ctx context.Context, userID string) (rbac.Principal, error)
}

// HistoryPort persists the approval log.
type HistoryPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	List(ctx context.Context, subjectID string) ([]shared.ApprovalLog, error)
}

// Publisher fans committed transitions out to background delivery.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// MetricsPort counts transition attempts.
type MetricsPort interface {
	ObserveTransition(kind, op, outcome string)
}

// Event describes a committed transition.
type Event struct {
	SubjectID string    `json:"subject_id"`
	Kind      Kind      `json:"kind"`
	OwnerID   string    `json:"owner_id"`
	ActorID   string    `json:"actor_id"`
	Op        Op        `json:"op"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// ServiceConfig tunes Service behaviour.
type ServiceConfig struct {
	// RepositoryTimeout bounds every repository call. Zero disables the bound.
	RepositoryTimeout time.Duration
}

// Service runs approval transitions against the repository.
type Service struct {
	repo      RepositoryPort
	roles     RolesPort
	history   HistoryPort
	publisher Publisher
	metrics   MetricsPort
	cfg       ServiceConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the approval service.
func NewService(repo RepositoryPort, roles RolesPort, history HistoryPort, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, roles: roles, history: history, cfg: cfg, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SetPublisher attaches the notification publisher.
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

// SetMetrics attaches the metrics sink.
func (s *Service) SetMetrics(m MetricsPort) {
	s.metrics = m
}

// CreateInput describes a new subject.
type CreateInput struct {
	Kind    Kind
	Payload json.RawMessage
}

// Create opens a subject owned by the actor. Kinds without a draft stage are
// created directly in submitted.
func (s *Service) Create(ctx context.Context, actorID string, in CreateInput) (Subject, error) {
	chain, ok := ChainFor(in.Kind)
	if !ok {
		return Subject{}, ErrUnknownKind
	}
	actor, err := s.principal(ctx, actorID)
	if err != nil {
		return Subject{}, err
	}
	if !actor.Can(chain.CreatePermission) {
		return Subject{}, ErrUnauthorized
	}
	now := s.now().UTC()
	subject := Subject{
		ID:        uuid.NewString(),
		Kind:      in.Kind,
		OwnerID:   actor.UserID,
		Status:    chain.InitialStatus(),
		CreatedAt: now,
		Payload:   in.Payload,
		Version:   1,
	}
	if subject.Status == StatusSubmitted {
		subject.SubmittedAt = &now
	}
	repoCtx, cancel := s.repoContext(ctx)
	defer cancel()
	if err := s.repo.CreateSubject(repoCtx, subject); err != nil {
		if timedOut(repoCtx, err) {
			return Subject{}, ErrOutcomeUnknown
		}
		return Subject{}, fmt.Errorf("approval: create subject: %w", err)
	}
	if subject.Status == StatusSubmitted {
		s.afterCommit(ctx, OpSubmit, actor, "", subject, "")
	}
	return subject, nil
}

// Submit moves a draft into its chain.
func (s *Service) Submit(ctx context.Context, actorID, subjectID string) (Subject, error) {
	return s.transition(ctx, OpSubmit, actorID, subjectID, "", Submit)
}

// ApproveLevel1 applies the intermediate approval.
func (s *Service) ApproveLevel1(ctx context.Context, actorID, subjectID string) (Subject, error) {
	return s.transition(ctx, OpApproveLevel1, actorID, subjectID, "", ApproveLevel1)
}

// ApproveFinal applies the terminal approval.
func (s *Service) ApproveFinal(ctx context.Context, actorID, subjectID string) (Subject, error) {
	return s.transition(ctx, OpApproveFinal, actorID, subjectID, "", ApproveFinal)
}

// Reject declines the subject with a reason.
func (s *Service) Reject(ctx context.Context, actorID, subjectID, reason string) (Subject, error) {
	return s.transition(ctx, OpReject, actorID, subjectID, reason,
		func(sub Subject, actor rbac.Principal, now time.Time) (Subject, error) {
			return Reject(sub, actor, reason, now)
		})
}

// Resubmit restarts a rejected subject.
func (s *Service) Resubmit(ctx context.Context, actorID, subjectID string) (Subject, error) {
	return s.transition(ctx, OpResubmit, actorID, subjectID, "", Resubmit)
}

// Cancel withdraws an undecided subject.
func (s *Service) Cancel(ctx context.Context, actorID, subjectID string) (Subject, error) {
	return s.transition(ctx, OpCancel, actorID, subjectID, "", Cancel)
}

// Get returns a subject visible to the actor.
func (s *Service) Get(ctx context.Context, actorID, subjectID string) (Subject, error) {
	actor, err := s.principal(ctx, actorID)
	if err != nil {
		return Subject{}, err
	}
	subject, err := s.load(ctx, subjectID)
	if err != nil {
		return Subject{}, err
	}
	if !canView(subject, actor) {
		return Subject{}, ErrUnauthorized
	}
	return subject, nil
}

// ListOwned returns the actor's own subjects.
func (s *Service) ListOwned(ctx context.Context, actorID string, kind Kind) ([]Subject, error) {
	f := ListFilter{OwnerID: actorID}
	if kind != "" {
		f.Kinds = []Kind{kind}
	}
	return s.list(ctx, f)
}

// ListQueue returns subjects awaiting a level the actor may decide,
// excluding the actor's own.
func (s *Service) ListQueue(ctx context.Context, actorID string, kind Kind) ([]Subject, error) {
	actor, err := s.principal(ctx, actorID)
	if err != nil {
		return nil, err
	}
	f := ListFilter{Statuses: []Status{StatusSubmitted, StatusHODApproved}}
	if kind != "" {
		f.Kinds = []Kind{kind}
	}
	pending, err := s.list(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]Subject, 0, len(pending))
	for _, sub := range pending {
		chain, ok := ChainFor(sub.Kind)
		if !ok {
			continue
		}
		perm, ok := chain.PendingPermission(sub.Status)
		if ok && checkDecider(sub, actor, perm) == nil {
			out = append(out, sub)
		}
	}
	return out, nil
}

// QueueSizes counts undecided subjects per kind.
func (s *Service) QueueSizes(ctx context.Context) (map[Kind]int, error) {
	pending, err := s.list(ctx, ListFilter{Statuses: []Status{StatusSubmitted, StatusHODApproved}})
	if err != nil {
		return nil, err
	}
	sizes := make(map[Kind]int, len(chains))
	for _, k := range Kinds() {
		sizes[k] = 0
	}
	for _, sub := range pending {
		sizes[sub.Kind]++
	}
	return sizes, nil
}

// History returns the approval log of a subject visible to the actor.
func (s *Service) History(ctx context.Context, actorID, subjectID string) ([]shared.ApprovalLog, error) {
	if _, err := s.Get(ctx, actorID, subjectID); err != nil {
		return nil, err
	}
	if s.history == nil {
		return nil, nil
	}
	repoCtx, cancel := s.repoContext(ctx)
	defer cancel()
	logs, err := s.history.List(repoCtx, subjectID)
	if err != nil {
		if timedOut(repoCtx, err) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, err
	}
	return logs, nil
}

type transitionFunc func(Subject, rbac.Principal, time.Time) (Subject, error)

func (s *Service) transition(ctx context.Context, op Op, actorID, subjectID, reason string, apply transitionFunc) (Subject, error) {
	actor, err := s.principal(ctx, actorID)
	if err != nil {
		return Subject{}, err
	}
	current, err := s.load(ctx, subjectID)
	if err != nil {
		return Subject{}, err
	}
	next, err := apply(current, actor, s.now())
	if err != nil {
		s.observe(current.Kind, op, "refused")
		return Subject{}, err
	}

	repoCtx, cancel := s.repoContext(ctx)
	defer cancel()
	if err := s.repo.SaveSubject(repoCtx, next, current.Status, current.Version); err != nil {
		switch {
		case errors.Is(err, ErrConflict), errors.Is(err, ErrNotFound):
			s.observe(current.Kind, op, "conflict")
			return Subject{}, &TransitionError{Op: op, SubjectID: current.ID, From: current.Status, Err: err}
		case timedOut(repoCtx, err):
			s.observe(current.Kind, op, "unknown")
			s.logger.Warn("approval save outcome unknown",
				slog.String("subject_id", current.ID),
				slog.String("op", string(op)),
				slog.Any("error", err))
			return Subject{}, &TransitionError{Op: op, SubjectID: current.ID, From: current.Status, Err: ErrOutcomeUnknown}
		default:
			s.observe(current.Kind, op, "error")
			return Subject{}, fmt.Errorf("approval: save subject: %w", err)
		}
	}
	s.afterCommit(ctx, op, actor, current.Status, next, reason)
	return next, nil
}

// afterCommit runs side effects that must never undo or fail a committed transition.
func (s *Service) afterCommit(ctx context.Context, op Op, actor rbac.Principal, from Status, sub Subject, reason string) {
	s.observe(sub.Kind, op, "ok")
	at := s.now().UTC()
	if s.history != nil {
		if err := s.history.Record(ctx, shared.ApprovalLog{
			Kind:      string(sub.Kind),
			SubjectID: sub.ID,
			ActorID:   actor.UserID,
			Action:    historyAction(op),
			Note:      reason,
			At:        at,
		}); err != nil {
			s.logger.Warn("record approval history", slog.String("subject_id", sub.ID), slog.Any("error", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, Event{
			SubjectID: sub.ID,
			Kind:      sub.Kind,
			OwnerID:   sub.OwnerID,
			ActorID:   actor.UserID,
			Op:        op,
			From:      from,
			To:        sub.Status,
			Reason:    reason,
			At:        at,
		}); err != nil {
			s.logger.Warn("publish approval event", slog.String("subject_id", sub.ID), slog.Any("error", err))
		}
	}
}

func (s *Service) principal(ctx context.Context, actorID string) (rbac.Principal, error) {
	if actorID == "" {
		return rbac.Principal{}, ErrUnauthorized
	}
	repoCtx, cancel := s.repoContext(ctx)
	defer cancel()
	actor, err := s.roles.Principal(repoCtx, actorID)
	if err != nil {
		if timedOut(repoCtx, err) {
			return rbac.Principal{}, fmt.Errorf("%w: load roles: %v", ErrUnavailable, err)
		}
		return rbac.Principal{}, err
	}
	return actor, nil
}

func (s *Service) load(ctx context.Context, id string) (Subject, error) {
	repoCtx, cancel := s.repoContext(ctx)
	defer cancel()
	subject, err := s.repo.LoadSubject(repoCtx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Subject{}, ErrNotFound
		}
		if timedOut(repoCtx, err) {
			return Subject{}, fmt.Errorf("%w: load subject: %v", ErrUnavailable, err)
		}
		return Subject{}, fmt.Errorf("approval: load subject: %w", err)
	}
	return subject, nil
}

func (s *Service) list(ctx context.Context, f ListFilter) ([]Subject, error) {
	repoCtx, cancel := s.repoContext(ctx)
	defer cancel()
	subjects, err := s.repo.ListSubjects(repoCtx, f)
	if err != nil {
		if timedOut(repoCtx, err) {
			return nil, fmt.Errorf("%w: list subjects: %v", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("approval: list subjects: %w", err)
	}
	return subjects, nil
}

func (s *Service) repoContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RepositoryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.RepositoryTimeout)
}

func (s *Service) observe(kind Kind, op Op, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(string(kind), string(op), outcome)
	}
}

func timedOut(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil
}

func canView(sub Subject, actor rbac.Principal) bool {
	if sub.OwnerID == actor.UserID || actor.Can(rbac.PermApprovalQueueOverview) {
		return true
	}
	chain, ok := ChainFor(sub.Kind)
	if !ok {
		return false
	}
	if chain.TwoLevel() && actor.Can(chain.Level1Permission) {
		return true
	}
	return actor.Can(chain.FinalPermission)
}

func historyAction(op Op) shared.ApprovalAction {
	switch op {
	case OpSubmit:
		return shared.ApprovalSubmit
	case OpApproveLevel1:
		return shared.ApprovalApproveLevel1
	case OpApproveFinal:
		return shared.ApprovalApprove
	case OpReject:
		return shared.ApprovalReject
	case OpResubmit:
		return shared.ApprovalResubmit
	default:
		return shared.ApprovalCancel
	}
}
