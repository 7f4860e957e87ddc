package approval

import (
	"strings"
	"time"

	"github.com/campusflow/campusflow/internal/rbac"
)

// The functions below are the only mutators of Subject.Status. Each takes the
// subject by value and returns the transitioned copy; on error the returned
// subject is the zero value and the input is left as it was.
//
// Checks run in a fixed order: status legality, then actor eligibility, then
// the rejection reason.

// Submit moves a draft into the approval chain.
func Submit(s Subject, actor rbac.Principal, now time.Time) (Subject, error) {
	if _, err := chainOf(OpSubmit, s); err != nil {
		return Subject{}, err
	}
	if s.Status != StatusDraft {
		return Subject{}, refuse(OpSubmit, s, ErrInvalidTransition)
	}
	if !isOwner(s, actor) {
		return Subject{}, refuse(OpSubmit, s, ErrUnauthorized)
	}
	return enterChain(s, now), nil
}

// ApproveLevel1 records the intermediate approval of a two-level chain.
func ApproveLevel1(s Subject, actor rbac.Principal, now time.Time) (Subject, error) {
	chain, err := chainOf(OpApproveLevel1, s)
	if err != nil {
		return Subject{}, err
	}
	if !chain.TwoLevel() || s.Status != StatusSubmitted {
		return Subject{}, refuse(OpApproveLevel1, s, ErrInvalidTransition)
	}
	if err := checkDecider(s, actor, chain.Level1Permission); err != nil {
		return Subject{}, refuse(OpApproveLevel1, s, err)
	}
	at := now.UTC()
	by := actor.UserID
	s.Status = StatusHODApproved
	s.Level1At = &at
	s.Level1By = &by
	s.Version++
	return s, nil
}

// ApproveFinal records the terminal approval.
func ApproveFinal(s Subject, actor rbac.Principal, now time.Time) (Subject, error) {
	chain, err := chainOf(OpApproveFinal, s)
	if err != nil {
		return Subject{}, err
	}
	want := StatusSubmitted
	if chain.TwoLevel() {
		want = StatusHODApproved
	}
	if s.Status != want {
		return Subject{}, refuse(OpApproveFinal, s, ErrInvalidTransition)
	}
	if err := checkDecider(s, actor, chain.FinalPermission); err != nil {
		return Subject{}, refuse(OpApproveFinal, s, err)
	}
	return decide(s, StatusApproved, actor, now, nil), nil
}

// Reject declines the subject at whichever level is pending.
func Reject(s Subject, actor rbac.Principal, reason string, now time.Time) (Subject, error) {
	chain, err := chainOf(OpReject, s)
	if err != nil {
		return Subject{}, err
	}
	perm, pending := chain.PendingPermission(s.Status)
	if !pending {
		return Subject{}, refuse(OpReject, s, ErrInvalidTransition)
	}
	if err := checkDecider(s, actor, perm); err != nil {
		return Subject{}, refuse(OpReject, s, err)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Subject{}, refuse(OpReject, s, ErrMissingReason)
	}
	return decide(s, StatusRejected, actor, now, &reason), nil
}

// Resubmit returns a rejected subject to the front of its chain.
func Resubmit(s Subject, actor rbac.Principal, now time.Time) (Subject, error) {
	if _, err := chainOf(OpResubmit, s); err != nil {
		return Subject{}, err
	}
	if s.Status != StatusRejected {
		return Subject{}, refuse(OpResubmit, s, ErrInvalidTransition)
	}
	if !isOwner(s, actor) {
		return Subject{}, refuse(OpResubmit, s, ErrUnauthorized)
	}
	return enterChain(s, now), nil
}

// Cancel withdraws an undecided subject on chains that allow it.
func Cancel(s Subject, actor rbac.Principal, now time.Time) (Subject, error) {
	chain, err := chainOf(OpCancel, s)
	if err != nil {
		return Subject{}, err
	}
	if !chain.Cancellable || s.Status != StatusSubmitted {
		return Subject{}, refuse(OpCancel, s, ErrInvalidTransition)
	}
	if !isOwner(s, actor) {
		return Subject{}, refuse(OpCancel, s, ErrUnauthorized)
	}
	at := now.UTC()
	s.Status = StatusCancelled
	s.DecidedAt = &at
	s.Version++
	return s, nil
}

// Allowed reports the operations the actor could currently perform, ignoring
// the rejection reason.
func Allowed(s Subject, actor rbac.Principal) []Op {
	var ops []Op
	var zero time.Time
	if _, err := Submit(s, actor, zero); err == nil {
		ops = append(ops, OpSubmit)
	}
	if _, err := ApproveLevel1(s, actor, zero); err == nil {
		ops = append(ops, OpApproveLevel1)
	}
	if _, err := ApproveFinal(s, actor, zero); err == nil {
		ops = append(ops, OpApproveFinal)
	}
	if _, err := Reject(s, actor, "-", zero); err == nil {
		ops = append(ops, OpReject)
	}
	if _, err := Resubmit(s, actor, zero); err == nil {
		ops = append(ops, OpResubmit)
	}
	if _, err := Cancel(s, actor, zero); err == nil {
		ops = append(ops, OpCancel)
	}
	return ops
}

func chainOf(op Op, s Subject) (Chain, error) {
	chain, ok := ChainFor(s.Kind)
	if !ok {
		return Chain{}, refuse(op, s, ErrUnknownKind)
	}
	return chain, nil
}

func refuse(op Op, s Subject, err error) error {
	return &TransitionError{Op: op, SubjectID: s.ID, From: s.Status, Err: err}
}

func isOwner(s Subject, actor rbac.Principal) bool {
	return actor.UserID != "" && actor.UserID == s.OwnerID
}

// checkDecider never lets an actor decide on their own subject, super_admin included.
func checkDecider(s Subject, actor rbac.Principal, perm rbac.Permission) error {
	switch {
	case actor.UserID == "":
		return ErrUnauthorized
	case actor.UserID == s.OwnerID:
		return ErrSelfDecision
	case !actor.Can(perm):
		return ErrUnauthorized
	}
	return nil
}

func enterChain(s Subject, now time.Time) Subject {
	at := now.UTC()
	s.Status = StatusSubmitted
	s.SubmittedAt = &at
	s.Level1At = nil
	s.Level1By = nil
	s.DecidedAt = nil
	s.DecidedBy = nil
	s.RejectionReason = nil
	s.Version++
	return s
}

func decide(s Subject, to Status, actor rbac.Principal, now time.Time, reason *string) Subject {
	at := now.UTC()
	by := actor.UserID
	s.Status = to
	s.DecidedAt = &at
	s.DecidedBy = &by
	s.RejectionReason = reason
	s.Version++
	return s
}
