//go:build integration

package approval_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campusflow/campusflow/internal/approval"
	"github.com/campusflow/campusflow/internal/platform/db/dbtest"
	"github.com/campusflow/campusflow/internal/rbac"
	"github.com/campusflow/campusflow/internal/shared"
)

func TestRepositoryCompareAndSwap(t *testing.T) {
	pool := dbtest.Start(t)
	repo := approval.NewRepository(pool)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	subject := approval.Subject{
		ID:        "lp-cas",
		Kind:      approval.KindLessonPlanner,
		OwnerID:   "teacherA",
		Status:    approval.StatusDraft,
		CreatedAt: now,
		Payload:   json.RawMessage(`{"week":3}`),
		Version:   1,
	}
	require.NoError(t, repo.CreateSubject(ctx, subject))
	require.ErrorIs(t, repo.CreateSubject(ctx, subject), approval.ErrConflict)

	loaded, err := repo.LoadSubject(ctx, "lp-cas")
	require.NoError(t, err)
	require.Equal(t, approval.StatusDraft, loaded.Status)
	require.JSONEq(t, `{"week":3}`, string(loaded.Payload))

	submitted := loaded
	submitted.Status = approval.StatusSubmitted
	submitted.SubmittedAt = &now
	submitted.Version++
	require.NoError(t, repo.SaveSubject(ctx, submitted, approval.StatusDraft, 1))

	// the stored status moved on, so a stale writer loses
	require.ErrorIs(t, repo.SaveSubject(ctx, submitted, approval.StatusDraft, 1), approval.ErrConflict)

	missing := submitted
	missing.ID = "nope"
	require.ErrorIs(t, repo.SaveSubject(ctx, missing, approval.StatusSubmitted, 2), approval.ErrNotFound)

	// right status, wrong version: the subject moved on and came back
	stale := submitted
	stale.Status = approval.StatusHODApproved
	stale.Version = 3
	require.ErrorIs(t, repo.SaveSubject(ctx, stale, approval.StatusSubmitted, 1), approval.ErrConflict)
	require.NoError(t, repo.SaveSubject(ctx, stale, approval.StatusSubmitted, 2))

	_, err = repo.LoadSubject(ctx, "nope")
	require.ErrorIs(t, err, approval.ErrNotFound)
}

func TestRepositoryLegacyStatuses(t *testing.T) {
	pool := dbtest.Start(t)
	repo := approval.NewRepository(pool)
	ctx := context.Background()

	_, err := pool.Exec(ctx, `INSERT INTO approval_subjects (id, kind, owner_id, status)
VALUES ('legacy-1', 'work_diary', 'teacherA', 'pending'), ('legacy-2', 'work_diary', 'teacherA', 'principal_approved')`)
	require.NoError(t, err)

	s, err := repo.LoadSubject(ctx, "legacy-1")
	require.NoError(t, err)
	require.Equal(t, approval.StatusSubmitted, s.Status)

	s, err = repo.LoadSubject(ctx, "legacy-2")
	require.NoError(t, err)
	require.Equal(t, approval.StatusApproved, s.Status)

	queue, err := repo.ListSubjects(ctx, approval.ListFilter{
		Kinds:    []approval.Kind{approval.KindWorkDiary},
		Statuses: []approval.Status{approval.StatusSubmitted},
	})
	require.NoError(t, err)
	require.Len(t, queue, 1)
	require.Equal(t, "legacy-1", queue[0].ID)

	// a legacy pending row still satisfies a submitted expectation
	s, err = repo.LoadSubject(ctx, "legacy-1")
	require.NoError(t, err)
	s.Status = approval.StatusHODApproved
	s.Version++
	require.NoError(t, repo.SaveSubject(ctx, s, approval.StatusSubmitted, s.Version-1))
}

func TestServiceOverPostgres(t *testing.T) {
	pool := dbtest.Start(t)
	ctx := context.Background()

	assignments := rbac.NewRepository(pool)
	for _, a := range []rbac.RoleAssignment{
		{UserID: "teacherA", Role: rbac.RoleSubjectTeacher},
		{UserID: "hod1", Role: rbac.RoleHOD},
		{UserID: "principal1", Role: rbac.RolePrincipal},
	} {
		_, err := assignments.CreateAssignment(ctx, a)
		require.NoError(t, err)
	}
	history := shared.NewApprovalRecorder(pool, nil)
	svc := approval.NewService(approval.NewRepository(pool), rbac.NewService(assignments, shared.NewAuditLogger(pool)),
		history, approval.ServiceConfig{RepositoryTimeout: 5 * time.Second}, nil)

	subject, err := svc.Create(ctx, "teacherA", approval.CreateInput{Kind: approval.KindLessonPlanner})
	require.NoError(t, err)
	_, err = svc.Submit(ctx, "teacherA", subject.ID)
	require.NoError(t, err)

	// two reviewers race the same level; exactly one wins
	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ApproveLevel1(ctx, "hod1", subject.ID)
		}(i)
	}
	wg.Wait()
	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		require.Truef(t, errors.Is(err, approval.ErrConflict) || errors.Is(err, approval.ErrInvalidTransition), "unexpected error %v", err)
	}
	require.Equal(t, 1, wins)

	final, err := svc.ApproveFinal(ctx, "principal1", subject.ID)
	require.NoError(t, err)
	require.Equal(t, approval.StatusApproved, final.Status)

	logs, err := history.List(ctx, subject.ID)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	require.Equal(t, shared.ApprovalSubmit, logs[0].Action)
	require.Equal(t, shared.ApprovalApproveLevel1, logs[1].Action)
	require.Equal(t, shared.ApprovalApprove, logs[2].Action)
}
