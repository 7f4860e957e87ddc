package approval

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campusflow/campusflow/internal/rbac"
)

var fixedNow = time.Date(2025, 7, 14, 9, 30, 0, 0, time.UTC)

func actor(id string, roles ...rbac.Role) rbac.Principal {
	return rbac.Principal{UserID: id, Roles: roles}
}

func strPtr(v string) *string { return &v }

func TestSingleLevelLeaveApproval(t *testing.T) {
	leave := Subject{ID: "L1", Kind: KindLeaveApplication, OwnerID: "student1", Status: StatusSubmitted}

	_, err := ApproveFinal(leave, actor("bus1", rbac.RoleBusAdmin), fixedNow)
	require.ErrorIs(t, err, ErrUnauthorized)

	approved, err := ApproveFinal(leave, actor("ct1", rbac.RoleClassTeacher), fixedNow)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, "ct1", *approved.DecidedBy)
	require.Equal(t, fixedNow, *approved.DecidedAt)

	// the input copy is untouched
	require.Equal(t, StatusSubmitted, leave.Status)
	require.Nil(t, leave.DecidedBy)
}

func TestMentorMayDecideLeave(t *testing.T) {
	leave := Subject{ID: "L2", Kind: KindLeaveApplication, OwnerID: "student1", Status: StatusSubmitted}
	out, err := Reject(leave, actor("m1", rbac.RoleMentor), "exams that week", fixedNow)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, out.Status)
}

func TestTwoLevelCannotSkipLevel1(t *testing.T) {
	diary := Subject{ID: "D1", Kind: KindWorkDiary, OwnerID: "teacherA", Status: StatusSubmitted}

	_, err := ApproveFinal(diary, actor("p1", rbac.RolePrincipal), fixedNow)
	require.ErrorIs(t, err, ErrInvalidTransition)

	var terr *TransitionError
	require.True(t, errors.As(err, &terr))
	require.Equal(t, OpApproveFinal, terr.Op)
	require.Equal(t, StatusSubmitted, terr.From)
	require.Equal(t, "D1", terr.SubjectID)
}

func TestApproveLevel1RejectedOnSingleLevelChain(t *testing.T) {
	leave := Subject{ID: "L3", Kind: KindLeaveApplication, OwnerID: "student1", Status: StatusSubmitted}
	_, err := ApproveLevel1(leave, actor("h1", rbac.RoleHOD), fixedNow)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPrincipalCannotApproveLevel1(t *testing.T) {
	planner := Subject{ID: "P9", Kind: KindLessonPlanner, OwnerID: "teacherA", Status: StatusSubmitted}
	_, err := ApproveLevel1(planner, actor("p1", rbac.RolePrincipal), fixedNow)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestResubmitClearsRejection(t *testing.T) {
	submitted := fixedNow.Add(-48 * time.Hour)
	decided := fixedNow.Add(-24 * time.Hour)
	planner := Subject{
		ID:              "P2",
		Kind:            KindLessonPlanner,
		OwnerID:         "teacherA",
		Status:          StatusRejected,
		SubmittedAt:     &submitted,
		Level1At:        &submitted,
		Level1By:        strPtr("hod1"),
		DecidedAt:       &decided,
		DecidedBy:       strPtr("principal1"),
		RejectionReason: strPtr("missing objectives"),
	}

	_, err := Resubmit(planner, actor("teacherB", rbac.RoleSubjectTeacher), fixedNow)
	require.ErrorIs(t, err, ErrUnauthorized)

	out, err := Resubmit(planner, actor("teacherA", rbac.RoleSubjectTeacher), fixedNow)
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, out.Status)
	require.Nil(t, out.RejectionReason)
	require.Nil(t, out.DecidedBy)
	require.Nil(t, out.DecidedAt)
	require.Nil(t, out.Level1By)
	require.Nil(t, out.Level1At)
	require.Equal(t, fixedNow, *out.SubmittedAt)
}

func TestRejectRequiresReason(t *testing.T) {
	diary := Subject{ID: "D2", Kind: KindWorkDiary, OwnerID: "teacherA", Status: StatusSubmitted}
	hod := actor("hod1", rbac.RoleHOD)

	for _, reason := range []string{"", "   \t"} {
		out, err := Reject(diary, hod, reason, fixedNow)
		require.ErrorIs(t, err, ErrMissingReason)
		require.Equal(t, Subject{}, out)
		require.Equal(t, StatusSubmitted, diary.Status)
	}

	out, err := Reject(diary, hod, "  incomplete  ", fixedNow)
	require.NoError(t, err)
	require.Equal(t, "incomplete", *out.RejectionReason)
	require.Equal(t, "hod1", *out.DecidedBy)
}

func TestRejectUsesPendingLevelPermission(t *testing.T) {
	diary := Subject{ID: "D3", Kind: KindWorkDiary, OwnerID: "teacherA", Status: StatusHODApproved}

	_, err := Reject(diary, actor("hod1", rbac.RoleHOD), "late", fixedNow)
	require.ErrorIs(t, err, ErrUnauthorized)

	out, err := Reject(diary, actor("p1", rbac.RolePrincipal), "late", fixedNow)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, out.Status)
}

func TestCheckOrderStatusBeforeEligibilityBeforeReason(t *testing.T) {
	approved := Subject{ID: "D4", Kind: KindWorkDiary, OwnerID: "teacherA", Status: StatusApproved}
	_, err := Reject(approved, actor("nobody"), "", fixedNow)
	require.ErrorIs(t, err, ErrInvalidTransition)

	submitted := Subject{ID: "D5", Kind: KindWorkDiary, OwnerID: "teacherA", Status: StatusSubmitted}
	_, err = Reject(submitted, actor("nobody"), "", fixedNow)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestSelfDecisionRefused(t *testing.T) {
	sub := Subject{ID: "S1", Kind: KindSubstitutionRequest, OwnerID: "hod1", Status: StatusSubmitted}
	_, err := ApproveFinal(sub, actor("hod1", rbac.RoleHOD), fixedNow)
	require.ErrorIs(t, err, ErrUnauthorized)
	require.ErrorIs(t, err, ErrSelfDecision)

	_, err = ApproveFinal(sub, actor("hod1", rbac.RoleSuperAdmin), fixedNow)
	require.ErrorIs(t, err, ErrSelfDecision)

	_, err = Reject(sub, actor("hod1", rbac.RoleHOD), "no cover", fixedNow)
	require.ErrorIs(t, err, ErrSelfDecision)

	// a missing permission is not a self-decision
	_, err = ApproveFinal(sub, actor("teacherB", rbac.RoleSubjectTeacher), fixedNow)
	require.ErrorIs(t, err, ErrUnauthorized)
	require.NotErrorIs(t, err, ErrSelfDecision)

	out, err := ApproveFinal(sub, actor("admin", rbac.RoleSuperAdmin), fixedNow)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, out.Status)
}

func TestCancel(t *testing.T) {
	leave := Subject{ID: "L4", Kind: KindLeaveApplication, OwnerID: "student1", Status: StatusSubmitted}

	_, err := Cancel(leave, actor("student2", rbac.RoleStudent), fixedNow)
	require.ErrorIs(t, err, ErrUnauthorized)

	out, err := Cancel(leave, actor("student1", rbac.RoleStudent), fixedNow)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, out.Status)

	_, err = Cancel(out, actor("student1", rbac.RoleStudent), fixedNow)
	require.ErrorIs(t, err, ErrInvalidTransition)

	planner := Subject{ID: "P3", Kind: KindLessonPlanner, OwnerID: "teacherA", Status: StatusSubmitted}
	_, err = Cancel(planner, actor("teacherA", rbac.RoleSubjectTeacher), fixedNow)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSubmitOnlyFromDraft(t *testing.T) {
	leave := Subject{ID: "L5", Kind: KindLeaveApplication, OwnerID: "student1", Status: StatusSubmitted}
	_, err := Submit(leave, actor("student1", rbac.RoleStudent), fixedNow)
	require.ErrorIs(t, err, ErrInvalidTransition)

	planner := Subject{ID: "P4", Kind: KindLessonPlanner, OwnerID: "teacherA", Status: StatusDraft}
	_, err = Submit(planner, actor("hod1", rbac.RoleHOD), fixedNow)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestUnknownKindRefused(t *testing.T) {
	s := Subject{ID: "X1", Kind: Kind("field_trip"), OwnerID: "teacherA", Status: StatusDraft}
	_, err := Submit(s, actor("teacherA", rbac.RoleSuperAdmin), fixedNow)
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestEndToEndPlannerScenario(t *testing.T) {
	p1 := Subject{ID: "P1", Kind: KindLessonPlanner, OwnerID: "teacherA", Status: StatusDraft}
	teacher := actor("teacherA", rbac.RoleSubjectTeacher)
	hod := actor("hod1", rbac.RoleHOD)
	principal := actor("principal1", rbac.RolePrincipal)

	p1, err := Submit(p1, teacher, fixedNow)
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, p1.Status)

	p1, err = ApproveLevel1(p1, hod, fixedNow.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, StatusHODApproved, p1.Status)
	require.Equal(t, "hod1", *p1.Level1By)

	p1, err = ApproveFinal(p1, principal, fixedNow.Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, StatusApproved, p1.Status)
	require.True(t, p1.Status.Terminal())
	require.Equal(t, int64(3), p1.Version)

	superActor := actor("root", rbac.RoleSuperAdmin)
	attempts := []func() error{
		func() error { _, err := Submit(p1, teacher, fixedNow); return err },
		func() error { _, err := ApproveLevel1(p1, hod, fixedNow); return err },
		func() error { _, err := ApproveFinal(p1, principal, fixedNow); return err },
		func() error { _, err := ApproveFinal(p1, superActor, fixedNow); return err },
		func() error { _, err := Reject(p1, principal, "late", fixedNow); return err },
		func() error { _, err := Resubmit(p1, teacher, fixedNow); return err },
		func() error { _, err := Cancel(p1, teacher, fixedNow); return err },
	}
	for _, attempt := range attempts {
		require.ErrorIs(t, attempt(), ErrInvalidTransition)
	}
	require.Empty(t, Allowed(p1, superActor))
}

func TestAllowed(t *testing.T) {
	planner := Subject{ID: "P5", Kind: KindLessonPlanner, OwnerID: "teacherA", Status: StatusSubmitted}
	require.ElementsMatch(t, []Op{OpApproveLevel1, OpReject}, Allowed(planner, actor("hod1", rbac.RoleHOD)))
	require.Empty(t, Allowed(planner, actor("teacherA", rbac.RoleSubjectTeacher)))
}

func TestParseStatusLegacy(t *testing.T) {
	st, err := ParseStatus("principal_approved")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, st)

	st, err = ParseStatus("PENDING")
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, st)

	_, err = ParseStatus("archived")
	require.Error(t, err)
}
