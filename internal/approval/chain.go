package approval

import "github.com/campusflow/campusflow/internal/rbac"

// Chain describes the approval shape of a subject kind.
type Chain struct {
	Kind             Kind
	Levels           int
	HasDraft         bool
	Cancellable      bool
	CreatePermission rbac.Permission
	Level1Permission rbac.Permission
	FinalPermission  rbac.Permission
}

var chains = map[Kind]Chain{
	KindLessonPlanner: {
		Kind:             KindLessonPlanner,
		Levels:           2,
		HasDraft:         true,
		CreatePermission: rbac.PermAcademicPlannerWrite,
		Level1Permission: rbac.PermApprovePlannerLevel1,
		FinalPermission:  rbac.PermApprovePlannerFinal,
	},
	KindWorkDiary: {
		Kind:             KindWorkDiary,
		Levels:           2,
		HasDraft:         true,
		CreatePermission: rbac.PermAcademicDiaryWrite,
		Level1Permission: rbac.PermApproveDiaryLevel1,
		FinalPermission:  rbac.PermApproveDiaryFinal,
	},
	KindLeaveApplication: {
		Kind:             KindLeaveApplication,
		Levels:           1,
		Cancellable:      true,
		CreatePermission: rbac.PermRequestLeave,
		FinalPermission:  rbac.PermDecideLeave,
	},
	KindSubstitutionRequest: {
		Kind:             KindSubstitutionRequest,
		Levels:           1,
		Cancellable:      true,
		CreatePermission: rbac.PermRequestSubstitution,
		FinalPermission:  rbac.PermDecideSubstitution,
	},
}

// ChainFor returns the chain shape for kind.
func ChainFor(kind Kind) (Chain, bool) {
	c, ok := chains[kind]
	return c, ok
}

// Kinds lists every supported subject kind.
func Kinds() []Kind {
	return []Kind{KindLessonPlanner, KindWorkDiary, KindLeaveApplication, KindSubstitutionRequest}
}

// TwoLevel reports whether the chain has an intermediate approval.
func (c Chain) TwoLevel() bool { return c.Levels == 2 }

// InitialStatus is the status a newly created subject starts in.
func (c Chain) InitialStatus() Status {
	if c.HasDraft {
		return StatusDraft
	}
	return StatusSubmitted
}

// PendingPermission returns the permission needed to decide the level awaiting
// action at status. ok is false when nothing is pending.
func (c Chain) PendingPermission(status Status) (rbac.Permission, bool) {
	switch status {
	case StatusSubmitted:
		if c.TwoLevel() {
			return c.Level1Permission, true
		}
		return c.FinalPermission, true
	case StatusHODApproved:
		if c.TwoLevel() {
			return c.FinalPermission, true
		}
	}
	return "", false
}
