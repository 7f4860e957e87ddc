package rbac

// Role identifies a bundle of permissions and module access held through an assignment.
type Role string

// Roles known to the catalog.
const (
	RoleSuperAdmin      Role = "super_admin"
	RolePrincipal       Role = "principal"
	RoleExamCellAdmin   Role = "exam_cell_admin"
	RoleHOD             Role = "hod"
	RoleDepartmentAdmin Role = "department_admin"
	RoleFinanceAdmin    Role = "finance_admin"
	RoleLibraryAdmin    Role = "library_admin"
	RoleBusAdmin        Role = "bus_admin"
	RoleCanteenAdmin    Role = "canteen_admin"
	RoleClassTeacher    Role = "class_teacher"
	RoleSubjectTeacher  Role = "subject_teacher"
	RoleMentor          Role = "mentor"
	RoleStudent         Role = "student"
	RoleParent          Role = "parent"
)

// Permission is an opaque capability flag.
type Permission string

// System permissions.
const (
	PermSystemSettings Permission = "system.settings"
	PermSystemAudit    Permission = "system.audit.view"
)

// User management permissions.
const (
	PermUsersView        Permission = "users.view"
	PermUsersManage      Permission = "users.manage"
	PermUsersAssignRoles Permission = "users.assign_roles"
)

// Academic permissions.
const (
	PermAcademicTimetable    Permission = "academic.timetable.manage"
	PermAcademicPlannerWrite Permission = "academic.planner.write"
	PermAcademicPlannerView  Permission = "academic.planner.view"
	PermAcademicDiaryWrite   Permission = "academic.diary.write"
	PermAcademicDiaryView    Permission = "academic.diary.view"
)

// Exam permissions.
const (
	PermExamManage      Permission = "exam.manage"
	PermExamEnterMarks  Permission = "exam.marks.enter"
	PermExamVerifyMarks Permission = "exam.marks.verify"
	PermExamPublish     Permission = "exam.results.publish"
)

// Approval permissions. Level-1 permissions gate the first step of two-level
// chains, final permissions gate the terminal decision.
const (
	PermApprovePlannerLevel1  Permission = "approval.planner.level1"
	PermApprovePlannerFinal   Permission = "approval.planner.final"
	PermApproveDiaryLevel1    Permission = "approval.diary.level1"
	PermApproveDiaryFinal     Permission = "approval.diary.final"
	PermDecideLeave           Permission = "approval.leave.decide"
	PermDecideSubstitution    Permission = "approval.substitution.decide"
	PermRequestLeave          Permission = "approval.leave.request"
	PermRequestSubstitution   Permission = "approval.substitution.request"
	PermApprovalQueueOverview Permission = "approval.queue.overview"
)

// Library permissions.
const (
	PermLibraryManage Permission = "library.manage"
	PermLibraryIssue  Permission = "library.issue"
	PermLibraryView   Permission = "library.view"
)

// Transport permissions.
const (
	PermTransportManage Permission = "transport.manage"
	PermTransportTrack  Permission = "transport.track"
)

// Canteen permissions.
const (
	PermCanteenManage Permission = "canteen.manage"
	PermCanteenOrder  Permission = "canteen.order"
)

// Finance permissions.
const (
	PermFinanceFees    Permission = "finance.fees.manage"
	PermFinanceReports Permission = "finance.reports.view"
	PermFinancePay     Permission = "finance.fees.pay"
)

// Notice permissions.
const (
	PermNoticesPublish Permission = "notices.publish"
	PermNoticesView    Permission = "notices.view"
)

// Assignment (homework) permissions.
const (
	PermAssignmentsCreate Permission = "assignments.create"
	PermAssignmentsSubmit Permission = "assignments.submit"
	PermAssignmentsGrade  Permission = "assignments.grade"
)

// Attendance permissions.
const (
	PermAttendanceMark Permission = "attendance.mark"
	PermAttendanceView Permission = "attendance.view"
)

// Module gates coarse functional areas of the application.
type Module string

// Modules known to the catalog.
const (
	ModuleDashboard      Module = "dashboard"
	ModuleAcademics      Module = "academics"
	ModuleLessonPlanner  Module = "lesson_planner"
	ModuleWorkDiary      Module = "work_diary"
	ModuleLeave          Module = "leave"
	ModuleSubstitution   Module = "substitution"
	ModuleExams          Module = "exams"
	ModuleLibrary        Module = "library"
	ModuleTransport      Module = "transport"
	ModuleCanteen        Module = "canteen"
	ModuleFinance        Module = "finance"
	ModuleNotices        Module = "notices"
	ModuleAssignments    Module = "assignments"
	ModuleAttendance     Module = "attendance"
	ModuleAdministration Module = "administration"
)

// RoleDefinition is the immutable catalog entry for a role.
type RoleDefinition struct {
	Role        Role
	Label       string
	Permissions []Permission
}

var teacherBase = []Permission{
	PermAcademicPlannerWrite,
	PermAcademicPlannerView,
	PermAcademicDiaryWrite,
	PermAcademicDiaryView,
	PermExamEnterMarks,
	PermAssignmentsCreate,
	PermAssignmentsGrade,
	PermAttendanceMark,
	PermAttendanceView,
	PermNoticesView,
	PermLibraryView,
	PermRequestLeave,
	PermRequestSubstitution,
}

var catalog = map[Role]RoleDefinition{
	RoleSuperAdmin: {
		Role:  RoleSuperAdmin,
		Label: "Super Admin",
		// Every check short-circuits for this role; the explicit set only feeds display.
		Permissions: []Permission{PermSystemSettings, PermSystemAudit, PermUsersView, PermUsersManage, PermUsersAssignRoles},
	},
	RolePrincipal: {
		Role:  RolePrincipal,
		Label: "Principal",
		Permissions: []Permission{
			PermSystemAudit,
			PermUsersView,
			PermUsersManage,
			PermUsersAssignRoles,
			PermAcademicPlannerView,
			PermAcademicDiaryView,
			PermAcademicTimetable,
			PermApprovePlannerFinal,
			PermApproveDiaryFinal,
			PermApprovalQueueOverview,
			PermExamPublish,
			PermFinanceReports,
			PermNoticesPublish,
			PermNoticesView,
			PermAttendanceView,
			PermRequestLeave,
		},
	},
	RoleExamCellAdmin: {
		Role:  RoleExamCellAdmin,
		Label: "Exam Cell Admin",
		Permissions: []Permission{
			PermExamManage,
			PermExamVerifyMarks,
			PermExamPublish,
			PermNoticesPublish,
			PermNoticesView,
			PermRequestLeave,
		},
	},
	RoleHOD: {
		Role:  RoleHOD,
		Label: "Head of Department",
		Permissions: append(append([]Permission{}, teacherBase...),
			PermApprovePlannerLevel1,
			PermApproveDiaryLevel1,
			PermDecideSubstitution,
			PermExamVerifyMarks,
			PermUsersView,
		),
	},
	RoleDepartmentAdmin: {
		Role:  RoleDepartmentAdmin,
		Label: "Department Admin",
		Permissions: []Permission{
			PermUsersView,
			PermAcademicTimetable,
			PermAcademicPlannerView,
			PermAcademicDiaryView,
			PermDecideSubstitution,
			PermNoticesPublish,
			PermNoticesView,
			PermAttendanceView,
			PermRequestLeave,
		},
	},
	RoleFinanceAdmin: {
		Role:        RoleFinanceAdmin,
		Label:       "Finance Admin",
		Permissions: []Permission{PermFinanceFees, PermFinanceReports, PermNoticesView, PermRequestLeave},
	},
	RoleLibraryAdmin: {
		Role:        RoleLibraryAdmin,
		Label:       "Library Admin",
		Permissions: []Permission{PermLibraryManage, PermLibraryIssue, PermLibraryView, PermNoticesView, PermRequestLeave},
	},
	RoleBusAdmin: {
		Role:        RoleBusAdmin,
		Label:       "Bus Admin",
		Permissions: []Permission{PermTransportManage, PermTransportTrack, PermNoticesView, PermRequestLeave},
	},
	RoleCanteenAdmin: {
		Role:        RoleCanteenAdmin,
		Label:       "Canteen Admin",
		Permissions: []Permission{PermCanteenManage, PermCanteenOrder, PermNoticesView, PermRequestLeave},
	},
	RoleClassTeacher: {
		Role:        RoleClassTeacher,
		Label:       "Class Teacher",
		Permissions: append(append([]Permission{}, teacherBase...), PermDecideLeave),
	},
	RoleSubjectTeacher: {
		Role:        RoleSubjectTeacher,
		Label:       "Subject Teacher",
		Permissions: append([]Permission{}, teacherBase...),
	},
	RoleMentor: {
		Role:        RoleMentor,
		Label:       "Mentor",
		Permissions: []Permission{PermDecideLeave, PermAttendanceView, PermNoticesView},
	},
	RoleStudent: {
		Role:  RoleStudent,
		Label: "Student",
		Permissions: []Permission{
			PermAssignmentsSubmit,
			PermAttendanceView,
			PermNoticesView,
			PermLibraryView,
			PermTransportTrack,
			PermCanteenOrder,
			PermRequestLeave,
		},
	},
	RoleParent: {
		Role:        RoleParent,
		Label:       "Parent",
		Permissions: []Permission{PermAttendanceView, PermNoticesView, PermTransportTrack, PermFinancePay},
	},
}

var moduleAccess = map[Module][]Role{
	ModuleDashboard: {
		RolePrincipal, RoleExamCellAdmin, RoleHOD, RoleDepartmentAdmin, RoleFinanceAdmin,
		RoleLibraryAdmin, RoleBusAdmin, RoleCanteenAdmin, RoleClassTeacher, RoleSubjectTeacher,
		RoleMentor, RoleStudent, RoleParent,
	},
	ModuleAcademics:      {RolePrincipal, RoleHOD, RoleDepartmentAdmin, RoleClassTeacher, RoleSubjectTeacher},
	ModuleLessonPlanner:  {RolePrincipal, RoleHOD, RoleClassTeacher, RoleSubjectTeacher},
	ModuleWorkDiary:      {RolePrincipal, RoleHOD, RoleClassTeacher, RoleSubjectTeacher},
	ModuleLeave:          {RolePrincipal, RoleHOD, RoleClassTeacher, RoleSubjectTeacher, RoleMentor, RoleStudent, RoleParent},
	ModuleSubstitution:   {RolePrincipal, RoleHOD, RoleDepartmentAdmin, RoleClassTeacher, RoleSubjectTeacher},
	ModuleExams:          {RolePrincipal, RoleExamCellAdmin, RoleHOD, RoleClassTeacher, RoleSubjectTeacher, RoleStudent},
	ModuleLibrary:        {RoleLibraryAdmin, RoleClassTeacher, RoleSubjectTeacher, RoleStudent},
	ModuleTransport:      {RoleBusAdmin, RoleStudent, RoleParent},
	ModuleCanteen:        {RoleCanteenAdmin, RoleStudent},
	ModuleFinance:        {RolePrincipal, RoleFinanceAdmin, RoleParent},
	ModuleNotices:        {RolePrincipal, RoleExamCellAdmin, RoleHOD, RoleDepartmentAdmin, RoleClassTeacher, RoleSubjectTeacher, RoleStudent, RoleParent},
	ModuleAssignments:    {RoleHOD, RoleClassTeacher, RoleSubjectTeacher, RoleStudent},
	ModuleAttendance:     {RolePrincipal, RoleHOD, RoleClassTeacher, RoleSubjectTeacher, RoleMentor, RoleStudent, RoleParent},
	ModuleAdministration: {RolePrincipal, RoleDepartmentAdmin},
}

// allModules fixes the listing order for AccessibleModules.
var allModules = []Module{
	ModuleDashboard,
	ModuleAcademics,
	ModuleLessonPlanner,
	ModuleWorkDiary,
	ModuleLeave,
	ModuleSubstitution,
	ModuleExams,
	ModuleLibrary,
	ModuleTransport,
	ModuleCanteen,
	ModuleFinance,
	ModuleNotices,
	ModuleAssignments,
	ModuleAttendance,
	ModuleAdministration,
}

// rolePriority is the descending ordering used by HighestRole.
var rolePriority = []Role{
	RoleSuperAdmin,
	RolePrincipal,
	RoleExamCellAdmin,
	RoleHOD,
	RoleDepartmentAdmin,
	RoleFinanceAdmin,
	RoleLibraryAdmin,
	RoleBusAdmin,
	RoleCanteenAdmin,
}

var permissionIndex = buildPermissionIndex()

func buildPermissionIndex() map[Role]map[Permission]struct{} {
	index := make(map[Role]map[Permission]struct{}, len(catalog))
	for role, def := range catalog {
		set := make(map[Permission]struct{}, len(def.Permissions))
		for _, p := range def.Permissions {
			set[p] = struct{}{}
		}
		index[role] = set
	}
	return index
}

// ParseRole converts a persisted role id. Unknown ids are returned as-is with ok=false
// so callers can keep them without gaining any capability.
func ParseRole(raw string) (Role, bool) {
	role := Role(raw)
	_, ok := catalog[role]
	return role, ok
}

// Definition returns the catalog entry for a role.
func Definition(role Role) (RoleDefinition, bool) {
	def, ok := catalog[role]
	if !ok {
		return RoleDefinition{}, false
	}
	def.Permissions = append([]Permission(nil), def.Permissions...)
	return def, true
}

// Label returns the human label for a role, or the raw id when unknown.
func (r Role) Label() string {
	if def, ok := catalog[r]; ok {
		return def.Label
	}
	return string(r)
}

// Known reports whether the role exists in the catalog.
func (r Role) Known() bool {
	_, ok := catalog[r]
	return ok
}

// Roles lists every catalog role in priority order followed by the remaining roles.
func Roles() []Role {
	out := make([]Role, 0, len(catalog))
	out = append(out, rolePriority...)
	return append(out, RoleClassTeacher, RoleSubjectTeacher, RoleMentor, RoleStudent, RoleParent)
}

// Modules lists every module in display order.
func Modules() []Module {
	return append([]Module(nil), allModules...)
}
