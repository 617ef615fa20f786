package shared

// Permission codes understood by the access control core. Handlers reference
// these constants instead of raw strings so a typo fails at compile time.
const (
	PermStudentsView = "students.view"
	PermStudentsEdit = "students.edit"

	PermFacultyView = "faculty.view"
	PermFacultyEdit = "faculty.edit"

	PermAchievementsView    = "achievements.view"
	PermAchievementsApprove = "achievements.approve"

	PermCertificatesView   = "certificates.view"
	PermCertificatesManage = "certificates.manage"

	PermProjectsView   = "projects.view"
	PermProjectsManage = "projects.manage"

	PermPlacementsView   = "placements.view"
	PermPlacementsManage = "placements.manage"

	PermFormsManage       = "forms.manage"
	PermNotificationsSend = "notifications.send"
	PermReportsExport     = "reports.export"

	PermRolesView   = "roles.view"
	PermRolesAssign = "roles.assign"

	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermAuditView = "audit.view"
)

// PermissionGroup bundles permission codes under a name for administrative
// listings. Groups are a management aid only; the resolver never consults
// them.
type PermissionGroup struct {
	Name     string
	Category string
	Codes    []string
}

// PermissionGroups returns the built-in grouping of the permission catalogue.
func PermissionGroups() []PermissionGroup {
	return []PermissionGroup{
		{Name: "Student Records", Category: "academics", Codes: []string{
			PermStudentsView, PermStudentsEdit,
		}},
		{Name: "Faculty Records", Category: "academics", Codes: []string{
			PermFacultyView, PermFacultyEdit,
		}},
		{Name: "Achievements & Certificates", Category: "portfolio", Codes: []string{
			PermAchievementsView, PermAchievementsApprove,
			PermCertificatesView, PermCertificatesManage,
		}},
		{Name: "Projects & Placements", Category: "portfolio", Codes: []string{
			PermProjectsView, PermProjectsManage,
			PermPlacementsView, PermPlacementsManage,
		}},
		{Name: "Operations", Category: "operations", Codes: []string{
			PermFormsManage, PermNotificationsSend, PermReportsExport,
		}},
		{Name: "Administration", Category: "admin", Codes: []string{
			PermRolesView, PermRolesAssign,
			PermUsersView, PermUsersEdit,
			PermAuditView,
		}},
	}
}

// AllPermissions lists every permission code the platform grants.
func AllPermissions() []string {
	return []string{
		PermStudentsView,
		PermStudentsEdit,
		PermFacultyView,
		PermFacultyEdit,
		PermAchievementsView,
		PermAchievementsApprove,
		PermCertificatesView,
		PermCertificatesManage,
		PermProjectsView,
		PermProjectsManage,
		PermPlacementsView,
		PermPlacementsManage,
		PermFormsManage,
		PermNotificationsSend,
		PermReportsExport,
		PermRolesView,
		PermRolesAssign,
		PermUsersView,
		PermUsersEdit,
		PermAuditView,
	}
}
