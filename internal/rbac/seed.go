package rbac

import "github.com/meridian-sis/meridian-sis/internal/shared"

// DefaultRoles returns the built-in role catalogue. The seeding routine is
// idempotent: running it twice leaves the catalogue unchanged unless force is
// requested.
func DefaultRoles() []Role {
	return []Role{
		{
			Name:           "guest",
			Type:           RoleGuest,
			Description:    "Unprivileged visitor",
			HierarchyLevel: 1,
			Permissions:    nil,
		},
		{
			Name:           "student",
			Type:           RoleStudent,
			Description:    "Enrolled student",
			HierarchyLevel: 10,
			Permissions: []string{
				shared.PermAchievementsView,
				shared.PermCertificatesView,
				shared.PermProjectsView,
				shared.PermPlacementsView,
			},
		},
		{
			Name:           "faculty",
			Type:           RoleFaculty,
			Description:    "Teaching staff",
			HierarchyLevel: 30,
			Permissions: []string{
				shared.PermStudentsView,
				shared.PermAchievementsView,
				shared.PermAchievementsApprove,
				shared.PermCertificatesView,
				shared.PermProjectsView,
				shared.PermProjectsManage,
				shared.PermPlacementsView,
			},
		},
		{
			Name:           "coordinator",
			Type:           RoleCoordinator,
			Description:    "Department coordinator",
			HierarchyLevel: 40,
			Permissions: []string{
				shared.PermStudentsView,
				shared.PermStudentsEdit,
				shared.PermFacultyView,
				shared.PermAchievementsView,
				shared.PermAchievementsApprove,
				shared.PermCertificatesView,
				shared.PermCertificatesManage,
				shared.PermProjectsView,
				shared.PermProjectsManage,
				shared.PermPlacementsView,
				shared.PermPlacementsManage,
				shared.PermFormsManage,
				shared.PermNotificationsSend,
			},
		},
		{
			Name:           "hod",
			Type:           RoleHOD,
			Description:    "Head of department",
			HierarchyLevel: 60,
			Permissions: []string{
				shared.PermStudentsView,
				shared.PermStudentsEdit,
				shared.PermFacultyView,
				shared.PermFacultyEdit,
				shared.PermAchievementsView,
				shared.PermAchievementsApprove,
				shared.PermCertificatesView,
				shared.PermCertificatesManage,
				shared.PermProjectsView,
				shared.PermProjectsManage,
				shared.PermPlacementsView,
				shared.PermPlacementsManage,
				shared.PermFormsManage,
				shared.PermNotificationsSend,
				shared.PermReportsExport,
			},
		},
		{
			Name:           "admin",
			Type:           RoleAdmin,
			Description:    "Institution administrator",
			HierarchyLevel: 80,
			Permissions:    shared.AllPermissions(),
		},
		{
			Name:           "super_admin",
			Type:           RoleSuperAdmin,
			Description:    "Platform super administrator",
			HierarchyLevel: 100,
			Permissions:    shared.AllPermissions(),
		},
	}
}
