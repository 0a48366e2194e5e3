package auth

// Role names.
const (
	RoleSuperAdmin     = "SUPER_ADMIN"
	RoleInstituteAdmin = "INSTITUTE_ADMIN"
	RolePrincipal      = "PRINCIPAL"
	RoleOfficeStaff    = "OFFICE_STAFF"
	RoleTeacher        = "TEACHER"
)

// Permission keys stored on institute roles.
const (
	PermAll            = "*"
	PermManageStaff    = "manage_staff"
	PermManageStudents = "manage_students"
)

// DefaultInstituteRoles are created for every new institute.
var DefaultInstituteRoles = []Role{
	{Name: RoleInstituteAdmin, Permissions: []string{PermAll}},
	{Name: RolePrincipal, Permissions: []string{PermManageStaff, PermManageStudents}},
}

var instituteRoleNames = map[string]struct{}{
	RoleInstituteAdmin: {},
	RolePrincipal:      {},
	RoleOfficeStaff:    {},
	RoleTeacher:        {},
}

// IsInstituteRole reports whether name can be assigned to institute staff.
func IsInstituteRole(name string) bool {
	_, ok := instituteRoleNames[name]
	return ok
}
