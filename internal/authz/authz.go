// Package authz holds the static role hierarchy and permission tables.
// It is pure lookup code: no I/O, and every unknown input denies.
package authz

import "churchcms/api/internal/models"

type Permission string

const (
	PermManageUsers   Permission = "manage_users"
	PermManageEvents  Permission = "manage_events"
	PermManageSermons Permission = "manage_sermons"
	PermManageBlog    Permission = "manage_blog"
	PermRead          Permission = "read"
	PermWrite         Permission = "write"
	PermDelete        Permission = "delete"
	PermViewDonations Permission = "view_donations"
)

// roleRank totally orders the roles for "at least as privileged as"
// checks. Distinct from the permission sets below.
var roleRank = map[models.Role]int{
	models.RoleMember: 1,
	models.RoleEditor: 2,
	models.RolePastor: 3,
	models.RoleAdmin:  4,
}

var rolePermissions = map[models.Role]map[Permission]struct{}{
	models.RoleAdmin: permSet(
		PermManageUsers, PermManageEvents, PermManageSermons, PermManageBlog,
		PermRead, PermWrite, PermDelete, PermViewDonations,
	),
	models.RolePastor: permSet(
		PermManageEvents, PermManageSermons, PermManageBlog,
		PermRead, PermWrite, PermDelete, PermViewDonations,
	),
	models.RoleEditor: permSet(
		PermManageSermons, PermManageBlog,
		PermRead, PermWrite,
	),
	models.RoleMember: permSet(PermRead),
}

func permSet(perms ...Permission) map[Permission]struct{} {
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Rank returns the role's position in the hierarchy, 0 if unknown.
func Rank(role models.Role) int {
	return roleRank[role]
}

// HasRole reports whether role is at least as privileged as required.
// Unknown roles on either side deny.
func HasRole(role, required models.Role) bool {
	r, ok := roleRank[role]
	if !ok {
		return false
	}
	req, ok := roleRank[required]
	if !ok {
		return false
	}
	return r >= req
}

// HasPermission reports whether role is granted perm. Admin satisfies
// every permission regardless of the table contents, so adding a new
// permission string without touching the admin entry cannot lock
// admins out.
func HasPermission(role models.Role, perm Permission) bool {
	if role == models.RoleAdmin {
		return true
	}
	set, ok := rolePermissions[role]
	if !ok {
		return false
	}
	_, ok = set[perm]
	return ok
}
