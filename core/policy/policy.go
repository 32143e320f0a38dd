// Package policy decides which actions a role may perform.
// Every service consults it before touching a store.
package policy

import "strings"

type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleInstructor Role = "Instructor"
	RolePA         Role = "PA"
	RoleStandard   Role = "standard"
)

var AllRoles = []Role{RoleSuperAdmin, RoleAdmin, RoleInstructor, RolePA, RoleStandard}

// ParseRole case-normalizes s into one of AllRoles.
func ParseRole(s string) (Role, bool) {
	s = strings.TrimSpace(s)
	for _, r := range AllRoles {
		if strings.EqualFold(s, string(r)) {
			return r, true
		}
	}
	return "", false
}

func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

func (r Role) IsAdmin() bool {
	role, _ := ParseRole(string(r))
	return role == RoleSuperAdmin || role == RoleAdmin
}

func (r Role) IsInstructor() bool {
	role, _ := ParseRole(string(r))
	return role == RoleInstructor
}

type Action int

const (
	CreateClass Action = iota + 1
	AssignSelf
	AssignOthers
	UnassignInstructors
	LeaveClass
	DeleteClass
	CreateProp
	RenameProp
	DeleteProp
	EditOwnContent
	EditOthersContent
	ViewLookup
	ViewTracking
	ManageUsers
)

var actionNames = map[Action]string{
	CreateClass:         "create class",
	AssignSelf:          "assign self to a class",
	AssignOthers:        "assign others to a class",
	UnassignInstructors: "unassign instructors",
	LeaveClass:          "leave a class",
	DeleteClass:         "delete class",
	CreateProp:          "create prop",
	RenameProp:          "rename prop",
	DeleteProp:          "delete prop",
	EditOwnContent:      "edit own class content",
	EditOthersContent:   "edit others' class content",
	ViewLookup:          "view lookups",
	ViewTracking:        "view class tracking",
	ManageUsers:         "manage user accounts",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown action"
}

// Context describes how the actor relates to the record being acted on.
type Context struct {
	ActorID string
	// OwnerID is the instructor a (class, instructor) pair belongs to.
	OwnerID string
	// Assigned reports whether OwnerID is assigned to the class.
	Assigned bool
}

func (c Context) ownsRecord() bool {
	return c.ActorID != "" && c.ActorID == c.OwnerID
}

// Actor is the closed set of role behaviours.
type Actor interface {
	Role() Role
	Can(action Action, ctx Context) bool

	sealed()
}

// For returns the Actor for role. Unknown roles get no rights.
func For(role Role) Actor {
	r, _ := ParseRole(string(role))
	switch r {
	case RoleSuperAdmin:
		return superAdmin{}
	case RoleAdmin:
		return admin{}
	case RoleInstructor:
		return instructor{}
	case RolePA:
		return pa{}
	case RoleStandard:
		return standard{}
	default:
		return nobody{}
	}
}

// Can is shorthand for For(role).Can(action, ctx).
func Can(role Role, action Action, ctx Context) bool {
	return For(role).Can(action, ctx)
}

type (
	superAdmin struct{}
	admin      struct{}
	instructor struct{}
	pa         struct{}
	standard   struct{}
	nobody     struct{}
)

func (superAdmin) Role() Role { return RoleSuperAdmin }
func (superAdmin) Can(a Action, _ Context) bool { return adminCan(a) }
func (superAdmin) sealed() {}

func (admin) Role() Role { return RoleAdmin }
func (admin) Can(a Action, _ Context) bool { return adminCan(a) }
func (admin) sealed() {}

func (instructor) Role() Role { return RoleInstructor }
func (instructor) Can(a Action, ctx Context) bool {
	switch a {
	case CreateClass, CreateProp, RenameProp, ViewLookup:
		return true
	case AssignSelf, LeaveClass:
		return ctx.ownsRecord()
	case EditOwnContent:
		return ctx.ownsRecord() && ctx.Assigned
	default:
		return false
	}
}
func (instructor) sealed() {}

func (pa) Role() Role { return RolePA }
func (pa) Can(a Action, _ Context) bool { return a == ViewLookup }
func (pa) sealed() {}

func (standard) Role() Role { return RoleStandard }
func (standard) Can(a Action, _ Context) bool { return a == ViewLookup }
func (standard) sealed() {}

func (nobody) Role() Role { return "" }
func (nobody) Can(Action, Context) bool { return false }
func (nobody) sealed() {}

func adminCan(a Action) bool {
	_, known := actionNames[a]
	return known
}
