package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in     string
		want   Role
		wantOk bool
	}{
		{in: "super_admin", want: RoleSuperAdmin, wantOk: true},
		{in: "SUPER_ADMIN", want: RoleSuperAdmin, wantOk: true},
		{in: "instructor", want: RoleInstructor, wantOk: true},
		{in: " Instructor ", want: RoleInstructor, wantOk: true},
		{in: "pa", want: RolePA, wantOk: true},
		{in: "Standard", want: RoleStandard, wantOk: true},
		{in: "teacher"},
		{in: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseRole(tt.in)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCan(t *testing.T) {
	own := Context{ActorID: "ana", OwnerID: "ana", Assigned: true}
	ownUnassigned := Context{ActorID: "ana", OwnerID: "ana"}
	others := Context{ActorID: "ana", OwnerID: "bea", Assigned: true}

	type row struct {
		action Action
		ctx    Context
		want   map[Role]bool
	}
	yesAdmins := func(instr, viewers bool) map[Role]bool {
		return map[Role]bool{
			RoleSuperAdmin: true, RoleAdmin: true, RoleInstructor: instr, RolePA: viewers, RoleStandard: viewers,
		}
	}
	tests := []row{
		{action: CreateClass, want: yesAdmins(true, false)},
		{action: AssignSelf, ctx: own, want: yesAdmins(true, false)},
		{action: AssignOthers, ctx: others, want: yesAdmins(false, false)},
		{action: AssignSelf, ctx: others, want: yesAdmins(false, false)},
		{action: UnassignInstructors, ctx: others, want: yesAdmins(false, false)},
		{action: LeaveClass, ctx: own, want: yesAdmins(true, false)},
		{action: DeleteClass, want: yesAdmins(false, false)},
		{action: CreateProp, want: yesAdmins(true, false)},
		{action: RenameProp, want: yesAdmins(true, false)},
		{action: DeleteProp, want: yesAdmins(false, false)},
		{action: EditOwnContent, ctx: own, want: yesAdmins(true, false)},
		{action: EditOwnContent, ctx: ownUnassigned, want: yesAdmins(false, false)},
		{action: EditOwnContent, ctx: others, want: yesAdmins(false, false)},
		{action: EditOthersContent, ctx: others, want: yesAdmins(false, false)},
		{action: ViewLookup, want: yesAdmins(true, true)},
		{action: ViewTracking, want: yesAdmins(false, false)},
		{action: ManageUsers, want: yesAdmins(false, false)},
	}
	for _, tt := range tests {
		for role, want := range tt.want {
			t.Run(tt.action.String()+"/"+string(role), func(t *testing.T) {
				assert.Equal(t, want, Can(role, tt.action, tt.ctx))
			})
		}
	}
}

func TestCan_CaseNormalized(t *testing.T) {
	assert.True(t, Can("ADMIN", DeleteClass, Context{}))
	assert.True(t, Can("instructor", CreateClass, Context{}))
	assert.False(t, Can("teacher", ViewLookup, Context{}))
	assert.False(t, Can("", ViewLookup, Context{}))
}

func TestFor(t *testing.T) {
	assert.Equal(t, RoleInstructor, For("INSTRUCTOR").Role())
	assert.Equal(t, Role(""), For("owner").Role())
}
