package user

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/propdesk/core"
	"github.com/trezcool/propdesk/core/policy"
)

var hashCost = bcrypt.DefaultCost // mockable

type RoleOption struct {
	Name  string      `json:"name"`
	Value policy.Role `json:"value"`
}

var Roles = []RoleOption{
	{Name: "Standard", Value: policy.RoleStandard},
	{Name: "PA", Value: policy.RolePA},
	{Name: "Instructor", Value: policy.RoleInstructor},
	{Name: "Admin", Value: policy.RoleAdmin},
	{Name: "Super Admin", Value: policy.RoleSuperAdmin},
}

type User struct {
	ID           string      `json:"id"`
	Username     string      `json:"username"`
	DisplayName  string      `json:"display_name"`
	Role         policy.Role `json:"role"`
	PasswordHash []byte      `json:"-"`
	CreatedAt    time.Time   `json:"created_at"` // UTC
	UpdatedAt    time.Time   `json:"updated_at"` // UTC
	LastLogin    time.Time   `json:"last_login"` // UTC
}

// SetPassword stores a salted bcrypt hash of pwd. Plaintext is never kept.
func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), hashCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool      { return u.Role.IsAdmin() }
func (u *User) IsInstructor() bool { return u.Role.IsInstructor() }

// NewUser contains information needed to create a new User.
type NewUser struct {
	Username        string      `json:"username" validate:"required,max=64,alphanum_"`
	DisplayName     string      `json:"display_name" validate:"required,notblank,max=128"`
	Role            policy.Role `json:"role" validate:"required,role"`
	Password        string      `json:"password" validate:"required"`
	PasswordConfirm string      `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Clean() {
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.DisplayName = core.CleanString(nu.DisplayName)
	if role, ok := policy.ParseRole(string(nu.Role)); ok {
		nu.Role = role
	}
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.Clean()
	return validate.Struct(nu)
}

// UpdateUser defines what information may be provided to modify an existing User.
// Empty fields keep their current value.
type UpdateUser struct {
	Username        string      `json:"username" validate:"omitempty,max=64,alphanum_"`
	DisplayName     string      `json:"display_name" validate:"omitempty,max=128"`
	Role            policy.Role `json:"role" validate:"omitempty,role"`
	Password        string      `json:"password"`
	PasswordConfirm string      `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate) error {
	uname := core.CleanString(uu.Username, true /* lower */)
	if uname != "" {
		uu.Username = uname
	} else {
		uu.Username = origUsr.Username
	}

	name := core.CleanString(uu.DisplayName)
	if name != "" {
		uu.DisplayName = name
	} else {
		uu.DisplayName = origUsr.DisplayName
	}

	if strings.TrimSpace(string(uu.Role)) != "" {
		if role, ok := policy.ParseRole(string(uu.Role)); ok {
			uu.Role = role
		}
	} else {
		uu.Role = origUsr.Role
	}

	return validate.Struct(uu)
}

// ChangePassword is the self-service credential change.
type ChangePassword struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`

	// filled in by the service for the similarity check
	username    string
	displayName string
}

func (cp *ChangePassword) Validate(usr User, validate *validator.Validate) error {
	cp.username = usr.Username
	cp.displayName = usr.DisplayName
	return validate.Struct(cp)
}

type GetFilter struct {
	ID       string
	Username string
}

type QueryFilter struct {
	Search string        `query:"search"`
	Roles  []policy.Role `query:"role"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && len(qf.Roles) == 0
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	roles := make([]policy.Role, 0, len(qf.Roles))
	for _, r := range qf.Roles {
		if role, ok := policy.ParseRole(string(r)); ok {
			roles = append(roles, role)
		} else {
			roles = append(roles, r) // matches nothing
		}
	}
	qf.Roles = roles
}

// Default super admin, seeded by the initial migration and by the in-memory store.
// Its password should be changed right after the first login.
const (
	SuperAdminUsername    = "superadmin"
	SuperAdminDisplayName = "Super Admin"
	SuperAdminPassword    = "Qaz123*"
)

// NewSuperAdmin returns the default super admin with a hashed password.
func NewSuperAdmin() (User, error) {
	now := time.Now().UTC()
	usr := User{
		Username:    SuperAdminUsername,
		DisplayName: SuperAdminDisplayName,
		Role:        policy.RoleSuperAdmin,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := usr.SetPassword(SuperAdminPassword); err != nil {
		return User{}, err
	}
	return usr, nil
}
