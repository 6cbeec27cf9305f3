package identity

import (
	"errors"
	"strings"
)

var (
	// ErrUnknownRole indicates a role tag outside of the known set of roles.
	ErrUnknownRole = errors.New("identity: unknown role")
)

// Role is the coarse-grained authorization tag carried by a User.
//
// The zero value RoleNone is never assignable to a User; it stands in for an
// absent or unrecognized role.
type Role int

const (
	RoleNone Role = iota
	RoleEmployee
	RoleAdmin
)

var tags = map[Role]string{
	RoleEmployee: "employee",
	RoleAdmin:    "admin",
}

// Roles returns the roles that may be assigned to a User.
func Roles() []Role {
	return []Role{RoleEmployee, RoleAdmin}
}

// ParseRole converts a stored or user supplied role tag into a Role.
func ParseRole(s string) (Role, error) {
	tag := strings.ToLower(strings.TrimSpace(s))
	for role, name := range tags {
		if name == tag {
			return role, nil
		}
	}
	return RoleNone, ErrUnknownRole
}

func (r Role) String() string {
	if name, exists := tags[r]; exists {
		return name
	}
	return "none"
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Assignable returns whether r is one of the roles from Roles.
func (r Role) Assignable() bool {
	_, exists := tags[r]
	return exists
}

// User is the authenticated actor behind a Session.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// Valid returns whether u is well formed, i.e. has an identifier and an
// assignable role.
func (u *User) Valid() bool {
	return u != nil && u.ID != "" && u.Role.Assignable()
}

// Display is the name shown in page chrome.
func (u *User) Display() string {
	if u.Name != "" {
		return u.Name
	}
	if u.Email != "" {
		return u.Email
	}
	return u.ID
}

// Session represents the current actor of an application instance.
//
// A nil User means there is no authenticated user; this is a normal state and
// not an error.
type Session struct {
	User *User
}

// Authenticated returns whether the session carries a user.
func (s Session) Authenticated() bool {
	return s.User != nil
}
