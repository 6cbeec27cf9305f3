package identity

// AccessKind tags the outcome of an authorization decision.
type AccessKind int

const (
	AccessAnonymous AccessKind = iota
	AccessEmployee
	AccessAdmin
)

func (k AccessKind) String() string {
	switch k {
	case AccessAnonymous:
		return "anonymous"
	case AccessEmployee:
		return "employee"
	case AccessAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Access is the authorization derived from a Session. It is computed on
// every read and never stored.
type Access struct {
	Kind   AccessKind
	userID string
}

// Decide derives the Access granted by s.
//
// A session without a user is anonymous. A user with the admin role is an
// admin; every other user is treated as an employee.
func Decide(s Session) Access {
	if !s.Authenticated() {
		return Access{Kind: AccessAnonymous}
	}

	switch s.User.Role {
	case RoleAdmin:
		return Access{Kind: AccessAdmin, userID: s.User.ID}
	default:
		return Access{Kind: AccessEmployee, userID: s.User.ID}
	}
}

// IsAdmin reports whether the access is administrative.
func (a Access) IsAdmin() bool {
	return a.Kind == AccessAdmin
}

// EmployeeID returns the identifier scoping which employee records the
// actor may see. There is no identifier for anonymous access.
func (a Access) EmployeeID() (string, bool) {
	if a.Kind == AccessAnonymous {
		return "", false
	}
	return a.userID, true
}
