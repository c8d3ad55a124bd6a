package auth

import "time"

// Roles understood by the service. A user carries exactly one role.
const (
	RoleEmployee = "employee"
	RoleManager  = "manager"
	RoleAdmin    = "admin"
)

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleEmployee, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// ReviewerRole reports whether role may review justifications.
func ReviewerRole(role string) bool {
	return role == RoleAdmin || role == RoleManager
}

// User is an account that registers punches. FaceEmbedding holds the single
// current serialized reference embedding; nil means the user never enrolled.
// Re-enrollment overwrites, it does not append.
type User struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	PasswordHash  string     `json:"-"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Department    string     `json:"department,omitempty"`
	Role          string     `json:"role"`
	FaceEmbedding []byte     `json:"-"`
	EnrolledAt    *time.Time `json:"enrolled_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Enrolled reports whether the user has a current reference embedding.
func (u *User) Enrolled() bool {
	return len(u.FaceEmbedding) > 0
}
