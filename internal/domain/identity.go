package domain

// Role type to distinguish between principals
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Identity is the verified principal behind a request.
type Identity struct {
	UserID        string `json:"userId"`
	Role          Role   `json:"role"`
	EmailVerified bool   `json:"emailVerified"`
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
