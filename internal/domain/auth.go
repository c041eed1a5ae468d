package domain

import "time"

// Identity is the claim set carried by a session: nothing beyond id, name, email and role.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Session describes an issued session token.
type Session struct {
	Token     string
	Identity  Identity
	IssuedAt  time.Time
	ExpiresAt time.Time
}
