package domain

import "time"

type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string // argon2 encoded
	IsActive     bool
	IsStaff      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal is the identity a successful credential check yields.
type Principal struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	IsStaff  bool   `json:"is_staff"`
}

func (u *User) Principal() Principal {
	return Principal{UserID: u.ID, Username: u.Username, Email: u.Email, IsStaff: u.IsStaff}
}
