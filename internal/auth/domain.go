package auth

import "time"

// User is the credential record read at sign-in.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LoginResponse is returned to JSON clients after a successful sign-in.
type LoginResponse struct {
	UserID      int64    `json:"userId"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Branch      string   `json:"branch,omitempty"`
	Permissions []string `json:"permissions"`
	PermsAt     int64    `json:"permsAt"`
	CSRFToken   string   `json:"csrfToken"`
	Redirect    string   `json:"redirect"`
}
