package auth

import "time"

// Account is an identity-provider user.
type Account struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	FullName  string    `json:"full_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AccountMetadata is attached to an account at creation.
type AccountMetadata struct {
	Role     string `json:"role"`
	FullName string `json:"full_name,omitempty"`
}
