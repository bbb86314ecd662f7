package auth

import "context"

// Accounts is the identity provider boundary.
//
// LookupByEmail returns ErrNotFound when no account exists. VerifyCredentials returns
// ErrInvalidCredentials for an unknown email or a wrong password alike.
type Accounts interface {
	CreateAccount(ctx context.Context, email, password string, meta AccountMetadata) (Account, error)
	VerifyCredentials(ctx context.Context, email, password string) (Account, error)
	LookupByEmail(ctx context.Context, email string) (Account, error)
	DeleteAccount(ctx context.Context, id string) error
}
