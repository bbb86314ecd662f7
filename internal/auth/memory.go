package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ Accounts = (*MemoryAccounts)(nil)

// MemoryAccounts keeps accounts in process. Used by tests and local runs without a database.
type MemoryAccounts struct {
	mu      sync.RWMutex
	byEmail map[string]memAccount
}

type memAccount struct {
	Account
	hash string
}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{byEmail: make(map[string]memAccount)}
}

func (m *MemoryAccounts) CreateAccount(ctx context.Context, email, password string, meta AccountMetadata) (Account, error) {
	email = normalizeEmail(email)
	if email == "" {
		return Account{}, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if err := ValidatePassword(password); err != nil {
		return Account{}, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return Account{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[email]; ok {
		return Account{}, ErrAlreadyExists
	}
	acc := Account{
		ID:        uuid.NewString(),
		Email:     email,
		Role:      meta.Role,
		FullName:  meta.FullName,
		CreatedAt: time.Now().UTC(),
	}
	m.byEmail[email] = memAccount{Account: acc, hash: hash}
	return acc, nil
}

func (m *MemoryAccounts) VerifyCredentials(ctx context.Context, email, password string) (Account, error) {
	m.mu.RLock()
	rec, ok := m.byEmail[normalizeEmail(email)]
	m.mu.RUnlock()
	if !ok {
		return Account{}, ErrInvalidCredentials
	}
	if err := VerifyPassword(rec.hash, password); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	return rec.Account, nil
}

func (m *MemoryAccounts) LookupByEmail(ctx context.Context, email string) (Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byEmail[normalizeEmail(email)]
	if !ok {
		return Account{}, ErrNotFound
	}
	return rec.Account, nil
}

func (m *MemoryAccounts) DeleteAccount(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for email, rec := range m.byEmail {
		if rec.ID == id {
			delete(m.byEmail, email)
			return nil
		}
	}
	return ErrNotFound
}
