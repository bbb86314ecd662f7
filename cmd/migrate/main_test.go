package main

import (
	"context"
	"testing"

	"gymstudio.app/internal/auth"
)

func TestBootstrapAdminIdempotent(t *testing.T) {
	ctx := context.Background()
	accounts := auth.NewMemoryAccounts()

	if err := bootstrapAdmin(ctx, accounts, "admin@studio.test", "long-enough", "Admin"); err != nil {
		t.Fatalf("first bootstrap: %v", err)
	}
	if err := bootstrapAdmin(ctx, accounts, "admin@studio.test", "long-enough", "Admin"); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	acc, err := accounts.LookupByEmail(ctx, "admin@studio.test")
	if err != nil || acc.Role != auth.RoleAdmin {
		t.Fatalf("unexpected account %+v (%v)", acc, err)
	}
}

func TestBootstrapAdminRejectsNonAdminAccount(t *testing.T) {
	ctx := context.Background()
	accounts := auth.NewMemoryAccounts()
	if _, err := accounts.CreateAccount(ctx, "coach@studio.test", "long-enough", auth.AccountMetadata{Role: auth.RoleCoach}); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if err := bootstrapAdmin(ctx, accounts, "coach@studio.test", "long-enough", "Admin"); err == nil {
		t.Fatal("expected error for non-admin account")
	}
	if err := bootstrapAdmin(ctx, accounts, "", "", ""); err == nil {
		t.Fatal("expected error for missing credentials")
	}
}
