package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func setSecret(t *testing.T) {
	t.Helper()
	t.Setenv("PONTO_AUTH_SECRET", "test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndValidateToken(t *testing.T) {
	setSecret(t)

	token, err := GenerateToken("user-1", "alice", RoleEmployee, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("unexpected subject: %s", claims.Subject)
	}
	if claims.Username != "alice" {
		t.Errorf("unexpected username: %s", claims.Username)
	}
	if claims.Role != RoleEmployee {
		t.Errorf("unexpected role: %s", claims.Role)
	}
	if claims.Issuer != "ponto" {
		t.Errorf("unexpected issuer: %s", claims.Issuer)
	}
}

func TestGenerateTokenValidation(t *testing.T) {
	setSecret(t)

	if _, err := GenerateToken("", "alice", RoleEmployee, time.Hour); err == nil {
		t.Error("expected error for empty user id")
	}
	if _, err := GenerateToken("user-1", "alice", "superuser", time.Hour); err == nil {
		t.Error("expected error for unknown role")
	}
	if _, err := GenerateToken("user-1", "alice", RoleEmployee, 0); err == nil {
		t.Error("expected error for non-positive ttl")
	}
}

func TestParseAndValidateRejectsGarbage(t *testing.T) {
	setSecret(t)

	for _, token := range []string{"", "   ", "not-a-jwt", "a.b.c"} {
		if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestParseAndValidateRejectsExpired(t *testing.T) {
	setSecret(t)

	token, err := GenerateToken("user-1", "alice", RoleEmployee, time.Millisecond)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestParseAndValidateRejectsWrongSecret(t *testing.T) {
	t.Setenv("PONTO_AUTH_SECRET", "secret-one")
	ResetSecretForTests()
	token, err := GenerateToken("user-1", "alice", RoleManager, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	t.Setenv("PONTO_AUTH_SECRET", "secret-two")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken under rotated secret, got %v", err)
	}
}

func TestMissingSecret(t *testing.T) {
	t.Setenv("PONTO_AUTH_SECRET", "")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	if _, err := GenerateToken("user-1", "alice", RoleEmployee, time.Hour); err == nil {
		t.Fatal("expected error without configured secret")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()

	if _, ok := UserIDFromContext(ctx); ok {
		t.Fatal("empty context must not carry a user")
	}

	ctx = ContextWithUser(ctx, "user-1", RoleManager)

	userID, ok := UserIDFromContext(ctx)
	if !ok || userID != "user-1" {
		t.Fatalf("unexpected user id: %q", userID)
	}
	if role := RoleFromContext(ctx); role != RoleManager {
		t.Fatalf("unexpected role: %q", role)
	}

	if !HasAnyRole(ctx, RoleAdmin, RoleManager) {
		t.Error("manager must satisfy admin-or-manager")
	}
	if HasAnyRole(ctx, RoleAdmin) {
		t.Error("manager must not satisfy admin-only")
	}
	if HasAnyRole(context.Background(), RoleAdmin, RoleManager, RoleEmployee) {
		t.Error("anonymous context has no roles")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "s3cret-pass" {
		t.Fatal("hash must not equal the plaintext")
	}
	if err := VerifyPassword(hash, "s3cret-pass"); err != nil {
		t.Errorf("correct password must verify: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); err == nil {
		t.Error("wrong password must not verify")
	}
}
