package token

import (
	"errors"
	"testing"
	"time"

	"github.com/swasthik/sarathi/core/user"
	"golang.org/x/crypto/bcrypt"
)

func testUser(t *testing.T) user.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("pwd"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	return user.User{
		ID:           "0c49d0e1-282f-4b7c-8b96-985132ed5868",
		Username:     "tara",
		Email:        "tara@test.test",
		Active:       true,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastLogin:    now,
	}
}

func TestMakeVerify(t *testing.T) {
	const secret = "test-secret"
	const timeout = 72 * time.Hour

	usr := testUser(t)

	valid, err := Make(usr, ScopeActivate, secret)
	if err != nil {
		t.Fatal(err)
	}

	dayLate := timeout + 24*time.Hour
	nowFunc = func() time.Time { return time.Now().Add(-dayLate) }
	expired, err := Make(usr, ScopeActivate, secret)
	if err != nil {
		t.Fatal(err)
	}
	nowFunc = time.Now

	recovery, err := Make(usr, ScopeRecover, secret)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "no token", wantErr: ErrInvalid},
		{name: "invalid parts", token: "lonesegment", wantErr: ErrInvalid},
		{name: "invalid base32", token: "hahaha-sig", wantErr: ErrInvalid},
		{name: "invalid timestamp", token: "NRXWY-sig", wantErr: ErrInvalid},
		{name: "tampered signature", token: valid + "x", wantErr: ErrInvalid},
		{name: "wrong scope", token: recovery, wantErr: ErrInvalid},
		{name: "wrong secret", token: mustMake(t, usr, ScopeActivate, "other"), wantErr: ErrInvalid},
		{name: "expired token", token: expired, wantErr: ErrExpired},
		{name: "valid token", token: valid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(usr, ScopeActivate, secret, tt.token, timeout)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerifyAfterAccountUse(t *testing.T) {
	const secret = "test-secret"
	const timeout = 72 * time.Hour

	usr := testUser(t)
	usr.LastLogin = time.Time{}

	tok, err := Make(usr, ScopeActivate, secret)
	if err != nil {
		t.Fatal(err)
	}

	if err := Verify(usr, ScopeActivate, secret, tok, timeout); err != nil {
		t.Fatalf("fresh token should verify: %v", err)
	}

	usr.LastLogin = time.Now()
	if err := Verify(usr, ScopeActivate, secret, tok, timeout); !errors.Is(err, ErrInvalid) {
		t.Fatalf("token issued before a login should be invalid, got %v", err)
	}
}

func TestVerifyAfterPasswordChange(t *testing.T) {
	const secret = "test-secret"
	const timeout = 72 * time.Hour

	usr := testUser(t)

	tok, err := Make(usr, ScopeRecover, secret)
	if err != nil {
		t.Fatal(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("new-pwd"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	usr.PasswordHash = hash

	if err := Verify(usr, ScopeRecover, secret, tok, timeout); !errors.Is(err, ErrInvalid) {
		t.Fatalf("token issued before a password change should be invalid, got %v", err)
	}
}

func mustMake(t *testing.T, usr user.User, scope, secret string) string {
	t.Helper()

	tok, err := Make(usr, scope, secret)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}
