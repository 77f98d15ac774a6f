package auth

import (
	"errors"
	"testing"
	"time"
)

func TestLogin(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{"valid", "alice", "secret", nil},
		{"minimum length", "bob", "abc", nil},
		{"short username", "al", "secret", ErrInvalidCredentials},
		{"short password", "alice", "pw", ErrInvalidCredentials},
		{"empty", "", "", ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New("test-secret", time.Hour)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			_, err = a.Login(tt.username, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Login err = %v, want %v", err, tt.wantErr)
			}
			if got := a.IsAuthenticated(); got != (tt.wantErr == nil) {
				t.Errorf("IsAuthenticated = %v, want %v", got, tt.wantErr == nil)
			}
		})
	}
}

func TestVerify_ReturnsUsername(t *testing.T) {
	a, _ := New("test-secret", time.Hour)
	if _, err := a.Login("carol", "hunter2"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	name, err := a.Verify()
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if name != "carol" {
		t.Errorf("username = %q, want carol", name)
	}
}

func TestVerify_Expired(t *testing.T) {
	a, _ := New("test-secret", time.Minute)
	now := time.Unix(1_700_000_000, 0)
	a.now = func() time.Time { return now }
	if _, err := a.Login("dave", "password"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := a.Verify(); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Verify err = %v, want %v", err, ErrNotAuthenticated)
	}
}

func TestLogout(t *testing.T) {
	a, _ := New("test-secret", time.Hour)
	_, _ = a.Login("erin", "password")
	a.Logout()
	if a.IsAuthenticated() {
		t.Error("still authenticated after logout")
	}
	if a.Username() != "" {
		t.Errorf("Username = %q after logout", a.Username())
	}
}

func TestNew_EmptySecret(t *testing.T) {
	if _, err := New("", time.Hour); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("err = %v, want %v", err, ErrEmptySecret)
	}
}
