package auth

import (
	"testing"

	"github.com/google/uuid"
	cm "github.com/mosaicnetworks/ballotguard/src/common"
)

func TestSessions(t *testing.T) {
	creds := map[string]string{"VOID001": "pass001", "VOID002": "pass002"}
	s := NewSessions(creds, cm.NewTestEntry(t, cm.TestLogLevel))

	// The table is copied.
	creds["VOID003"] = "pass003"
	if _, err := s.Login("VOID003", "pass003"); err != ErrInvalidCredentials {
		t.Fatalf("err should be ErrInvalidCredentials, not %v", err)
	}

	if _, err := s.Login("VOID001", "wrong"); err != ErrInvalidCredentials {
		t.Fatalf("err should be ErrInvalidCredentials, not %v", err)
	}

	token, err := s.Login("VOID001", "pass001")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := uuid.Parse(token); err != nil {
		t.Fatalf("token should be a UUID: %v", err)
	}

	other, err := s.Login("VOID001", "pass001")
	if err != nil {
		t.Fatal(err)
	}
	if other == token {
		t.Fatalf("each login should issue a new token")
	}

	id, ok := s.Resolve(token)
	if !ok || id != "VOID001" {
		t.Fatalf("token should resolve to VOID001, not %q (%v)", id, ok)
	}

	s.Logout(token)
	if _, ok := s.Resolve(token); ok {
		t.Fatalf("token should not resolve after Logout")
	}
	if _, ok := s.Resolve(other); !ok {
		t.Fatalf("other sessions should survive a Logout")
	}
	if l := s.Len(); l != 1 {
		t.Fatalf("Len should be 1, not %d", l)
	}
}
