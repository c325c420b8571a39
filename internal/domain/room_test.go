package domain

import (
	"strings"
	"testing"
)

func TestNewRoomCode_Shape(t *testing.T) {
	code := NewRoomCode()

	if len(code) != 6 {
		t.Fatalf("expected 6-character code, got %q", code)
	}
	if !ValidRoomCode(code) {
		t.Errorf("generated code %q failed validation", code)
	}
	if strings.ContainsAny(code, "01IO") {
		t.Errorf("code %q contains an ambiguous character", code)
	}
}

func TestNewRoomCode_Distinct(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		seen[NewRoomCode()] = true
	}
	// Collisions are possible but a run of duplicates means the
	// generator is broken.
	if len(seen) < 95 {
		t.Errorf("expected mostly distinct codes, got %d unique of 100", len(seen))
	}
}

func TestValidRoomCode(t *testing.T) {
	cases := []struct {
		code string
		want bool
	}{
		{"AB12CD", true},
		{"ab12cd", true},
		{"  AB12CD ", true},
		// Never generated, but accepted when typed in.
		{"AB1OCD", true},
		{"O0I1LO", true},
		{"AB12C", false},
		{"AB12CDE", false},
		{"", false},
		{"AB 2CD", false},
		{"AB12C!", false},
	}
	for _, c := range cases {
		if got := ValidRoomCode(c.code); got != c.want {
			t.Errorf("ValidRoomCode(%q) = %v, want %v", c.code, got, c.want)
		}
	}
}

func TestJoinResultErr(t *testing.T) {
	if err := (JoinResult{OK: true}).Err(); err != nil {
		t.Errorf("expected nil for successful join, got %v", err)
	}
	if err := (JoinResult{Error: "room-full"}).Err(); err != ErrRoomFull {
		t.Errorf("expected ErrRoomFull, got %v", err)
	}
	if err := (JoinResult{Error: "room-not-found"}).Err(); err != ErrRoomNotFound {
		t.Errorf("expected ErrRoomNotFound, got %v", err)
	}
	if err := (JoinResult{Error: "something else"}).Err(); err != ErrNetwork {
		t.Errorf("expected ErrNetwork for unknown relay error, got %v", err)
	}
}

func TestRoleInitiator(t *testing.T) {
	if !RoleDoctor.Initiator() {
		t.Error("doctor should initiate the offer")
	}
	if RolePatient.Initiator() {
		t.Error("patient should answer, not initiate")
	}
	if RoleDoctor.Other() != RolePatient || RolePatient.Other() != RoleDoctor {
		t.Error("Other should swap roles")
	}
}
