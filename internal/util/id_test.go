package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID("jti")
	if !strings.HasPrefix(id, "jti_") || len(id) != len("jti_")+32 {
		t.Fatalf("unexpected id %q", id)
	}
	if NewID("") == NewID("") {
		t.Fatal("expected distinct ids")
	}
}

func TestIsUUID(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"5f0c3f4e-9a53-4a55-8d6b-3f6b1c2b9f10", true},
		{"5F0C3F4E-9A53-4A55-8D6B-3F6B1C2B9F10", true},
		{"5f0c3f4e9a534a558d6b3f6b1c2b9f10", false},
		{"{5f0c3f4e-9a53-4a55-8d6b-3f6b1c2b9f10}", false},
		{"acme", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsUUID(tc.input); got != tc.want {
			t.Errorf("IsUUID(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}
