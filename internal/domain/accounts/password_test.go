package accounts

import (
	"strings"
	"testing"
)

func TestHashPassword_Bcrypt(t *testing.T) {
	hash, err := HashPassword("open-sesame")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("expected bcrypt hash, got %s", hash)
	}
	ok, rehash := CheckPassword(hash, "open-sesame")
	if !ok || rehash {
		t.Errorf("expected match without rehash, got ok=%v rehash=%v", ok, rehash)
	}
	if ok, _ := CheckPassword(hash, "open-sesame!"); ok {
		t.Error("expected mismatch for a different password")
	}
}

func TestHashPassword_EmptyIsUnusable(t *testing.T) {
	a, err := HashPassword("")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := HashPassword("")
	if !strings.HasPrefix(a, UnusablePasswordPrefix) {
		t.Errorf("expected unusable prefix, got %s", a)
	}
	if a == b {
		t.Error("expected unusable hashes to be random")
	}
	if ok, _ := CheckPassword(a, ""); ok {
		t.Error("unusable hash must never match")
	}
}

func TestCheckPassword_DjangoPBKDF2(t *testing.T) {
	encoded := "pbkdf2_sha256$260000$saltsalt$Lrsq6xoXG4zL4FeGrpLcHtk0ty9wl6mE+qnRIK0i3rU="

	ok, rehash := CheckPassword(encoded, "correct horse")
	if !ok {
		t.Fatal("expected legacy hash to verify")
	}
	if !rehash {
		t.Error("expected legacy hash to be flagged for rehash")
	}
	if ok, _ := CheckPassword(encoded, "battery staple"); ok {
		t.Error("expected mismatch")
	}
}

func TestCheckPassword_Malformed(t *testing.T) {
	tests := []string{
		"",
		"pbkdf2_sha256$abc$salt$hash",
		"pbkdf2_sha256$100",
		"md5$salt$hash",
		"not-a-hash",
	}
	for _, encoded := range tests {
		if ok, _ := CheckPassword(encoded, "anything"); ok {
			t.Errorf("CheckPassword(%q) matched", encoded)
		}
	}
}

func TestEncodePBKDF2_RoundTrip(t *testing.T) {
	encoded := encodePBKDF2("hunter22", "pepper", 1000)
	if !strings.HasPrefix(encoded, "pbkdf2_sha256$1000$pepper$") {
		t.Errorf("unexpected encoding %s", encoded)
	}
	if ok, _ := CheckPassword(encoded, "hunter22"); !ok {
		t.Error("expected encoded password to verify")
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		raw   string
		email string
		want  int
	}{
		{"long-enough", "a@example.com", 0},
		{"short", "a@example.com", 1},
		{"12345678", "a@example.com", 1},
		{"1234", "a@example.com", 2},
		{"xmariax-2024", "maria@example.com", 1},
	}
	for _, tt := range tests {
		errs := ValidatePassword("password", tt.raw, tt.email)
		if got := len(errs["password"]); got != tt.want {
			t.Errorf("ValidatePassword(%q) = %v, want %d messages", tt.raw, errs, tt.want)
		}
	}
}
