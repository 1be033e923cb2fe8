package accounts

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"

	"github.com/hms/hms/pkg/validation"
)

// UnusablePasswordPrefix marks a hash no password can match.
const UnusablePasswordPrefix = "!"

const (
	pbkdf2Algorithm = "pbkdf2_sha256"
	pbkdf2KeyLen    = 32
	minPasswordLen  = 8
)

var bcryptCost = bcrypt.DefaultCost

// HashPassword hashes raw with bcrypt. An empty password yields an unusable
// hash.
func HashPassword(raw string) (string, error) {
	if raw == "" {
		return unusablePassword()
	}
	b, err := bcrypt.GenerateFromPassword([]byte(raw), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

func unusablePassword() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate unusable password: %w", err)
	}
	return UnusablePasswordPrefix + hex.EncodeToString(buf), nil
}

// CheckPassword reports whether raw matches encoded. needsRehash is true when
// the match was against a legacy PBKDF2 hash that should be replaced.
func CheckPassword(encoded, raw string) (ok, needsRehash bool) {
	switch {
	case encoded == "", strings.HasPrefix(encoded, UnusablePasswordPrefix):
		return false, false
	case strings.HasPrefix(encoded, pbkdf2Algorithm+"$"):
		parts := strings.SplitN(encoded, "$", 4)
		if len(parts) != 4 {
			return false, false
		}
		iterations, err := strconv.Atoi(parts[1])
		if err != nil || iterations <= 0 {
			return false, false
		}
		candidate := encodePBKDF2(raw, parts[2], iterations)
		return subtle.ConstantTimeCompare([]byte(candidate), []byte(encoded)) == 1, true
	}
	if err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(raw)); err != nil {
		return false, false
	}
	return true, false
}

// encodePBKDF2 produces "pbkdf2_sha256$<iterations>$<salt>$<base64 key>".
func encodePBKDF2(raw, salt string, iterations int) string {
	key := pbkdf2.Key([]byte(raw), []byte(salt), iterations, pbkdf2KeyLen, sha256.New)
	return fmt.Sprintf("%s$%d$%s$%s", pbkdf2Algorithm, iterations, salt,
		base64.StdEncoding.EncodeToString(key))
}

// ValidatePassword applies the password strength rules. field names the
// input the messages are reported on.
func ValidatePassword(field, raw, email string) validation.Errors {
	errs := validation.Errors{}
	if utf8.RuneCountInString(raw) < minPasswordLen {
		errs.Addf(field, "This password is too short. It must contain at least %d characters.", minPasswordLen)
	}
	if raw != "" && strings.IndexFunc(raw, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		errs.Add(field, "This password is entirely numeric.")
	}
	if local, _, ok := strings.Cut(strings.ToLower(email), "@"); ok && len(local) >= 3 &&
		strings.Contains(strings.ToLower(raw), local) {
		errs.Add(field, "The password is too similar to the email address.")
	}
	return errs
}
