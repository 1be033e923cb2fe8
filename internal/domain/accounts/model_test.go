package accounts

import (
	"encoding/json"
	"testing"
)

func TestNormalizeEmail(t *testing.T) {
	tests := map[string]string{
		"  John@EXAMPLE.com ": "John@example.com",
		"a@B.c":               "a@b.c",
		"no-at-sign":          "no-at-sign",
		"x@y@Z.org":           "x@y@z.org",
	}
	for in, want := range tests {
		if got := NormalizeEmail(in); got != want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPhonePattern(t *testing.T) {
	valid := []string{"+999999999", "14155550123", "+14155550123", "123456789012345"}
	invalid := []string{"12345678", "+1-415-555-0123", "phone", "1234567890123456789"}
	for _, p := range valid {
		if !PhonePattern.MatchString(p) {
			t.Errorf("expected %q to be valid", p)
		}
	}
	for _, p := range invalid {
		if PhonePattern.MatchString(p) {
			t.Errorf("expected %q to be invalid", p)
		}
	}
}

func TestUserInput_Validate(t *testing.T) {
	in := UserInput{
		Email:          "Jane <jane@example.com>",
		UserType:       "nurse",
		PhoneNumber:    "555",
		ProfilePicture: "ftp://example.com/p.png",
	}
	errs := in.Validate()
	for _, field := range []string{"email", "user_type", "phone_number", "profile_picture"} {
		if !errs.Has(field) {
			t.Errorf("expected error on %s, got %v", field, errs)
		}
	}

	ok := UserInput{Email: "jane@example.com", UserType: UserTypeDoctor, ProfilePicture: "https://cdn.example.com/j.png"}
	if errs := ok.Validate(); len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
}

func TestUserInput_ValidateEmailDomain(t *testing.T) {
	tests := map[string]bool{
		"a@b":                  false,
		"a@b.c":                false,
		"a@-host.com":          false,
		"a@host..com":          false,
		"a@host.com.":          false,
		"a@b.co":               true,
		"front.desk@hms.local": true,
		"ops@LOCALHOST":        true,
		"x@xn--p1ai.xn--p1ai":  true,
	}
	for email, valid := range tests {
		in := UserInput{Email: email, UserType: UserTypeAdmin}
		if got := !in.Validate().Has("email"); got != valid {
			t.Errorf("%q: valid = %v, want %v", email, got, valid)
		}
	}
}

func TestUser_JSON(t *testing.T) {
	u := User{Email: "a@b.co", FirstName: "Ada", LastName: "Lovelace", UserType: UserTypeAdmin, PasswordHash: "secret"}
	b, err := json.Marshal(u)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if m["full_name"] != "Ada Lovelace" {
		t.Errorf("expected full_name, got %v", m["full_name"])
	}
	if m["user_type_display"] != "Administrator" {
		t.Errorf("expected user_type_display Administrator, got %v", m["user_type_display"])
	}
	if _, ok := m["password_hash"]; ok {
		t.Error("password hash must not be serialized")
	}
}
