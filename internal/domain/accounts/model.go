package accounts

import (
	"encoding/json"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/pkg/validation"
)

const (
	UserTypePatient = "patient"
	UserTypeDoctor  = "doctor"
	UserTypeAdmin   = "admin"
)

var UserTypeChoices = map[string]string{
	UserTypePatient: "Patient",
	UserTypeDoctor:  "Doctor",
	UserTypeAdmin:   "Administrator",
}

// PhonePattern accepts up to 15 digits with an optional "+" and leading 1.
var PhonePattern = regexp.MustCompile(`^\+?1?\d{9,15}$`)

// emailDomainPattern accepts dotted host names with an alphabetic or
// punycode top-level label.
var emailDomainPattern = regexp.MustCompile(`^(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+(?:[a-z]{2,63}|xn--[a-z0-9]{1,59})$`)

// PhoneMessage is reported for numbers that do not match PhonePattern.
const PhoneMessage = "Phone number must be entered in the format: '+999999999'. Up to 15 digits allowed."

// User maps to the users table.
type User struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	Email          string     `db:"email" json:"email"`
	PasswordHash   string     `db:"password_hash" json:"-"`
	FirstName      string     `db:"first_name" json:"first_name"`
	LastName       string     `db:"last_name" json:"last_name"`
	UserType       string     `db:"user_type" json:"user_type"`
	PhoneNumber    string     `db:"phone_number" json:"phone_number"`
	ProfilePicture string     `db:"profile_picture" json:"profile_picture"`
	IsActive       bool       `db:"is_active" json:"is_active"`
	IsStaff        bool       `db:"is_staff" json:"is_staff"`
	IsSuperuser    bool       `db:"is_superuser" json:"is_superuser"`
	LastLogin      *time.Time `db:"last_login" json:"last_login"`
	DateJoined     time.Time  `db:"date_joined" json:"date_joined"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName returns "first last" with blanks trimmed.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// HasUsablePassword reports whether the user can log in with a password.
func (u *User) HasUsablePassword() bool {
	return u.PasswordHash != "" && !strings.HasPrefix(u.PasswordHash, UnusablePasswordPrefix)
}

func (u User) MarshalJSON() ([]byte, error) {
	type plain User
	return json.Marshal(struct {
		plain
		FullName        string `json:"full_name"`
		UserTypeDisplay string `json:"user_type_display"`
	}{plain(u), u.FullName(), UserTypeChoices[u.UserType]})
}

// UserInput is the writable part of a user. Nil flags take the defaults of
// the operation that consumes the input.
type UserInput struct {
	Email          string `json:"email"`
	Password       string `json:"password,omitempty"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	UserType       string `json:"user_type"`
	PhoneNumber    string `json:"phone_number"`
	ProfilePicture string `json:"profile_picture"`
	IsActive       *bool  `json:"is_active,omitempty"`
	IsStaff        *bool  `json:"is_staff,omitempty"`
	IsSuperuser    *bool  `json:"is_superuser,omitempty"`
}

// InputFrom returns the input that would recreate u, used as the base for
// partial updates.
func InputFrom(u *User) UserInput {
	active, staff, super := u.IsActive, u.IsStaff, u.IsSuperuser
	return UserInput{
		Email:          u.Email,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		UserType:       u.UserType,
		PhoneNumber:    u.PhoneNumber,
		ProfilePicture: u.ProfilePicture,
		IsActive:       &active,
		IsStaff:        &staff,
		IsSuperuser:    &super,
	}
}

// NormalizeEmail trims surrounding whitespace and lower-cases the domain part.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}

func validEmailDomain(email string) bool {
	domain := strings.ToLower(email[strings.LastIndex(email, "@")+1:])
	return domain == "localhost" || emailDomainPattern.MatchString(domain)
}

// Validate checks field formats. It does not check uniqueness.
func (in *UserInput) Validate() validation.Errors {
	errs := validation.Errors{}

	if errs.Required("email", in.Email) && errs.MaxLength("email", in.Email, 254) {
		addr, err := mail.ParseAddress(in.Email)
		if err != nil || addr.Address != in.Email || !validEmailDomain(in.Email) {
			errs.Add("email", "Enter a valid email address.")
		}
	}
	errs.MaxLength("first_name", in.FirstName, 150)
	errs.MaxLength("last_name", in.LastName, 150)
	if errs.Required("user_type", in.UserType) {
		errs.Choice("user_type", in.UserType, UserTypeChoices)
	}
	if in.PhoneNumber != "" {
		if errs.MaxLength("phone_number", in.PhoneNumber, 17) && !PhonePattern.MatchString(in.PhoneNumber) {
			errs.Add("phone_number", PhoneMessage)
		}
	}
	if in.ProfilePicture != "" && errs.MaxLength("profile_picture", in.ProfilePicture, 200) {
		if !validURL(in.ProfilePicture) {
			errs.Add("profile_picture", "Enter a valid URL.")
		}
	}
	return errs
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Profile identifies the patient or doctor record attached to a user.
type Profile struct {
	PatientID *uuid.UUID  `json:"patient_id,omitempty"`
	DoctorID  *uuid.UUID  `json:"doctor_id,omitempty"`
	Detail    interface{} `json:"detail,omitempty"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
	Profile   *Profile  `json:"profile,omitempty"`
}
