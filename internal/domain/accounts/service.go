package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/hms/hms/internal/platform/apierr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/pkg/validation"
)

func init() {
	apierr.RegisterConflict("users_email_key", "A user with this email already exists.")
}

// dummyHash is compared against when the email is unknown so that failed
// logins take the same time either way.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.MinCost)

type Service struct {
	users       UserRepository
	tx          db.Transactor
	tokens      *auth.TokenIssuer
	revocations *auth.TokenRevocationStore
	profiles    ProfileLoader
	now         func() time.Time
}

func NewService(users UserRepository, tx db.Transactor) *Service {
	if tx == nil {
		tx = db.NoTx{}
	}
	return &Service{users: users, tx: tx, now: time.Now}
}

func (s *Service) SetTokenIssuer(i *auth.TokenIssuer) { s.tokens = i }

func (s *Service) SetRevocationStore(r *auth.TokenRevocationStore) { s.revocations = r }

func (s *Service) SetProfileLoader(p ProfileLoader) { s.profiles = p }

// -- Users --

// CreateUser creates a regular user. Nil flags default to active, non-staff.
func (s *Service) CreateUser(ctx context.Context, in UserInput) (*User, error) {
	return s.create(ctx, in, false)
}

// CreateSuperuser creates an admin with staff and superuser rights. Explicitly
// clearing either flag is rejected.
func (s *Service) CreateSuperuser(ctx context.Context, in UserInput) (*User, error) {
	if in.UserType == "" {
		in.UserType = UserTypeAdmin
	}
	return s.create(ctx, in, true)
}

func (s *Service) create(ctx context.Context, in UserInput, superuser bool) (*User, error) {
	in.Email = NormalizeEmail(in.Email)
	errs := in.Validate()
	if superuser {
		if in.IsStaff != nil && !*in.IsStaff {
			errs.Add("is_staff", "Superuser must have is_staff=True.")
		}
		if in.IsSuperuser != nil && !*in.IsSuperuser {
			errs.Add("is_superuser", "Superuser must have is_superuser=True.")
		}
	}
	if in.Password != "" {
		errs.Merge("", ValidatePassword("password", in.Password, in.Email))
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := &User{
		Email:          in.Email,
		PasswordHash:   hash,
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		UserType:       in.UserType,
		PhoneNumber:    in.PhoneNumber,
		ProfilePicture: in.ProfilePicture,
		IsActive:       boolOr(in.IsActive, true),
		IsStaff:        boolOr(in.IsStaff, superuser),
		IsSuperuser:    boolOr(in.IsSuperuser, superuser),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.users.GetByEmail(ctx, NormalizeEmail(email))
}

// UpdateUser replaces the writable fields of a user. A non-empty password is
// set as well.
func (s *Service) UpdateUser(ctx context.Context, id uuid.UUID, in UserInput) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	in.Email = NormalizeEmail(in.Email)
	errs := in.Validate()
	if in.Password != "" {
		errs.Merge("", ValidatePassword("password", in.Password, in.Email))
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	u.Email = in.Email
	u.FirstName = in.FirstName
	u.LastName = in.LastName
	u.UserType = in.UserType
	u.PhoneNumber = in.PhoneNumber
	u.ProfilePicture = in.ProfilePicture
	u.IsActive = boolOr(in.IsActive, u.IsActive)
	u.IsStaff = boolOr(in.IsStaff, u.IsStaff)
	u.IsSuperuser = boolOr(in.IsSuperuser, u.IsSuperuser)

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.users.Update(ctx, u); err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		if in.Password != "" {
			return s.setPassword(ctx, u, in.Password)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !u.IsActive && s.revocations != nil {
		s.revocations.RevokeUser(u.ID.String())
	}
	return u, nil
}

// DeleteUser removes a user together with its profile and everything that
// references the profile.
func (s *Service) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	if s.revocations != nil {
		s.revocations.RevokeUser(id.String())
	}
	return nil
}

func (s *Service) SearchUsers(ctx context.Context, params url.Values, limit, offset int) ([]*User, int, error) {
	return s.users.Search(ctx, params, limit, offset)
}

// -- Passwords --

// SetPassword validates and stores a new password and ends the user's
// existing sessions.
func (s *Service) SetPassword(ctx context.Context, id uuid.UUID, raw string) error {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := ValidatePassword("password", raw, u.Email).Err(); err != nil {
		return err
	}
	return s.setPassword(ctx, u, raw)
}

func (s *Service) setPassword(ctx context.Context, u *User, raw string) error {
	hash, err := HashPassword(raw)
	if err != nil {
		return err
	}
	if err := s.users.SetPasswordHash(ctx, u.ID, hash); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	u.PasswordHash = hash
	if s.revocations != nil {
		s.revocations.RevokeUser(u.ID.String())
	}
	return nil
}

// ChangePassword sets a new password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, oldPassword, newPassword string) error {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if ok, _ := CheckPassword(u.PasswordHash, oldPassword); !ok {
		return validation.Single("old_password", "Your old password was entered incorrectly. Please enter it again.")
	}
	errs := ValidatePassword("new_password", newPassword, u.Email)
	if newPassword == oldPassword {
		errs.Add("new_password", "The new password must differ from the old one.")
	}
	if err := errs.Err(); err != nil {
		return err
	}
	return s.setPassword(ctx, u, newPassword)
}

// -- Authentication --

// Authenticate returns the active user identified by email and password.
// Legacy hashes are upgraded to bcrypt on success.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, apierr.ErrUnauthorized
		}
		return nil, err
	}
	ok, rehash := CheckPassword(u.PasswordHash, password)
	if !ok || !u.IsActive {
		return nil, apierr.ErrUnauthorized
	}
	if rehash {
		if hash, err := HashPassword(password); err == nil {
			if err := s.users.SetPasswordHash(ctx, u.ID, hash); err != nil {
				log.Warn().Err(err).Str("user_id", u.ID.String()).Msg("failed to upgrade legacy password hash")
			} else {
				u.PasswordHash = hash
			}
		}
	}
	return u, nil
}

// Login authenticates the user and issues an access token carrying the
// user's roles and profile ids.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if s.tokens == nil {
		return nil, errors.New("token issuer is not configured")
	}
	u, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.users.TouchLastLogin(ctx, u.ID, now); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	u.LastLogin = &now

	profile, err := s.profile(ctx, u.ID, false)
	if err != nil {
		return nil, err
	}
	id := auth.Identity{
		UserID: u.ID,
		Email:  u.Email,
		Roles:  auth.RolesFor(u.UserType, u.IsStaff, u.IsSuperuser),
	}
	if profile != nil {
		id.PatientID = profile.PatientID
		id.DoctorID = profile.DoctorID
	}

	token, exp, err := s.tokens.Issue(id)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, TokenType: "Bearer", ExpiresAt: exp, User: u, Profile: profile}, nil
}

// Logout revokes the token identified by jti.
func (s *Service) Logout(jti string) {
	if s.revocations == nil || jti == "" || s.tokens == nil {
		return
	}
	s.revocations.Revoke(jti, s.now().Add(s.tokens.TTL()))
}

// Profile returns the profile of a user, including the full patient or
// doctor record. Users without a profile yield nil.
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	return s.profile(ctx, userID, true)
}

func (s *Service) profile(ctx context.Context, userID uuid.UUID, detail bool) (*Profile, error) {
	if s.profiles == nil {
		return nil, nil
	}
	p, err := s.profiles.LoadProfile(ctx, userID, detail)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return p, nil
}
