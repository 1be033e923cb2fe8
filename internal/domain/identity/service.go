package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/accounts"
	"github.com/hms/hms/internal/platform/apierr"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/pkg/validation"
)

func init() {
	apierr.RegisterConflict("patient_user_id_key", "This user already has a patient profile.")
	apierr.RegisterConflict("doctor_user_id_key", "This user already has a doctor profile.")
	apierr.RegisterConflict("doctor_license_number_key", "A doctor with this license number already exists.")
}

// UserDirectory is the part of the accounts service that profiles use to
// create and edit their owning users.
type UserDirectory interface {
	CreateUser(ctx context.Context, in accounts.UserInput) (*accounts.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*accounts.User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, in accounts.UserInput) (*accounts.User, error)
}

type Service struct {
	patients PatientRepository
	doctors  DoctorRepository
	users    UserDirectory
	tx       db.Transactor
	today    func() civil.Date
}

func NewService(patients PatientRepository, doctors DoctorRepository, users UserDirectory, tx db.Transactor) *Service {
	if tx == nil {
		tx = db.NoTx{}
	}
	return &Service{
		patients: patients,
		doctors:  doctors,
		users:    users,
		tx:       tx,
		today:    func() civil.Date { return civil.DateOf(time.Now()) },
	}
}

// resolveUser creates the nested user or loads the referenced one and checks
// that it has the wanted type.
func (s *Service) resolveUser(ctx context.Context, userID *uuid.UUID, in *accounts.UserInput, userType string) (*accounts.User, error) {
	if in != nil {
		in.UserType = userType
		u, err := s.users.CreateUser(ctx, *in)
		return u, prefixErrors("user", err)
	}
	u, err := s.users.GetUser(ctx, *userID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, validation.Single("user_id", fmt.Sprintf("Invalid pk %q - object does not exist.", userID.String()))
	}
	if err != nil {
		return nil, err
	}
	if u.UserType != userType {
		return nil, validation.Single("user_id", fmt.Sprintf("User must be of type %s.", userType))
	}
	return u, nil
}

// checkUserInput validates the profile's user part up front so that user and
// profile errors are reported together.
func checkUserInput(errs validation.Errors, userID *uuid.UUID, in *accounts.UserInput, userType string, creating bool) {
	if in == nil {
		if creating && userID == nil {
			errs.Add("user_id", "This field is required.")
		}
		return
	}
	cp := *in
	cp.Email = accounts.NormalizeEmail(cp.Email)
	cp.UserType = userType
	errs.Merge("user", cp.Validate())
}

func prefixErrors(prefix string, err error) error {
	if ve, ok := validation.As(err); ok {
		out := validation.Errors{}
		out.Merge(prefix, ve)
		return out
	}
	return err
}

// -- Patient --

func (s *Service) CreatePatient(ctx context.Context, in PatientInput) (*Patient, error) {
	dob, errs := in.Validate(s.today())
	checkUserInput(errs, in.UserID, in.User, accounts.UserTypePatient, true)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	p := &Patient{
		Gender:           in.Gender,
		DateOfBirth:      dob,
		EmergencyContact: in.EmergencyContact,
		InsuranceType:    in.InsuranceType,
	}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		u, err := s.resolveUser(ctx, in.UserID, in.User, accounts.UserTypePatient)
		if err != nil {
			return err
		}
		p.UserID = u.ID
		p.User = summaryOf(u)
		if err := s.patients.Create(ctx, p); err != nil {
			return fmt.Errorf("create patient: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) GetPatientByUser(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	return s.patients.GetByUserID(ctx, userID)
}

// PatientPatchBase returns the current state of a patient, including its
// user, as an input that a partial update can be applied on.
func (s *Service) PatientPatchBase(ctx context.Context, id uuid.UUID) (PatientInput, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return PatientInput{}, err
	}
	in := PatientInputFrom(p)
	u, err := s.users.GetUser(ctx, p.UserID)
	if err != nil {
		return PatientInput{}, err
	}
	ui := accounts.InputFrom(u)
	in.User = &ui
	return in, nil
}

// UpdatePatient replaces the patient fields. When in.User is set the owning
// user is updated in the same transaction.
func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, in PatientInput) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	dob, errs := in.Validate(s.today())
	checkUserInput(errs, nil, in.User, accounts.UserTypePatient, false)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	p.Gender = in.Gender
	p.DateOfBirth = dob
	p.EmergencyContact = in.EmergencyContact
	p.InsuranceType = in.InsuranceType
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if in.User != nil {
			in.User.UserType = accounts.UserTypePatient
			u, err := s.users.UpdateUser(ctx, p.UserID, *in.User)
			if err != nil {
				return prefixErrors("user", err)
			}
			p.User = summaryOf(u)
		}
		if err := s.patients.Update(ctx, p); err != nil {
			return fmt.Errorf("update patient: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePatient removes the patient profile. Its user account is kept.
func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.patients.Delete(ctx, id)
}

func (s *Service) SearchPatients(ctx context.Context, params url.Values, limit, offset int) ([]*Patient, int, error) {
	return s.patients.Search(ctx, params, limit, offset)
}

// -- Doctor --

func (s *Service) CreateDoctor(ctx context.Context, in DoctorInput) (*Doctor, error) {
	errs := in.Validate()
	checkUserInput(errs, in.UserID, in.User, accounts.UserTypeDoctor, true)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	d := &Doctor{
		Specialization:       in.Specialization,
		LicenseNumber:        in.LicenseNumber,
		Biography:            in.Biography,
		YearsOfExperience:    in.YearsOfExperience,
		AcceptingNewPatients: in.AcceptingNewPatients == nil || *in.AcceptingNewPatients,
	}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		u, err := s.resolveUser(ctx, in.UserID, in.User, accounts.UserTypeDoctor)
		if err != nil {
			return err
		}
		d.UserID = u.ID
		d.User = summaryOf(u)
		if err := s.doctors.Create(ctx, d); err != nil {
			return fmt.Errorf("create doctor: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) DoctorPatchBase(ctx context.Context, id uuid.UUID) (DoctorInput, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return DoctorInput{}, err
	}
	in := DoctorInputFrom(d)
	u, err := s.users.GetUser(ctx, d.UserID)
	if err != nil {
		return DoctorInput{}, err
	}
	ui := accounts.InputFrom(u)
	in.User = &ui
	return in, nil
}

func (s *Service) UpdateDoctor(ctx context.Context, id uuid.UUID, in DoctorInput) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	errs := in.Validate()
	checkUserInput(errs, nil, in.User, accounts.UserTypeDoctor, false)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	d.Specialization = in.Specialization
	d.LicenseNumber = in.LicenseNumber
	d.Biography = in.Biography
	d.YearsOfExperience = in.YearsOfExperience
	if in.AcceptingNewPatients != nil {
		d.AcceptingNewPatients = *in.AcceptingNewPatients
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if in.User != nil {
			in.User.UserType = accounts.UserTypeDoctor
			u, err := s.users.UpdateUser(ctx, d.UserID, *in.User)
			if err != nil {
				return prefixErrors("user", err)
			}
			d.User = summaryOf(u)
		}
		if err := s.doctors.Update(ctx, d); err != nil {
			return fmt.Errorf("update doctor: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// DeleteDoctor removes the doctor profile. Clinical records keep their rows
// with the doctor cleared; appointments with the doctor are deleted.
func (s *Service) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	return s.doctors.Delete(ctx, id)
}

func (s *Service) SearchDoctors(ctx context.Context, params url.Values, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.Search(ctx, params, limit, offset)
}

// -- Profiles --

// LoadProfile finds the patient or doctor profile owned by a user. detail
// includes the full record.
func (s *Service) LoadProfile(ctx context.Context, userID uuid.UUID, detail bool) (*accounts.Profile, error) {
	p, err := s.patients.GetByUserID(ctx, userID)
	switch {
	case err == nil:
		prof := &accounts.Profile{PatientID: &p.ID}
		if detail {
			prof.Detail = p
		}
		return prof, nil
	case !errors.Is(err, db.ErrNotFound):
		return nil, err
	}

	d, err := s.doctors.GetByUserID(ctx, userID)
	switch {
	case err == nil:
		prof := &accounts.Profile{DoctorID: &d.ID}
		if detail {
			prof.Detail = d
		}
		return prof, nil
	case errors.Is(err, db.ErrNotFound):
		return nil, nil
	}
	return nil, err
}

// CheckRefs records field errors for a missing patient or an unknown patient
// or doctor id. Clinical records and appointments call it before writing.
func (s *Service) CheckRefs(ctx context.Context, errs validation.Errors, patientID uuid.UUID, doctorID *uuid.UUID) error {
	if patientID == uuid.Nil {
		errs.Add("patient_id", "This field is required.")
	} else if _, err := s.patients.GetByID(ctx, patientID); errors.Is(err, db.ErrNotFound) {
		errs.Addf("patient_id", "Invalid pk %q - object does not exist.", patientID.String())
	} else if err != nil {
		return err
	}
	if doctorID == nil {
		return nil
	}
	if _, err := s.doctors.GetByID(ctx, *doctorID); errors.Is(err, db.ErrNotFound) {
		errs.Addf("doctor_id", "Invalid pk %q - object does not exist.", doctorID.String())
	} else if err != nil {
		return err
	}
	return nil
}
