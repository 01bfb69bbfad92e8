package user

import (
	"context"
	"errors"
	"io"
	"net/mail"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("user")
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNoProfileImage     = core.NewNotFoundError("profile image")
)

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, id string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		QueryUsers(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		store   core.FileStorage
	}
)

func NewService(repo Repository, mailSvc core.EmailService, store core.FileStorage) *Service {
	return &Service{repo: repo, mailSvc: mailSvc, store: store}
}

// OrderingFields are the fields users may be ordered by.
var OrderingFields = []string{"first_name", "last_name", "email", "created_at"}

func (svc *Service) checkUniqueness(email string, exclUsers ...User) error {
	if err := svc.repo.CheckEmailUniqueness(context.Background(), email, exclUsers...); err != nil {
		if err == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

// Register creates a new User from validated data and sends them a welcome email.
func (svc *Service) Register(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		FirstName:     nu.FirstName,
		LastName:      nu.LastName,
		Email:         nu.Email,
		PhoneNumber:   nu.PhoneNumber,
		Role:          nu.Role,
		AcademicLevel: nu.AcademicLevel,
		AcademicYear:  nu.AcademicYear,
		Major:         nu.Major,
		Group:         nu.Group,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, pkgerrors.Wrap(err, "setting password")
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, pkgerrors.Wrap(err, "creating user")
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject:      "Welcome!",
		TemplateName: "welcome",
		TemplateData: map[string]string{"Name": usr.FirstName, "Email": usr.Email},
	})
	return usr, nil
}

// Authenticate checks the credentials and records the login time.
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		if core.IsNotFound(err) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, pkgerrors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrInvalidCredentials
	}

	usr.LastLogin = time.Now().UTC()
	usr, err = svc.repo.UpdateUser(ctx, usr)
	return usr, pkgerrors.Wrap(err, "setting last login")
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, core.AllowedOrderings(ordering, OrderingFields...)...)
}

// UpdateProfile applies validated profile changes to usr.
func (svc *Service) UpdateProfile(ctx context.Context, usr User, up UpdateProfile) (User, error) {
	if up.FirstName != "" {
		usr.FirstName = up.FirstName
	}
	if up.LastName != "" {
		usr.LastName = up.LastName
	}
	if up.Email != "" {
		usr.Email = up.Email
	}
	if up.PhoneNumber != "" {
		usr.PhoneNumber = up.PhoneNumber
	}
	if up.NewPassword != "" {
		if err := usr.SetPassword(up.NewPassword); err != nil {
			return User{}, pkgerrors.Wrap(err, "setting password")
		}
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// SetProfileImage stores the uploaded image and links it to usr.
func (svc *Service) SetProfileImage(ctx context.Context, usr User, upload core.Upload) (User, error) {
	if err := svc.store.Save(ctx, usr.ProfileImageKey(), upload); err != nil {
		return User{}, pkgerrors.Wrap(err, "saving profile image")
	}
	usr.ProfileImage = upload.Name
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// OpenProfileImage returns the user's profile image. The caller must close it.
func (svc *Service) OpenProfileImage(ctx context.Context, usr User) (io.ReadCloser, error) {
	if usr.ProfileImage == "" {
		return nil, ErrNoProfileImage
	}
	rc, err := svc.store.Open(ctx, usr.ProfileImageKey())
	if err != nil {
		if pkgerrors.Cause(err) == core.ErrFileNotFound {
			return nil, ErrNoProfileImage
		}
		return nil, pkgerrors.Wrap(err, "opening profile image")
	}
	return rc, nil
}

// ResetPassword sets a new password on the user with email, without any policy check.
func (svc *Service) ResetPassword(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return User{}, pkgerrors.Wrap(err, "finding user by email")
	}
	if err = usr.SetPassword(pwd); err != nil {
		return User{}, pkgerrors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}
