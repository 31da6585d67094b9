package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/edustack-io/campus-api/internal/models"
	appErrors "github.com/edustack-io/campus-api/pkg/errors"
)

type userAdminRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
}

// UserService manages account administration. Authentication itself lives in
// AuthService; this service covers the admin-facing account lifecycle.
type UserService struct {
	repo      userAdminRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs the user service.
func NewUserService(repo userAdminRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, validator: validate, logger: logger}
}

// CreateUserRequest is the payload for provisioning an account.
type CreateUserRequest struct {
	Email     string  `json:"email" validate:"required,email"`
	Password  string  `json:"password" validate:"required,min=8,max=72"`
	FullName  string  `json:"full_name" validate:"required,min=2,max=120"`
	Role      string  `json:"role" validate:"required,oneof=ADMIN TEACHER STUDENT PARENT"`
	ProfileID *string `json:"profile_id"`
}

// UpdateUserRequest is the payload for modifying an account.
type UpdateUserRequest struct {
	FullName string `json:"full_name" validate:"required,min=2,max=120"`
	Active   *bool  `json:"active"`
}

// List returns users matching the filter.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal, "failed to list users")
	}
	return users, total, nil
}

// Get returns a user scoped to the school. SUPERADMIN accounts are only
// visible without a school scope.
func (s *UserService) Get(ctx context.Context, schoolID, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to load user")
	}
	if schoolID != "" && (user.SchoolID == nil || *user.SchoolID != schoolID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	return user, nil
}

// Create provisions an account within a school. The role set here excludes
// SUPERADMIN on purpose; platform operators are seeded out of band.
func (s *UserService) Create(ctx context.Context, schoolID string, req CreateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "invalid user payload")
	}

	if existing, err := s.repo.FindByEmail(ctx, req.Email); err == nil && existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to check email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to hash password")
	}

	user := &models.User{
		SchoolID:     &schoolID,
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         models.UserRole(req.Role),
		ProfileID:    req.ProfileID,
		Active:       true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to create user")
	}
	return user, nil
}

// Update modifies mutable account fields. Deactivating an account also
// revokes its refresh tokens so sessions end at the next refresh.
func (s *UserService) Update(ctx context.Context, schoolID, id string, req UpdateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "invalid user payload")
	}
	user, err := s.Get(ctx, schoolID, id)
	if err != nil {
		return nil, err
	}

	user.FullName = req.FullName
	deactivated := false
	if req.Active != nil {
		deactivated = user.Active && !*req.Active
		user.Active = *req.Active
	}
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal, "failed to update user")
	}

	if deactivated {
		if err := s.repo.RevokeUserRefreshTokens(ctx, user.ID); err != nil {
			s.logger.Warn("revoke tokens on deactivate", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	return user, nil
}

// Delete soft-deletes an account and revokes its sessions.
func (s *UserService) Delete(ctx context.Context, schoolID, id string) error {
	user, err := s.Get(ctx, schoolID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, user.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal, "failed to delete user")
	}
	if err := s.repo.RevokeUserRefreshTokens(ctx, user.ID); err != nil {
		s.logger.Warn("revoke tokens on delete", zap.String("user_id", user.ID), zap.Error(err))
	}
	return nil
}
