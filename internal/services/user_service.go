package services

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yukikurage/project-hub-api/internal/models"
	"github.com/yukikurage/project-hub-api/internal/permissions"
	"github.com/yukikurage/project-hub-api/internal/repository"
)

var (
	ErrCannotDeleteYourself = errors.New("cannot delete your own account")
	ErrInvalidRole          = errors.New("invalid role")
)

// UserService manages team members.
type UserService struct {
	userRepo repository.UserRepository
	checker  PermissionChecker
	logger   *zap.Logger
}

// NewUserService creates a new UserService.
func NewUserService(userRepo repository.UserRepository, checker PermissionChecker, logger *zap.Logger) *UserService {
	return &UserService{
		userRepo: userRepo,
		checker:  checker,
		logger:   logger,
	}
}

// ListUsers returns every team member.
func (s *UserService) ListUsers() ([]models.User, error) {
	users, err := s.userRepo.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// UpdateProfileInput holds the profile fields. Nil leaves a field unchanged.
type UpdateProfileInput struct {
	Name  *string
	Phone *string
}

// UpdateProfile edits a user's name or phone. Users edit their own profile;
// editing someone else's needs manage_users.
func (s *UserService) UpdateProfile(actor permissions.Actor, userID uint64, input UpdateProfileInput) (*models.User, error) {
	if actor.UserID != userID {
		if err := s.checker.Authorize(actor.Role, permissions.ManageUsers); err != nil {
			return nil, err
		}
	}

	user, err := s.findUser(userID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, ErrNameRequired
		}
		user.Name = name
	}
	if input.Phone != nil {
		user.Phone = strings.TrimSpace(*input.Phone)
	}

	if err := s.userRepo.UpdateProfile(user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// ChangeRole sets a user's role. Only admins may do this, whatever the
// role→capability map says.
func (s *UserService) ChangeRole(actor permissions.Actor, userID uint64, role permissions.Role) (*models.User, error) {
	if actor.Role != permissions.RoleAdmin {
		s.logger.Warn("Rejected role change from non-admin",
			zap.Uint64("user_id", actor.UserID),
			zap.Uint64("target_user_id", userID))
		return nil, permissions.ErrUnauthorized
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	if err := s.userRepo.UpdateRole(userID, role); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to change role: %w", err)
	}

	s.logger.Info("User role changed",
		zap.Uint64("user_id", actor.UserID),
		zap.Uint64("target_user_id", userID),
		zap.String("role", string(role)))
	return s.findUser(userID)
}

// DeleteUser removes another user's account.
func (s *UserService) DeleteUser(actor permissions.Actor, userID uint64) error {
	if err := s.checker.Authorize(actor.Role, permissions.ManageUsers); err != nil {
		return err
	}
	if actor.UserID == userID {
		return ErrCannotDeleteYourself
	}

	if err := s.userRepo.Delete(userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}

	s.logger.Info("User deleted",
		zap.Uint64("user_id", actor.UserID),
		zap.Uint64("target_user_id", userID))
	return nil
}

func (s *UserService) findUser(id uint64) (*models.User, error) {
	user, err := s.userRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}
