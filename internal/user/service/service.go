package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"water-meter-platform/internal/assignment"
	"water-meter-platform/internal/config"
	"water-meter-platform/internal/logger"
	"water-meter-platform/internal/user/model"
	"water-meter-platform/internal/user/repository"
	appErrors "water-meter-platform/pkg/errors"
	"water-meter-platform/pkg/utils"
)

// UserService covers authentication plus the administrative user operations.
// Role changes and owned-device edits are mediated by the assignment manager
// before the user record itself is committed.
type UserService struct {
	repo   *repository.UserRepository
	acm    *assignment.Manager
	config *config.Config
}

func NewService(repo *repository.UserRepository, acm *assignment.Manager, cfg *config.Config) *UserService {
	return &UserService{
		repo:   repo,
		acm:    acm,
		config: cfg,
	}
}

func (s *UserService) Register(ctx context.Context, request *model.RegisterRequest) (*model.AuthResponse, error) {
	if err := utils.ValidateStruct(request); err != nil {
		return nil, appErrors.NewAppError("VALIDATION_ERROR", "Invalid input", err)
	}

	if err := utils.ValidatePassword(request.Password); err != nil {
		return nil, appErrors.NewAppError("WEAK_PASSWORD", err.Error(), nil)
	}

	email, err := utils.ValidateAndSanitizeEmail(request.Email)
	if err != nil {
		return nil, appErrors.NewAppError("VALIDATION_ERROR", "Invalid email", err)
	}

	existingUser, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, appErrors.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existingUser != nil {
		return nil, appErrors.ErrUserAlreadyExists
	}

	hashedPassword, err := utils.HashPassword(request.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	role := model.RoleCustomer
	if request.Role != "" {
		role = model.Role(request.Role)
	}

	user := &model.User{
		Name:           request.Name,
		Email:          email,
		PasswordHashed: hashedPassword,
		Role:           role,
		IsActive:       true,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	tokenPair, err := utils.GenerateTokenPair(
		user.ID,
		user.Email,
		string(user.Role),
		s.config.JWT.Secret,
		s.config.JWT.ExpiryHours,
		s.config.JWT.RefreshExpiryHours,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	return &model.AuthResponse{
		User:         user.ToResponse(),
		AccessToken:  tokenPair.AccessToken,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresAt:    tokenPair.ExpiresAt,
	}, nil
}

func (s *UserService) Login(ctx context.Context, request *model.LoginRequest) (*model.AuthResponse, error) {
	if err := utils.ValidateStruct(request); err != nil {
		return nil, appErrors.NewAppError("VALIDATION_ERROR", "Invalid input", err)
	}

	user, err := s.repo.GetUserByEmail(ctx, utils.SanitizeEmail(request.Email))
	if err != nil {
		if errors.Is(err, appErrors.ErrUserNotFound) {
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.IsActive {
		return nil, appErrors.ErrUnauthorized
	}

	if !utils.CheckPassword(user.PasswordHashed, request.Password) {
		return nil, appErrors.ErrInvalidCredentials
	}

	tokenPair, err := utils.GenerateTokenPair(
		user.ID,
		user.Email,
		string(user.Role),
		s.config.JWT.Secret,
		s.config.JWT.ExpiryHours,
		s.config.JWT.RefreshExpiryHours,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	return &model.AuthResponse{
		User:         user.ToResponse(),
		AccessToken:  tokenPair.AccessToken,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresAt:    tokenPair.ExpiresAt,
	}, nil
}

// CreateUser is the admin form of registration: it may seed the owned-device
// set, which flows through the assignment manager.
func (s *UserService) CreateUser(ctx context.Context, request *model.CreateUserRequest) (*model.UserResponse, error) {
	if err := utils.ValidateStruct(request); err != nil {
		return nil, appErrors.NewAppError("VALIDATION_ERROR", "Invalid input", err)
	}

	authResp, err := s.Register(ctx, &model.RegisterRequest{
		Name:     request.Name,
		Email:    request.Email,
		Password: request.Password,
		Role:     request.Role,
	})
	if err != nil {
		return nil, err
	}

	userID := authResp.User.ID
	if len(request.OwnedDevices) > 0 {
		if err := s.acm.SetOwnedDevices(ctx, userID, request.OwnedDevices); err != nil {
			return nil, err
		}
	}

	return s.GetUser(ctx, userID)
}

func (s *UserService) GetUser(ctx context.Context, userID uuid.UUID) (*model.UserResponse, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	response := user.ToResponse()
	if user.Role == model.RoleCustomer {
		owned, err := s.repo.OwnedDeviceIDs(ctx, userID)
		if err != nil {
			return nil, err
		}
		response.OwnedDevices = owned
	}
	return response, nil
}

func (s *UserService) ListUsers(ctx context.Context, role *model.Role) ([]model.UserResponse, error) {
	users, err := s.repo.ListUsers(ctx, role)
	if err != nil {
		return nil, err
	}

	responses := make([]model.UserResponse, len(users))
	for i := range users {
		responses[i] = *users[i].ToResponse()
	}
	return responses, nil
}

func (s *UserService) UpdateUser(ctx context.Context, userID uuid.UUID, request *model.UpdateUserRequest) (*model.UserResponse, error) {
	if err := utils.ValidateStruct(request); err != nil {
		return nil, appErrors.NewAppError("VALIDATION_ERROR", "Invalid input", err)
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if request.Email != nil && *request.Email != user.Email {
		email, err := utils.ValidateAndSanitizeEmail(*request.Email)
		if err != nil {
			return nil, appErrors.NewAppError("VALIDATION_ERROR", "Invalid email", err)
		}
		existing, err := s.repo.GetUserByEmail(ctx, email)
		if err != nil && !errors.Is(err, appErrors.ErrUserNotFound) {
			return nil, err
		}
		if existing != nil && existing.ID != user.ID {
			return nil, appErrors.ErrUserAlreadyExists
		}
		user.Email = email
	}
	if request.Name != nil {
		user.Name = *request.Name
	}
	if request.Password != nil {
		if err := utils.ValidatePassword(*request.Password); err != nil {
			return nil, appErrors.NewAppError("WEAK_PASSWORD", err.Error(), nil)
		}
		hashed, err := utils.HashPassword(*request.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		user.PasswordHashed = hashed
	}

	// A role change away from customer empties the owned set before the role
	// itself commits, so the bidirectional invariant holds at every step.
	if request.Role != nil && model.Role(*request.Role) != user.Role {
		newRole := model.Role(*request.Role)
		if err := s.acm.HandleRoleChange(ctx, userID, newRole); err != nil {
			return nil, err
		}
		user.Role = newRole

		logger.Info("User role changed",
			zap.String("user_id", userID.String()),
			zap.String("role", string(newRole)),
			zap.String("event", "user_role_changed"),
		)
	}

	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, err
	}

	if request.OwnedDevices != nil && user.Role == model.RoleCustomer {
		if err := s.acm.SetOwnedDevices(ctx, userID, *request.OwnedDevices); err != nil {
			return nil, err
		}
	}

	return s.GetUser(ctx, userID)
}

// DeleteUser unassigns every owned device first so no device keeps a pointer
// to a removed user.
func (s *UserService) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.repo.GetUserByID(ctx, userID); err != nil {
		return err
	}

	if err := s.acm.UnassignAll(ctx, userID); err != nil {
		return err
	}

	if err := s.repo.DeleteUser(ctx, userID); err != nil {
		return err
	}

	logger.Info("User deleted",
		zap.String("user_id", userID.String()),
		zap.String("event", "user_deleted"),
	)
	return nil
}
