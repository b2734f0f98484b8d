package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"lot_registry/internal/model"
	"lot_registry/internal/repository"
	"lot_registry/internal/utils"

	"github.com/jackc/pgx/v5"
)

var (
	ErrUserAlreadyExists  = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// AuthService provides authentication related services
type AuthService interface {
	Register(ctx context.Context, name, email, password string) (*model.User, string, error)
	Login(ctx context.Context, email, password string) (*model.User, string, error)
}

type authService struct {
	userRepo repository.UserRepository
	jwtUtil  *utils.JWTUtil
}

// NewAuthService creates a new AuthService
func NewAuthService(userRepo repository.UserRepository, jwtUtil *utils.JWTUtil) AuthService {
	return &authService{
		userRepo: userRepo,
		jwtUtil:  jwtUtil,
	}
}

// Register creates a new user account. The first account ever registered
// becomes the administrator; everyone after that is a field agent.
func (s *authService) Register(ctx context.Context, name, email, password string) (*model.User, string, error) {
	existingUser, err := s.userRepo.FindByEmail(ctx, email)
	// We expect pgx.ErrNoRows if the user does not exist, which is not an error in this context.
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, "", fmt.Errorf("failed to check existing user: %w", err)
	}
	if existingUser != nil {
		return nil, "", ErrUserAlreadyExists
	}

	hashedPassword, err := utils.HashPassword(password)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	userCount, err := s.userRepo.Count(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to count users: %w", err)
	}
	isAdmin := userCount == 0
	if isAdmin {
		log.Printf("INFO: User %s is being registered as ADMIN (first account).", email)
	}

	user := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: hashedPassword,
		IsAdmin:      isAdmin,
		CreatedAt:    time.Now(),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, "", fmt.Errorf("failed to create user in repository: %w", err)
	}

	token, err := s.jwtUtil.GenerateToken(user.ID, user.IsAdmin)
	if err != nil {
		log.Printf("ERROR: User %s (ID: %d) created, but failed to generate token: %v", user.Email, user.ID, err)
		return user, "", fmt.Errorf("user created, but failed to generate token: %w", err)
	}

	return user, token, nil
}

// Login authenticates a user and returns a JWT token
func (s *authService) Login(ctx context.Context, email, password string) (*model.User, string, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) { // Handle actual DB errors
		return nil, "", fmt.Errorf("error finding user by email: %w", err)
	}
	if user == nil { // This covers pgx.ErrNoRows or if FindByEmail returns nil for not found
		return nil, "", ErrInvalidCredentials // User not found
	}

	if !utils.CheckPasswordHash(password, user.PasswordHash) {
		return nil, "", ErrInvalidCredentials // Password mismatch
	}

	token, err := s.jwtUtil.GenerateToken(user.ID, user.IsAdmin)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	return user, token, nil
}
