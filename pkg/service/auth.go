package service

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"media-lending/pkg/apperrors"
	"media-lending/pkg/models"
	"media-lending/pkg/repository"
)

// Authenticator checks credentials and registers new accounts. Every
// rejection is an *apperrors.AuthenticationError.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*models.User, error)
	Register(ctx context.Context, user *models.User) (*models.User, error)
}

type AuthService struct {
	users repository.UserRepository
	cost  int
	log   *zap.Logger
}

func NewAuthService(users repository.UserRepository, log *zap.Logger) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{users: users, cost: bcrypt.DefaultCost, log: log}
}

// WithCost sets the bcrypt cost used for new passwords.
func (s *AuthService) WithCost(cost int) *AuthService {
	s.cost = cost
	return s
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" {
		return nil, apperrors.Authentication("username is required")
	}
	if password == "" {
		return nil, apperrors.Authentication("password is required")
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		s.log.Info("login rejected", zap.String("username", username))
		return nil, apperrors.Authentication("invalid username or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		s.log.Info("login rejected", zap.Uint("user_id", user.ID))
		return nil, apperrors.Authentication("invalid username or password")
	}
	return user, nil
}

// Register stores a new MEMBER unless a role is already set. The password is
// replaced by its bcrypt hash.
func (s *AuthService) Register(ctx context.Context, user *models.User) (*models.User, error) {
	if user == nil {
		return nil, apperrors.Authentication("user is required")
	}
	user.Username = strings.TrimSpace(user.Username)
	user.Email = strings.TrimSpace(user.Email)
	password := strings.TrimSpace(user.Password)
	switch {
	case user.Username == "":
		return nil, apperrors.Authentication("username is required")
	case password == "":
		return nil, apperrors.Authentication("password is required")
	case user.Email == "":
		return nil, apperrors.Authentication("email is required")
	}

	exists, err := s.users.ExistsByUsername(ctx, user.Username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperrors.Authentication("username already taken")
	}
	exists, err = s.users.ExistsByEmail(ctx, user.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperrors.Authentication("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, apperrors.Authentication("password cannot be hashed")
	}
	user.Password = string(hash)
	if user.Role == "" {
		user.Role = models.RoleMember
	}
	if err := s.users.Save(ctx, user); err != nil {
		s.log.Error("register failed", zap.String("username", user.Username), zap.Error(err))
		return nil, err
	}
	s.log.Info("user registered", zap.Uint("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}
