package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"lcrbench/internal/auth"
	"lcrbench/internal/models"
	"lcrbench/internal/repository"
)

var (
	// ErrUsernameTaken is returned when registering a duplicate operator.
	ErrUsernameTaken = errors.New("auth: username already registered")
	// ErrInvalidCredentials represents login failure.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)

// OperatorStore defines the storage contract used by the service.
type OperatorStore interface {
	Create(ctx context.Context, operator *models.Operator) error
	GetByUsername(ctx context.Context, username string) (*models.Operator, error)
}

// AuthService contains operator registration/login logic.
type AuthService struct {
	repo      OperatorStore
	hasher    auth.Hasher
	tokenizer *auth.TokenService
	logger    *zap.Logger
}

// NewAuthService builds AuthService.
func NewAuthService(repo OperatorStore, hasher auth.Hasher, tokenizer *auth.TokenService, logger *zap.Logger) *AuthService {
	return &AuthService{
		repo:      repo,
		hasher:    hasher,
		tokenizer: tokenizer,
		logger:    logger,
	}
}

// Signup registers a new operator.
func (s *AuthService) Signup(ctx context.Context, username, password string) (*models.Operator, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, errors.New("auth: username required")
	}
	if password == "" {
		return nil, errors.New("auth: password required")
	}

	if _, err := s.repo.GetByUsername(ctx, username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, repository.ErrOperatorNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	operator := &models.Operator{
		Username:     username,
		PasswordHash: hash,
	}

	if err := s.repo.Create(ctx, operator); err != nil {
		return nil, err
	}

	s.logger.Info("operator signed up",
		zap.Int64("operator_id", operator.ID),
		zap.String("username", operator.Username))
	return operator, nil
}

// Login authenticates an operator and produces a JWT.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *models.Operator, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return "", nil, ErrInvalidCredentials
	}

	operator, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrOperatorNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}

	if err := s.hasher.Compare(operator.PasswordHash, password); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.tokenizer.GenerateToken(operator.ID, operator.Username)
	if err != nil {
		return "", nil, err
	}

	return token, operator, nil
}
