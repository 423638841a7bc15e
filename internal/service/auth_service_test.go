package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"lcrbench/internal/auth"
	"lcrbench/internal/models"
	"lcrbench/internal/repository"
)

type fakeOperatorStore struct {
	operators map[string]*models.Operator
	nextID    int64
}

func newFakeOperatorStore() *fakeOperatorStore {
	return &fakeOperatorStore{operators: make(map[string]*models.Operator)}
}

func (f *fakeOperatorStore) Create(ctx context.Context, operator *models.Operator) error {
	f.nextID++
	operator.ID = f.nextID
	operator.CreatedAt = time.Now()
	f.operators[operator.Username] = operator
	return nil
}

func (f *fakeOperatorStore) GetByUsername(ctx context.Context, username string) (*models.Operator, error) {
	if op, ok := f.operators[username]; ok {
		return op, nil
	}
	return nil, repository.ErrOperatorNotFound
}

func newAuthService() (*AuthService, *fakeOperatorStore) {
	store := newFakeOperatorStore()
	tokenizer := auth.NewTokenService("test-secret", time.Hour)
	svc := NewAuthService(store, auth.NewBcryptHasher(4), tokenizer, zap.NewNop())
	return svc, store
}

func TestSignupAndLogin(t *testing.T) {
	svc, _ := newAuthService()

	operator, err := svc.Signup(context.Background(), " Tester1 ", "hunter2")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if operator.Username != "tester1" {
		t.Fatalf("username not normalized: %q", operator.Username)
	}
	if operator.PasswordHash == "hunter2" {
		t.Fatal("password stored in plain text")
	}

	token, logged, err := svc.Login(context.Background(), "Tester1", "hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if logged.ID != operator.ID {
		t.Fatalf("login returned wrong operator: %+v", logged)
	}

	claims, err := auth.NewTokenService("test-secret", time.Hour).ValidateToken(token)
	if err != nil {
		t.Fatalf("token validation: %v", err)
	}
	if claims.OperatorID != operator.ID || claims.Username != "tester1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestSignupDuplicateUsername(t *testing.T) {
	svc, _ := newAuthService()

	if _, err := svc.Signup(context.Background(), "tester1", "hunter2"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, err := svc.Signup(context.Background(), "TESTER1", "other"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	svc, _ := newAuthService()

	if _, _, err := svc.Login(context.Background(), "ghost", "pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	if _, err := svc.Signup(context.Background(), "tester1", "hunter2"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "tester1", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
}
