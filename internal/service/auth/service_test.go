package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/splax/logscribe/internal/domain"
	"github.com/splax/logscribe/internal/repository"
	"github.com/splax/logscribe/pkg/config"
)

type userRepoMock struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newUserRepoMock() *userRepoMock {
	return &userRepoMock{users: make(map[string]domain.User)}
}

func (m *userRepoMock) CreateUser(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username {
			return repository.ErrConflict
		}
	}
	m.users[user.ID] = *user
	return nil
}

func (m *userRepoMock) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			found := u
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *userRepoMock) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.APIConfig {
	return config.APIConfig{JWTSecret: "test-secret", AccessTokenTTL: time.Hour}
}

func TestRegisterDefaultsRole(t *testing.T) {
	svc := New(newUserRepoMock(), newLogger(), testConfig())
	user, err := svc.Register(context.Background(), RegisterInput{Username: " ada ", Email: "ada@example.com", Password: "s3cret"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Role != DefaultRole {
		t.Fatalf("expected role %q, got %q", DefaultRole, user.Role)
	}
	if user.Username != "ada" {
		t.Fatalf("expected trimmed username, got %q", user.Username)
	}
	if string(user.PasswordHash) == "s3cret" || len(user.PasswordHash) == 0 {
		t.Fatal("expected password to be hashed")
	}
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	svc := New(newUserRepoMock(), newLogger(), testConfig())
	in := RegisterInput{Username: "ada", Email: "ada@example.com", Password: "s3cret"}
	if _, err := svc.Register(context.Background(), in); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := svc.Register(context.Background(), in); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestRegisterRequiresFields(t *testing.T) {
	svc := New(newUserRepoMock(), newLogger(), testConfig())
	_, err := svc.Register(context.Background(), RegisterInput{Username: "ada", Password: "x"})
	if !errors.Is(err, ErrMissingField) || !strings.Contains(err.Error(), "email") {
		t.Fatalf("expected missing email error, got %v", err)
	}
}

func TestLoginAndAuthorize(t *testing.T) {
	svc := New(newUserRepoMock(), newLogger(), testConfig())
	registered, err := svc.Register(context.Background(), RegisterInput{Username: "ada", Email: "ada@example.com", Password: "s3cret", Role: "admin"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	_, token, err := svc.Login(context.Background(), "ada", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token.TokenType != "bearer" || token.AccessToken == "" {
		t.Fatalf("unexpected token %+v", token)
	}

	user, claims, err := svc.Authorize(context.Background(), token.AccessToken)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if user.ID != registered.ID || claims.Username != "ada" || claims.Role != "admin" {
		t.Fatalf("unexpected identity user=%s claims=%+v", user.ID, claims)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := New(newUserRepoMock(), newLogger(), testConfig())
	if _, err := svc.Register(context.Background(), RegisterInput{Username: "ada", Email: "ada@example.com", Password: "s3cret"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "ada", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "nobody", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestAuthorizeRejectsBlankAndForeignTokens(t *testing.T) {
	svc := New(newUserRepoMock(), newLogger(), testConfig())
	if _, _, err := svc.Authorize(context.Background(), "  "); !errors.Is(err, ErrTokenRequired) {
		t.Fatalf("expected ErrTokenRequired, got %v", err)
	}
	if _, _, err := svc.Authorize(context.Background(), "not-a-jwt"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}
