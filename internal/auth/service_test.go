package auth

import (
	"context"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/propdesk/propdesk/internal/shared"
)

type stubRepo struct {
	user     *User
	sessions map[string]int64
}

func newStubRepo(user *User) *stubRepo {
	return &stubRepo{user: user, sessions: make(map[string]int64)}
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrInvalidCredentials
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

func hashedUser(t *testing.T, password string, active bool) *User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return &User{
		ID:           1,
		Email:        "alice@propdesk.local",
		Name:         "Alice",
		PasswordHash: string(hash),
		IsActive:     active,
	}
}

func TestAuthenticateSuccess(t *testing.T) {
	svc := NewService(newStubRepo(hashedUser(t, "hunter22", true)))

	user, err := svc.Authenticate(context.Background(), "alice@propdesk.local", "hunter22")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.ID != 1 {
		t.Fatalf("unexpected user id %d", user.ID)
	}
}

func TestAuthenticateWrongPassword(t *testing.T) {
	svc := NewService(newStubRepo(hashedUser(t, "hunter22", true)))

	if _, err := svc.Authenticate(context.Background(), "alice@propdesk.local", "hunter23"); err != shared.ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateUnknownEmail(t *testing.T) {
	svc := NewService(newStubRepo(hashedUser(t, "hunter22", true)))

	if _, err := svc.Authenticate(context.Background(), "bob@propdesk.local", "hunter22"); err != shared.ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateInactiveUser(t *testing.T) {
	svc := NewService(newStubRepo(hashedUser(t, "hunter22", false)))

	if _, err := svc.Authenticate(context.Background(), "alice@propdesk.local", "hunter22"); err != shared.ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestSessionRegistration(t *testing.T) {
	repo := newStubRepo(nil)
	svc := NewService(repo)
	ctx := context.Background()

	if err := svc.RegisterSession(ctx, "sess-1", 7, time.Now().Add(time.Hour), "127.0.0.1", "test"); err != nil {
		t.Fatalf("register session: %v", err)
	}
	if repo.sessions["sess-1"] != 7 {
		t.Fatal("session not stored")
	}
	if err := svc.RemoveSession(ctx, "sess-1"); err != nil {
		t.Fatalf("remove session: %v", err)
	}
	if _, ok := repo.sessions["sess-1"]; ok {
		t.Fatal("session not removed")
	}
}
