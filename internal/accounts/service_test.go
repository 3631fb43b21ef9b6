package accounts

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"stardeck/api/internal/store"
)

type fakeUserStore struct {
	users       map[string]store.User
	createCalls int
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]store.User)}
}

func (f *fakeUserStore) GetUserByUsername(_ context.Context, username string) (store.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeUserStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeUserStore) CountUsers(_ context.Context) (int, error) {
	return len(f.users), nil
}

func (f *fakeUserStore) UsernameOrEmailTaken(_ context.Context, username, email string) (bool, error) {
	for _, u := range f.users {
		if u.Username == username || u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUserStore) CreateUserBootstrap(_ context.Context, user store.User) (store.User, bool, error) {
	first := len(f.users) == 0
	if first {
		user.IsAdmin = true
		user.IsApproved = true
	}
	f.users[user.ID] = user
	f.createCalls++
	return user, first, nil
}

func (f *fakeUserStore) SetUserApproved(_ context.Context, userID string, approved bool) error {
	u, ok := f.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.IsApproved = approved
	f.users[userID] = u
	return nil
}

func (f *fakeUserStore) SetUserAdmin(_ context.Context, userID string, admin bool) error {
	u, ok := f.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.IsAdmin = admin
	f.users[userID] = u
	return nil
}

func TestRegisterFirstUserBecomesAdmin(t *testing.T) {
	svc := NewService(newFakeUserStore(), "ncc-1701")

	// On an empty instance there is nobody to hand out an invite, so the
	// bootstrap registration carries no code at all.
	user, err := svc.Register(context.Background(), RegisterRequest{
		Username: "kirk", Email: "kirk@example.com", Password: "enterprise",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !user.IsAdmin || !user.IsApproved {
		t.Fatalf("first user should be approved admin, got %+v", user)
	}
	if user.PasswordHash == "enterprise" {
		t.Fatal("password stored in plaintext")
	}
}

func TestRegisterSecondUserIsPending(t *testing.T) {
	fs := newFakeUserStore()
	svc := NewService(fs, "ncc-1701")
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterRequest{Username: "kirk", Email: "kirk@example.com", Password: "enterprise"}); err != nil {
		t.Fatalf("register first: %v", err)
	}
	user, err := svc.Register(ctx, RegisterRequest{Username: "spock", Email: "spock@example.com", Password: "fascinating", InviteCode: "ncc-1701"})
	if err != nil {
		t.Fatalf("register second: %v", err)
	}
	if user.IsAdmin || user.IsApproved {
		t.Fatalf("second user should be pending, got %+v", user)
	}
}

func TestRegisterRejectsBadInvite(t *testing.T) {
	fs := newFakeUserStore()
	fs.users["user_1"] = store.User{ID: "user_1", Username: "kirk", Email: "kirk@example.com", IsAdmin: true, IsApproved: true}
	svc := NewService(fs, "ncc-1701")
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{
		Username: "spock", Email: "spock@example.com", Password: "fascinating", InviteCode: "wrong",
	})
	if !errors.Is(err, ErrInvalidInvite) {
		t.Fatalf("expected ErrInvalidInvite for wrong code, got %v", err)
	}
	_, err = svc.Register(ctx, RegisterRequest{
		Username: "spock", Email: "spock@example.com", Password: "fascinating",
	})
	if !errors.Is(err, ErrInvalidInvite) {
		t.Fatalf("expected ErrInvalidInvite for missing code, got %v", err)
	}
}

func TestRegisterBootstrapIgnoresInviteGate(t *testing.T) {
	fs := newFakeUserStore()
	svc := NewService(fs, "ncc-1701")

	// First-ever registration with a wrong code still lands as approved
	// admin: the gate only applies once an account exists.
	user, err := svc.Register(context.Background(), RegisterRequest{
		Username: "kirk", Email: "kirk@example.com", Password: "enterprise", InviteCode: "wrong",
	})
	if err != nil {
		t.Fatalf("bootstrap register: %v", err)
	}
	if !user.IsAdmin || !user.IsApproved {
		t.Fatalf("bootstrap user should be approved admin, got %+v", user)
	}
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	fs := newFakeUserStore()
	svc := NewService(fs, "ncc-1701")
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterRequest{Username: "kirk", Email: "kirk@example.com", Password: "enterprise", InviteCode: "ncc-1701"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := svc.Register(ctx, RegisterRequest{Username: "kirk", Email: "other@example.com", Password: "enterprise", InviteCode: "ncc-1701"})
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	if fs.createCalls != 1 {
		t.Fatalf("expected one create call, got %d", fs.createCalls)
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	svc := NewService(newFakeUserStore(), "ncc-1701")
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterRequest{Username: "kirk", Email: "kirk@example.com", Password: "short", InviteCode: "ncc-1701"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short password, got %v", err)
	}
	if _, err := svc.Register(ctx, RegisterRequest{Email: "kirk@example.com", Password: "enterprise", InviteCode: "ncc-1701"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing username, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	fs := newFakeUserStore()
	hash, _ := bcrypt.GenerateFromPassword([]byte("enterprise"), bcrypt.MinCost)
	fs.users["user_1"] = store.User{ID: "user_1", Username: "kirk", PasswordHash: string(hash), IsApproved: true}
	fs.users["user_2"] = store.User{ID: "user_2", Username: "spock", PasswordHash: string(hash), IsApproved: false}

	svc := NewService(fs, "")
	ctx := context.Background()

	user, err := svc.Login(ctx, "kirk", "enterprise")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.ID != "user_1" {
		t.Fatalf("expected user_1, got %s", user.ID)
	}

	if _, err := svc.Login(ctx, "kirk", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for bad password, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody", "enterprise"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
	if _, err := svc.Login(ctx, "spock", "enterprise"); !errors.Is(err, ErrPendingApproval) {
		t.Fatalf("expected ErrPendingApproval, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	fs := newFakeUserStore()
	fs.users["user_1"] = store.User{ID: "user_1", Username: "kirk", IsApproved: true}
	fs.users["user_2"] = store.User{ID: "user_2", Username: "spock"}

	svc := NewService(fs, "")
	ctx := context.Background()

	for _, tt := range []struct {
		username string
		want     string
	}{
		{"kirk", StatusApproved},
		{"spock", StatusPending},
		{"nobody", StatusNotFound},
	} {
		got, err := svc.Status(ctx, tt.username)
		if err != nil {
			t.Fatalf("status %s: %v", tt.username, err)
		}
		if got != tt.want {
			t.Fatalf("status %s = %s, want %s", tt.username, got, tt.want)
		}
	}
}

func TestApproveRejectToggleAdmin(t *testing.T) {
	fs := newFakeUserStore()
	fs.users["user_1"] = store.User{ID: "user_1", Username: "spock"}

	svc := NewService(fs, "")
	ctx := context.Background()

	if err := svc.Approve(ctx, "user_1"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !fs.users["user_1"].IsApproved {
		t.Fatal("approve did not stick")
	}

	if err := svc.SetAdmin(ctx, "user_1", true); err != nil {
		t.Fatalf("set admin: %v", err)
	}
	if !fs.users["user_1"].IsAdmin {
		t.Fatal("admin flag did not stick")
	}

	if err := svc.Reject(ctx, "user_1"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if fs.users["user_1"].IsApproved {
		t.Fatal("reject did not clear approval")
	}

	if err := svc.Approve(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
