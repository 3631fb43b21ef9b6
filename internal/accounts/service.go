// Package accounts implements invite-gated registration with admin approval.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"stardeck/api/internal/store"
	"stardeck/api/internal/util"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidInvite      = errors.New("invalid invite code")
	ErrAlreadyRegistered  = errors.New("username or email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPendingApproval    = errors.New("account pending approval")
	ErrUserNotFound       = errors.New("user not found")
)

// UserStore is the slice of storage the accounts service needs.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	CountUsers(ctx context.Context) (int, error)
	UsernameOrEmailTaken(ctx context.Context, username, email string) (bool, error)
	CreateUserBootstrap(ctx context.Context, user store.User) (store.User, bool, error)
	SetUserApproved(ctx context.Context, userID string, approved bool) error
	SetUserAdmin(ctx context.Context, userID string, admin bool) error
}

type Service struct {
	store      UserStore
	inviteCode string
}

func NewService(store UserStore, inviteCode string) *Service {
	return &Service{store: store, inviteCode: inviteCode}
}

type RegisterRequest struct {
	Username   string
	Email      string
	Password   string
	InviteCode string
}

// Register creates an account awaiting approval. The very first account is
// promoted to approved admin so the instance has someone who can let the
// rest in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (store.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	if req.Username == "" || req.Email == "" || req.Password == "" {
		return store.User{}, fmt.Errorf("%w: username, email, and password are required", ErrInvalidInput)
	}
	if len(req.Password) < 8 {
		return store.User{}, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}

	// The bootstrap registration is exempt from the invite gate: on a fresh
	// instance nobody exists to hand out a code.
	existing, err := s.store.CountUsers(ctx)
	if err != nil {
		return store.User{}, fmt.Errorf("count users: %w", err)
	}
	if existing > 0 && s.inviteCode != "" && req.InviteCode != s.inviteCode {
		return store.User{}, ErrInvalidInvite
	}

	taken, err := s.store.UsernameOrEmailTaken(ctx, req.Username, req.Email)
	if err != nil {
		return store.User{}, err
	}
	if taken {
		return store.User{}, ErrAlreadyRegistered
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		ID:           util.NewID("user"),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
	}

	created, _, err := s.store.CreateUserBootstrap(ctx, user)
	if err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// Login verifies the password and approval state. Wrong username and wrong
// password both come back as ErrInvalidCredentials; a correct password on an
// unapproved account is reported separately so the client can explain the
// wait.
func (s *Service) Login(ctx context.Context, username, password string) (store.User, error) {
	if username == "" || password == "" {
		return store.User{}, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}

	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.User{}, fmt.Errorf("look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	if !user.IsApproved {
		return store.User{}, ErrPendingApproval
	}
	return user, nil
}

// Status values reported by the pre-login check.
const (
	StatusNotFound = "not_found"
	StatusPending  = "pending"
	StatusApproved = "approved"
)

// Status lets the login screen distinguish a pending account from a missing
// one without authenticating.
func (s *Service) Status(ctx context.Context, username string) (string, error) {
	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, sql.ErrNoRows) {
		return StatusNotFound, nil
	}
	if err != nil {
		return "", fmt.Errorf("look up user: %w", err)
	}
	if !user.IsApproved {
		return StatusPending, nil
	}
	return StatusApproved, nil
}

func (s *Service) Approve(ctx context.Context, userID string) error {
	return s.setApproved(ctx, userID, true)
}

// Reject marks the account unapproved rather than deleting it, so its
// ratings and notes survive an accidental click.
func (s *Service) Reject(ctx context.Context, userID string) error {
	return s.setApproved(ctx, userID, false)
}

func (s *Service) setApproved(ctx context.Context, userID string, approved bool) error {
	err := s.store.SetUserApproved(ctx, userID, approved)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	return err
}

func (s *Service) SetAdmin(ctx context.Context, userID string, admin bool) error {
	err := s.store.SetUserAdmin(ctx, userID, admin)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	return err
}
