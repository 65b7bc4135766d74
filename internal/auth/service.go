package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

type Service struct {
	users    UserStore
	sessions *SessionManager
	hasher   PasswordHasher
	nowFunc  func() time.Time

	// dummyHash is compared against for unknown emails so that a login for a
	// missing account costs the same as one with a wrong password.
	dummyHash string
}

type ServiceConfig struct {
	Users    UserStore
	Sessions *SessionManager
	Hasher   PasswordHasher
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if cfg.Hasher == nil {
		return nil, fmt.Errorf("password hasher is required")
	}
	dummy, err := randomPasswordHash(cfg.Hasher)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	return &Service{
		users:     cfg.Users,
		sessions:  cfg.Sessions,
		hasher:    cfg.Hasher,
		nowFunc:   time.Now,
		dummyHash: dummy,
	}, nil
}

// Register creates an account and logs it in. The returned token is the
// session cookie value.
func (s *Service) Register(ctx context.Context, name, email, password string) (PublicUser, string, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return PublicUser{}, "", fmt.Errorf("%w: name, email and password are required", ErrInvalidInput)
	}
	if len(password) > maxPasswordBytes {
		return PublicUser{}, "", fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidInput, maxPasswordBytes)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return PublicUser{}, "", ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return PublicUser{}, "", oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return PublicUser{}, "", oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user := User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.nowFunc().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		// A concurrent registration can win between the lookup and the insert.
		if errors.Is(err, ErrEmailTaken) {
			return PublicUser{}, "", ErrEmailTaken
		}
		return PublicUser{}, "", oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	token, err := s.startSession(ctx, user.ID)
	if err != nil {
		return PublicUser{}, "", err
	}
	return user.Public(), token, nil
}

// Login checks credentials. Unknown emails and wrong passwords both return
// ErrInvalidCredentials after the same amount of hashing work.
func (s *Service) Login(ctx context.Context, email, password string) (PublicUser, string, error) {
	email = strings.TrimSpace(email)

	user, lookupErr := s.users.GetByEmail(ctx, email)
	exists := lookupErr == nil
	if lookupErr != nil && !errors.Is(lookupErr, ErrUserNotFound) {
		return PublicUser{}, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get user by email").
			Wrap(lookupErr)
	}

	target := s.dummyHash
	if exists {
		target = user.PasswordHash
	}
	if len(password) > maxPasswordBytes {
		// bcrypt only compares the first maxPasswordBytes, so a longer input
		// could match a stored password it merely starts with.
		_, _ = s.hasher.Verify(password[:maxPasswordBytes], s.dummyHash)
		return PublicUser{}, "", ErrInvalidCredentials
	}
	ok, verifyErr := s.hasher.Verify(password, target)
	if verifyErr != nil {
		if !exists {
			return PublicUser{}, "", ErrInvalidCredentials
		}
		return PublicUser{}, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID).
			Wrap(verifyErr)
	}
	if !exists || !ok {
		return PublicUser{}, "", ErrInvalidCredentials
	}

	token, err := s.startSession(ctx, user.ID)
	if err != nil {
		return PublicUser{}, "", err
	}
	return user.Public(), token, nil
}

// LoginWithFederatedIdentity maps a provider assertion onto a local user,
// creating one on first sight, and starts a session for it.
func (s *Service) LoginWithFederatedIdentity(ctx context.Context, id Identity) (PublicUser, string, error) {
	email := strings.TrimSpace(id.Email)
	if email == "" || !id.EmailVerified {
		return PublicUser{}, "", ErrIdentityRejected
	}

	user, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, ErrUserNotFound):
		user, err = s.createFederatedUser(ctx, id.Name, email)
		if err != nil {
			return PublicUser{}, "", err
		}
	default:
		return PublicUser{}, "", oops.Code("AUTH_FEDERATED_FAILED").
			With("operation", "get user by email").
			With("provider", id.Provider).
			Wrap(err)
	}

	token, err := s.startSession(ctx, user.ID)
	if err != nil {
		return PublicUser{}, "", err
	}
	return user.Public(), token, nil
}

func (s *Service) createFederatedUser(ctx context.Context, name, email string) (User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	hash, err := randomPasswordHash(s.hasher)
	if err != nil {
		return User{}, oops.Code("AUTH_FEDERATED_FAILED").
			With("operation", "hash random password").
			Wrap(err)
	}
	user := User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.nowFunc().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			// Lost a race with another callback for the same email.
			return s.users.GetByEmail(ctx, email)
		}
		return User{}, oops.Code("AUTH_FEDERATED_FAILED").
			With("operation", "create user").
			Wrap(err)
	}
	return user, nil
}

// Logout destroys the session behind token. Missing or already invalid
// tokens succeed.
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.sessions.Destroy(ctx, token); err != nil {
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "destroy session").
			Wrap(err)
	}
	return nil
}

// Verify resolves token to the current public projection of its user, read
// from the user store rather than from the session.
func (s *Service) Verify(ctx context.Context, token string) (PublicUser, error) {
	user, _, err := s.Authenticate(ctx, token)
	if err != nil {
		return PublicUser{}, err
	}
	return user.Public(), nil
}

// Authenticate is Verify for server-side callers that need the full user and
// session, e.g. to check ownership.
func (s *Service) Authenticate(ctx context.Context, token string) (User, Session, error) {
	sess, err := s.sessions.Validate(ctx, token)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return User{}, Session{}, ErrUnauthenticated
		}
		return User{}, Session{}, oops.Code("AUTH_VERIFY_FAILED").
			With("operation", "validate session").
			Wrap(err)
	}

	user, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			if err := s.sessions.Destroy(ctx, token); err != nil {
				return User{}, Session{}, oops.Code("AUTH_VERIFY_FAILED").
					With("operation", "destroy orphaned session").
					With("user_id", sess.UserID).
					Wrap(err)
			}
			return User{}, Session{}, ErrUnauthenticated
		}
		return User{}, Session{}, oops.Code("AUTH_VERIFY_FAILED").
			With("operation", "get user by id").
			With("user_id", sess.UserID).
			Wrap(err)
	}
	return user, sess, nil
}

func (s *Service) SessionTTL() time.Duration {
	return s.sessions.TTL()
}

func (s *Service) startSession(ctx context.Context, userID string) (string, error) {
	token, _, err := s.sessions.Create(ctx, userID)
	if err != nil {
		return "", oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("user_id", userID).
			Wrap(err)
	}
	return token, nil
}
