package auth

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUnauthenticated    = errors.New("not authenticated")
	ErrUserNotFound       = errors.New("user not found")
	ErrIdentityRejected   = errors.New("federated identity rejected")
)
