package auth

import "time"

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// PublicUser is the only user shape returned to clients.
type PublicUser struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Name: u.Name, Email: u.Email}
}

// Session is the server-held half of a login. The client only ever holds the
// plaintext token; stores key sessions by its hash.
type Session struct {
	ID            string    `json:"id"`
	TokenHash     string    `json:"token_hash"`
	UserID        string    `json:"user_id"`
	Authenticated bool      `json:"authenticated"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func (s Session) ExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// Identity is what a federated provider asserts about the user after a
// successful callback.
type Identity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}
