package core

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidCredentials is returned when email/password is wrong. A
	// missing account and a wrong password collapse into this one value so
	// login responses cannot be used to probe which emails are registered.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicateEmail is returned when registering an email that already exists.
	ErrDuplicateEmail = errors.New("email already registered")
)

// LoginResult is the payload returned to a successfully authenticated caller.
type LoginResult struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	UserID      int64  `json:"userId"`
	Email       string `json:"email"`
	ExpiresIn   int64  `json:"expiresIn"` // seconds of validity remaining at issue time
}

// Authenticator orchestrates credential verification, registration, and
// stateless token validation. It holds no mutable state; the codec and
// repository it wraps are safe for concurrent use.
type Authenticator struct {
	users UserRepository
	codec *TokenCodec
}

func NewAuthenticator(users UserRepository, codec *TokenCodec) *Authenticator {
	return &Authenticator{users: users, codec: codec}
}

// Login verifies the credential pair and mints an access token.
func (a *Authenticator) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if email == "" || password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}

	u, err := a.users.FindByEmail(ctx, email)
	if err != nil || u == nil {
		if err != nil && !isNoRows(err) {
			return LoginResult{}, err
		}
		return LoginResult{}, ErrInvalidCredentials
	}

	if !CheckPassword(password, u.PasswordHash) {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := a.codec.Issue(u.ID, u.Email, time.Now())
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{
		AccessToken: token,
		TokenType:   "Bearer",
		UserID:      u.ID,
		Email:       u.Email,
		ExpiresIn:   int64(a.codec.TTL() / time.Second),
	}, nil
}

// Register hashes the password and persists a new user. The email comparison
// is case-sensitive, matching the lookup used by Login. Two concurrent
// registrations of the same email are resolved by the storage unique index;
// the loser gets ErrDuplicateEmail.
func (a *Authenticator) Register(ctx context.Context, email, password string) (*UserRecord, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	u, err := a.users.Create(ctx, email, hash)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return u, nil
}

// Validate reports whether the token verifies right now. Pure delegation to
// the codec; callers that need the identity use the request gate instead.
func (a *Authenticator) Validate(token string) bool {
	_, err := a.codec.Verify(token, time.Now())
	return err == nil
}
