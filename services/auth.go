package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/CrowderSoup/taskmaster/database"
	"github.com/sirupsen/logrus"
)

// CredentialStore is the persistence the auth service needs.
type CredentialStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (int64, error)
	UserByUsername(ctx context.Context, username string) (*database.User, error)
	UserByID(ctx context.Context, id int64) (*database.User, error)
	SetRefreshToken(ctx context.Context, userID int64, token *string) error
}

// Principal identifies the caller of an authenticated request.
type Principal struct {
	UserID   int64
	Username string
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AuthService handles registration, login, token refresh and logout. It keeps
// no session state of its own; every call reads the credential store.
type AuthService struct {
	store  CredentialStore
	hasher *PasswordHasher
	tokens *TokenIssuer
	log    logrus.FieldLogger
}

func NewAuthService(store CredentialStore, hasher *PasswordHasher, tokens *TokenIssuer, log logrus.FieldLogger) *AuthService {
	return &AuthService{
		store:  store,
		hasher: hasher,
		tokens: tokens,
		log:    log,
	}
}

// Register creates an account. It does not log the user in.
func (s *AuthService) Register(ctx context.Context, username, password string) (int64, error) {
	var v validator
	v.length("username", username, 3, 50)
	v.length("password", password, 6, 0)
	if len(password) > maxPasswordBytes {
		v.add("password", "is too long")
	}
	if err := v.err(); err != nil {
		return 0, err
	}

	_, err := s.store.UserByUsername(ctx, username)
	if err == nil {
		return 0, ErrDuplicateUsername
	}
	if !errors.Is(err, database.ErrNotFound) {
		return 0, fmt.Errorf("failed to check username: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return 0, err
	}

	id, err := s.store.CreateUser(ctx, username, hash)
	if errors.Is(err, database.ErrUsernameTaken) {
		// lost a race with a concurrent registration
		return 0, ErrDuplicateUsername
	}
	if err != nil {
		return 0, err
	}

	s.log.WithField("user_id", id).Info("user registered")
	return id, nil
}

// Login checks credentials and starts a new session. The new refresh token
// replaces any stored one, which ends every earlier session of the user.
func (s *AuthService) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	var v validator
	v.required("username", username)
	v.required("password", password)
	if err := v.err(); err != nil {
		return nil, err
	}

	user, err := s.store.UserByUsername(ctx, username)
	if errors.Is(err, database.ErrNotFound) {
		s.hasher.VerifyNothing(password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	access, err := s.tokens.IssueAccess(user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefresh(user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetRefreshToken(ctx, user.ID, &refresh); err != nil {
		return nil, err
	}

	s.log.WithField("user_id", user.ID).Info("user logged in")
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh exchanges a refresh token for a new access token. The presented token
// must be the one currently stored for its user. The refresh token itself is
// not rotated.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	var v validator
	v.required("refreshToken", refreshToken)
	if err := v.err(); err != nil {
		return "", err
	}

	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return "", err
	}

	user, err := s.store.UserByID(ctx, claims.UserID)
	if errors.Is(err, database.ErrNotFound) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("failed to load user: %w", err)
	}
	if user.RefreshToken == nil ||
		subtle.ConstantTimeCompare([]byte(*user.RefreshToken), []byte(refreshToken)) != 1 {
		s.log.WithField("user_id", user.ID).Warn("stale refresh token presented")
		return "", ErrInvalidToken
	}

	return s.tokens.IssueAccess(user.ID, user.Username)
}

// Logout clears the stored refresh token. Calling it twice is harmless.
func (s *AuthService) Logout(ctx context.Context, userID int64) error {
	if err := s.store.SetRefreshToken(ctx, userID, nil); err != nil {
		return err
	}
	s.log.WithField("user_id", userID).Info("user logged out")
	return nil
}

// Authenticate resolves an access token to the calling principal.
func (s *AuthService) Authenticate(accessToken string) (*Principal, error) {
	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, err
	}
	return &Principal{UserID: claims.UserID, Username: claims.Username}, nil
}
