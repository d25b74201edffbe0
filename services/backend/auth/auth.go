// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package auth implements account management and token-based
// authentication for the analytics API.
//
// Passwords are stored as bcrypt hashes. Sessions are authenticated
// with HS256 JWTs carrying the username as subject plus uid and role
// claims. The signing key is sealed in a memguard enclave and only
// opened for the duration of a sign or verify, so it never sits in
// plain heap memory between requests.
//
// The Service implements extensions.AuthProvider; RoleAuthorizer
// implements extensions.AuthzProvider. Handlers and middleware depend
// on those interfaces, not on this package's concrete types.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/eulerianKnight/conversational-analytics/pkg/extensions"
	"github.com/eulerianKnight/conversational-analytics/services/backend/store"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNoSecret is returned when no signing key is configured.
	ErrNoSecret = errors.New("auth secret is not configured")

	// ErrTokenExpired is returned for structurally valid tokens whose
	// expiry has passed.
	ErrTokenExpired = fmt.Errorf("token has expired: %w", extensions.ErrUnauthorized)

	// ErrTokenInvalid is returned for tokens that fail signature or
	// claim validation for any reason other than expiry.
	ErrTokenInvalid = fmt.Errorf("invalid token: %w", extensions.ErrUnauthorized)

	// ErrBadCredentials is returned on login when the username is
	// unknown or the password does not match. The two cases are
	// deliberately indistinguishable to callers.
	ErrBadCredentials = fmt.Errorf("incorrect username or password: %w", extensions.ErrUnauthorized)

	// ErrInactiveUser is returned on login for deactivated accounts.
	ErrInactiveUser = errors.New("user account is inactive")

	// ErrUsernameTaken is returned on registration for a duplicate username.
	ErrUsernameTaken = errors.New("username already registered")

	// ErrEmailTaken is returned on registration for a duplicate email.
	ErrEmailTaken = errors.New("email already registered")
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// DefaultTokenTTL is how long issued tokens stay valid.
const DefaultTokenTTL = 24 * time.Hour

// Config holds auth service settings.
type Config struct {
	// SecretKey signs and verifies tokens. NewService seals it in a
	// memguard enclave, which wipes this slice in the process.
	// Required.
	SecretKey []byte

	// TokenTTL is the validity window for issued tokens.
	// Default: 24h (ACCESS_TOKEN_EXPIRE_MINUTES).
	TokenTTL time.Duration

	// Logger for auth events. Default: slog.Default().
	Logger *slog.Logger
}

// ConfigFromEnv builds a Config from the environment. The signing key
// comes from SECRET_KEY, falling back to the /run/secrets/secret_key
// file for container deployments.
func ConfigFromEnv() Config {
	secret := os.Getenv("SECRET_KEY")
	if secret == "" {
		secret = readSecretFile("/run/secrets/secret_key")
	}

	ttl := DefaultTokenTTL
	if v := os.Getenv("ACCESS_TOKEN_EXPIRE_MINUTES"); v != "" {
		if minutes, err := strconv.Atoi(v); err == nil && minutes > 0 {
			ttl = time.Duration(minutes) * time.Minute
		}
	}

	return Config{
		SecretKey: []byte(secret),
		TokenTTL:  ttl,
	}
}

func readSecretFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

// Service issues and verifies tokens and manages user accounts.
//
// Thread Safety: safe for concurrent use. The enclave handles its own
// locking and the store serializes writes.
type Service struct {
	store  *store.Store
	secret *memguard.Enclave
	cfg    Config
	logger *slog.Logger
}

// NewService creates an auth service backed by the given store.
// Returns ErrNoSecret when no signing key is configured; the API
// cannot run with an empty key.
func NewService(st *store.Store, cfg Config) (*Service, error) {
	if st == nil {
		return nil, errors.New("auth requires a store")
	}
	if len(cfg.SecretKey) == 0 {
		return nil, fmt.Errorf("%w: set SECRET_KEY or mount /run/secrets/secret_key", ErrNoSecret)
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// NewEnclave wipes cfg.SecretKey.
	return &Service{
		store:  st,
		secret: memguard.NewEnclave(cfg.SecretKey),
		cfg:    cfg,
		logger: logger.With("component", "auth"),
	}, nil
}

// TokenTTL returns the configured token validity window.
func (s *Service) TokenTTL() time.Duration {
	return s.cfg.TokenTTL
}

// withSecret opens the enclave for the duration of fn and destroys the
// working copy afterward.
func (s *Service) withSecret(fn func(key []byte) error) error {
	buf, err := s.secret.Open()
	if err != nil {
		return fmt.Errorf("open secret enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// -----------------------------------------------------------------------------
// Passwords
// -----------------------------------------------------------------------------

// HashPassword returns a bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether the password matches the bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// -----------------------------------------------------------------------------
// Tokens
// -----------------------------------------------------------------------------

// Claims is the JWT payload for issued tokens. The username travels in
// the registered subject claim.
type Claims struct {
	UserID int64  `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs a token for the user and returns it with its expiry.
func (s *Service) IssueToken(user *store.User) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(s.cfg.TokenTTL)

	claims := &Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	var signed string
	err := s.withSecret(func(key []byte) error {
		var signErr error
		signed, signErr = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
		return signErr
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseToken verifies a token and returns its claims. Expired tokens
// map to ErrTokenExpired; every other failure maps to ErrTokenInvalid.
func (s *Service) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	err := s.withSecret(func(key []byte) error {
		_, parseErr := jwt.ParseWithClaims(tokenString, claims,
			func(*jwt.Token) (any, error) { return key, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		)
		return parseErr
	})
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	default:
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}

// -----------------------------------------------------------------------------
// AuthProvider
// -----------------------------------------------------------------------------

// Validate checks the token and returns the identity of its user,
// looked up fresh from the store so role changes and deactivations
// take effect immediately.
func (s *Service) Validate(ctx context.Context, token string) (*extensions.AuthInfo, error) {
	claims, err := s.ParseToken(token)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject: %w", ErrTokenInvalid)
	}

	user, err := s.store.GetUserByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("unknown user %q: %w", claims.Subject, extensions.ErrUnauthorized)
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if !user.IsActive {
		return nil, fmt.Errorf("user %q is inactive: %w", user.Username, extensions.ErrUnauthorized)
	}

	info := &extensions.AuthInfo{
		UserID:   strconv.FormatInt(user.ID, 10),
		Username: user.Username,
		Email:    user.Email,
		Roles:    []string{user.Role},
	}
	if claims.ExpiresAt != nil {
		info.Metadata = extensions.NewMetadata().
			Set("token_expires_at", claims.ExpiresAt.Time)
	}
	return info, nil
}

// Compile-time interface compliance check.
var _ extensions.AuthProvider = (*Service)(nil)
