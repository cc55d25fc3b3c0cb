// Package auth authenticates requests from a session token: signature and
// expiry through the token codec, revocation through the revocation store and
// the current privilege level through the user store.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/online_catalog/internal/apperr"
	"github.com/Skotchmaster/online_catalog/internal/logging"
	"github.com/Skotchmaster/online_catalog/internal/models"
	"github.com/Skotchmaster/online_catalog/internal/tokens"
)

var (
	ErrMissingCredential     = apperr.New(apperr.Authentication, "authentication required")
	ErrInvalidCredential     = apperr.New(apperr.Authentication, "invalid token")
	ErrExpiredCredential     = apperr.New(apperr.Authentication, "token expired")
	ErrRevokedCredential     = apperr.New(apperr.Authentication, "token revoked")
	ErrRevocationUnavailable = apperr.New(apperr.Authentication, "cannot verify token")
)

type Verifier interface {
	Verify(raw string) (tokens.Claims, error)
}

type RevocationStore interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
	Revoke(ctx context.Context, token string, ttl time.Duration) error
}

type UserLookup interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Identity is the authenticated caller of one request. It is never stored.
type Identity struct {
	UserID uuid.UUID
	Name   string
	Email  string
	// Admin comes from the user store, not from the token.
	Admin  bool
	Token  string
	Claims tokens.Claims
}

type Authenticator struct {
	codec   Verifier
	revoked RevocationStore
	users   UserLookup
	now     func() time.Time
}

func NewAuthenticator(codec Verifier, revoked RevocationStore, users UserLookup) *Authenticator {
	return &Authenticator{codec: codec, revoked: revoked, users: users, now: time.Now}
}

func (a *Authenticator) Authenticate(ctx context.Context, raw string) (*Identity, error) {
	l := logging.FromContext(ctx).With("component", "auth.authenticate")

	if raw == "" {
		return nil, ErrMissingCredential
	}

	revoked, err := a.revoked.IsRevoked(ctx, raw)
	if err != nil {
		l.Error("authenticate_failed", "reason", "revocation_unavailable", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	if revoked {
		l.Info("authenticate_failed", "reason", "revoked")
		return nil, ErrRevokedCredential
	}

	claims, err := a.codec.Verify(raw)
	if err != nil {
		if errors.Is(err, tokens.ErrExpired) {
			l.Info("authenticate_failed", "reason", "expired")
			return nil, ErrExpiredCredential
		}
		l.Info("authenticate_failed", "reason", "invalid")
		return nil, ErrInvalidCredential
	}

	user, err := a.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			l.Info("authenticate_failed", "reason", "unknown_subject", "user_id", claims.UserID)
			return nil, ErrInvalidCredential
		}
		return nil, err
	}

	return &Identity{
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Admin:  user.IsAdmin,
		Token:  raw,
		Claims: claims,
	}, nil
}

// Revoke makes id's token unusable for the rest of its lifetime. It runs to
// completion even if ctx is cancelled.
func (a *Authenticator) Revoke(ctx context.Context, id *Identity) error {
	ctx = context.WithoutCancel(ctx)
	if err := a.revoked.Revoke(ctx, id.Token, id.Claims.Remaining(a.now())); err != nil {
		return apperr.Wrap(apperr.Internal, "cannot revoke token", err)
	}
	return nil
}
