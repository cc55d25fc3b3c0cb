package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/online_catalog/internal/apperr"
	"github.com/Skotchmaster/online_catalog/internal/auth"
	"github.com/Skotchmaster/online_catalog/internal/cache"
	"github.com/Skotchmaster/online_catalog/internal/events"
	"github.com/Skotchmaster/online_catalog/internal/hash"
	"github.com/Skotchmaster/online_catalog/internal/models"
	"github.com/Skotchmaster/online_catalog/internal/tokens"
)

var (
	ErrBadLogin         = apperr.New(apperr.Authentication, "invalid email or password")
	ErrWrongPassword    = apperr.New(apperr.Authentication, "invalid current password")
	ErrBadVerification  = apperr.New(apperr.Authentication, "invalid verification token")
	ErrUserDeleteDenied = apperr.New(apperr.Forbidden, "only administrators can delete users")
	errNothingToUpdate  = apperr.New(apperr.Validation, "at least one field (name, email) must be provided")
)

const verificationTokenLen = 32

type UserStore interface {
	CreateUserIfNotExists(ctx context.Context, u *models.User) error
	EmailTaken(ctx context.Context, email string, except uuid.UUID) (bool, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByVerificationToken(ctx context.Context, token string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, u *models.User, fields ...string) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

type TokenIssuer interface {
	Issue(c tokens.Claims) (string, tokens.Claims, error)
}

type Revoker interface {
	Revoke(ctx context.Context, id *auth.Identity) error
}

type RegisterInput struct {
	Name     string `json:"name"     validate:"required,min=2"`
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=3"`
}

type LoginInput struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ProfilePatch struct {
	Name  *string `json:"name"  validate:"omitempty,min=2"`
	Email *string `json:"email" validate:"omitempty,email"`
}

type PasswordChange struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=3"`
}

type Session struct {
	User      models.PublicUser `json:"user"`
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// registeredPayload goes to the mailer through user_events.
type registeredPayload struct {
	Email             string `json:"email"`
	Name              string `json:"name"`
	VerificationToken string `json:"verificationToken"`
}

type UserDeps struct {
	Store             UserStore
	Cache             cache.Store
	Invalidator       *cache.Invalidator
	Tokens            TokenIssuer
	Revoker           Revoker
	Events            events.Publisher
	CacheTTL          time.Duration
	SideEffectTimeout time.Duration
}

type UserService struct {
	store   UserStore
	cache   cache.Store
	inv     *cache.Invalidator
	tokens  TokenIssuer
	revoker Revoker
	ttl     time.Duration
	after   sideEffects
}

func NewUserService(d UserDeps) *UserService {
	return &UserService{
		store:   d.Store,
		cache:   d.Cache,
		inv:     d.Invalidator,
		tokens:  d.Tokens,
		revoker: d.Revoker,
		ttl:     d.CacheTTL,
		after:   newSideEffects(d.Events, d.SideEffectTimeout),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func newVerificationToken() (string, error) {
	b := make([]byte, verificationTokenLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate verification token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (models.PublicUser, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if err := validateStruct(in); err != nil {
		return models.PublicUser{}, err
	}

	pw, err := hash.HashPassword(in.Password)
	if err != nil {
		return models.PublicUser{}, apperr.Wrap(apperr.Internal, "cannot register user", err)
	}
	vt, err := newVerificationToken()
	if err != nil {
		return models.PublicUser{}, apperr.Wrap(apperr.Internal, "cannot register user", err)
	}

	u := &models.User{Name: in.Name, Email: in.Email, PasswordHash: pw, VerificationToken: &vt}
	if err := s.store.CreateUserIfNotExists(ctx, u); err != nil {
		return models.PublicUser{}, err
	}
	s.inv.Invalidate(ctx, cache.UserCreated, u.ID)
	s.after.publish(ctx, events.UserTopic, events.New(events.UserRegistered, u.ID.String(), registeredPayload{
		Email:             u.Email,
		Name:              u.Name,
		VerificationToken: vt,
	}))
	return u.Public(), nil
}

// Login answers unknown email and wrong password identically.
func (s *UserService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	u, err := s.store.GetUserByEmail(ctx, in.Email)
	if err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			return nil, ErrBadLogin
		}
		return nil, err
	}
	if !hash.CheckPassword(u.PasswordHash, in.Password) {
		return nil, ErrBadLogin
	}

	raw, claims, err := s.tokens.Issue(tokens.Claims{UserID: u.ID, Name: u.Name, Email: u.Email, Admin: u.IsAdmin})
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "cannot issue token", err)
	}
	return &Session{User: u.Public(), Token: raw, ExpiresAt: claims.ExpiresAt}, nil
}

func (s *UserService) Profile(ctx context.Context, id uuid.UUID) (models.PublicUser, error) {
	return cache.Fetch(ctx, s.cache, cache.UserProfileKey(id), s.ttl, func(ctx context.Context) (models.PublicUser, error) {
		u, err := s.store.GetUserByID(ctx, id)
		if err != nil {
			return models.PublicUser{}, err
		}
		return u.Public(), nil
	})
}

func (s *UserService) UpdateProfile(ctx context.Context, id uuid.UUID, patch ProfilePatch) (models.PublicUser, error) {
	if patch.Name != nil {
		n := strings.TrimSpace(*patch.Name)
		patch.Name = &n
	}
	if patch.Email != nil {
		e := normalizeEmail(*patch.Email)
		patch.Email = &e
	}
	if patch.Name == nil && patch.Email == nil {
		return models.PublicUser{}, errNothingToUpdate
	}
	if err := validateStruct(patch); err != nil {
		return models.PublicUser{}, err
	}

	u, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return models.PublicUser{}, err
	}
	var fields []string
	if patch.Name != nil {
		u.Name = *patch.Name
		fields = append(fields, "Name")
	}
	if patch.Email != nil && *patch.Email != u.Email {
		taken, err := s.store.EmailTaken(ctx, *patch.Email, id)
		if err != nil {
			return models.PublicUser{}, err
		}
		if taken {
			return models.PublicUser{}, apperr.New(apperr.Conflict, "email is already registered")
		}
		u.Email = *patch.Email
		fields = append(fields, "Email")
	}
	if len(fields) == 0 {
		return u.Public(), nil
	}

	if err := s.store.UpdateUser(ctx, u, fields...); err != nil {
		return models.PublicUser{}, err
	}
	s.inv.Invalidate(ctx, cache.UserUpdated, id)
	return u.Public(), nil
}

// ChangePassword commits the new hash and then revokes the presented token.
func (s *UserService) ChangePassword(ctx context.Context, who *auth.Identity, in PasswordChange) error {
	if err := validateStruct(in); err != nil {
		return err
	}
	u, err := s.store.GetUserByID(ctx, who.UserID)
	if err != nil {
		return err
	}
	if !hash.CheckPassword(u.PasswordHash, in.OldPassword) {
		return ErrWrongPassword
	}
	pw, err := hash.HashPassword(in.NewPassword)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "cannot change password", err)
	}
	u.PasswordHash = pw
	if err := s.store.UpdateUser(ctx, u, "PasswordHash"); err != nil {
		return err
	}
	s.inv.Invalidate(ctx, cache.UserUpdated, who.UserID)
	return s.revoker.Revoke(ctx, who)
}

// Logout revokes the presented token. Repeating it is harmless.
func (s *UserService) Logout(ctx context.Context, who *auth.Identity) error {
	return s.revoker.Revoke(ctx, who)
}

// List returns every user except the requester. The cached list is the full one.
func (s *UserService) List(ctx context.Context, excluding uuid.UUID) ([]models.PublicUser, error) {
	all, err := cache.Fetch(ctx, s.cache, cache.AllUsersKey, s.ttl, func(ctx context.Context) ([]models.PublicUser, error) {
		users, err := s.store.ListUsers(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]models.PublicUser, 0, len(users))
		for i := range users {
			out = append(out, users[i].Public())
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.PublicUser, 0, len(all))
	for _, u := range all {
		if u.ID != excluding {
			out = append(out, u)
		}
	}
	return out, nil
}

// Delete removes a user; only admins may. It reports whether the requester
// deleted their own account, in which case their token is revoked too.
func (s *UserService) Delete(ctx context.Context, who *auth.Identity, id uuid.UUID) (bool, error) {
	if !who.Admin {
		return false, ErrUserDeleteDenied
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return false, err
	}
	s.inv.Invalidate(ctx, cache.UserDeleted, id)
	s.after.publish(ctx, events.UserTopic, events.New(events.UserDeleted, id.String(), nil))

	if who.UserID != id {
		return false, nil
	}
	return true, s.revoker.Revoke(ctx, who)
}

func (s *UserService) VerifyEmail(ctx context.Context, token string) (models.PublicUser, error) {
	if token == "" {
		return models.PublicUser{}, ErrBadVerification
	}
	u, err := s.store.GetUserByVerificationToken(ctx, token)
	if err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			return models.PublicUser{}, ErrBadVerification
		}
		return models.PublicUser{}, err
	}

	u.IsVerified = true
	u.VerificationToken = nil
	if err := s.store.UpdateUser(ctx, u, "IsVerified", "VerificationToken"); err != nil {
		return models.PublicUser{}, err
	}
	s.inv.Invalidate(ctx, cache.UserUpdated, u.ID)
	s.after.publish(ctx, events.UserTopic, events.New(events.UserVerified, u.ID.String(), nil))
	return u.Public(), nil
}
