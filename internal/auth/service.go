// Package auth implements credential login for the admin console:
// CAPTCHA-gated password checks, role resolution, dual JWT issuance,
// and population of the session mirror in the cache.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"admincore.org/internal/cache"
)

const (
	defaultAccessTTL  = 2 * time.Hour
	defaultRefreshTTL = 36 * time.Hour
)

// Session mirror keys, one set per user id.
func departmentKey(userID string) string      { return "admin:department:" + userID }
func permsKey(userID string) string           { return "admin:perms:" + userID }
func tokenKey(userID string) string           { return "admin:token:" + userID }
func refreshTokenKey(userID string) string    { return "admin:token:refresh:" + userID }
func passwordVersionKey(userID string) string { return "admin:passwordVersion:" + userID }

// ChallengeValidator consumes a CAPTCHA challenge on success.
type ChallengeValidator interface {
	Validate(ctx context.Context, id, value string) (bool, error)
}

// Service orchestrates the login transaction. Construct it once with
// NewService; configuration is captured immutably at that point.
type Service struct {
	store      Store
	sessions   cache.Cache
	challenges ChallengeValidator

	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	digest     Digest
	superAdmin func(*User) bool
	now        func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithDigest overrides the password digest primitive.
func WithDigest(d Digest) ServiceOption {
	return func(s *Service) error {
		if d != nil {
			s.digest = d
		}
		return nil
	}
}

// WithSuperAdminPolicy sets the predicate that grants a user visibility
// over all departments. The default grants nobody.
func WithSuperAdminPolicy(policy func(*User) bool) ServiceOption {
	return func(s *Service) error {
		if policy != nil {
			s.superAdmin = policy
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs the login orchestrator.
func NewService(store Store, sessions cache.Cache, challenges ChallengeValidator, secret []byte, opts ...ServiceOption) (*Service, error) {
	if store == nil || sessions == nil || challenges == nil {
		return nil, errors.New("auth: store, session cache and challenge validator are required")
	}
	if len(secret) == 0 {
		return nil, errors.New("auth: token secret is required")
	}
	svc := &Service{
		store:      store,
		sessions:   sessions,
		challenges: challenges,
		secret:     secret,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		digest:     MD5Digest,
		superAdmin: func(*User) bool { return false },
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// AccessTTL returns the configured access token lifetime.
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

// Login runs the full transaction: challenge, credentials, roles, token
// pair, session mirror. Each step short-circuits on failure, so nothing
// past the failing step is persisted.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	ok, err := s.challenges.Validate(ctx, in.CaptchaID, in.VerifyCode)
	if err != nil {
		return nil, fmt.Errorf("%w: validate challenge: %v", ErrDependency, err)
	}
	if !ok {
		return nil, ErrBadCaptcha
	}

	user, err := s.store.Users().FindByUsername(ctx, in.Username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrBadCredentials
		}
		return nil, fmt.Errorf("%w: find user: %v", ErrDependency, err)
	}
	if !user.Active() || !digestEqual(user.PasswordHash, s.digest(in.Password)) {
		return nil, ErrBadCredentials
	}

	roleIDs, err := s.store.Roles().RolesForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve roles: %v", ErrDependency, err)
	}
	if len(roleIDs) == 0 {
		return nil, ErrNoRoles
	}

	result, err := s.issuePair(ctx, user, roleIDs)
	if err != nil {
		return nil, err
	}
	if err := s.writeSessionMirror(ctx, user, roleIDs, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Refresh exchanges a valid refresh token for a fresh pair. The token
// must be flagged as refresh and carry the user's current password
// version; the whole session mirror is rewritten on success.
func (s *Service) Refresh(ctx context.Context, rawToken string) (*LoginResult, error) {
	claims, err := parseToken(s.secret, rawToken)
	if err != nil {
		return nil, err
	}
	if !claims.IsRefresh {
		return nil, ErrInvalidToken
	}
	if err := s.checkPasswordVersion(ctx, claims); err != nil {
		return nil, err
	}

	user, err := s.store.Users().Find(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("%w: find user: %v", ErrDependency, err)
	}
	if !user.Active() || user.PasswordVersion != claims.PasswordVersion {
		return nil, ErrInvalidToken
	}

	roleIDs, err := s.store.Roles().RolesForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve roles: %v", ErrDependency, err)
	}
	if len(roleIDs) == 0 {
		return nil, ErrNoRoles
	}

	result, err := s.issuePair(ctx, user, roleIDs)
	if err != nil {
		return nil, err
	}
	if err := s.writeSessionMirror(ctx, user, roleIDs, result); err != nil {
		return nil, err
	}
	return result, nil
}

// VerifyAccess authenticates a bearer access token against both its
// signature and the session mirror: the password-version marker and the
// cached token must still match.
func (s *Service) VerifyAccess(ctx context.Context, rawToken string) (Session, error) {
	claims, err := parseToken(s.secret, rawToken)
	if err != nil {
		return Session{}, err
	}
	if claims.IsRefresh {
		return Session{}, ErrInvalidToken
	}
	if err := s.checkPasswordVersion(ctx, claims); err != nil {
		return Session{}, err
	}

	cached, err := s.sessions.Get(ctx, tokenKey(claims.UserID))
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return Session{}, ErrInvalidToken
		}
		return Session{}, fmt.Errorf("%w: read cached token: %v", ErrDependency, err)
	}
	if cached != rawToken {
		return Session{}, ErrInvalidToken
	}

	return Session{
		UserID:          claims.UserID,
		RoleIDs:         claims.RoleIDs,
		PasswordVersion: claims.PasswordVersion,
	}, nil
}

// Logout drops the session mirror for the user. Issued tokens become
// unverifiable immediately since VerifyAccess requires the cached copy.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidToken
	}
	err := s.sessions.Del(ctx,
		departmentKey(userID),
		permsKey(userID),
		tokenKey(userID),
		refreshTokenKey(userID),
		passwordVersionKey(userID),
	)
	if err != nil {
		return fmt.Errorf("%w: clear session: %v", ErrDependency, err)
	}
	return nil
}

// issuePair mints the access and refresh tokens. Both issuances stamp
// the password-version marker, mirroring that both tokens were minted
// against the same credential state.
func (s *Service) issuePair(ctx context.Context, user *User, roleIDs []string) (*LoginResult, error) {
	access, err := s.issueToken(ctx, user, roleIDs, s.accessTTL, false)
	if err != nil {
		return nil, err
	}
	refresh, err := s.issueToken(ctx, user, roleIDs, s.refreshTTL, true)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Expire:        int64(s.accessTTL / time.Second),
		Token:         access,
		RefreshExpire: int64(s.refreshTTL / time.Second),
		RefreshToken:  refresh,
	}, nil
}

func (s *Service) issueToken(ctx context.Context, user *User, roleIDs []string, ttl time.Duration, isRefresh bool) (string, error) {
	err := s.sessions.Set(ctx, passwordVersionKey(user.ID), strconv.Itoa(user.PasswordVersion), 0)
	if err != nil {
		return "", fmt.Errorf("%w: record password version: %v", ErrDependency, err)
	}
	token, err := signToken(s.secret, newClaims(user, roleIDs, ttl, isRefresh, s.now()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDependency, err)
	}
	return token, nil
}

// writeSessionMirror resolves permissions and department scope, then
// records them together with both tokens. Runs strictly after issuance:
// no mirror entry may reference a token that does not exist yet.
func (s *Service) writeSessionMirror(ctx context.Context, user *User, roleIDs []string, result *LoginResult) error {
	perms, err := s.store.Permissions().PermissionsForRoles(ctx, roleIDs)
	if err != nil {
		return fmt.Errorf("%w: resolve permissions: %v", ErrDependency, err)
	}
	departments, err := s.store.Departments().DepartmentsForRoles(ctx, roleIDs, s.superAdmin(user))
	if err != nil {
		return fmt.Errorf("%w: resolve departments: %v", ErrDependency, err)
	}

	departmentsJSON, err := json.Marshal(departments)
	if err != nil {
		return fmt.Errorf("%w: encode departments: %v", ErrDependency, err)
	}
	permsJSON, err := json.Marshal(perms)
	if err != nil {
		return fmt.Errorf("%w: encode permissions: %v", ErrDependency, err)
	}

	if err := s.sessions.Set(ctx, departmentKey(user.ID), string(departmentsJSON), 0); err != nil {
		return fmt.Errorf("%w: cache departments: %v", ErrDependency, err)
	}
	if err := s.sessions.Set(ctx, permsKey(user.ID), string(permsJSON), 0); err != nil {
		return fmt.Errorf("%w: cache permissions: %v", ErrDependency, err)
	}
	if err := s.sessions.Set(ctx, tokenKey(user.ID), result.Token, s.accessTTL); err != nil {
		return fmt.Errorf("%w: cache access token: %v", ErrDependency, err)
	}
	if err := s.sessions.Set(ctx, refreshTokenKey(user.ID), result.RefreshToken, s.refreshTTL); err != nil {
		return fmt.Errorf("%w: cache refresh token: %v", ErrDependency, err)
	}
	return nil
}

func (s *Service) checkPasswordVersion(ctx context.Context, claims *Claims) error {
	marker, err := s.sessions.Get(ctx, passwordVersionKey(claims.UserID))
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			// No marker recorded: nothing to compare against.
			return nil
		}
		return fmt.Errorf("%w: read password version: %v", ErrDependency, err)
	}
	version, err := strconv.Atoi(marker)
	if err != nil || version != claims.PasswordVersion {
		return ErrInvalidToken
	}
	return nil
}
