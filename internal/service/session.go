// Package service implements the session issuance protocol: login, refresh
// and logout composed from the credential store, the refresh token store
// and the access token codec.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/auth-session/internal/model"
	"github.com/iliyamo/auth-session/internal/observability"
	"github.com/iliyamo/auth-session/internal/queue"
	"github.com/iliyamo/auth-session/internal/repository"
	"github.com/iliyamo/auth-session/internal/utils"
)

// Credentials is the credential store the session needs.
type Credentials interface {
	VerifyCredentials(ctx context.Context, email, password string) (model.User, error)
	FindByID(ctx context.Context, id string) (model.User, error)
}

// RefreshTokens is the refresh token store the session needs.
type RefreshTokens interface {
	Issue(ctx context.Context, userID string, ttl time.Duration) (model.RefreshToken, error)
	Lookup(ctx context.Context, token string) (model.RefreshToken, error)
	Revoke(ctx context.Context, token string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}

// Signer issues access tokens.
type Signer interface {
	Sign(id model.Identity, ttl time.Duration) (utils.AccessToken, error)
}

// EventSink receives audit events.  Publish must not block.
type EventSink interface {
	Publish(ev queue.AuthEvent)
}

// Options configures token lifetimes.  Zero values select the defaults
// (15 minutes / 30 days).
type Options struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type LoginInput struct {
	Email    string
	Password string
	ClientIP string
}

type LoginResult struct {
	AccessToken  utils.AccessToken
	RefreshToken model.RefreshToken
	User         model.Identity
}

type RefreshInput struct {
	RefreshToken string
	ClientIP     string
}

type RefreshResult struct {
	AccessToken utils.AccessToken
	User        model.Identity
}

type LogoutInput struct {
	RefreshToken string
	ClientIP     string
}

// Session orchestrates the three session transitions.  It holds no mutable
// state of its own and is safe for concurrent use.
type Session struct {
	users  Credentials
	tokens RefreshTokens
	signer Signer
	events EventSink
	log    *log.Logger
	now    func() time.Time

	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewSession(users Credentials, tokens RefreshTokens, signer Signer, opts Options) *Session {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = utils.DefaultAccessTTL
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = repository.DefaultRefreshTTL
	}
	return &Session{
		users:      users,
		tokens:     tokens,
		signer:     signer,
		log:        observability.Discard(),
		now:        time.Now,
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
	}
}

func (s *Session) WithLogger(l *log.Logger) *Session {
	s.log = l
	return s
}

func (s *Session) WithEvents(sink EventSink) *Session {
	s.events = sink
	return s
}

func (s *Session) WithClock(now func() time.Time) *Session {
	s.now = now
	return s
}

// Login verifies credentials and issues a fresh access token and refresh
// token.  Any credential mismatch is reported as ErrInvalidCredentials
// without saying which field was wrong.
func (s *Session) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	email := repository.NormalizeEmail(in.Email)

	u, err := s.users.VerifyCredentials(ctx, email, in.Password)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialsMismatch) {
			f := newFault(InvalidCredentials, "", "%v", err)
			s.log.Warnj(log.JSON{"event": "login_failed", "email": email, "detail": f.Detail, "ip": in.ClientIP})
			ev := s.event(queue.EventLoginFailure)
			ev.Email, ev.Detail, ev.ClientIP = email, f.Detail, in.ClientIP
			s.publish(ev)
			return LoginResult{}, f
		}
		return LoginResult{}, fmt.Errorf("verify credentials: %w", err)
	}

	access, err := s.signer.Sign(u.Identity(), s.accessTTL)
	if err != nil {
		return LoginResult{}, err
	}
	rt, err := s.tokens.Issue(ctx, u.ID, s.refreshTTL)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue refresh token: %w", err)
	}

	s.log.Infoj(log.JSON{"event": "login", "user_id": u.ID, "role": u.Role, "ip": in.ClientIP})
	ev := s.event(queue.EventLoginSuccess)
	ev.UserID, ev.Email, ev.ClientIP, ev.TokenPrefix = u.ID, u.Email, in.ClientIP, queue.TokenPrefix(rt.Token)
	s.publish(ev)

	return LoginResult{AccessToken: access, RefreshToken: rt, User: u.Identity()}, nil
}

// Refresh exchanges a usable refresh token for a new access token that
// reflects the user's current email and role.  The refresh token itself is
// not rotated.  Faults are classified in order: not found, revoked,
// expired, owning user missing.
func (s *Session) Refresh(ctx context.Context, in RefreshInput) (RefreshResult, error) {
	value := strings.TrimSpace(in.RefreshToken)
	res, err := s.refresh(ctx, value)
	if err != nil {
		if f, ok := AsFault(err); ok {
			s.log.Warnj(log.JSON{
				"event":        "refresh_failed",
				"reason":       f.Reason,
				"token_prefix": queue.TokenPrefix(value),
				"ip":           in.ClientIP,
			})
			ev := s.event(queue.EventRefreshFailure)
			ev.Reason, ev.Detail, ev.TokenPrefix, ev.ClientIP = string(f.Reason), f.Detail, queue.TokenPrefix(value), in.ClientIP
			s.publish(ev)
		}
		return RefreshResult{}, err
	}

	ev := s.event(queue.EventRefreshSuccess)
	ev.UserID, ev.Email, ev.TokenPrefix, ev.ClientIP = res.User.ID, res.User.Email, queue.TokenPrefix(value), in.ClientIP
	s.publish(ev)
	return res, nil
}

func (s *Session) refresh(ctx context.Context, value string) (RefreshResult, error) {
	if value == "" {
		return RefreshResult{}, newFault(InvalidRefreshToken, ReasonNotFound, "empty refresh token")
	}

	rt, err := s.tokens.Lookup(ctx, value)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return RefreshResult{}, newFault(InvalidRefreshToken, ReasonNotFound, "no such refresh token")
		}
		return RefreshResult{}, fmt.Errorf("lookup refresh token: %w", err)
	}
	if rt.Revoked() {
		return RefreshResult{}, newFault(InvalidRefreshToken, ReasonRevoked, "revoked at %s", rt.RevokedAt.Format(time.RFC3339))
	}
	if rt.ExpiredAt(s.now()) {
		return RefreshResult{}, newFault(RefreshTokenExpired, ReasonExpired, "expired at %s", rt.ExpiresAt.Format(time.RFC3339))
	}

	u, err := s.users.FindByID(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return RefreshResult{}, newFault(UserNotFound, ReasonUserMissing, "user %s no longer exists", rt.UserID)
		}
		return RefreshResult{}, fmt.Errorf("load user: %w", err)
	}

	access, err := s.signer.Sign(u.Identity(), s.accessTTL)
	if err != nil {
		return RefreshResult{}, err
	}
	return RefreshResult{AccessToken: access, User: u.Identity()}, nil
}

// Logout revokes the given refresh token.  A missing or unknown token is
// not an error; the returned error is only ever a storage failure, and
// callers still report success to the client.
func (s *Session) Logout(ctx context.Context, in LogoutInput) error {
	value := strings.TrimSpace(in.RefreshToken)
	if value == "" {
		return nil
	}
	if err := s.tokens.Revoke(ctx, value); err != nil {
		return err
	}
	ev := s.event(queue.EventLogout)
	ev.TokenPrefix, ev.ClientIP = queue.TokenPrefix(value), in.ClientIP
	s.publish(ev)
	return nil
}

// LogoutAll revokes every refresh token of the authenticated user.  Access
// tokens already issued stay valid until they expire.
func (s *Session) LogoutAll(ctx context.Context, id model.Identity, clientIP string) error {
	if err := s.tokens.RevokeAllForUser(ctx, id.ID); err != nil {
		return err
	}
	ev := s.event(queue.EventLogoutAll)
	ev.UserID, ev.Email, ev.ClientIP = id.ID, id.Email, clientIP
	s.publish(ev)
	return nil
}

func (s *Session) event(typ queue.EventType) queue.AuthEvent {
	return queue.NewAuthEvent(typ, s.now())
}

func (s *Session) publish(ev queue.AuthEvent) {
	if s.events != nil {
		s.events.Publish(ev)
	}
}
