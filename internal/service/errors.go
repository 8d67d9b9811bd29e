package service

import (
	"errors"
	"fmt"
)

// FaultKind is the caller-visible classification of a session failure.  The
// string value is the error code sent on the wire.
type FaultKind string

const (
	InvalidCredentials  FaultKind = "invalid_credentials"
	InvalidRefreshToken FaultKind = "invalid_refresh_token"
	RefreshTokenExpired FaultKind = "refresh_token_expired"
	UserNotFound        FaultKind = "user_not_found"
)

// Reason refines a refresh fault.  Refresh reasons may be returned to the
// caller since the caller already holds the secret token; login faults
// never carry a reason.
type Reason string

const (
	ReasonNotFound    Reason = "not_found"
	ReasonRevoked     Reason = "revoked"
	ReasonExpired     Reason = "expired"
	ReasonUserMissing Reason = "user_missing"
)

// Fault is a terminal credential or token failure.  Kind and Reason form the
// caller-safe projection; Detail is for logs and audit only (for example
// whether the email or the password was wrong).
type Fault struct {
	Kind   FaultKind
	Reason Reason
	Detail string
}

func (f *Fault) Error() string {
	msg := string(f.Kind)
	if f.Reason != "" {
		msg += " (" + string(f.Reason) + ")"
	}
	if f.Detail != "" {
		msg += ": " + f.Detail
	}
	return msg
}

// Is matches another *Fault with the same Kind, and the same Reason when the
// target sets one.  It lets callers write errors.Is(err, ErrRefreshRevoked).
func (f *Fault) Is(target error) bool {
	t, ok := target.(*Fault)
	if !ok {
		return false
	}
	return t.Kind == f.Kind && (t.Reason == "" || t.Reason == f.Reason)
}

// Sentinels for errors.Is.
var (
	ErrInvalidCredentials   = &Fault{Kind: InvalidCredentials}
	ErrInvalidRefreshToken  = &Fault{Kind: InvalidRefreshToken}
	ErrRefreshNotFound      = &Fault{Kind: InvalidRefreshToken, Reason: ReasonNotFound}
	ErrRefreshRevoked       = &Fault{Kind: InvalidRefreshToken, Reason: ReasonRevoked}
	ErrRefreshTokenExpired  = &Fault{Kind: RefreshTokenExpired, Reason: ReasonExpired}
	ErrOrphanedRefreshToken = &Fault{Kind: UserNotFound, Reason: ReasonUserMissing}
)

// AsFault extracts the *Fault from err, if any.  Errors that are not faults
// are infrastructure failures and must not be reported as 401s.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

func newFault(kind FaultKind, reason Reason, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}
