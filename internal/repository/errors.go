// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values allow higher layers such as the
// session service to classify failures without inspecting SQL errors.
package repository

import "errors"

// ErrNotFound is returned when a point lookup (user by email/id, refresh
// token by value) matches no row.  It is distinct from "revoked" or
// "expired": those are properties of a row that does exist.
var ErrNotFound = errors.New("not found")

// ErrCredentialsMismatch is returned by VerifyCredentials for both an
// unknown email and a wrong password.  The wrapped message says which one
// for internal logs; callers must not expose it.
var ErrCredentialsMismatch = errors.New("credentials mismatch")

// ErrInvalidRole is returned when a user would be stored with a role outside
// the known set.
var ErrInvalidRole = errors.New("invalid role")

// ErrIDTaken is returned by UpsertBootstrapUser when the requested id is
// already used by an account with a different email.
var ErrIDTaken = errors.New("user id already taken")
