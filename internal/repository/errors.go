// Package repository defines error types that are reused across the
// repositories and the services built on them.  These sentinel values let
// higher layers such as handlers distinguish between failure scenarios
// with errors.Is; services wrap them with context using %w.
package repository

import "errors"

// ErrUnauthenticated is returned when no acting identity is present or the
// identity no longer maps to an account.  Handlers translate this into 401.
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrNotFound is returned when an entity is absent or a link in an
// ownership chain is broken (e.g. a device that is not in the given region).
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an operation collides with existing state,
// such as registering an email that is already taken or attaching a second
// camera to a device. Handlers should translate this into an HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrLimitExceeded is returned when a tier cap (adherents per premium,
// devices per normal account) would be exceeded.
var ErrLimitExceeded = errors.New("limit exceeded")

// ErrGatewayFailure is returned when a blocking call to an external
// collaborator (device-control gateway, identity verifier) fails.
var ErrGatewayFailure = errors.New("external gateway failure")

// ErrInvalid is returned when input fails validation.
var ErrInvalid = errors.New("invalid input")
