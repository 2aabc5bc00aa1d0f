// Package apperr defines the error taxonomy shared by the access layer,
// the state container and the auth service.
package apperr

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
)

// Kind classifies an error for presentation and retry decisions.
type Kind int

const (
	KindTransient Kind = iota
	KindValidation
	KindNotFound
	KindIdentity
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindIdentity:
		return "identity"
	case KindAuth:
		return "auth"
	default:
		return "transient"
	}
}

// Error carries a kind and the message shown to the user.
type Error struct {
	kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Kind returns the classification of e.
func (e *Error) Kind() Kind { return e.kind }

func newErr(kind Kind, msg string) *Error { return &Error{kind: kind, msg: msg} }

var (
	ErrEmptyMessage = newErr(KindValidation, "Message cannot be empty.")
	ErrSelfChat     = newErr(KindValidation, "Cannot create chat with yourself.")
	ErrEmptyEmail   = newErr(KindValidation, "Email cannot be empty.")
	ErrChatExists   = newErr(KindValidation, "A chat with this contact already exists.")
	ErrNoChat       = newErr(KindValidation, "No chat selected.")

	ErrChatNotFound    = newErr(KindNotFound, "Chat not found.")
	ErrMessageNotFound = newErr(KindNotFound, "Message not found.")
	ErrUserNotFound    = newErr(KindNotFound, "User not found.")

	ErrIdentityDegraded = newErr(KindIdentity, "Your profile could not be saved; continuing with a temporary profile.")

	ErrInvalidCredentials = newErr(KindAuth, "Invalid email or password.")
	ErrAccountExists      = newErr(KindAuth, "An account with this email already exists.")
	ErrUnauthenticated    = newErr(KindAuth, "You are not signed in.")
	ErrRateLimited        = newErr(KindAuth, "Too many attempts, try again later.")
)

// KindOf classifies err; anything outside the taxonomy is transient.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindTransient
}

// UserMessage returns the text shown in a notice for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.msg
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "The request timed out. Please try again."
	}
	return "Something went wrong. Please try again."
}

// GRPCCode maps err onto a gRPC status code.
func GRPCCode(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, ErrInvalidCredentials):
		return codes.PermissionDenied
	case errors.Is(err, ErrAccountExists):
		return codes.AlreadyExists
	case errors.Is(err, ErrUnauthenticated):
		return codes.Unauthenticated
	case errors.Is(err, ErrRateLimited):
		return codes.ResourceExhausted
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	}
	switch KindOf(err) {
	case KindValidation:
		return codes.InvalidArgument
	case KindNotFound:
		return codes.NotFound
	default:
		return codes.Internal
	}
}

// FromGRPCCode is the client-side inverse of GRPCCode for auth errors.
func FromGRPCCode(c codes.Code) error {
	switch c {
	case codes.PermissionDenied:
		return ErrInvalidCredentials
	case codes.AlreadyExists:
		return ErrAccountExists
	case codes.Unauthenticated:
		return ErrUnauthenticated
	case codes.ResourceExhausted:
		return ErrRateLimited
	case codes.NotFound:
		return ErrUserNotFound
	}
	return nil
}
