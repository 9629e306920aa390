package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	ErrUnauthenticated    = fmt.Errorf("unauthenticated")
	ErrForbidden          = fmt.Errorf("forbidden")
	ErrNotFound           = fmt.Errorf("not found")
	ErrInvalidPayload     = fmt.Errorf("invalid payload")
	ErrRateLimited        = fmt.Errorf("rate limited")
	ErrStorage            = fmt.Errorf("storage error")
	ErrDeliveryBestEffort = fmt.Errorf("live delivery failed")

	ErrConversationNotFound = fmt.Errorf("conversation %w", ErrNotFound)
	ErrMessageNotFound      = fmt.Errorf("message %w", ErrNotFound)
	ErrNotificationNotFound = fmt.Errorf("notification %w", ErrNotFound)
	ErrNotParticipant       = fmt.Errorf("user is not a participant: %w", ErrForbidden)
	ErrNotSender            = fmt.Errorf("only the sender can delete for everyone: %w", ErrForbidden)
	ErrSelfConversation     = fmt.Errorf("cannot open a conversation with yourself: %w", ErrInvalidPayload)
	ErrEmptyMessage         = fmt.Errorf("message needs a text or a file: %w", ErrInvalidPayload)
	ErrContentTooLong       = fmt.Errorf("message content too long: %w", ErrInvalidPayload)
	ErrNotAnnounced         = fmt.Errorf("connection has not announced an identity: %w", ErrUnauthenticated)
	ErrInvalidToken         = fmt.Errorf("invalid or expired token: %w", ErrUnauthenticated)
	ErrInvalidIdentity      = fmt.Errorf("invalid user identity: %w", ErrUnauthenticated)
	ErrUnknownEvent         = fmt.Errorf("unknown event: %w", ErrInvalidPayload)
)

// Code is the wire representation of an error, sent back to the actor only.
type Code string

const (
	CodeUnauthenticated Code = "unauthenticated"
	CodeForbidden       Code = "forbidden"
	CodeNotFound        Code = "not_found"
	CodeInvalidPayload  Code = "invalid_payload"
	CodeRateLimited     Code = "rate_limited"
	CodeStorage         Code = "storage_error"
	CodeInternal        Code = "internal"
)

// Storage wraps a failure of the durable layer so callers can classify it.
// Errors already part of the taxonomy are returned untouched.
func Storage(err error) error {
	if err == nil {
		return nil
	}
	if ToCode(err) != CodeInternal {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStorage, err)
}

// ToCode maps any error of the taxonomy to its wire code.
func ToCode(err error) Code {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidPayload):
		return CodeInvalidPayload
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrStorage):
		return CodeStorage
	default:
		return CodeInternal
	}
}

// MapToHTTPStatus gives the status used by the HTTP layer for err.
func MapToHTTPStatus(err error) int {
	switch ToCode(err) {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidPayload:
		return http.StatusBadRequest
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Is and As are re-exported so callers importing this package keep access to them.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
