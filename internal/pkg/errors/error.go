package xerrors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Common reusable application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized access")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict: resource already exists")
	ErrInternal     = errors.New("internal server error")
	ErrRateLimited  = errors.New("too many requests")
)

// Subscription engine taxonomy
var (
	ErrValidation             = errors.New("validation failed")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrPaymentFailed          = errors.New("payment failed")
	ErrPersistence            = errors.New("persistence failure")
)

// Error carries a classified failure with a user-facing message.
// Fields hold retry context (tier, duration, ...) and never internal ids.
type Error struct {
	Kind    error
	Message string
	Fields  map[string]interface{}
	cause   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Fields[k])
		}
		b.WriteString(")")
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

// Is matches the error's kind so errors.Is(err, ErrValidation) works.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(kind error, message string, kv []interface{}) *Error {
	e := &Error{Kind: kind, Message: message}
	if len(kv) > 1 {
		e.Fields = make(map[string]interface{}, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			key, ok := kv[i].(string)
			if !ok {
				continue
			}
			e.Fields[key] = kv[i+1]
		}
	}
	return e
}

// Validation reports a request rejected before touching the store.
// kv is an alternating list of field names and values.
func Validation(message string, kv ...interface{}) error {
	return newError(ErrValidation, message, kv)
}

// NotFound reports a missing account, subscription, session or transaction.
func NotFound(message string, kv ...interface{}) error {
	return newError(ErrNotFound, message, kv)
}

// Concurrent reports a lost optimistic-concurrency race.
func Concurrent(message string) error {
	return newError(ErrConcurrentModification, message, nil)
}

// PaymentFailed carries the gateway's reported reason.
func PaymentFailed(reason string, kv ...interface{}) error {
	return newError(ErrPaymentFailed, reason, kv)
}

// RateLimited reports a caller that exceeded an attempt budget.
func RateLimited(message string) error {
	return newError(ErrRateLimited, message, nil)
}

// Persistence wraps a store failure for the named operation.
func Persistence(op string, cause error) error {
	e := newError(ErrPersistence, "failed to "+op, nil)
	e.cause = cause
	return e
}

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is allows checking whether an error is a specific sentinel error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Unwrap extracts the underlying wrapped error.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// UserMessage returns the classified message, or fallback for unclassified errors.
// Persistence errors always collapse to fallback so driver details stay internal.
func UserMessage(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != ErrPersistence {
		if len(e.Fields) == 0 {
			return e.Message
		}
		clone := *e
		clone.cause = nil
		return clone.Error()
	}
	return fallback
}

// MessageOrDefault returns err.Error() or a fallback message if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
