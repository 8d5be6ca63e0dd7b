// Package apperr defines the error kinds surfaced at the API boundary.
package apperr

import (
	"errors"
	"fmt"

	"github.com/ariefcatur/go-realtime-checkout/internal/store"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindGateway    Kind = "gateway"
	KindDatabase   Kind = "database"
)

// GenericMessage is shown to callers instead of a database error's details.
const GenericMessage = "Something went wrong, please try again"

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Gateway(msg string, err error) error {
	return &Error{Kind: KindGateway, Message: msg, Err: err}
}

func Database(msg string, err error) error {
	return &Error{Kind: KindDatabase, Message: msg, Err: err}
}

// KindOf reports the kind of err, or KindDatabase for errors outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindDatabase
}

func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// PublicMessage is the message safe to return to a caller.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindDatabase {
		return GenericMessage
	}
	return e.Message
}

// Wrap classifies an error returned from the store. Errors already in the
// taxonomy pass through; store.ErrNotFound becomes notFound when given.
func Wrap(err error, op string, notFound error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if notFound != nil && errors.Is(err, store.ErrNotFound) {
		return notFound
	}
	return Database(op, err)
}
