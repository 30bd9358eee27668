package domain

import "errors"

// Error kinds. Callers classify with errors.Is.
var (
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrForbidden             = errors.New("forbidden")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrNoSuchUser            = errors.New("no such user")
	ErrDeliveryFailure       = errors.New("delivery failure")
	ErrAggregationFailure    = errors.New("aggregation failure")
	ErrDuplicateReview       = errors.New("duplicate review")
	ErrDuplicateEmail        = errors.New("duplicate email")
	ErrDuplicateBooking      = errors.New("duplicate booking")
	ErrNotFound              = errors.New("not found")
	ErrValidation            = errors.New("validation failed")
)

// Error pairs a kind with a message that is safe to return to clients.
// Err holds the underlying cause and is only ever logged.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func NewError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func WrapError(kind error, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// SafeMessage returns the client-facing message carried by err, if any.
func SafeMessage(err error) (string, bool) {
	var de *Error
	if errors.As(err, &de) && de.Message != "" {
		return de.Message, true
	}
	return "", false
}
