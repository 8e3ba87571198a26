package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPhoneFormat is returned when a raw phone string cannot be
	// normalized into the canonical international format.
	ErrInvalidPhoneFormat = errors.New("invalid phone number format")

	// ErrIdentityNotFound is returned when no account is registered for a
	// normalized phone number.
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrRecordNotFound is returned when a delivery record lookup matches nothing.
	ErrRecordNotFound = errors.New("delivery record not found")
)

// ProviderError carries the SMS gateway's error code and message for a failed
// send. The code drives retry classification.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
}

// AsProviderError unwraps err into a *ProviderError if it is one.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
