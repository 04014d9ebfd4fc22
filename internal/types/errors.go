package types

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrPoolExhausted     = errors.New("port pool exhausted")
	ErrAlreadyRegistered = errors.New("number already registered")
	ErrDeliveryFailure   = errors.New("message delivery failed")
	ErrImmutableField    = errors.New("field is immutable")

	ErrInvalidBackend = errors.New("invalid backend")
	ErrStoreAccess    = errors.New("vendor store read/write error")
)

func Err(typedError error, innerErr error, msgTemplate string, args ...any) error {
	if msgTemplate == "" {
		return errors.Join(typedError, innerErr)
	} else {
		return errors.Join(typedError, innerErr, fmt.Errorf(msgTemplate, args...))
	}
}
