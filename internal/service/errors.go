package service

import "errors"

// Sentinel errors for the service layer
var (
	// ErrAlreadyExists means an equivalent record exists; callers creating
	// records idempotently may ignore it.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrInvalidInput wraps validation failures.
	ErrInvalidInput = errors.New("invalid input")
)
