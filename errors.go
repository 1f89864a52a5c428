package carta

import (
	"errors"

	"carta/ds"
)

var (
	// ErrPoisoned is wrapped by every error an operation returns for a bucket whose
	// earlier write panicked or exited its goroutine. It is never returned for an
	// absent key.
	ErrPoisoned = ds.ErrPoisoned

	ErrInvalidParam = errors.New("parameters are invalid")
)
