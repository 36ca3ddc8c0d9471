package descriptor

import "errors"

var (
	// ErrUnknownBinding is the panic value for a push naming a binding no shader declares.
	ErrUnknownBinding = errors.New("descriptor: unknown binding")
	// ErrResourceMismatch is the panic value for a push whose resource does not fit the binding.
	ErrResourceMismatch = errors.New("descriptor: resource does not match binding")
	// ErrNotFlushed is the panic value for reading descriptor sets before FlushData succeeded.
	ErrNotFlushed = errors.New("descriptor: data not flushed")
)
