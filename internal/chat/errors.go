package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrConversationNotFound covers both missing and not-owned conversations.
	ErrConversationNotFound = errors.New("conversation not found")
	ErrJobNotFound          = errors.New("job not found")
	ErrEmptyMessage         = errors.New("empty message")
)

// StorageError marks a persistence failure. It must reach the caller as a
// visible failure, never as a normal reply.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
