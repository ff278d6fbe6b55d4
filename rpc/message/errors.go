package message

import (
	"errors"
	"fmt"
)

var ErrSerialization = errors.New("serialization failed")

// SerializationError describes why a message could not be encoded or decoded.
type SerializationError struct {
	Msg string
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrSerialization, e.Msg)
}

func (e *SerializationError) Is(target error) bool {
	return target == ErrSerialization
}

func serializationErrorf(format string, args ...interface{}) *SerializationError {
	return &SerializationError{Msg: fmt.Sprintf(format, args...)}
}
