package w3g

import (
	"errors"
	"fmt"
)

// Error kinds of the decoder. Every decode failure wraps exactly one of these,
// so callers can select on the kind with errors.Is.
var (
	// ErrMalformedHeader indicates a magic / offset / version / client type mismatch in the file header.
	ErrMalformedHeader = errors.New("w3g: malformed header")

	// ErrTruncatedData indicates that a declared length reads past the end of the buffer.
	ErrTruncatedData = errors.New("w3g: truncated data")

	// ErrEmptyReplay indicates a replay without any data block.
	ErrEmptyReplay = errors.New("w3g: empty replay")

	// ErrUnknownOpcode indicates an unrecognized top-level record tag or action id.
	ErrUnknownOpcode = errors.New("w3g: unknown opcode")

	// ErrMalformedRecord indicates a violated structural invariant of a record.
	ErrMalformedRecord = errors.New("w3g: malformed record")

	// ErrMalformedTrailer indicates a non-zero byte after the end-of-replay marker.
	ErrMalformedTrailer = errors.New("w3g: malformed trailer")

	// ErrUnknownPlayerReference indicates a chat message or event attributed to a nonexistent slot id, game id or name.
	ErrUnknownPlayerReference = errors.New("w3g: unknown player reference")

	// ErrInvalidEventData indicates a malformed custom event payload.
	ErrInvalidEventData = errors.New("w3g: invalid event data")

	// ErrInconsistentObserverState indicates a player with combat stats but no selected servant.
	ErrInconsistentObserverState = errors.New("w3g: inconsistent observer state")
)

// DecodeError is the error returned by the decoder.
// Kind is one of the Err* values above, Offset is the position in the buffer
// being decoded when the failure was detected (-1 if not applicable).
type DecodeError struct {
	Kind   error
	Offset int
	Msg    string
}

func (e *DecodeError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("%v: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%v: %s (offset 0x%x)", e.Kind, e.Msg, e.Offset)
}

// Unwrap returns the error kind.
func (e *DecodeError) Unwrap() error {
	return e.Kind
}

func newError(kind error, offset int, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Kind: kind, Offset: offset, Msg: fmt.Sprintf(format, args...)}
}
