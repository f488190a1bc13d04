package queue

import (
	"context"
	"encoding/json"
	"errors"
)

// Job handles one message type.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Type returns the message type the job consumes.
	Type() string

	Handle(ctx context.Context, payload json.RawMessage) error
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; the message goes straight to
// the dead letter list.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
