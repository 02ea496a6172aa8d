package manager

import (
	"errors"

	"sdserver/internal/checkpoint"
)

// tooBusyError signals queue timeout/overflow for 429 mapping.
type tooBusyError struct{ reason string }

func (e tooBusyError) Error() string { return "too busy: " + e.reason }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var e tooBusyError
	return errors.As(err, &e)
}

// badRequestError is a request that failed validation. Its message is
// returned to the client verbatim.
type badRequestError struct{ msg string }

func (e badRequestError) Error() string { return e.msg }

// ErrBadRequest constructs a badRequestError.
func ErrBadRequest(msg string) error { return badRequestError{msg: msg} }

// IsBadRequest reports whether err should be answered with 400.
func IsBadRequest(err error) bool {
	var e badRequestError
	return errors.As(err, &e) || IsInvalidModelFormat(err) || IsUnknownSampler(err)
}

// IsInvalidModelFormat reports whether the model reference had an unsupported form.
func IsInvalidModelFormat(err error) bool {
	return errors.Is(err, checkpoint.ErrInvalidModelFormat)
}

// unknownSamplerError is only returned in strict mode.
type unknownSamplerError struct{ name string }

func (e unknownSamplerError) Error() string { return "Unknown scheduler: " + e.name }

// IsUnknownSampler reports whether err names a scheduler outside the table.
func IsUnknownSampler(err error) bool {
	var e unknownSamplerError
	return errors.As(err, &e)
}

// internalError wraps any failure during pipeline work. Error returns the
// underlying message unchanged.
type internalError struct{ err error }

func (e internalError) Error() string { return e.err.Error() }
func (e internalError) Unwrap() error { return e.err }

// IsInternal reports whether err is a failure of pipeline work (return 500).
func IsInternal(err error) bool {
	var e internalError
	return errors.As(err, &e)
}
