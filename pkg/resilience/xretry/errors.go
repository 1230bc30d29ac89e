package xretry

import "errors"

// Guard errors returned by Retryer.Do, DoWithResult, Do and DoWithData when
// called with an invalid receiver or argument.
var (
	ErrNilRetryer = errors.New("xretry: nil retryer")
	ErrNilContext = errors.New("xretry: nil context")
	ErrNilFunc    = errors.New("xretry: nil function")
)

// RetryableError is implemented by errors that know whether they should be
// retried, letting callers classify errors without a package-specific type
// switch.
type RetryableError interface {
	error
	Retryable() bool
}

// PermanentError marks an error as non-retryable.
type PermanentError struct {
	Err error
}

// NewPermanentError wraps err as permanent.
func NewPermanentError(err error) *PermanentError {
	return &PermanentError{Err: err}
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

func (e *PermanentError) Retryable() bool {
	return false
}

// TemporaryError marks an error as retryable.
type TemporaryError struct {
	Err error
}

// NewTemporaryError wraps err as temporary.
func NewTemporaryError(err error) *TemporaryError {
	return &TemporaryError{Err: err}
}

func (e *TemporaryError) Error() string {
	if e.Err == nil {
		return "temporary error"
	}
	return e.Err.Error()
}

func (e *TemporaryError) Unwrap() error {
	return e.Err
}

func (e *TemporaryError) Retryable() bool {
	return true
}

// IsRetryable classifies err:
//   - nil: not retryable (there is nothing to retry)
//   - implements RetryableError: delegates to Retryable()
//   - anything else: retryable by default
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var re RetryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}

	return true
}

// IsPermanent reports the negation of IsRetryable.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	return !IsRetryable(err)
}
