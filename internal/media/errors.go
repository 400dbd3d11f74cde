package media

import (
	"errors"
	"fmt"

	"github.com/hyperfield/yt-channel-downloader/internal/model"
)

// ErrCancelled is returned by executors and resolvers when the cooperative
// cancellation token stopped the operation. It is not an error condition for
// reporting purposes.
var ErrCancelled = errors.New("cancelled by user")

// Error is a classified failure from a resolver or executor. Retryable marks
// failures the scheduler may retry once with a relaxed selector (format
// unavailable, forbidden); the substring signatures that identify those are
// matched inside the executor adapters, never by consumers.
type Error struct {
	Kind      model.ErrorKind
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a classification
func NewError(kind model.ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// NewRetryable wraps err as a download failure eligible for the one
// relaxed-selector retry
func NewRetryable(err error) *Error {
	return &Error{Kind: model.ErrorKindDownload, Retryable: true, Err: err}
}

// KindOf classifies an arbitrary error for reporting
func KindOf(err error) model.ErrorKind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return model.ErrorKindUnexpected
}

// IsRetryable reports whether the scheduler may retry err with the relaxed
// selector
func IsRetryable(err error) bool {
	var me *Error
	return errors.As(err, &me) && me.Retryable
}
