// Package backend defines the suggestion backend contract, the error
// taxonomy, and the kind registry, plus the built-in backend variants.
package backend

import (
	"errors"
	"fmt"
)

// NotTrainedError is returned by Suggest when a backend has not been
// trained and has no built-in default. The ensemble treats it as "this
// backend abstains".
type NotTrainedError struct {
	BackendID string
}

func (e *NotTrainedError) Error() string {
	return fmt.Sprintf("backend %q is not trained", e.BackendID)
}

// UnavailableError is returned when a backend's required capability is not
// provisioned (missing runtime, missing model file) or a call timed out.
// Distinguishable from NotTrainedError so callers can tell "skip this
// backend" from "train it first".
type UnavailableError struct {
	BackendID string
	Reason    string
	Err       error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend %q unavailable: %s: %v", e.BackendID, e.Reason, e.Err)
	}
	return fmt.Sprintf("backend %q unavailable: %s", e.BackendID, e.Reason)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// UnsupportedOperationError is returned by Learn when a backend cannot
// perform the requested operation (typically incremental learning). The
// training coordinator downgrades to a full retrain instead of failing.
type UnsupportedOperationError struct {
	BackendID string
	Operation string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("backend %q does not support %s", e.BackendID, e.Operation)
}

// IsRecoverable reports whether err is a backend-local condition the
// ensemble can absorb by excluding the backend from the merge.
func IsRecoverable(err error) bool {
	var nt *NotTrainedError
	var ua *UnavailableError
	return errors.As(err, &nt) || errors.As(err, &ua)
}
