package driver

import (
	"errors"
	"fmt"
)

// InvalidParameterError reports malformed configuration or a request the
// driver rejects before any remote call. Fatal at setup, never retried.
type InvalidParameterError struct {
	Param  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter value for %s: %s", e.Param, e.Reason)
}

// InvalidAuthError reports that the cluster rejected the configured
// credentials. Fatal at setup.
type InvalidAuthError struct {
	Err error
}

func (e *InvalidAuthError) Error() string {
	return fmt.Sprintf("cluster authentication failed: %v", e.Err)
}

func (e *InvalidAuthError) Unwrap() error { return e.Err }

// NotFoundError reports that a referenced volume or snapshot is absent
// cluster-side. It is propagated to the caller, never retried
// internally: absence of a resource the caller believes exists points at
// catalog/cluster divergence worth surfacing.
type NotFoundError struct {
	Kind string // "volume" or "snapshot"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found on cluster", e.Kind, e.Name)
}

// BackendError is the catch-all for backend failures: failed lifecycle
// states, missing host identity, unreachable discovery service, stale
// fingerprints, unclassified statuses. Retry policy belongs to the
// caller, so the driver never retries these itself. The wrapped error
// preserves the raw cause (including cluster sentinel errors) for
// callers that branch with errors.Is.
type BackendError struct {
	Op     string
	Reason string
	Err    error
}

func (e *BackendError) Error() string {
	msg := fmt.Sprintf("backend error in %s: %s", e.Op, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BackendError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
