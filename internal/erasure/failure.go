// Package erasure implements the backup-then-delete traversal over a user's
// document hierarchy and the failure taxonomy shared by the deletion
// activities.
package erasure

import "fmt"

// FailureKind classifies an activity failure.
type FailureKind string

// Failure kinds.
const (
	// KindInvalidInput marks a request that failed validation. Never
	// retried, never side-effecting.
	KindInvalidInput FailureKind = "INVALID_INPUT"

	// KindQueryFailure marks a paginated or point read that errored.
	KindQueryFailure FailureKind = "QUERY_FAILURE"

	// KindBlobFailure marks a backup write that errored.
	KindBlobFailure FailureKind = "BLOB_FAILURE"

	// KindDeleteFailure marks a document delete that errored.
	KindDeleteFailure FailureKind = "DELETE_FAILURE"

	// KindNotFound is a valid "nothing to do" outcome for lookups,
	// distinct from a query error.
	KindNotFound FailureKind = "NOT_FOUND"

	// KindTransient marks a retryable infrastructure fault (5xx, network).
	KindTransient FailureKind = "TRANSIENT"

	// KindAPICallFailure marks an external API response that could not be
	// interpreted.
	KindAPICallFailure FailureKind = "API_CALL_FAILURE"

	// KindBadAPIRequest marks an external API 4xx response. Not retryable.
	KindBadAPIRequest FailureKind = "BAD_API_REQUEST"

	// KindUnhandled is the catch-all for anything not matching the above.
	KindUnhandled FailureKind = "UNHANDLED"
)

// Failure is a typed activity failure. Expected business outcomes (not
// found, validation) travel as values of this type; infrastructure faults
// carry KindTransient so the caller's retry policy can engage.
type Failure struct {
	Kind   FailureKind
	Reason string

	// Query names the read that failed. Set only on KindQueryFailure.
	Query string
}

func (f *Failure) Error() string {
	if f.Query != "" {
		return fmt.Sprintf("%s: %s (query: %s)", f.Kind, f.Reason, f.Query)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Reason)
}

// Retryable reports whether the failure is a transient infrastructure fault.
func (f *Failure) Retryable() bool {
	return f.Kind == KindTransient
}

// InvalidInputf builds an INVALID_INPUT failure.
func InvalidInputf(format string, args ...any) *Failure {
	return &Failure{Kind: KindInvalidInput, Reason: fmt.Sprintf(format, args...)}
}

// QueryFailure builds a QUERY_FAILURE naming the failed query.
func QueryFailure(query string, err error) *Failure {
	return &Failure{Kind: KindQueryFailure, Reason: err.Error(), Query: query}
}

// BlobFailure builds a BLOB_FAILURE for a backup write error.
func BlobFailure(path string, err error) *Failure {
	return &Failure{Kind: KindBlobFailure, Reason: fmt.Sprintf("writing %s: %v", path, err)}
}

// DeleteFailure builds a DELETE_FAILURE for a document delete error.
func DeleteFailure(entity, id string, err error) *Failure {
	return &Failure{Kind: KindDeleteFailure, Reason: fmt.Sprintf("deleting %s %s: %v", entity, id, err)}
}

// NotFound builds a NOT_FOUND outcome.
func NotFound(what string) *Failure {
	return &Failure{Kind: KindNotFound, Reason: what + " not found"}
}

// Transientf builds a retryable TRANSIENT failure.
func Transientf(format string, args ...any) *Failure {
	return &Failure{Kind: KindTransient, Reason: fmt.Sprintf(format, args...)}
}

// Unhandledf builds an UNHANDLED failure carrying the raw message.
func Unhandledf(format string, args ...any) *Failure {
	return &Failure{Kind: KindUnhandled, Reason: fmt.Sprintf(format, args...)}
}
