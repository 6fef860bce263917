package resourceservice

import "fmt"

// ApiFailure wraps a Kubernetes API error from a read, create, or patch
// call. Delete failures are never wrapped this way — they are swallowed,
// convergent on retry.
type ApiFailure struct {
	Verb string // "read", "create", or "patch"
	Kind string
	Name string
	Err  error
}

func (e *ApiFailure) Error() string {
	return fmt.Sprintf("%s %s %q: %v", e.Verb, e.Kind, e.Name, e.Err)
}

func (e *ApiFailure) Unwrap() error { return e.Err }
