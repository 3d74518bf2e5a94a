package orchestrator

import (
	"github.com/pkg/errors"
)

var (
	// ErrSubmission reports a failed call that was meant to change remote state: session start, session
	// upsert, job submission or cancellation.
	ErrSubmission = errors.New("submission failed")
	// ErrFetch reports a failed read of a session or an artifact.
	ErrFetch = errors.New("fetch failed")
	// ErrNoSession reports an operation that needs a session before Start or Load.
	ErrNoSession = errors.New("no session")
)

// RemoteError is a failed remote call classified as ErrSubmission or ErrFetch.
type RemoteError struct {
	Kind error
	Op   string
	Err  error
}

func (e *RemoteError) Error() string {
	return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

// Is matches the kind of the error.
func (e *RemoteError) Is(target error) bool {
	return target == e.Kind
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func submissionError(op string, err error) error {
	return &RemoteError{Kind: ErrSubmission, Op: op, Err: err}
}

func fetchError(op string, err error) error {
	return &RemoteError{Kind: ErrFetch, Op: op, Err: err}
}
