package orchestrator

import (
	"context"

	"github.com/askiada/molsim/pkg/wire"
)

// SessionStore persists the pipe data of a run.
type SessionStore interface {
	// Start creates a session for appID and returns its id.
	Start(ctx context.Context, appID, email string) (string, error)
	// Get returns the current state of a session.
	Get(ctx context.Context, sessionID string) (wire.Snapshot, error)
	// Upsert replaces the pipe data of the widgets present in outputs.
	Upsert(ctx context.Context, sessionID string, outputs wire.Outputs) error
}

// ComputeService runs widget jobs.
type ComputeService interface {
	Submit(ctx context.Context, runID, widgetID string, req wire.JobRequest) (wire.JobResponse, error)
	Cancel(ctx context.Context, runID string) error
}

// ArtifactFetcher downloads the content behind a url pipe data.
type ArtifactFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Notifier delivers a notification every time a session may have changed. The channel is closed when the
// source stops, and at the latest when ctx is done.
type Notifier interface {
	Subscribe(ctx context.Context, sessionID string) (<-chan wire.Notification, error)
}
