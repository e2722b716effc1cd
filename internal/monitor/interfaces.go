package monitor

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches the target page and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Extractor turns one fetch into an Observation.
type Extractor interface {
	Extract(method Method, resp FetchResponse, at time.Time) Observation
}

// Store persists monitor state, cycle history and alert events.
type Store interface {
	LoadLastState(ctx context.Context) (MonitorState, error)
	SaveState(ctx context.Context, state MonitorState) error
	AppendHistory(ctx context.Context, result ConsensusResult) error
	AppendAlert(ctx context.Context, event AlertEvent) error
	RecentHistory(ctx context.Context, limit int) ([]ConsensusResult, error)
	RecentAlerts(ctx context.Context, limit int) ([]AlertEvent, error)
}

// DebugCapturer persists raw content when fetch methods disagree.
type DebugCapturer interface {
	SaveDebugArtifact(ctx context.Context, artifact DebugArtifact) (string, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// StatusReader exposes a consistent snapshot of the monitor state.
type StatusReader interface {
	Snapshot() MonitorState
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces cycle and alert IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}
