package connectors

import "context"

// BaseConnector is implemented by every connector regardless of input type.
type BaseConnector interface {
	// LoadCredentials validates and applies credentials before any fetch.
	// If the source rotated a token during validation, the updated
	// credential map is returned so the caller can persist it; nil means
	// nothing changed.
	LoadCredentials(credentials map[string]any) (map[string]any, error)
}

// LoadConnector resynchronizes the complete current state of a source.
// Batches arrive on the returned channel as they are fetched; a failure is
// delivered as a BatchResult with Err set, after which the channel closes.
type LoadConnector interface {
	BaseConnector
	LoadFromState(ctx context.Context) <-chan BatchResult
}

// PollConnector fetches documents changed within [start, end]. Callers
// widen the window by PollStartOffset to absorb source-side timestamp lag;
// the resulting overlap re-yields some documents, which indexing tolerates
// because it is idempotent.
type PollConnector interface {
	BaseConnector
	PollSource(ctx context.Context, start, end SecondsSinceUnixEpoch) <-chan BatchResult
}

// EventConnector surfaces documents pushed by the source. Listen returns
// immediately; batches arrive until ctx is cancelled.
type EventConnector interface {
	BaseConnector
	Listen(ctx context.Context) (<-chan BatchResult, error)
}
