// Package connectors defines the contracts between document sources and the
// indexing pipeline. Individual connectors pull documents from heterogeneous
// systems and emit them in ordered batches; the pipeline consumes those
// batches without knowing anything source-specific.
package connectors

import (
	"fmt"
	"time"
)

// Source identifies the origin system of a document.
type Source string

const (
	SourceWeb         Source = "web"
	SourceFile        Source = "file"
	SourceSlack       Source = "slack"
	SourceGithub      Source = "github"
	SourceGoogleDrive Source = "google_drive"
	SourceConfluence  Source = "confluence"
	SourceNotion      Source = "notion"
)

// InputType describes how a connector produces documents.
type InputType string

const (
	// InputTypeLoadState performs a full resync of everything in the source.
	InputTypeLoadState InputType = "load_state"
	// InputTypePoll fetches changes within a time window.
	InputTypePoll InputType = "poll"
	// InputTypeEvent receives documents pushed by the source.
	InputTypeEvent InputType = "event"
)

// SecondsSinceUnixEpoch is the time unit of poll windows.
type SecondsSinceUnixEpoch = int64

// PollStartOffset is subtracted from a poll window's start to cover
// propagation delay in the source system's change timestamps. Sources like
// Google Drive can take minutes to surface a new modifiedTime.
const PollStartOffset = 10 * time.Minute

// Section is a contiguous piece of a document with its citation link.
type Section struct {
	Link string
	Text string
}

// Document is the unit of ingestion. The ID must be stable across repeated
// polls of the same underlying item, typically the source's canonical URL;
// re-fetching the same item must produce the same ID.
type Document struct {
	ID                 string
	Source             Source
	SemanticIdentifier string
	Metadata           map[string]string
	Sections           []Section

	// UpdatedAt is the source-side modification time, used for
	// time-cutoff retrieval filters. Zero means unknown.
	UpdatedAt time.Time
}

// ShortDescriptor identifies a document in logs without dumping content.
func (d *Document) ShortDescriptor() string {
	return fmt.Sprintf("ID: '%s'; Semantic ID: '%s'", d.ID, d.SemanticIdentifier)
}

// IndexAttemptMetadata is threaded through a single indexing call so the
// pipeline knows whose ownership edge to record.
type IndexAttemptMetadata struct {
	ConnectorID  int64
	CredentialID int64
}

// BatchResult carries one document batch from a connector, or a terminal
// error. A connector closes its channel after the final batch (or after the
// error), making each call an independent, finite, lazy sequence.
type BatchResult struct {
	Batch []Document
	Err   error
}
