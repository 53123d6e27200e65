// Package platform defines the narrow contracts to the remote dx platform
// (bounded batch describe, cursor-paginated find, content download) and the
// machinery that minimizes round trips against them: a bulk metadata
// resolver with a read-through describe cache, and a paginated query
// engine.
//
// The wire-level REST client implementing these contracts is an external
// collaborator; tests use the in-memory fake in platformtest.
package platform

import (
	"context"
	"io"
	"time"
)

// ObjectID identifies a platform object ("file-..." on the dx platform).
type ObjectID string

// Field names an object attribute a describe call should populate.
type Field string

const (
	FieldName    Field = "name"
	FieldFolder  Field = "folder"
	FieldSize    Field = "size"
	FieldVersion Field = "version"
	FieldCreated Field = "created"
	FieldDetails Field = "details"
)

// AllFields requests every attribute.
var AllFields = []Field{FieldName, FieldFolder, FieldSize, FieldVersion, FieldCreated, FieldDetails}

// Metadata is the described record of one object in one container.
//
// An object known to exist in more than one container yields one Metadata
// per container; the bulk resolver never collapses those arbitrarily.
type Metadata struct {
	ID        ObjectID       `json:"id"`
	Container string         `json:"container"`
	Name      string         `json:"name"`
	Folder    string         `json:"folder"`
	Size      int64          `json:"size"`
	Version   string         `json:"version,omitempty"`
	Created   time.Time      `json:"created,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Cursor is an opaque continuation token returned by a paginated find.
// A cursor is only valid for the constraint set that produced it.
type Cursor struct {
	Token string
}

// FindQuery is the constraint set of a find operation.
type FindQuery struct {
	// Container scopes the query to one project; empty queries across
	// every container the caller can see.
	Container string

	// Folder restricts matches to this folder ("/" for the root).
	// Empty means unrestricted.
	Folder string

	// Recursive extends a folder constraint to the full subtree. The
	// expansion happens inside the query, not as a second pass.
	Recursive bool

	// NameGlob filters matches by shell-style name pattern.
	NameGlob string

	// IDs restricts matches to an explicit id allow-list.
	IDs []ObjectID

	// Names restricts matches to an explicit name allow-list.
	Names []string
}

// DescribeClient is the bounded batch describe collaborator.
type DescribeClient interface {
	// Describe returns metadata for the given ids within one container,
	// populating at least the requested fields. Ids the container does not
	// hold are absent from the result; that is not an error. At most the
	// backend's batch limit of ids may be passed per call.
	Describe(ctx context.Context, container string, ids []ObjectID, fields []Field) (map[ObjectID]Metadata, error)
}

// FindClient is the paginated find collaborator.
type FindClient interface {
	// Find returns one page of matches for the query. A nil cursor starts
	// the query; the returned cursor fetches the next page and is nil on
	// the final page.
	Find(ctx context.Context, q FindQuery, cursor *Cursor) ([]Metadata, *Cursor, error)
}

// Downloader streams object content.
type Downloader interface {
	Download(ctx context.Context, container string, id ObjectID) (io.ReadCloser, error)
}

// Client is the full platform collaborator surface consumed by this
// module. Close releases pooled connections.
type Client interface {
	DescribeClient
	FindClient
	Downloader
	Close() error
}
