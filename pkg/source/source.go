// Package source defines the file source model: typed, immutable values
// describing a resolvable location on some backend (local disk, S3, or the
// dx platform), plus the resolver that maps URIs onto backend protocols.
//
// Capabilities are split into small interfaces rather than one deep
// hierarchy: every source satisfies Source, sources whose bytes can be
// streamed additionally satisfy Readable, and sources that live in a
// hierarchical namespace satisfy Addressable. Backends implement exactly
// the capabilities their storage model supports.
package source

import (
	"context"
	"io"
)

// Source is an immutable handle to a resolvable location.
//
// Identity for disambiguation purposes is the Address string. Two distinct
// addresses may still denote the same underlying remote object (for example
// a platform file id with and without an explicit container); deduplicating
// those is the bulk metadata resolver's job, not Source equality.
type Source interface {
	// Address returns the original URI or path this source was resolved from.
	Address() string

	// Name returns the final path segment (file or directory name).
	Name() string

	// Folder returns the logical parent path within the container,
	// always starting with "/" ("/" for container-root entries).
	Folder() string

	// Container identifies the owning bucket, project, or filesystem root.
	Container() string

	// Version is a backend-specific revision token, empty when the backend
	// has no versioning or the source is unversioned.
	Version() string

	// Encoding is the content encoding declared by the backend for the
	// source's bytes, empty when none is declared. The encoding's grammar
	// is not interpreted by this layer.
	Encoding() string

	// IsDirectory reports whether the source denotes a directory
	// (possibly a synthesized one on flat-keyspace backends).
	IsDirectory() bool

	// Size returns the size in bytes. The value is fetched lazily on first
	// call and memoized on the instance; directories return 0.
	Size(ctx context.Context) (int64, error)
}

// Readable is a Source whose content can be streamed.
type Readable interface {
	Source

	// Open returns a reader over the source's bytes.
	// The caller must close the returned reader.
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Addressable is a Source supporting relative resolution, parent
// navigation, and listing.
//
// Invariant: for any relative path p accepted by Resolve or
// ResolveDirectory, Relativize(Resolve(p)) == p.
type Addressable interface {
	Source

	// Resolve returns the file source at the given relative path.
	Resolve(ctx context.Context, rel string) (Source, error)

	// ResolveDirectory returns the directory source at the given relative path.
	ResolveDirectory(ctx context.Context, rel string) (Source, error)

	// Parent returns the immediate parent directory. The second return is
	// false for container-root sources, which have no parent.
	Parent() (Source, bool)

	// Relativize returns the relative path from this source to other.
	// Fails if other is not beneath this source.
	Relativize(other Source) (string, error)

	// Listing enumerates children. With recursive set, the complete subtree
	// is returned in one backend enumeration; the sources for nested
	// folders carry their own cached child listings so visiting them does
	// not re-query the backend.
	Listing(ctx context.Context, recursive bool) ([]Source, error)
}

// Protocol resolves URI strings of one or more schemes into Sources.
//
// Implementations are constructed once, registered with a Resolver, and
// shared by all callers; they must be safe for concurrent use. Pooled
// clients are released by OnExit.
type Protocol interface {
	// Schemes returns the URI schemes this protocol handles.
	// Scheme strings are case-sensitive and compared exactly.
	Schemes() []string

	// Resolve resolves a URI of one of this protocol's schemes into a
	// file source.
	Resolve(ctx context.Context, uri string) (Source, error)

	// ResolveDirectory resolves a URI into a directory source.
	ResolveDirectory(ctx context.Context, uri string) (Source, error)

	// OnExit releases pooled connections and clients. Called exactly once
	// by Resolver.Close.
	OnExit() error
}
