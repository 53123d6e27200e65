// Package local implements the file access protocol for local disk:
// "file://" URIs and bare filesystem paths. Local sources are readable
// and addressable; directories list via the real filesystem, so no tree
// synthesis is involved.
package local

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fluxfs/fluxfs/pkg/source"
)

// Protocol resolves local paths into file sources.
type Protocol struct{}

// NewProtocol creates the local protocol.
func NewProtocol() *Protocol {
	return &Protocol{}
}

// Schemes implements source.Protocol.
func (p *Protocol) Schemes() []string {
	return []string{"file"}
}

// Resolve implements source.Protocol.
func (p *Protocol) Resolve(ctx context.Context, uri string) (source.Source, error) {
	return p.resolve(ctx, uri, false)
}

// ResolveDirectory implements source.Protocol.
func (p *Protocol) ResolveDirectory(ctx context.Context, uri string) (source.Source, error) {
	return p.resolve(ctx, uri, true)
}

// OnExit implements source.Protocol. The local protocol holds no pooled
// resources.
func (p *Protocol) OnExit() error {
	return nil
}

func (p *Protocol) resolve(ctx context.Context, uri string, directory bool) (source.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := strings.TrimPrefix(uri, "file://")
	if path == "" {
		return nil, source.NewUnresolvable(uri)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, source.NewUnresolvable(uri)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, source.NewUnresolvable(uri)
	}
	if directory && !info.IsDir() {
		return nil, &source.Error{Code: source.ErrUnresolvable, Message: "not a directory", URI: uri}
	}

	f := &File{path: abs, dir: info.IsDir()}
	f.size = info.Size()
	f.sizeKnown = true
	return f, nil
}

// File is a local-disk file source.
type File struct {
	path string
	dir  bool

	mu        sync.Mutex
	size      int64
	sizeKnown bool

	// parent and children are wired by recursive listings so revisiting
	// an already-enumerated subtree does not re-read the disk.
	parent   *File
	children []source.Source
}

var (
	_ source.Readable    = (*File)(nil)
	_ source.Addressable = (*File)(nil)
)

// Address implements source.Source.
func (f *File) Address() string {
	return f.path
}

// Name implements source.Source.
func (f *File) Name() string {
	return filepath.Base(f.path)
}

// Folder implements source.Source.
func (f *File) Folder() string {
	return filepath.Dir(f.path)
}

// Container implements source.Source. Local files have no owning
// container; their identity is the path itself.
func (f *File) Container() string {
	return ""
}

// Version implements source.Source.
func (f *File) Version() string {
	return ""
}

// Encoding implements source.Source. Local files declare no encoding.
func (f *File) Encoding() string {
	return ""
}

// IsDirectory implements source.Source.
func (f *File) IsDirectory() bool {
	return f.dir
}

// Size implements source.Source.
func (f *File) Size(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sizeKnown {
		return f.size, nil
	}
	info, err := os.Stat(f.path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", f.path, err)
	}
	f.size = info.Size()
	f.sizeKnown = true
	return f.size, nil
}

// Open implements source.Readable.
func (f *File) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.dir {
		return nil, fmt.Errorf("cannot open directory %s for reading", f.path)
	}
	return os.Open(f.path)
}

// baseDir is the directory relative resolution happens against: the
// source itself for directories, its folder for files.
func (f *File) baseDir() string {
	if f.dir {
		return f.path
	}
	return filepath.Dir(f.path)
}

// Resolve implements source.Addressable.
func (f *File) Resolve(ctx context.Context, rel string) (source.Source, error) {
	return NewProtocol().Resolve(ctx, filepath.Join(f.baseDir(), rel))
}

// ResolveDirectory implements source.Addressable.
func (f *File) ResolveDirectory(ctx context.Context, rel string) (source.Source, error) {
	return NewProtocol().ResolveDirectory(ctx, filepath.Join(f.baseDir(), rel))
}

// Parent implements source.Addressable.
func (f *File) Parent() (source.Source, bool) {
	if f.parent != nil {
		return f.parent, true
	}
	if f.path == string(filepath.Separator) {
		return nil, false
	}
	return &File{path: filepath.Dir(f.path), dir: true}, true
}

// Relativize implements source.Addressable.
func (f *File) Relativize(other source.Source) (string, error) {
	rel, err := filepath.Rel(f.baseDir(), other.Address())
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is not beneath %s", other.Address(), f.baseDir())
	}
	return rel, nil
}

// Listing implements source.Addressable. A child folder produced by an
// ancestor's recursive listing serves the subtree built then; listing the
// source you resolved yourself always enumerates the disk, so repeated
// calls reflect the latest state.
func (f *File) Listing(ctx context.Context, recursive bool) ([]source.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !f.dir {
		return nil, fmt.Errorf("%s is not a directory", f.path)
	}

	if f.children != nil {
		if !recursive {
			return f.children, nil
		}
		return flatten(f.children), nil
	}

	if !recursive {
		return f.listShallow()
	}
	return f.listRecursive()
}

func (f *File) listShallow() ([]source.Source, error) {
	entries, err := os.ReadDir(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", f.path, err)
	}

	out := make([]source.Source, 0, len(entries))
	for _, e := range entries {
		out = append(out, f.childFromEntry(e))
	}
	return out, nil
}

// listRecursive walks the subtree once and wires every nested directory's
// cached child listing and parent pointer, so descending into the result
// never touches the disk again. The walked source itself stays uncached:
// a later Listing call on it re-enumerates.
func (f *File) listRecursive() ([]source.Source, error) {
	nodes := map[string]*File{f.path: f}
	var out []source.Source

	err := filepath.WalkDir(f.path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == f.path {
			return nil
		}

		parent := nodes[filepath.Dir(path)]
		child := &File{path: path, dir: d.IsDir(), parent: parent}
		if info, err := d.Info(); err == nil {
			child.size = info.Size()
			child.sizeKnown = true
		}
		if d.IsDir() {
			child.children = []source.Source{}
			nodes[path] = child
		}
		if parent != f {
			parent.children = append(parent.children, child)
		}
		out = append(out, child)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", f.path, err)
	}
	return out, nil
}

func (f *File) childFromEntry(e fs.DirEntry) *File {
	child := &File{path: filepath.Join(f.path, e.Name()), dir: e.IsDir(), parent: f}
	if info, err := e.Info(); err == nil {
		child.size = info.Size()
		child.sizeKnown = true
	}
	return child
}

// flatten returns a depth-first expansion of a cached subtree.
func flatten(children []source.Source) []source.Source {
	var out []source.Source
	for _, c := range children {
		out = append(out, c)
		if f, ok := c.(*File); ok && f.dir && f.children != nil {
			out = append(out, flatten(f.children)...)
		}
	}
	return out
}
