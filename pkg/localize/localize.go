// Package localize assigns local filesystem paths to file sources for
// execution, guaranteeing that distinct sources never collide on disk and
// that repeated requests for the identical source reuse the same path.
//
// The assignment state (key -> path map, disambiguation counter) is scoped
// to one Localizer, which lives for one localization session and is
// discarded afterwards; it is not a cross-process persistent index.
package localize

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/fluxfs/fluxfs/pkg/source"
)

// key is the disambiguation key: (name, container, version) when the
// container is known, (name, address) otherwise. Two sources with
// different keys must never share a local path; two requests with the
// same key always receive the same path.
type key struct {
	name      string
	container string
	version   string
	address   string
}

func keyFor(src source.Source) key {
	if c := src.Container(); c != "" {
		return key{name: src.Name(), container: c, version: src.Version()}
	}
	return key{name: src.Name(), address: src.Address()}
}

// nameContainer tracks which version of a (name, container) pair was seen
// first; later versions are placed in version-named subdirectories.
type nameContainer struct {
	name      string
	container string
}

// Options configures a Localizer.
type Options struct {
	// Root is the directory all assigned paths live under. When empty, a
	// unique scratch directory under the system temp dir is used.
	Root string

	// CreateDirs makes every directory on a returned path before
	// returning it. When unset, path computation is pure and performs no
	// filesystem mutation.
	CreateDirs bool
}

// Localizer computes collision-free local paths for file sources.
//
// All methods are safe for concurrent use; assignment attempts for the
// same key serialize so idempotence holds under concurrent callers.
// Within a single LocalPaths call, assignment follows the input order, so
// repeated runs over the same input produce the same mapping.
type Localizer struct {
	mu         sync.Mutex
	root       string
	createDirs bool

	assigned     map[key]string
	taken        map[string]map[string]bool
	firstVersion map[nameContainer]string
	tiers        []string
	counter      int
}

// New creates a Localizer rooted at opts.Root.
func New(opts Options) *Localizer {
	root := opts.Root
	if root == "" {
		root = filepath.Join(os.TempDir(), "fluxfs-"+uuid.NewString())
	}
	return &Localizer{
		root:         root,
		createDirs:   opts.CreateDirs,
		assigned:     make(map[key]string),
		taken:        make(map[string]map[string]bool),
		firstVersion: make(map[nameContainer]string),
	}
}

// Root returns the session root directory.
func (l *Localizer) Root() string {
	return l.root
}

// LocalPath assigns (or returns the previously assigned) local path for a
// single source. The file is placed directly under the root unless its
// name collides with an earlier assignment, in which case a fresh numbered
// disambiguation subdirectory is allocated. The first file with any given
// name never receives a disambiguation subdirectory.
func (l *Localizer) LocalPath(src source.Source) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.assign(src, false)
}

// LocalPaths assigns local paths for a batch of sources, in input order.
// Batch placements share numbered "common" subdirectories: all first
// occurrences of a name land in the same directory, all second
// occurrences in the next, and so on, so non-colliding names stay
// together while colliding names fan out deterministically.
func (l *Localizer) LocalPaths(srcs []source.Source) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	paths := make([]string, len(srcs))
	for i, src := range srcs {
		p, err := l.assign(src, true)
		if err != nil {
			return nil, err
		}
		paths[i] = p
	}
	return paths, nil
}

// assign computes the path for one source. Caller holds l.mu.
//
// Tie-break order: existing assignment, version subdirectory for
// second-and-later versions of a (name, container) pair, direct placement
// (root, or the lowest non-colliding batch tier), numbered disambiguation
// subdirectory on collision.
func (l *Localizer) assign(src source.Source, batch bool) (string, error) {
	name := src.Name()
	if name == "" {
		return "", source.NewInvalidName(name, "empty")
	}
	if filepath.IsAbs(name) {
		return "", source.NewInvalidName(name, "absolute path")
	}

	k := keyFor(src)
	if p, ok := l.assigned[k]; ok {
		return p, nil
	}

	dir, versioned := l.versionDir(src)
	if !versioned {
		if batch {
			dir = l.tierDir(name)
		} else {
			dir = l.root
		}
	}

	if l.taken[dir][name] {
		dir = l.nextNumberedDir()
	}

	path := filepath.Join(dir, name)
	l.assigned[k] = path
	l.markTaken(dir, name)

	if l.createDirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", err
		}
	}
	return path, nil
}

// versionDir decides whether src must be placed in a version-named
// subdirectory: the first version seen for a (name, container) pair goes
// through normal placement, every later distinct version is routed to
// root/<version>.
func (l *Localizer) versionDir(src source.Source) (string, bool) {
	container := src.Container()
	version := src.Version()
	if container == "" || version == "" {
		return "", false
	}

	nc := nameContainer{name: src.Name(), container: container}
	first, seen := l.firstVersion[nc]
	if !seen {
		l.firstVersion[nc] = version
		return "", false
	}
	if first == version {
		return "", false
	}
	return filepath.Join(l.root, version), true
}

// tierDir returns the lowest batch tier directory not yet holding name,
// allocating a new numbered tier when every existing one collides.
func (l *Localizer) tierDir(name string) string {
	for _, dir := range l.tiers {
		if !l.taken[dir][name] {
			return dir
		}
	}
	dir := l.nextNumberedDir()
	l.tiers = append(l.tiers, dir)
	return dir
}

// nextNumberedDir allocates a fresh numbered subdirectory. The counter is
// shared across tiers and collision fallbacks so no directory is ever
// produced twice by different rules.
func (l *Localizer) nextNumberedDir() string {
	l.counter++
	return filepath.Join(l.root, strconv.Itoa(l.counter))
}

func (l *Localizer) markTaken(dir, name string) {
	names, ok := l.taken[dir]
	if !ok {
		names = make(map[string]bool)
		l.taken[dir] = names
	}
	names[name] = true
}
