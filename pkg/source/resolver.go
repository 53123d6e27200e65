package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fluxfs/fluxfs/internal/logger"
)

// Scheme extracts the URI scheme from a string, returning "" for bare
// paths. Only the "scheme://" form is recognized; a Windows-style drive
// letter or a relative path with colons does not count as a scheme.
func Scheme(uri string) string {
	idx := strings.Index(uri, "://")
	if idx <= 0 {
		return ""
	}
	return uri[:idx]
}

// Resolver maps URI schemes to registered protocols and falls back to a
// configured local search path for scheme-less inputs.
//
// The resolver is constructed once and passed by reference to consumers;
// registration and lookup are safe for concurrent use. Registering a
// protocol after URIs of its scheme failed to resolve does not
// retroactively fix already-created sources.
type Resolver struct {
	mu         sync.RWMutex
	protocols  map[string]Protocol
	order      []Protocol
	searchPath []string
	closeOnce  sync.Once
	closeErr   error
}

// NewResolver creates a resolver with the given local search path. The
// search path is consulted, in order, for scheme-less inputs that do not
// exist as given; it may be empty.
func NewResolver(searchPath []string) *Resolver {
	return &Resolver{
		protocols:  make(map[string]Protocol),
		searchPath: searchPath,
	}
}

// Register adds a protocol under each of its schemes.
// Returns an error if any scheme is already taken: exactly one protocol
// instance is active per scheme.
func (r *Resolver) Register(p Protocol) error {
	if p == nil {
		return fmt.Errorf("cannot register nil protocol")
	}
	schemes := p.Schemes()
	if len(schemes) == 0 {
		return fmt.Errorf("protocol declares no schemes")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range schemes {
		if s == "" {
			return fmt.Errorf("protocol declares an empty scheme")
		}
		if _, exists := r.protocols[s]; exists {
			return fmt.Errorf("scheme %q already registered", s)
		}
	}
	for _, s := range schemes {
		r.protocols[s] = p
	}
	r.order = append(r.order, p)
	return nil
}

// Protocol returns the protocol registered for the given scheme.
func (r *Resolver) Protocol(scheme string) (Protocol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.protocols[scheme]
	return p, ok
}

// Resolve turns a URI or bare path into a file source.
//
// Inputs with a registered scheme are delegated to that scheme's protocol.
// Scheme-less inputs are treated as local paths: tried as given, then
// against each search path directory in order, returning the first path
// that exists. Anything else fails with an ErrUnresolvable error carrying
// the input.
func (r *Resolver) Resolve(ctx context.Context, uriOrPath string) (Source, error) {
	return r.resolve(ctx, uriOrPath, false)
}

// ResolveDirectory is Resolve for locations known to be directories.
func (r *Resolver) ResolveDirectory(ctx context.Context, uriOrPath string) (Source, error) {
	return r.resolve(ctx, uriOrPath, true)
}

func (r *Resolver) resolve(ctx context.Context, uriOrPath string, directory bool) (Source, error) {
	scheme := Scheme(uriOrPath)
	if scheme != "" {
		p, ok := r.Protocol(scheme)
		if !ok {
			return nil, NewUnresolvable(uriOrPath)
		}
		if directory {
			return p.ResolveDirectory(ctx, uriOrPath)
		}
		return p.Resolve(ctx, uriOrPath)
	}

	local, ok := r.Protocol("file")
	if !ok {
		return nil, NewUnresolvable(uriOrPath)
	}

	for _, candidate := range r.localCandidates(uriOrPath) {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		if directory {
			return local.ResolveDirectory(ctx, candidate)
		}
		return local.Resolve(ctx, candidate)
	}
	return nil, NewUnresolvable(uriOrPath)
}

// localCandidates returns the local paths to try for a scheme-less input:
// the input itself, then each search path directory joined with it.
func (r *Resolver) localCandidates(path string) []string {
	candidates := []string{path}
	if filepath.IsAbs(path) {
		return candidates
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, dir := range r.searchPath {
		candidates = append(candidates, filepath.Join(dir, path))
	}
	return candidates
}

// Close invokes every registered protocol's OnExit exactly once, in
// registration order. A failing cleanup does not prevent the remaining
// protocols from running; the first failure is returned.
func (r *Resolver) Close() error {
	r.closeOnce.Do(func() {
		r.mu.RLock()
		order := make([]Protocol, len(r.order))
		copy(order, r.order)
		r.mu.RUnlock()

		for _, p := range order {
			if err := p.OnExit(); err != nil {
				logger.Warn("protocol cleanup failed for schemes %v: %v", p.Schemes(), err)
				if r.closeErr == nil {
					r.closeErr = err
				}
			}
		}
	})
	return r.closeErr
}
