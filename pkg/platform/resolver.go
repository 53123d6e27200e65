package platform

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/fluxfs/fluxfs/internal/logger"
	"github.com/fluxfs/fluxfs/pkg/source"
)

// DefaultBatchLimit is the per-call describe item cap used when the
// options do not set one. The real backend bound is backend-defined (low
// hundreds); this stays under it.
const DefaultBatchLimit = 200

// Ref is one input reference to the bulk resolver. Container may be empty
// (ownership unknown); ExpectedName, when set, asserts what the caller
// believes the object is named.
type Ref struct {
	ID           ObjectID
	Container    string
	ExpectedName string
}

// Described pairs an input reference with one resolved metadata record.
// A container-unknown reference known to exist in several containers
// produces one Described per container.
type Described struct {
	Ref      Ref
	Metadata Metadata
}

// DescribeOptions controls a DescribeAll call.
type DescribeOptions struct {
	// Validate makes the call fail with an object-not-found error
	// enumerating every missing id, instead of silently dropping them.
	Validate bool

	// Fields selects the attributes to describe; nil means AllFields.
	Fields []Field
}

// BatchError reports per-container describe failures. Results for
// containers that succeeded are still returned alongside it; callers may
// treat a partial result as success for those containers.
type BatchError struct {
	// Failures maps container id to the error its batch produced.
	Failures map[string]error
}

func (e *BatchError) Error() string {
	containers := make([]string, 0, len(e.Failures))
	for c := range e.Failures {
		containers = append(containers, c)
	}
	sort.Strings(containers)

	var b strings.Builder
	b.WriteString("describe failed for ")
	b.WriteString(strings.Join(containers, ", "))
	for _, c := range containers {
		b.WriteString("; ")
		b.WriteString(c)
		b.WriteString(": ")
		b.WriteString(e.Failures[c].Error())
	}
	return b.String()
}

// BulkResolverOptions configures a BulkResolver.
type BulkResolverOptions struct {
	// Cache is the describe cache; nil selects a fresh in-memory cache.
	Cache DescribeCache

	// BatchLimit caps ids per describe call; 0 selects DefaultBatchLimit.
	BatchLimit int

	// Metrics receives instrumentation; nil selects no-op.
	Metrics Metrics
}

// BulkResolver resolves many remote file references to described records
// with a bounded number of round trips: one describe call per container
// per BatchLimit items, plus one find call per BatchLimit
// container-unknown ids, with everything already cached skipped entirely.
type BulkResolver struct {
	client     Client
	cache      DescribeCache
	batchLimit int
	metrics    Metrics

	// mu guards byID, the container associations learned for each id.
	// Needed to answer container-unknown lookups from cache alone.
	mu   sync.RWMutex
	byID map[ObjectID][]string
}

// NewBulkResolver creates a resolver over the given platform client.
func NewBulkResolver(client Client, opts BulkResolverOptions) (*BulkResolver, error) {
	if client == nil {
		return nil, fmt.Errorf("platform client is required")
	}
	c := opts.Cache
	if c == nil {
		c = NewMemoryCache()
	}
	limit := opts.BatchLimit
	if limit <= 0 {
		limit = DefaultBatchLimit
	}
	m := opts.Metrics
	if m == nil {
		m = noopMetrics{}
	}
	return &BulkResolver{
		client:     client,
		cache:      c,
		batchLimit: limit,
		metrics:    m,
		byID:       make(map[ObjectID][]string),
	}, nil
}

// Cache exposes the resolver's describe cache.
func (r *BulkResolver) Cache() DescribeCache {
	return r.cache
}

// Query starts a paginated find wired to the resolver's metrics.
func (r *BulkResolver) Query(q FindQuery) *Iterator {
	return newIterator(r.client, q, r.metrics)
}

// DescribeAll resolves the given references, minimizing remote calls.
//
// Input references may be duplicated, may lack an owning container, and
// may be known to exist in more than one container. The result holds one
// Described per original input, in input order, expanded to multiple
// records when a container-unknown reference resolves in several
// containers.
//
// Per-container batch failures do not corrupt other containers' results:
// the successful records are returned together with a *BatchError naming
// each failed container. With opts.Validate, any expected id absent from
// the backend fails the call with an error enumerating every missing id.
func (r *BulkResolver) DescribeAll(ctx context.Context, refs []Ref, opts DescribeOptions) ([]Described, error) {
	fields := opts.Fields
	if fields == nil {
		fields = AllFields
	}

	known, unknown := r.partition(refs)

	batchErr := &BatchError{Failures: make(map[string]error)}
	r.describeKnown(ctx, known, fields, batchErr)
	if err := r.resolveUnknown(ctx, unknown, fields); err != nil {
		return nil, err
	}

	if opts.Validate {
		if err := r.checkMissing(known, unknown, batchErr); err != nil {
			return nil, err
		}
	}
	if err := r.checkExpectedNames(refs); err != nil {
		return nil, err
	}

	out := r.project(refs)
	if len(batchErr.Failures) > 0 {
		return out, batchErr
	}
	return out, nil
}

// partition deduplicates the inputs by identity and splits them into
// container-known groups and the ordered container-unknown id list.
func (r *BulkResolver) partition(refs []Ref) (map[string][]ObjectID, []ObjectID) {
	type identity struct {
		id        ObjectID
		container string
	}
	seen := make(map[identity]bool)

	known := make(map[string][]ObjectID)
	var unknown []ObjectID

	for _, ref := range refs {
		ident := identity{id: ref.ID, container: ref.Container}
		if seen[ident] {
			continue
		}
		seen[ident] = true

		if ref.Container != "" {
			known[ref.Container] = append(known[ref.Container], ref.ID)
		} else {
			unknown = append(unknown, ref.ID)
		}
	}
	return known, unknown
}

// describeKnown issues one describe call per container per batchLimit
// not-yet-cached ids. A container's failure is recorded in batchErr and
// does not affect the other containers.
func (r *BulkResolver) describeKnown(ctx context.Context, known map[string][]ObjectID, fields []Field, batchErr *BatchError) {
	containers := make([]string, 0, len(known))
	for c := range known {
		containers = append(containers, c)
	}
	sort.Strings(containers)

	for _, container := range containers {
		var toFetch []ObjectID
		for _, id := range known[container] {
			if r.cache.Described(id, container) {
				r.metrics.CacheHit()
				continue
			}
			r.metrics.CacheMiss()
			toFetch = append(toFetch, id)
		}

		for start := 0; start < len(toFetch); start += r.batchLimit {
			end := start + r.batchLimit
			if end > len(toFetch) {
				end = len(toFetch)
			}
			chunk := toFetch[start:end]

			described, err := r.client.Describe(ctx, container, chunk, fields)
			if err != nil {
				logger.Warn("describe batch failed for container %s (%d ids): %v", container, len(chunk), err)
				batchErr.Failures[container] = err
				break
			}
			r.metrics.DescribeBatch(container, len(chunk))

			for id, md := range described {
				r.put(id, container, md)
			}
		}
	}
}

// resolveUnknown looks up container-unknown ids through the find
// collaborator, retaining every container association each id resolves
// to. Ids whose associations are already known are answered from cache.
func (r *BulkResolver) resolveUnknown(ctx context.Context, unknown []ObjectID, fields []Field) error {
	var toFind []ObjectID
	for _, id := range unknown {
		if len(r.associations(id)) > 0 {
			r.metrics.CacheHit()
			continue
		}
		r.metrics.CacheMiss()
		toFind = append(toFind, id)
	}

	for start := 0; start < len(toFind); start += r.batchLimit {
		end := start + r.batchLimit
		if end > len(toFind) {
			end = len(toFind)
		}
		chunk := toFind[start:end]

		matches, err := r.Query(FindQuery{IDs: chunk}).All(ctx)
		if err != nil {
			return source.NewTransport("", err)
		}
		for _, md := range matches {
			r.put(md.ID, md.Container, md)
		}
	}
	return nil
}

// checkMissing enumerates every expected id that ended up undescribed.
// Ids whose container batch failed outright are reported through the
// BatchError instead, not as missing objects.
func (r *BulkResolver) checkMissing(known map[string][]ObjectID, unknown []ObjectID, batchErr *BatchError) error {
	var missing []string
	var container string

	containers := make([]string, 0, len(known))
	for c := range known {
		containers = append(containers, c)
	}
	sort.Strings(containers)

	for _, c := range containers {
		if _, failed := batchErr.Failures[c]; failed {
			continue
		}
		for _, id := range known[c] {
			if !r.cache.Described(id, c) {
				missing = append(missing, string(id))
				container = c
			}
		}
	}
	for _, id := range unknown {
		if len(r.associations(id)) == 0 {
			missing = append(missing, string(id))
		}
	}

	if len(missing) > 0 {
		if len(known) != 1 {
			container = ""
		}
		return source.NewObjectNotFound(container, missing...)
	}
	return nil
}

// checkExpectedNames verifies caller-asserted names on container-unknown
// references against the backend's actual names. A mismatch is an
// ambiguity, not a silent preference for either value.
func (r *BulkResolver) checkExpectedNames(refs []Ref) error {
	for _, ref := range refs {
		if ref.Container != "" || ref.ExpectedName == "" {
			continue
		}
		for _, c := range r.associations(ref.ID) {
			md, ok := r.cache.Get(ref.ID, c)
			if !ok {
				continue
			}
			if md.Name != ref.ExpectedName {
				return source.NewAmbiguousObject(string(ref.ID),
					fmt.Sprintf("expected name %q but backend reports %q", ref.ExpectedName, md.Name))
			}
		}
	}
	return nil
}

// project assembles one output per original input reference, in input
// order, expanding container-unknown references to every container they
// resolved in.
func (r *BulkResolver) project(refs []Ref) []Described {
	var out []Described
	for _, ref := range refs {
		if ref.Container != "" {
			if md, ok := r.cache.Get(ref.ID, ref.Container); ok {
				out = append(out, Described{Ref: ref, Metadata: md})
			}
			continue
		}
		for _, c := range r.associations(ref.ID) {
			if md, ok := r.cache.Get(ref.ID, c); ok {
				out = append(out, Described{Ref: ref, Metadata: md})
			}
		}
	}
	return out
}

// put stores one described record and remembers the id's container
// association for container-unknown lookups.
func (r *BulkResolver) put(id ObjectID, container string, md Metadata) {
	r.cache.Put(id, container, md)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.byID[id] {
		if c == container {
			return
		}
	}
	r.byID[id] = append(r.byID[id], container)
	sort.Strings(r.byID[id])
}

// associations returns the sorted container associations known for id.
// The result is a copy: callers iterate it outside the lock while put
// may grow and re-sort the backing slice.
func (r *BulkResolver) associations(id ObjectID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.byID[id]...)
}
