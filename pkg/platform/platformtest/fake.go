// Package platformtest provides an in-memory fake of the platform
// collaborators for tests: bounded batch describe, cursor-paginated find
// with real page limits, and content download.
//
// The fake enforces the same contract edges as the real backend: describe
// calls over the batch limit fail, and a cursor is rejected once the
// constraint set that produced it changes.
package platformtest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/fluxfs/fluxfs/pkg/platform"
)

// Fake is an in-memory platform.Client.
type Fake struct {
	mu sync.Mutex

	// containers maps container id -> object id -> metadata.
	containers map[string]map[platform.ObjectID]platform.Metadata

	// content holds object bytes keyed by (container, id).
	content map[string][]byte

	// BatchLimit caps ids per Describe call (0 = unlimited).
	BatchLimit int

	// PageLimit caps matches per Find page (0 = everything in one page).
	PageLimit int

	describeErrs map[string]error

	describeCalls int
	findCalls     int
	closed        bool
}

// New creates an empty fake platform.
func New() *Fake {
	return &Fake{
		containers:   make(map[string]map[platform.ObjectID]platform.Metadata),
		content:      make(map[string][]byte),
		describeErrs: make(map[string]error),
	}
}

// FailDescribe makes every Describe call against the given container
// return err, simulating a transport or authorization failure scoped to
// one container.
func (f *Fake) FailDescribe(container string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.describeErrs[container] = err
}

// AddObject registers an object and returns its generated id.
func (f *Fake) AddObject(container, folder, name, content string) platform.ObjectID {
	id := platform.ObjectID("file-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24])
	f.AddObjectWithID(id, container, folder, name, content, "")
	return id
}

// AddObjectWithID registers an object under a caller-chosen id, allowing
// the same id to exist in more than one container.
func (f *Fake) AddObjectWithID(id platform.ObjectID, container, folder, name, content, version string) {
	if folder == "" {
		folder = "/"
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	objects, ok := f.containers[container]
	if !ok {
		objects = make(map[platform.ObjectID]platform.Metadata)
		f.containers[container] = objects
	}
	objects[id] = platform.Metadata{
		ID:        id,
		Container: container,
		Name:      name,
		Folder:    folder,
		Size:      int64(len(content)),
		Version:   version,
	}
	f.content[container+"/"+string(id)] = []byte(content)
}

// RemoveObject deletes an object from one container.
func (f *Fake) RemoveObject(container string, id platform.ObjectID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if objects, ok := f.containers[container]; ok {
		delete(objects, id)
	}
	delete(f.content, container+"/"+string(id))
}

// DescribeCalls returns how many Describe calls have been issued.
func (f *Fake) DescribeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.describeCalls
}

// FindCalls returns how many Find calls (pages) have been issued.
func (f *Fake) FindCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findCalls
}

// Closed reports whether Close has been called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Describe implements platform.DescribeClient.
func (f *Fake) Describe(ctx context.Context, container string, ids []platform.ObjectID, fields []platform.Field) (map[platform.ObjectID]platform.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.describeCalls++

	if f.BatchLimit > 0 && len(ids) > f.BatchLimit {
		return nil, fmt.Errorf("describe called with %d ids, limit is %d", len(ids), f.BatchLimit)
	}
	if err, ok := f.describeErrs[container]; ok {
		return nil, err
	}

	objects := f.containers[container]
	result := make(map[platform.ObjectID]platform.Metadata)
	for _, id := range ids {
		if md, ok := objects[id]; ok {
			result[id] = md
		}
	}
	return result, nil
}

// Find implements platform.FindClient.
func (f *Fake) Find(ctx context.Context, q platform.FindQuery, cursor *platform.Cursor) ([]platform.Metadata, *platform.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls++

	matches := f.matchLocked(q)

	offset := 0
	fingerprint := queryFingerprint(q)
	if cursor != nil {
		fp, off, err := parseCursor(cursor.Token)
		if err != nil {
			return nil, nil, err
		}
		if fp != fingerprint {
			return nil, nil, fmt.Errorf("cursor does not belong to this constraint set")
		}
		offset = off
	}

	if offset >= len(matches) {
		return nil, nil, nil
	}

	end := len(matches)
	if f.PageLimit > 0 && offset+f.PageLimit < end {
		end = offset + f.PageLimit
	}

	page := matches[offset:end]
	if end == len(matches) {
		return page, nil, nil
	}
	return page, &platform.Cursor{Token: fingerprint + ":" + strconv.Itoa(end)}, nil
}

// matchLocked evaluates the constraint set over every container, in a
// deterministic order. Caller holds f.mu.
func (f *Fake) matchLocked(q platform.FindQuery) []platform.Metadata {
	var matches []platform.Metadata

	for container, objects := range f.containers {
		if q.Container != "" && q.Container != container {
			continue
		}
		for _, md := range objects {
			if !matchFolder(q, md.Folder) {
				continue
			}
			if q.NameGlob != "" {
				ok, err := path.Match(q.NameGlob, md.Name)
				if err != nil || !ok {
					continue
				}
			}
			if len(q.IDs) > 0 && !containsID(q.IDs, md.ID) {
				continue
			}
			if len(q.Names) > 0 && !containsString(q.Names, md.Name) {
				continue
			}
			matches = append(matches, md)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Container != b.Container {
			return a.Container < b.Container
		}
		if a.Folder != b.Folder {
			return a.Folder < b.Folder
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return matches
}

// Download implements platform.Downloader.
func (f *Fake) Download(ctx context.Context, container string, id platform.ObjectID) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.content[container+"/"+string(id)]
	if !ok {
		return nil, fmt.Errorf("object %s not found in %s", id, container)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Close implements platform.Client.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func matchFolder(q platform.FindQuery, folder string) bool {
	if q.Folder == "" {
		return true
	}
	if folder == q.Folder {
		return true
	}
	if !q.Recursive {
		return false
	}
	prefix := q.Folder
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return strings.HasPrefix(folder, prefix)
}

func containsID(ids []platform.ObjectID, id platform.ObjectID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func containsString(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// queryFingerprint hashes the constraint set so cursors can be tied to
// the query that produced them.
func queryFingerprint(q platform.FindQuery) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%t|%s|%v|%v", q.Container, q.Folder, q.Recursive, q.NameGlob, q.IDs, q.Names)
	return hex.EncodeToString(h.Sum(nil))[:12]
}

func parseCursor(token string) (fingerprint string, offset int, err error) {
	idx := strings.LastIndexByte(token, ':')
	if idx < 0 {
		return "", 0, fmt.Errorf("malformed cursor %q", token)
	}
	offset, err = strconv.Atoi(token[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("malformed cursor %q", token)
	}
	return token[:idx], offset, nil
}
