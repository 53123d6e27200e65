package dx_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxfs/fluxfs/pkg/platform"
	"github.com/fluxfs/fluxfs/pkg/platform/platformtest"
	"github.com/fluxfs/fluxfs/pkg/source"
	"github.com/fluxfs/fluxfs/pkg/source/dx"
)

func newProtocol(t *testing.T, fake *platformtest.Fake) *dx.Protocol {
	t.Helper()
	proto, err := dx.NewProtocol(fake, nil)
	require.NoError(t, err)
	return proto
}

func TestResolveByIDWithContainer(t *testing.T) {
	fake := platformtest.New()
	id := fake.AddObject("project-a", "/runs", "out.bin", "output")

	proto := newProtocol(t, fake)
	src, err := proto.Resolve(context.Background(), "dx://project-a:"+string(id))
	require.NoError(t, err)

	assert.Equal(t, "out.bin", src.Name())
	assert.Equal(t, "/runs", src.Folder())
	assert.Equal(t, "project-a", src.Container())
	assert.False(t, src.IsDirectory())
	assert.Equal(t, "dx://project-a:"+string(id), src.Address())

	size, err := src.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(6), size)
}

func TestResolveByIDUnknownContainer(t *testing.T) {
	fake := platformtest.New()
	id := fake.AddObject("project-a", "/runs", "out.bin", "output")

	proto := newProtocol(t, fake)
	src, err := proto.Resolve(context.Background(), "dx://"+string(id))
	require.NoError(t, err)
	assert.Equal(t, "project-a", src.Container())
}

func TestResolveByIDAmbiguousContainer(t *testing.T) {
	fake := platformtest.New()
	fake.AddObjectWithID("file-shared", "project-a", "/", "x.txt", "x", "")
	fake.AddObjectWithID("file-shared", "project-b", "/", "x.txt", "x", "")

	proto := newProtocol(t, fake)
	_, err := proto.Resolve(context.Background(), "dx://file-shared")
	require.Error(t, err)
	assert.True(t, source.IsCode(err, source.ErrAmbiguousObject))
}

func TestResolveByIDMissing(t *testing.T) {
	fake := platformtest.New()
	proto := newProtocol(t, fake)

	_, err := proto.Resolve(context.Background(), "dx://project-a:file-missing")
	require.Error(t, err)
	assert.True(t, source.IsCode(err, source.ErrObjectNotFound))
}

func TestResolveByPath(t *testing.T) {
	fake := platformtest.New()
	id := fake.AddObject("project-a", "/runs/2024", "out.bin", "output")

	proto := newProtocol(t, fake)
	src, err := proto.Resolve(context.Background(), "dx://project-a:/runs/2024/out.bin")
	require.NoError(t, err)

	assert.Equal(t, id, src.(*dx.Object).ID())
	assert.Equal(t, "/runs/2024", src.Folder())
}

func TestResolveByPathMissing(t *testing.T) {
	fake := platformtest.New()
	proto := newProtocol(t, fake)

	_, err := proto.Resolve(context.Background(), "dx://project-a:/nope.txt")
	require.Error(t, err)
	assert.True(t, source.IsCode(err, source.ErrObjectNotFound))
}

func TestResolveMalformedURIs(t *testing.T) {
	fake := platformtest.New()
	proto := newProtocol(t, fake)

	for _, uri := range []string{
		"dx://",
		"dx://project-a:",
		"dx://:file-y",
		"dx://project-a:relative/path",
		"dx://file-y/extra",
		"s3://bucket/key",
	} {
		_, err := proto.Resolve(context.Background(), uri)
		require.Error(t, err, uri)
		assert.True(t, source.IsCode(err, source.ErrUnresolvable), uri)
	}
}

func TestResolveDirectoryRejectsIDForm(t *testing.T) {
	fake := platformtest.New()
	proto := newProtocol(t, fake)

	_, err := proto.ResolveDirectory(context.Background(), "dx://project-a:file-y")
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	fake := platformtest.New()
	id := fake.AddObject("project-a", "/", "data.txt", "hello")

	proto := newProtocol(t, fake)
	src, err := proto.Resolve(context.Background(), "dx://project-a:"+string(id))
	require.NoError(t, err)

	r, err := src.(source.Readable).Open(context.Background())
	require.NoError(t, err)
	defer r.Close()

	content, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
}

func TestResolveRelativeAndRelativize(t *testing.T) {
	fake := platformtest.New()
	fake.AddObject("project-a", "/runs/2024", "out.bin", "output")

	proto := newProtocol(t, fake)
	dir, err := proto.ResolveDirectory(context.Background(), "dx://project-a:/runs/")
	require.NoError(t, err)

	child, err := dir.(source.Addressable).Resolve(context.Background(), "2024/out.bin")
	require.NoError(t, err)
	assert.Equal(t, "out.bin", child.Name())

	rel, err := dir.(source.Addressable).Relativize(child)
	require.NoError(t, err)
	assert.Equal(t, "2024/out.bin", rel)
}

func TestParentChain(t *testing.T) {
	fake := platformtest.New()
	id := fake.AddObject("project-a", "/runs/2024", "out.bin", "output")

	proto := newProtocol(t, fake)
	src, err := proto.Resolve(context.Background(), "dx://project-a:"+string(id))
	require.NoError(t, err)

	parent, ok := src.(source.Addressable).Parent()
	require.True(t, ok)
	assert.True(t, parent.IsDirectory())
	assert.Equal(t, "dx://project-a:/runs/2024", parent.Address())

	grand, ok := parent.(source.Addressable).Parent()
	require.True(t, ok)
	assert.Equal(t, "dx://project-a:/runs", grand.Address())

	root, ok := grand.(source.Addressable).Parent()
	require.True(t, ok)
	_, ok = root.(source.Addressable).Parent()
	assert.False(t, ok)
}

func TestShallowListing(t *testing.T) {
	fake := platformtest.New()
	fake.AddObject("project-a", "/runs", "a.txt", "a")
	fake.AddObject("project-a", "/runs", "b.txt", "b")
	fake.AddObject("project-a", "/runs/2024", "out.bin", "output")
	fake.AddObject("project-a", "/other", "c.txt", "c")

	proto := newProtocol(t, fake)
	dir, err := proto.ResolveDirectory(context.Background(), "dx://project-a:/runs/")
	require.NoError(t, err)

	children, err := dir.(source.Addressable).Listing(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, children, 3)

	names := map[string]bool{}
	for _, c := range children {
		names[c.Name()] = c.IsDirectory()
	}
	assert.True(t, names["2024"])
	assert.False(t, names["a.txt"])
	assert.False(t, names["b.txt"])
}

func TestRecursiveListingWiresSubtree(t *testing.T) {
	fake := platformtest.New()
	fake.AddObject("project-a", "/runs", "a.txt", "a")
	fake.AddObject("project-a", "/runs/2024", "out.bin", "output")
	fake.AddObject("project-a", "/runs/2024", "log.txt", "lines")

	proto := newProtocol(t, fake)
	dir, err := proto.ResolveDirectory(context.Background(), "dx://project-a:/runs/")
	require.NoError(t, err)

	all, err := dir.(source.Addressable).Listing(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, all, 4)
	queries := fake.FindCalls()

	var sub source.Source
	for _, s := range all {
		if s.Name() == "2024" {
			sub = s
		}
	}
	require.NotNil(t, sub)

	nested, err := sub.(source.Addressable).Listing(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, nested, 2)
	assert.Equal(t, queries, fake.FindCalls(), "cached subtree should not re-query")

	for _, s := range nested {
		parent, ok := s.(source.Addressable).Parent()
		require.True(t, ok)
		assert.Same(t, sub, parent)
	}
}

func TestRelistingSameSourceSeesNewObjects(t *testing.T) {
	fake := platformtest.New()
	fake.AddObject("project-p", "/data", "one.txt", "1")

	proto := newProtocol(t, fake)
	dir, err := proto.ResolveDirectory(context.Background(), "dx://project-p:/data/")
	require.NoError(t, err)

	all, err := dir.(source.Addressable).Listing(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, all, 1)

	fake.AddObject("project-p", "/data", "two.txt", "2")

	// Listing the same source again re-queries the platform.
	all, err = dir.(source.Addressable).Listing(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	shallow, err := dir.(source.Addressable).Listing(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, shallow, 2)
}

func TestSharedBulkResolverCachesAcrossResolves(t *testing.T) {
	fake := platformtest.New()
	id := fake.AddObject("project-a", "/", "x.txt", "x")

	bulk, err := platform.NewBulkResolver(fake, platform.BulkResolverOptions{})
	require.NoError(t, err)
	proto, err := dx.NewProtocol(fake, bulk)
	require.NoError(t, err)

	_, err = proto.Resolve(context.Background(), "dx://project-a:"+string(id))
	require.NoError(t, err)
	calls := fake.DescribeCalls()

	_, err = proto.Resolve(context.Background(), "dx://project-a:"+string(id))
	require.NoError(t, err)
	assert.Equal(t, calls, fake.DescribeCalls())
}

func TestOnExitClosesClient(t *testing.T) {
	fake := platformtest.New()
	proto := newProtocol(t, fake)

	require.NoError(t, proto.OnExit())
	assert.True(t, fake.Closed())
}
