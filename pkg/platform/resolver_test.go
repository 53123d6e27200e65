package platform_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxfs/fluxfs/pkg/platform"
	"github.com/fluxfs/fluxfs/pkg/platform/platformtest"
	"github.com/fluxfs/fluxfs/pkg/source"
)

func newResolver(t *testing.T, fake *platformtest.Fake, batchLimit int) *platform.BulkResolver {
	t.Helper()
	r, err := platform.NewBulkResolver(fake, platform.BulkResolverOptions{BatchLimit: batchLimit})
	require.NoError(t, err)
	return r
}

func TestDescribeAll_BatchesPerContainer(t *testing.T) {
	fake := platformtest.New()
	fake.BatchLimit = 2

	var refs []platform.Ref
	for i := 0; i < 5; i++ {
		id := fake.AddObject("project-a", "/", fmt.Sprintf("f%d.txt", i), "x")
		refs = append(refs, platform.Ref{ID: id, Container: "project-a"})
	}

	r := newResolver(t, fake, 2)
	out, err := r.DescribeAll(context.Background(), refs, platform.DescribeOptions{})
	require.NoError(t, err)
	require.Len(t, out, 5)

	// 5 items at 2 per call = 3 round trips.
	assert.Equal(t, 3, fake.DescribeCalls())
}

func TestDescribeAll_SecondCallServedFromCache(t *testing.T) {
	fake := platformtest.New()
	id := fake.AddObject("project-a", "/data", "reads.bam", "content")
	refs := []platform.Ref{{ID: id, Container: "project-a"}}

	r := newResolver(t, fake, 0)

	first, err := r.DescribeAll(context.Background(), refs, platform.DescribeOptions{})
	require.NoError(t, err)
	calls := fake.DescribeCalls()

	second, err := r.DescribeAll(context.Background(), refs, platform.DescribeOptions{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, calls, fake.DescribeCalls(), "second call must not hit the backend")
	assert.True(t, r.Cache().Described(id, "project-a"))
}

func TestDescribeAll_DuplicateInputsProjectedWithoutRequery(t *testing.T) {
	fake := platformtest.New()
	id := fake.AddObject("project-a", "/", "dup.txt", "x")
	refs := []platform.Ref{
		{ID: id, Container: "project-a"},
		{ID: id, Container: "project-a"},
		{ID: id, Container: "project-a"},
	}

	r := newResolver(t, fake, 0)
	out, err := r.DescribeAll(context.Background(), refs, platform.DescribeOptions{})
	require.NoError(t, err)

	// One result per original input, one backend call in total.
	require.Len(t, out, 3)
	assert.Equal(t, 1, fake.DescribeCalls())
}

func TestDescribeAll_ContainerUnknownResolvesAllAssociations(t *testing.T) {
	fake := platformtest.New()
	id := platform.ObjectID("file-shared000000000000000000")
	fake.AddObjectWithID(id, "project-a", "/", "shared.txt", "x", "")
	fake.AddObjectWithID(id, "project-b", "/", "shared.txt", "x", "")

	r := newResolver(t, fake, 0)
	out, err := r.DescribeAll(context.Background(),
		[]platform.Ref{{ID: id}}, platform.DescribeOptions{})
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, "project-a", out[0].Metadata.Container)
	assert.Equal(t, "project-b", out[1].Metadata.Container)
}

func TestDescribeAll_ConcurrentUnknownContainerLookups(t *testing.T) {
	fake := platformtest.New()
	id := platform.ObjectID("file-shared000000000000000000")
	fake.AddObjectWithID(id, "project-0", "/", "shared.txt", "x", "")

	r := newResolver(t, fake, 0)

	// Container-unknown lookups iterate the id's known associations while
	// describes against new containers grow them. Run both concurrently so
	// the race detector catches any sharing of the association slice.
	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				container := fmt.Sprintf("project-%d", i)
				fake.AddObjectWithID(id, container, "/", "shared.txt", "x", "")
				_, err := r.DescribeAll(context.Background(),
					[]platform.Ref{{ID: id, Container: container}}, platform.DescribeOptions{})
				assert.NoError(t, err)
				return
			}
			out, err := r.DescribeAll(context.Background(),
				[]platform.Ref{{ID: id}}, platform.DescribeOptions{})
			assert.NoError(t, err)
			assert.NotEmpty(t, out)
		}(i)
	}
	wg.Wait()
}

func TestDescribeAll_ValidateEnumeratesEveryMissingID(t *testing.T) {
	fake := platformtest.New()
	known := fake.AddObject("project-a", "/", "here.txt", "x")
	refs := []platform.Ref{
		{ID: known, Container: "project-a"},
		{ID: "file-missing1", Container: "project-a"},
		{ID: "file-missing2", Container: "project-a"},
	}

	r := newResolver(t, fake, 0)
	_, err := r.DescribeAll(context.Background(), refs, platform.DescribeOptions{Validate: true})
	require.Error(t, err)
	assert.True(t, source.IsCode(err, source.ErrObjectNotFound))

	var se *source.Error
	require.ErrorAs(t, err, &se)
	assert.ElementsMatch(t, []string{"file-missing1", "file-missing2"}, se.IDs)
}

func TestDescribeAll_WithoutValidateDropsMissing(t *testing.T) {
	fake := platformtest.New()
	known := fake.AddObject("project-a", "/", "here.txt", "x")
	refs := []platform.Ref{
		{ID: known, Container: "project-a"},
		{ID: "file-missing1", Container: "project-a"},
	}

	r := newResolver(t, fake, 0)
	out, err := r.DescribeAll(context.Background(), refs, platform.DescribeOptions{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, known, out[0].Metadata.ID)
}

func TestDescribeAll_ExpectedNameMismatchIsAmbiguous(t *testing.T) {
	fake := platformtest.New()
	id := fake.AddObject("project-a", "/", "actual.txt", "x")

	r := newResolver(t, fake, 0)
	_, err := r.DescribeAll(context.Background(),
		[]platform.Ref{{ID: id, ExpectedName: "asserted.txt"}},
		platform.DescribeOptions{})
	require.Error(t, err)
	assert.True(t, source.IsCode(err, source.ErrAmbiguousObject))
}

func TestDescribeAll_ExpectedNameMatchPasses(t *testing.T) {
	fake := platformtest.New()
	id := fake.AddObject("project-a", "/", "actual.txt", "x")

	r := newResolver(t, fake, 0)
	out, err := r.DescribeAll(context.Background(),
		[]platform.Ref{{ID: id, ExpectedName: "actual.txt"}},
		platform.DescribeOptions{})
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestDescribeAll_PerContainerFailureIsolation(t *testing.T) {
	fake := platformtest.New()
	okID := fake.AddObject("project-ok", "/", "fine.txt", "x")
	badID := fake.AddObject("project-bad", "/", "broken.txt", "x")
	fake.FailDescribe("project-bad", errors.New("backend down"))

	r := newResolver(t, fake, 0)
	out, err := r.DescribeAll(context.Background(), []platform.Ref{
		{ID: okID, Container: "project-ok"},
		{ID: badID, Container: "project-bad"},
	}, platform.DescribeOptions{})

	// The healthy container's results survive alongside the failure report.
	require.Len(t, out, 1)
	assert.Equal(t, okID, out[0].Metadata.ID)

	var batchErr *platform.BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Contains(t, batchErr.Failures, "project-bad")
	assert.NotContains(t, batchErr.Failures, "project-ok")
}

func TestDescribeAll_ResultOrderFollowsInput(t *testing.T) {
	fake := platformtest.New()
	a := fake.AddObject("project-a", "/", "a.txt", "x")
	b := fake.AddObject("project-b", "/", "b.txt", "x")
	c := fake.AddObject("project-a", "/", "c.txt", "x")
	refs := []platform.Ref{
		{ID: c, Container: "project-a"},
		{ID: b, Container: "project-b"},
		{ID: a, Container: "project-a"},
	}

	r := newResolver(t, fake, 0)
	out, err := r.DescribeAll(context.Background(), refs, platform.DescribeOptions{})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, c, out[0].Metadata.ID)
	assert.Equal(t, b, out[1].Metadata.ID)
	assert.Equal(t, a, out[2].Metadata.ID)
}

func TestMemoryCache_ContainerScoping(t *testing.T) {
	cache := platform.NewMemoryCache()
	cache.Put("file-1", "project-a", platform.Metadata{ID: "file-1", Container: "project-a", Name: "a.txt"})

	_, ok := cache.Get("file-1", "project-b")
	assert.False(t, ok, "cache must not return metadata for a different container")

	md, ok := cache.Get("file-1", "project-a")
	require.True(t, ok)
	assert.Equal(t, "a.txt", md.Name)
}

func TestMemoryCache_EmptyAttributesStillDescribed(t *testing.T) {
	cache := platform.NewMemoryCache()
	assert.False(t, cache.Described("file-1", "project-a"))

	cache.Put("file-1", "project-a", platform.Metadata{ID: "file-1", Container: "project-a"})
	assert.True(t, cache.Described("file-1", "project-a"))
}
