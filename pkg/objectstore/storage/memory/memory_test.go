package memory_test

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DigitalRuby/S3ObjectStore/pkg/objectstore"
	memorystorage "github.com/DigitalRuby/S3ObjectStore/pkg/objectstore/storage/memory"
)

func newBucketRepo(t *testing.T) *memorystorage.Repository {
	t.Helper()
	repo := memorystorage.New()
	require.NoError(t, repo.CreateBucket(context.Background(), "test"))
	return repo
}

func TestMemoryReadWriteDelete(t *testing.T) {
	repo := newBucketRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, "test", "a/b.json", "application/json", strings.NewReader(`{"v":1}`)))

	t.Run("Read", func(t *testing.T) {
		body, found, err := repo.Read(ctx, "test", "a/b.json")
		require.NoError(t, err)
		require.True(t, found)
		defer body.Close()

		data, err := io.ReadAll(body)
		require.NoError(t, err)
		assert.Equal(t, `{"v":1}`, string(data))
	})

	t.Run("ReadAbsent", func(t *testing.T) {
		_, found, err := repo.Read(ctx, "test", "missing.json")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("UpsertReplaces", func(t *testing.T) {
		require.NoError(t, repo.Upsert(ctx, "test", "a/b.json", "application/json", strings.NewReader(`{"v":2}`)))

		body, found, err := repo.Read(ctx, "test", "a/b.json")
		require.NoError(t, err)
		require.True(t, found)
		defer body.Close()

		data, err := io.ReadAll(body)
		require.NoError(t, err)
		assert.Equal(t, `{"v":2}`, string(data))
	})

	t.Run("DeleteIdempotent", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, "test", "a/b.json"))
		require.NoError(t, repo.Delete(ctx, "test", "a/b.json"))

		_, found, err := repo.Read(ctx, "test", "a/b.json")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestMemoryReadIsSnapshot(t *testing.T) {
	repo := newBucketRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, "test", "k", "text/plain", strings.NewReader("old")))
	body, found, err := repo.Read(ctx, "test", "k")
	require.NoError(t, err)
	require.True(t, found)
	defer body.Close()

	// Replacing the object must not affect the stream handed out earlier
	require.NoError(t, repo.Upsert(ctx, "test", "k", "text/plain", strings.NewReader("new")))

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestMemoryMissingBucketDegradesGracefully(t *testing.T) {
	repo := memorystorage.New()
	ctx := context.Background()

	_, found, err := repo.Read(ctx, "nope", "k")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, repo.Upsert(ctx, "nope", "k", "text/plain", strings.NewReader("x")))
	require.NoError(t, repo.Delete(ctx, "nope", "k"))
	require.NoError(t, repo.DeleteMany(ctx, "nope", []string{"k"}))

	_, found, err = repo.GetMetadata(ctx, "nope", "k")
	require.NoError(t, err)
	assert.False(t, found)

	page, err := repo.ListContents(ctx, "nope", objectstore.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, page.Contents)
	assert.False(t, page.IsTruncated)
}

func TestMemoryMetadataUsesInjectedClock(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := memorystorage.New(memorystorage.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, repo.CreateBucket(ctx, "test"))
	require.NoError(t, repo.Upsert(ctx, "test", "k.json", "application/json", strings.NewReader(`{}`)))

	info, found, err := repo.GetMetadata(ctx, "test", "k.json")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "k.json", info.Path)
	assert.Equal(t, int64(2), info.Size)
	assert.Equal(t, "application/json", info.ContentType)
	assert.Equal(t, now, info.LastModified)

	buckets, err := repo.ListBuckets(ctx)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, now, buckets[0].CreatedAt)
}

func TestMemoryListContents(t *testing.T) {
	repo := newBucketRepo(t)
	ctx := context.Background()

	// Insert out of order to prove sorting
	for _, path := range []string{"users/me/c.json", "users/me/a.json", "users/other/z.json", "users/me/b.json"} {
		require.NoError(t, repo.Upsert(ctx, "test", path, "application/json", strings.NewReader("{}")))
	}

	t.Run("PrefixCorrectness", func(t *testing.T) {
		page, err := repo.ListContents(ctx, "test", objectstore.ListOptions{Prefix: "users/me/"})
		require.NoError(t, err)

		var paths []string
		for _, e := range page.Contents {
			paths = append(paths, e.Path)
		}
		assert.Equal(t, []string{"users/me/a.json", "users/me/b.json", "users/me/c.json"}, paths)
		assert.False(t, page.IsTruncated)
	})

	t.Run("StartAfter", func(t *testing.T) {
		page, err := repo.ListContents(ctx, "test", objectstore.ListOptions{
			Prefix:     "users/me/",
			StartAfter: "users/me/a.json",
		})
		require.NoError(t, err)
		require.Len(t, page.Contents, 2)
		assert.Equal(t, "users/me/b.json", page.Contents[0].Path)
	})

	t.Run("Pagination", func(t *testing.T) {
		var paths []string
		opts := objectstore.ListOptions{Prefix: "users/", MaxKeys: 2}
		for {
			page, err := repo.ListContents(ctx, "test", opts)
			require.NoError(t, err)
			for _, e := range page.Contents {
				paths = append(paths, e.Path)
			}
			if !page.IsTruncated {
				break
			}
			require.NotEmpty(t, page.NextContinuationToken)
			opts.ContinuationToken = page.NextContinuationToken
		}
		assert.Equal(t, []string{"users/me/a.json", "users/me/b.json", "users/me/c.json", "users/other/z.json"}, paths)
	})

	t.Run("ContinuationTokenWinsOverStartAfter", func(t *testing.T) {
		page, err := repo.ListContents(ctx, "test", objectstore.ListOptions{
			Prefix:            "users/me/",
			StartAfter:        "users/me/zzz.json",
			ContinuationToken: "users/me/a.json",
		})
		require.NoError(t, err)
		require.Len(t, page.Contents, 2)
		assert.Equal(t, "users/me/b.json", page.Contents[0].Path)
	})
}

func TestMemoryDeleteMany(t *testing.T) {
	repo := newBucketRepo(t)
	ctx := context.Background()

	var paths []string
	for i := 0; i < 20; i++ {
		path := fmt.Sprintf("bulk/%02d.json", i)
		paths = append(paths, path)
		require.NoError(t, repo.Upsert(ctx, "test", path, "application/json", strings.NewReader("{}")))
	}

	require.NoError(t, repo.DeleteMany(ctx, "test", paths))

	page, err := repo.ListContents(ctx, "test", objectstore.ListOptions{Prefix: "bulk/"})
	require.NoError(t, err)
	assert.Empty(t, page.Contents)
}

func TestMemoryBucketAdminRestricted(t *testing.T) {
	repo := memorystorage.New(memorystorage.WithBucketAdmin(false))
	ctx := context.Background()

	assert.ErrorIs(t, repo.CreateBucket(ctx, "test"), objectstore.ErrBucketAdminNotPermitted)
	assert.ErrorIs(t, repo.DeleteBucket(ctx, "test"), objectstore.ErrBucketAdminNotPermitted)

	_, err := repo.ListBuckets(ctx)
	assert.ErrorIs(t, err, objectstore.ErrBucketAdminNotPermitted)
}

func TestMemoryBucketLifecycle(t *testing.T) {
	repo := memorystorage.New()
	ctx := context.Background()

	require.NoError(t, repo.CreateBucket(ctx, "a"))
	require.NoError(t, repo.CreateBucket(ctx, "b"))

	// Re-creating keeps contents
	require.NoError(t, repo.Upsert(ctx, "a", "k", "text/plain", strings.NewReader("x")))
	require.NoError(t, repo.CreateBucket(ctx, "a"))
	_, found, err := repo.Read(ctx, "a", "k")
	require.NoError(t, err)
	assert.True(t, found)

	buckets, err := repo.ListBuckets(ctx)
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, "a", buckets[0].Name)
	assert.Equal(t, "b", buckets[1].Name)

	require.NoError(t, repo.DeleteBucket(ctx, "a"))
	_, found, err = repo.Read(ctx, "a", "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryUpsertDrainsReaderAndReportsProgress(t *testing.T) {
	repo := newBucketRepo(t)
	ctx := context.Background()

	var last int64
	reader := strings.NewReader("hello world")
	require.NoError(t, repo.Upsert(ctx, "test", "k", "text/plain", reader,
		objectstore.WithProgress(func(n int64) { last = n })))

	// The input reader was fully drained before Upsert returned
	assert.Equal(t, 0, reader.Len())
	assert.Equal(t, int64(len("hello world")), last)
}

func TestMemoryTryVariants(t *testing.T) {
	repo := newBucketRepo(t)
	ctx := context.Background()

	assert.True(t, repo.TryUpsert(ctx, "test", "k.json", "application/json", strings.NewReader("{}")))

	body, found := repo.TryRead(ctx, "test", "k.json")
	require.True(t, found)
	body.Close()

	info, found := repo.TryGetMetadata(ctx, "test", "k.json")
	require.True(t, found)
	assert.Equal(t, "k.json", info.Path)

	assert.True(t, repo.TryDelete(ctx, "test", "k.json"))

	_, found = repo.TryRead(ctx, "test", "k.json")
	assert.False(t, found)
}
