package storage_test

import (
	"context"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/boltdb/bolt"
	"github.com/nicolagi/gridserve/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testID      = "5f2a0c3e9d1b4a6e8c7f0123"
	otherTestID = "5f2a0c3e9d1b4a6e8c7f0999"
)

// seeder stores data under an ID and under a path.
type seeder func(t *testing.T, id, path, contentType string, data []byte)

func TestBucketImplementations(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(*testing.T) (storage.Bucket, seeder, func())
	}{
		{
			name: "Bucket implementation backed by a BoltDB",
			setup: func(t *testing.T) (storage.Bucket, seeder, func()) {
				f, err := ioutil.TempFile("", "test-gridserve-storage-")
				require.Nil(t, err)
				require.Nil(t, f.Close())
				db, err := bolt.Open(f.Name(), 0600, nil)
				require.Nil(t, err)
				store, err := storage.NewBoltStore(db)
				require.Nil(t, err)
				seed := func(t *testing.T, id, path, contentType string, data []byte) {
					require.Nil(t, store.PutID(id, contentType, data))
					require.Nil(t, store.PutPath(path, contentType, data))
				}
				return store, seed, func() {
					_ = db.Close()
					_ = os.Remove(f.Name())
				}
			},
		},
		{
			name: "Bucket implementation backed by maps",
			setup: func(*testing.T) (storage.Bucket, seeder, func()) {
				store := storage.NewInMemoryStore()
				seed := func(t *testing.T, id, path, contentType string, data []byte) {
					require.Nil(t, store.PutID(id, contentType, data))
					store.PutPath(path, contentType, data)
				}
				return store, seed, func() {
					// Nothing to do.
				}
			},
		},
		{
			name: "Cached bucket backed by maps",
			setup: func(*testing.T) (storage.Bucket, seeder, func()) {
				store := storage.NewInMemoryStore()
				seed := func(t *testing.T, id, path, contentType string, data []byte) {
					require.Nil(t, store.PutID(id, contentType, data))
					store.PutPath(path, contentType, data)
				}
				return storage.NewCached(store, 8, 0, 0), seed, func() {}
			},
		},
		{
			name: "Throttled bucket backed by maps",
			setup: func(*testing.T) (storage.Bucket, seeder, func()) {
				store := storage.NewInMemoryStore()
				seed := func(t *testing.T, id, path, contentType string, data []byte) {
					require.Nil(t, store.PutID(id, contentType, data))
					store.PutPath(path, contentType, data)
				}
				return storage.NewThrottled(store, 1000, 100), seed, func() {}
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			bucket, seed, teardown := tc.setup(t)
			defer teardown()
			testBucket(t, bucket, seed)
		})
	}
}

func testBucket(t *testing.T, bucket storage.Bucket, seed seeder) {
	ctx := context.Background()
	t.Run("what you put is what you get, by id", func(t *testing.T) {
		seed(t, testID, "photos/a.png", "image/png", []byte("hello"))
		o, err := bucket.GetByID(ctx, testID)
		require.Nil(t, err)
		assert.Equal(t, "image/png", o.ContentType)
		assert.Equal(t, []byte("hello"), readAll(t, o))
	})
	t.Run("what you put is what you get, by path", func(t *testing.T) {
		seed(t, testID, "photos/b.png", "image/png", []byte("world"))
		o, err := bucket.OpenByPath(ctx, "photos/b.png")
		require.Nil(t, err)
		assert.Equal(t, "image/png", o.ContentType)
		assert.EqualValues(t, 5, o.Length)
		assert.Equal(t, []byte("world"), readAll(t, o))
	})
	t.Run("error on not existing id", func(t *testing.T) {
		o, err := bucket.GetByID(ctx, otherTestID)
		assert.True(t, errors.Is(err, storage.ErrNotFound))
		assert.Nil(t, o)
	})
	t.Run("error on not existing path", func(t *testing.T) {
		o, err := bucket.OpenByPath(ctx, "photos/missing.png")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
		assert.Nil(t, o)
	})
	t.Run("malformed id", func(t *testing.T) {
		for _, id := range []string{"nope", "", "5f2a0c3e9d1b4a6e8c7f012", "zz2a0c3e9d1b4a6e8c7f0123"} {
			o, err := bucket.GetByID(ctx, id)
			assert.True(t, errors.Is(err, storage.ErrMalformedID), "id %q: %v", id, err)
			assert.True(t, storage.IsNotFound(err))
			assert.Nil(t, o)
		}
	})
	t.Run("missing content type defaults to octet stream", func(t *testing.T) {
		seed(t, otherTestID, "blobs/untyped", "", []byte{1, 2, 3})
		o, err := bucket.OpenByPath(ctx, "blobs/untyped")
		require.Nil(t, err)
		assert.Equal(t, "application/octet-stream", o.ContentType)
		assert.Equal(t, []byte{1, 2, 3}, readAll(t, o))
	})
	t.Run("reading twice gives same content", func(t *testing.T) {
		seed(t, testID, "photos/c.png", "image/png", []byte("again"))
		for i := 0; i < 2; i++ {
			o, err := bucket.OpenByPath(ctx, "photos/c.png")
			require.Nil(t, err)
			assert.Equal(t, []byte("again"), readAll(t, o))
		}
	})
}

func TestDiskStore(t *testing.T) {
	ctx := context.Background()
	dir, err := ioutil.TempDir("", "test-gridserve-storage-")
	require.Nil(t, err)
	defer func() {
		_ = os.RemoveAll(dir)
	}()
	store := storage.NewDiskStore(dir)
	t.Run("content type from extension", func(t *testing.T) {
		require.Nil(t, store.PutPath("photos/user/default/avatar/pic.png", []byte("png")))
		o, err := store.OpenByPath(ctx, "photos/user/default/avatar/pic.png")
		require.Nil(t, err)
		assert.Equal(t, "image/png", o.ContentType)
		assert.Equal(t, []byte("png"), readAll(t, o))
	})
	t.Run("by id", func(t *testing.T) {
		require.Nil(t, store.PutID(testID, []byte("raw")))
		o, err := store.GetByID(ctx, testID)
		require.Nil(t, err)
		assert.Equal(t, "application/octet-stream", o.ContentType)
		assert.Equal(t, []byte("raw"), readAll(t, o))
	})
	t.Run("directories are not found", func(t *testing.T) {
		_, err := store.OpenByPath(ctx, "photos/user")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})
	t.Run("paths cannot escape the directory", func(t *testing.T) {
		outside := filepath.Join(filepath.Dir(dir), "escaped.txt")
		require.Nil(t, store.PutPath("../../escaped.txt", []byte("x")))
		_, err := os.Stat(outside)
		assert.True(t, os.IsNotExist(err))
		o, err := store.OpenByPath(ctx, "escaped.txt")
		require.Nil(t, err)
		assert.Equal(t, []byte("x"), readAll(t, o))
	})
	t.Run("malformed id", func(t *testing.T) {
		_, err := store.GetByID(ctx, "../paths/escaped.txt")
		assert.True(t, errors.Is(err, storage.ErrMalformedID))
	})
}

func readAll(t *testing.T, o *storage.Object) []byte {
	t.Helper()
	b, err := ioutil.ReadAll(o.Body)
	require.Nil(t, err)
	require.Nil(t, o.Close())
	return b
}
