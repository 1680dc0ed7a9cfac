package storage

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	log "github.com/sirupsen/logrus"
)

// DefaultMaxCachedObjectSize is the largest object Cached keeps in memory.
const DefaultMaxCachedObjectSize = 1 << 20

// Cached wraps a Bucket, keeping recently opened paths in a bounded LRU with
// a TTL. It's meant for the few default objects served as fallbacks, so only
// OpenByPath is cached and objects larger than a limit pass through.
type Cached struct {
	delegate Bucket
	maxSize  int64
	lru      *expirable.LRU[string, memObject]
}

func NewCached(delegate Bucket, entries int, ttl time.Duration, maxObjectSize int64) *Cached {
	if maxObjectSize <= 0 {
		maxObjectSize = DefaultMaxCachedObjectSize
	}
	return &Cached{
		delegate: delegate,
		maxSize:  maxObjectSize,
		lru:      expirable.NewLRU[string, memObject](entries, nil, ttl),
	}
}

func (c *Cached) GetByID(ctx context.Context, id string) (*Object, error) {
	return c.delegate.GetByID(ctx, id)
}

func (c *Cached) OpenByPath(ctx context.Context, path string) (*Object, error) {
	if o, ok := c.lru.Get(path); ok {
		log.WithField("path", path).Debug("Cache hit")
		return o.object(), nil
	}
	o, err := c.delegate.OpenByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	if o.Length > c.maxSize {
		return o, nil
	}
	buf, err := ioutil.ReadAll(io.LimitReader(o.Body, c.maxSize+1))
	if err != nil {
		_ = o.Close()
		return nil, err
	}
	if int64(len(buf)) > c.maxSize {
		// Length was unknown or wrong; serve what was read followed by the rest.
		o.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(buf), o.Body), o.Body}
		return o, nil
	}
	if err := o.Close(); err != nil {
		log.WithFields(log.Fields{
			"path": path,
			"err":  err,
		}).Warn("Could not close object")
	}
	mo := memObject{contentType: o.ContentType, data: buf}
	c.lru.Add(path, mo)
	return mo.object(), nil
}

// Invalidate drops path from the cache.
func (c *Cached) Invalidate(path string) {
	c.lru.Remove(path)
}

// Purge drops everything from the cache.
func (c *Cached) Purge() {
	c.lru.Purge()
}

// Len returns the number of cached objects.
func (c *Cached) Len() int {
	return c.lru.Len()
}
