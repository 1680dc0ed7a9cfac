package storage

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"sync"
)

type memObject struct {
	contentType string
	data        []byte
}

// InMemoryStore is a Bucket implementation powered by maps, to be used for
// testing or caches.
type InMemoryStore struct {
	sync.Mutex
	ids   map[string]memObject
	paths map[string]memObject
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		ids:   make(map[string]memObject),
		paths: make(map[string]memObject),
	}
}

// PutID stores data under the given object ID, which must be valid.
func (s *InMemoryStore) PutID(id, contentType string, data []byte) error {
	oid, err := ParseID(id)
	if err != nil {
		return err
	}
	s.Lock()
	s.ids[oid.Hex()] = memObject{contentType: contentType, data: dup(data)}
	s.Unlock()
	return nil
}

// PutPath stores data at the given path, replacing what's there.
func (s *InMemoryStore) PutPath(path, contentType string, data []byte) {
	s.Lock()
	s.paths[path] = memObject{contentType: contentType, data: dup(data)}
	s.Unlock()
}

// Remove deletes whatever is stored at path.
func (s *InMemoryStore) Remove(path string) {
	s.Lock()
	delete(s.paths, path)
	s.Unlock()
}

func (s *InMemoryStore) GetByID(_ context.Context, id string) (*Object, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	s.Lock()
	o, ok := s.ids[oid.Hex()]
	s.Unlock()
	if !ok {
		return nil, fmt.Errorf("%.40q: %w", id, ErrNotFound)
	}
	return o.object(), nil
}

func (s *InMemoryStore) OpenByPath(_ context.Context, path string) (*Object, error) {
	s.Lock()
	o, ok := s.paths[path]
	s.Unlock()
	if !ok {
		return nil, fmt.Errorf("%.40q: %w", path, ErrNotFound)
	}
	return o.object(), nil
}

func (o memObject) object() *Object {
	contentType := o.contentType
	if contentType == "" {
		contentType = defaultContentType
	}
	return &Object{
		ContentType: contentType,
		Length:      int64(len(o.data)),
		Body:        ioutil.NopCloser(bytes.NewReader(o.data)),
	}
}

func dup(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
