package storage

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"

	"github.com/boltdb/bolt"
	"github.com/nicolagi/gridserve/bits"
)

// BoltStore is an implementation of Bucket whose backend is a Bolt database.
// Objects are kept in two buckets, one keyed by object ID and one by path.
type BoltStore bolt.DB

var (
	idsBucketName   = []byte("ids")
	pathsBucketName = []byte("paths")
)

func NewBoltStore(db *bolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{idsBucketName, pathsBucketName} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("could not ensure bucket %q exists: %w", name, err)
			}
		}
		return nil
	})
	return (*BoltStore)(db), err
}

// PutID stores data under the given object ID, which must be valid.
func (s *BoltStore) PutID(id, contentType string, data []byte) error {
	oid, err := ParseID(id)
	if err != nil {
		return err
	}
	return s.put(idsBucketName, oid.Hex(), contentType, data)
}

// PutPath stores data at the given path.
func (s *BoltStore) PutPath(path, contentType string, data []byte) error {
	return s.put(pathsBucketName, path, contentType, data)
}

func (s *BoltStore) put(bucket []byte, key, contentType string, data []byte) error {
	return (*bolt.DB)(s).Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucket).Put([]byte(key), bits.PutRecord(contentType, data)); err != nil {
			return fmt.Errorf("could not put %.40q: %w", key, err)
		}
		return nil
	})
}

func (s *BoltStore) GetByID(_ context.Context, id string) (*Object, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	return s.get(idsBucketName, oid.Hex())
}

func (s *BoltStore) OpenByPath(_ context.Context, path string) (*Object, error) {
	return s.get(pathsBucketName, path)
}

func (s *BoltStore) get(bucket []byte, key string) (o *Object, err error) {
	err = (*bolt.DB)(s).View(func(tx *bolt.Tx) error {
		value := tx.Bucket(bucket).Get([]byte(key))
		if value == nil {
			return fmt.Errorf("%.40q: %w", key, ErrNotFound)
		}
		contentType, data, err := bits.GetRecord(value)
		if err != nil {
			return fmt.Errorf("%.40q: %w", key, err)
		}
		if contentType == "" {
			contentType = defaultContentType
		}
		// The value is only valid for the life of the transaction.
		data = dup(data)
		o = &Object{
			ContentType: contentType,
			Length:      int64(len(data)),
			Body:        ioutil.NopCloser(bytes.NewReader(data)),
		}
		return nil
	})
	return o, err
}
