package storage

import (
	"context"
	"fmt"
	"io/ioutil"
	"mime"
	"os"
	"path/filepath"
)

// DiskStore implements Bucket over a host directory: paths live under
// <dir>/paths and object IDs under <dir>/ids. The content type is derived from
// the file extension.
type DiskStore struct {
	dir string
}

func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{dir: dir}
}

// PutPath writes data at path, creating parent directories as needed.
func (s *DiskStore) PutPath(path string, data []byte) error {
	return s.put(s.pathFor(path), data)
}

// PutID writes data under the given object ID, which must be valid.
func (s *DiskStore) PutID(id string, data []byte) error {
	oid, err := ParseID(id)
	if err != nil {
		return err
	}
	return s.put(filepath.Join(s.dir, "ids", oid.Hex()), data)
}

func (s *DiskStore) put(valpath string, data []byte) (err error) {
	err = ioutil.WriteFile(valpath, data, 0600)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("could not write %q: %w", valpath, err)
	}
	if err = os.MkdirAll(filepath.Dir(valpath), 0700); err != nil {
		return fmt.Errorf("could not make dir for %q: %w", valpath, err)
	}
	return ioutil.WriteFile(valpath, data, 0600)
}

func (s *DiskStore) GetByID(_ context.Context, id string) (*Object, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	return s.open(filepath.Join(s.dir, "ids", oid.Hex()))
}

func (s *DiskStore) OpenByPath(_ context.Context, path string) (*Object, error) {
	return s.open(s.pathFor(path))
}

func (s *DiskStore) open(valpath string) (*Object, error) {
	f, err := os.Open(valpath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%q: %w", valpath, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if fi.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("%q: %w", valpath, ErrNotFound)
	}
	contentType := mime.TypeByExtension(filepath.Ext(valpath))
	if contentType == "" {
		contentType = defaultContentType
	}
	return &Object{
		ContentType: contentType,
		Length:      fi.Size(),
		Body:        f,
	}, nil
}

// pathFor keeps the result inside the store's directory whatever the path
// contains.
func (s *DiskStore) pathFor(path string) string {
	clean := filepath.Clean(string(filepath.Separator) + filepath.FromSlash(path))
	return filepath.Join(s.dir, "paths", clean)
}
