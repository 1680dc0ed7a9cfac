package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Bucket is the narrow view of a blob store needed to serve files: objects can
// be fetched by opaque identifier or by hierarchical path.
type Bucket interface {
	// GetByID should return ErrMalformedID if the identifier is not a valid
	// object ID, and ErrNotFound if there is no object with that ID.
	GetByID(ctx context.Context, id string) (*Object, error)

	// OpenByPath should return ErrNotFound if there is no object at path.
	OpenByPath(ctx context.Context, path string) (*Object, error)
}

var (
	// ErrNotFound indicates an object is not in the store.
	ErrNotFound = errors.New("not found")

	// ErrMalformedID indicates an identifier that can't be parsed as an
	// object ID. Callers serving files treat it like ErrNotFound.
	ErrMalformedID = errors.New("malformed object id")
)

// Object is a stored file. Body can be read only once and must be closed by
// whoever ends up owning the object.
type Object struct {
	ContentType string

	// Length is the size of the content in bytes, or -1 if unknown.
	Length int64

	Body io.ReadCloser
}

// Close releases the object's body.
func (o *Object) Close() error {
	if o == nil || o.Body == nil {
		return nil
	}
	return o.Body.Close()
}

// IsNotFound reports whether err means that the requested object doesn't
// exist, including the case of an identifier that can't possibly exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrMalformedID)
}

// ConnectionError is returned when a connection to the store can't be
// established at startup, either because it's unreachable or because
// authentication was rejected.
type ConnectionError struct {
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("unable to connect to the blob store at %s: %v", e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ParseID validates id as a hexadecimal object ID. All backends use it, so
// that an identifier is malformed or not regardless of the backend.
func ParseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return oid, fmt.Errorf("%.40q: %w", id, ErrMalformedID)
	}
	return oid, nil
}

const defaultContentType = "application/octet-stream"
