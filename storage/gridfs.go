package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// DefaultConnectTimeout bounds how long Dial waits for the server.
const DefaultConnectTimeout = 5 * time.Second

// GridFSConfig holds what's needed to reach a GridFS bucket.
type GridFSConfig struct {
	Hostname string
	Port     int
	Database string
	Bucket   string

	// Credentials are optional. If Username is empty, no authentication is
	// attempted.
	Username string
	Password string

	Timeout time.Duration
}

func (c GridFSConfig) address() string {
	hostname := c.Hostname
	if hostname == "" {
		hostname = "localhost"
	}
	port := c.Port
	if port == 0 {
		port = 27017
	}
	return net.JoinHostPort(hostname, strconv.Itoa(port))
}

// GridFS implements Bucket on top of a MongoDB GridFS bucket. It owns the
// process-wide client; a single instance is meant to be shared by all
// requests, relying on the driver's own connection pooling.
type GridFS struct {
	client *mongo.Client
	files  *mongo.Collection
	bucket *gridfs.Bucket
}

// Dial connects to the server and verifies the connection (and credentials)
// with a ping. Any failure within the timeout is reported as a
// *ConnectionError and there is no retry.
func Dial(ctx context.Context, c GridFSConfig) (*GridFS, error) {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultConnectTimeout
	}
	bucketName := c.Bucket
	if bucketName == "" {
		bucketName = "fs"
	}
	addr := c.address()
	opts := options.Client().
		SetHosts([]string{addr}).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)
	if c.Username != "" {
		opts.SetAuth(options.Credential{
			Username:   c.Username,
			Password:   c.Password,
			AuthSource: c.Database,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, &ConnectionError{Address: addr, Err: err}
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, &ConnectionError{Address: addr, Err: err}
	}
	db := client.Database(c.Database)
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(bucketName))
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, &ConnectionError{Address: addr, Err: err}
	}
	log.WithFields(log.Fields{
		"addr":     addr,
		"database": c.Database,
		"bucket":   bucketName,
	}).Info("Connected to GridFS")
	return &GridFS{
		client: client,
		files:  db.Collection(bucketName + ".files"),
		bucket: bucket,
	}, nil
}

// Close disconnects the client. The GridFS must not be used afterwards.
func (s *GridFS) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type gridFile struct {
	ID          interface{} `bson:"_id"`
	Length      int64       `bson:"length"`
	ContentType string      `bson:"contentType"`
	Metadata    struct {
		ContentType string `bson:"contentType"`
	} `bson:"metadata"`
}

func (f *gridFile) contentType() string {
	if f.ContentType != "" {
		return f.ContentType
	}
	if f.Metadata.ContentType != "" {
		return f.Metadata.ContentType
	}
	return defaultContentType
}

func (s *GridFS) GetByID(ctx context.Context, id string) (*Object, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	return s.open(ctx, bson.D{{Key: "_id", Value: oid}}, id)
}

// OpenByPath opens the most recently uploaded file named path.
func (s *GridFS) OpenByPath(ctx context.Context, path string) (*Object, error) {
	return s.open(ctx, bson.D{{Key: "filename", Value: path}}, path)
}

func (s *GridFS) open(ctx context.Context, filter bson.D, name string) (*Object, error) {
	var f gridFile
	opts := options.FindOne().SetSort(bson.D{{Key: "uploadDate", Value: -1}})
	if err := s.files.FindOne(ctx, filter, opts).Decode(&f); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%.80q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("could not find %.80q: %w", name, err)
	}
	stream, err := s.bucket.OpenDownloadStream(f.ID)
	if err != nil {
		// Deleted between the two calls.
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, fmt.Errorf("%.80q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("could not open %.80q: %w", name, err)
	}
	return &Object{
		ContentType: f.contentType(),
		Length:      f.Length,
		Body:        stream,
	}, nil
}
