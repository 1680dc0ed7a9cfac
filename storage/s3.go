package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// S3 is an implementation of Bucket backed by AWS S3. Objects looked up by ID
// are stored under the "ids/" key prefix, objects looked up by path use the
// path as key.
type S3 struct {
	bucket string
	client s3iface.S3API
}

func NewS3(profile, region, bucket string) (*S3, error) {
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewSharedCredentials("", profile),
	})
	if err != nil {
		return nil, &ConnectionError{Address: "s3://" + bucket, Err: err}
	}
	return NewS3WithClient(s3.New(sess), bucket), nil
}

// NewS3WithClient is like NewS3 but uses the given client.
func NewS3WithClient(client s3iface.S3API, bucket string) *S3 {
	return &S3{bucket: bucket, client: client}
}

func (s *S3) GetByID(ctx context.Context, id string) (*Object, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	return s.get(ctx, "ids/"+oid.Hex())
}

func (s *S3) OpenByPath(ctx context.Context, path string) (*Object, error) {
	return s.get(ctx, path)
}

func (s *S3) get(ctx context.Context, key string) (*Object, error) {
	output, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%q: %w", key, ErrNotFound)
		}
		return nil, err
	}
	contentType := aws.StringValue(output.ContentType)
	if contentType == "" {
		contentType = defaultContentType
	}
	length := int64(-1)
	if output.ContentLength != nil {
		length = *output.ContentLength
	}
	return &Object{
		ContentType: contentType,
		Length:      length,
		Body:        output.Body,
	}, nil
}

func isS3NotFound(err error) bool {
	var rfErr awserr.RequestFailure
	if errors.As(err, &rfErr) && rfErr.StatusCode() == http.StatusNotFound {
		return true
	}
	var aErr awserr.Error
	return errors.As(err, &aErr) && aErr.Code() == s3.ErrCodeNoSuchKey
}
