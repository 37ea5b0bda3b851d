// Package s3 provides a packstream.Source for objects in Amazon S3 and
// S3-compatible stores.
//
// The object size is taken from HeadObject. The body is fetched with a single
// GetObject on the first Read, pinned to the ETag seen by HeadObject.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var (
	// ErrNotFound is returned when the object does not exist.
	ErrNotFound = errors.New("s3: object not found")

	// ErrUnknownSize is returned when HeadObject reports no content length.
	ErrUnknownSize = errors.New("s3: unknown object size")

	// ErrClosed is returned by Read after Close.
	ErrClosed = errors.New("s3: source closed")
)

// Client is the subset of *s3.Client used by Source.
type Client interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Source streams one S3 object from start to end.
// It satisfies packstream.Source.
type Source struct {
	ctx    context.Context
	client Client
	bucket string
	key    string
	size   int64
	etag   string
	body   io.ReadCloser
	off    int64
	closed bool
}

// NewSource looks up bucket/key and returns a Source for it.
// ctx bounds the lookup and the later download.
func NewSource(ctx context.Context, client Client, bucket, key string) (*Source, error) {
	head, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return nil, fmt.Errorf("%s/%s: %w", bucket, key, ErrNotFound)
		}
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%s/%s: %w", bucket, key, ErrNotFound)
		}
		return nil, err
	}
	if head.ContentLength == nil || *head.ContentLength < 0 {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, ErrUnknownSize)
	}

	return &Source{
		ctx:    ctx,
		client: client,
		bucket: bucket,
		key:    key,
		size:   *head.ContentLength,
		etag:   aws.ToString(head.ETag),
	}, nil
}

// Size returns the object size.
func (s *Source) Size() int64 {
	return s.size
}

// Read reads the next bytes of the object, starting the download on first use.
func (s *Source) Read(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if s.off >= s.size {
		return 0, io.EOF
	}
	if s.body == nil {
		input := &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key),
		}
		if s.etag != "" {
			input.IfMatch = aws.String(s.etag)
		}
		out, err := s.client.GetObject(s.ctx, input)
		if err != nil {
			return 0, fmt.Errorf("get %s/%s: %w", s.bucket, s.key, err)
		}
		s.body = out.Body
	}

	if rem := s.size - s.off; int64(len(p)) > rem {
		p = p[:rem]
	}
	n, err := s.body.Read(p)
	s.off += int64(n)
	if err == io.EOF && s.off < s.size {
		return n, fmt.Errorf("get %s/%s at %d of %d: %w", s.bucket, s.key, s.off, s.size, io.ErrUnexpectedEOF)
	}
	return n, err
}

// Close releases the download, if one was started.
func (s *Source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.body == nil {
		return nil
	}
	return s.body.Close()
}
