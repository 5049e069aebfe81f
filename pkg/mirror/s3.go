package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of *s3.Client the mirror needs.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// maxS3Value caps how much of an object Read will load.
const maxS3Value = 64 << 10

// S3 is a mirror store in an S3 bucket, one object per key under
// prefix/session/. It outlives the process, so a session resumed on another
// machine sees the same mirror.
type S3 struct {
	client  S3API
	bucket  string
	prefix  string
	session string
	timeout time.Duration
}

// NewS3 returns a mirror store for session.
//
// Example usage:
//
//	client := s3.New(s3.Options{Region: "eu-west-1", Credentials: creds})
//	store := mirror.NewS3(client, "my-bucket", "hashstate", sessionID)
func NewS3(client S3API, bucket, prefix, session string) *S3 {
	return &S3{
		client:  client,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		session: session,
		timeout: 5 * time.Second,
	}
}

// WithTimeout sets the per-call timeout.
func (s *S3) WithTimeout(d time.Duration) *S3 {
	s.timeout = d
	return s
}

// ObjectKey returns the object key for a mirror key. The session and key
// are escaped into one segment each, so neither can leave prefix/session/.
func (s *S3) ObjectKey(key string) string {
	k := objectSegment(s.session) + "/" + objectSegment(key)
	if s.prefix == "" {
		return k
	}
	return s.prefix + "/" + k
}

func objectSegment(s string) string {
	switch s {
	case ".":
		return "%2E"
	case "..":
		return "%2E%2E"
	}
	return url.PathEscape(s)
}

// Read returns the value stored under key. A missing object is absent, not
// an error.
func (s *S3) Read(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.ObjectKey(key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("s3 get %s: %w", s.ObjectKey(key), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxS3Value+1))
	if err != nil {
		return "", false, fmt.Errorf("s3 read %s: %w", s.ObjectKey(key), err)
	}
	if len(data) > maxS3Value {
		return "", false, fmt.Errorf("s3 object %s exceeds %d bytes", s.ObjectKey(key), maxS3Value)
	}
	return string(data), true, nil
}

// Write stores encoded under key.
func (s *S3) Write(key, encoded string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.ObjectKey(key)),
		Body:        strings.NewReader(encoded),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", s.ObjectKey(key), err)
	}
	return nil
}

// Remove deletes key. S3 treats deleting a missing object as success.
func (s *S3) Remove(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.ObjectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", s.ObjectKey(key), err)
	}
	return nil
}
