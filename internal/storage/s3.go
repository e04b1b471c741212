package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// ErrObjectNotFound is returned when the key does not exist in the bucket.
var ErrObjectNotFound = errors.New("storage: object not found")

// Object is an open stream of stored file bytes. The caller closes Body.
type Object struct {
	Body          io.ReadCloser
	ContentLength int64
}

// FileStore opens digital deliverables by their storage public id.
type FileStore interface {
	Open(ctx context.Context, key string) (*Object, error)
}

// S3Config holds configuration for the S3-compatible object store.
type S3Config struct {
	AccessKey      string
	SecretKey      string
	Bucket         string
	Region         string
	Endpoint       string
	ForcePathStyle bool
}

type s3GetAPI interface {
	GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error)
}

// S3Store streams objects from an S3-compatible bucket.
type S3Store struct {
	client s3GetAPI
	bucket string
}

// NewS3Store creates an S3Store. An empty endpoint uses AWS itself.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage: bucket is required")
	}

	awsCfg := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(cfg.ForcePathStyle),
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create session: %w", err)
	}
	return &S3Store{client: s3.New(sess), bucket: cfg.Bucket}, nil
}

// Open starts streaming the object; nothing is buffered in memory.
func (s *S3Store) Open(ctx context.Context, key string) (*Object, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("storage: get %s: %w", key, err)
	}

	obj := &Object{Body: out.Body, ContentLength: -1}
	if out.ContentLength != nil {
		obj.ContentLength = *out.ContentLength
	}
	return obj, nil
}
