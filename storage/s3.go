package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3PhotoArchive implements PhotoArchive backed by S3

type S3PhotoArchive struct {
	bucket string
	prefix string
	s3     s3API
}

func NewS3PhotoArchive(client s3API, bucket, prefix string) *S3PhotoArchive {
	return &S3PhotoArchive{
		bucket: bucket,
		prefix: prefix,
		s3:     client,
	}
}

func (a *S3PhotoArchive) Save(ctx context.Context, userID int64, photo []byte) (string, error) {
	key := path.Join(a.prefix, photoKey(userID, time.Now()))
	_, err := a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(photo),
		ContentType: aws.String("image/jpeg"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put photo object to S3: %w", err)
	}
	return key, nil
}

func (a *S3PhotoArchive) Load(ctx context.Context, key string) ([]byte, error) {
	resp, err := a.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get photo object from S3: %w", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
