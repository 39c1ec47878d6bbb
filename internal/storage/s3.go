package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Backend is an object-store-backed Backend, for relays that keep
// bundles in a bucket rather than on local disk. The
// health-check-then-operate pattern mirrors the original Tonk relay's S3
// storage adapter.
type S3Backend struct {
	client      *s3.Client
	bucket      string
	keyPrefix   string
	isAvailable atomic.Bool
}

// NewS3Backend builds an S3Backend for the given bucket/region. keyPrefix
// namespaces all keys under e.g. "store/" so a bucket can host more than
// one kind of object.
func NewS3Backend(ctx context.Context, bucket, region, keyPrefix string) (*S3Backend, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, wrapErr("configure", nil, err)
	}
	return &S3Backend{
		client:    s3.NewFromConfig(cfg),
		bucket:    bucket,
		keyPrefix: strings.Trim(keyPrefix, "/"),
	}, nil
}

func (s *S3Backend) objectKey(key Key) string {
	joined := key.String()
	if s.keyPrefix == "" {
		return joined
	}
	return s.keyPrefix + "/" + joined
}

// HealthCheck reports whether the bucket is reachable, caching a positive
// result so steady-state operations don't pay a round trip per call.
func (s *S3Backend) HealthCheck(ctx context.Context) bool {
	if s.isAvailable.Load() {
		return true
	}
	_, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false
	}
	s.isAvailable.Store(true)
	return true
}

func (s *S3Backend) Put(ctx context.Context, key Key, value []byte) error {
	if !s.HealthCheck(ctx) {
		return wrapErr("put", key, ErrNotFound)
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(key)),
		Body:        bytes.NewReader(value),
		ContentType: aws.String("application/octet-stream"),
	})
	return wrapErr("put", key, err)
}

func (s *S3Backend) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, false, nil
		}
		return nil, false, wrapErr("get", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, wrapErr("get", key, err)
	}
	return data, true, nil
}

func (s *S3Backend) ListPrefix(ctx context.Context, prefix Key) ([]Entry, error) {
	var out []Entry
	var token *string
	objPrefix := s.objectKey(prefix)

	for {
		resp, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(objPrefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, wrapErr("list", prefix, err)
		}
		for _, obj := range resp.Contents {
			getResp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				return nil, wrapErr("list", prefix, err)
			}
			data, err := io.ReadAll(getResp.Body)
			getResp.Body.Close()
			if err != nil {
				return nil, wrapErr("list", prefix, err)
			}
			rel := strings.TrimPrefix(aws.ToString(obj.Key), s.keyPrefix+"/")
			out = append(out, Entry{Key: strings.Split(rel, "/"), Value: data})
		}
		if resp.IsTruncated == nil || !*resp.IsTruncated {
			break
		}
		token = resp.NextContinuationToken
	}
	return out, nil
}

func (s *S3Backend) Delete(ctx context.Context, key Key) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	return wrapErr("delete", key, err)
}

func isNoSuchKey(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	return strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "NotFound")
}
