package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/ota-api/notes/internal/config"
	"github.com/ota-api/notes/internal/model"
)

// ErrNotConfigured is returned by archive reads when no bucket is set up.
var ErrNotConfigured = errors.New("o3 archive not configured")

const batchContentType = "application/gzip"

// Archive is an S3-compatible bucket (Akave O3, MinIO, AWS) holding log
// entries as gzipped JSON batches.
type Archive struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewArchive builds an archive for cfg. It returns nil, nil when cfg is nil
// or has no endpoint or bucket.
func NewArchive(cfg *config.O3Config, service string) (*Archive, error) {
	if cfg == nil || cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, nil
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	client := s3.NewFromConfig(aws.Config{
		Region:      region,
		Credentials: aws.NewCredentialsCache(creds),
	}, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})
	if service == "" {
		service = "default"
	}
	return &Archive{client: client, bucket: cfg.Bucket, prefix: path.Join("logs", service)}, nil
}

// EnsureBucket creates the bucket unless it already exists.
func (a *Archive) EnsureBucket(ctx context.Context) error {
	if a == nil {
		return nil
	}
	if _, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)}); err == nil {
		return nil
	}
	_, err := a.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(a.bucket)})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
				return nil
			}
		}
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	return nil
}

// KeyFor returns the object key of a batch written at t, e.g.
// logs/notes/2024/04/28/<batch>.json.gz.
func (a *Archive) KeyFor(batchID string, t time.Time) string {
	return path.Join(a.prefix, t.UTC().Format("2006/01/02"), batchID+".json.gz")
}

// PutBatch uploads entries as one gzipped JSON array and returns its key.
func (a *Archive) PutBatch(ctx context.Context, batchID string, entries []model.LogEntry) (string, error) {
	if a == nil {
		return "", ErrNotConfigured
	}
	data, err := EncodeBatch(entries)
	if err != nil {
		return "", err
	}
	key := a.KeyFor(batchID, time.Now())
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(batchContentType),
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}

// ObjectInfo describes one archived batch.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// List returns the batches under prefix. An empty prefix lists the whole
// archive of this service.
func (a *Archive) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if a == nil {
		return nil, ErrNotConfigured
	}
	if prefix == "" {
		prefix = a.prefix + "/"
	}
	out, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, err
	}
	result := make([]ObjectInfo, 0, len(out.Contents))
	for _, o := range out.Contents {
		info := ObjectInfo{Key: aws.ToString(o.Key), Size: aws.ToInt64(o.Size)}
		if o.LastModified != nil {
			info.LastModified = *o.LastModified
		}
		result = append(result, info)
	}
	return result, nil
}

// Entries downloads and decodes one batch.
func (a *Archive) Entries(ctx context.Context, key string) ([]model.LogEntry, error) {
	if a == nil {
		return nil, ErrNotConfigured
	}
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return DecodeBatch(raw)
}

// EncodeBatch gzips entries as a JSON array.
func EncodeBatch(entries []model.LogEntry) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(entries); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeBatch reverses EncodeBatch.
func DecodeBatch(raw []byte) ([]model.LogEntry, error) {
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer zr.Close()
	var entries []model.LogEntry
	if err := json.NewDecoder(zr).Decode(&entries); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	return entries, nil
}
