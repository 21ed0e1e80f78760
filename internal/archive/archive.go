// Package archive is the optional batch archival writer: every inserted
// batch is also written verbatim, gzip-compressed, to S3-compatible
// object storage, giving an independent durable copy of raw rows
// alongside the column store. Wired in only when ARCHIVE_S3_BUCKET is
// set (§6); supplements the spec's Sink-only persistence with the
// original ingestion pipeline's dual-write behavior.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"itko.dev/internal/model"
)

// Writer archives batches of rows to one object per batch.
type Writer struct {
	client *s3.Client
	bucket string
}

// New returns a Writer for bucket at endpoint/region, using static
// credentials the way the teacher's S3Storage constructs its client for
// an S3-compatible (e.g. MinIO) endpoint.
func New(region, bucket, endpoint, accessKey, secretKey string) *Writer {
	cfg := aws.Config{
		Credentials:  credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		BaseEndpoint: aws.String(endpoint),
		Region:       region,
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return &Writer{client: client, bucket: bucket}
}

// Write archives rows for logName covering entry range [start, end] under
// a key that sorts and groups naturally by range:
// <logName>/<start>-<end>-<uuid>.json.gz. The uuid disambiguates retries
// of the same range after a crash (§4.7's at-least-once reprocessing), so
// a replayed batch never overwrites the first archive object for that
// range.
func (w *Writer) Write(ctx context.Context, logName string, start, end uint64, rows []model.DomainRow) error {
	if len(rows) == 0 {
		return nil
	}

	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("marshal archive batch: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return fmt.Errorf("gzip archive batch: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("close gzip writer: %w", err)
	}

	key := fmt.Sprintf("%s/%d-%d-%s.json.gz", logName, start, end, uuid.NewString())
	_, err = w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(buf.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("archive put %s: %w", key, err)
	}
	return nil
}
