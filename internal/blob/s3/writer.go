package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// multipartThreshold is the S3 minimum part size. Bodies above it, or of
// unknown length, go through the upload manager.
const multipartThreshold int64 = 5 * 1024 * 1024

// Writer uploads journals and reports. Objects are tagged with the app name
// so a shared bucket can be filtered by lifecycle rules.
type Writer struct {
	client   *s3.Client
	bucket   string
	uploader *manager.Uploader
}

var _ domain.ObjectWriter = (*Writer)(nil)

// NewWriter creates a Writer on the client's bucket.
func NewWriter(c *Client) *Writer {
	return &Writer{
		client: c.S3(),
		bucket: c.Bucket(),
		uploader: manager.NewUploader(c.S3(), func(u *manager.Uploader) {
			u.PartSize = multipartThreshold
			u.Concurrency = 2
		}),
	}
}

// Upload stores body at key, choosing a single PUT or a multipart upload by
// size.
func (w *Writer) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
		Metadata:    map[string]string{"app": "futuresbot"},
	}

	if size < 0 || size > multipartThreshold {
		if _, err := w.uploader.Upload(ctx, input); err != nil {
			return fmt.Errorf("s3blob: multipart upload %s: %w", key, err)
		}
		return nil
	}

	input.ContentLength = aws.Int64(size)
	if _, err := w.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3blob: put %s: %w", key, err)
	}
	return nil
}
