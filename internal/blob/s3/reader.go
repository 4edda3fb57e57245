package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// Reader serves archived runs and reports back to the API.
type Reader struct {
	client *s3.Client
	bucket string
}

var _ domain.ObjectReader = (*Reader)(nil)

// NewReader creates a Reader on the client's bucket.
func NewReader(c *Client) *Reader {
	return &Reader{client: c.S3(), bucket: c.Bucket()}
}

// Open streams the object at key. The caller closes the body. A missing key
// yields domain.ErrNotFound.
func (r *Reader) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3blob: open %s: %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("s3blob: open %s: %w", key, err)
	}
	return out.Body, nil
}

// List pages through every key under prefix and returns the newest limit
// objects. Run directories are timestamped, so newest-first is also the
// order an operator wants to browse them in.
func (r *Reader) List(ctx context.Context, prefix string, limit int) ([]domain.ArchivedObject, error) {
	var objs []domain.ArchivedObject
	pages := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list %s: %w", prefix, err)
		}
		for _, o := range page.Contents {
			obj := domain.ArchivedObject{
				Key:  aws.ToString(o.Key),
				Size: aws.ToInt64(o.Size),
			}
			if o.LastModified != nil {
				obj.ModifiedAt = o.LastModified.UTC()
			}
			objs = append(objs, obj)
		}
	}
	return newestFirst(objs, limit), nil
}

func newestFirst(objs []domain.ArchivedObject, limit int) []domain.ArchivedObject {
	sort.SliceStable(objs, func(i, j int) bool {
		if !objs[i].ModifiedAt.Equal(objs[j].ModifiedAt) {
			return objs[i].ModifiedAt.After(objs[j].ModifiedAt)
		}
		return objs[i].Key > objs[j].Key
	})
	if limit > 0 && len(objs) > limit {
		objs = objs[:limit]
	}
	return objs
}

// isNotFound matches NoSuchKey, the bare 404 some S3-compatible servers
// return, and the NotFound API error code.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
		return true
	}
	var status interface{ HTTPStatusCode() int }
	return errors.As(err, &status) && status.HTTPStatusCode() == http.StatusNotFound
}
