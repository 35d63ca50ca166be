package storage

import (
	"context"
	"errors"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/tasknest/apiserver/config"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSClient keeps export snapshots in a Google Cloud Storage bucket.
type GCSClient struct {
	client    *storage.Client
	bucket    string
	projectID string
}

// NewGCSClient constructs a GCS client from config.
func NewGCSClient(ctx context.Context, cfg config.GCSConfig) (*GCSClient, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return &GCSClient{client: client, bucket: cfg.Bucket, projectID: cfg.ProjectID}, nil
}

// EnsureBucket creates the bucket when it does not exist and a project id is known.
func (g *GCSClient) EnsureBucket(ctx context.Context) error {
	_, err := g.client.Bucket(g.bucket).Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return err
	}
	if strings.TrimSpace(g.projectID) == "" {
		return errors.New("gcs project id is required to create bucket")
	}
	return g.client.Bucket(g.bucket).Create(ctx, g.projectID, nil)
}

// Put uploads obj. Metadata becomes custom object metadata.
func (g *GCSClient) Put(ctx context.Context, obj Object) error {
	writer := g.client.Bucket(g.bucket).Object(obj.Key).NewWriter(ctx)
	writer.ContentType = obj.ContentType
	writer.Metadata = obj.Metadata
	if _, err := io.Copy(writer, obj.Body); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

func (g *GCSClient) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	handle := g.client.Bucket(g.bucket).Object(key)
	attrs, err := handle.Attrs(ctx)
	if err != nil {
		return nil, ObjectInfo{}, gcsErr(err)
	}
	reader, err := handle.Generation(attrs.Generation).NewReader(ctx)
	if err != nil {
		return nil, ObjectInfo{}, gcsErr(err)
	}
	return reader, gcsInfo(attrs), nil
}

func (g *GCSClient) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	attrs, err := g.client.Bucket(g.bucket).Object(key).Attrs(ctx)
	if err != nil {
		return ObjectInfo{}, gcsErr(err)
	}
	return gcsInfo(attrs), nil
}

func (g *GCSClient) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, gcsInfo(attrs))
	}
}

func (g *GCSClient) Delete(ctx context.Context, key string) error {
	return gcsErr(g.client.Bucket(g.bucket).Object(key).Delete(ctx))
}

func (g *GCSClient) Bucket() string {
	return g.bucket
}

func gcsInfo(attrs *storage.ObjectAttrs) ObjectInfo {
	return ObjectInfo{
		Key:          attrs.Name,
		Size:         attrs.Size,
		ContentType:  attrs.ContentType,
		LastModified: attrs.Updated,
		Metadata:     normalizeMetadata(attrs.Metadata),
	}
}

func gcsErr(err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrNotFound
	}
	return err
}
