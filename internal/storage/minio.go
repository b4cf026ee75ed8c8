package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/andresuchdata/rollstats/internal/domain"
)

// MinioConfig encapsulates the connection info for an S3-compatible bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// MinioClient implements Remote on top of an S3-compatible bucket. Folder ids
// are key prefixes ending in "/", file ids are object keys.
type MinioClient struct {
	client *minio.Client
	bucket string
}

// NewMinioClient builds a MinioClient for cfg.
func NewMinioClient(cfg MinioConfig) (*MinioClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint must be provided")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio credentials must be provided")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket must be provided")
	}

	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	return &MinioClient{client: client, bucket: cfg.Bucket}, nil
}

// FolderID turns a plain prefix such as "data" into the folder id form used by MinioClient.
func FolderID(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

func childPrefix(parentID, name string) string {
	return FolderID(path.Join(parentID, name))
}

func objectToRemoteFile(folderID string, obj minio.ObjectInfo) (domain.RemoteFile, bool) {
	if obj.Key == folderID {
		return domain.RemoteFile{}, false
	}
	if strings.HasSuffix(obj.Key, "/") {
		return domain.RemoteFile{
			ID:       obj.Key,
			Name:     path.Base(strings.TrimSuffix(obj.Key, "/")),
			MimeType: domain.FolderMimeType,
		}, true
	}
	return domain.RemoteFile{
		ID:           obj.Key,
		Name:         path.Base(obj.Key),
		ModifiedTime: obj.LastModified.UTC(),
		MimeType:     obj.ContentType,
		Size:         obj.Size,
	}, true
}

// ListFiles lists objects and sub-prefixes directly under folderID.
func (c *MinioClient) ListFiles(ctx context.Context, folderID string) ([]domain.RemoteFile, error) {
	var files []domain.RemoteFile
	for obj := range c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: folderID}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("minio list %s failed: %w", folderID, obj.Err)
		}
		if f, ok := objectToRemoteFile(folderID, obj); ok {
			files = append(files, f)
		}
	}
	return files, nil
}

// DownloadFile streams the object fileID into w.
func (c *MinioClient) DownloadFile(ctx context.Context, fileID string, w io.Writer) error {
	obj, err := c.client.GetObject(ctx, c.bucket, fileID, minio.GetObjectOptions{})
	if err != nil {
		return mapMinioError(fileID, err)
	}
	defer obj.Close()

	if _, err := io.Copy(w, obj); err != nil {
		return mapMinioError(fileID, err)
	}
	return nil
}

// UploadFile stores r as <folderID><name>.
func (c *MinioClient) UploadFile(ctx context.Context, name string, r io.Reader, folderID string) (string, error) {
	key := folderID + name
	r, size, err := sizedReader(r)
	if err != nil {
		return "", fmt.Errorf("minio upload %s failed: %w", key, err)
	}

	_, err = c.client.PutObject(ctx, c.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType(name),
	})
	if err != nil {
		return "", fmt.Errorf("minio upload %s failed: %w", key, err)
	}
	return key, nil
}

// FindFolder reports whether any object exists under parentID/name/.
func (c *MinioClient) FindFolder(ctx context.Context, name, parentID string) (string, bool, error) {
	prefix := childPrefix(parentID, name)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for obj := range c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix, MaxKeys: 1}) {
		if obj.Err != nil {
			return "", false, fmt.Errorf("minio find folder %s failed: %w", prefix, obj.Err)
		}
		return prefix, true, nil
	}
	return "", false, nil
}

// CreateFolder writes an empty marker object so the prefix shows up in listings.
func (c *MinioClient) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	prefix := childPrefix(parentID, name)
	_, err := c.client.PutObject(ctx, c.bucket, prefix, bytes.NewReader(nil), 0, minio.PutObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("minio create folder %s failed: %w", prefix, err)
	}
	return prefix, nil
}

// sizedReader returns r with its length so PutObject can send a single PUT.
// Readers that cannot report a length are buffered.
func sizedReader(r io.Reader) (io.Reader, int64, error) {
	switch v := r.(type) {
	case interface{ Stat() (os.FileInfo, error) }:
		info, err := v.Stat()
		if err == nil && info.Mode().IsRegular() {
			return r, info.Size(), nil
		}
	case interface{ Len() int }:
		return r, int64(v.Len()), nil
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(buf.Bytes()), int64(buf.Len()), nil
}

func mapMinioError(key string, err error) error {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) && (resp.Code == "NoSuchKey" || resp.StatusCode == 404) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return fmt.Errorf("minio download %s failed: %w", key, err)
}

func contentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".png":
		return "image/png"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}

var _ Remote = (*MinioClient)(nil)
