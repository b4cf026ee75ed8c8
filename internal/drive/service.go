package drive

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/andresuchdata/rollstats/internal/domain"
	"github.com/andresuchdata/rollstats/internal/storage"
)

const (
	listFields = "nextPageToken, files(id, name, mimeType, modifiedTime, createdTime, size)"
	pageSize   = 100

	// Drive allows 10 requests/sec/user.
	defaultRequestsPerSecond = 8
	defaultBurst             = 10
)

// Client implements storage.Remote against the Google Drive v3 API.
type Client struct {
	srv     *drive.Service
	limiter *rate.Limiter
}

type ClientOption func(*Client)

// WithRateLimit overrides the request rate towards Drive.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewClient authenticates with a service account and returns a Drive client.
func NewClient(ctx context.Context, credentialsJSON []byte, opts ...ClientOption) (*Client, error) {
	config, err := google.JWTConfigFromJSON(credentialsJSON, drive.DriveScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse service account credentials: %w", err)
	}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Drive client: %w", err)
	}

	return NewClientFromService(srv, opts...), nil
}

// NewClientFromService wraps an existing Drive service.
func NewClientFromService(srv *drive.Service, opts ...ClientOption) *Client {
	c := &Client{
		srv:     srv,
		limiter: rate.NewLimiter(defaultRequestsPerSecond, defaultBurst),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListFiles returns every non-trashed child of folderID, following pagination.
func (c *Client) ListFiles(ctx context.Context, folderID string) ([]domain.RemoteFile, error) {
	if folderID == "" {
		folderID = "root"
	}

	var (
		files     []domain.RemoteFile
		pageToken string
	)
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		call := c.srv.Files.List().
			Context(ctx).
			Q(childrenQuery(folderID)).
			Fields(listFields).
			PageSize(pageSize).
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		result, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("unable to list folder %s: %w", folderID, classify(err))
		}

		for _, f := range result.Files {
			files = append(files, toRemoteFile(f))
		}

		if result.NextPageToken == "" {
			return files, nil
		}
		pageToken = result.NextPageToken
	}
}

// DownloadFile streams the content of fileID into w.
func (c *Client) DownloadFile(ctx context.Context, fileID string, w io.Writer) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.srv.Files.Get(fileID).Context(ctx).SupportsAllDrives(true).Download()
	if err != nil {
		return fmt.Errorf("unable to download file %s: %w", fileID, classify(err))
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("unable to read file %s: %w", fileID, err)
	}
	return nil
}

// UploadFile creates name inside folderID with the content of r.
func (c *Client) UploadFile(ctx context.Context, name string, r io.Reader, folderID string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	created, err := c.srv.Files.Create(&drive.File{
		Name:    name,
		Parents: []string{folderID},
	}).Context(ctx).Media(r).Fields("id").SupportsAllDrives(true).Do()
	if err != nil {
		return "", fmt.Errorf("unable to upload %s: %w", name, classify(err))
	}
	return created.Id, nil
}

// FindFolder looks up a folder by exact name directly under parentID.
func (c *Client) FindFolder(ctx context.Context, name, parentID string) (string, bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", false, err
	}

	result, err := c.srv.Files.List().
		Context(ctx).
		Q(folderQuery(name, parentID)).
		Fields("files(id, name)").
		PageSize(1).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Do()
	if err != nil {
		return "", false, fmt.Errorf("error finding folder %s: %w", name, classify(err))
	}
	if len(result.Files) == 0 {
		return "", false, nil
	}
	return result.Files[0].Id, true, nil
}

// CreateFolder creates a folder named name under parentID.
func (c *Client) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	created, err := c.srv.Files.Create(&drive.File{
		Name:     name,
		MimeType: domain.FolderMimeType,
		Parents:  []string{parentID},
	}).Context(ctx).Fields("id").SupportsAllDrives(true).Do()
	if err != nil {
		return "", fmt.Errorf("error creating folder %s: %w", name, classify(err))
	}
	return created.Id, nil
}

// toRemoteFile converts a listing entry. A missing modifiedTime falls back to
// createdTime. With neither the time is left zero and the cache stamps it on
// first registration, so the file never compares as newer afterwards.
func toRemoteFile(f *drive.File) domain.RemoteFile {
	return domain.RemoteFile{
		ID:           f.Id,
		Name:         f.Name,
		ModifiedTime: fileTime(f),
		MimeType:     f.MimeType,
		Size:         f.Size,
	}
}

func fileTime(f *drive.File) time.Time {
	for _, raw := range []string{f.ModifiedTime, f.CreatedTime} {
		if raw == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func childrenQuery(folderID string) string {
	return fmt.Sprintf("'%s' in parents and trashed=false", escapeQuery(folderID))
}

func folderQuery(name, parentID string) string {
	return fmt.Sprintf("'%s' in parents and name='%s' and mimeType='%s' and trashed=false",
		escapeQuery(parentID), escapeQuery(name), domain.FolderMimeType)
}

// escapeQuery escapes a value for use inside a single-quoted Drive query string.
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

var _ storage.Remote = (*Client)(nil)
