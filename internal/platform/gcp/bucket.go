package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/yungbote/pointgen-backend/internal/platform/logger"
)

// BucketService is a single-bucket object store client.
type BucketService interface {
	// UploadObject writes data to key. The object only becomes visible once the write completes.
	UploadObject(ctx context.Context, key string, data io.Reader, contentType string) (*ObjectAttrs, error)
	DeleteObject(ctx context.Context, key string) error
	DownloadObject(ctx context.Context, key string) (io.ReadCloser, error)
	ListObjects(ctx context.Context, prefix string) ([]ObjectAttrs, error)
	// AccessURL returns a time-limited GET URL for key. The zero expiry means the URL does not expire.
	AccessURL(key string, ttl time.Duration) (string, time.Time, error)
	EnsureBucket(ctx context.Context) error
	BucketName() string
	Close() error
}

type ObjectAttrs struct {
	Name        string
	Size        int64
	ContentType string
	Created     time.Time
	Updated     time.Time
	ETag        string
}

type BucketConfig struct {
	Storage   ObjectStorageConfig
	Bucket    string
	ProjectID string
	Location  string
	// CORSOrigins is applied to the bucket by EnsureBucket; empty means "*".
	CORSOrigins []string
}

type bucketService struct {
	log           *logger.Logger
	storageClient *storage.Client
	storageMode   ObjectStorageMode
	emulatorHost  string
	bucket        string
	projectID     string
	location      string
	corsOrigins   []string
	now           func() time.Time
}

func NewBucketServiceWithConfig(ctx context.Context, log *logger.Logger, cfg BucketConfig) (BucketService, error) {
	if err := ValidateObjectStorageConfig(cfg.Storage); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, &ObjectStorageConfigError{Code: ObjectStorageConfigErrorMissingBucket, Mode: string(cfg.Storage.Mode)}
	}
	serviceLog := log.With("service", "BucketService")

	stClient, err := newStorageClientForMode(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	serviceLog.Info(
		"Object storage initialized",
		"mode", cfg.Storage.Mode,
		"mode_source", cfg.Storage.ModeSource(),
		"emulator_host", cfg.Storage.EmulatorHost,
		"bucket", cfg.Bucket,
	)

	return &bucketService{
		log:           serviceLog,
		storageClient: stClient,
		storageMode:   cfg.Storage.Mode,
		emulatorHost:  strings.TrimRight(strings.TrimSpace(cfg.Storage.EmulatorHost), "/"),
		bucket:        strings.TrimSpace(cfg.Bucket),
		projectID:     strings.TrimSpace(cfg.ProjectID),
		location:      strings.TrimSpace(cfg.Location),
		corsOrigins:   cfg.CORSOrigins,
		now:           time.Now,
	}, nil
}

func newStorageClientForMode(ctx context.Context, storageCfg ObjectStorageConfig) (*storage.Client, error) {
	switch storageCfg.Mode {
	case ObjectStorageModeGCS:
		opts := ClientOptionsFromEnv()
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		return storage.NewClient(ctx, opts...)
	case ObjectStorageModeGCSEmulator:
		endpoint := strings.TrimRight(strings.TrimSpace(storageCfg.EmulatorHost), "/")
		_ = os.Setenv("STORAGE_EMULATOR_HOST", endpoint)
		opts := []option.ClientOption{
			option.WithoutAuthentication(),
		}
		return storage.NewClient(ctx, opts...)
	default:
		return nil, &ObjectStorageConfigError{
			Code: ObjectStorageConfigErrorInvalidMode,
			Mode: string(storageCfg.Mode),
		}
	}
}

func (bs *bucketService) BucketName() string { return bs.bucket }

func (bs *bucketService) Close() error {
	if bs.storageClient == nil {
		return nil
	}
	return bs.storageClient.Close()
}

func (bs *bucketService) UploadObject(ctx context.Context, key string, data io.Reader, contentType string) (*ObjectAttrs, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := bs.storageClient.Bucket(bs.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, data); err != nil {
		// Cancelling before Close aborts the upload so no partial object is committed.
		cancel()
		_ = w.Close()
		return nil, fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return toObjectAttrs(w.Attrs()), nil
}

func (bs *bucketService) DeleteObject(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := bs.storageClient.Bucket(bs.bucket).Object(key).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", key, bs.bucket, err)
	}
	return nil
}

func (bs *bucketService) ListObjects(ctx context.Context, prefix string) ([]ObjectAttrs, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	it := bs.storageClient.Bucket(bs.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	out := []ObjectAttrs{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		if a := toObjectAttrs(attrs); a != nil {
			out = append(out, *a)
		}
	}
	return out, nil
}

func toObjectAttrs(attrs *storage.ObjectAttrs) *ObjectAttrs {
	if attrs == nil {
		return nil
	}
	return &ObjectAttrs{
		Name:        attrs.Name,
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		Created:     attrs.Created,
		Updated:     attrs.Updated,
		ETag:        attrs.Etag,
	}
}

// MaxSignedURLTTL is the GCS limit on V4 signed URL lifetimes.
const MaxSignedURLTTL = 7 * 24 * time.Hour

// AccessURL signs a V4 GET URL. The emulator cannot verify signatures, so in emulator mode the
// plain media URL is returned and does not expire.
func (bs *bucketService) AccessURL(key string, ttl time.Duration) (string, time.Time, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if bs.isEmulatorMode() {
		return bs.emulatorObjectMediaURL(bs.bucket, key), time.Time{}, nil
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("signed url ttl must be positive")
	}
	ttl = min(ttl, MaxSignedURLTTL)
	expires := bs.now().Add(ttl).UTC()
	u, err := bs.storageClient.Bucket(bs.bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: expires,
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign url for %q: %w", key, err)
	}
	return u, expires, nil
}

// EnsureBucket creates the bucket when missing (a project id is required for that) and applies a
// GET/HEAD CORS rule so browsers can fetch access URLs directly.
func (bs *bucketService) EnsureBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	bkt := bs.storageClient.Bucket(bs.bucket)
	_, err := bkt.Attrs(ctx)
	switch {
	case errors.Is(err, storage.ErrBucketNotExist):
		if bs.projectID == "" && !bs.isEmulatorMode() {
			return fmt.Errorf("bucket %q does not exist and no project id is configured to create it", bs.bucket)
		}
		project := bs.projectID
		if project == "" {
			project = "local-dev"
		}
		if err := bkt.Create(ctx, project, &storage.BucketAttrs{Location: bs.location}); err != nil {
			return fmt.Errorf("create bucket %q: %w", bs.bucket, err)
		}
		bs.log.Info("Created bucket", "bucket", bs.bucket, "location", bs.location)
	case err != nil:
		return fmt.Errorf("read bucket %q attrs: %w", bs.bucket, err)
	}

	origins := bs.corsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	_, err = bkt.Update(ctx, storage.BucketAttrsToUpdate{
		CORS: []storage.CORS{{
			Origins:         origins,
			Methods:         []string{http.MethodGet, http.MethodHead},
			ResponseHeaders: []string{"Content-Type", "Content-Length", "Content-Disposition"},
			MaxAge:          time.Hour,
		}},
	})
	if err != nil {
		return fmt.Errorf("update bucket %q cors: %w", bs.bucket, err)
	}
	return nil
}

// readCloserWithCancel ties a download's context to the reader, so the context lives until the
// caller closes the body.
type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

func (bs *bucketService) isEmulatorMode() bool {
	return bs != nil && bs.storageMode == ObjectStorageModeGCSEmulator && strings.TrimSpace(bs.emulatorHost) != ""
}

func (bs *bucketService) emulatorObjectMediaURL(bucket, key string) string {
	return fmt.Sprintf(
		"%s/storage/v1/b/%s/o/%s?alt=media",
		strings.TrimRight(strings.TrimSpace(bs.emulatorHost), "/"),
		url.PathEscape(bucket),
		url.PathEscape(key),
	)
}

func (bs *bucketService) DownloadObject(ctx context.Context, key string) (io.ReadCloser, error) {
	if bs.isEmulatorMode() {
		ctx2, cancel := context.WithTimeout(ctx, 2*time.Minute)
		req, err := http.NewRequestWithContext(ctx2, http.MethodGet, bs.emulatorObjectMediaURL(bs.bucket, key), nil)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed creating emulator download request: %w", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed emulator download request: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			_ = resp.Body.Close()
			cancel()
			return nil, fmt.Errorf("emulator download failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return &readCloserWithCancel{ReadCloser: resp.Body, cancel: cancel}, nil
	}
	ctx2, cancel := context.WithTimeout(ctx, 2*time.Minute)
	r, err := bs.storageClient.Bucket(bs.bucket).Object(key).NewReader(ctx2)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open GCS reader: %w", err)
	}
	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}
