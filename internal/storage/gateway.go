// Package storage decides where generated artifacts live: a remote bucket when it is healthy, the
// local scratch directory otherwise.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/pointgen-backend/internal/domain/generation"
	"github.com/yungbote/pointgen-backend/internal/observability"
	"github.com/yungbote/pointgen-backend/internal/platform/apierr"
	"github.com/yungbote/pointgen-backend/internal/platform/gcp"
	"github.com/yungbote/pointgen-backend/internal/platform/logger"
)

type Options struct {
	// Bucket is the remote tier. Nil means remote storage is off for this process.
	Bucket gcp.BucketService
	// RemoteInitErr records why the remote tier could not be created, for diagnostics.
	RemoteInitErr error
	Local         *LocalStore

	SignedURLTTL  time.Duration
	CatalogURLTTL time.Duration
	// PublicBaseURL makes local download URLs absolute when set.
	PublicBaseURL string

	Metrics *observability.Metrics
	Now     func() time.Time
}

type PutRequest struct {
	OwnerID     string
	Filename    string
	Kind        generation.Kind
	ContentType string
	Data        []byte
}

// Gateway holds no artifact state of its own; the backends are the source of truth.
type Gateway struct {
	log           *logger.Logger
	bucket        gcp.BucketService
	remoteInitErr error
	local         *LocalStore
	signedTTL     time.Duration
	catalogTTL    time.Duration
	publicBase    string
	metrics       *observability.Metrics
	now           func() time.Time
}

func NewGateway(log *logger.Logger, opts Options) (*Gateway, error) {
	if opts.Local == nil {
		return nil, errors.New("storage gateway requires a local tier")
	}
	g := &Gateway{
		log:           log.With("service", "StorageGateway"),
		bucket:        opts.Bucket,
		remoteInitErr: opts.RemoteInitErr,
		local:         opts.Local,
		signedTTL:     opts.SignedURLTTL,
		catalogTTL:    opts.CatalogURLTTL,
		publicBase:    strings.TrimRight(opts.PublicBaseURL, "/"),
		metrics:       opts.Metrics,
		now:           opts.Now,
	}
	if g.signedTTL <= 0 {
		g.signedTTL = gcp.MaxSignedURLTTL
	}
	if g.catalogTTL <= 0 {
		g.catalogTTL = time.Hour
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.bucket == nil {
		if g.remoteInitErr != nil {
			g.log.Warn("Remote storage disabled for this process; using local storage", "error", g.remoteInitErr)
		} else {
			g.log.Info("Remote storage not configured; using local storage", "dir", g.local.Dir(), "layout", g.local.Layout())
		}
	}
	return g, nil
}

func (g *Gateway) RemoteEnabled() bool { return g.bucket != nil }

// Describe names the active primary tier for service info responses.
func (g *Gateway) Describe() string {
	if g.RemoteEnabled() {
		return "Google Cloud Storage"
	}
	return "Local storage"
}

func (g *Gateway) Local() *LocalStore { return g.local }

// Put stores req under its owner's namespace. The remote tier is tried first when enabled; a
// failure there is absorbed once by writing locally, and the artifact is marked FallbackUsed.
// Only a local failure is returned, as StorageFailure.
func (g *Gateway) Put(ctx context.Context, req PutRequest) (*generation.StoredArtifact, error) {
	if err := ValidateSegment(req.OwnerID); err != nil {
		return nil, apierr.InvalidRequest("invalid_user_id", err)
	}
	if err := ValidateSegment(req.Filename); err != nil {
		return nil, apierr.InvalidRequest("invalid_filename", err)
	}
	ctx, span := observability.StartSpan(ctx, "storage.Put",
		attribute.String("artifact.kind", string(req.Kind)),
		attribute.Int("artifact.size", len(req.Data)),
	)
	defer span.End()

	now := g.now()
	fallback := false
	if g.bucket != nil {
		art, err := g.putRemote(ctx, req, now)
		if err == nil {
			g.metrics.ObserveStoragePut(string(generation.TierRemote), "ok")
			span.SetAttributes(attribute.String("storage.tier", string(art.Tier)))
			return art, nil
		}
		g.metrics.ObserveStoragePut(string(generation.TierRemote), "error")
		g.metrics.IncStorageFallback()
		span.RecordError(err)
		g.log.Warn("Remote storage write failed; falling back to local storage",
			"owner_id", req.OwnerID,
			"filename", req.Filename,
			"error", err,
		)
		fallback = true
	}

	art, err := g.putLocal(req, now)
	if err != nil {
		g.metrics.ObserveStoragePut(string(generation.TierLocal), "error")
		span.SetStatus(codes.Error, "local write failed")
		return nil, apierr.StorageFailure("storage_failure", err)
	}
	g.metrics.ObserveStoragePut(string(generation.TierLocal), "ok")
	art.FallbackUsed = fallback
	span.SetAttributes(attribute.String("storage.tier", string(art.Tier)), attribute.Bool("storage.fallback", fallback))
	return art, nil
}

func (g *Gateway) putRemote(ctx context.Context, req PutRequest, now time.Time) (*generation.StoredArtifact, error) {
	key := RemoteKey(req.OwnerID, req.Filename, now)
	attrs, err := g.bucket.UploadObject(ctx, key, bytes.NewReader(req.Data), req.ContentType)
	if err != nil {
		return nil, err
	}
	url, expires, err := g.bucket.AccessURL(key, g.signedTTL)
	if err != nil {
		// An object the caller cannot reach must not show up in the catalog.
		if delErr := g.bucket.DeleteObject(context.WithoutCancel(ctx), key); delErr != nil {
			g.log.Error("Failed to remove unsigned remote object", "key", key, "error", delErr)
		}
		return nil, err
	}
	size := int64(len(req.Data))
	created := now.UTC()
	if attrs != nil {
		if attrs.Size > 0 {
			size = attrs.Size
		}
		if !attrs.Created.IsZero() {
			created = attrs.Created.UTC()
		}
	}
	return &generation.StoredArtifact{
		OwnerID:     req.OwnerID,
		Filename:    req.Filename,
		StoragePath: key,
		Tier:        generation.TierRemote,
		Kind:        req.Kind,
		CreatedAt:   created,
		SizeBytes:   size,
		AccessURL:   url,
		ExpiresAt:   expires,
	}, nil
}

func (g *Gateway) putLocal(req PutRequest, now time.Time) (*generation.StoredArtifact, error) {
	rel, err := g.local.Put(req.OwnerID, req.Filename, req.Data)
	if err != nil {
		return nil, err
	}
	dl := "/download/" + rel
	access := dl
	if g.publicBase != "" {
		access = g.publicBase + dl
	}
	return &generation.StoredArtifact{
		OwnerID:      req.OwnerID,
		Filename:     req.Filename,
		StoragePath:  rel,
		Tier:         generation.TierLocal,
		Kind:         req.Kind,
		CreatedAt:    now.UTC(),
		SizeBytes:    int64(len(req.Data)),
		AccessURL:    access,
		DownloadPath: dl,
	}, nil
}

// List returns every artifact stored remotely for owner, unordered. It never consults the local
// tier, and it returns an empty slice when remote storage is off.
func (g *Gateway) List(ctx context.Context, owner string) ([]generation.StoredArtifact, error) {
	out := []generation.StoredArtifact{}
	if g.bucket == nil {
		return out, nil
	}
	if err := ValidateSegment(owner); err != nil {
		return out, nil
	}
	ctx, span := observability.StartSpan(ctx, "storage.List")
	defer span.End()

	objs, err := g.bucket.ListObjects(ctx, OwnerPrefix(owner))
	if err != nil {
		span.RecordError(err)
		return nil, apierr.StorageFailure("storage_list_failed", fmt.Errorf("list %s: %w", OwnerPrefix(owner), err))
	}
	for _, o := range objs {
		name := path.Base(o.Name)
		if !strings.HasSuffix(name, generation.FileExtension) {
			continue
		}
		created := o.Created
		if created.IsZero() {
			created = o.Updated
		}
		art := generation.StoredArtifact{
			OwnerID:     owner,
			Filename:    name,
			StoragePath: o.Name,
			Tier:        generation.TierRemote,
			Kind:        generation.KindFromFilename(name),
			CreatedAt:   created.UTC(),
			SizeBytes:   o.Size,
		}
		if url, exp, err := g.bucket.AccessURL(o.Name, g.catalogTTL); err == nil {
			art.AccessURL = url
			art.ExpiresAt = exp
		} else {
			g.log.Warn("Could not issue access url for listed object", "key", o.Name, "error", err)
		}
		out = append(out, art)
	}
	return out, nil
}

// Open reads back a stored artifact from whichever tier holds it.
func (g *Gateway) Open(ctx context.Context, a generation.StoredArtifact) (io.ReadCloser, error) {
	switch a.Tier {
	case generation.TierRemote:
		if g.bucket == nil {
			return nil, apierr.NotFound("artifact_not_found", errors.New("remote storage is disabled"))
		}
		return g.bucket.DownloadObject(ctx, a.StoragePath)
	case generation.TierLocal:
		owner := ""
		if dir := path.Dir(a.StoragePath); dir != "." {
			owner = dir
		}
		f, _, err := g.local.Open(owner, path.Base(a.StoragePath))
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unknown storage tier %q", a.Tier)
	}
}

func (g *Gateway) Close() error {
	if g.bucket == nil {
		return nil
	}
	return g.bucket.Close()
}
