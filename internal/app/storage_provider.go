package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/pointgen-backend/internal/config"
	"github.com/yungbote/pointgen-backend/internal/observability"
	"github.com/yungbote/pointgen-backend/internal/platform/gcp"
	"github.com/yungbote/pointgen-backend/internal/platform/logger"
	"github.com/yungbote/pointgen-backend/internal/storage"
)

var newBucketServiceWithConfig = gcp.NewBucketServiceWithConfig

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidMode         StorageProviderBootstrapErrorCode = "invalid_mode"
	StorageProviderBootstrapErrorMissingEmulatorHost StorageProviderBootstrapErrorCode = "missing_emulator_host"
	StorageProviderBootstrapErrorInvalidEmulatorHost StorageProviderBootstrapErrorCode = "invalid_emulator_host"
	StorageProviderBootstrapErrorMissingBucket       StorageProviderBootstrapErrorCode = "missing_bucket"
	StorageProviderBootstrapErrorConnectFailed       StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code         StorageProviderBootstrapErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf(
		"object storage bootstrap failed (code=%s mode=%q emulator_host=%q): %v",
		e.Code,
		e.Mode,
		e.EmulatorHost,
		e.Cause,
	)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveBucketService creates the remote tier. Every failure comes back as a
// *StorageProviderBootstrapError so the caller can log a stable code and carry on locally.
func resolveBucketService(ctx context.Context, log *logger.Logger, cfg config.StorageConfig, corsOrigins []string) (gcp.BucketService, error) {
	storageCfg, err := gcp.ResolveObjectStorageConfig(cfg.Mode, cfg.EmulatorHost)
	if err != nil {
		classified := classifyStorageProviderBootstrapError(storageCfg, err)
		log.Error(
			"Object storage provider selection failed",
			"mode", strings.TrimSpace(cfg.Mode),
			"emulator_host", storageCfg.EmulatorHost,
			"error_code", storageProviderBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}
	modeSource := storageCfg.ModeSource()

	log.Info(
		"Selecting object storage provider",
		"mode", storageCfg.Mode,
		"mode_source", modeSource,
		"compatibility_fallback", storageCfg.CompatibilityFallback,
		"emulator_host", storageCfg.EmulatorHost,
		"bucket", cfg.Bucket,
	)

	bucket, err := newBucketServiceWithConfig(ctx, log, gcp.BucketConfig{
		Storage:     storageCfg,
		Bucket:      cfg.Bucket,
		ProjectID:   cfg.ProjectID,
		Location:    cfg.Location,
		CORSOrigins: corsOrigins,
	})
	if err != nil {
		classified := classifyStorageProviderBootstrapError(storageCfg, err)
		log.Error(
			"Object storage provider bootstrap failed",
			"mode", storageCfg.Mode,
			"mode_source", modeSource,
			"compatibility_fallback", storageCfg.CompatibilityFallback,
			"emulator_host", storageCfg.EmulatorHost,
			"error_code", storageProviderBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}
	return bucket, nil
}

func classifyStorageProviderBootstrapError(storageCfg gcp.ObjectStorageConfig, err error) error {
	code := StorageProviderBootstrapErrorConnectFailed
	var cfgErr *gcp.ObjectStorageConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Code {
		case gcp.ObjectStorageConfigErrorInvalidMode:
			code = StorageProviderBootstrapErrorInvalidMode
		case gcp.ObjectStorageConfigErrorMissingEmulatorHost:
			code = StorageProviderBootstrapErrorMissingEmulatorHost
		case gcp.ObjectStorageConfigErrorInvalidEmulatorHost:
			code = StorageProviderBootstrapErrorInvalidEmulatorHost
		case gcp.ObjectStorageConfigErrorMissingBucket:
			code = StorageProviderBootstrapErrorMissingBucket
		}
	}
	mode := string(storageCfg.Mode)
	if mode == "" && cfgErr != nil {
		mode = cfgErr.Mode
	}
	return &StorageProviderBootstrapError{
		Code:         code,
		Mode:         mode,
		EmulatorHost: storageCfg.EmulatorHost,
		Cause:        err,
	}
}

func storageProviderBootstrapErrorCode(err error) StorageProviderBootstrapErrorCode {
	var bootstrapErr *StorageProviderBootstrapError
	if errors.As(err, &bootstrapErr) {
		if bootstrapErr.Code != "" {
			return bootstrapErr.Code
		}
	}
	return StorageProviderBootstrapErrorConnectFailed
}

// buildStorageGateway always returns a usable gateway when the local scratch directory can be
// created. A remote tier that cannot start only disables remote writes for this process.
func buildStorageGateway(ctx context.Context, log *logger.Logger, cfg *config.Config, metrics *observability.Metrics) (*storage.Gateway, error) {
	local, err := storage.NewLocalStore(cfg.Storage.LocalDir, storage.Layout(cfg.Storage.LocalLayout))
	if err != nil {
		return nil, fmt.Errorf("init local storage: %w", err)
	}

	opts := storage.Options{
		Local:         local,
		SignedURLTTL:  cfg.Storage.SignedURLTTL.Duration,
		CatalogURLTTL: cfg.Storage.CatalogURLTTL.Duration,
		PublicBaseURL: cfg.HTTP.PublicBaseURL,
		Metrics:       metrics,
	}

	if !cfg.Storage.RemoteEnabled {
		return storage.NewGateway(log, opts)
	}

	bucket, err := resolveBucketService(ctx, log, cfg.Storage, cfg.HTTP.CORSAllowedOrigins)
	if err != nil {
		opts.RemoteInitErr = err
		return storage.NewGateway(log, opts)
	}
	if err := bucket.EnsureBucket(ctx); err != nil {
		log.Warn("Ensure bucket failed (continuing with remote storage)", "bucket", bucket.BucketName(), "error", err)
	}
	log.Info("Remote storage ready",
		"bucket", bucket.BucketName(),
		"signed_url_ttl", opts.SignedURLTTL,
		"catalog_url_ttl", opts.CatalogURLTTL,
	)
	opts.Bucket = bucket
	return storage.NewGateway(log, opts)
}
