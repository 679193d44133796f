package services

import (
	"context"
	"sort"

	"github.com/yungbote/pointgen-backend/internal/auth"
	"github.com/yungbote/pointgen-backend/internal/domain/generation"
	"github.com/yungbote/pointgen-backend/internal/observability"
	"github.com/yungbote/pointgen-backend/internal/platform/apierr"
	"github.com/yungbote/pointgen-backend/internal/platform/logger"
)

// ArtifactLister is the read side of the storage gateway.
type ArtifactLister interface {
	List(ctx context.Context, owner string) ([]generation.StoredArtifact, error)
}

type CatalogService interface {
	// ListForIdentity returns identity's artifacts, newest first with filename as tie-break.
	// An unknown identity yields an empty slice.
	ListForIdentity(ctx context.Context, identity string) ([]generation.StoredArtifact, error)
}

type catalogService struct {
	log     *logger.Logger
	store   ArtifactLister
	metrics *observability.Metrics
}

func NewCatalogService(baseLog *logger.Logger, store ArtifactLister, metrics *observability.Metrics) CatalogService {
	return &catalogService{
		log:     baseLog.With("service", "CatalogService"),
		store:   store,
		metrics: metrics,
	}
}

func (cs *catalogService) ListForIdentity(ctx context.Context, identity string) ([]generation.StoredArtifact, error) {
	if err := auth.ValidateIdentity(identity); err != nil {
		return nil, apierr.InvalidRequest("invalid_user_id", err)
	}
	items, err := cs.store.List(ctx, identity)
	if err != nil {
		cs.metrics.ObserveCatalogList("error")
		cs.log.Error("Catalog listing failed", "owner_id", identity, "error", err)
		return nil, err
	}
	if items == nil {
		items = []generation.StoredArtifact{}
	}
	sortArtifacts(items)
	cs.metrics.ObserveCatalogList("ok")
	return items, nil
}

func sortArtifacts(items []generation.StoredArtifact) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].Filename < items[j].Filename
	})
}
