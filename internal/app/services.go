package app

import (
	"github.com/yungbote/pointgen-backend/internal/config"
	"github.com/yungbote/pointgen-backend/internal/engine"
	"github.com/yungbote/pointgen-backend/internal/observability"
	"github.com/yungbote/pointgen-backend/internal/platform/logger"
	"github.com/yungbote/pointgen-backend/internal/readiness"
	"github.com/yungbote/pointgen-backend/internal/services"
	"github.com/yungbote/pointgen-backend/internal/storage"
)

type Services struct {
	Generation services.GenerationService
	Catalog    services.CatalogService
}

func wireServices(
	log *logger.Logger,
	cfg *config.Config,
	gate *readiness.Gate,
	eng engine.Engine,
	gateway *storage.Gateway,
	metrics *observability.Metrics,
) (Services, error) {
	log.Info("Wiring services...")

	policy, err := services.ParseSlotPolicy(cfg.Generation.SlotPolicy)
	if err != nil {
		return Services{}, err
	}
	log.Info("Capability slot policy", "policy", policy)
	slots := services.NewCapabilitySlots(policy, metrics)

	return Services{
		Generation: services.NewGenerationService(log, gate, eng, slots, gateway, services.GenerationLimits{
			MaxPromptLength: cfg.Generation.MaxPromptLength,
			MaxImageBytes:   cfg.Generation.MaxImageBytes,
		}, metrics),
		Catalog: services.NewCatalogService(log, gateway, metrics),
	}, nil
}
