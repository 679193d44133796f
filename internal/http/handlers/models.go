package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/pointgen-backend/internal/http/response"
	"github.com/yungbote/pointgen-backend/internal/pkg/pointers"
	"github.com/yungbote/pointgen-backend/internal/services"
)

type ModelsHandler struct {
	catalog services.CatalogService
}

func NewModelsHandler(catalog services.CatalogService) *ModelsHandler {
	return &ModelsHandler{catalog: catalog}
}

type ModelEntry struct {
	Filename    string     `json:"filename"`
	Path        string     `json:"path"`
	Type        string     `json:"type"`
	Size        int64      `json:"size"`
	Created     time.Time  `json:"created"`
	DownloadURL string     `json:"download_url,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type ModelsResponse struct {
	UserID     string       `json:"user_id"`
	Models     []ModelEntry `json:"models"`
	TotalCount int          `json:"total_count"`
}

// GET /user/:id/models
func (h *ModelsHandler) ListUserModels(c *gin.Context) {
	owner := c.Param("id")
	items, err := h.catalog.ListForIdentity(c.Request.Context(), owner)
	if err != nil {
		_ = c.Error(err)
		response.RespondAPIError(c, err)
		return
	}
	models := make([]ModelEntry, 0, len(items))
	for _, it := range items {
		e := ModelEntry{
			Filename:    it.Filename,
			Path:        it.StoragePath,
			Type:        string(it.Kind),
			Size:        it.SizeBytes,
			Created:     it.CreatedAt.UTC(),
			DownloadURL: it.AccessURL,
		}
		if !it.ExpiresAt.IsZero() {
			e.ExpiresAt = pointers.Ptr(it.ExpiresAt.UTC())
		}
		models = append(models, e)
	}
	response.RespondOK(c, ModelsResponse{UserID: owner, Models: models, TotalCount: len(models)})
}
