package handlers

import (
	"errors"
	"io/fs"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/pointgen-backend/internal/http/response"
	"github.com/yungbote/pointgen-backend/internal/pkg/ply"
	"github.com/yungbote/pointgen-backend/internal/platform/apierr"
	"github.com/yungbote/pointgen-backend/internal/platform/logger"
	"github.com/yungbote/pointgen-backend/internal/storage"
)

type DownloadHandler struct {
	log   *logger.Logger
	local *storage.LocalStore
}

func NewDownloadHandler(log *logger.Logger, local *storage.LocalStore) *DownloadHandler {
	return &DownloadHandler{log: log.With("handler", "DownloadHandler"), local: local}
}

// GET /download/:name
func (h *DownloadHandler) DownloadFlat(c *gin.Context) {
	h.serve(c, "", c.Param("name"))
}

// GET /download/:name/:filename, where name is the owner's identity.
func (h *DownloadHandler) DownloadOwned(c *gin.Context) {
	h.serve(c, c.Param("name"), c.Param("filename"))
}

func (h *DownloadHandler) serve(c *gin.Context, owner, filename string) {
	if err := storage.ValidateSegment(filename); err != nil {
		response.RespondAPIError(c, apierr.InvalidRequest("invalid_path", err))
		return
	}
	if owner != "" {
		if err := storage.ValidateSegment(owner); err != nil {
			response.RespondAPIError(c, apierr.InvalidRequest("invalid_path", err))
			return
		}
	}
	f, info, err := h.local.Open(owner, filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			response.RespondAPIError(c, apierr.NotFound("file_not_found", errors.New("file not found")))
			return
		}
		h.log.Error("Failed to open local artifact", "owner_id", owner, "filename", filename, "error", err)
		response.RespondAPIError(c, apierr.Internal(err))
		return
	}
	defer f.Close()

	c.Header("Content-Type", ply.ContentType)
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	http.ServeContent(c.Writer, c.Request, filename, info.ModTime(), f)
}
