package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/pointgen-backend/internal/auth"
	"github.com/yungbote/pointgen-backend/internal/domain/generation"
	"github.com/yungbote/pointgen-backend/internal/http/response"
	"github.com/yungbote/pointgen-backend/internal/pkg/pointers"
	"github.com/yungbote/pointgen-backend/internal/platform/apierr"
	"github.com/yungbote/pointgen-backend/internal/platform/logger"
	"github.com/yungbote/pointgen-backend/internal/services"
)

const imageFormField = "file"

type GenerateHandler struct {
	log           *logger.Logger
	gen           services.GenerationService
	maxImageBytes int64
	now           func() time.Time
}

func NewGenerateHandler(log *logger.Logger, gen services.GenerationService, maxImageBytes int64) *GenerateHandler {
	return &GenerateHandler{
		log:           log.With("handler", "GenerateHandler"),
		gen:           gen,
		maxImageBytes: maxImageBytes,
		now:           time.Now,
	}
}

type textGenerateRequest struct {
	Prompt     string `json:"prompt"`
	UserID     string `json:"user_id"`
	Format     string `json:"format"`
	GridSize   *int   `json:"grid_size"`
	NumSamples *int   `json:"num_samples"`
}

type GenerateResponse struct {
	Success      bool       `json:"success"`
	Message      string     `json:"message"`
	FileURL      string     `json:"file_url"`
	DownloadURL  string     `json:"download_url"`
	UserID       string     `json:"user_id"`
	Format       string     `json:"format"`
	Vertices     *int       `json:"vertices,omitempty"`
	Faces        *int       `json:"faces,omitempty"`
	Points       *int       `json:"points,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Storage      string     `json:"storage"`
	FallbackUsed bool       `json:"fallback_used"`
}

// POST /generate/text
func (h *GenerateHandler) GenerateText(c *gin.Context) {
	var body textGenerateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.RespondAPIError(c, apierr.InvalidRequest("invalid_json", fmt.Errorf("invalid request body: %w", err)))
		return
	}
	format, err := generation.ParseKind(body.Format)
	if err != nil {
		response.RespondAPIError(c, apierr.InvalidRequest("invalid_format", err))
		return
	}
	owner, derived, err := h.resolveIdentity(c, body.UserID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	req := generation.Request{
		Source:          generation.SourceText,
		Prompt:          strings.TrimSpace(body.Prompt),
		Format:          format,
		Resolution:      intOr(body.GridSize, generation.DefaultResolution),
		NumSamples:      intOr(body.NumSamples, 1),
		CallerIdentity:  owner,
		IdentityDerived: derived,
	}
	h.run(c, req)
}

// POST /generate/image (multipart: file, format, grid_size, user_id)
func (h *GenerateHandler) GenerateImage(c *gin.Context) {
	fh, err := c.FormFile(imageFormField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.RespondAPIError(c, apierr.Invalidf("image_too_large", "request body exceeds %d bytes", maxErr.Limit))
			return
		}
		response.RespondAPIError(c, apierr.InvalidRequest("missing_image", fmt.Errorf("multipart field %q is required: %w", imageFormField, err)))
		return
	}
	if h.maxImageBytes > 0 && fh.Size > h.maxImageBytes {
		response.RespondAPIError(c, apierr.Invalidf("image_too_large", "image exceeds %d bytes", h.maxImageBytes))
		return
	}
	format, err := generation.ParseKind(c.PostForm("format"))
	if err != nil {
		response.RespondAPIError(c, apierr.InvalidRequest("invalid_format", err))
		return
	}
	gridSize := generation.DefaultResolution
	if raw := strings.TrimSpace(c.PostForm("grid_size")); raw != "" {
		if gridSize, err = strconv.Atoi(raw); err != nil {
			response.RespondAPIError(c, apierr.Invalidf("invalid_grid_size", "grid_size must be an integer"))
			return
		}
	}
	owner, derived, err := h.resolveIdentity(c, c.PostForm("user_id"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}

	f, err := fh.Open()
	if err != nil {
		response.RespondAPIError(c, apierr.InvalidRequest("unreadable_image", err))
		return
	}
	data, err := io.ReadAll(io.LimitReader(f, h.readLimit(fh.Size)))
	_ = f.Close()
	if err != nil {
		response.RespondAPIError(c, apierr.InvalidRequest("unreadable_image", err))
		return
	}
	contentType, err := sniffImage(data)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}

	req := generation.Request{
		Source:           generation.SourceImage,
		Image:            data,
		ImageContentType: contentType,
		ImageName:        fh.Filename,
		Format:           format,
		Resolution:       gridSize,
		NumSamples:       1,
		CallerIdentity:   owner,
		IdentityDerived:  derived,
	}
	h.run(c, req)
}

func (h *GenerateHandler) readLimit(size int64) int64 {
	if h.maxImageBytes > 0 {
		return h.maxImageBytes + 1
	}
	return size + 1
}

func (h *GenerateHandler) run(c *gin.Context, req generation.Request) {
	res, err := h.gen.Generate(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, toGenerateResponse(res))
}

// resolveIdentity validates a supplied user_id or derives one from the caller's agent, forwarded
// address and today's date.
func (h *GenerateHandler) resolveIdentity(c *gin.Context, supplied string) (string, bool, error) {
	supplied = strings.TrimSpace(supplied)
	if supplied != "" {
		if err := auth.ValidateIdentity(supplied); err != nil {
			return "", false, apierr.InvalidRequest("invalid_user_id", err)
		}
		return supplied, false, nil
	}
	return auth.DeriveIdentity(auth.Metadata{
		UserAgent:    c.GetHeader("User-Agent"),
		ForwardedFor: c.GetHeader(auth.HeaderForwardedFor),
		Day:          h.now(),
	}), true, nil
}

func toGenerateResponse(res *generation.Result) GenerateResponse {
	art := res.Artifact
	out := GenerateResponse{
		Success:      true,
		Message:      res.Message,
		DownloadURL:  art.AccessURL,
		UserID:       res.OwnerID,
		Format:       string(res.Kind),
		Storage:      string(art.Tier),
		FallbackUsed: art.FallbackUsed,
	}
	if art.Tier == generation.TierRemote {
		out.FileURL = art.StoragePath
	} else {
		out.FileURL = art.DownloadPath
	}
	if !art.ExpiresAt.IsZero() {
		out.ExpiresAt = pointers.Ptr(art.ExpiresAt.UTC())
	}
	switch {
	case res.Kind == generation.KindMesh:
		out.Vertices, out.Faces = pointers.Int(res.Vertices), pointers.Int(res.Faces)
	case res.Source == generation.SourceText:
		// Text clients read a point cloud's size from vertices, with zero faces.
		out.Points = pointers.Int(res.Points)
		out.Vertices, out.Faces = pointers.Int(res.Points), pointers.Int(0)
	default:
		out.Points = pointers.Int(res.Points)
	}
	return out
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
