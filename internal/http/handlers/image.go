package handlers

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/yungbote/pointgen-backend/internal/platform/apierr"
)

var imageContentTypes = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// sniffImage reads only the header to confirm data is a supported image and returns its
// content type. Full decoding is left to the engine.
func sniffImage(data []byte) (string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", apierr.InvalidRequest("invalid_image", fmt.Errorf("unsupported or corrupt image: %w", err))
	}
	ct, ok := imageContentTypes[format]
	if !ok {
		return "", apierr.Invalidf("invalid_image", "unsupported image format %q", format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return "", apierr.Invalidf("invalid_image", "image has no pixels")
	}
	return ct, nil
}
