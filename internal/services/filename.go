package services

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/pointgen-backend/internal/domain/generation"
)

const (
	maxPromptSlug = 30
	maxImageStem  = 20
)

// slugify keeps letters, digits, space, hyphen and underscore, truncates to limit runes, and turns
// spaces into underscores.
func slugify(s string, limit int) string {
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n >= limit {
			break
		}
		if isSlugRune(r) {
			b.WriteRune(r)
			n++
		}
	}
	out := strings.TrimSpace(b.String())
	out = strings.ReplaceAll(out, " ", "_")
	if out == "" {
		return "untitled"
	}
	return out
}

func isSlugRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == ' ', r == '-', r == '_':
		return true
	}
	return false
}

// artifactFilename builds <kind>_<slug>_<yyyymmdd_hhmmss>_<8 hex>.ply. Image sources use
// <kind>_from_<stem>_... instead.
func artifactFilename(req generation.Request, at time.Time) string {
	var slug string
	if req.Source == generation.SourceImage {
		stem := strings.TrimSuffix(filepath.Base(req.ImageName), filepath.Ext(req.ImageName))
		if req.ImageName == "" {
			stem = ""
		}
		slug = "from_" + slugify(stem, maxImageStem)
	} else {
		slug = slugify(req.Prompt, maxPromptSlug)
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return req.Format.FilenamePrefix() + slug + "_" + at.UTC().Format("20060102_150405") + "_" + suffix + generation.FileExtension
}
