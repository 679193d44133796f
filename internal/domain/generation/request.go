package generation

import (
	"fmt"
	"strings"
)

type SourceKind string

const (
	SourceText  SourceKind = "text"
	SourceImage SourceKind = "image"
)

const (
	DefaultResolution = 32
	MinResolution     = 8
	MaxResolution     = 128
)

// Request is one generation call. It is owned by the call that built it.
type Request struct {
	Source SourceKind
	Prompt string

	Image            []byte
	ImageContentType string
	ImageName        string

	Format     Kind
	Resolution int
	NumSamples int

	// CallerIdentity is the storage namespace; supplied by the caller or derived.
	CallerIdentity string
	// IdentityDerived is true when CallerIdentity was not supplied by the caller.
	IdentityDerived bool
}

// PayloadSize is the prompt length in runes or the image size in bytes.
func (r Request) PayloadSize() int {
	if r.Source == SourceImage {
		return len(r.Image)
	}
	return len([]rune(r.Prompt))
}

// Kind is both the requested output format and the kind of a stored artifact.
type Kind string

const (
	KindMesh       Kind = "mesh"
	KindPointCloud Kind = "pointcloud"
)

const FileExtension = ".ply"

// ParseKind accepts the wire spelling of an output format. Empty means mesh.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "mesh":
		return KindMesh, nil
	case "pointcloud", "point_cloud":
		return KindPointCloud, nil
	default:
		return "", fmt.Errorf("unsupported format %q (allowed: %q, %q)", raw, KindMesh, KindPointCloud)
	}
}

// FilenamePrefix is the leading filename token the catalog uses to tell kinds apart.
func (k Kind) FilenamePrefix() string {
	return string(k) + "_"
}

// KindFromFilename infers an artifact kind from its filename prefix.
func KindFromFilename(name string) Kind {
	if strings.HasPrefix(name, KindMesh.FilenamePrefix()) {
		return KindMesh
	}
	return KindPointCloud
}
