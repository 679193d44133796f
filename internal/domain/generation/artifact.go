package generation

import "time"

// Tier names the storage backend an artifact landed in.
type Tier string

const (
	TierRemote Tier = "gcs"
	TierLocal  Tier = "local"
)

// StoredArtifact describes one persisted file. Immutable once created.
type StoredArtifact struct {
	OwnerID     string
	Filename    string
	StoragePath string
	Tier        Tier
	Kind        Kind
	CreatedAt   time.Time
	SizeBytes   int64
	AccessURL   string

	// DownloadPath is the same-node retrieval path for local artifacts; empty for remote ones.
	DownloadPath string
	// ExpiresAt is zero when the tier does not expire access URLs.
	ExpiresAt    time.Time
	// FallbackUsed marks a local write made because the remote tier failed for this call.
	FallbackUsed bool
}

// Result is what a successful generation hands back to its caller.
type Result struct {
	Message  string
	OwnerID  string
	Source   SourceKind
	Kind     Kind
	Artifact StoredArtifact

	Vertices int
	Faces    int
	Points   int
}
