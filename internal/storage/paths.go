package storage

import (
	"fmt"
	"path"
	"strings"
	"time"
)

const ownerRoot = "owner"

// RemoteKey is the object key for filename: owner/<identity>/<yyyy>/<mm>/<dd>/<filename>.
func RemoteKey(owner, filename string, at time.Time) string {
	at = at.UTC()
	return path.Join(ownerRoot, owner, at.Format("2006"), at.Format("01"), at.Format("02"), filename)
}

// OwnerPrefix is the listing prefix covering every object stored for owner.
func OwnerPrefix(owner string) string {
	return ownerRoot + "/" + owner + "/"
}

// ValidateSegment rejects values that are unsafe as a single path segment.
func ValidateSegment(s string) error {
	switch {
	case s == "":
		return fmt.Errorf("empty path segment")
	case strings.HasPrefix(s, "."):
		return fmt.Errorf("path segment %q must not start with a dot", s)
	case strings.ContainsAny(s, "/\\\x00"):
		return fmt.Errorf("path segment %q contains a separator", s)
	case len(s) > 255:
		return fmt.Errorf("path segment too long")
	}
	return nil
}
