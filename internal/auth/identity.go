package auth

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"
)

const derivedPrefix = "user_"

var identityPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Metadata is what an anonymous caller presents.
type Metadata struct {
	UserAgent    string
	ForwardedFor string
	Day          time.Time
}

// DeriveIdentity hashes agent, forwarded address and calendar day (UTC) into "user_<8 hex>".
// Not security sensitive; it only groups anonymous callers into a storage namespace.
func DeriveIdentity(md Metadata) string {
	day := md.Day.UTC().Format("2006-01-02")
	sum := md5.Sum([]byte(md.UserAgent + md.ForwardedFor + day))
	return derivedPrefix + hex.EncodeToString(sum[:])[:8]
}

// ValidateIdentity checks a caller-supplied identity; it becomes a storage path segment.
func ValidateIdentity(id string) error {
	if !identityPattern.MatchString(id) {
		return fmt.Errorf("user_id must match [A-Za-z0-9_-]{1,64}")
	}
	return nil
}
