package cryptox

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// Fingerprint hashes the given parts into a stable, compact digest. The
// engine uses it both for profile fingerprints (role + permissions + scope +
// last modified) and for decision-cache keys (fingerprint + permission +
// scope hash). The digest changes whenever any part changes, which is what
// invalidates stale cache entries.
func Fingerprint(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
