package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// dependencyChecksum hashes the sorted, joined dependency list. Version pins
// embedded in a dependency string are part of the key; the installer's own
// lockfile resolution is not, so two functionally equivalent specs may hash
// differently. This is an accepted, conservative cache policy.
func dependencyChecksum(deps []string) string {
	if len(deps) == 0 {
		return ""
	}
	sorted := append([]string(nil), deps...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\x00")))
	return hex.EncodeToString(sum[:])
}
