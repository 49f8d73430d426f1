package availability

import (
	"crypto/sha1" //nolint:gosec // fingerprint only needs stable hashing, not cryptographic strength.
	"encoding/hex"
	"sort"
	"strings"
)

// Fingerprint returns a stable hash of a sorted option-code set, used to
// match an availability probe's rows to the task's exact configuration
// (spec.md §4.4 / glossary).
func Fingerprint(options []string) string {
	sorted := append([]string(nil), options...)
	sort.Strings(sorted)

	h := sha1.New() //nolint:gosec
	_, _ = h.Write([]byte(strings.Join(sorted, ",")))
	return hex.EncodeToString(h.Sum(nil))
}
