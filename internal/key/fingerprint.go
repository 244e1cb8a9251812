package key

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Fingerprint is a content digest of a Value, used by the evaluator's
// change-pruning step: a Dirty node whose deps all
// fingerprint identically to their value at the node's last completion is
// revalidated without re-invoking its Func.
type Fingerprint string

// FingerprintFunc computes a Fingerprint for a family's values. Registering
// one is optional; families that don't register one get GenericFingerprint,
// which is correct but coarser (it fingerprints the Go-syntax representation
// of the data, so two values that differ only in unexported internal layout
// but print identically will be treated as equal).
type FingerprintFunc func(Value) Fingerprint

// GenericFingerprint hashes the %#v rendering of v's data. It is deliberately
// simple and easy to reason about in tests. A pointer inside the data is
// rendered as its address, so a value holding one (the Package family's
// ParsedPackage holds a *hclspec.Manifest) fingerprints differently after
// every fresh decode even when its content is unchanged.
func GenericFingerprint(v Value) Fingerprint {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%#v", v.Data())))
	return Fingerprint(hex.EncodeToString(sum[:]))
}
