package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Digest domains. The version suffix allows migrating the algorithm later.
const (
	DomainPin        = "repro/pin/v1"
	DomainResolution = "repro/resolution/v1"
	DomainSnapshot   = "repro/snapshot/v1"
)

// Digest hashes the canonical encoding of v under the given domain.
// Format: "sha256:" + hex(SHA256(domain + 0x00 + canonical(v))).
func Digest(domain string, v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", domain, err)
	}
	return DigestBytes(domain, data), nil
}

// DigestBytes hashes already-canonical bytes under the given domain.
func DigestBytes(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}
