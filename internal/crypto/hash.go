package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// DigestSHA256Hex returns the lowercase hex-encoded SHA-256 digest of data.
// Used to fingerprint sealed record artifacts in the archive.
func DigestSHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
