// provenance record payloads are canonicalized per RFC 8785 before signing
// so that independently serialized copies of the same record produce the
// same signature input. This implementation uses the gowebpki/jcs library.
package crypto

import (
	"github.com/gowebpki/jcs"
)

// CanonicalizeJSON converts JSON to canonical form per RFC 8785
// This ensures consistent hashing/signing of JSON documents
//
// If the input is not valid JSON, an error is returned (handled by jcs library).
func CanonicalizeJSON(jsonData []byte) ([]byte, error) {
	return jcs.Transform(jsonData)
}
