// JWK (JSON Web Key) helpers.
//
// these functions convert raw RSA/Ed25519 public keys to JWK format for
// distribution via /.well-known/jwks.json, and derive RFC 7638 thumbprint
// key ids used in JWS kid headers.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc7517 (JSON Web Key standard)

package crypto

import (
	stdcrypto "crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"os"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// PublicKeyToJWK converts an RSA or Ed25519 public key to JWK format with
// the appropriate signature algorithm set.
func PublicKeyToJWK(publicKey any, keyID string) (jwk.Key, error) {
	if publicKey == nil {
		return nil, fmt.Errorf("public key is nil")
	}
	if keyID == "" {
		return nil, fmt.Errorf("keyID is required")
	}

	var alg jwa.SignatureAlgorithm
	switch publicKey.(type) {
	case *rsa.PublicKey:
		alg = jwa.RS256()
	case ed25519.PublicKey:
		alg = jwa.EdDSA()
	default:
		return nil, fmt.Errorf("unsupported public key type: %T", publicKey)
	}

	key, err := jwk.Import(publicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWK from public key: %w", err)
	}

	if err := key.Set(jwk.KeyIDKey, keyID); err != nil {
		return nil, fmt.Errorf("failed to set key ID: %w", err)
	}

	if err := key.Set(jwk.AlgorithmKey, alg); err != nil {
		return nil, fmt.Errorf("failed to set algorithm: %w", err)
	}

	if err := key.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		return nil, fmt.Errorf("failed to set key usage: %w", err)
	}

	return key, nil
}

// GenerateKeyID generates a key ID from a public key using its SHA-256 JWK
// thumbprint (RFC 7638). Returns the first 16 characters of the hex-encoded
// thumbprint.
func GenerateKeyID(publicKey any) (string, error) {
	if publicKey == nil {
		return "", fmt.Errorf("public key is nil")
	}

	// Import to JWK to calculate thumbprint
	jwkKey, err := jwk.Import(publicKey)
	if err != nil {
		return "", fmt.Errorf("failed to import key: %w", err)
	}

	thumbprint, err := jwkKey.Thumbprint(stdcrypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("failed to generate thumbprint: %w", err)
	}

	return fmt.Sprintf("%x", thumbprint)[:16], nil
}

// SavePublicKeyToJWKFile saves a public key to a JWK set file
//
// Parameters:
//   - baseDir: The base directory to scope file access (e.g., "./keys")
//   - filename: The filename within the base directory (e.g., "public.jwk")
func SavePublicKeyToJWKFile(publicKey any, keyID, baseDir, filename string) error {
	jwkKey, err := PublicKeyToJWK(publicKey, keyID)
	if err != nil {
		return fmt.Errorf("failed to create JWK: %w", err)
	}

	jwkSet := jwk.NewSet()
	if err := jwkSet.AddKey(jwkKey); err != nil {
		return fmt.Errorf("failed to add key to JWK set: %w", err)
	}

	jsonBytes, err := json.MarshalIndent(jwkSet, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JWK set: %w", err)
	}

	root, err := os.OpenRoot(baseDir)
	if err != nil {
		return fmt.Errorf("failed to open root directory %s: %w", baseDir, err)
	}
	defer root.Close()

	if err := root.WriteFile(filename, jsonBytes, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}
