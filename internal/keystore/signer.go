// Package keystore resolves signing keys and certificate material for the
// provenance service.
//
// Signing keys are looked up in a fixed fallback order - AWS KMS, then an SSM
// parameter, then a local PEM file - and resolved once at startup. Certificate
// bundles (the signer's chain and the trust framework root CA) load from
// either s3:// locators or local paths with identical semantics.
package keystore

import (
	"context"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"fmt"

	stdcrypto "crypto"

	"github.com/information-sharing-networks/provenance-demo/internal/crypto"
)

// Signer signs provenance record payloads with a member's private key and
// embeds the member's certificate chain in each signature.
//
// The key may be held in memory (file or SSM sourced) or be a crypto.Signer
// backed by KMS; the JWS layer treats both uniformly.
type Signer struct {
	key   any
	keyID string
	certs []*x509.Certificate
}

// NewSigner creates a signer from a private key and the member's certificate
// chain (leaf first). The leaf certificate must contain the key's public half.
func NewSigner(key any, certs []*x509.Certificate) (*Signer, error) {
	if key == nil {
		return nil, NewConfigurationError("signing key is required")
	}
	if len(certs) == 0 {
		return nil, NewConfigurationError("signer certificate chain is required")
	}

	publicKey, err := publicKeyOf(key)
	if err != nil {
		return nil, err
	}

	// a signer whose certificate does not match its key would seal records
	// nobody can verify
	if err := crypto.ValidateX5CMatchesKey(certs, publicKey); err != nil {
		return nil, WrapConfigurationError(err, "signing key does not match leaf certificate")
	}

	keyID, err := crypto.GenerateKeyID(publicKey)
	if err != nil {
		return nil, WrapConfigurationError(err, "failed to derive key id")
	}

	return &Signer{key: key, keyID: keyID, certs: certs}, nil
}

// Sign produces a compact JWS over payload carrying the signer's key id and
// certificate chain in the protected header.
func (s *Signer) Sign(ctx context.Context, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", WrapSigningError(err, "signing cancelled")
	}

	signed, err := crypto.SignJSON(payload, s.key, s.keyID, s.certs)
	if err != nil {
		return "", WrapSigningError(err, "failed to sign payload")
	}
	return signed, nil
}

// KeyID returns the signing key's RFC 7638 thumbprint id.
func (s *Signer) KeyID() string { return s.keyID }

// CertificateChain returns the signer's certificate chain, leaf first.
func (s *Signer) CertificateChain() []*x509.Certificate { return s.certs }

// PublicKey returns the public half of the signing key (for the jwks endpoint).
func (s *Signer) PublicKey() (any, error) {
	return publicKeyOf(s.key)
}

func publicKeyOf(key any) (any, error) {
	switch k := key.(type) {
	case ed25519.PrivateKey:
		return k.Public(), nil
	case *rsa.PrivateKey:
		return &k.PublicKey, nil
	case stdcrypto.Signer:
		return k.Public(), nil
	default:
		return nil, NewConfigurationError(fmt.Sprintf("unsupported signing key type: %T", key))
	}
}
