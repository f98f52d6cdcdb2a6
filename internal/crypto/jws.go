package crypto

// jws.go - signing and verification of provenance record payloads.
//
// Signatures are JWS compact serializations. The protected header carries the
// signer's key id and its X.509 certificate chain (x5c) so that a record can
// be verified with nothing more than the trust framework's root CA.

import (
	stdcrypto "crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"fmt"

	"github.com/lestrrat-go/jwx/v3/cert"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jws"
)

// AlgorithmForKey returns the JWS signature algorithm implied by the key type.
// Ed25519 keys sign with EdDSA, RSA keys with RS256 (the algorithms supported
// by trust framework member certificates).
func AlgorithmForKey(key any) (jwa.SignatureAlgorithm, error) {
	switch k := key.(type) {
	case ed25519.PrivateKey, ed25519.PublicKey:
		return jwa.EdDSA(), nil
	case *rsa.PrivateKey, *rsa.PublicKey:
		return jwa.RS256(), nil
	case stdcrypto.Signer:
		// hardware-backed keys (e.g. KMS) expose only the public half
		return AlgorithmForKey(k.Public())
	default:
		var none jwa.SignatureAlgorithm
		return none, NewValidationError(fmt.Sprintf("unsupported key type: %T", key))
	}
}

// BuildCertChain converts an X.509 certificate chain (leaf first) to the
// base64 DER form used in the x5c JWS header.
func BuildCertChain(certs []*x509.Certificate) (*cert.Chain, error) {
	if len(certs) == 0 {
		return nil, NewValidationError("empty certificate chain")
	}

	var chain cert.Chain
	for i, c := range certs {
		if err := chain.AddString(base64.StdEncoding.EncodeToString(c.Raw)); err != nil {
			return nil, WrapInternalError(err, fmt.Sprintf("failed to add certificate %d to x5c chain", i))
		}
	}
	return &chain, nil
}

// SignJSON canonicalizes a JSON payload (RFC 8785) and signs it, producing a
// compact JWS whose protected header carries the key id and certificate chain.
//
// The key may be a raw private key or a crypto.Signer backed by an external
// key store.
func SignJSON(payload []byte, key any, keyID string, certs []*x509.Certificate) (string, error) {
	canonical, err := CanonicalizeJSON(payload)
	if err != nil {
		return "", WrapValidationError(err, "failed to canonicalize payload")
	}

	alg, err := AlgorithmForKey(key)
	if err != nil {
		return "", err
	}

	hdrs := jws.NewHeaders()
	if keyID != "" {
		if err := hdrs.Set(jws.KeyIDKey, keyID); err != nil {
			return "", WrapInternalError(err, "failed to set kid header")
		}
	}
	if len(certs) > 0 {
		chain, err := BuildCertChain(certs)
		if err != nil {
			return "", err
		}
		if err := hdrs.Set(jws.X509CertChainKey, chain); err != nil {
			return "", WrapInternalError(err, "failed to set x5c header")
		}
	}

	signed, err := jws.Sign(canonical, jws.WithKey(alg, key, jws.WithProtectedHeaders(hdrs)))
	if err != nil {
		return "", WrapSignatureError(err, "failed to sign payload")
	}

	return string(signed), nil
}

// VerifyJWS verifies a compact JWS with the given public key and returns the
// signed payload.
func VerifyJWS(jwsString string, publicKey any) ([]byte, error) {
	alg, err := AlgorithmForKey(publicKey)
	if err != nil {
		return nil, err
	}

	payload, err := jws.Verify([]byte(jwsString), jws.WithKey(alg, publicKey))
	if err != nil {
		return nil, WrapSignatureError(err, "JWS signature verification failed")
	}

	return payload, nil
}
