package provenance

// verify.go - signature envelope verification.
//
// Verification is a one-way state transition: a record starts Unverified and
// moves to Verified only if every envelope checks out, or to Rejected on the
// first failure. Every envelope is still examined after a failure so that all
// problems are logged, but the first error is the one reported.

import (
	"bytes"

	"github.com/information-sharing-networks/provenance-demo/internal/crypto"
)

// Verify checks every signature envelope on the record:
//
//  1. the x5c certificate chain in the JWS header validates against the
//     trust anchor (including expiry)
//  2. the JWS signature verifies with the leaf certificate's public key
//  3. the signed payload is exactly the canonical form of the record's
//     first StepCount steps - any tampering with step content, ordering or
//     the trust framework id fails this comparison
//
// On success the record transitions to Verified and the signer identity of
// each envelope (leaf certificate common name) becomes available to FindStep.
func (r *Record) Verify(provider CertificateProvider) error {
	if provider == nil {
		return NewValidationError("certificate provider is required")
	}
	if len(r.envelopes) == 0 {
		r.state = StateUnverified
		return NewSignatureInvalidError("record has no signature envelopes")
	}

	roots := provider.TrustAnchor()
	signers := make([]SignerIdentity, len(r.envelopes))

	var firstErr error
	record := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	for i, env := range r.envelopes {
		certs, err := crypto.ParseX5CFromJWS(env.SignedContent)
		if err != nil {
			record(WrapTrustChainError(err, "failed to parse signer certificate chain"))
			continue
		}
		if len(certs) == 0 {
			record(NewTrustChainError("signature envelope carries no certificate chain"))
			continue
		}

		if err := crypto.ValidateCertificateChain(certs, roots); err != nil {
			record(WrapTrustChainError(err, "signer certificate chain is not trusted"))
			continue
		}

		payload, err := crypto.VerifyJWS(env.SignedContent, certs[0].PublicKey)
		if err != nil {
			record(WrapSignatureInvalidError(err, "signature verification failed"))
			continue
		}

		expected, err := r.payloadForSteps(env.StepCount)
		if err != nil {
			record(err)
			continue
		}
		expectedCanonical, err := crypto.CanonicalizeJSON(expected)
		if err != nil {
			record(WrapInternalError(err, "failed to canonicalize record content"))
			continue
		}
		signedCanonical, err := crypto.CanonicalizeJSON(payload)
		if err != nil {
			record(WrapSignatureInvalidError(err, "signed payload is not valid JSON"))
			continue
		}
		if !bytes.Equal(signedCanonical, expectedCanonical) {
			record(NewSignatureInvalidError("signed payload does not match record content"))
			continue
		}

		identity := SignerIdentity{Member: certs[0].Subject.CommonName}
		if header, err := crypto.ParseJWSHeader(env.SignedContent); err == nil {
			identity.KeyID = header.KeyID
		}
		signers[i] = identity
	}

	if firstErr != nil {
		r.state = StateRejected
		return firstErr
	}

	r.state = StateVerified
	r.signers = signers
	return nil
}
