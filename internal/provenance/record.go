// Package provenance implements evidentiary provenance records: append-only
// sequences of typed steps describing how data was permissioned, obtained,
// processed and passed between trust framework members.
//
// Each time a member seals a record, a signature envelope is appended that
// covers the complete step sequence at that point, so every hop witnesses
// everything that came before it. Records are self-contained: the signer's
// certificate chain travels in the signature, and verification needs only the
// trust framework's root CA.
package provenance

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Signer produces signature envelopes for record payloads. Implementations
// live in the keystore package (in-memory keys, KMS).
type Signer interface {
	// Sign returns a compact JWS over payload. The protected header must
	// carry the signer's key id and x5c certificate chain.
	Sign(ctx context.Context, payload []byte) (string, error)

	// KeyID returns the signing key's id
	KeyID() string

	// CertificateChain returns the signer's certificate chain, leaf first
	CertificateChain() []*x509.Certificate
}

// CertificateProvider supplies the trust anchor used to validate signer
// certificate chains during verification.
type CertificateProvider interface {
	TrustAnchor() *x509.CertPool
}

// VerificationState tracks whether a record's signature envelopes have been
// checked.
type VerificationState string

const (
	StateUnverified VerificationState = "unverified"
	StateVerified   VerificationState = "verified"
	StateRejected   VerificationState = "rejected"
)

// SignatureEnvelope is one signing hop: a JWS over the first StepCount steps
// of the record.
type SignatureEnvelope struct {
	SignedContent string `json:"signedContent"`
	StepCount     int    `json:"stepCount"`
}

// SignerIdentity describes who produced a signature envelope, extracted from
// the leaf certificate during verification.
type SignerIdentity struct {
	Member string `json:"member"`
	KeyID  string `json:"keyId,omitempty"`
}

// Record is a provenance record under construction or verification.
//
// Records are not safe for concurrent use.
type Record struct {
	trustFramework string
	steps          []*Step
	envelopes      []SignatureEnvelope
	state          VerificationState
	sealed         bool

	// signers[i] identifies the signer of envelopes[i]; populated by Verify
	signers []SignerIdentity
}

// encodedRecord is the wire form of a record.
type encodedRecord struct {
	Provenance string              `json:"provenance"`
	Steps      []json.RawMessage   `json:"steps"`
	Signatures []SignatureEnvelope `json:"signatures,omitempty"`
}

// New creates an empty record bound to a trust framework.
func New(trustFramework string) (*Record, error) {
	if trustFramework == "" {
		return nil, NewValidationError("trust framework id is required")
	}
	return &Record{
		trustFramework: trustFramework,
		state:          StateUnverified,
	}, nil
}

// Decode re-opens an encoded record.
//
// The trust framework embedded in the record must match trustFramework; pass
// an empty string to adopt whatever framework the record declares (used by
// the decode endpoint, which inspects foreign records).
func Decode(trustFramework string, encoded []byte) (*Record, error) {
	var enc encodedRecord
	if err := json.Unmarshal(encoded, &enc); err != nil {
		return nil, WrapDecodeError(err, "failed to parse encoded record")
	}

	if enc.Provenance == "" {
		return nil, NewDecodeError("encoded record does not declare a trust framework")
	}
	if trustFramework != "" && enc.Provenance != trustFramework {
		return nil, NewTrustFrameworkMismatchError(fmt.Sprintf(
			"record belongs to trust framework %q, expected %q", enc.Provenance, trustFramework))
	}

	r := &Record{
		trustFramework: enc.Provenance,
		state:          StateUnverified,
	}

	seen := make(map[string]bool)
	for i, rawStep := range enc.Steps {
		step, err := decodeStep(rawStep)
		if err != nil {
			return nil, err
		}
		if seen[step.ID] {
			return nil, NewDecodeError(fmt.Sprintf("duplicate step id %s", step.ID))
		}
		// references must resolve strictly backwards
		for _, ref := range step.Body.References() {
			if !seen[ref] {
				return nil, NewDanglingReferenceError(fmt.Sprintf(
					"step %d (%s) references unknown step %s", i, step.Type(), ref))
			}
		}
		seen[step.ID] = true
		r.steps = append(r.steps, step)
	}

	prev := 0
	for i, env := range enc.Signatures {
		if env.SignedContent == "" {
			return nil, NewDecodeError(fmt.Sprintf("signature envelope %d has no signed content", i))
		}
		if env.StepCount <= prev || env.StepCount > len(r.steps) {
			return nil, NewDecodeError(fmt.Sprintf(
				"signature envelope %d covers %d steps, expected between %d and %d",
				i, env.StepCount, prev+1, len(r.steps)))
		}
		prev = env.StepCount
	}
	r.envelopes = append(r.envelopes, enc.Signatures...)

	return r, nil
}

// TrustFramework returns the trust framework the record is bound to.
func (r *Record) TrustFramework() string { return r.trustFramework }

// Steps returns the record's steps in order.
func (r *Record) Steps() []*Step { return r.steps }

// Envelopes returns the record's signature envelopes in order.
func (r *Record) Envelopes() []SignatureEnvelope { return r.envelopes }

// State returns the record's verification state.
func (r *Record) State() VerificationState { return r.state }

// Signers returns the identity of each envelope's signer, in envelope order.
// Empty until the record has been verified.
func (r *Record) Signers() []SignerIdentity {
	out := make([]SignerIdentity, len(r.signers))
	copy(out, r.signers)
	return out
}

// AddStep validates a step and appends it to the record, returning the id
// assigned to it.
//
// A record that carries signature envelopes must be verified before any step
// can be appended; appending to a sealed record is not allowed (decode the
// sealed artifact to extend the chain).
func (r *Record) AddStep(body StepBody) (string, error) {
	if body == nil {
		return "", NewValidationError("step body is required")
	}
	if r.sealed {
		return "", NewSealedError("record is sealed; decode the artifact to extend it")
	}
	if len(r.envelopes) > 0 && r.state != StateVerified {
		return "", NewNotVerifiedError("record signatures must be verified before appending steps")
	}

	if err := body.Validate(); err != nil {
		return "", err
	}

	existing := make(map[string]bool, len(r.steps))
	for _, s := range r.steps {
		existing[s.ID] = true
	}
	for _, ref := range body.References() {
		if !existing[ref] {
			return "", NewDanglingReferenceError(fmt.Sprintf(
				"%s step references unknown step %s", body.StepType(), ref))
		}
	}

	step, err := newStep(uuid.NewString(), body)
	if err != nil {
		return "", err
	}
	r.steps = append(r.steps, step)

	return step.ID, nil
}

// Seal signs the complete step sequence and returns the encoded record
// artifact. The signature covers every step in the record, including those
// signed by earlier hops.
//
// The record is frozen after sealing; a receiving party decodes the artifact
// to continue the chain.
func (r *Record) Seal(ctx context.Context, signer Signer) ([]byte, error) {
	if signer == nil {
		return nil, NewValidationError("signer is required")
	}
	if len(r.steps) == 0 {
		return nil, NewValidationError("cannot seal a record with no steps")
	}
	if r.sealed {
		return nil, NewSealedError("record is already sealed")
	}
	if len(r.envelopes) > 0 && r.state != StateVerified {
		return nil, NewNotVerifiedError("record signatures must be verified before sealing")
	}

	payload, err := r.payloadForSteps(len(r.steps))
	if err != nil {
		return nil, err
	}

	signedContent, err := signer.Sign(ctx, payload)
	if err != nil {
		return nil, WrapSignatureInvalidError(err, "failed to sign record")
	}

	r.envelopes = append(r.envelopes, SignatureEnvelope{
		SignedContent: signedContent,
		StepCount:     len(r.steps),
	})
	r.sealed = true

	return r.Encoded()
}

// Encoded returns the record's wire form. Decode(Encoded()) reproduces the
// record exactly: steps, fields, references and signature envelopes.
func (r *Record) Encoded() ([]byte, error) {
	enc := encodedRecord{
		Provenance: r.trustFramework,
		Steps:      make([]json.RawMessage, 0, len(r.steps)),
		Signatures: r.envelopes,
	}
	for _, s := range r.steps {
		raw, err := s.MarshalJSON()
		if err != nil {
			return nil, err
		}
		enc.Steps = append(enc.Steps, raw)
	}

	out, err := json.Marshal(enc)
	if err != nil {
		return nil, WrapInternalError(err, "failed to encode record")
	}
	return out, nil
}

// payloadForSteps builds the signature payload covering the first n steps.
func (r *Record) payloadForSteps(n int) ([]byte, error) {
	if n < 1 || n > len(r.steps) {
		return nil, NewInternalError(fmt.Sprintf("invalid signature step count %d", n))
	}

	enc := encodedRecord{
		Provenance: r.trustFramework,
		Steps:      make([]json.RawMessage, 0, n),
	}
	for _, s := range r.steps[:n] {
		raw, err := s.MarshalJSON()
		if err != nil {
			return nil, err
		}
		enc.Steps = append(enc.Steps, raw)
	}

	payload, err := json.Marshal(enc)
	if err != nil {
		return nil, WrapInternalError(err, "failed to build signature payload")
	}
	return payload, nil
}

// signerOfStep returns the identity of the member whose envelope first
// covered the step at index i, or nil if the step is unsigned or the record
// has not been verified.
func (r *Record) signerOfStep(i int) *SignerIdentity {
	if r.state != StateVerified {
		return nil
	}
	prev := 0
	for j, env := range r.envelopes {
		if i >= prev && i < env.StepCount {
			if j < len(r.signers) {
				return &r.signers[j]
			}
			return nil
		}
		prev = env.StepCount
	}
	return nil
}
