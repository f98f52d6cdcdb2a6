package keystore

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/kms"

	internalcrypto "github.com/information-sharing-networks/provenance-demo/internal/crypto"
	"github.com/information-sharing-networks/provenance-demo/internal/testutil"
)

// fakeKMS backs the KMS client interface with an in-memory RSA key.
type fakeKMS struct {
	key         *rsa.PrivateKey
	pubErr      error
	signErr     error
	signCalls   int
	publicSPKI  []byte
	sawDeadline bool
	block       bool
}

func newFakeKMS(t *testing.T) *fakeKMS {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	spki, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("failed to marshal public key: %v", err)
	}
	return &fakeKMS{key: key, publicSPKI: spki}
}

func (f *fakeKMS) GetPublicKey(_ context.Context, _ *kms.GetPublicKeyInput, _ ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error) {
	if f.pubErr != nil {
		return nil, f.pubErr
	}
	return &kms.GetPublicKeyOutput{PublicKey: f.publicSPKI}, nil
}

func (f *fakeKMS) Sign(ctx context.Context, params *kms.SignInput, _ ...func(*kms.Options)) (*kms.SignOutput, error) {
	f.signCalls++
	_, f.sawDeadline = ctx.Deadline()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.signErr != nil {
		return nil, f.signErr
	}
	sig, err := rsa.SignPKCS1v15(rand.Reader, f.key, crypto.SHA256, params.Message)
	if err != nil {
		return nil, err
	}
	return &kms.SignOutput{Signature: sig}, nil
}

// issueRSALeaf issues a leaf certificate for an RSA public key under the test
// CA (the testutil helper only issues ed25519 leaves).
func issueRSALeaf(t *testing.T, ca *testutil.CA, commonName string, pub *rsa.PublicKey) *x509.Certificate {
	t.Helper()

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(12 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.Cert, pub, ca.Key)
	if err != nil {
		t.Fatalf("failed to create RSA leaf certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("failed to parse RSA leaf certificate: %v", err)
	}
	return cert
}

func TestNewKMSSigner(t *testing.T) {
	ca := testutil.NewCA(t, "Trust Framework CA")
	fake := newFakeKMS(t)
	leaf := issueRSALeaf(t, ca, "https://directory.example/member/edp", &fake.key.PublicKey)

	signer, err := NewKMSSigner(context.Background(), fake, "alias/provenance-signing", []*x509.Certificate{leaf})
	if err != nil {
		t.Fatalf("NewKMSSigner failed: %v", err)
	}

	jwsString, err := signer.Sign(context.Background(), []byte(`{"steps":[]}`))
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if fake.signCalls == 0 {
		t.Errorf("signing did not go through KMS")
	}

	if _, err := internalcrypto.VerifyJWS(jwsString, &fake.key.PublicKey); err != nil {
		t.Errorf("KMS signature does not verify: %v", err)
	}
}

func TestNewKMSSignerPublicKeyFetchFails(t *testing.T) {
	ca := testutil.NewCA(t, "Trust Framework CA")
	fake := newFakeKMS(t)
	fake.pubErr = errors.New("AccessDeniedException")
	leaf := issueRSALeaf(t, ca, "member", &fake.key.PublicKey)

	_, err := NewKMSSigner(context.Background(), fake, "alias/provenance-signing", []*x509.Certificate{leaf})
	if err == nil {
		t.Fatalf("expected an error when the public key fetch fails")
	}
	if code := keystoreCode(t, err); code != ErrCodeKeyNotFound {
		t.Errorf("got code %s, want %s", code, ErrCodeKeyNotFound)
	}
}

func TestNewKMSSignerRejectsNonRSAKeys(t *testing.T) {
	ca := testutil.NewCA(t, "Trust Framework CA")
	fake := newFakeKMS(t)

	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate EC key: %v", err)
	}
	spki, err := x509.MarshalPKIXPublicKey(&ecKey.PublicKey)
	if err != nil {
		t.Fatalf("failed to marshal EC key: %v", err)
	}
	fake.publicSPKI = spki

	leaf := issueRSALeaf(t, ca, "member", &fake.key.PublicKey)

	_, err = NewKMSSigner(context.Background(), fake, "alias/ec-key", []*x509.Certificate{leaf})
	if err == nil {
		t.Fatalf("accepted a non-RSA KMS key")
	}
	if code := keystoreCode(t, err); code != ErrCodeConfiguration {
		t.Errorf("got code %s, want %s", code, ErrCodeConfiguration)
	}
}

func TestKMSKeySignBoundedByDeadline(t *testing.T) {
	fake := newFakeKMS(t)
	key := &kmsKey{client: fake, kmsKeyID: "alias/x", publicKey: &fake.key.PublicKey, signTimeout: kmsSignTimeout}

	digest := sha256.Sum256([]byte("payload"))
	if _, err := key.Sign(rand.Reader, digest[:], crypto.SHA256); err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if !fake.sawDeadline {
		t.Errorf("KMS Sign call carries no deadline")
	}

	// a hung KMS must not block a seal indefinitely
	fake.block = true
	key.signTimeout = 50 * time.Millisecond
	if _, err := key.Sign(rand.Reader, digest[:], crypto.SHA256); err == nil {
		t.Errorf("expected an error from a KMS call that never responds")
	}
}

func TestKMSKeyRejectsNonSHA256Digests(t *testing.T) {
	fake := newFakeKMS(t)
	key := &kmsKey{client: fake, kmsKeyID: "alias/x", publicKey: &fake.key.PublicKey}

	digest := sha256.Sum256([]byte("payload"))
	if _, err := key.Sign(rand.Reader, digest[:], crypto.SHA512); err == nil {
		t.Errorf("accepted a SHA-512 digest")
	}
	if _, err := key.Sign(rand.Reader, digest[:], crypto.SHA256); err != nil {
		t.Errorf("rejected a SHA-256 digest: %v", err)
	}
}
