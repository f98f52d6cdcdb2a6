package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testCA struct {
	cert *x509.Certificate
	key  ed25519.PrivateKey
}

func newTestCA(t *testing.T) *testCA {
	t.Helper()

	pub, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate CA key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test Trust Framework CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, key)
	if err != nil {
		t.Fatalf("failed to create CA certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("failed to parse CA certificate: %v", err)
	}

	return &testCA{cert: cert, key: key}
}

func (ca *testCA) issue(t *testing.T, commonName string, notAfter time.Time) (*x509.Certificate, ed25519.PrivateKey) {
	t.Helper()

	pub, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate leaf key: %v", err)
	}

	// member signing certificates carry ClientAuth only, never ServerAuth
	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-48 * time.Hour),
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.cert, pub, ca.key)
	if err != nil {
		t.Fatalf("failed to create leaf certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("failed to parse leaf certificate: %v", err)
	}

	return cert, key
}

func TestValidateCertificateChain(t *testing.T) {
	ca := newTestCA(t)
	foreignCA := newTestCA(t)

	leaf, _ := ca.issue(t, "member", time.Now().Add(time.Hour))
	expiredLeaf, _ := ca.issue(t, "member", time.Now().Add(-24*time.Hour))
	foreignLeaf, _ := foreignCA.issue(t, "member", time.Now().Add(time.Hour))

	roots := x509.NewCertPool()
	roots.AddCert(ca.cert)

	tests := []struct {
		name    string
		chain   []*x509.Certificate
		wantErr bool
	}{
		{name: "valid chain with client auth leaf", chain: []*x509.Certificate{leaf}},
		{name: "expired leaf", chain: []*x509.Certificate{expiredLeaf}, wantErr: true},
		{name: "foreign CA", chain: []*x509.Certificate{foreignLeaf}, wantErr: true},
		{name: "empty chain", chain: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCertificateChain(tt.chain, roots)
			if tt.wantErr && err == nil {
				t.Errorf("expected validation to fail")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("validation failed: %v", err)
			}
		})
	}
}

func TestParseCertificateChain(t *testing.T) {
	ca := newTestCA(t)
	leaf, _ := ca.issue(t, "member", time.Now().Add(time.Hour))

	var bundle []byte
	bundle = append(bundle, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: leaf.Raw})...)
	bundle = append(bundle, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: ca.cert.Raw})...)

	certs, err := ParseCertificateChain(bundle)
	if err != nil {
		t.Fatalf("ParseCertificateChain failed: %v", err)
	}
	if len(certs) != 2 {
		t.Fatalf("got %d certificates, want 2", len(certs))
	}
	if certs[0].Subject.CommonName != "member" {
		t.Errorf("chain order not preserved, got %s first", certs[0].Subject.CommonName)
	}

	if _, err := ParseCertificateChain([]byte("not pem")); err == nil {
		t.Errorf("ParseCertificateChain accepted data with no certificates")
	}
}

func TestReadCertChainFromPEMFile(t *testing.T) {
	ca := newTestCA(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "ca.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: ca.cert.Raw}), 0600); err != nil {
		t.Fatalf("failed to write test bundle: %v", err)
	}

	certs, err := ReadCertChainFromPEMFile(path)
	if err != nil {
		t.Fatalf("ReadCertChainFromPEMFile failed: %v", err)
	}
	if len(certs) != 1 {
		t.Fatalf("got %d certificates, want 1", len(certs))
	}

	if _, err := ReadCertChainFromPEMFile(filepath.Join(dir, "missing.pem")); err == nil {
		t.Errorf("expected an error for a missing file")
	}
}

func TestValidateX5CMatchesKey(t *testing.T) {
	ca := newTestCA(t)
	leaf, key := ca.issue(t, "member", time.Now().Add(time.Hour))

	otherKey, err := GenerateEd25519KeyPair()
	if err != nil {
		t.Fatalf("could not create ed25519 key: %v", err)
	}

	if err := ValidateX5CMatchesKey([]*x509.Certificate{leaf}, key.Public().(ed25519.PublicKey)); err != nil {
		t.Errorf("matching key rejected: %v", err)
	}
	if err := ValidateX5CMatchesKey([]*x509.Certificate{leaf}, otherKey.Public().(ed25519.PublicKey)); err == nil {
		t.Errorf("mismatched key accepted")
	}
}
