package crypto

import (
	"crypto/ed25519"
	"crypto/rsa"
	"path/filepath"
	"testing"
)

func TestPrivateKeyPEMRoundTrip(t *testing.T) {
	edKey, err := GenerateEd25519KeyPair()
	if err != nil {
		t.Fatalf("could not create ed25519 key: %v", err)
	}
	rsaKey, err := GenerateRSAKeyPair(2048)
	if err != nil {
		t.Fatalf("could not create RSA key: %v", err)
	}

	tests := []struct {
		name string
		key  any
	}{
		{name: "ed25519", key: edKey},
		{name: "rsa", key: rsaKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := SavePrivateKeyToPEMFile(tt.key, dir, "private.pem"); err != nil {
				t.Fatalf("could not save private key: %v", err)
			}

			loaded, err := ReadPrivateKeyFromPEMFile(filepath.Join(dir, "private.pem"))
			if err != nil {
				t.Fatalf("could not load private key: %v", err)
			}

			switch k := tt.key.(type) {
			case ed25519.PrivateKey:
				got, ok := loaded.(ed25519.PrivateKey)
				if !ok {
					t.Fatalf("loaded key has type %T", loaded)
				}
				if !k.Equal(got) {
					t.Errorf("loaded key does not match saved key")
				}
			case *rsa.PrivateKey:
				got, ok := loaded.(*rsa.PrivateKey)
				if !ok {
					t.Fatalf("loaded key has type %T", loaded)
				}
				if !k.Equal(got) {
					t.Errorf("loaded key does not match saved key")
				}
			}
		})
	}
}

func TestGenerateRSAKeyPairRejectsWeakSizes(t *testing.T) {
	if _, err := GenerateRSAKeyPair(1024); err == nil {
		t.Errorf("accepted a 1024 bit key")
	}
	if _, err := GenerateRSAKeyPair(2049); err == nil {
		t.Errorf("accepted a key size that is not a multiple of 256")
	}
}

func TestParsePrivateKeyPEMRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not pem", input: "garbage"},
		{name: "wrong block type", input: "-----BEGIN CERTIFICATE-----\nAA==\n-----END CERTIFICATE-----\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePrivateKeyPEM([]byte(tt.input)); err == nil {
				t.Errorf("expected an error")
			}
		})
	}
}

func TestGenerateKeyID(t *testing.T) {
	key, err := GenerateEd25519KeyPair()
	if err != nil {
		t.Fatalf("could not create ed25519 key: %v", err)
	}

	kid1, err := GenerateKeyID(key.Public())
	if err != nil {
		t.Fatalf("GenerateKeyID failed: %v", err)
	}
	if len(kid1) != 16 {
		t.Errorf("got kid of length %d, want 16", len(kid1))
	}

	// deterministic for the same key
	kid2, err := GenerateKeyID(key.Public())
	if err != nil {
		t.Fatalf("GenerateKeyID failed: %v", err)
	}
	if kid1 != kid2 {
		t.Errorf("kid is not deterministic: %s vs %s", kid1, kid2)
	}

	otherKey, err := GenerateEd25519KeyPair()
	if err != nil {
		t.Fatalf("could not create ed25519 key: %v", err)
	}
	otherKid, err := GenerateKeyID(otherKey.Public())
	if err != nil {
		t.Fatalf("GenerateKeyID failed: %v", err)
	}
	if kid1 == otherKid {
		t.Errorf("different keys produced the same kid")
	}
}

func TestPublicKeyToJWK(t *testing.T) {
	key, err := GenerateEd25519KeyPair()
	if err != nil {
		t.Fatalf("could not create ed25519 key: %v", err)
	}

	jwkKey, err := PublicKeyToJWK(key.Public(), "kid123")
	if err != nil {
		t.Fatalf("PublicKeyToJWK failed: %v", err)
	}

	kid, ok := jwkKey.KeyID()
	if !ok || kid != "kid123" {
		t.Errorf("got kid %q, want kid123", kid)
	}

	if _, err := PublicKeyToJWK(key.Public(), ""); err == nil {
		t.Errorf("accepted an empty key id")
	}
	if _, err := PublicKeyToJWK("not a key", "kid"); err == nil {
		t.Errorf("accepted an unsupported key type")
	}
}
