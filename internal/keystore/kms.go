package keystore

// kms.go - signing with a key held in AWS KMS.
//
// The private key never leaves KMS: signing sends a SHA-256 digest to the
// Sign API and the public half is fetched once at startup to derive the key
// id and check the certificate chain. Only RSA keys signing with
// RSASSA_PKCS1_V1_5_SHA_256 are supported, matching the RS256 JWS algorithm.

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"io"
	"time"

	stdcrypto "crypto"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
)

// KMSClient is the subset of the KMS API the keystore uses.
type KMSClient interface {
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

// kmsSignTimeout bounds each remote Sign call. The crypto.Signer interface
// cannot carry the request context, so the deadline is fixed on the adapter.
const kmsSignTimeout = 10 * time.Second

// kmsKey adapts a KMS key to crypto.Signer so the JWS layer can use it like
// any in-memory key.
type kmsKey struct {
	client      KMSClient
	kmsKeyID    string
	publicKey   *rsa.PublicKey
	signTimeout time.Duration
}

func (k *kmsKey) Public() stdcrypto.PublicKey { return k.publicKey }

func (k *kmsKey) Sign(_ io.Reader, digest []byte, opts stdcrypto.SignerOpts) ([]byte, error) {
	if opts.HashFunc() != stdcrypto.SHA256 {
		return nil, fmt.Errorf("KMS signer only supports SHA-256 digests, got %v", opts.HashFunc())
	}

	timeout := k.signTimeout
	if timeout <= 0 {
		timeout = kmsSignTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out, err := k.client.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(k.kmsKeyID),
		Message:          digest,
		MessageType:      types.MessageTypeDigest,
		SigningAlgorithm: types.SigningAlgorithmSpecRsassaPkcs1V15Sha256,
	})
	if err != nil {
		return nil, fmt.Errorf("KMS Sign failed: %w", err)
	}

	return out.Signature, nil
}

// NewKMSSigner creates a signer backed by a KMS key. The key's public half is
// fetched to derive the key id and confirm it matches the member's leaf
// certificate.
func NewKMSSigner(ctx context.Context, client KMSClient, kmsKeyID string, certs []*x509.Certificate) (*Signer, error) {
	if client == nil {
		return nil, NewConfigurationError("KMS client is required")
	}
	if kmsKeyID == "" {
		return nil, NewConfigurationError("KMS key id is required")
	}

	out, err := client.GetPublicKey(ctx, &kms.GetPublicKeyInput{
		KeyId: aws.String(kmsKeyID),
	})
	if err != nil {
		return nil, WrapKeyNotFoundError(err, fmt.Sprintf("failed to fetch public key for KMS key %s", kmsKeyID))
	}

	parsed, err := x509.ParsePKIXPublicKey(out.PublicKey)
	if err != nil {
		return nil, WrapConfigurationError(err, "failed to parse KMS public key")
	}

	rsaKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, NewConfigurationError(fmt.Sprintf("KMS key %s is %T, expected an RSA key", kmsKeyID, parsed))
	}

	return NewSigner(&kmsKey{
		client:      client,
		kmsKeyID:    kmsKeyID,
		publicKey:   rsaKey,
		signTimeout: kmsSignTimeout,
	}, certs)
}
