package keystore

// resolve.go - signing key resolution.
//
// The signer is resolved once at startup and shared read-only for the life
// of the process. Sources are tried in a fixed order, first success wins:
//
//	1. AWS KMS            when KMS_KEY_ID is set; failures are logged and
//	                      fall through to the next source
//	2. SSM parameter      SIGNING_KEY treated as a parameter name
//	3. local PEM file     SIGNING_KEY treated as a filesystem path
//
// A KMS outage degrades to the fallback sources. If neither the SSM
// parameter nor the local file yields a key the resolution fails with a
// key-not-found error and the service refuses to start.

import (
	"context"
	"crypto/x509"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/information-sharing-networks/provenance-demo/internal/crypto"
)

// SSMClient is the subset of the SSM API used for key resolution.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ResolveConfig names the key sources available to ResolveSigner.
type ResolveConfig struct {
	// KMSKeyID enables the KMS source when non-empty
	KMSKeyID string

	// SigningKey is tried as an SSM parameter name, then as a local PEM path
	SigningKey string

	// Certificates is the member's certificate chain, leaf first
	Certificates []*x509.Certificate

	// KMS and SSM clients; nil disables the corresponding source
	KMS KMSClient
	SSM SSMClient
}

// ResolveSigner walks the key sources in order and returns the first signer
// that can be constructed.
func ResolveSigner(ctx context.Context, cfg ResolveConfig, logger *slog.Logger) (*Signer, error) {
	// 1) Prefer KMS when configured
	if cfg.KMSKeyID != "" {
		if cfg.KMS == nil {
			logger.Warn("KMS_KEY_ID is set but no KMS client is available, falling back",
				slog.String("kms_key_id", cfg.KMSKeyID))
		} else {
			signer, err := NewKMSSigner(ctx, cfg.KMS, cfg.KMSKeyID, cfg.Certificates)
			if err == nil {
				logger.Info("signing with KMS key",
					slog.String("kms_key_id", cfg.KMSKeyID),
					slog.String("kid", signer.KeyID()))
				return signer, nil
			}
			logger.Warn("falling back from KMS to local key",
				slog.String("kms_key_id", cfg.KMSKeyID),
				slog.String("error", err.Error()))
		}
	}

	if cfg.SigningKey == "" {
		return nil, NewKeyNotFoundError("no signing key configured: set KMS_KEY_ID or SIGNING_KEY")
	}

	// 2) Try SIGNING_KEY as an SSM parameter name
	if cfg.SSM != nil {
		signer, err := signerFromSSM(ctx, cfg)
		if err == nil {
			logger.Info("signing with key from SSM parameter",
				slog.String("parameter", cfg.SigningKey),
				slog.String("kid", signer.KeyID()))
			return signer, nil
		}
		logger.Warn("falling back from SSM to local key file",
			slog.String("parameter", cfg.SigningKey),
			slog.String("error", err.Error()))
	}

	// 3) Fall back to SIGNING_KEY as a local PEM path
	key, err := crypto.ReadPrivateKeyFromPEMFile(cfg.SigningKey)
	if err != nil {
		return nil, WrapKeyNotFoundError(err,
			"signing key not found in KMS, SSM or local file, check configuration")
	}

	signer, err := NewSigner(key, cfg.Certificates)
	if err != nil {
		return nil, err
	}

	logger.Info("signing with local key file",
		slog.String("path", cfg.SigningKey),
		slog.String("kid", signer.KeyID()))
	return signer, nil
}

func signerFromSSM(ctx context.Context, cfg ResolveConfig) (*Signer, error) {
	out, err := cfg.SSM.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(cfg.SigningKey),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, WrapKeyNotFoundError(err, "failed to fetch signing key parameter")
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, NewKeyNotFoundError("signing key parameter has no value")
	}

	key, err := crypto.ParsePrivateKeyPEM([]byte(*out.Parameter.Value))
	if err != nil {
		return nil, err
	}

	return NewSigner(key, cfg.Certificates)
}
