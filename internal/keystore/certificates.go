package keystore

// certificates.go - certificate bundle loading and the trust anchor.
//
// Bundle locators accept two forms with identical semantics:
//
//	s3://bucket/path/to/bundle.pem   fetched from object storage
//	/path/to/bundle.pem              read from the local filesystem
//
// The trust framework root CA is loaded once at startup and held immutable
// for the life of the process.

import (
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/information-sharing-networks/provenance-demo/internal/crypto"
)

const s3LocatorPrefix = "s3://"

// ObjectFetcher is the subset of the S3 API used for certificate bundles.
type ObjectFetcher interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// CertificateProvider loads certificate bundles and holds the trust anchor
// used to verify record signatures.
type CertificateProvider struct {
	s3Client ObjectFetcher
	anchor   *x509.CertPool
	logger   *slog.Logger
}

// NewCertificateProvider loads the trust framework root CA from its locator
// and returns a provider for further bundle fetches.
//
// s3Client may be nil when no s3:// locators are in use.
func NewCertificateProvider(ctx context.Context, s3Client ObjectFetcher, rootCALocator string, logger *slog.Logger) (*CertificateProvider, error) {
	if rootCALocator == "" {
		return nil, NewConfigurationError("root CA certificate locator is required")
	}

	p := &CertificateProvider{
		s3Client: s3Client,
		logger:   logger,
	}

	pemData, err := p.FetchBundle(ctx, rootCALocator)
	if err != nil {
		return nil, err
	}

	anchor, err := crypto.CertPoolFromPEM(pemData)
	if err != nil {
		return nil, WrapCertificateParseError(err, fmt.Sprintf("failed to parse root CA bundle %s", rootCALocator))
	}

	p.anchor = anchor
	logger.Info("trust anchor loaded", slog.String("locator", rootCALocator))

	return p, nil
}

// TrustAnchor returns the trust framework root CA pool.
func (p *CertificateProvider) TrustAnchor() *x509.CertPool { return p.anchor }

// CertificatesFor fetches and parses a certificate bundle from a locator.
func (p *CertificateProvider) CertificatesFor(ctx context.Context, locator string) ([]*x509.Certificate, error) {
	pemData, err := p.FetchBundle(ctx, locator)
	if err != nil {
		return nil, err
	}

	certs, err := crypto.ParseCertificateChain(pemData)
	if err != nil {
		return nil, WrapCertificateParseError(err, fmt.Sprintf("failed to parse certificate bundle %s", locator))
	}

	return certs, nil
}

// FetchBundle returns the raw bytes behind a bundle locator.
func (p *CertificateProvider) FetchBundle(ctx context.Context, locator string) ([]byte, error) {
	if locator == "" {
		return nil, NewConfigurationError("certificate locator is required")
	}

	if strings.HasPrefix(locator, s3LocatorPrefix) {
		return p.fetchFromS3(ctx, locator)
	}

	return readLocalBundle(locator)
}

func (p *CertificateProvider) fetchFromS3(ctx context.Context, locator string) ([]byte, error) {
	if p.s3Client == nil {
		return nil, NewConfigurationError(fmt.Sprintf("s3 locator %s configured but no s3 client available", locator))
	}

	bucket, key, ok := strings.Cut(strings.TrimPrefix(locator, s3LocatorPrefix), "/")
	if !ok || bucket == "" || key == "" {
		return nil, NewConfigurationError(fmt.Sprintf("invalid s3 locator %s (expected s3://bucket/key)", locator))
	}

	p.logger.Info("fetching certificate bundle from s3", slog.String("locator", locator))

	out, err := p.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, WrapCertificateNotFoundError(err, fmt.Sprintf("failed to fetch %s", locator))
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, WrapCertificateNotFoundError(err, fmt.Sprintf("failed to read %s", locator))
	}

	return data, nil
}

func readLocalBundle(path string) ([]byte, error) {
	dir := filepath.Dir(path)
	filename := filepath.Base(path)

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, WrapCertificateNotFoundError(err, fmt.Sprintf("failed to open directory %s", dir))
	}
	defer root.Close()

	data, err := root.ReadFile(filename)
	if err != nil {
		return nil, WrapCertificateNotFoundError(err, fmt.Sprintf("failed to read %s", path))
	}

	return data, nil
}
