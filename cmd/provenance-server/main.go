package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/information-sharing-networks/provenance-demo/internal/config"
	"github.com/information-sharing-networks/provenance-demo/internal/keystore"
	"github.com/information-sharing-networks/provenance-demo/internal/logger"
	"github.com/information-sharing-networks/provenance-demo/internal/server"
	"github.com/information-sharing-networks/provenance-demo/internal/store"
	"github.com/information-sharing-networks/provenance-demo/internal/version"
)

//	@title			provenance-server
//	@description	provenance-server seals and verifies evidentiary provenance records for trust framework members.
//	@description
//	@description	## Common Error Responses
//	@description	All endpoints may return:
//	@description	- `413` Request body exceeds size limit
//	@description	- `429` Rate limit exceeded
//	@description	- `500` Internal server error
//	@description	- `503` Signing service misconfigured
//	@description
//	@description	## Request Limits
//	@description	All endpoints are protected by:
//	@description	- **Rate limiting**: Configurable requests per second (see env vars) - default 100 rps (set to 0 to disable)
//	@description	- **Request size limits**: Configurable (see env vars) - default 1MB
//	@description
//	@description	Check the X-Max-Request-Size response header for the configured limit.
//	@description
//	@description	## Authentication & Authorization
//	@description
//	@description	Record artifacts are authenticated by their embedded JWS signatures and
//	@description	certificate chains - the endpoints themselves do not require credentials.
//	@description	In production, access to the sealing endpoints should sit behind the
//	@description	trust framework's own service authentication.
//	@license.name	MIT

//	@tag.name			Records
//	@tag.description	Seal, decode and verify provenance records

//	@tag.name			Archive
//	@tag.description	Audit index of records sealed by this service

//	@tag.name			Common
//	@tag.description	Server endpoints (jwks, health)

func main() {
	cmd := &cobra.Command{
		Use:   "provenance-server",
		Short: "Provenance record sealing and verification service",
		Long:  `provenance-server seals provenance records for trust framework data exchanges and verifies records received from other members`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	v := version.Get()
	cmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.NewServerConfig()
	if err != nil {
		log.Printf("failed to load configuration: %v", err.Error())
		os.Exit(1)
	}

	appLogger := logger.InitLogger(logger.ParseLogLevel(cfg.LogLevel), cfg.Environment)

	appLogger.Info("Configuration loaded",
		slog.String("ENVIRONMENT", cfg.Environment),
		slog.String("HOST", cfg.Host),
		slog.Int("PORT", cfg.Port),
		slog.String("LOG_LEVEL", cfg.LogLevel),
		slog.String("TRUST_FRAMEWORK_URL", cfg.TrustFrameworkURL),
		slog.String("SCHEME_URL", cfg.SchemeURL),
		slog.String("ROOT_CA_CERTIFICATE", cfg.RootCACertificate),
		slog.String("SIGNING_BUNDLE", cfg.SigningBundle),
		slog.Bool("KMS_ENABLED", cfg.KMSKeyID != ""),
		slog.Bool("ARCHIVE_ENABLED", cfg.DatabaseURL != ""),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// AWS clients back the optional key and certificate sources (KMS, SSM
	// parameters, s3:// locators). Credential setup problems only matter if
	// one of those sources is actually configured.
	var (
		kmsClient *kms.Client
		ssmClient *ssm.Client
		s3Client  *s3.Client
	)
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		if usesAWS(cfg) {
			appLogger.Error("Failed to load AWS configuration", slog.String("error", err.Error()))
			os.Exit(1)
		}
		appLogger.Debug("AWS configuration unavailable", slog.String("error", err.Error()))
	} else {
		kmsClient = kms.NewFromConfig(awsCfg)
		ssmClient = ssm.NewFromConfig(awsCfg)
		s3Client = s3.NewFromConfig(awsCfg)
	}

	keystoreCtx, keystoreCancel := context.WithTimeout(ctx, cfg.KeystoreTimeout)
	defer keystoreCancel()

	certProvider, err := keystore.NewCertificateProvider(keystoreCtx, s3Client, cfg.RootCACertificate, appLogger)
	if err != nil {
		appLogger.Error("Failed to load trust anchor", slog.String("error", err.Error()))
		os.Exit(1)
	}

	signerCerts, err := certProvider.CertificatesFor(keystoreCtx, cfg.SigningBundle)
	if err != nil {
		appLogger.Error("Failed to load signing certificate bundle", slog.String("error", err.Error()))
		os.Exit(1)
	}

	resolveCfg := keystore.ResolveConfig{
		KMSKeyID:     cfg.KMSKeyID,
		SigningKey:   cfg.SigningKey,
		Certificates: signerCerts,
	}
	if kmsClient != nil {
		resolveCfg.KMS = kmsClient
	}
	if ssmClient != nil {
		resolveCfg.SSM = ssmClient
	}

	signer, err := keystore.ResolveSigner(keystoreCtx, resolveCfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to resolve signing key", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var (
		pool    *pgxpool.Pool
		archive *store.Archive
	)
	if cfg.DatabaseURL != "" {
		pool, err = connectDatabase(ctx, cfg, appLogger)
		if err != nil {
			appLogger.Error("Failed to connect to database", slog.String("error", err.Error()))
			os.Exit(1)
		}

		if err := store.RunMigrations(ctx, pool); err != nil {
			appLogger.Error("Failed to run database migrations", slog.String("error", err.Error()))
			os.Exit(1)
		}

		archive = store.NewArchive(pool)
		appLogger.Info("record archive enabled")
	}

	appLogger.Info("Starting server", slog.String("version", version.Get().Version))

	srv := server.NewServer(cfg, appLogger, signer, certProvider, archive, pool)
	defer srv.DatabaseShutdown()

	if err := srv.Start(ctx); err != nil {
		appLogger.Error("Server error", slog.String("error", err.Error()))
		return err
	}

	appLogger.Info("server shutdown complete")
	return nil
}

func usesAWS(cfg *config.ServerEnvironment) bool {
	return cfg.KMSKeyID != "" ||
		strings.HasPrefix(cfg.RootCACertificate, "s3://") ||
		strings.HasPrefix(cfg.SigningBundle, "s3://")
}

func connectDatabase(ctx context.Context, cfg *config.ServerEnvironment, appLogger *slog.Logger) (*pgxpool.Pool, error) {
	dbCtx, dbCancel := context.WithTimeout(ctx, cfg.DatabasePingTimeout)
	defer dbCancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = cfg.DBMaxConnections
	poolConfig.MinConns = cfg.DBMinConnections
	poolConfig.MaxConnLifetime = cfg.DBMaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.DBMaxConnIdleTime
	poolConfig.ConnConfig.ConnectTimeout = cfg.DBConnectTimeout

	pool, err := pgxpool.NewWithConfig(dbCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err = pool.Ping(dbCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error pinging database: %w", err)
	}

	appLogger.Info("connected to PostgreSQL")
	return pool, nil
}
