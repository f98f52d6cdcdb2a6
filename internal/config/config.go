package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

// Environment variables with defaults
type ServerEnvironment struct {

	// http server settings
	Environment           string        `env:"ENVIRONMENT,default=dev"`
	Host                  string        `env:"HOST,default=0.0.0.0"`
	Port                  int           `env:"PORT,default=8080"`
	LogLevel              string        `env:"LOG_LEVEL,default=debug"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=10s"`
	ReadTimeout           time.Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout          time.Duration `env:"WRITE_TIMEOUT,default=15s"`
	IdleTimeout           time.Duration `env:"IDLE_TIMEOUT,default=60s"`
	RateLimitRPS          int32         `env:"RATE_LIMIT_RPS,default=100"`
	RateLimitBurst        int32         `env:"RATE_LIMIT_BURST,default=200"`
	MaxRequestBytes       int64         `env:"MAX_REQUEST_BYTES,default=1048576"`

	// trust framework settings
	TrustFrameworkURL string `env:"TRUST_FRAMEWORK_URL,required=true"`
	SchemeURL         string `env:"SCHEME_URL,required=true"`

	// signing material.
	//
	// ROOT_CA_CERTIFICATE and SIGNING_BUNDLE accept either a local path or an
	// s3:// locator. SIGNING_KEY is tried as an SSM parameter name first and
	// then as a local PEM path; KMS_KEY_ID (optional) takes precedence over both.
	RootCACertificate string        `env:"ROOT_CA_CERTIFICATE,required=true"`
	SigningBundle     string        `env:"SIGNING_BUNDLE,required=true"`
	SigningKey        string        `env:"SIGNING_KEY"`
	KMSKeyID          string        `env:"KMS_KEY_ID"`
	KeystoreTimeout   time.Duration `env:"KEYSTORE_TIMEOUT,default=10s"`

	// record archive settings (archive is disabled when DATABASE_URL is unset)
	DatabaseURL         string        `env:"DATABASE_URL"`
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS,default=4"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS,default=0"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME,default=60m"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME,default=30m"`
	DBConnectTimeout    time.Duration `env:"DB_CONNECT_TIMEOUT,default=5s"`
	DatabasePingTimeout time.Duration `env:"DATABASE_PING_TIMEOUT,default=10s"`
}

var validEnvs = map[string]bool{
	"dev":     true,
	"test":    true,
	"prod":    true,
	"staging": true,
}

// NewServerConfig loads environment variables and returns a ServerEnvironment struct that contains the values
func NewServerConfig() (*ServerEnvironment, error) {
	var cfg ServerEnvironment

	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment variables: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validateConfig checks for required env variables
func validateConfig(cfg *ServerEnvironment) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if !validEnvs[cfg.Environment] {
		return fmt.Errorf("invalid ENVIRONMENT: %s", cfg.Environment)
	}

	// a signing key source must exist somewhere in the fallback order
	if cfg.KMSKeyID == "" && cfg.SigningKey == "" {
		return fmt.Errorf("no signing key configured: set KMS_KEY_ID or SIGNING_KEY")
	}

	if cfg.MaxRequestBytes < 1024 {
		return fmt.Errorf("MAX_REQUEST_BYTES must be at least 1024")
	}

	// pool limits only matter when the archive is enabled
	if cfg.DatabaseURL != "" {
		if cfg.DBMaxConnections < 1 {
			return fmt.Errorf("DB_MAX_CONNECTIONS must be at least 1")
		}
		if cfg.DBMinConnections < 0 {
			return fmt.Errorf("DB_MIN_CONNECTIONS must be 0 or greater")
		}
		if cfg.DBMinConnections > cfg.DBMaxConnections {
			return fmt.Errorf("DB_MIN_CONNECTIONS (%d) cannot be greater than DB_MAX_CONNECTIONS (%d)",
				cfg.DBMinConnections, cfg.DBMaxConnections)
		}
	}

	return nil
}
