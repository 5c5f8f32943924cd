package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Supported table store backends.
const (
	BackendGitHub = "github"
	BackendMinio  = "minio"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

// Supported GitHub write modes.
const (
	WriteModeContents = "contents"
	WriteModeGitData  = "gitdata"
)

// Config contains server configuration parameters.
type Config struct {
	LogLevel     int     `env:"LOG_LEVEL" envDefault:"0"`
	StoreBackend string  `env:"STORE_BACKEND" envDefault:"github"`
	HTTP         HTTP    `envPrefix:"HTTP_"`
	GRPC         GRPC    `envPrefix:"GRPC_"`
	Table        Table   `envPrefix:"TABLE_"`
	GitHub       GitHub  `envPrefix:"GITHUB_"`
	Storage      Storage `envPrefix:"MINIO_"`
	S3           S3      `envPrefix:"S3_"`
	Retry        Retry   `envPrefix:"RETRY_"`
}

// HTTP contains form and JSON API server parameters.
type HTTP struct {
	Port               string        `env:"PORT" envDefault:"8080"`
	EnableHTTPS        bool          `env:"ENABLE_HTTPS" envDefault:"false"`
	CertFileName       string        `env:"CERT_FILE_NAME" envDefault:"cert.pem"`
	PrivateKeyFileName string        `env:"PRIVATE_KEY_FILE_NAME" envDefault:"key.pem"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
}

// GRPC contains health service parameters.
type GRPC struct {
	Port                string        `env:"PORT" envDefault:"50051"`
	HealthProbeInterval time.Duration `env:"HEALTH_PROBE_INTERVAL" envDefault:"30s"`
}

// Table describes the stored spreadsheet.
type Table struct {
	ObjectName    string `env:"OBJECT_NAME" envDefault:"user_data.xlsx"`
	SheetName     string `env:"SHEET_NAME" envDefault:"Sheet1"`
	InitOnMissing bool   `env:"INIT_ON_MISSING" envDefault:"false"`
}

// GitHub contains remote repository parameters.
type GitHub struct {
	APIURL        string        `env:"API_URL" envDefault:"https://api.github.com"`
	Owner         string        `env:"OWNER"`
	Repo          string        `env:"REPO"`
	Branch        string        `env:"BRANCH" envDefault:"main"`
	Token         string        `env:"TOKEN"`
	WriteMode     string        `env:"WRITE_MODE" envDefault:"contents"`
	CommitMessage string        `env:"COMMIT_MESSAGE" envDefault:"Update user_data.xlsx"`
	Timeout       time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// Storage contains object storage parameters.
type Storage struct {
	Endpoint  string `env:"ENDPOINT" envDefault:"localhost:9000"`
	AccessKey string `env:"ACCESS_KEY" envDefault:"sheetkeeper-access-key"`
	SecretKey string `env:"SECRET_KEY" envDefault:"sheetkeeper-secret-key"`
	Bucket    string `env:"BUCKET_NAME" envDefault:"sheetkeeper"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
}

// S3 contains AWS S3 parameters. Empty keys fall back to the default credential chain.
type S3 struct {
	Endpoint     string `env:"ENDPOINT"`
	Region       string `env:"REGION" envDefault:"us-east-1"`
	Bucket       string `env:"BUCKET" envDefault:"sheetkeeper"`
	AccessKey    string `env:"ACCESS_KEY"`
	SecretKey    string `env:"SECRET_KEY"`
	UsePathStyle bool   `env:"USE_PATH_STYLE" envDefault:"false"`
}

// Retry bounds the re-run of a registration that lost a concurrent write.
type Retry struct {
	MaxAttempts     uint64        `env:"MAX_ATTEMPTS" envDefault:"5"`
	InitialInterval time.Duration `env:"INITIAL_INTERVAL" envDefault:"200ms"`
	MaxElapsed      time.Duration `env:"MAX_ELAPSED" envDefault:"10s"`
}

// NewConfig loads configuration from environment variables.
func NewConfig() (*Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate checks combinations the env tags cannot express.
func (c *Config) Validate() error {
	if c.Table.ObjectName == "" {
		return errors.New("TABLE_OBJECT_NAME must not be empty")
	}
	if c.GRPC.HealthProbeInterval <= 0 {
		return fmt.Errorf("GRPC_HEALTH_PROBE_INTERVAL must be positive, got %s", c.GRPC.HealthProbeInterval)
	}

	switch c.StoreBackend {
	case BackendMinio, BackendMemory:
		return nil
	case BackendS3:
		if c.S3.Bucket == "" {
			return errors.New("S3_BUCKET must not be empty")
		}
		return nil
	case BackendGitHub:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.GitHub.Owner == "" || c.GitHub.Repo == "" {
		return errors.New("GITHUB_OWNER and GITHUB_REPO are required for the github backend")
	}
	if c.GitHub.WriteMode != WriteModeContents && c.GitHub.WriteMode != WriteModeGitData {
		return fmt.Errorf("unknown GITHUB_WRITE_MODE %q", c.GitHub.WriteMode)
	}

	return nil
}
