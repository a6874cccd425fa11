package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"waste-patrol-service/internal/domain/detection"
	"waste-patrol-service/internal/domain/report"
)

type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Detector DetectorConfig `mapstructure:"detector"`
	Reports  ReportsConfig  `mapstructure:"reports"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type StorageConfig struct {
	Backend       string `mapstructure:"backend"`
	LocalDir      string `mapstructure:"local_dir"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	GCSBucket     string `mapstructure:"gcs_bucket"`
	FTPAddr       string `mapstructure:"ftp_addr"`
	FTPUser       string `mapstructure:"ftp_user"`
	FTPPassword   string `mapstructure:"ftp_password"`
	FTPRoot       string `mapstructure:"ftp_root"`
}

type DetectorConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ReportsConfig struct {
	PublicPolicy     string         `mapstructure:"public_policy"`
	AreaPolicy       string         `mapstructure:"area_policy"`
	Severity         SeverityConfig `mapstructure:"severity"`
	CodeAllocator    string         `mapstructure:"code_allocator"`
	CleanupQueueSize int            `mapstructure:"cleanup_queue_size"`
}

type SeverityConfig struct {
	MediumArea   float64 `mapstructure:"medium_area"`
	MediumVolume float64 `mapstructure:"medium_volume"`
	HighArea     float64 `mapstructure:"high_area"`
	HighVolume   float64 `mapstructure:"high_volume"`
}

func (s SeverityConfig) Thresholds() report.SeverityThresholds {
	return report.SeverityThresholds{
		MediumArea:   s.MediumArea,
		MediumVolume: s.MediumVolume,
		HighArea:     s.HighArea,
		HighVolume:   s.HighVolume,
	}
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	CodeKey  string `mapstructure:"code_key"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads .env (if present), an optional config file and WASTE_* env vars.
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("WASTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	th := report.DefaultSeverityThresholds()

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.cors_origins", []string{"*"})
	v.SetDefault("http.max_upload_bytes", 10<<20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.dsn", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "./uploads")
	v.SetDefault("storage.public_base_url", "http://localhost:8080/uploads")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.ftp_addr", "")
	v.SetDefault("storage.ftp_user", "")
	v.SetDefault("storage.ftp_password", "")
	v.SetDefault("storage.ftp_root", "")

	v.SetDefault("detector.url", "http://localhost:8000")
	v.SetDefault("detector.timeout", 30*time.Second)

	v.SetDefault("reports.public_policy", "opt_out")
	v.SetDefault("reports.area_policy", string(detection.AreaPolicyUnion))
	v.SetDefault("reports.severity.medium_area", th.MediumArea)
	v.SetDefault("reports.severity.medium_volume", th.MediumVolume)
	v.SetDefault("reports.severity.high_area", th.HighArea)
	v.SetDefault("reports.severity.high_volume", th.HighVolume)
	v.SetDefault("reports.code_allocator", "sequence")
	v.SetDefault("reports.cleanup_queue_size", 256)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.code_key", "waste_patrol:report_code_seq")

	v.SetDefault("metrics.enabled", true)
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	switch c.Storage.Backend {
	case "local":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			errs = append(errs, errors.New("storage.gcs_bucket is required for gcs"))
		}
	case "ftp":
		if c.Storage.FTPAddr == "" {
			errs = append(errs, errors.New("storage.ftp_addr is required for ftp"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}
	switch c.Reports.PublicPolicy {
	case "all", "opt_out":
	default:
		errs = append(errs, fmt.Errorf("unknown reports.public_policy %q", c.Reports.PublicPolicy))
	}
	if !detection.AreaPolicy(c.Reports.AreaPolicy).Valid() {
		errs = append(errs, fmt.Errorf("unknown reports.area_policy %q", c.Reports.AreaPolicy))
	}
	switch c.Reports.CodeAllocator {
	case "sequence", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown reports.code_allocator %q", c.Reports.CodeAllocator))
	}
	th := c.Reports.Severity
	if th.MediumArea <= 0 || th.MediumVolume <= 0 || th.HighArea < th.MediumArea || th.HighVolume < th.MediumVolume {
		errs = append(errs, errors.New("reports.severity thresholds must be positive and high >= medium"))
	}
	return errors.Join(errs...)
}
