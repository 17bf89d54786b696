package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath   = "CONFIG_PATH"
	EnvDBConnection = "DB_CONNECTION"
	EnvJWTSecret    = "JWT_SECRET"
	EnvJWTExpiry    = "JWT_EXPIRY"
	EnvSMTPHost     = "SMTP_HOST"
	EnvSMTPPort     = "SMTP_PORT"
	EnvSMTPUsername = "SMTP_USERNAME"
	EnvSMTPPassword = "SMTP_PASSWORD"
	EnvSMTPFrom     = "SMTP_FROM"
	EnvOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 30 * 24 * time.Hour

// LoadJWTConfig loads JWT settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{Expiry: defaultJWTExpiry}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.JWT
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	return result, nil
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host  string    `yaml:"host"`
	Port  int       `yaml:"port"`
	Debug bool      `yaml:"debug"`
	TLS   TLSConfig `yaml:"tls"`
}

// TLSConfig holds optional TLS certificate paths.
type TLSConfig struct {
	Enable bool   `yaml:"enable"`
	Cert   string `yaml:"cert"`
	Key    string `yaml:"key"`
}

// DefaultPort is the listener port used when the config omits one.
const DefaultPort = 8318

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadServerConfig loads listener settings from the YAML config file.
func LoadServerConfig(configPath string) (ServerConfig, error) {
	result := ServerConfig{Port: DefaultPort}

	data, errRead := os.ReadFile(configPath)
	if errRead != nil {
		if errors.Is(errRead, os.ErrNotExist) {
			return result, nil
		}
		return result, fmt.Errorf("read config file: %w", errRead)
	}
	if errUnmarshal := yaml.Unmarshal(data, &result); errUnmarshal != nil {
		return ServerConfig{Port: DefaultPort}, fmt.Errorf("parse config file: %w", errUnmarshal)
	}
	result.Host = strings.TrimSpace(result.Host)
	if result.Port <= 0 {
		result.Port = DefaultPort
	}
	return result, nil
}

// SMTPConfig holds outgoing mail settings for receipts.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Enabled reports whether enough settings exist to send mail.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

const defaultSMTPPort = 587

// LoadSMTPConfig loads mail settings from the YAML config file and SMTP_*
// environment overrides.
func LoadSMTPConfig(configPath string) (SMTPConfig, error) {
	// fileConfig maps the YAML fields needed for mail settings.
	type fileConfig struct {
		SMTP SMTPConfig `yaml:"smtp"`
	}

	var result SMTPConfig
	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return SMTPConfig{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
		result = cfg.SMTP
	}

	if host := strings.TrimSpace(os.Getenv(EnvSMTPHost)); host != "" {
		result.Host = host
	}
	if portRaw := strings.TrimSpace(os.Getenv(EnvSMTPPort)); portRaw != "" {
		if port, errParse := strconv.Atoi(portRaw); errParse == nil && port > 0 {
			result.Port = port
		}
	}
	if username := strings.TrimSpace(os.Getenv(EnvSMTPUsername)); username != "" {
		result.Username = username
	}
	if password := os.Getenv(EnvSMTPPassword); password != "" {
		result.Password = password
	}
	if from := strings.TrimSpace(os.Getenv(EnvSMTPFrom)); from != "" {
		result.From = from
	}

	result.Host = strings.TrimSpace(result.Host)
	result.From = strings.TrimSpace(result.From)
	if result.Port <= 0 {
		result.Port = defaultSMTPPort
	}
	return result, nil
}

// TracingConfig holds OpenTelemetry exporter settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service-name"`
	SampleRatio float64 `yaml:"sample-ratio"`
}

const defaultServiceName = "gymdesk"

// LoadTracingConfig loads tracing settings. Setting
// OTEL_EXPORTER_OTLP_ENDPOINT enables tracing.
func LoadTracingConfig(configPath string) (TracingConfig, error) {
	// fileConfig maps the YAML fields needed for tracing settings.
	type fileConfig struct {
		Tracing TracingConfig `yaml:"tracing"`
	}

	result := TracingConfig{SampleRatio: 1}
	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		cfg := fileConfig{Tracing: result}
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return TracingConfig{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
		result = cfg.Tracing
	}

	if endpoint := strings.TrimSpace(os.Getenv(EnvOTLPEndpoint)); endpoint != "" {
		result.Endpoint = endpoint
		result.Enabled = true
	}
	result.Endpoint = strings.TrimSpace(result.Endpoint)
	if strings.TrimSpace(result.ServiceName) == "" {
		result.ServiceName = defaultServiceName
	}
	if result.SampleRatio <= 0 || result.SampleRatio > 1 {
		result.SampleRatio = 1
	}
	return result, nil
}
