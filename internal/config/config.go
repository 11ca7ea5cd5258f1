package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath       = "CONFIG_PATH"
	EnvEnvironment      = "ENVIRONMENT"
	EnvDBConnection     = "DB_CONNECTION"
	EnvIDTokenSecret    = "ID_TOKEN_SECRET"
	EnvAllowedDomains   = "ALLOWED_EMAIL_DOMAINS"
	EnvBreakGlassAdmins = "BREAK_GLASS_ADMINS"
	EnvFixedOTPCode     = "FIXED_OTP_CODE"
	EnvSecretManagerARN = "SECRET_MANAGER_ARN"
)

// Environment identifies the deployment environment.
type Environment string

const (
	EnvLocal      Environment = "local"
	EnvTesting    Environment = "testing"
	EnvStaging    Environment = "staging"
	EnvProduction Environment = "production"
)

// IsProduction reports whether this is the production environment.
func (e Environment) IsProduction() bool {
	return e == EnvProduction
}

// UsesEnvSecrets reports whether secrets come straight from the process
// environment instead of the managed secret store.
func (e Environment) UsesEnvSecrets() bool {
	return e == EnvLocal || e == EnvTesting
}

// LoadEnvironment reads the environment discriminator, defaulting to local.
func LoadEnvironment() Environment {
	switch Environment(strings.TrimSpace(os.Getenv(EnvEnvironment))) {
	case EnvTesting:
		return EnvTesting
	case EnvStaging:
		return EnvStaging
	case EnvProduction:
		return EnvProduction
	default:
		return EnvLocal
	}
}

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath  string
	Environment Environment
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{
		ConfigPath:  ResolveConfigPath(os.Getenv(EnvConfigPath)),
		Environment: LoadEnvironment(),
	}, nil
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

// LoadDatabaseDSN reads the database DSN from the environment or YAML config file.
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

// defaultClockSkew absorbs clock drift between the token issuer and this service.
const defaultClockSkew = 10 * time.Second

// IdentityConfig holds ID token verification settings.
type IdentityConfig struct {
	Secret         string        `yaml:"secret"`
	AllowedDomains []string      `yaml:"allowed-domains"`
	ClockSkew      time.Duration `yaml:"clock-skew"`
}

// LoadIdentityConfig loads identity verifier settings from the YAML config
// file, letting environment variables override the file.
func LoadIdentityConfig(configPath string) (IdentityConfig, error) {
	// fileConfig maps the YAML fields needed for identity settings.
	type fileConfig struct {
		Identity IdentityConfig `yaml:"identity"`
	}

	result := IdentityConfig{ClockSkew: defaultClockSkew}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.Identity
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvIDTokenSecret)); secret != "" {
		result.Secret = secret
	}
	if domains := splitList(os.Getenv(EnvAllowedDomains)); len(domains) > 0 {
		result.AllowedDomains = domains
	}
	result.AllowedDomains = normalizeList(result.AllowedDomains)
	if result.ClockSkew <= 0 {
		result.ClockSkew = defaultClockSkew
	}
	return result, nil
}

// MFAConfig holds TOTP issuer and non-production bypass settings.
type MFAConfig struct {
	Issuer     string `yaml:"issuer"`
	BypassCode string `yaml:"bypass-code"`
}

// defaultTOTPIssuer labels provisioned accounts in authenticator apps.
const defaultTOTPIssuer = "Azkaban"

// LoadMFAConfig loads MFA settings from the YAML config file and environment.
func LoadMFAConfig(configPath string) (MFAConfig, error) {
	// fileConfig maps the YAML fields needed for MFA settings.
	type fileConfig struct {
		MFA MFAConfig `yaml:"mfa"`
	}

	var result MFAConfig

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.MFA
		}
	}

	if code := strings.TrimSpace(os.Getenv(EnvFixedOTPCode)); code != "" {
		result.BypassCode = code
	}
	if strings.TrimSpace(result.Issuer) == "" {
		result.Issuer = defaultTOTPIssuer
	}
	return result, nil
}

// LoadBreakGlassAdmins loads the configured break-glass admin identities.
// These emails may fall back to an email-based admin lookup when the primary
// role check misses; keeping the list in configuration keeps it auditable
// and rotatable without a deploy.
func LoadBreakGlassAdmins(configPath string) []string {
	if admins := splitList(os.Getenv(EnvBreakGlassAdmins)); len(admins) > 0 {
		return admins
	}

	// fileConfig maps the YAML fields needed for the break-glass list.
	type fileConfig struct {
		Admin struct {
			BreakGlass []string `yaml:"break-glass"`
		} `yaml:"admin"`
	}

	data, errRead := os.ReadFile(configPath)
	if errRead != nil {
		return nil
	}
	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return nil
	}
	return normalizeList(cfg.Admin.BreakGlass)
}

// splitList parses a comma-separated environment list.
func splitList(raw string) []string {
	return normalizeList(strings.Split(raw, ","))
}

// normalizeList trims entries, lowercases them, and drops empties.
func normalizeList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.ToLower(strings.TrimSpace(item))
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
