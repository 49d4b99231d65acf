// Package config defines the tms application configuration.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvDevelopment enables development behaviour such as stack traces in
// error responses.
const EnvDevelopment = "development"

// Config is the top-level tms configuration.
type Config struct {
	Server   ServerConfig `json:"server" yaml:"server"`
	Auth     AuthConfig   `json:"auth" yaml:"auth"`
	DataDir  string       `json:"data_dir" yaml:"data_dir"`
	DBPath   string       `json:"db_path,omitempty" yaml:"db_path"` // defaults to <data_dir>/tms.db
	LogLevel string       `json:"log_level" yaml:"log_level"`
	Env      string       `json:"env" yaml:"env"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr       string `json:"addr" yaml:"addr"`               // listen address, e.g., ":8080"
	CORSOrigin string `json:"cors_origin" yaml:"cors_origin"` // empty disables CORS headers
}

// AuthConfig controls token signing, password hashing and the bootstrap
// admin account.
type AuthConfig struct {
	JWTSecret  string `json:"jwt_secret" yaml:"jwt_secret"`
	AdminUser  string `json:"admin_user" yaml:"admin_user"` // email of the bootstrap admin
	AdminPass  string `json:"admin_pass" yaml:"admin_pass"`
	BcryptCost int    `json:"bcrypt_cost" yaml:"bcrypt_cost"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:       ":8080",
			CORSOrigin: "http://localhost:8081",
		},
		Auth: AuthConfig{
			BcryptCost: 12,
		},
		DataDir:  "./data",
		LogLevel: "info",
		Env:      "production",
	}
}

// Load reads a YAML config file over DefaultConfig. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables looked up with
// lookup (os.LookupEnv in production).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("TMS_JWT_SECRET"); ok {
		c.Auth.JWTSecret = v
	}
	if v, ok := lookup("TMS_ADDR"); ok && v != "" {
		c.Server.Addr = v
	}
	if v, ok := lookup("TMS_DB_PATH"); ok && v != "" {
		c.DBPath = v
	}
	if v, ok := lookup("APP_ENV"); ok && v != "" {
		c.Env = v
	}
}

// IsDevelopment reports whether the development environment is active.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, EnvDevelopment)
}

// DatabasePath returns DBPath, or tms.db inside DataDir.
func (c *Config) DatabasePath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.DataDir, "tms.db")
}

// SlogLevel maps LogLevel onto a slog level.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Validate checks the configuration. In development an empty JWT secret is
// replaced by a random one, so tokens do not survive a restart; anywhere
// else it is an error.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		if c.IsDevelopment() {
			c.Auth.JWTSecret = generateSecret()
		} else {
			errs = append(errs, errors.New("auth.jwt_secret is required (or set TMS_JWT_SECRET)"))
		}
	}
	if (c.Auth.AdminUser == "") != (c.Auth.AdminPass == "") {
		errs = append(errs, errors.New("auth.admin_user and auth.admin_pass must be set together"))
	}
	if c.Auth.BcryptCost != 0 && (c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31) {
		errs = append(errs, fmt.Errorf("auth.bcrypt_cost %d out of range 4..31", c.Auth.BcryptCost))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	return errors.Join(errs...)
}

// generateSecret creates a random 32-byte secret.
func generateSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
