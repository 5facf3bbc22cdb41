package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the configuration. Duration fields use
// timex.Duration so both "4h" and integer nanoseconds are accepted. Only
// fields present (non-zero) in the file override the current values.
type FileConfig struct {
	ServiceName string `json:"service_name" yaml:"service_name"`
	HTTPAddr    string `json:"http_addr" yaml:"http_addr"`
	GRPCAddr    string `json:"grpc_addr" yaml:"grpc_addr"`

	DatabaseDSN       string         `json:"database_dsn" yaml:"database_dsn"`
	DBMaxOpenConns    int            `json:"db_max_open_conns" yaml:"db_max_open_conns"`
	DBMaxIdleConns    int            `json:"db_max_idle_conns" yaml:"db_max_idle_conns"`
	DBConnMaxLifetime timex.Duration `json:"db_conn_max_lifetime" yaml:"db_conn_max_lifetime"`

	RedisURL          string         `json:"redis_url" yaml:"redis_url"`
	RedisPoolSize     int            `json:"redis_pool_size" yaml:"redis_pool_size"`
	RedisMinIdleConns int            `json:"redis_min_idle_conns" yaml:"redis_min_idle_conns"`
	RedisDialTimeout  timex.Duration `json:"redis_dial_timeout" yaml:"redis_dial_timeout"`

	SecretKey       string         `json:"secret_key" yaml:"secret_key"`
	Algorithm       string         `json:"algorithm" yaml:"algorithm"`
	AccessTokenTTL  timex.Duration `json:"access_token_ttl" yaml:"access_token_ttl"`
	RefreshTokenTTL timex.Duration `json:"refresh_token_ttl" yaml:"refresh_token_ttl"`
	SessionTTL      timex.Duration `json:"session_ttl" yaml:"session_ttl"`
	BcryptCost      int            `json:"bcrypt_cost" yaml:"bcrypt_cost"`

	LogLevel       string         `json:"log_level" yaml:"log_level"`
	LogFormat      string         `json:"log_format" yaml:"log_format"`
	RequestTimeout timex.Duration `json:"request_timeout" yaml:"request_timeout"`
}

// parseFile loads configuration values from the file named by the -c or
// -config flag. Files ending in .yaml or .yml are decoded as YAML, anything
// else as JSON. No flag means nothing to load.
func parseFile(config *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	fc := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	default:
		err = json.Unmarshal(data, fc)
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	fc.apply(config)
	return nil
}

func (fc *FileConfig) apply(c *Config) {
	setString(&c.ServiceName, fc.ServiceName)
	setString(&c.HTTPAddr, fc.HTTPAddr)
	setString(&c.GRPCAddr, fc.GRPCAddr)

	setString(&c.DatabaseDSN, fc.DatabaseDSN)
	setInt(&c.DBMaxOpenConns, fc.DBMaxOpenConns)
	setInt(&c.DBMaxIdleConns, fc.DBMaxIdleConns)
	if fc.DBConnMaxLifetime.Duration != 0 {
		c.DBConnMaxLifetime = fc.DBConnMaxLifetime.Duration
	}

	setString(&c.RedisURL, fc.RedisURL)
	setInt(&c.RedisPoolSize, fc.RedisPoolSize)
	setInt(&c.RedisMinIdleConns, fc.RedisMinIdleConns)
	if fc.RedisDialTimeout.Duration != 0 {
		c.RedisDialTimeout = fc.RedisDialTimeout.Duration
	}

	setString(&c.SecretKey, fc.SecretKey)
	setString(&c.Algorithm, fc.Algorithm)
	if fc.AccessTokenTTL.Duration != 0 {
		c.AccessTokenTTL = fc.AccessTokenTTL.Duration
	}
	if fc.RefreshTokenTTL.Duration != 0 {
		c.RefreshTokenTTL = fc.RefreshTokenTTL.Duration
	}
	if fc.SessionTTL.Duration != 0 {
		c.SessionTTL = fc.SessionTTL.Duration
	}
	setInt(&c.BcryptCost, fc.BcryptCost)

	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.LogFormat, fc.LogFormat)
	if fc.RequestTimeout.Duration != 0 {
		c.RequestTimeout = fc.RequestTimeout.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
