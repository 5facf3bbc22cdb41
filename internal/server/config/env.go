package config

import (
	"fmt"
	"strconv"
	"time"
)

// parseEnv overlays values from environment variables. A variable that is
// set, even to an empty string, wins over the file and defaults; this is how
// REDIS_URL="" switches to the in-memory session store.
//
//	HTTP_ADDR, GRPC_ADDR, DATABASE_URL, REDIS_URL, SECRET_KEY, ALGORITHM,
//	ACCESS_TOKEN_EXPIRE_MINUTES, REFRESH_TOKEN_EXPIRE_MINUTES,
//	SESSION_EXPIRE_SECONDS, BCRYPT_COST, LOG_LEVEL, LOG_FORMAT,
//	REQUEST_TIMEOUT (Go duration)
func parseEnv(config *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"HTTP_ADDR":    &config.HTTPAddr,
		"GRPC_ADDR":    &config.GRPCAddr,
		"DATABASE_URL": &config.DatabaseDSN,
		"REDIS_URL":    &config.RedisURL,
		"SECRET_KEY":   &config.SecretKey,
		"ALGORITHM":    &config.Algorithm,
		"LOG_LEVEL":    &config.LogLevel,
		"LOG_FORMAT":   &config.LogFormat,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}

	ints := []struct {
		name string
		dst  *time.Duration
		unit time.Duration
	}{
		{"ACCESS_TOKEN_EXPIRE_MINUTES", &config.AccessTokenTTL, time.Minute},
		{"REFRESH_TOKEN_EXPIRE_MINUTES", &config.RefreshTokenTTL, time.Minute},
		{"SESSION_EXPIRE_SECONDS", &config.SessionTTL, time.Second},
	}
	for _, e := range ints {
		v, ok := lookup(e.name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", e.name, err)
		}
		*e.dst = time.Duration(n) * e.unit
	}

	if v, ok := lookup("BCRYPT_COST"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BCRYPT_COST: %w", err)
		}
		config.BcryptCost = n
	}

	if v, ok := lookup("REQUEST_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("REQUEST_TIMEOUT: %w", err)
		}
		config.RequestTimeout = d
	}

	return nil
}
