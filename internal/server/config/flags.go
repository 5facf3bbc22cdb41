package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags:
//
//	-a string    HTTP bind address (e.g., ":8000")
//	-g string    gRPC bind address, empty disables gRPC
//	-d string    PostgreSQL DSN
//	-r string    Redis URL
//	-s string    JWT HMAC secret key
//	-alg string  signing algorithm (HS256, HS384, HS512)
//	-t int       access token validity, minutes
//	-rt int      refresh token validity, minutes
//	-st int      session validity, seconds
//	-cost int    bcrypt cost
//	-l string    log level
//	-lf string   log format (json, text)
//
// args are filtered with flagx.FilterArgs first so flags owned by other
// components (-c) do not collide.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-g", "-d", "-r", "-s", "-alg", "-t", "-rt", "-st", "-cost", "-l", "-lf"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run HTTP server")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "address and port to run gRPC server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisURL, "r", config.RedisURL, "redis URL")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.Algorithm, "alg", config.Algorithm, "token signing algorithm")

	accessTTL := fs.Int("t", int(config.AccessTokenTTL.Minutes()), "access token validity (in minutes)")
	refreshTTL := fs.Int("rt", int(config.RefreshTokenTTL.Minutes()), "refresh token validity (in minutes)")
	sessionTTL := fs.Int("st", int(config.SessionTTL.Seconds()), "session validity (in seconds)")

	fs.IntVar(&config.BcryptCost, "cost", config.BcryptCost, "bcrypt cost")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.LogFormat, "lf", config.LogFormat, "log format")

	if err := fs.Parse(args); err != nil {
		return err
	}

	// Only touch durations that were given, so sub-minute values from the
	// file or environment survive.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.AccessTokenTTL = time.Duration(*accessTTL) * time.Minute
		case "rt":
			config.RefreshTokenTTL = time.Duration(*refreshTTL) * time.Minute
		case "st":
			config.SessionTTL = time.Duration(*sessionTTL) * time.Second
		}
	})
	return nil
}
