// Package authctl implements the operator CLI: hashing passwords, applying
// database migrations and inspecting tokens.
package authctl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/flagx"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/password"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// errUsage is returned for malformed command lines. Usage has already been
// printed when it is seen.
var errUsage = errors.New("usage")

const usage = `usage: authctl <command> [flags]

commands:
  hash [-cost N] [-stdin]      print the bcrypt hash of a password
  migrate [config flags]       apply database migrations
  verify-token TOKEN [flags]   decode TOKEN with the configured secret
`

type migrator interface {
	RunMigrations(ctx context.Context) error
	Close() error
}

// CLI holds the streams and seams a command runs against.
type CLI struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Lookup func(string) (string, bool)

	openDB func(ctx context.Context, o repomanager.PostgresOptions) (migrator, error)
}

func New() *CLI {
	return &CLI{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Lookup: os.LookupEnv,
		openDB: func(ctx context.Context, o repomanager.PostgresOptions) (migrator, error) {
			return repomanager.OpenPostgres(ctx, o)
		},
	}
}

// Run executes the command in args and returns the process exit code.
func (c *CLI) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(c.Stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "hash":
		err = c.hash(ctx, args[1:])
	case "migrate":
		err = c.migrate(ctx, args[1:])
	case "verify-token":
		err = c.verifyToken(args[1:])
	case "help", "-h", "-help", "--help":
		fmt.Fprint(c.Stdout, usage)
		return 0
	default:
		fmt.Fprintf(c.Stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		return 2
	default:
		fmt.Fprintf(c.Stderr, "authctl %s: %v\n", args[0], err)
		return 1
	}
}

func (c *CLI) hash(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	fs.SetOutput(c.Stderr)
	cost := fs.Int("cost", password.DefaultCost, "bcrypt cost")
	fromStdin := fs.Bool("stdin", false, "read the password from standard input")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	pw, err := c.readSecret(*fromStdin)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	if len(pw) == 0 {
		return errors.New("empty password")
	}

	hash, err := password.NewHasher(*cost, 1).Hash(ctx, string(pw))
	if err != nil {
		return err
	}

	fmt.Fprintln(c.Stdout, hash)
	return nil
}

func (c *CLI) readSecret(fromStdin bool) ([]byte, error) {
	if fromStdin {
		line, err := bufio.NewReader(c.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		return []byte(strings.TrimRight(line, "\r\n")), nil
	}

	fmt.Fprint(c.Stderr, "Enter password: ")
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(c.Stderr)
	return pw, err
}

func (c *CLI) migrate(ctx context.Context, args []string) error {
	cfg, err := config.Load(args, c.Lookup)
	if err != nil {
		return err
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("database DSN is not configured")
	}

	m, err := c.openDB(ctx, repomanager.PostgresOptions{
		DSN:             cfg.DatabaseDSN,
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.RunMigrations(ctx); err != nil {
		return err
	}

	fmt.Fprintln(c.Stdout, "migrations applied")
	return nil
}

type tokenReport struct {
	Valid  bool        `json:"valid"`
	Claims auth.Claims `json:"claims"`
}

func (c *CLI) verifyToken(args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		fmt.Fprint(c.Stderr, usage)
		return errUsage
	}
	token, rest := args[0], args[1:]

	// only config flags are meaningful here
	if extra := flagx.FilterArgs(rest, []string{"-s", "-alg", "-c", "-config", "--config"}); len(extra) != len(rest) {
		fmt.Fprintf(c.Stderr, "verify-token accepts only -s, -alg and -c\n")
		return errUsage
	}

	cfg, err := config.Load(rest, c.Lookup)
	if err != nil {
		return err
	}

	codec, err := auth.NewCodec([]byte(cfg.SecretKey), cfg.Algorithm)
	if err != nil {
		return err
	}

	d := codec.Decode(token)
	if !d.Valid {
		fmt.Fprintln(c.Stdout, "invalid")
		return errors.New("token is invalid or expired")
	}

	enc := json.NewEncoder(c.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenReport{Valid: true, Claims: d.Claims})
}
