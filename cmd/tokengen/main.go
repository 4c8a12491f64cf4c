// Package main implements a command-line tool that mints bearer tokens for
// the reelchain API using the configured signing secret.
//
// Usage:
//
//	go run ./cmd/tokengen -subject operator -lifetime 24h
//
// The secret is read from REELCHAIN_AUTH_JWT_SECRET (or a .env file) unless
// -secret is given.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/phrazzld/reelchain/internal/config"
	"github.com/phrazzld/reelchain/internal/service/auth"
)

const secretEnv = config.EnvPrefix + "_AUTH_JWT_SECRET"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("tokengen", flag.ContinueOnError)
	subject := fs.String("subject", "operator", "Token subject")
	lifetime := fs.Duration("lifetime", time.Hour, "Token lifetime")
	secret := fs.String("secret", "", "Signing secret (defaults to "+secretEnv+")")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *secret == "" {
		_ = godotenv.Load()
		*secret = os.Getenv(secretEnv)
	}
	if *secret == "" {
		return fmt.Errorf("no signing secret: set %s or pass -secret", secretEnv)
	}

	svc, err := auth.NewJWTService(config.AuthConfig{JWTSecret: *secret, TokenLifetime: *lifetime})
	if err != nil {
		return err
	}
	token, err := svc.GenerateToken(context.Background(), *subject, *lifetime)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}

	_, err = fmt.Fprintln(out, token)
	return err
}
