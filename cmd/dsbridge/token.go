package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/nerrad567/dstiny-bridge/internal/api"
	"github.com/nerrad567/dstiny-bridge/internal/infrastructure/config"
)

// runToken implements "dsbridge token": it prints a bearer token for the
// admin API signed with the configured api.jwt_secret.
func runToken(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	subject := fs.String("subject", "operator", "token subject, logged with every write")
	ttl := fs.Duration("ttl", api.DefaultTokenTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parsing token flags: %w", err)
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if len(cfg.API.JWTSecret) < config.MinJWTSecretLength {
		return errors.New("api.jwt_secret is not configured")
	}

	token, err := api.IssueToken(cfg.API.JWTSecret, *subject, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token)
	return nil
}
