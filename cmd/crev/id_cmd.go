package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/crev-dev/cargo-crev-sub001/pkg/credentials"
	"github.com/crev-dev/cargo-crev-sub001/pkg/identity"
)

func runIDCmd(args []string, stdout, stderr io.Writer) int {
	switch args[0] {
	case "new":
		return runIDNew(args[1:], stdout, stderr)
	case "show":
		return runIDShow(args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown id command: %s\n", args[0])
		return 2
	}
}

func runIDNew(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("id new", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		url   string
		alias string
		pass  string
		force bool
	)
	cmd.StringVar(&url, "url", "", "URL of the proof repository for this identity")
	cmd.StringVar(&alias, "alias", "", "Local nickname for this identity")
	cmd.StringVar(&pass, "passphrase", "", "Passphrase (default $CREV_PASSPHRASE)")
	cmd.BoolVar(&force, "force", false, "Replace an existing identity")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if pass == "" {
		pass = os.Getenv(credentials.EnvPassphrase)
	}
	if pass == "" {
		_, _ = fmt.Fprintln(stderr, "Error: a passphrase is required (--passphrase or $CREV_PASSPHRASE)")
		return 2
	}

	ctx := context.Background()
	e, err := newEnv(ctx, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer e.close(ctx)

	path := e.cfg.IDPath()
	if _, err := os.Stat(path); err == nil && !force {
		_, _ = fmt.Fprintf(stderr, "Error: identity already exists at %s (use --force)\n", path)
		return 2
	}

	own, err := identity.Generate(url, nil)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	own.Alias = alias
	locked, err := identity.Lock(own, pass, nil)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	data, err := locked.Marshal()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: cannot write identity: %v\n", err)
		return 2
	}

	if e.cfg.CredentialsKey != "" {
		ps, err := e.passphrases(ctx, own.ID())
		if err == nil {
			err = ps.SetPassphrase(ctx, own.ID(), pass)
		}
		if err != nil {
			e.logger.WarnContext(ctx, "passphrase not remembered", "error", err)
		}
	}

	e.logger.InfoContext(ctx, "identity created", "id", own.ID().String(), "path", path)
	printIdentity(stdout, own.PubID(), alias)
	return 0
}

func runIDShow(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("id show", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	e, err := newEnv(ctx, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer e.close(ctx)

	locked, err := e.lockedID()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, errNoIdentity) {
			return 1
		}
		return 2
	}
	id, err := locked.ID()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	printIdentity(stdout, identity.NewPubID(id, locked.URL), locked.Alias)
	return 0
}

func printIdentity(w io.Writer, pub identity.PubID, alias string) {
	_, _ = fmt.Fprintln(w, pub.String())
	if alias != "" {
		_, _ = fmt.Fprintf(w, "alias: %s\n", alias)
	}
}
