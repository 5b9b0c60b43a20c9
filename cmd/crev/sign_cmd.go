package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/crev-dev/cargo-crev-sub001/pkg/identity"
	"github.com/crev-dev/cargo-crev-sub001/pkg/proof"
)

// levelFlag is a flag.Value for trust levels.
type levelFlag struct {
	level proof.Level
}

func (f *levelFlag) String() string { return f.level.String() }

func (f *levelFlag) Set(s string) error {
	l, err := proof.ParseLevel(s)
	if err != nil {
		return err
	}
	f.level = l
	return nil
}

func runTrustCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("trust", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		level    = levelFlag{proof.DefaultTrustLevel}
		distrust = levelFlag{proof.None}
		comment  string
		pass     string
	)
	cmd.Var(&level, "level", "Trust level: none, low, medium, high")
	cmd.Var(&distrust, "distrust", "Distrust level; implies --level none")
	cmd.StringVar(&comment, "comment", "", "Free-text comment")
	cmd.StringVar(&pass, "passphrase", "", "Passphrase (default: stored or $CREV_PASSPHRASE)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if cmd.NArg() == 0 {
		_, _ = fmt.Fprintln(stderr, "Usage: crev trust [--level L|--distrust L] ID[=URL]...")
		return 2
	}

	var ids []identity.PubID
	for _, arg := range cmd.Args() {
		raw, url, _ := strings.Cut(arg, "=")
		id, err := identity.ParseID(raw)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %s: %v\n", arg, err)
			return 2
		}
		ids = append(ids, identity.NewPubID(id, url))
	}

	content := proof.NewTrust(ids...)
	content.Trust = level.level
	if distrust.level > proof.None {
		content = proof.NewDistrust(distrust.level, ids...)
	}
	content.Comment = comment

	ctx := context.Background()
	e, err := newEnv(ctx, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer e.close(ctx)
	return signAndStore(ctx, e, content, pass, stdout, stderr)
}

func runReviewCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("review", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		trustLevel    = levelFlag{proof.Medium}
		thoroughness  = levelFlag{proof.Low}
		understanding = levelFlag{proof.Medium}
		distrust      = levelFlag{proof.None}
		comment       string
		path          string
		pkgName       string
		pkgSource     string
		pkgVersion    string
		pass          string
	)
	cmd.Var(&trustLevel, "trust", "Trust in the reviewed code")
	cmd.Var(&thoroughness, "thoroughness", "How thorough the review was")
	cmd.Var(&understanding, "understanding", "How well the code was understood")
	cmd.Var(&distrust, "distrust", "Distrust in the reviewed code")
	cmd.StringVar(&comment, "comment", "", "Free-text comment")
	cmd.StringVar(&path, "path", "", "Path recorded in a code review")
	cmd.StringVar(&pkgName, "package", "", "Review a whole package under this name")
	cmd.StringVar(&pkgSource, "source", "", "Package source, e.g. a registry URL")
	cmd.StringVar(&pkgVersion, "version", "", "Package version (semver)")
	cmd.StringVar(&pass, "passphrase", "", "Passphrase (default: stored or $CREV_PASSPHRASE)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if cmd.NArg() != 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: crev review [flags] PATH|DIGEST")
		return 2
	}

	ctx := context.Background()
	e, err := newEnv(ctx, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer e.close(ctx)

	target, err := e.resolveTarget(ctx, cmd.Arg(0))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	review := proof.Review{
		Thoroughness:  thoroughness.level,
		Understanding: understanding.level,
		Trust:         trustLevel.level,
		Distrust:      distrust.level,
	}

	var content proof.Content
	if pkgName != "" {
		pr := &proof.PackageReview{
			Package: proof.Package{Source: pkgSource, Name: pkgName},
			Digest:  target,
			Review:  review,
			Comment: comment,
		}
		if pkgVersion != "" {
			v, err := semver.NewVersion(pkgVersion)
			if err != nil {
				_, _ = fmt.Fprintf(stderr, "Error: --version: %v\n", err)
				return 2
			}
			pr.Package.Version = v
		}
		content = pr
	} else {
		if path == "" {
			path = cmd.Arg(0)
		}
		content = &proof.CodeReview{Digest: target, Path: path, Review: review, Comment: comment}
	}
	return signAndStore(ctx, e, content, pass, stdout, stderr)
}

// signAndStore signs content with the current identity, appends the proof to
// the local store and prints it.
func signAndStore(ctx context.Context, e *env, content proof.Content, pass string, stdout, stderr io.Writer) int {
	own, err := e.unlock(ctx, pass)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: cannot unlock identity: %v\n", err)
		return 2
	}
	p, err := proof.Sign(own, content)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	st, err := e.openStore(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	d, _, err := st.Put(ctx, own.ID().String(), p.Bytes())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	e.logger.InfoContext(ctx, "proof signed", "kind", string(p.Kind), "blob", d.String())

	_, _ = p.WriteTo(stdout)
	return 0
}
