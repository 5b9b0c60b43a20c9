package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/crev-dev/cargo-crev-sub001/pkg/cache"
	"github.com/crev-dev/cargo-crev-sub001/pkg/config"
	"github.com/crev-dev/cargo-crev-sub001/pkg/digest"
	"github.com/crev-dev/cargo-crev-sub001/pkg/identity"
	"github.com/crev-dev/cargo-crev-sub001/pkg/index"
	"github.com/crev-dev/cargo-crev-sub001/pkg/verifier"
)

// runVerifyCmd implements `crev verify`.
//
// Every target is checked against the proofs in the local store, starting
// from the current identity unless --start names another.
//
// Exit codes:
//
//	0 = every target is sufficiently reviewed
//	1 = some target is not
//	2 = runtime error
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		jsonOutput bool
		policyPath string
		startID    string
	)
	cmd.BoolVar(&jsonOutput, "json", false, "Output verification reports as JSON")
	cmd.StringVar(&policyPath, "policy", "", "Trust policy file (default $CREV_HOME/policy.yaml)")
	cmd.StringVar(&startID, "start", "", "Identity to verify from (default: current identity)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if cmd.NArg() == 0 {
		_, _ = fmt.Fprintln(stderr, "Usage: crev verify [--json] [--policy FILE] [--start ID] PATH|DIGEST...")
		return 2
	}

	ctx := context.Background()
	e, err := newEnv(ctx, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer e.close(ctx)

	fail := func(err error) int {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if policyPath == "" {
		policyPath = e.cfg.PolicyPath()
	}
	policy, err := config.LoadPolicy(policyPath)
	if err != nil {
		return fail(err)
	}

	var start identity.ID
	if startID != "" {
		if start, err = identity.ParseID(startID); err != nil {
			return fail(err)
		}
	} else {
		locked, err := e.lockedID()
		if err != nil {
			return fail(err)
		}
		if start, err = locked.ID(); err != nil {
			return fail(err)
		}
	}

	targets := make([]digest.Digest, 0, cmd.NArg())
	for _, arg := range cmd.Args() {
		d, err := e.resolveTarget(ctx, arg)
		if err != nil {
			return fail(err)
		}
		targets = append(targets, d)
	}

	st, err := e.openStore(ctx)
	if err != nil {
		return fail(err)
	}
	blobs, err := st.Blobs(ctx)
	if err != nil {
		return fail(err)
	}
	idx, err := index.Build(ctx, blobs,
		index.WithWorkers(e.cfg.Workers),
		index.WithLogger(e.logger.With("component", "index")),
		index.WithObservability(e.obs),
	)
	if err != nil {
		return fail(err)
	}

	v, err := verifier.New(policy,
		verifier.WithLogger(e.logger.With("component", "verifier")),
		verifier.WithObservability(e.obs),
		verifier.WithWorkers(e.cfg.Workers),
	)
	if err != nil {
		return fail(err)
	}

	verdicts, hits, err := cache.VerifyMany(ctx, e.verdictCache(ctx), v, idx, idx.Fingerprint(), start, targets)
	if err != nil {
		return fail(err)
	}
	e.logger.DebugContext(ctx, "verdicts ready", "targets", len(targets), "cached", hits)

	reports := make([]*verifier.Report, 0, len(verdicts))
	allPassed := true
	for _, verdict := range verdicts {
		allPassed = allPassed && verdict.Sufficient
		reports = append(reports, verifier.NewReport(verdict, policy))
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(reports, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else {
		printReports(stdout, cmd.Args(), reports)
	}

	if !allPassed {
		return 1
	}
	return 0
}

func (e *env) verdictCache(ctx context.Context) cache.Cache {
	if e.redis != nil {
		return e.redis
	}
	if e.cfg.RedisAddr == "" {
		return cache.NewMemory()
	}
	r := cache.NewRedis(e.cfg.RedisAddr, "", 0, 0)
	if err := r.Ping(ctx); err != nil {
		e.logger.WarnContext(ctx, "redis unavailable, caching in memory", "addr", e.cfg.RedisAddr, "error", err)
		_ = r.Close()
		return cache.NewMemory()
	}
	e.redis = r
	return r
}

func printReports(w io.Writer, names []string, reports []*verifier.Report) {
	pass := color.New(color.FgGreen, color.Bold)
	failed := color.New(color.FgRed, color.Bold)
	dim := color.New(color.Faint)

	for i, r := range reports {
		if r.Verified {
			_, _ = pass.Fprint(w, "PASS ")
		} else {
			_, _ = failed.Fprint(w, "FAIL ")
		}
		_, _ = fmt.Fprintf(w, "%s (%s)\n", names[i], r.Target)
		_, _ = fmt.Fprintf(w, "  %s\n", r.Verdict.Explanation)
		for _, rev := range r.Verdict.Contributing {
			_, _ = dim.Fprintf(w, "  + %s trust=%s via %s\n", rev.ID, rev.Review.Trust, rev.Path)
		}
		for _, rev := range r.Verdict.Vetoing {
			_, _ = failed.Fprintf(w, "  - %s distrust=%s via %s\n", rev.ID, rev.Review.Distrust, rev.Path)
		}
		_, _ = fmt.Fprintf(w, "  %s\n", r.Summary)
	}
}
