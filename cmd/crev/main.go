package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
//
// Exit codes:
//
//	0 = success
//	1 = verification failed or proofs rejected
//	2 = usage or runtime error
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "id":
		if len(args) < 3 {
			_, _ = fmt.Fprintln(stderr, "Usage: crev id <new|show>")
			return 2
		}
		return runIDCmd(args[2:], stdout, stderr)
	case "digest":
		return runDigestCmd(args[2:], stdout, stderr)
	case "trust":
		return runTrustCmd(args[2:], stdout, stderr)
	case "review":
		return runReviewCmd(args[2:], stdout, stderr)
	case "parse":
		return runParseCmd(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Usage: crev <command> [flags]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Commands:")
	_, _ = fmt.Fprintln(w, "  id new --url URL      Generate and lock a new identity")
	_, _ = fmt.Fprintln(w, "  id show               Print the current identity")
	_, _ = fmt.Fprintln(w, "  digest PATH...        Digest files or directories")
	_, _ = fmt.Fprintln(w, "  trust ID[=URL]...     Sign a trust statement")
	_, _ = fmt.Fprintln(w, "  review PATH|DIGEST    Sign a code or package review")
	_, _ = fmt.Fprintln(w, "  parse FILE...         Parse and authenticate proof files")
	_, _ = fmt.Fprintln(w, "  verify PATH|DIGEST... Decide whether targets are adequately reviewed")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Environment: CREV_HOME, CREV_DB_URL, CREV_PASSPHRASE, CREV_CREDENTIALS_KEY,")
	_, _ = fmt.Fprintln(w, "  CREV_LOG_LEVEL, CREV_LOG_FORMAT, CREV_REDIS_ADDR, CREV_OTEL_ENABLED, CREV_WORKERS")
}
