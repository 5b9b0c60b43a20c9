package main

import (
	"context"
	"flag"
	"fmt"
	"io"
)

func runDigestCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("digest", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		hexOut       bool
		multibaseOut bool
	)
	cmd.BoolVar(&hexOut, "hex", false, "Print lowercase hex instead of base64url")
	cmd.BoolVar(&multibaseOut, "multibase", false, "Print a multibase-encoded multihash")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if cmd.NArg() == 0 {
		_, _ = fmt.Fprintln(stderr, "Usage: crev digest [--hex|--multibase] PATH...")
		return 2
	}

	ctx := context.Background()
	e, err := newEnv(ctx, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer e.close(ctx)

	for _, path := range cmd.Args() {
		d, err := e.resolveTarget(ctx, path)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		text := d.String()
		switch {
		case hexOut:
			text = d.Hex()
		case multibaseOut:
			if text, err = d.Multibase(); err != nil {
				_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
				return 2
			}
		}
		_, _ = fmt.Fprintf(stdout, "%s  %s\n", text, path)
	}
	return 0
}
