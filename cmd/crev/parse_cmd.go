package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/crev-dev/cargo-crev-sub001/pkg/index"
	"github.com/crev-dev/cargo-crev-sub001/pkg/proof"
)

// runParseCmd parses and authenticates proof files. With --import the files
// are appended to the local store; files are stored even when some of their
// proofs are rejected, since the index re-verifies every proof it loads.
func runParseCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("parse", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var doImport bool
	cmd.BoolVar(&doImport, "import", false, "Append the files to the local proof store")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if cmd.NArg() == 0 {
		_, _ = fmt.Fprintln(stderr, "Usage: crev parse [--import] FILE...  (- reads stdin)")
		return 2
	}

	ctx := context.Background()
	e, err := newEnv(ctx, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer e.close(ctx)

	var blobs []index.Blob
	for _, name := range cmd.Args() {
		var data []byte
		if name == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(name)
		}
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		blobs = append(blobs, index.Blob{Source: name, Data: data})
	}

	idx, err := index.Build(ctx, blobs,
		index.WithWorkers(e.cfg.Workers),
		index.WithLogger(e.logger.With("component", "index")),
		index.WithObservability(e.obs),
	)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ok := color.New(color.FgGreen)
	bad := color.New(color.FgRed)
	for _, entry := range idx.Entries() {
		_, _ = ok.Fprint(stdout, "OK      ")
		_, _ = fmt.Fprintf(stdout, "%s:%d %s by %s\n", entry.Source, entry.Proof.Line, entry.Proof.Kind, proof.Signer(entry.Content))
	}
	for _, rej := range idx.Rejected() {
		_, _ = bad.Fprint(stdout, "REJECT  ")
		_, _ = fmt.Fprintln(stdout, rej.Error())
	}

	if doImport {
		st, err := e.openStore(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		added := 0
		for _, b := range blobs {
			_, isNew, err := st.Put(ctx, b.Source, b.Data)
			if err != nil {
				_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
				return 2
			}
			if isNew {
				added++
			}
		}
		_, _ = fmt.Fprintf(stdout, "Imported %d new file(s)\n", added)
	}

	if len(idx.Rejected()) > 0 {
		return 1
	}
	return 0
}
