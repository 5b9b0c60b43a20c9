// Package index ingests raw proof blobs into a verified, read-only proof set.
//
// Blobs are parsed and their proofs authenticated on a bounded worker pool.
// Accepted proofs are merged in a deterministic order (date, then signer id,
// then blob digest, then position in the blob) so that everything built on
// top of the index, last-writer-wins trust edges in particular, is
// independent of ingestion order.
package index

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/crev-dev/cargo-crev-sub001/pkg/digest"
	"github.com/crev-dev/cargo-crev-sub001/pkg/observability"
	"github.com/crev-dev/cargo-crev-sub001/pkg/proof"
	"github.com/crev-dev/cargo-crev-sub001/pkg/trust"
)

// Blob is one document of concatenated proofs as fetched by a collaborator.
type Blob struct {
	Source string
	Data   []byte
}

// BlobError reports a blob, or a single proof inside it, that was excluded.
type BlobError struct {
	Source string
	Line   int // begin marker of the rejected proof, 0 for a whole blob
	Err    error
}

func (e *BlobError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *BlobError) Unwrap() error {
	return e.Err
}

// Entry is an accepted proof.
type Entry struct {
	Proof   *proof.Proof
	Content proof.Content
	Source  string
	Blob    digest.Digest
	Digest  digest.Digest // digest of the rendered envelope
	pos     int
}

// Index is a verified proof set. It is immutable once built and safe for
// concurrent use.
type Index struct {
	entries     []Entry
	graph       *trust.Graph
	reviews     map[digest.Digest][]proof.Content
	rejected    []*BlobError
	fingerprint digest.Digest
}

// Option configures Build.
type Option func(*builder)

// WithWorkers bounds ingestion concurrency. Zero means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(b *builder) { b.workers = n }
}

// WithLogger overrides the default component logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *builder) { b.logger = l }
}

// WithObservability records a span for the build and counts rejections.
func WithObservability(p *observability.Provider) Option {
	return func(b *builder) { b.obs = p }
}

type builder struct {
	workers int
	logger  *slog.Logger
	obs     *observability.Provider
}

type blobResult struct {
	entries  []Entry
	rejected []*BlobError
}

// Build parses and verifies blobs. Malformed blobs and proofs that fail
// authentication are excluded and reported by Rejected; they never fail the
// build. Build only returns an error when ctx is done.
func Build(ctx context.Context, blobs []Blob, opts ...Option) (*Index, error) {
	b := &builder{logger: slog.Default().With("component", "index")}
	for _, opt := range opts {
		opt(b)
	}
	if b.workers <= 0 {
		b.workers = runtime.GOMAXPROCS(0)
	}

	ctx, done := b.obs.TrackOperation(ctx, "index.build", attribute.Int("blobs", len(blobs)))
	idx, err := b.build(ctx, blobs)
	done(err)
	return idx, err
}

func (b *builder) build(ctx context.Context, blobs []Blob) (*Index, error) {
	results := make([]blobResult, len(blobs))
	sem := make(chan struct{}, b.workers)
	var wg sync.WaitGroup

	for i := range blobs {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if ctx.Err() != nil {
				return
			}
			results[idx] = ingest(blobs[idx])
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		entries  []Entry
		rejected []*BlobError
	)
	for _, r := range results {
		entries = append(entries, r.entries...)
		rejected = append(rejected, r.rejected...)
	}

	for _, rej := range rejected {
		reason := "signature"
		var perr *proof.ParseError
		switch {
		case errors.As(rej.Err, &perr):
			reason = "parse"
		case errors.Is(rej.Err, proof.ErrUnsupportedContentType):
			reason = "unsupported"
		}
		b.obs.RecordRejected(ctx, reason)
		b.logger.WarnContext(ctx, "proof rejected",
			"blob", rej.Source,
			"line", rej.Line,
			"reason", reason,
			"error", rej.Err,
		)
	}

	idx := newIndex(entries, rejected)
	b.logger.InfoContext(ctx, "index built",
		"blobs", len(blobs),
		"proofs", len(idx.entries),
		"rejected", len(rejected),
		"fingerprint", idx.fingerprint.String(),
	)
	return idx, nil
}

func ingest(blob Blob) blobResult {
	proofs, err := proof.ParseAll(blob.Data)
	if err != nil {
		return blobResult{rejected: []*BlobError{{Source: blob.Source, Err: err}}}
	}

	var res blobResult
	blobDigest := digest.File(blob.Data)
	for i, p := range proofs {
		content, err := proof.Verify(p, nil)
		if err != nil {
			res.rejected = append(res.rejected, &BlobError{Source: blob.Source, Line: p.Line, Err: err})
			continue
		}
		res.entries = append(res.entries, Entry{
			Proof:   p,
			Content: content,
			Source:  blob.Source,
			Blob:    blobDigest,
			Digest:  digest.File(p.Bytes()),
			pos:     i,
		})
	}
	return res
}

func newIndex(entries []Entry, rejected []*BlobError) *Index {
	sort.SliceStable(entries, func(i, j int) bool {
		return less(entries[i], entries[j])
	})

	seen := make(map[digest.Digest]struct{}, len(entries))
	kept := entries[:0]
	for _, e := range entries {
		if _, dup := seen[e.Digest]; dup {
			continue
		}
		seen[e.Digest] = struct{}{}
		kept = append(kept, e)
	}

	idx := &Index{
		entries:  kept,
		reviews:  make(map[digest.Digest][]proof.Content),
		rejected: rejected,
	}

	var statements []*proof.Trust
	digests := make([]digest.Digest, 0, len(kept))
	for _, e := range kept {
		digests = append(digests, e.Digest)
		switch c := e.Content.(type) {
		case *proof.Trust:
			statements = append(statements, c)
		default:
			if target, ok := proof.Target(c); ok {
				idx.reviews[target] = append(idx.reviews[target], c)
			}
		}
	}
	idx.graph = trust.NewGraph(statements)
	sort.Slice(digests, func(i, j int) bool { return bytes.Compare(digests[i][:], digests[j][:]) < 0 })
	var buf bytes.Buffer
	for _, d := range digests {
		buf.Write(d[:])
	}
	idx.fingerprint = digest.File(buf.Bytes())
	return idx
}

func less(a, b Entry) bool {
	da, db := a.Content.Header().Date.Time, b.Content.Header().Date.Time
	if !da.Equal(db) {
		return da.Before(db)
	}
	if c := proof.Signer(a.Content).Compare(proof.Signer(b.Content)); c != 0 {
		return c < 0
	}
	if c := bytes.Compare(a.Blob[:], b.Blob[:]); c != 0 {
		return c < 0
	}
	return a.pos < b.pos
}

// Graph returns the trust graph built from the indexed trust statements.
func (idx *Index) Graph() *trust.Graph {
	return idx.graph
}

// Reviews returns the reviews of target in merge order.
func (idx *Index) Reviews(target digest.Digest) []proof.Content {
	return idx.reviews[target]
}

// Entries returns the accepted proofs in merge order. The slice must not be
// modified.
func (idx *Index) Entries() []Entry {
	return idx.entries
}

// Rejected lists blobs and proofs excluded while building.
func (idx *Index) Rejected() []*BlobError {
	return idx.rejected
}

// Len is the number of accepted proofs.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Targets lists every reviewed digest, ordered by digest bytes.
func (idx *Index) Targets() []digest.Digest {
	out := make([]digest.Digest, 0, len(idx.reviews))
	for d := range idx.reviews {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// Fingerprint identifies the accepted proof set: two indexes with the same
// proofs share a fingerprint whatever blobs carried them.
func (idx *Index) Fingerprint() digest.Digest {
	return idx.fingerprint
}
