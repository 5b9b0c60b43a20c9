// Package verifier decides whether a target digest is adequately reviewed by
// identities the verifying party transitively trusts.
//
// A verdict is a pure function of the target, the verified proof set, the
// starting identity and the policy.
package verifier

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/crev-dev/cargo-crev-sub001/pkg/digest"
	"github.com/crev-dev/cargo-crev-sub001/pkg/identity"
	"github.com/crev-dev/cargo-crev-sub001/pkg/observability"
	"github.com/crev-dev/cargo-crev-sub001/pkg/proof"
	"github.com/crev-dev/cargo-crev-sub001/pkg/trust"
)

// Proofs is a verified, read-only proof set. Implementations must be safe for
// concurrent readers.
type Proofs interface {
	Graph() *trust.Graph
	// Reviews returns the reviews of target in merge order.
	Reviews(target digest.Digest) []proof.Content
}

// Collection is the simplest Proofs: an in-memory set of already verified
// contents.
type Collection struct {
	graph   *trust.Graph
	reviews map[digest.Digest][]proof.Content
}

// NewCollection groups contents by kind. Trust statements feed the graph;
// reviews are indexed by target.
func NewCollection(contents []proof.Content) *Collection {
	c := &Collection{reviews: make(map[digest.Digest][]proof.Content)}
	var statements []*proof.Trust
	for _, content := range contents {
		if t, ok := content.(*proof.Trust); ok {
			statements = append(statements, t)
			continue
		}
		if target, ok := proof.Target(content); ok {
			c.reviews[target] = append(c.reviews[target], content)
		}
	}
	c.graph = trust.NewGraph(statements)
	return c
}

func (c *Collection) Graph() *trust.Graph { return c.graph }

func (c *Collection) Reviews(target digest.Digest) []proof.Content { return c.reviews[target] }

// Option configures a Verifier.
type Option func(*Verifier)

// WithLogger overrides the default component logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Verifier) { v.logger = l }
}

// WithObservability records spans and verdict counters on p.
func WithObservability(p *observability.Provider) Option {
	return func(v *Verifier) { v.obs = p }
}

// WithWorkers bounds VerifyMany's concurrency. Zero means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(v *Verifier) { v.workers = n }
}

// Verifier evaluates targets under one policy.
type Verifier struct {
	policy  trust.Policy
	logger  *slog.Logger
	obs     *observability.Provider
	workers int
}

// New validates policy and returns a verifier.
func New(policy trust.Policy, opts ...Option) (*Verifier, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	v := &Verifier{
		policy: policy,
		logger: slog.Default().With("component", "verifier"),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.workers <= 0 {
		v.workers = runtime.GOMAXPROCS(0)
	}
	return v, nil
}

// Policy returns the verifier's policy.
func (v *Verifier) Policy() trust.Policy {
	return v.policy
}

// TrustSet computes the effective trust set of start.
func (v *Verifier) TrustSet(ctx context.Context, proofs Proofs, start identity.ID) (*trust.Set, error) {
	_, done := v.obs.TrackOperation(ctx, "trust.compute", attribute.String("start", start.String()))
	set, err := trust.Compute(proofs.Graph(), start, v.policy)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("compute trust set: %w", err)
	}
	v.logger.DebugContext(ctx, "trust set computed",
		"start", start.String(),
		"trusted", set.Len(),
		"poisoned", len(set.Poisoned()),
	)
	return set, nil
}

// Verify evaluates one target.
func (v *Verifier) Verify(ctx context.Context, proofs Proofs, start identity.ID, target digest.Digest) (*Verdict, error) {
	set, err := v.TrustSet(ctx, proofs, start)
	if err != nil {
		return nil, err
	}
	return v.evaluate(ctx, set, proofs, target), nil
}

// VerifyMany evaluates targets concurrently against one trust set. Verdicts
// are returned in target order.
func (v *Verifier) VerifyMany(ctx context.Context, proofs Proofs, start identity.ID, targets []digest.Digest) ([]*Verdict, error) {
	set, err := v.TrustSet(ctx, proofs, start)
	if err != nil {
		return nil, err
	}

	verdicts := make([]*Verdict, len(targets))
	sem := make(chan struct{}, v.workers)
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(idx int, t digest.Digest) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			verdicts[idx] = v.evaluate(ctx, set, proofs, t)
		}(i, target)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return verdicts, nil
}

func (v *Verifier) evaluate(ctx context.Context, set *trust.Set, proofs Proofs, target digest.Digest) *Verdict {
	_, done := v.obs.TrackOperation(ctx, "verify.target", attribute.String("target", target.String()))
	verdict := Evaluate(set, target, proofs.Reviews(target))
	done(nil)

	v.obs.RecordVerdict(ctx, verdict.Sufficient)
	v.logger.InfoContext(ctx, "target verified",
		"target", target.String(),
		"sufficient", verdict.Sufficient,
		"contributing", len(verdict.Contributing),
		"vetoing", len(verdict.Vetoing),
		"explanation", verdict.Explanation,
	)
	return verdict
}

// VerifyTarget verifies target against already verified contents.
func VerifyTarget(target digest.Digest, contents []proof.Content, policy trust.Policy, start identity.ID) (*Verdict, error) {
	v, err := New(policy)
	if err != nil {
		return nil, err
	}
	return v.Verify(context.Background(), NewCollection(contents), start, target)
}

// Evaluate aggregates reviews of target under set. Only the latest review of
// each reviewer counts; ties on date keep the later review in input order.
// The target is sufficiently reviewed when some trusted reviewer asserts
// trust at or above the policy minimum and no trusted reviewer asserts
// distrust at or above it.
func Evaluate(set *trust.Set, target digest.Digest, reviews []proof.Content) *Verdict {
	min := set.Policy().MinTrustLevel

	type latestReview struct {
		content proof.Content
		review  proof.Review
	}
	latest := make(map[identity.ID]latestReview)
	for _, c := range reviews {
		got, ok := proof.Target(c)
		if !ok || got != target {
			continue
		}
		r, _ := proof.ReviewOf(c)
		signer := proof.Signer(c)
		if prev, seen := latest[signer]; seen && prev.content.Header().Date.After(c.Header().Date.Time) {
			continue
		}
		latest[signer] = latestReview{content: c, review: r}
	}

	verdict := &Verdict{
		Target:       target,
		Start:        set.Start(),
		Contributing: []Reviewer{},
		Poisoned:     set.Poisoned(),
		Reviews:      len(latest),
	}
	for signer, lr := range latest {
		if !set.Contains(signer) {
			verdict.Untrusted++
			continue
		}
		path, _ := set.PathTo(signer)
		reviewer := Reviewer{
			ID:     signer,
			Path:   path,
			Review: lr.review,
			Date:   lr.content.Header().Date.Time,
		}
		if lr.review.Distrust > proof.None && lr.review.Distrust.AtLeast(min) {
			verdict.Vetoing = append(verdict.Vetoing, reviewer)
		}
		if lr.review.Trust.AtLeast(min) {
			verdict.Contributing = append(verdict.Contributing, reviewer)
		}
	}
	sortReviewers(verdict.Contributing)
	sortReviewers(verdict.Vetoing)

	verdict.Sufficient = len(verdict.Contributing) > 0 && len(verdict.Vetoing) == 0
	verdict.explain(min)
	return verdict
}

// sortReviewers orders by path hops, then cost, then id.
func sortReviewers(rs []Reviewer) {
	sort.Slice(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.Path.Hops() != b.Path.Hops() {
			return a.Path.Hops() < b.Path.Hops()
		}
		if a.Path.Cost != b.Path.Cost {
			return a.Path.Cost < b.Path.Cost
		}
		return a.ID.Compare(b.ID) < 0
	})
}
