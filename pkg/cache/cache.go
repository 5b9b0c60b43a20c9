// Package cache memoizes verdicts. A verdict is a pure function of its Key,
// so entries never need invalidation; a changed proof set changes the index
// fingerprint and therefore the key.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gowebpki/jcs"

	"github.com/crev-dev/cargo-crev-sub001/pkg/digest"
	"github.com/crev-dev/cargo-crev-sub001/pkg/identity"
	"github.com/crev-dev/cargo-crev-sub001/pkg/trust"
	"github.com/crev-dev/cargo-crev-sub001/pkg/verifier"
)

var ErrMiss = errors.New("verdict not cached")

// Key is everything a verdict depends on.
type Key struct {
	Target      digest.Digest `json:"target"`
	Start       identity.ID   `json:"start"`
	Fingerprint digest.Digest `json:"fingerprint"`
	Policy      trust.Policy  `json:"policy"`
}

// Canonical renders k as RFC 8785 JSON.
func (k Key) Canonical() ([]byte, error) {
	raw, err := json.Marshal(k)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cache key: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize cache key: %w", err)
	}
	return out, nil
}

// ID is the digest of the canonical key, hex encoded.
func (k Key) ID() (string, error) {
	canon, err := k.Canonical()
	if err != nil {
		return "", err
	}
	return digest.File(canon).Hex(), nil
}

// Cache stores verdicts by key. Get returns ErrMiss for absent entries.
type Cache interface {
	Get(ctx context.Context, key Key) (*verifier.Verdict, error)
	Put(ctx context.Context, key Key, v *verifier.Verdict) error
}

// Memory is a process-local Cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key Key) (*verifier.Verdict, error) {
	id, err := key.ID()
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	raw, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrMiss
	}
	return decode(raw)
}

func (m *Memory) Put(_ context.Context, key Key, v *verifier.Verdict) error {
	id, err := key.ID()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode verdict: %w", err)
	}
	m.mu.Lock()
	m.entries[id] = raw
	m.mu.Unlock()
	return nil
}

// Len reports the number of cached verdicts.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func decode(raw []byte) (*verifier.Verdict, error) {
	var v verifier.Verdict
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to decode cached verdict: %w", err)
	}
	return &v, nil
}

// Verify consults c before running v. Cache failures are not fatal: the
// verdict is computed and returned regardless.
func Verify(ctx context.Context, c Cache, v *verifier.Verifier, proofs verifier.Proofs, fingerprint digest.Digest, start identity.ID, target digest.Digest) (*verifier.Verdict, bool, error) {
	key := Key{Target: target, Start: start, Fingerprint: fingerprint, Policy: v.Policy()}
	if cached, err := c.Get(ctx, key); err == nil {
		return cached, true, nil
	}
	verdict, err := v.Verify(ctx, proofs, start, target)
	if err != nil {
		return nil, false, err
	}
	_ = c.Put(ctx, key, verdict)
	return verdict, false, nil
}

// VerifyMany is Verify over several targets. Cached verdicts are served
// directly; the misses are evaluated together by v.VerifyMany, sharing one
// trust set. Verdicts are returned in target order along with the number of
// cache hits.
func VerifyMany(ctx context.Context, c Cache, v *verifier.Verifier, proofs verifier.Proofs, fingerprint digest.Digest, start identity.ID, targets []digest.Digest) ([]*verifier.Verdict, int, error) {
	verdicts := make([]*verifier.Verdict, len(targets))
	keys := make([]Key, len(targets))
	var (
		missed  []int
		pending []digest.Digest
	)
	for i, target := range targets {
		keys[i] = Key{Target: target, Start: start, Fingerprint: fingerprint, Policy: v.Policy()}
		if cached, err := c.Get(ctx, keys[i]); err == nil {
			verdicts[i] = cached
			continue
		}
		missed = append(missed, i)
		pending = append(pending, target)
	}
	hits := len(targets) - len(missed)
	if len(pending) == 0 {
		return verdicts, hits, nil
	}

	computed, err := v.VerifyMany(ctx, proofs, start, pending)
	if err != nil {
		return nil, 0, err
	}
	for j, i := range missed {
		verdicts[i] = computed[j]
		_ = c.Put(ctx, keys[i], computed[j])
	}
	return verdicts, hits, nil
}
