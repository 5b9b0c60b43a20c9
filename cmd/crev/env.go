package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/crev-dev/cargo-crev-sub001/pkg/cache"
	"github.com/crev-dev/cargo-crev-sub001/pkg/config"
	"github.com/crev-dev/cargo-crev-sub001/pkg/credentials"
	"github.com/crev-dev/cargo-crev-sub001/pkg/digest"
	"github.com/crev-dev/cargo-crev-sub001/pkg/identity"
	"github.com/crev-dev/cargo-crev-sub001/pkg/observability"
	"github.com/crev-dev/cargo-crev-sub001/pkg/store"
)

var errNoIdentity = errors.New("no identity; run `crev id new` first")

// env carries what every command shares: configuration, logging, telemetry
// and the lazily opened proof store and Redis client.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	obs    *observability.Provider
	store  *store.Store
	redis  *cache.Redis
}

func newEnv(ctx context.Context, stderr io.Writer) (*env, error) {
	cfg := config.Load()
	logger := cfg.Logger(stderr)
	slog.SetDefault(logger)

	ocfg := observability.DefaultConfig()
	ocfg.Enabled = cfg.OTelEnabled
	ocfg.OTLPEndpoint = cfg.OTLPEndpoint
	obs, err := observability.New(ctx, ocfg)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}
	return &env{cfg: cfg, logger: logger, obs: obs}, nil
}

func (e *env) close(ctx context.Context) {
	if e.store != nil {
		_ = e.store.Close()
	}
	if e.redis != nil {
		_ = e.redis.Close()
	}
	if err := e.obs.Shutdown(ctx); err != nil {
		e.logger.WarnContext(ctx, "observability shutdown failed", "error", err)
	}
}

func (e *env) openStore(ctx context.Context) (*store.Store, error) {
	if e.store != nil {
		return e.store, nil
	}
	dsn := e.cfg.DatabaseURL
	if !strings.Contains(dsn, "://") && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o700); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	st, err := store.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	e.store = st
	return st, nil
}

// passphrases returns the persistent store when a credentials key is
// configured; otherwise a memory store seeded from $CREV_PASSPHRASE.
func (e *env) passphrases(ctx context.Context, id identity.ID) (credentials.PassphraseStore, error) {
	if e.cfg.CredentialsKey == "" {
		m := credentials.NewMemoryStore()
		if v := os.Getenv(credentials.EnvPassphrase); v != "" {
			_ = m.SetPassphrase(ctx, id, v)
		}
		return m, nil
	}
	key, err := hex.DecodeString(e.cfg.CredentialsKey)
	if err != nil {
		return nil, fmt.Errorf("CREV_CREDENTIALS_KEY: %w", err)
	}
	st, err := e.openStore(ctx)
	if err != nil {
		return nil, err
	}
	ps, err := credentials.NewSQLStore(st.DB(), key, credentials.WithEnvFallback(true))
	if err != nil {
		return nil, err
	}
	if err := ps.Init(ctx); err != nil {
		return nil, err
	}
	return ps, nil
}

func (e *env) lockedID() (*identity.LockedID, error) {
	data, err := os.ReadFile(e.cfg.IDPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, errNoIdentity
	}
	if err != nil {
		return nil, err
	}
	return identity.ParseLockedID(data)
}

// unlock opens the current identity. A non-empty pass is remembered in the
// passphrase store before unlocking.
func (e *env) unlock(ctx context.Context, pass string) (*identity.OwnID, error) {
	locked, err := e.lockedID()
	if err != nil {
		return nil, err
	}
	id, err := locked.ID()
	if err != nil {
		return nil, err
	}
	ps, err := e.passphrases(ctx, id)
	if err != nil {
		return nil, err
	}
	if pass != "" {
		if err := ps.SetPassphrase(ctx, id, pass); err != nil {
			return nil, err
		}
	}
	return credentials.Unlock(ctx, ps, locked)
}

// resolveTarget accepts a file, a directory or a textual digest.
func (e *env) resolveTarget(ctx context.Context, arg string) (digest.Digest, error) {
	info, err := os.Stat(arg)
	if err != nil {
		if d, perr := digest.Parse(arg); perr == nil {
			return d, nil
		}
		return digest.Zero, fmt.Errorf("%s is neither a path nor a digest", arg)
	}
	if info.IsDir() {
		var opts []digest.Option
		if e.cfg.Workers > 0 {
			opts = append(opts, digest.WithParallelism(e.cfg.Workers))
		}
		_, done := e.obs.TrackOperation(ctx, "digest.dir")
		d, err := digest.Path(ctx, arg, opts...)
		done(err)
		return d, err
	}
	if !info.Mode().IsRegular() {
		return digest.Zero, &digest.IOError{Path: arg, Err: digest.ErrUnsupportedFileType}
	}
	f, err := os.Open(arg)
	if err != nil {
		return digest.Zero, &digest.IOError{Path: arg, Err: err}
	}
	defer func() { _ = f.Close() }()
	d, err := digest.Reader(f)
	if err != nil {
		return digest.Zero, &digest.IOError{Path: arg, Err: err}
	}
	return d, nil
}
