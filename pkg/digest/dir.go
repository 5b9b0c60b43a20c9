package digest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// ErrUnsupportedFileType is returned for symlinks, devices, sockets and other
// entries that are neither regular files nor directories.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// IOError reports the path at which a directory digest was aborted.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("digest %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Option configures a directory digest.
type Option func(*dirConfig)

type dirConfig struct {
	ignore      map[string]struct{}
	parallelism int
}

// WithIgnore skips every entry whose name is in names, at any depth.
func WithIgnore(names ...string) Option {
	return func(c *dirConfig) {
		for _, n := range names {
			c.ignore[n] = struct{}{}
		}
	}
}

// WithParallelism bounds how many subdirectories are hashed concurrently.
// Values below 1 hash everything on the calling goroutine.
func WithParallelism(n int) Option {
	return func(c *dirConfig) {
		c.parallelism = n
	}
}

// Path digests the directory tree rooted at dir on the local filesystem.
func Path(ctx context.Context, dir string, opts ...Option) (Digest, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return Zero, &IOError{Path: dir, Err: err}
	}
	if !info.IsDir() {
		return Zero, &IOError{Path: dir, Err: fmt.Errorf("not a directory")}
	}
	return Dir(ctx, os.DirFS(dir), ".", opts...)
}

// Dir digests the tree rooted at root inside fsys. Any read or stat failure
// aborts the whole computation; no partial digest is ever returned.
func Dir(ctx context.Context, fsys fs.FS, root string, opts ...Option) (Digest, error) {
	cfg := &dirConfig{
		ignore:      make(map[string]struct{}),
		parallelism: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	w := &dirWalker{fsys: fsys, cfg: cfg}
	if cfg.parallelism > 1 {
		w.sem = make(chan struct{}, cfg.parallelism-1)
	}
	return w.dir(ctx, root)
}

type dirWalker struct {
	fsys fs.FS
	cfg  *dirConfig
	sem  chan struct{}
}

type entryDigest struct {
	name   string
	digest Digest
}

func (w *dirWalker) dir(ctx context.Context, dir string) (Digest, error) {
	if err := ctx.Err(); err != nil {
		return Zero, err
	}

	entries, err := fs.ReadDir(w.fsys, dir)
	if err != nil {
		return Zero, &IOError{Path: dir, Err: err}
	}

	results := make([]entryDigest, 0, len(entries))
	errs := make([]error, 0)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	record := func(name string, d Digest, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			errs = append(errs, err)
			return
		}
		results = append(results, entryDigest{name: name, digest: d})
	}

	for _, e := range entries {
		name := e.Name()
		if _, skip := w.cfg.ignore[name]; skip {
			continue
		}
		full := path.Join(dir, name)

		switch t := e.Type(); {
		case t.IsDir():
			// Hand the subtree to another goroutine only when a slot is free;
			// otherwise recurse inline so nested waits can never exhaust the pool.
			if w.acquire() {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer w.release()
					d, err := w.dir(ctx, full)
					record(name, d, err)
				}()
				continue
			}
			d, err := w.dir(ctx, full)
			record(name, d, err)
		case t.IsRegular():
			d, err := w.file(full)
			record(name, d, err)
		default:
			record(name, Zero, &IOError{Path: full, Err: ErrUnsupportedFileType})
		}
	}
	wg.Wait()

	if len(errs) > 0 {
		return Zero, errors.Join(errs...)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].name < results[j].name })

	h, _ := blake2b.New256(nil)
	for _, r := range results {
		_, _ = h.Write([]byte(r.name))
		_, _ = h.Write(r.digest[:])
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out, nil
}

func (w *dirWalker) file(name string) (Digest, error) {
	f, err := w.fsys.Open(name)
	if err != nil {
		return Zero, &IOError{Path: name, Err: err}
	}
	defer func() { _ = f.Close() }()

	d, err := Reader(f)
	if err != nil {
		return Zero, &IOError{Path: name, Err: err}
	}
	return d, nil
}

func (w *dirWalker) acquire() bool {
	if w.sem == nil {
		return false
	}
	select {
	case w.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (w *dirWalker) release() {
	<-w.sem
}
