package anacache

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.trai.ch/zerr"
	"golang.org/x/sync/singleflight"

	"github.com/jward/anacache/internal/cache"
	"github.com/jward/anacache/internal/runtime"
)

// ErrUnknownLanguage is returned by New for a language without a grammar.
var ErrUnknownLanguage = zerr.New("unknown language")

// Engine drives the analysis phases over a cache.Store: file discovery,
// parsing, library assembly, resolution and hint scripts. Every result
// lives in the store; re-running analysis only recomputes what was
// invalidated.
type Engine struct {
	store   *cache.Store
	runtime *runtime.Runtime
	stamps  *stamper

	hintsDir  string
	hintsFS   fs.FS
	languages map[string]bool // nil means all languages

	workers           int
	parallel          bool
	flushAfterResolve bool

	log    zerolog.Logger
	tracer trace.Tracer
	flight singleflight.Group
}

// Option configures an Engine.
type Option func(*Engine)

// WithLanguages restricts which languages the Engine analyzes. Sources in
// other languages are treated as resources.
func WithLanguages(languages ...string) Option {
	return func(e *Engine) {
		if len(languages) == 0 {
			e.languages = nil
			return
		}
		e.languages = make(map[string]bool, len(languages))
		for _, lang := range languages {
			e.languages[lang] = true
		}
	}
}

// WithWorkers bounds the number of concurrent phase computations.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithParallel controls parallel analysis. When false, files and
// libraries are processed one at a time.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.parallel = parallel
	}
}

// WithHintsDir sets the directory holding <language>.risor hint scripts.
func WithHintsDir(dir string) Option {
	return func(e *Engine) {
		e.hintsDir = dir
	}
}

// WithHintsFS loads hint scripts from fsys instead of the hints directory.
func WithHintsFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.hintsFS = fsys
	}
}

// WithLogger sets the logger for the engine, its store and hint scripts.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithFlushAfterResolve flushes syntax trees of a library's units once its
// diagnostics are cached.
func WithFlushAfterResolve(flush bool) Option {
	return func(e *Engine) {
		e.flushAfterResolve = flush
	}
}

// New creates an Engine with an empty cache.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		stamps:   newStamper(),
		workers:  goruntime.GOMAXPROCS(0),
		parallel: true,
		log:      zerolog.Nop(),
		tracer:   otel.Tracer("github.com/jward/anacache"),
	}
	for _, opt := range opts {
		opt(e)
	}
	for lang := range e.languages {
		if _, ok := runtime.ParserForLanguage(lang); !ok {
			return nil, zerr.With(zerr.Wrap(ErrUnknownLanguage, "anacache: new engine"), "language", lang)
		}
	}

	e.store = cache.NewStore(
		cache.WithLogger(e.log.With().Str("component", "cache").Logger()),
		cache.WithStamper(e.stamps.Stamp),
		cache.WithClassifier(e.classify),
	)

	rtOpts := []runtime.RuntimeOption{
		runtime.WithRuntimeLogger(e.log.With().Str("component", "hints").Logger()),
	}
	if e.hintsFS != nil {
		rtOpts = append(rtOpts, runtime.WithRuntimeFS(e.hintsFS))
	}
	e.runtime = runtime.NewRuntime(e.hintsDir, rtOpts...)
	return e, nil
}

// Cache returns the underlying store for direct access.
func (e *Engine) Cache() *Store {
	return e.store
}

// Query returns a new QueryBuilder over the cache.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{store: e.store}
}

// SourceFor returns the identity used for path: its absolute, cleaned form.
func SourceFor(path string) SourceID {
	abs, err := filepath.Abs(path)
	if err != nil {
		return cache.SourceID(filepath.Clean(path))
	}
	return cache.SourceID(abs)
}

// language returns the enabled language of id.
func (e *Engine) language(id SourceID) (string, bool) {
	lang, ok := runtime.LanguageForFile(string(id))
	if !ok {
		return "", false
	}
	if e.languages != nil && !e.languages[lang] {
		return "", false
	}
	return lang, true
}

func (e *Engine) classify(id SourceID) cache.EntryKind {
	if _, ok := e.language(id); ok {
		return cache.UnitEntry
	}
	return cache.ResourceEntry
}

// Changed tells the engine that paths were modified on disk. Their cached
// results and everything derived from them are invalidated; the next
// analysis recomputes them.
func (e *Engine) Changed(paths ...string) {
	for _, p := range paths {
		id := SourceFor(p)
		e.stamps.forget(id)
		e.store.Invalidate(id, cache.ReasonContentChanged)
	}
}

// Flush evicts every flushable value from the cache and returns how many
// were evicted.
func (e *Engine) Flush() int {
	return e.store.FlushAll()
}

// skipDirs are excluded from directory walks.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
}

// AnalyzeDirectory analyzes every source under root with an enabled
// language. Inside a git repository, git ls-files is used so ignored files
// are skipped; otherwise the directory is walked, skipping hidden
// directories, node_modules, vendor and __pycache__.
func (e *Engine) AnalyzeDirectory(ctx context.Context, root string) error {
	paths, err := e.gitListFiles(root)
	if err != nil {
		e.log.Debug().Err(err).Str("root", root).Msg("git ls-files unavailable, walking")
		paths, err = e.walkListFiles(root)
		if err != nil {
			return err
		}
	}
	return e.AnalyzeFiles(ctx, paths)
}

// gitListFiles lists tracked and untracked but not ignored files under root.
func (e *Engine) gitListFiles(root string) ([]string, error) {
	cmd := exec.Command("git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		absPath := filepath.Join(root, line)
		if _, ok := e.language(SourceFor(absPath)); ok {
			paths = append(paths, absPath)
		}
	}
	return paths, nil
}

func (e *Engine) walkListFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || skipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := e.language(SourceFor(path)); ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return paths, nil
}

// sources turns paths into identities, dropping duplicates and paths
// without an enabled language.
func (e *Engine) sources(paths []string) []SourceID {
	ids := make([]SourceID, 0, len(paths))
	for _, p := range paths {
		id := SourceFor(p)
		if _, ok := e.language(id); ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
