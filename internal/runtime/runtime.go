package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"
	"github.com/rs/zerolog"
)

// Hint is one diagnostic reported by a hint script.
type Hint struct {
	Line    int
	Code    string
	Message string
}

// Runtime embeds a Risor VM and runs per-language hint scripts against
// parsed units.
type Runtime struct {
	hintsDir string
	fsys     fs.FS
	log      zerolog.Logger
	sources  *sourceStore
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS loads scripts from fsys instead of from disk. Risor import
// statements then resolve within fsys too.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithRuntimeLogger sets the logger behind the scripts' log global.
func WithRuntimeLogger(l zerolog.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.log = l
	}
}

// NewRuntime creates a Runtime loading hint scripts from hintsDir.
func NewRuntime(hintsDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		hintsDir: hintsDir,
		log:      zerolog.Nop(),
		sources:  newSourceStore(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HintScriptPath returns the script path for a language's hints.
func HintScriptPath(language string) string {
	return language + ".risor"
}

// HasHints reports whether a hint script exists for language.
func (r *Runtime) HasHints(language string) bool {
	path := HintScriptPath(language)
	if r.fsys != nil {
		_, err := fs.Stat(r.fsys, path)
		return err == nil
	}
	if r.hintsDir == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(r.hintsDir, path))
	return err == nil
}

// RunHints runs the language's hint script for u resolved as part of
// library. Scripts see file_path, language, library, source, root and
// declarations, and report findings with hint(line, message[, code]).
// A language without a script yields no hints.
func (r *Runtime) RunHints(ctx context.Context, u *Unit, library string) ([]Hint, error) {
	if !r.HasHints(u.Language) {
		return nil, nil
	}
	path := HintScriptPath(u.Language)
	src, err := r.LoadScript(path)
	if err != nil {
		return nil, err
	}

	lang, _ := ParserForLanguage(u.Language)
	remove := r.sources.add(u.Tree, u.Src, lang)
	defer remove()

	root, err := object.NewProxy(u.Root())
	if err != nil {
		return nil, fmt.Errorf("runtime: proxy root of %s: %w", u.Path, err)
	}

	var hints []Hint
	extras := map[string]any{
		"file_path":    u.Path,
		"language":     u.Language,
		"library":      library,
		"source":       string(u.Src),
		"root":         root,
		"declarations": declList(u.Decls),
		"hint":         makeHintFn(&hints),
	}
	if err := r.eval(ctx, src, path, extras); err != nil {
		return nil, err
	}
	return hints, nil
}

func declList(decls []Decl) *object.List {
	items := make([]object.Object, len(decls))
	for i, d := range decls {
		items[i] = object.NewMap(map[string]object.Object{
			"name":     object.NewString(d.Name),
			"kind":     object.NewString(d.Kind),
			"exported": object.NewBool(d.Exported),
			"line":     object.NewInt(int64(d.Line)),
			"column":   object.NewInt(int64(d.Column)),
		})
	}
	return object.NewList(items)
}

// RunSource executes Risor source with the standard globals plus extra.
func (r *Runtime) RunSource(ctx context.Context, source string, extra map[string]any) error {
	return r.eval(ctx, source, "<inline>", extra)
}

func (r *Runtime) eval(ctx context.Context, source, label string, extra map[string]any) error {
	globals := r.buildGlobals(extra)

	opts := make([]risor.Option, 0, len(globals)+1)
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	if _, err := risor.Eval(ctx, source, opts...); err != nil {
		return fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return nil
}

// buildImporter lets scripts import sibling .risor modules. Returns nil
// when no script source is configured.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	names := make([]string, 0, len(globals))
	for name := range globals {
		names = append(names, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: names,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.hintsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: names,
			SourceDir:   r.hintsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript reads a .risor file from the configured fs.FS or hintsDir.
func (r *Runtime) LoadScript(path string) (string, error) {
	if r.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := path
	if !filepath.IsAbs(path) {
		fullPath = filepath.Join(r.hintsDir, path)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

func (r *Runtime) buildGlobals(extra map[string]any) map[string]any {
	globals := map[string]any{
		"node_text":  makeNodeTextFn(r.sources),
		"node_child": makeNodeChildFn(),
		"query":      makeQueryFn(r.sources),
		"log":        mustProxy(&logObject{log: r.log.With().Str("component", "hints").Logger()}),
	}
	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
