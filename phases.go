package anacache

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.trai.ch/zerr"

	"github.com/jward/anacache/internal/cache"
	"github.com/jward/anacache/internal/runtime"
)

// ErrNotParsed is the cause recorded for units whose parse failed without
// a more specific error.
var ErrNotParsed = zerr.New("unit could not be parsed")

// maxAttempts bounds retries of a phase whose results were discarded
// because the source changed while it ran.
const maxAttempts = 3

// Diagnostic codes produced by the phases. Hint scripts choose their own.
const (
	CodeSyntax              = "syntax"
	CodeMissingPart         = "missing-part"
	CodeDuplicateDefinition = "duplicate-definition"
)

// strictDefinitions are the languages in which defining a name twice in
// one library is an error.
var strictDefinitions = map[string]bool{
	"c":    true,
	"go":   true,
	"rust": true,
}

func (e *Engine) span(ctx context.Context, name string, id, lib SourceID) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("source", id.String())}
	if lib != "" {
		attrs = append(attrs, attribute.String("library", lib.String()))
	}
	return e.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// commit publishes w. When the copy went stale, release gives the claimed
// datum back so the phase can run again against the newer entry.
func (e *Engine) commit(w *cache.WritableEntry, release func()) bool {
	err := e.store.Commit(w)
	if err == nil {
		return true
	}
	e.log.Debug().Err(err).Str("source", w.Source().String()).Msg("discarding stale results")
	release()
	return false
}

// --- Parse phase ---

// ensureParsed runs the parse phase for id unless its result is cached,
// and returns the entry. A flushed tree only counts as missing when
// needTree is set. Concurrent callers share one parse.
func (e *Engine) ensureParsed(ctx context.Context, id SourceID, needTree bool) *Entry {
	for range maxAttempts {
		entry := e.store.Get(id)
		if entry.Kind() != cache.UnitEntry {
			return entry
		}
		switch entry.State(cache.ParsedUnit) {
		case cache.Valid, cache.Error:
			return entry
		case cache.Flushed:
			if !needTree {
				return entry
			}
		}
		if ctx.Err() != nil {
			return entry
		}
		e.flight.Do("parse:"+string(id), func() (any, error) {
			e.parse(ctx, id)
			return nil, nil
		})
	}
	return e.store.Get(id)
}

func (e *Engine) parse(ctx context.Context, id SourceID) {
	ctx, span := e.span(ctx, "anacache.parse", id, "")
	defer span.End()

	w, ok := e.store.Begin(id, cache.ParsedUnit)
	if !ok {
		return
	}
	release := func() { e.store.Abandon(id, cache.ParsedUnit) }

	kind := cache.KindLibrary
	if runtime.IsHeader(string(id)) {
		kind = cache.KindPart
	}
	cache.SetValue(w, cache.SourceKindData, kind)

	content, err := os.ReadFile(string(id))
	if err != nil {
		if w.Stamp() != missingStamp {
			e.stamps.forget(id)
			release()
			return
		}
		err = zerr.With(zerr.Wrap(err, "failed to read source"), "source", id.String())
		span.SetStatus(codes.Error, err.Error())
		w.SetError(cache.LineInfoData, err)
		e.failParse(w, err)
		e.commit(w, release)
		return
	}
	if contentStamp(content) != w.Stamp() {
		e.stamps.forget(id)
		release()
		return
	}
	cache.SetValue(w, cache.LineInfoData, cache.NewLineInfo(content))

	lang, _ := e.language(id)
	parsed, err := runtime.Parse(ctx, string(id), lang, content)
	if err != nil {
		if ctx.Err() != nil {
			release()
			return
		}
		span.RecordError(err)
		e.failParse(w, err)
		e.commit(w, release)
		return
	}

	cache.SetValue[cache.CompilationUnit](w, cache.ParsedUnit, &Unit{ID: id, Unit: parsed})
	cache.SetValue(w, cache.ParseErrors, syntaxDiagnostics(id, parsed))
	cache.SetValue(w, cache.IncludedParts, e.includedParts(id, parsed))
	cache.SetValue(w, cache.ImportedLibraries, e.importedLibraries(id, parsed))
	if e.commit(w, release) {
		e.log.Debug().
			Str("source", id.String()).
			Str("language", lang).
			Int("decls", len(parsed.Decls)).
			Int("syntax_errors", len(parsed.Syntax)).
			Msg("parsed")
	}
}

// failParse records cause on the parse results. An unreadable source
// includes and imports nothing.
func (e *Engine) failParse(w *cache.WritableEntry, cause error) {
	w.SetError(cache.ParsedUnit, cause)
	w.SetError(cache.ParseErrors, cause)
	cache.SetValue(w, cache.IncludedParts, []SourceID{})
	cache.SetValue(w, cache.ImportedLibraries, []SourceID{})
	e.log.Debug().Err(cause).Str("source", w.Source().String()).Msg("parse failed")
}

func syntaxDiagnostics(id SourceID, u *runtime.Unit) []Diagnostic {
	out := make([]Diagnostic, 0, len(u.Syntax))
	for _, se := range u.Syntax {
		out = append(out, Diagnostic{
			Source:   id,
			Offset:   se.Offset,
			Length:   se.Length,
			Line:     se.Line,
			Column:   se.Column,
			Severity: cache.SeverityError,
			Code:     CodeSyntax,
			Message:  se.Message,
		})
	}
	return out
}

// includeTarget resolves a quoted include relative to the including file.
func includeTarget(from SourceID, path string) SourceID {
	if filepath.IsAbs(path) {
		return SourceID(filepath.Clean(path))
	}
	return SourceID(filepath.Join(filepath.Dir(string(from)), path))
}

// includedParts lists the analyzable sources u includes, whether or not
// they exist.
func (e *Engine) includedParts(id SourceID, u *runtime.Unit) []SourceID {
	parts := make([]SourceID, 0, len(u.Includes))
	for _, inc := range u.Includes {
		target := includeTarget(id, inc.Path)
		if target == id || slices.Contains(parts, target) {
			continue
		}
		if e.classify(target) != cache.UnitEntry {
			e.log.Debug().Str("source", id.String()).Str("include", inc.Path).Msg("include is not analyzable, skipped")
			continue
		}
		parts = append(parts, target)
	}
	return parts
}

// importedLibraries maps Python module imports to sibling files:
// a.b resolves to a/b.py or a/b/__init__.py next to the importer.
// Modules that are not found are left to the interpreter.
func (e *Engine) importedLibraries(id SourceID, u *runtime.Unit) []SourceID {
	libs := []SourceID{}
	if u.Language != "python" {
		return libs
	}
	dir := filepath.Dir(string(id))
	for _, mod := range u.Imports {
		rel := filepath.Join(strings.Split(mod, ".")...)
		for _, cand := range []string{
			filepath.Join(dir, rel+".py"),
			filepath.Join(dir, rel, "__init__.py"),
		} {
			target := SourceID(cand)
			info, err := os.Stat(cand)
			if err != nil || info.IsDir() {
				continue
			}
			if target != id && !slices.Contains(libs, target) && e.classify(target) == cache.UnitEntry {
				libs = append(libs, target)
			}
			break
		}
	}
	return libs
}

// parsedUnit returns the parse result of id, parsing it if needed.
func (e *Engine) parsedUnit(ctx context.Context, id SourceID) (*Unit, bool) {
	v, ok := cache.Value(e.ensureParsed(ctx, id, true), cache.ParsedUnit)
	if !ok {
		return nil, false
	}
	u, ok := v.(*Unit)
	return u, ok
}

// --- Library phase ---

// ensureLibrary computes lib's library-wide data unless cached. It
// reports whether lib is a parsed library with a usable ELEMENT.
func (e *Engine) ensureLibrary(ctx context.Context, lib SourceID) bool {
	for range maxAttempts {
		entry := e.ensureParsed(ctx, lib, false)
		if entry.Kind() != cache.UnitEntry {
			return false
		}
		if st := entry.State(cache.ParsedUnit); st != cache.Valid && st != cache.Flushed {
			return false
		}
		if kind, _ := cache.Value(entry, cache.SourceKindData); kind != cache.KindLibrary {
			return false
		}
		switch entry.State(cache.Element) {
		case cache.Valid:
			return true
		case cache.Error:
			return false
		}
		if ctx.Err() != nil {
			return false
		}
		e.flight.Do("library:"+string(lib), func() (any, error) {
			e.library(ctx, lib)
			return nil, nil
		})
	}
	return e.store.Get(lib).State(cache.Element) == cache.Valid
}

// libraryUnits returns lib followed by its parts in breadth-first include
// order, parsing them as needed.
func (e *Engine) libraryUnits(ctx context.Context, lib SourceID) []SourceID {
	units := []SourceID{lib}
	seen := map[SourceID]bool{lib: true}
	for i := 0; i < len(units); i++ {
		parts, _ := cache.Value(e.ensureParsed(ctx, units[i], false), cache.IncludedParts)
		for _, p := range parts {
			if !seen[p] {
				seen[p] = true
				units = append(units, p)
			}
		}
	}
	return units
}

func (e *Engine) library(ctx context.Context, lib SourceID) {
	ctx, span := e.span(ctx, "anacache.library", lib, "")
	defer span.End()

	w, ok := e.store.Begin(lib, cache.Element)
	if !ok {
		return
	}
	release := func() { e.store.Abandon(lib, cache.Element) }

	units := e.libraryUnits(ctx, lib)
	elem := &LibraryElement{Library: lib, Units: units}
	ns := Namespace{}
	launchable := false
	declared := make(map[string]bool)
	for _, id := range units {
		u, ok := e.parsedUnit(ctx, id)
		if !ok {
			continue
		}
		for _, d := range u.Decls {
			if !declared[d.Name] {
				declared[d.Name] = true
				elem.Declarations = append(elem.Declarations, d.Name)
			}
			if _, dup := ns[d.Name]; d.Exported && d.Defines() && !dup {
				ns[d.Name] = id
			}
		}
		launchable = launchable || u.HasMain
	}
	if ctx.Err() != nil {
		release()
		return
	}

	cache.SetValue(w, cache.Element, elem)
	cache.SetValue(w, cache.PublicNamespace, ns)
	cache.SetValue(w, cache.IsLaunchable, launchable)
	if e.commit(w, release) {
		e.log.Debug().
			Str("library", lib.String()).
			Int("units", len(units)).
			Int("exports", len(ns)).
			Bool("launchable", launchable).
			Msg("library assembled")
	}
}

// --- Resolve phase ---

// resolve computes id's results in lib's context. A flushed tree whose
// diagnostics are still cached is left flushed.
func (e *Engine) resolve(ctx context.Context, id, lib SourceID) {
	if cur := e.store.Get(id); cur.StateIn(cache.ResolvedUnit, lib) == cache.Flushed &&
		cur.StateIn(cache.ResolutionErrors, lib) == cache.Valid {
		return
	}
	ctx, span := e.span(ctx, "anacache.resolve", id, lib)
	defer span.End()

	w, ok := e.store.BeginIn(id, cache.ResolvedUnit, lib)
	if !ok {
		return
	}
	release := func() { e.store.AbandonIn(id, cache.ResolvedUnit, lib) }

	u, ok := e.parsedUnit(ctx, id)
	if !ok {
		if ctx.Err() != nil {
			release()
			return
		}
		cause := e.store.Get(id).Err(cache.ParsedUnit)
		if cause == nil {
			cause = zerr.With(zerr.Wrap(ErrNotParsed, "resolve"), "source", id.String())
		}
		span.SetStatus(codes.Error, cause.Error())
		w.SetErrorIn(cache.ResolvedUnit, lib, cause)
		w.SetErrorIn(cache.ResolutionErrors, lib, cause)
		e.commit(w, release)
		return
	}

	diags := []Diagnostic{}
	diags = append(diags, e.missingParts(ctx, id, u)...)
	diags = append(diags, e.duplicateDefinitions(ctx, id, lib)...)
	slices.SortStableFunc(diags, func(a, b Diagnostic) int { return cmp.Compare(a.Offset, b.Offset) })
	ru := &ResolvedUnit{Unit: u, Library: lib, Imports: e.importedNamespaces(ctx, id)}
	if ctx.Err() != nil {
		release()
		return
	}

	cache.SetValueIn[cache.CompilationUnit](w, cache.ResolvedUnit, lib, ru)
	cache.SetValueIn(w, cache.ResolutionErrors, lib, diags)
	e.commit(w, release)
}

// missingParts reports includes of u whose target cannot be read.
func (e *Engine) missingParts(ctx context.Context, id SourceID, u *Unit) []Diagnostic {
	var out []Diagnostic
	li, _ := cache.Value(e.store.Get(id), cache.LineInfoData)
	for _, inc := range u.Includes {
		target := includeTarget(id, inc.Path)
		if target == id || e.classify(target) != cache.UnitEntry {
			continue
		}
		if e.ensureParsed(ctx, target, false).State(cache.ParsedUnit) != cache.Error {
			continue
		}
		line, col := li.Position(inc.Offset)
		out = append(out, Diagnostic{
			Source:   id,
			Offset:   inc.Offset,
			Length:   inc.Length,
			Line:     line,
			Column:   col,
			Severity: cache.SeverityError,
			Code:     CodeMissingPart,
			Message:  fmt.Sprintf("included file %q cannot be read", inc.Path),
		})
	}
	return out
}

// duplicateDefinitions reports names id defines that an earlier unit of
// lib, or an earlier declaration in id, already defines.
func (e *Engine) duplicateDefinitions(ctx context.Context, id, lib SourceID) []Diagnostic {
	if lang, _ := e.language(id); !strictDefinitions[lang] {
		return nil
	}
	var out []Diagnostic
	defined := make(map[string]SourceID)
	for _, uid := range e.libraryUnits(ctx, lib) {
		u, ok := e.parsedUnit(ctx, uid)
		if !ok {
			continue
		}
		for _, d := range u.Decls {
			if !d.Defines() {
				continue
			}
			first, dup := defined[d.Name]
			if !dup {
				defined[d.Name] = uid
				continue
			}
			if uid != id {
				continue
			}
			out = append(out, Diagnostic{
				Source:   id,
				Offset:   d.Offset,
				Length:   d.Length,
				Line:     d.Line,
				Column:   d.Column,
				Severity: cache.SeverityError,
				Code:     CodeDuplicateDefinition,
				Message:  fmt.Sprintf("%s %q is already defined in %s", d.Kind, d.Name, filepath.Base(string(first))),
			})
		}
	}
	return out
}

// importedNamespaces returns the public namespace of each library id
// imports. Libraries that cannot be assembled are left out.
func (e *Engine) importedNamespaces(ctx context.Context, id SourceID) map[SourceID]Namespace {
	out := make(map[SourceID]Namespace)
	imports, _ := cache.Value(e.store.Get(id), cache.ImportedLibraries)
	for _, lib := range imports {
		if !e.ensureLibrary(ctx, lib) {
			continue
		}
		if ns, ok := cache.Value(e.store.Get(lib), cache.PublicNamespace); ok {
			out[lib] = ns
		}
	}
	return out
}

// --- Hints phase ---

func (e *Engine) hints(ctx context.Context, id, lib SourceID) {
	ctx, span := e.span(ctx, "anacache.hints", id, lib)
	defer span.End()

	w, ok := e.store.BeginIn(id, cache.Hints, lib)
	if !ok {
		return
	}
	release := func() { e.store.AbandonIn(id, cache.Hints, lib) }

	entry := e.store.Get(id)
	switch entry.StateIn(cache.ResolvedUnit, lib) {
	case cache.Valid:
	case cache.Error:
		w.SetErrorIn(cache.Hints, lib, entry.ErrIn(cache.ResolvedUnit, lib))
		e.commit(w, release)
		return
	default:
		release()
		return
	}
	v, _ := cache.ValueIn(entry, cache.ResolvedUnit, lib)
	ru, ok := v.(*ResolvedUnit)
	if !ok {
		release()
		return
	}

	found, err := e.runtime.RunHints(ctx, ru.Unit.Unit, string(lib))
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			release()
			return
		}
		span.RecordError(err)
		e.log.Warn().Err(err).
			Str("source", id.String()).
			Str("library", lib.String()).
			Msg("hint script failed")
		w.SetErrorIn(cache.Hints, lib, err)
		e.commit(w, release)
		return
	}

	li, _ := cache.Value(entry, cache.LineInfoData)
	diags := make([]Diagnostic, 0, len(found))
	for _, h := range found {
		offset := 0
		if h.Line >= 0 && h.Line < len(li) {
			offset = li[h.Line]
		}
		diags = append(diags, Diagnostic{
			Source:   id,
			Offset:   offset,
			Line:     h.Line,
			Severity: cache.SeverityHint,
			Code:     h.Code,
			Message:  h.Message,
		})
	}
	cache.SetValueIn(w, cache.Hints, lib, diags)
	e.commit(w, release)
}
