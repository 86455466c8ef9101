package anacache

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/jward/anacache/internal/cache"
)

// AnalyzeFiles analyzes the given paths in two stages:
//
//	Stage A: parse every source (SOURCE_KIND, LINE_INFO, PARSED_UNIT,
//	         PARSE_ERRORS and the include/import edges).
//	Stage B: for every library among them, or containing one of them as a
//	         part, assemble the library, then resolve each of its units and
//	         run hint scripts in the library's context.
//
// Work already valid in the cache is skipped. Failures of individual
// sources are recorded as ERROR states, not returned; only cancellation
// of ctx stops the analysis with an error.
func (e *Engine) AnalyzeFiles(ctx context.Context, paths []string) error {
	ids := e.sources(paths)
	if len(ids) == 0 {
		return nil
	}

	// ---- Stage A: parse ----
	err := e.each(ctx, ids, func(ctx context.Context, id SourceID) {
		e.ensureParsed(ctx, id, false)
	})
	if err != nil {
		return err
	}

	// ---- Stage B: libraries ----
	libs := e.librariesFor(ids)
	err = e.each(ctx, libs, func(ctx context.Context, lib SourceID) {
		e.analyzeLibrary(ctx, lib)
	})
	if err != nil {
		return err
	}

	e.log.Debug().
		Int("sources", len(ids)).
		Int("libraries", len(libs)).
		Msg("analysis complete")
	return nil
}

// each runs fn for every id on a bounded worker pool.
func (e *Engine) each(parent context.Context, ids []SourceID, fn func(context.Context, SourceID)) error {
	g, ctx := errgroup.WithContext(parent)
	if e.parallel {
		g.SetLimit(e.workers)
	} else {
		g.SetLimit(1)
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(ctx, id)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	// ctx is always cancelled once Wait returns.
	return parent.Err()
}

// librariesFor returns the libraries to assemble for ids: those defining
// a library, plus every known library including one of the parts directly
// or through other parts.
func (e *Engine) librariesFor(ids []SourceID) []SourceID {
	seen := make(map[SourceID]bool)
	var libs []SourceID
	for _, id := range ids {
		queue := []SourceID{id}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if seen[cur] {
				continue
			}
			seen[cur] = true
			kind, ok := cache.Value(e.store.Get(cur), cache.SourceKindData)
			if !ok {
				continue
			}
			if kind == cache.KindLibrary {
				libs = append(libs, cur)
				continue
			}
			queue = append(queue, e.store.LibrariesOf(cur)...)
		}
	}
	return libs
}

// analyzeLibrary assembles lib, then resolves and hints each of its units.
func (e *Engine) analyzeLibrary(ctx context.Context, lib SourceID) {
	if !e.ensureLibrary(ctx, lib) {
		return
	}
	units := e.libraryUnits(ctx, lib)
	for _, u := range units {
		e.resolve(ctx, u, lib)
		e.hints(ctx, u, lib)
	}
	if e.flushAfterResolve {
		n := 0
		for _, u := range units {
			n += e.store.Flush(u)
		}
		e.log.Debug().Str("library", lib.String()).Int("flushed", n).Msg("flushed library units")
	}
}
