// Package anacache analyzes source trees incrementally on top of an
// in-memory analysis cache. Each source is parsed with tree-sitter, C
// and C++ headers are assembled into the libraries that include them,
// every unit is resolved once per library that contains it, and
// per-language Risor hint scripts contribute advisory diagnostics.
//
// # Pipeline
//
// Analysis runs in four phases, each caching its results in the
// internal/cache store:
//
//  1. Parse: SOURCE_KIND, LINE_INFO, PARSED_UNIT, PARSE_ERRORS, and the
//     INCLUDED_PARTS and IMPORTED_LIBRARIES edges.
//  2. Library: ELEMENT, PUBLIC_NAMESPACE and IS_LAUNCHABLE for each
//     library, computed over the library and all of its parts.
//  3. Resolve: RESOLVED_UNIT and RESOLUTION_ERRORS for each unit in the
//     context of each library that includes it.
//  4. Hints: HINTS from the language's hint script, per library context.
//
// # Usage
//
//	e, err := anacache.New(anacache.WithHintsDir("hints"))
//	if err != nil { ... }
//
//	ctx := context.Background()
//	err = e.AnalyzeDirectory(ctx, "path/to/project")
//
//	for _, d := range e.Query().Errors("path/to/project/main.c") { ... }
//
// # Incremental analysis
//
// Sources are stamped with a hash of their content. When a stamp changes,
// or [Engine.Changed] is called, the source's entry is replaced and every
// library that includes or imports it loses its derived results. Running
// the analysis again recomputes only those.
package anacache
