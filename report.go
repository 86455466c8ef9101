package anacache

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jward/anacache/internal/cache"
	"github.com/jward/anacache/internal/report"
	"github.com/jward/anacache/internal/runtime"
)

// ExportReport writes every cached source, its datum states and its
// diagnostics to a SQLite database at dbPath, replacing earlier contents.
// Report lines and columns are 1-based.
func (e *Engine) ExportReport(dbPath string) error {
	rs, err := report.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("anacache: open report: %w", err)
	}
	defer rs.Close()
	if err := rs.Migrate(); err != nil {
		return fmt.Errorf("anacache: migrate report: %w", err)
	}
	if err := rs.Reset(); err != nil {
		return fmt.Errorf("anacache: reset report: %w", err)
	}

	batch := report.NewBatch()
	now := time.Now()
	for _, id := range e.store.Sources() {
		entry := e.store.Get(id)
		lang, _ := runtime.LanguageForFile(string(id))
		f := report.File{
			Path:       string(id),
			Language:   lang,
			EntryKind:  entry.Kind().String(),
			Stamp:      strconv.FormatUint(uint64(entry.Stamp()), 16),
			AnalyzedAt: now,
		}
		if kind, ok := cache.Value(entry, cache.SourceKindData); ok {
			f.SourceKind = kind.String()
		}
		fileID := batch.AddFile(f)

		for _, ds := range entry.Descriptors() {
			st := report.State{
				FileID:     fileID,
				Descriptor: ds.Descriptor,
				Library:    string(ds.Library),
				State:      ds.State.String(),
			}
			if ds.Err != nil {
				st.Error = ds.Err.Error()
			}
			batch.AddState(st)
		}
		for _, d := range entry.AllErrors() {
			batch.AddDiagnostic(report.Diagnostic{
				FileID:   fileID,
				Line:     d.Line + 1,
				Column:   d.Column + 1,
				Severity: d.Severity.String(),
				Code:     d.Code,
				Message:  d.Message,
			})
		}
	}

	if err := rs.CommitBatch(batch); err != nil {
		return fmt.Errorf("anacache: write report: %w", err)
	}
	e.log.Info().
		Str("path", dbPath).
		Int("files", len(batch.Files)).
		Int("diagnostics", len(batch.Diagnostics)).
		Msg("report written")
	return nil
}
