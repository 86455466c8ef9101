package report

import (
	"fmt"
	"sync"
)

// Batch buffers a whole report in memory using fake (negative) file IDs so
// analysis workers can append concurrently. CommitBatch writes it in one
// transaction.
type Batch struct {
	mu sync.Mutex

	Files       []File
	States      []State
	Diagnostics []Diagnostic

	nextFakeID int64 // starts at -1, decrements
}

// NewBatch creates an empty Batch.
func NewBatch() *Batch {
	return &Batch{nextFakeID: -1}
}

// AddFile buffers f and returns its fake ID for use by AddState and
// AddDiagnostic.
func (b *Batch) AddFile(f File) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	f.ID = b.nextFakeID
	b.nextFakeID--
	b.Files = append(b.Files, f)
	return f.ID
}

func (b *Batch) AddState(st State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.States = append(b.States, st)
}

func (b *Batch) AddDiagnostic(d Diagnostic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Diagnostics = append(b.Diagnostics, d)
}

// CommitBatch inserts everything buffered in batch within a single
// transaction. Fake file IDs are remapped to real ones; states and
// diagnostics are inserted after all files.
func (s *Store) CommitBatch(batch *Batch) error {
	batch.mu.Lock()
	defer batch.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	fakeToReal := make(map[int64]int64, len(batch.Files))
	resolve := func(id int64) (int64, error) {
		if id >= 0 {
			return id, nil
		}
		real, ok := fakeToReal[id]
		if !ok {
			return 0, fmt.Errorf("unknown fake file id %d", id)
		}
		return real, nil
	}

	for _, f := range batch.Files {
		fake := f.ID
		realID, err := insertFileTx(tx, &f)
		if err != nil {
			return fmt.Errorf("commit batch: file %q: %w", f.Path, err)
		}
		fakeToReal[fake] = realID
	}

	for _, st := range batch.States {
		if st.FileID, err = resolve(st.FileID); err != nil {
			return fmt.Errorf("commit batch: state %q: %w", st.Descriptor, err)
		}
		if _, err := insertStateTx(tx, &st); err != nil {
			return fmt.Errorf("commit batch: state %q: %w", st.Descriptor, err)
		}
	}

	for _, d := range batch.Diagnostics {
		if d.FileID, err = resolve(d.FileID); err != nil {
			return fmt.Errorf("commit batch: diagnostic: %w", err)
		}
		if _, err := insertDiagnosticTx(tx, &d); err != nil {
			return fmt.Errorf("commit batch: diagnostic: %w", err)
		}
	}

	return tx.Commit()
}
