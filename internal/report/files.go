package report

import (
	"database/sql"
	"fmt"
)

// --- File operations ---

func (s *Store) InsertFile(f *File) (int64, error) {
	return insertFileTx(s.db, f)
}

func (s *Store) FileByPath(path string) (*File, error) {
	f := &File{}
	err := s.db.QueryRow(
		"SELECT id, path, language, entry_kind, source_kind, stamp, analyzed_at FROM files WHERE path = ?", path,
	).Scan(&f.ID, &f.Path, &f.Language, &f.EntryKind, &f.SourceKind, &f.Stamp, &f.AnalyzedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

// Files returns every file ordered by path.
func (s *Store) Files() ([]*File, error) {
	rows, err := s.db.Query(
		"SELECT id, path, language, entry_kind, source_kind, stamp, analyzed_at FROM files ORDER BY path",
	)
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f := &File{}
		if err := rows.Scan(&f.ID, &f.Path, &f.Language, &f.EntryKind, &f.SourceKind, &f.Stamp, &f.AnalyzedAt); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// --- State operations ---

func (s *Store) InsertState(st *State) (int64, error) {
	return insertStateTx(s.db, st)
}

func (s *Store) StatesByFile(fileID int64) ([]*State, error) {
	rows, err := s.db.Query(
		"SELECT id, file_id, descriptor, library, state, error FROM states WHERE file_id = ? ORDER BY id", fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("states by file: %w", err)
	}
	defer rows.Close()
	var out []*State
	for rows.Next() {
		st := &State{}
		var lib, msg sql.NullString
		if err := rows.Scan(&st.ID, &st.FileID, &st.Descriptor, &lib, &st.State, &msg); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		st.Library, st.Error = lib.String, msg.String
		out = append(out, st)
	}
	return out, rows.Err()
}

// --- Diagnostic operations ---

func (s *Store) InsertDiagnostic(d *Diagnostic) (int64, error) {
	return insertDiagnosticTx(s.db, d)
}

func (s *Store) DiagnosticsByFile(fileID int64) ([]*Diagnostic, error) {
	rows, err := s.db.Query(
		`SELECT id, file_id, line, col, severity, code, message FROM diagnostics
		 WHERE file_id = ? ORDER BY line, col, id`, fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("diagnostics by file: %w", err)
	}
	defer rows.Close()
	var out []*Diagnostic
	for rows.Next() {
		d := &Diagnostic{}
		var code sql.NullString
		if err := rows.Scan(&d.ID, &d.FileID, &d.Line, &d.Column, &d.Severity, &code, &d.Message); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		d.Code = code.String
		out = append(out, d)
	}
	return out, rows.Err()
}

// CountBySeverity returns diagnostic totals grouped by severity, ordered by name.
func (s *Store) CountBySeverity() ([]SeverityCount, error) {
	rows, err := s.db.Query("SELECT severity, COUNT(*) FROM diagnostics GROUP BY severity ORDER BY severity")
	if err != nil {
		return nil, fmt.Errorf("count by severity: %w", err)
	}
	defer rows.Close()
	var out []SeverityCount
	for rows.Next() {
		var c SeverityCount
		if err := rows.Scan(&c.Severity, &c.Count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertFileTx(x execer, f *File) (int64, error) {
	res, err := x.Exec(
		`INSERT INTO files (path, language, entry_kind, source_kind, stamp, analyzed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		f.Path, f.Language, f.EntryKind, f.SourceKind, f.Stamp, f.AnalyzedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	f.ID = id
	return id, nil
}

func insertStateTx(x execer, st *State) (int64, error) {
	res, err := x.Exec(
		"INSERT INTO states (file_id, descriptor, library, state, error) VALUES (?, ?, ?, ?, ?)",
		st.FileID, st.Descriptor, nullable(st.Library), st.State, nullable(st.Error),
	)
	if err != nil {
		return 0, fmt.Errorf("insert state: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	st.ID = id
	return id, nil
}

func insertDiagnosticTx(x execer, d *Diagnostic) (int64, error) {
	res, err := x.Exec(
		"INSERT INTO diagnostics (file_id, line, col, severity, code, message) VALUES (?, ?, ?, ?, ?, ?)",
		d.FileID, d.Line, d.Column, d.Severity, nullable(d.Code), d.Message,
	)
	if err != nil {
		return 0, fmt.Errorf("insert diagnostic: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	d.ID = id
	return id, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
