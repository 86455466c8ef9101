package report

import "time"

// File is one analyzed source.
type File struct {
	ID         int64
	Path       string
	Language   string
	EntryKind  string
	SourceKind string
	Stamp      string
	AnalyzedAt time.Time
}

// State records the cache state of one descriptor of a file, optionally
// in the context of a library.
type State struct {
	ID         int64
	FileID     int64
	Descriptor string
	Library    string
	State      string
	Error      string
}

// Diagnostic is one reported problem. Line and Column are 1-based.
type Diagnostic struct {
	ID       int64
	FileID   int64
	Line     int
	Column   int
	Severity string
	Code     string
	Message  string
}

// SeverityCount is one row of Store.CountBySeverity.
type SeverityCount struct {
	Severity string
	Count    int
}
