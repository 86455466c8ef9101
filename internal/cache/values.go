package cache

import "sort"

// SourceID is the opaque, stable identity of one analyzed file. Library
// identities use the same type: a library is named by its defining source.
// The empty SourceID means "no source".
type SourceID string

func (id SourceID) String() string { return string(id) }

// Stamp is a modification stamp for a source. The cache only compares
// stamps for equality; callers decide how they are derived.
type Stamp uint64

// SourceKind classifies a source once its parse phase has run.
type SourceKind uint8

const (
	KindUnknown SourceKind = iota
	KindLibrary
	KindPart
)

func (k SourceKind) String() string {
	switch k {
	case KindLibrary:
		return "library"
	case KindPart:
		return "part"
	default:
		return "unknown"
	}
}

// Severity of a Diagnostic.
type Severity uint8

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityHint
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityHint:
		return "hint"
	default:
		return "error"
	}
}

// Diagnostic is one problem reported by a phase about analyzed source code.
// Diagnostics are cached values, never returned as Go errors.
type Diagnostic struct {
	Source   SourceID
	Offset   int
	Length   int
	Line     int // 0-based
	Column   int // 0-based
	Severity Severity
	Code     string
	Message  string
}

// CompilationUnit is a syntax tree produced by a parse or resolve phase.
type CompilationUnit interface {
	Source() SourceID
}

// LineInfo holds the byte offset at which each line of a source starts.
type LineInfo []int

// NewLineInfo computes line starts for content.
func NewLineInfo(content []byte) LineInfo {
	starts := LineInfo{0}
	for i, b := range content {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// Position converts a byte offset to a 0-based (line, column) pair.
func (li LineInfo) Position(offset int) (line, col int) {
	if len(li) == 0 {
		return 0, offset
	}
	line = sort.Search(len(li), func(i int) bool { return li[i] > offset }) - 1
	if line < 0 {
		line = 0
	}
	return line, offset - li[line]
}

// LibraryElement summarizes a library once all of its units are known.
type LibraryElement struct {
	Library      SourceID
	Units        []SourceID // defining unit first, then parts in include order
	Declarations []string
}

// Namespace maps each name a library exports to the unit declaring it.
type Namespace map[string]SourceID
