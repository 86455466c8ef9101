package runtime

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
)

type declPattern struct {
	query string
	kind  string
}

var cDecls = []declPattern{
	{`(translation_unit (function_definition declarator: (function_declarator declarator: (identifier) @name)) @def)`, "function"},
	{`(translation_unit (function_definition declarator: (pointer_declarator declarator: (function_declarator declarator: (identifier) @name))) @def)`, "function"},
	{`(translation_unit (declaration declarator: (function_declarator declarator: (identifier) @name)) @def)`, "prototype"},
	{`(translation_unit (type_definition declarator: (type_identifier) @name) @def)`, "type"},
}

// declPatterns holds the top-level declaration queries per language.
// Languages without an entry are parsed for syntax errors only.
var declPatterns = map[string][]declPattern{
	"c":   cDecls,
	"cpp": cDecls,
	"go": {
		{`(source_file (function_declaration name: (identifier) @name) @def)`, "function"},
		{`(source_file (type_declaration (type_spec name: (type_identifier) @name)) @def)`, "type"},
	},
	"python": {
		{`(module (function_definition name: (identifier) @name) @def)`, "function"},
		{`(module (decorated_definition definition: (function_definition name: (identifier) @name)) @def)`, "function"},
		{`(module (class_definition name: (identifier) @name) @def)`, "class"},
	},
	"javascript": {
		{`(program (function_declaration name: (identifier) @name) @def)`, "function"},
		{`(program (class_declaration name: (identifier) @name) @def)`, "class"},
	},
	"rust": {
		{`(source_file (function_item name: (identifier) @name) @def)`, "function"},
		{`(source_file (struct_item name: (type_identifier) @name) @def)`, "type"},
	},
}

const includePattern = `(preproc_include path: (string_literal) @path)`

var importPatterns = []string{
	`(import_statement name: (dotted_name) @name)`,
	`(import_statement name: (aliased_import name: (dotted_name) @name))`,
	`(import_from_statement module_name: (dotted_name) @name)`,
}

const pythonMainPattern = `(module (if_statement condition: (comparison_operator) @cond))`

// extract fills the declaration, include, import and entry point fields of u.
func extract(u *Unit, grammar *sitter.Language) error {
	root := u.Tree.RootNode()

	for _, p := range declPatterns[u.Language] {
		err := runQuery(p.query, grammar, root, u.Src, func(caps map[string]*sitter.Node) {
			name, def := caps["name"], caps["def"]
			if name == nil || def == nil {
				return
			}
			u.Decls = append(u.Decls, newDecl(u, p.kind, name, def))
		})
		if err != nil {
			return err
		}
	}
	sortDecls(u.Decls)

	switch u.Language {
	case "c", "cpp":
		err := runQuery(includePattern, grammar, root, u.Src, func(caps map[string]*sitter.Node) {
			n := caps["path"]
			if n == nil {
				return
			}
			u.Includes = append(u.Includes, Include{
				Path:   unquote(n.Content(u.Src)),
				Line:   int(n.StartPoint().Row),
				Offset: int(n.StartByte()),
				Length: int(n.EndByte() - n.StartByte()),
			})
		})
		if err != nil {
			return err
		}
	case "python":
		for _, pattern := range importPatterns {
			err := runQuery(pattern, grammar, root, u.Src, func(caps map[string]*sitter.Node) {
				if n := caps["name"]; n != nil {
					u.Imports = append(u.Imports, n.Content(u.Src))
				}
			})
			if err != nil {
				return err
			}
		}
		err := runQuery(pythonMainPattern, grammar, root, u.Src, func(caps map[string]*sitter.Node) {
			if n := caps["cond"]; n != nil && strings.Contains(n.Content(u.Src), "__main__") {
				u.HasMain = true
			}
		})
		if err != nil {
			return err
		}
	}

	if u.Language != "python" {
		for _, d := range u.Decls {
			if d.Name == "main" && d.Kind == "function" {
				u.HasMain = true
			}
		}
	}
	return nil
}

func newDecl(u *Unit, kind string, name, def *sitter.Node) Decl {
	text := name.Content(u.Src)
	p := name.StartPoint()
	return Decl{
		Name:     text,
		Kind:     kind,
		Exported: exported(u, text, def),
		Line:     int(p.Row),
		Column:   int(p.Column),
		Offset:   int(name.StartByte()),
		Length:   int(name.EndByte() - name.StartByte()),
	}
}

// exported applies each language's visibility convention.
func exported(u *Unit, name string, def *sitter.Node) bool {
	switch u.Language {
	case "go":
		r, _ := utf8.DecodeRuneInString(name)
		return unicode.IsUpper(r)
	case "c", "cpp":
		return !hasChild(def, "storage_class_specifier", "static", u.Src)
	case "rust":
		return hasChild(def, "visibility_modifier", "", u.Src)
	default:
		return !strings.HasPrefix(name, "_")
	}
}

func hasChild(n *sitter.Node, typ, text string, src []byte) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == typ && (text == "" || c.Content(src) == text) {
			return true
		}
	}
	return false
}

// sortDecls restores source order; patterns run one after another.
func sortDecls(ds []Decl) {
	slices.SortStableFunc(ds, func(a, b Decl) int { return cmp.Compare(a.Offset, b.Offset) })
}

var (
	queryMu    sync.Mutex
	queryCache = make(map[queryKey]*sitter.Query)
)

type queryKey struct {
	pattern string
	grammar *sitter.Language
}

func compiled(pattern string, grammar *sitter.Language) (*sitter.Query, error) {
	queryMu.Lock()
	defer queryMu.Unlock()
	k := queryKey{pattern, grammar}
	if q, ok := queryCache[k]; ok {
		return q, nil
	}
	q, err := sitter.NewQuery([]byte(pattern), grammar)
	if err != nil {
		return nil, err
	}
	queryCache[k] = q
	return q, nil
}

// runQuery calls fn with the captures of every match of pattern under node.
func runQuery(pattern string, grammar *sitter.Language, node *sitter.Node, src []byte, fn func(map[string]*sitter.Node)) error {
	q, err := compiled(pattern, grammar)
	if err != nil {
		return err
	}
	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(q, node)

	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		match = cursor.FilterPredicates(match, src)
		caps := make(map[string]*sitter.Node, len(match.Captures))
		for _, c := range match.Captures {
			caps[q.CaptureNameForId(c.Index)] = c.Node
		}
		fn(caps)
	}
	return nil
}
