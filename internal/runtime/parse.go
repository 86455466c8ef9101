package runtime

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Decl is one top-level declaration found in a unit.
type Decl struct {
	Name     string
	Kind     string // "function", "prototype", "type" or "class"
	Exported bool
	Line     int
	Column   int
	Offset   int
	Length   int
}

// Defines reports whether the declaration introduces a definition, as
// opposed to a forward declaration of one made elsewhere.
func (d Decl) Defines() bool { return d.Kind != "prototype" }

// SyntaxError is a location tree-sitter could not parse.
type SyntaxError struct {
	Line    int
	Column  int
	Offset  int
	Length  int
	Message string
}

// Include is a quoted #include directive.
type Include struct {
	Path   string
	Line   int
	Offset int
	Length int
}

// Unit is the parse result for one source file.
type Unit struct {
	Path     string
	Language string
	Src      []byte
	Tree     *sitter.Tree

	Decls    []Decl
	Includes []Include
	Imports  []string // dotted module names
	Syntax   []SyntaxError
	HasMain  bool
}

// Root returns the root node of the unit's syntax tree.
func (u *Unit) Root() *sitter.Node { return u.Tree.RootNode() }

// Parse parses src as the given language and extracts the declarations,
// includes, imports and syntax errors of the result.
func Parse(ctx context.Context, path, lang string, src []byte) (*Unit, error) {
	grammar, ok := ParserForLanguage(lang)
	if !ok {
		return nil, fmt.Errorf("runtime: unsupported language %q", lang)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("runtime: parsing %s: %w", path, err)
	}

	u := &Unit{Path: path, Language: lang, Src: src, Tree: tree}
	u.Syntax = syntaxErrors(tree.RootNode())
	if err := extract(u, grammar); err != nil {
		return nil, fmt.Errorf("runtime: extracting %s: %w", path, err)
	}
	return u, nil
}

// syntaxErrors collects ERROR and MISSING nodes. Children of an ERROR node
// are not reported separately.
func syntaxErrors(root *sitter.Node) []SyntaxError {
	var out []SyntaxError
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch {
		case n.IsMissing():
			out = append(out, syntaxError(n, fmt.Sprintf("missing %s", n.Type())))
			return
		case n.Type() == "ERROR":
			out = append(out, syntaxError(n, "syntax error"))
			return
		case !n.HasError():
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			if child := n.Child(i); child != nil {
				walk(child)
			}
		}
	}
	walk(root)
	return out
}

func syntaxError(n *sitter.Node, msg string) SyntaxError {
	p := n.StartPoint()
	return SyntaxError{
		Line:    int(p.Row),
		Column:  int(p.Column),
		Offset:  int(n.StartByte()),
		Length:  int(n.EndByte() - n.StartByte()),
		Message: msg,
	}
}

func unquote(s string) string {
	return strings.Trim(s, "\"")
}
