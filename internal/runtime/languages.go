package runtime

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/php"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	ts "github.com/smacker/go-tree-sitter/typescript/typescript"
)

// language describes one supported source language.
type language struct {
	name    string
	exts    []string
	headers []string // extensions of files only ever included, never compiled alone
	grammar func() *sitter.Language
}

var languages = []language{
	{name: "c", exts: []string{".c"}, headers: []string{".h"}, grammar: c.GetLanguage},
	{name: "cpp", exts: []string{".cpp", ".cc", ".cxx"}, headers: []string{".hpp", ".hh", ".hxx"}, grammar: cpp.GetLanguage},
	{name: "go", exts: []string{".go"}, grammar: golang.GetLanguage},
	{name: "python", exts: []string{".py"}, grammar: python.GetLanguage},
	{name: "javascript", exts: []string{".js", ".jsx", ".mjs"}, grammar: javascript.GetLanguage},
	{name: "typescript", exts: []string{".ts", ".tsx"}, grammar: ts.GetLanguage},
	{name: "rust", exts: []string{".rs"}, grammar: rust.GetLanguage},
	{name: "java", exts: []string{".java"}, grammar: java.GetLanguage},
	{name: "php", exts: []string{".php"}, grammar: php.GetLanguage},
	{name: "ruby", exts: []string{".rb"}, grammar: ruby.GetLanguage},
}

type extInfo struct {
	lang   string
	header bool
}

var (
	byExt     map[string]extInfo
	grammars  map[string]*sitter.Language
	tableOnce sync.Once
)

func initTables() {
	tableOnce.Do(func() {
		byExt = make(map[string]extInfo)
		grammars = make(map[string]*sitter.Language, len(languages))
		for _, l := range languages {
			for _, ext := range l.exts {
				byExt[ext] = extInfo{lang: l.name}
			}
			for _, ext := range l.headers {
				byExt[ext] = extInfo{lang: l.name, header: true}
			}
			grammars[l.name] = l.grammar()
		}
	})
}

// LanguageForFile returns the canonical language name for a file path based
// on its extension. Returns ("", false) if the extension is not recognized.
func LanguageForFile(path string) (string, bool) {
	initTables()
	info, ok := byExt[strings.ToLower(filepath.Ext(path))]
	return info.lang, ok
}

// IsHeader reports whether path is a header: a file that is only analyzed
// as a part of the libraries including it.
func IsHeader(path string) bool {
	initTables()
	return byExt[strings.ToLower(filepath.Ext(path))].header
}

// ParserForLanguage returns the tree-sitter Language for a canonical language
// name. Returns (nil, false) if the language is not supported.
func ParserForLanguage(lang string) (*sitter.Language, bool) {
	initTables()
	l, ok := grammars[lang]
	return l, ok
}

// Languages lists the supported language names.
func Languages() []string {
	out := make([]string, len(languages))
	for i, l := range languages {
		out[i] = l.name
	}
	return out
}
