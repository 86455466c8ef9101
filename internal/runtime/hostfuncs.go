package runtime

import (
	"context"
	"sync"
	"unsafe"

	"github.com/risor-io/risor/object"
	"github.com/rs/zerolog"
	sitter "github.com/smacker/go-tree-sitter"
)

// sourceStore maps trees to their source bytes and language so host
// functions can recover them from any node. smacker/go-tree-sitter does
// not expose Node.Tree(), so entries are keyed by root node pointer. The
// same tree may be registered by concurrent scripts, hence the counts.
type sourceStore struct {
	mu      sync.RWMutex
	entries map[uintptr]*sourceEntry
}

type sourceEntry struct {
	src  []byte
	lang *sitter.Language
	refs int
}

func newSourceStore() *sourceStore {
	return &sourceStore{entries: make(map[uintptr]*sourceEntry)}
}

func rootKey(n *sitter.Node) uintptr {
	for n.Parent() != nil {
		n = n.Parent()
	}
	return uintptr(unsafe.Pointer(n))
}

// add registers a tree and returns a function that releases it again.
func (s *sourceStore) add(tree *sitter.Tree, src []byte, lang *sitter.Language) func() {
	key := uintptr(unsafe.Pointer(tree.RootNode()))
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		e = &sourceEntry{src: src, lang: lang}
		s.entries[key] = e
	}
	e.refs++
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		if e.refs--; e.refs == 0 {
			delete(s.entries, key)
		}
		s.mu.Unlock()
	}
}

func (s *sourceStore) lookup(n *sitter.Node) ([]byte, *sitter.Language, bool) {
	key := rootKey(n)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, nil, false
	}
	return e.src, e.lang, true
}

func nodeArg(name string, arg object.Object) (*sitter.Node, *object.Error) {
	proxy, ok := arg.(*object.Proxy)
	if !ok {
		return nil, object.Errorf("%s: expected proxy (Node), got %s", name, arg.Type())
	}
	node, ok := proxy.Interface().(*sitter.Node)
	if !ok {
		return nil, object.Errorf("%s: expected *sitter.Node, got %T", name, proxy.Interface())
	}
	return node, nil
}

// makeNodeTextFn creates "node_text". Risor's proxies cannot turn a string
// into the []byte node.Content expects.
//
// node_text(node) → string
func makeNodeTextFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("node_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_text", 1, len(args))
		}
		node, errObj := nodeArg("node_text", args[0])
		if errObj != nil {
			return errObj
		}
		src, _, found := ss.lookup(node)
		if !found {
			return object.Errorf("node_text: no source found for node's tree")
		}
		return object.NewString(node.Content(src))
	})
}

// makeNodeChildFn creates "node_child", which returns nil instead of a
// proxied nil pointer when the field is absent.
//
// node_child(node, field) → Node or nil
func makeNodeChildFn() *object.Builtin {
	return object.NewBuiltin("node_child", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("node_child", 2, len(args))
		}
		node, errObj := nodeArg("node_child", args[0])
		if errObj != nil {
			return errObj
		}
		field, ok := args[1].(*object.String)
		if !ok {
			return object.Errorf("node_child: field must be a string, got %s", args[1].Type())
		}
		child := node.ChildByFieldName(field.Value())
		if child == nil {
			return object.Nil
		}
		p, err := object.NewProxy(child)
		if err != nil {
			return object.Errorf("node_child: proxy error: %v", err)
		}
		return p
	})
}

// makeQueryFn creates "query".
//
// query(pattern, node) → list of maps from capture name to Node
func makeQueryFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("query", 2, len(args))
		}
		pattern, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("query: pattern must be a string, got %s", args[0].Type())
		}
		node, errObj := nodeArg("query", args[1])
		if errObj != nil {
			return errObj
		}
		src, lang, found := ss.lookup(node)
		if !found {
			return object.Errorf("query: no source found for node's tree")
		}

		results := []object.Object{}
		var proxyErr error
		err := runQuery(pattern.Value(), lang, node, src, func(caps map[string]*sitter.Node) {
			m := make(map[string]object.Object, len(caps))
			for name, n := range caps {
				p, err := object.NewProxy(n)
				if err != nil {
					proxyErr = err
					return
				}
				m[name] = p
			}
			results = append(results, object.NewMap(m))
		})
		if err != nil {
			return object.Errorf("query: invalid pattern: %v", err)
		}
		if proxyErr != nil {
			return object.Errorf("query: proxy error: %v", proxyErr)
		}
		return object.NewList(results)
	})
}

// makeHintFn creates "hint", which records one diagnostic.
//
// hint(line, message) or hint(line, message, code)
func makeHintFn(out *[]Hint) *object.Builtin {
	return object.NewBuiltin("hint", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 2 || len(args) > 3 {
			return object.Errorf("hint: expected 2 or 3 arguments, got %d", len(args))
		}
		line, ok := args[0].(*object.Int)
		if !ok {
			return object.Errorf("hint: line must be an int, got %s", args[0].Type())
		}
		msg, ok := args[1].(*object.String)
		if !ok {
			return object.Errorf("hint: message must be a string, got %s", args[1].Type())
		}
		h := Hint{Line: int(line.Value()), Message: msg.Value(), Code: "hint"}
		if len(args) == 3 {
			code, ok := args[2].(*object.String)
			if !ok {
				return object.Errorf("hint: code must be a string, got %s", args[2].Type())
			}
			h.Code = code.Value()
		}
		*out = append(*out, h)
		return object.Nil
	})
}

// logObject provides log.Info/Warn/Error to scripts.
type logObject struct {
	log zerolog.Logger
}

func (l *logObject) Info(msg string)  { l.log.Info().Msg(msg) }
func (l *logObject) Warn(msg string)  { l.log.Warn().Msg(msg) }
func (l *logObject) Error(msg string) { l.log.Error().Msg(msg) }
