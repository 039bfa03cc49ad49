package lens

import (
	"context"
	"fmt"
	"os"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
)

// Program is a parsed C translation unit tied to its source buffer. The tree
// and all node views handed out from it are non-owning; the Program owns the
// source bytes and the tree for the duration of a run.
type Program struct {
	FilePath string
	Source   []byte

	tree  *sitter.Tree
	types *TypeTable
}

// ParseC parses preprocessed C source into a Program. Syntax errors in the
// tree do not fail the parse; reduction inputs are frequently half-broken and
// the error state is only surfaced through HasSyntaxError.
func ParseC(filePath string, source []byte) (*Program, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(c.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse failure %s: %w", filePath, err)
	}
	prog := &Program{
		FilePath: filePath,
		Source:   source,
		tree:     tree,
	}
	prog.types = newTypeTable(prog)
	return prog, nil
}

// ParseCFile reads and parses the file at path.
func ParseCFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read failure %s: %w", path, err)
	}
	return ParseC(path, data)
}

// Root returns the translation_unit node.
func (p *Program) Root() *sitter.Node {
	return p.tree.RootNode()
}

// Types returns the typing tables built for this translation unit.
func (p *Program) Types() *TypeTable {
	return p.types
}

// HasSyntaxError reports whether the parse tree contains error nodes.
func (p *Program) HasSyntaxError() bool {
	return p.Root().HasError()
}

// NodeText returns the source text covered by a node.
func (p *Program) NodeText(n *sitter.Node) string {
	return n.Content(p.Source)
}

// WalkNode performs a depth-first pre-order walk. Returning false from fn
// prunes the subtree below the current node.
func WalkNode(node *sitter.Node, fn func(*sitter.Node) bool) {
	if node == nil {
		return
	}
	if !fn(node) {
		return
	}
	for i := uint32(0); i < node.ChildCount(); i++ {
		WalkNode(node.Child(int(i)), fn)
	}
}

// FunctionDefn is a non-owning view of one function definition.
type FunctionDefn struct {
	Node *sitter.Node
	Name string
}

// Functions returns all function definitions in source order.
func (p *Program) Functions() []FunctionDefn {
	var funcs []FunctionDefn
	root := p.Root()
	for i := uint32(0); i < root.NamedChildCount(); i++ {
		child := root.NamedChild(int(i))
		if child.Type() != "function_definition" {
			continue
		}
		funcs = append(funcs, FunctionDefn{
			Node: child,
			Name: p.functionName(child),
		})
	}
	return funcs
}

// functionName digs the identifier out of a possibly nested declarator chain
// (pointer return types wrap the function_declarator).
func (p *Program) functionName(defn *sitter.Node) string {
	declarator := findDescendant(defn, "function_declarator")
	if declarator == nil {
		return ""
	}
	inner := declarator.ChildByFieldName("declarator")
	for inner != nil {
		switch inner.Type() {
		case "identifier", "field_identifier":
			return p.NodeText(inner)
		case "pointer_declarator", "parenthesized_declarator":
			inner = inner.ChildByFieldName("declarator")
			if inner == nil {
				return ""
			}
		default:
			return p.NodeText(inner)
		}
	}
	return ""
}

// findDescendant returns the first pre-order descendant of the given type.
func findDescendant(node *sitter.Node, nodeType string) *sitter.Node {
	var found *sitter.Node
	WalkNode(node, func(n *sitter.Node) bool {
		if found != nil {
			return false
		}
		if n.Type() == nodeType {
			found = n
			return false
		}
		return true
	})
	return found
}

// CallSite is a non-owning view of a selected call expression.
type CallSite struct {
	Node *sitter.Node
}

// Args returns the call's argument expression nodes in source order.
func (cs CallSite) Args() []*sitter.Node {
	argList := cs.Node.ChildByFieldName("arguments")
	if argList == nil {
		return nil
	}
	var args []*sitter.Node
	for i := uint32(0); i < argList.NamedChildCount(); i++ {
		child := argList.NamedChild(int(i))
		if child.Type() == "comment" {
			continue
		}
		args = append(args, child)
	}
	return args
}

// ByteRange returns the call expression's source byte range.
func (cs CallSite) ByteRange() (uint32, uint32) {
	return cs.Node.StartByte(), cs.Node.EndByte()
}

// Callee returns the called function's name when the callee is a plain
// identifier, or the callee expression text otherwise.
func (cs CallSite) Callee(p *Program) string {
	fn := cs.Node.ChildByFieldName("function")
	if fn == nil {
		return ""
	}
	return strings.TrimSpace(p.NodeText(fn))
}

// Identifiers invokes fn for every identifier-like token in the translation
// unit. Used for temp-name scanning and reference counting.
func (p *Program) Identifiers(fn func(name string, node *sitter.Node)) {
	WalkNode(p.Root(), func(n *sitter.Node) bool {
		switch n.Type() {
		case "identifier", "type_identifier", "field_identifier", "statement_identifier":
			fn(p.NodeText(n), n)
		}
		return true
	})
}
