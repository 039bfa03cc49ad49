package lens

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

func init() {
	Register("simplify-callexpr",
		"Simplify a call expression to a comma expression. Function arguments become "+
			"0 for scalar arguments or a global temp variable for structs/unions, with a "+
			"representative return value appended as the last operand.",
		func() Transformation { return &SimplifyCallExpr{} })
}

// SimplifyCallExpr rewrites the Nth call expression in traversal order into a
// parenthesized comma expression of the same static type. Scalar arguments
// are replaced with literal 0; struct/union arguments and return values get a
// freshly declared global temp variable emitted immediately before the
// enclosing function definition.
//
// Argument side effects are discarded on purpose: the pass is a reduction
// heuristic, not a semantics-preserving transform, and the interestingness
// check decides whether the result is still useful. A zero-argument call to a
// void function is replaced with the empty string, which assumes the call
// appears as a full expression statement; in sub-expression position the
// result may not compile, and the driver will reject it.
type SimplifyCallExpr struct {
	state runState
}

func (t *SimplifyCallExpr) Name() string { return "simplify-callexpr" }

func (t *SimplifyCallExpr) Description() string { return Describe(t.Name()) }

// callSelection is the selector's result: the target call (if the ordinal was
// in range), its enclosing function, and the total instance count.
type callSelection struct {
	target    *sitter.Node
	enclosing *FunctionDefn
	total     int
}

// selectCallExpr walks function definitions in source order and call
// expressions within each in pre-order, counting 1-based. The first match is
// recorded and never overwritten; counting continues so the caller learns the
// total for bounds reporting.
func selectCallExpr(prog *Program, counter int) callSelection {
	var sel callSelection
	funcs := prog.Functions()
	for i := range funcs {
		body := funcs[i].Node.ChildByFieldName("body")
		if body == nil {
			continue
		}
		WalkNode(body, func(n *sitter.Node) bool {
			if n.Type() == "call_expression" {
				sel.total++
				if sel.total == counter && sel.target == nil {
					sel.target = n
					sel.enclosing = &funcs[i]
				}
			}
			return true
		})
	}
	return sel
}

func (t *SimplifyCallExpr) CountInstances(prog *Program) int {
	return selectCallExpr(prog, 0).total
}

func (t *SimplifyCallExpr) Apply(prog *Program, counter int) Outcome {
	t.state.to(stateSelecting)
	sel := selectCallExpr(prog, counter)
	if sel.target == nil {
		t.state.to(stateNotFound)
		return Outcome{Kind: OutcomeOutOfRange, Instances: sel.total}
	}
	t.state.to(stateFound)
	t.state.to(stateRewriting)
	if sel.enclosing == nil {
		t.state.to(stateFailed)
		return Outcome{Kind: OutcomeFailed, Instances: sel.total, Err: ErrNoEnclosingFunction}
	}

	buf := NewEditBuffer(prog.Source)
	names := NewNameAllocator(prog)
	t.rewriteCall(prog, sel, buf, names)

	text, err := buf.Bytes()
	if err != nil {
		t.state.to(stateFailed)
		return Outcome{Kind: OutcomeFailed, Instances: sel.total, Err: err}
	}
	t.state.to(stateCommitted)
	return Outcome{Kind: OutcomeCommitted, Text: text, Instances: sel.total}
}

// rewriteCall assembles the comma expression operand by operand and commits
// the single call-site replacement plus any temp declarations to buf.
func (t *SimplifyCallExpr) rewriteCall(prog *Program, sel callSelection, buf *EditBuffer, names *NameAllocator) {
	cs := CallSite{Node: sel.target}
	types := prog.Types()

	var comma strings.Builder
	appendOperand := func(text string) {
		if comma.Len() == 0 {
			comma.WriteString("(")
		} else {
			comma.WriteString(",")
		}
		comma.WriteString(text)
	}

	for _, arg := range cs.Args() {
		argType := types.ExprType(arg)
		if argType.Aggregate() {
			appendOperand(t.declareTemp(argType, sel.enclosing, buf, names))
		} else {
			appendOperand("0")
		}
	}

	retType := types.CallReturnType(cs)
	switch {
	case retType.IsVoid():
		// no trailing result operand
	case retType.Aggregate():
		appendOperand(t.declareTemp(retType, sel.enclosing, buf, names))
	default:
		appendOperand("0")
	}

	if comma.Len() > 0 {
		comma.WriteString(")")
	}
	start, end := cs.ByteRange()
	buf.Replace(start, end, comma.String())
}

// declareTemp allocates a fresh temp variable of the given aggregate type and
// emits its global declaration immediately before the enclosing function.
func (t *SimplifyCallExpr) declareTemp(declType CType, enclosing *FunctionDefn, buf *EditBuffer, names *NameAllocator) string {
	name := names.Fresh()
	buf.InsertBefore(enclosing.Node.StartByte(), declType.DeclString(name)+";\n")
	return name
}
