package lens

import (
	sitter "github.com/smacker/go-tree-sitter"
)

func init() {
	Register("remove-unused-function",
		"Remove the definition of a function whose name is referenced nowhere "+
			"outside its own definition.",
		func() Transformation { return &RemoveUnusedFunction{} })
}

// RemoveUnusedFunction deletes the Nth function definition (in source order)
// whose identifier never appears outside the definition itself. Prototypes
// count as references, which keeps the pass conservative: a function with a
// surviving forward declaration is never removed. main is always kept.
type RemoveUnusedFunction struct {
	state runState
}

func (t *RemoveUnusedFunction) Name() string { return "remove-unused-function" }

func (t *RemoveUnusedFunction) Description() string { return Describe(t.Name()) }

func (t *RemoveUnusedFunction) unusedFunctions(prog *Program) []FunctionDefn {
	funcs := prog.Functions()
	var unused []FunctionDefn
	for _, fd := range funcs {
		if fd.Name == "" || fd.Name == "main" {
			continue
		}
		start, end := fd.Node.StartByte(), fd.Node.EndByte()
		referenced := false
		prog.Identifiers(func(name string, n *sitter.Node) {
			if referenced || name != fd.Name {
				return
			}
			if n.StartByte() < start || n.StartByte() >= end {
				referenced = true
			}
		})
		if !referenced {
			unused = append(unused, fd)
		}
	}
	return unused
}

func (t *RemoveUnusedFunction) CountInstances(prog *Program) int {
	return len(t.unusedFunctions(prog))
}

func (t *RemoveUnusedFunction) Apply(prog *Program, counter int) Outcome {
	t.state.to(stateSelecting)
	unused := t.unusedFunctions(prog)
	if counter < 1 || counter > len(unused) {
		t.state.to(stateNotFound)
		return Outcome{Kind: OutcomeOutOfRange, Instances: len(unused)}
	}
	t.state.to(stateFound)
	t.state.to(stateRewriting)

	target := unused[counter-1]
	buf := NewEditBuffer(prog.Source)
	start, end := target.Node.StartByte(), target.Node.EndByte()
	// swallow one trailing newline so removals do not accumulate blank lines
	if end < uint32(len(prog.Source)) && prog.Source[end] == '\n' {
		end++
	}
	buf.Replace(start, end, "")

	text, err := buf.Bytes()
	if err != nil {
		t.state.to(stateFailed)
		return Outcome{Kind: OutcomeFailed, Instances: len(unused), Err: err}
	}
	t.state.to(stateCommitted)
	return Outcome{Kind: OutcomeCommitted, Text: text, Instances: len(unused)}
}
