package lens

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// TempVarPrefix prefixes every synthesized temp-variable name.
const TempVarPrefix = "tmp_var_"

// NameAllocator hands out temp-variable names unique within the translation
// unit. It is constructed per run and seeded by scanning every identifier
// carrying TempVarPrefix, starting one past the largest numeric suffix found,
// so repeated reduction runs over the same file never collide with their own
// earlier output. There is no process-wide counter.
type NameAllocator struct {
	next int
}

// NewNameAllocator seeds an allocator from the program's identifiers.
func NewNameAllocator(prog *Program) *NameAllocator {
	maxSuffix := -1
	prog.Identifiers(func(name string, _ *sitter.Node) {
		suffix, ok := strings.CutPrefix(name, TempVarPrefix)
		if !ok {
			return
		}
		if v, err := strconv.Atoi(suffix); err == nil && v > maxSuffix {
			maxSuffix = v
		}
	})
	return &NameAllocator{next: maxSuffix + 1}
}

// Fresh returns the next unused temp-variable name.
func (a *NameAllocator) Fresh() string {
	name := TempVarPrefix + strconv.Itoa(a.next)
	a.next++
	return name
}
