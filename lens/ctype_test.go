package lens

import (
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		ctype     CType
		aggregate bool
		void      bool
		decl      string
	}{
		{
			name:      "plain_struct",
			ctype:     CType{Spell: "struct Z", Class: ClassStruct},
			aggregate: true,
			decl:      "struct Z t",
		},
		{
			name:      "union",
			ctype:     CType{Spell: "union U", Class: ClassUnion},
			aggregate: true,
			decl:      "union U t",
		},
		{
			name:  "struct_pointer",
			ctype: CType{Spell: "struct Z", Class: ClassStruct, Ptr: 1},
			decl:  "struct Z *t",
		},
		{
			name:  "void",
			ctype: CType{Spell: "void", Class: ClassVoid},
			void:  true,
			decl:  "void t",
		},
		{
			name:  "double_pointer",
			ctype: CType{Spell: "char", Class: ClassScalar, Ptr: 2},
			decl:  "char **t",
		},
		{
			name:  "empty_spell_defaults_int",
			ctype: CType{Class: ClassUnknown},
			decl:  "int t",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.aggregate, tc.ctype.Aggregate())
			assert.Equal(t, tc.void, tc.ctype.IsVoid())
			assert.Equal(t, tc.decl, tc.ctype.DeclString("t"))
		})
	}
}

const typeFixture = `typedef struct Pair { int a; int b; } Pair;
struct Z { int n; char *s; };
union U { int i; float f; };
enum Color { RED, GREEN };
struct Z gz;
union U gu;
Pair gp;
int gi;
char *gs;
struct Z make_z(void);
void sink(void);
int main(int argc, char **argv) {
  struct Z lz;
  int li = 0;
  use(li, lz, gz, gu, gp, gi, gs, argc, argv, RED, lz.n, gz.s, &gz, *gs, make_z());
  sink();
  return 0;
}
`

// collectCalls returns all call expressions in pre-order.
func collectCalls(prog *Program) []*sitter.Node {
	var calls []*sitter.Node
	WalkNode(prog.Root(), func(n *sitter.Node) bool {
		if n.Type() == "call_expression" {
			calls = append(calls, n)
		}
		return true
	})
	return calls
}

func TestExprType(t *testing.T) {
	t.Parallel()

	prog, err := ParseC("types.c", []byte(typeFixture))
	require.NoError(t, err)
	require.False(t, prog.HasSyntaxError())
	types := prog.Types()

	calls := collectCalls(prog)
	require.Len(t, calls, 3) // use(...), make_z() inside its arguments, sink()
	args := CallSite{Node: calls[0]}.Args()
	require.Len(t, args, 15)

	tests := []struct {
		name      string
		arg       int
		aggregate bool
		spell     string
	}{
		{name: "local_int", arg: 0},
		{name: "local_struct", arg: 1, aggregate: true, spell: "struct Z"},
		{name: "global_struct", arg: 2, aggregate: true, spell: "struct Z"},
		{name: "global_union", arg: 3, aggregate: true, spell: "union U"},
		{name: "typedef_struct", arg: 4, aggregate: true, spell: "Pair"},
		{name: "global_int", arg: 5},
		{name: "global_char_ptr", arg: 6},
		{name: "parameter_int", arg: 7},
		{name: "parameter_char_ptr_ptr", arg: 8},
		{name: "enum_constant", arg: 9},
		{name: "struct_int_member", arg: 10},
		{name: "struct_ptr_member", arg: 11},
		{name: "address_of_struct", arg: 12},
		{name: "deref_char_ptr", arg: 13},
		{name: "struct_returning_call", arg: 14, aggregate: true, spell: "struct Z"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := types.ExprType(args[tc.arg])
			assert.Equal(t, tc.aggregate, got.Aggregate(),
				"argument %q", prog.NodeText(args[tc.arg]))
			if tc.spell != "" {
				assert.Equal(t, tc.spell, got.Spell)
			}
		})
	}
}

func TestCallReturnType(t *testing.T) {
	t.Parallel()

	prog, err := ParseC("types.c", []byte(typeFixture))
	require.NoError(t, err)
	types := prog.Types()
	calls := collectCalls(prog)
	require.Len(t, calls, 3)

	// undeclared callee degrades to scalar
	unknown := types.CallReturnType(CallSite{Node: calls[0]})
	assert.False(t, unknown.Aggregate())
	assert.False(t, unknown.IsVoid())

	structRet := types.CallReturnType(CallSite{Node: calls[1]})
	assert.True(t, structRet.Aggregate())
	assert.Equal(t, "struct Z", structRet.Spell)

	voidRet := types.CallReturnType(CallSite{Node: calls[2]})
	assert.True(t, voidRet.IsVoid())
}

func TestReturnTypePointer(t *testing.T) {
	t.Parallel()

	prog, err := ParseC("ptr.c", []byte("struct Z { int n; };\nstruct Z *find(void);\nint main() { find(); return 0; }\n"))
	require.NoError(t, err)
	types := prog.Types()

	calls := collectCalls(prog)
	require.Len(t, calls, 1)
	ret := types.CallReturnType(CallSite{Node: calls[0]})
	// pointer to struct is a scalar operand, no temp variable needed
	assert.False(t, ret.Aggregate())
	assert.Equal(t, 1, ret.Ptr)
}

func TestTypedefFieldAlias(t *testing.T) {
	t.Parallel()

	source := `typedef struct { int count; } Anon;
Anon ga;
int main() { use(ga.count); return 0; }
`
	prog, err := ParseC("anon.c", []byte(source))
	require.NoError(t, err)
	types := prog.Types()

	calls := collectCalls(prog)
	require.Len(t, calls, 1)
	args := CallSite{Node: calls[0]}.Args()
	require.Len(t, args, 1)

	// member access through the typedef of an anonymous struct resolves
	got := types.ExprType(args[0])
	assert.False(t, got.Aggregate())
	assert.Equal(t, "int", got.Spell)
}
