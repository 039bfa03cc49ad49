package lens

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// TypeClass partitions C static types by how the rewriter encodes operands:
// aggregates (struct/union) get temp variables, everything else is scalar.
type TypeClass int

const (
	ClassUnknown TypeClass = iota
	ClassVoid
	ClassScalar
	ClassStruct
	ClassUnion
)

// CType is a best-effort static type: the base specifier spelling as written
// in the source plus a pointer depth. Array and function types are folded
// into pointer depth; the rewriter only needs aggregate-vs-scalar and a
// printable spelling for temp declarations.
type CType struct {
	Spell string
	Class TypeClass
	Ptr   int
}

// Aggregate reports whether a value of this type is a struct or union.
// Pointers to aggregates are scalars.
func (t CType) Aggregate() bool {
	return t.Ptr == 0 && (t.Class == ClassStruct || t.Class == ClassUnion)
}

// IsVoid reports whether the type is plain void.
func (t CType) IsVoid() bool {
	return t.Ptr == 0 && t.Class == ClassVoid
}

// DeclString renders a declaration of the named variable with this type,
// without the trailing semicolon.
func (t CType) DeclString(name string) string {
	spell := t.Spell
	if spell == "" {
		spell = "int"
	}
	return spell + " " + strings.Repeat("*", t.Ptr) + name
}

func scalarType(spell string) CType {
	return CType{Spell: spell, Class: ClassScalar}
}

// TypeTable holds the per-translation-unit typing information gathered in one
// syntax-driven pass: typedefs, struct/union field tables, function return
// types, file-scope variables and enum constants. Lookups never fail hard;
// anything unresolved classifies as scalar, which degrades to the safe `0`
// operand substitution.
type TypeTable struct {
	prog *Program

	typedefs map[string]CType
	funcs    map[string]CType
	fields   map[string]map[string]CType
	globals  map[string]CType
	enums    map[string]bool
}

func newTypeTable(prog *Program) *TypeTable {
	tt := &TypeTable{
		prog:     prog,
		typedefs: make(map[string]CType),
		funcs:    make(map[string]CType),
		fields:   make(map[string]map[string]CType),
		globals:  make(map[string]CType),
		enums:    make(map[string]bool),
	}
	tt.collect()
	return tt
}

func (tt *TypeTable) collect() {
	// Field tables and enum constants can live at any nesting depth.
	WalkNode(tt.prog.Root(), func(n *sitter.Node) bool {
		switch n.Type() {
		case "struct_specifier", "union_specifier":
			tt.collectFields(n)
		case "enum_specifier":
			tt.collectEnumerators(n)
		}
		return true
	})

	root := tt.prog.Root()
	for i := uint32(0); i < root.NamedChildCount(); i++ {
		child := root.NamedChild(int(i))
		switch child.Type() {
		case "type_definition":
			tt.collectTypedef(child)
		case "declaration":
			tt.collectDeclaration(child)
		case "function_definition":
			name := tt.prog.functionName(child)
			if name != "" {
				tt.funcs[name] = tt.returnType(child)
			}
		}
	}
}

// returnType computes the declared return type of a function definition or
// prototype: the base specifier plus any pointer declarators wrapped around
// the function_declarator.
func (tt *TypeTable) returnType(defn *sitter.Node) CType {
	base := tt.typeFromSpecifier(defn.ChildByFieldName("type"))
	decl := defn.ChildByFieldName("declarator")
	for decl != nil {
		switch decl.Type() {
		case "pointer_declarator":
			base.Ptr++
			if base.Class == ClassVoid {
				base.Class = ClassScalar
			}
			decl = decl.ChildByFieldName("declarator")
		case "parenthesized_declarator":
			decl = decl.NamedChild(0)
		case "function_declarator":
			return base
		default:
			return base
		}
	}
	return base
}

func (tt *TypeTable) collectTypedef(n *sitter.Node) {
	base := tt.typeFromSpecifier(n.ChildByFieldName("type"))
	// Anonymous struct/union typedefs get their field table registered under
	// the alias since there is no tag to key on.
	spec := n.ChildByFieldName("type")
	anonymous := spec != nil && spec.ChildByFieldName("name") == nil &&
		(spec.Type() == "struct_specifier" || spec.Type() == "union_specifier")

	for i := uint32(0); i < n.NamedChildCount(); i++ {
		declNode := n.NamedChild(int(i))
		switch declNode.Type() {
		case "type_identifier", "pointer_declarator", "function_declarator", "array_declarator", "parenthesized_declarator":
			name, extraPtr, isFunc := tt.declaratorInfo(declNode)
			if name == "" || name == base.Spell {
				continue
			}
			alias := base
			alias.Ptr += extraPtr
			if isFunc || alias.Ptr > 0 {
				if alias.Class == ClassVoid || alias.Class == ClassStruct || alias.Class == ClassUnion {
					// pointer/function alias is scalar-valued
					if alias.Ptr > 0 || isFunc {
						alias.Class = ClassScalar
						if alias.Ptr == 0 {
							alias.Ptr = 1 // function typedefs behave like pointers here
						}
					}
				}
			}
			// A value of the alias type is still spelled by the alias name.
			if alias.Ptr == base.Ptr {
				alias.Spell = name
			}
			tt.typedefs[name] = alias
			if alias.Ptr == 0 && (alias.Class == ClassStruct || alias.Class == ClassUnion) {
				// alias the field table so member lookups through the
				// typedef spelling resolve
				key := base.Spell
				if anonymous {
					key = tt.anonKey(spec)
				}
				if ft, ok := tt.fields[key]; ok {
					tt.fields[name] = ft
				}
			}
		}
	}
}

func (tt *TypeTable) collectDeclaration(n *sitter.Node) {
	base := tt.typeFromSpecifier(n.ChildByFieldName("type"))
	for i := uint32(0); i < n.NamedChildCount(); i++ {
		child := n.NamedChild(int(i))
		switch child.Type() {
		case "init_declarator", "identifier", "pointer_declarator", "array_declarator", "function_declarator", "parenthesized_declarator":
			name, extraPtr, isFunc := tt.declaratorInfo(child)
			if name == "" {
				continue
			}
			declType := base
			declType.Ptr += extraPtr
			if declType.Ptr > 0 && declType.Class == ClassVoid {
				declType.Class = ClassScalar
			}
			if isFunc {
				tt.funcs[name] = declType
			} else {
				tt.globals[name] = declType
			}
		}
	}
}

func (tt *TypeTable) collectFields(spec *sitter.Node) {
	body := spec.ChildByFieldName("body")
	if body == nil {
		return
	}
	key := tt.specKey(spec)
	table, ok := tt.fields[key]
	if !ok {
		table = make(map[string]CType)
		tt.fields[key] = table
	}
	for i := uint32(0); i < body.NamedChildCount(); i++ {
		fieldDecl := body.NamedChild(int(i))
		if fieldDecl.Type() != "field_declaration" {
			continue
		}
		base := tt.typeFromSpecifier(fieldDecl.ChildByFieldName("type"))
		for j := uint32(0); j < fieldDecl.NamedChildCount(); j++ {
			declNode := fieldDecl.NamedChild(int(j))
			switch declNode.Type() {
			case "field_identifier", "pointer_declarator", "array_declarator", "parenthesized_declarator":
				name, extraPtr, _ := tt.declaratorInfo(declNode)
				if name == "" {
					continue
				}
				fieldType := base
				fieldType.Ptr += extraPtr
				if fieldType.Ptr > 0 && fieldType.Class == ClassVoid {
					fieldType.Class = ClassScalar
				}
				table[name] = fieldType
			}
		}
	}
}

func (tt *TypeTable) collectEnumerators(spec *sitter.Node) {
	body := spec.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := uint32(0); i < body.NamedChildCount(); i++ {
		enumerator := body.NamedChild(int(i))
		if enumerator.Type() != "enumerator" {
			continue
		}
		if nameNode := enumerator.ChildByFieldName("name"); nameNode != nil {
			tt.enums[tt.prog.NodeText(nameNode)] = true
		}
	}
}

// specKey is the field-table key for a struct/union specifier.
func (tt *TypeTable) specKey(spec *sitter.Node) string {
	kind := "struct"
	if spec.Type() == "union_specifier" {
		kind = "union"
	}
	if nameNode := spec.ChildByFieldName("name"); nameNode != nil {
		return kind + " " + tt.prog.NodeText(nameNode)
	}
	return tt.anonKey(spec)
}

// anonKey keys anonymous aggregates by position so typedef aliasing can find
// the field table registered during the full-tree walk.
func (tt *TypeTable) anonKey(spec *sitter.Node) string {
	return "anon@" + strconv.Itoa(int(spec.StartByte()))
}

// typeFromSpecifier maps a type-specifier node to a CType.
func (tt *TypeTable) typeFromSpecifier(spec *sitter.Node) CType {
	if spec == nil {
		return CType{Class: ClassUnknown, Spell: "int"}
	}
	switch spec.Type() {
	case "primitive_type":
		text := tt.prog.NodeText(spec)
		if text == "void" {
			return CType{Spell: "void", Class: ClassVoid}
		}
		return scalarType(text)
	case "sized_type_specifier":
		return scalarType(tt.prog.NodeText(spec))
	case "struct_specifier", "union_specifier":
		class := ClassStruct
		kind := "struct"
		if spec.Type() == "union_specifier" {
			class = ClassUnion
			kind = "union"
		}
		if nameNode := spec.ChildByFieldName("name"); nameNode != nil {
			return CType{Spell: kind + " " + tt.prog.NodeText(nameNode), Class: class}
		}
		// Anonymous aggregate: the full specifier text is the only spelling.
		return CType{Spell: strings.TrimSpace(tt.prog.NodeText(spec)), Class: class}
	case "enum_specifier":
		if nameNode := spec.ChildByFieldName("name"); nameNode != nil {
			return scalarType("enum " + tt.prog.NodeText(nameNode))
		}
		return scalarType("int")
	case "type_identifier":
		name := tt.prog.NodeText(spec)
		if alias, ok := tt.typedefs[name]; ok {
			return alias
		}
		return CType{Spell: name, Class: ClassUnknown}
	default:
		return CType{Spell: strings.TrimSpace(tt.prog.NodeText(spec)), Class: ClassUnknown}
	}
}

// typeFromDescriptor handles cast targets: a type_descriptor node carrying a
// specifier plus optional abstract pointer declarators.
func (tt *TypeTable) typeFromDescriptor(desc *sitter.Node) CType {
	if desc == nil {
		return CType{Class: ClassUnknown, Spell: "int"}
	}
	base := tt.typeFromSpecifier(desc.ChildByFieldName("type"))
	WalkNode(desc, func(n *sitter.Node) bool {
		if n.Type() == "abstract_pointer_declarator" {
			base.Ptr++
		}
		return true
	})
	if base.Ptr > 0 && base.Class == ClassVoid {
		base.Class = ClassScalar
	}
	return base
}

// declaratorInfo unwraps a declarator chain down to the declared name,
// counting pointer (and array, by decay) levels along the way.
func (tt *TypeTable) declaratorInfo(decl *sitter.Node) (name string, extraPtr int, isFunc bool) {
	for decl != nil {
		switch decl.Type() {
		case "init_declarator":
			decl = decl.ChildByFieldName("declarator")
		case "pointer_declarator":
			extraPtr++
			decl = decl.ChildByFieldName("declarator")
		case "array_declarator":
			extraPtr++
			decl = decl.ChildByFieldName("declarator")
		case "function_declarator":
			isFunc = true
			decl = decl.ChildByFieldName("declarator")
		case "parenthesized_declarator":
			decl = decl.NamedChild(0)
		case "identifier", "field_identifier", "type_identifier":
			return tt.prog.NodeText(decl), extraPtr, isFunc
		default:
			return "", extraPtr, isFunc
		}
	}
	return "", extraPtr, isFunc
}

// ExprType resolves the static type of an expression node. The resolution is
// syntax-driven and intentionally forgiving: any construct it cannot resolve
// classifies as scalar.
func (tt *TypeTable) ExprType(n *sitter.Node) CType {
	if n == nil {
		return CType{Class: ClassUnknown, Spell: "int"}
	}
	switch n.Type() {
	case "identifier":
		return tt.resolveIdent(n)
	case "number_literal":
		text := tt.prog.NodeText(n)
		if !strings.HasPrefix(text, "0x") && !strings.HasPrefix(text, "0X") &&
			strings.ContainsAny(text, ".eE") {
			return scalarType("double")
		}
		return scalarType("int")
	case "char_literal":
		return scalarType("int")
	case "string_literal", "concatenated_string":
		return CType{Spell: "char", Class: ClassScalar, Ptr: 1}
	case "sizeof_expression":
		return scalarType("unsigned long")
	case "call_expression":
		callee := n.ChildByFieldName("function")
		if callee != nil && callee.Type() == "identifier" {
			if ret, ok := tt.funcs[tt.prog.NodeText(callee)]; ok {
				return ret
			}
		}
		return CType{Class: ClassUnknown, Spell: "int"}
	case "field_expression":
		argType := tt.ExprType(n.ChildByFieldName("argument"))
		fieldNode := n.ChildByFieldName("field")
		if fieldNode == nil {
			return CType{Class: ClassUnknown, Spell: "int"}
		}
		return tt.fieldType(argType, tt.prog.NodeText(fieldNode))
	case "pointer_expression":
		argType := tt.ExprType(n.ChildByFieldName("argument"))
		if op := n.Child(0); op != nil {
			switch op.Type() {
			case "*":
				if argType.Ptr > 0 {
					argType.Ptr--
				}
			case "&":
				argType.Ptr++
				if argType.Class == ClassVoid {
					argType.Class = ClassScalar
				}
			}
		}
		return argType
	case "subscript_expression":
		argType := tt.ExprType(n.ChildByFieldName("argument"))
		if argType.Ptr > 0 {
			argType.Ptr--
		}
		return argType
	case "unary_expression", "update_expression":
		return tt.ExprType(n.ChildByFieldName("argument"))
	case "binary_expression":
		return tt.ExprType(n.ChildByFieldName("left"))
	case "assignment_expression":
		return tt.ExprType(n.ChildByFieldName("left"))
	case "conditional_expression":
		return tt.ExprType(n.ChildByFieldName("consequence"))
	case "comma_expression":
		return tt.ExprType(n.ChildByFieldName("right"))
	case "cast_expression":
		return tt.typeFromDescriptor(n.ChildByFieldName("type"))
	case "parenthesized_expression":
		return tt.ExprType(n.NamedChild(0))
	default:
		return CType{Class: ClassUnknown, Spell: "int"}
	}
}

// CallReturnType resolves the declared return type of a call expression.
func (tt *TypeTable) CallReturnType(call CallSite) CType {
	return tt.ExprType(call.Node)
}

// fieldType looks up a member's type in the aggregate's field table.
func (tt *TypeTable) fieldType(base CType, field string) CType {
	if base.Class != ClassStruct && base.Class != ClassUnion {
		return CType{Class: ClassUnknown, Spell: "int"}
	}
	if table, ok := tt.fields[base.Spell]; ok {
		if ft, ok := table[field]; ok {
			return ft
		}
	}
	return CType{Class: ClassUnknown, Spell: "int"}
}

// resolveIdent resolves an identifier's declared type by walking outward from
// the use point: enclosing block declarations before the use, then function
// parameters, then file scope.
func (tt *TypeTable) resolveIdent(n *sitter.Node) CType {
	name := tt.prog.NodeText(n)
	if tt.enums[name] {
		return scalarType("int")
	}
	for parent := n.Parent(); parent != nil; parent = parent.Parent() {
		switch parent.Type() {
		case "compound_statement", "for_statement":
			if declType, ok := tt.blockDeclType(parent, name, n.StartByte()); ok {
				return declType
			}
		case "function_definition":
			if paramType, ok := tt.paramType(parent, name); ok {
				return paramType
			}
		}
	}
	if declType, ok := tt.globals[name]; ok {
		return declType
	}
	if ret, ok := tt.funcs[name]; ok {
		// function designator used as a value
		ret.Ptr++
		ret.Class = ClassScalar
		return ret
	}
	return CType{Class: ClassUnknown, Spell: "int"}
}

func (tt *TypeTable) blockDeclType(block *sitter.Node, name string, before uint32) (CType, bool) {
	for i := uint32(0); i < block.NamedChildCount(); i++ {
		child := block.NamedChild(int(i))
		if child.Type() != "declaration" || child.StartByte() >= before {
			continue
		}
		base := tt.typeFromSpecifier(child.ChildByFieldName("type"))
		for j := uint32(0); j < child.NamedChildCount(); j++ {
			declNode := child.NamedChild(int(j))
			switch declNode.Type() {
			case "init_declarator", "identifier", "pointer_declarator", "array_declarator", "parenthesized_declarator":
				declName, extraPtr, isFunc := tt.declaratorInfo(declNode)
				if declName != name || isFunc {
					continue
				}
				declType := base
				declType.Ptr += extraPtr
				if declType.Ptr > 0 && declType.Class == ClassVoid {
					declType.Class = ClassScalar
				}
				return declType, true
			}
		}
	}
	return CType{}, false
}

func (tt *TypeTable) paramType(defn *sitter.Node, name string) (CType, bool) {
	declarator := findDescendant(defn, "function_declarator")
	if declarator == nil {
		return CType{}, false
	}
	params := declarator.ChildByFieldName("parameters")
	if params == nil {
		return CType{}, false
	}
	for i := uint32(0); i < params.NamedChildCount(); i++ {
		param := params.NamedChild(int(i))
		if param.Type() != "parameter_declaration" {
			continue
		}
		base := tt.typeFromSpecifier(param.ChildByFieldName("type"))
		declNode := param.ChildByFieldName("declarator")
		if declNode == nil {
			continue
		}
		declName, extraPtr, _ := tt.declaratorInfo(declNode)
		if declName != name {
			continue
		}
		paramType := base
		paramType.Ptr += extraPtr
		if paramType.Ptr > 0 && paramType.Class == ClassVoid {
			paramType.Class = ClassScalar
		}
		return paramType, true
	}
	return CType{}, false
}
