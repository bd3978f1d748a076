package delbin

// This file lowers the parse tree into typed AST nodes, one struct type
// per grammar production, each carrying a Span — the same shape
// clarete-langlang's grammar_ast.go uses (GrammarNode, DefinitionNode, ...)
// for its PEG grammar AST, applied here to spec §6.1's binary-struct
// grammar instead.

// Endian is the struct's declared byte order (spec §3 Directive).
type Endian int

const (
	LittleEndian Endian = iota
	BigEndian
)

func (e Endian) String() string {
	if e == BigEndian {
		return "big"
	}
	return "little"
}

// File is the root AST node: zero-or-more directives (today, at most one
// `endian` directive) plus exactly one Struct.
type File struct {
	HasEndian  bool
	Endian     Endian
	EndianSpan Span
	Struct     *StructDecl
	Span       Span
}

// StructAttr is the attribute set drawn from {packed, align(n)} (spec §3).
type StructAttr struct {
	Packed    bool
	PackedSpan Span
	HasAlign  bool
	Align     int
	AlignSpan Span
}

// StructDecl is the single struct declared by a schema.
type StructDecl struct {
	Name   string
	NameSpan Span
	Attr   StructAttr
	Fields []*FieldDecl
	Span   Span
}

// ScalarKind is one of the eight fixed-width integer types (spec §3).
type ScalarKind int

const (
	U8 ScalarKind = iota
	U16
	U32
	U64
	I8
	I16
	I32
	I64
)

var scalarNames = map[string]ScalarKind{
	"u8": U8, "u16": U16, "u32": U32, "u64": U64,
	"i8": I8, "i16": I16, "i32": I32, "i64": I64,
}

func (k ScalarKind) String() string {
	for name, kind := range scalarNames {
		if kind == k {
			return name
		}
	}
	return "?"
}

// Width returns the scalar's size in bytes.
func (k ScalarKind) Width() int {
	switch k {
	case U8, I8:
		return 1
	case U16, I16:
		return 2
	case U32, I32:
		return 4
	case U64, I64:
		return 8
	default:
		return 0
	}
}

// Signed reports whether the scalar is a signed integer type.
func (k ScalarKind) Signed() bool {
	switch k {
	case I8, I16, I32, I64:
		return true
	default:
		return false
	}
}

// TypeExpr is a field's type: either a bare Scalar, or an Array of a
// Scalar element with a constant-foldable Length expression (spec §3).
type TypeExpr struct {
	IsArray bool
	Scalar  ScalarKind // the field type when !IsArray, the element type when IsArray
	Length  Expr        // nil unless IsArray
	Span    Span
}

// FieldDecl is one `name: type = initializer;` declaration. Offset/Size
// are zero until the layout planner fills them in.
type FieldDecl struct {
	Name     string
	NameSpan Span
	Type     *TypeExpr
	Init     Expr // nil if the field has no initializer
	Span     Span

	Offset int
	Size   int

	// selfRef is set by the semantic analyzer when Init is a CRC/hash
	// builtin whose range touches the struct's own bytes (spec §4.2.4,
	// §4.5). Such fields are deferred to phase 2 of the encoder.
	selfRef bool
}

// Expr is implemented by every node in the initializer expression tree
// (spec §3, grammar in §6.1).
type Expr interface {
	Span() Span
}

// IntLit is a decimal/hex/binary integer literal.
type IntLit struct {
	Value uint64
	Sp    Span
}

func (n *IntLit) Span() Span { return n.Sp }

// StringLit is a double-quoted string literal with escapes already
// decoded by the lexer.
type StringLit struct {
	Value string
	Sp    Span
}

func (n *StringLit) Span() Span { return n.Sp }

// EnvRef is a `${NAME}` environment reference.
type EnvRef struct {
	Name string
	Sp   Span
}

func (n *EnvRef) Span() Span { return n.Sp }

// IdentExpr is a bare identifier used as a primary expression: a
// flag-like all-uppercase environment lookup (spec §9), a field name (in
// `@offsetof(f)`), or a section name (in `@sizeof(section)`). The
// semantic analyzer disambiguates by context.
type IdentExpr struct {
	Name string
	Sp   Span
}

func (n *IdentExpr) Span() Span { return n.Sp }

// UnaryExpr is `~x`, the only unary operator in the grammar.
type UnaryExpr struct {
	Op string
	X  Expr
	Sp Span
}

func (n *UnaryExpr) Span() Span { return n.Sp }

// BinaryExpr is one of `| & << >> + -`, left-associative.
type BinaryExpr struct {
	Op string
	X, Y Expr
	Sp   Span
}

func (n *BinaryExpr) Span() Span { return n.Sp }

// CallExpr is a builtin invocation: `@name(arg, arg, ...)`.
type CallExpr struct {
	Name string
	Args []Arg
	Sp   Span
}

func (n *CallExpr) Span() Span { return n.Sp }

// Arg is an argument to a builtin call: either a regular Expr (covers
// bare identifiers too) or a RangeArg (`@self[...]`/`@self`/bare section
// name used specifically as a byte range).
type Arg interface {
	Span() Span
}

// RangeBound is one bound of `@self[a..b]`: either a constant integer or
// a field name resolved to that field's offset.
type RangeBound struct {
	Present bool
	IsIdent bool
	Number  uint64
	Ident   string
	Sp      Span
}

// RangeArg is a `@self` or `@self[a..b]` byte-range argument (spec §4.4
// "Range resolution"), with either bound optional. A bare section name
// used as a range argument parses as a plain IdentExpr instead — it's
// already a valid primary expression, so there's no dedicated node for it.
type RangeArg struct {
	IsSelf      bool
	HasBrackets bool
	Start       RangeBound
	End         RangeBound
	Sp          Span
}

func (n *RangeArg) Span() Span { return n.Sp }

// ArrayLit is an array value literal (the `array_lit` grammar addendum):
// either an explicit element list (`[v, v, ...]`) or a repeat form
// (`[v; k]`/`[v; _]`). Only ever appears after a field's `=`, never after
// its `:`, so it can't be confused with the array TypeExpr syntax.
type ArrayLit struct {
	Repeat            bool
	RepeatElem        Expr // the element when Repeat
	CountIsUnderscore bool // Repeat form used `_` instead of an explicit count
	RepeatCount       Expr // the count expression when Repeat && !CountIsUnderscore
	Elems             []Expr // the explicit list when !Repeat
	Sp                Span
}

func (n *ArrayLit) Span() Span { return n.Sp }
