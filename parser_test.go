package delbin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_MinimalStruct(t *testing.T) {
	src := `
struct Header {
    magic: u32 = 0xDEADBEEF;
}
`
	f, err := ParseSchema([]byte(src))
	require.NoError(t, err)
	assert.False(t, f.HasEndian)
	require.Equal(t, "Header", f.Struct.Name)
	require.Len(t, f.Struct.Fields, 1)

	field := f.Struct.Fields[0]
	assert.Equal(t, "magic", field.Name)
	assert.False(t, field.Type.IsArray)
	assert.Equal(t, U32, field.Type.Scalar)

	lit, ok := field.Init.(*IntLit)
	require.True(t, ok)
	assert.Equal(t, uint64(0xDEADBEEF), lit.Value)
}

func TestParser_EndianDirective(t *testing.T) {
	src := `
@endian = big;
struct Header {
    magic: u32;
}
`
	f, err := ParseSchema([]byte(src))
	require.NoError(t, err)
	assert.True(t, f.HasEndian)
	assert.Equal(t, BigEndian, f.Endian)
}

func TestParser_DuplicateEndianDirective(t *testing.T) {
	src := `
@endian = big;
@endian = little;
struct Header { magic: u32; }
`
	_, err := ParseSchema([]byte(src))
	require.Error(t, err)
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrDuplicateDirective, cerr.Code)
}

func TestParser_StructAttrs(t *testing.T) {
	src := `
struct Header @packed @align(4) {
    magic: u32;
}
`
	f, err := ParseSchema([]byte(src))
	require.NoError(t, err)
	assert.True(t, f.Struct.Attr.Packed)
	assert.True(t, f.Struct.Attr.HasAlign)
	assert.Equal(t, 4, f.Struct.Attr.Align)
}

func TestParser_ArrayType(t *testing.T) {
	src := `
struct Header {
    name: [u8; 16] = "DELBIN";
}
`
	f, err := ParseSchema([]byte(src))
	require.NoError(t, err)
	field := f.Struct.Fields[0]
	require.True(t, field.Type.IsArray)
	assert.Equal(t, U8, field.Type.Scalar)

	lengthLit, ok := field.Type.Length.(*IntLit)
	require.True(t, ok)
	assert.Equal(t, uint64(16), lengthLit.Value)

	strLit, ok := field.Init.(*StringLit)
	require.True(t, ok)
	assert.Equal(t, "DELBIN", strLit.Value)
}

func TestParser_ExpressionPrecedence(t *testing.T) {
	// `|` binds loosest, `&` next, then shift, then add, matching
	// spec §6.1's or/and/shift/add/unary/primary chain.
	src := `
struct Header {
    flags: u32 = 1 | 2 & 3 << 1 + 1;
}
`
	f, err := ParseSchema([]byte(src))
	require.NoError(t, err)
	top, ok := f.Struct.Fields[0].Init.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, "|", top.Op)

	right, ok := top.Y.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, "&", right.Op)

	shiftExpr, ok := right.Y.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, "<<", shiftExpr.Op)

	addExpr, ok := shiftExpr.Y.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, "+", addExpr.Op)
}

func TestParser_EnvAndBuiltins(t *testing.T) {
	src := `
struct Header {
    version: u8 = ${VERSION_MAJOR};
    length: u32 = @sizeof(image);
    offset: u32 = @offsetof(version);
    checksum: u32 = @crc32(@self[0..4]);
    variant: u32 = @crc("crc32-mpeg2", @self);
}
`
	f, err := ParseSchema([]byte(src))
	require.NoError(t, err)
	fields := f.Struct.Fields

	env, ok := fields[0].Init.(*EnvRef)
	require.True(t, ok)
	assert.Equal(t, "VERSION_MAJOR", env.Name)

	sizeofCall, ok := fields[1].Init.(*CallExpr)
	require.True(t, ok)
	assert.Equal(t, "sizeof", sizeofCall.Name)
	ident, ok := sizeofCall.Args[0].(*IdentExpr)
	require.True(t, ok)
	assert.Equal(t, "image", ident.Name)

	offsetofCall, ok := fields[2].Init.(*CallExpr)
	require.True(t, ok)
	assert.Equal(t, "offsetof", offsetofCall.Name)

	crcCall, ok := fields[3].Init.(*CallExpr)
	require.True(t, ok)
	assert.Equal(t, "crc32", crcCall.Name)
	rng, ok := crcCall.Args[0].(*RangeArg)
	require.True(t, ok)
	assert.True(t, rng.IsSelf)
	assert.True(t, rng.HasBrackets)
	assert.Equal(t, uint64(0), rng.Start.Number)
	assert.Equal(t, uint64(4), rng.End.Number)

	variantCall, ok := fields[4].Init.(*CallExpr)
	require.True(t, ok)
	assert.Equal(t, "crc", variantCall.Name)
	variantName, ok := variantCall.Args[0].(*StringLit)
	require.True(t, ok)
	assert.Equal(t, "crc32-mpeg2", variantName.Value)
	selfRange, ok := variantCall.Args[1].(*RangeArg)
	require.True(t, ok)
	assert.True(t, selfRange.IsSelf)
	assert.False(t, selfRange.HasBrackets)
}

func TestParser_ArrayLiteralForms(t *testing.T) {
	src := `
struct Header {
    padding: [u8; 4] = [0; _];
    fixed: [u8; 3] = [1, 2, 3];
}
`
	f, err := ParseSchema([]byte(src))
	require.NoError(t, err)

	repeat, ok := f.Struct.Fields[0].Init.(*ArrayLit)
	require.True(t, ok)
	assert.True(t, repeat.Repeat)
	assert.True(t, repeat.CountIsUnderscore)

	list, ok := f.Struct.Fields[1].Init.(*ArrayLit)
	require.True(t, ok)
	assert.False(t, list.Repeat)
	assert.Len(t, list.Elems, 3)
}

func TestParser_ReservedFieldName(t *testing.T) {
	src := `
struct Header {
    struct: u8;
}
`
	_, err := ParseSchema([]byte(src))
	require.Error(t, err)
}

func TestParser_UnclosedStruct(t *testing.T) {
	src := `
struct Header {
    magic: u32;
`
	_, err := ParseSchema([]byte(src))
	require.Error(t, err)
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrUnclosedBracket, cerr.Code)
}

func TestParser_SelfAsBareExpressionIsRejected(t *testing.T) {
	src := `
struct Header {
    x: u32 = @self;
}
`
	_, err := ParseSchema([]byte(src))
	require.Error(t, err)
}
