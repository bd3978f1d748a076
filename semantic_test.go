package delbin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseOK(t *testing.T, src string) *File {
	t.Helper()
	f, err := ParseSchema([]byte(src))
	require.NoError(t, err)
	return f
}

func TestAnalyze_DuplicateField(t *testing.T) {
	f := parseOK(t, `
struct Header {
    magic: u32;
    magic: u32;
}
`)
	_, err := Analyze(f, NewEnvironment(), NewSectionStore(nil))
	require.Error(t, err)
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrDuplicateField, cerr.Code)
}

func TestAnalyze_UndefinedEnvVar(t *testing.T) {
	f := parseOK(t, `
struct Header {
    version: u8 = ${VERSION_MAJOR};
}
`)
	_, err := Analyze(f, NewEnvironment(), NewSectionStore(nil))
	require.Error(t, err)
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrUndefinedVariable, cerr.Code)
}

func TestAnalyze_KnownEnvVarPasses(t *testing.T) {
	f := parseOK(t, `
struct Header {
    version: u8 = ${VERSION_MAJOR};
}
`)
	env := NewEnvironment()
	env.SetInt("VERSION_MAJOR", 3)
	_, err := Analyze(f, env, NewSectionStore(nil))
	assert.NoError(t, err)
}

func TestAnalyze_UndefinedSection(t *testing.T) {
	f := parseOK(t, `
struct Header {
    length: u32 = @sizeof(image);
}
`)
	_, err := Analyze(f, NewEnvironment(), NewSectionStore(nil))
	require.Error(t, err)
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrUndefinedSection, cerr.Code)
}

func TestAnalyze_UndefinedField(t *testing.T) {
	f := parseOK(t, `
struct Header {
    offset: u32 = @offsetof(nonexistent);
}
`)
	_, err := Analyze(f, NewEnvironment(), NewSectionStore(nil))
	require.Error(t, err)
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrUndefinedField, cerr.Code)
}

func TestAnalyze_UnknownBuiltin(t *testing.T) {
	f := parseOK(t, `
struct Header {
    version: u32 = @version_pack(1, 2, 3);
}
`)
	_, err := Analyze(f, NewEnvironment(), NewSectionStore(nil))
	require.Error(t, err)
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrUndefinedFunction, cerr.Code)
}

func TestAnalyze_CircularDependency(t *testing.T) {
	f := parseOK(t, `
struct Header {
    a: u32 = @offsetof(b);
    b: u32 = @offsetof(a);
}
`)
	_, err := Analyze(f, NewEnvironment(), NewSectionStore(nil))
	require.Error(t, err)
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrCircularDependency, cerr.Code)
}

func TestAnalyze_MarksSelfReferencingField(t *testing.T) {
	f := parseOK(t, `
struct Header {
    magic: u32 = 0xDEADBEEF;
    checksum: u32 = @crc32(@self[0..4]);
}
`)
	_, err := Analyze(f, NewEnvironment(), NewSectionStore(nil))
	require.NoError(t, err)
	assert.False(t, f.Struct.Fields[0].selfRef)
	assert.True(t, f.Struct.Fields[1].selfRef)
}

func TestAnalyze_AlignWithoutPackedRejected(t *testing.T) {
	f := parseOK(t, `
struct Header @align(4) {
    magic: u8;
}
`)
	_, err := Analyze(f, NewEnvironment(), NewSectionStore(nil))
	require.Error(t, err)
}

func TestAnalyze_FieldRelativeStartBoundNotImplemented(t *testing.T) {
	// `@self[field..]` (a field-relative START bound) is the one form
	// spec §9 actually reserves as not yet implemented.
	f := parseOK(t, `
struct Header {
    magic: u32;
    checksum: u32 = @crc32(@self[magic..]);
}
`)
	_, err := Analyze(f, NewEnvironment(), NewSectionStore(nil))
	require.Error(t, err)
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrNotImplemented, cerr.Code)
}

func TestAnalyze_FieldRelativeEndBoundResolves(t *testing.T) {
	// `@self[..field]` (a field as the END bound) is normatively defined
	// as `[0, offsetof(field))` — the signature self-referencing-CRC
	// idiom from spec §8 — and must pass semantic checking.
	f := parseOK(t, `
struct Header @packed {
    magic: [u8;4] = "TEST";
    checksum: u32 = @crc32(@self[..checksum]);
}
`)
	_, err := Analyze(f, NewEnvironment(), NewSectionStore(nil))
	require.NoError(t, err)
	assert.True(t, f.Struct.Fields[1].selfRef)
}

func TestAnalyze_FieldRelativeEndBoundUndefinedField(t *testing.T) {
	f := parseOK(t, `
struct Header {
    checksum: u32 = @crc32(@self[..nonexistent]);
}
`)
	_, err := Analyze(f, NewEnvironment(), NewSectionStore(nil))
	require.Error(t, err)
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrUndefinedField, cerr.Code)
}
