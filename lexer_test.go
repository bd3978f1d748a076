package delbin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lexAll(t *testing.T, input string) []Token {
	t.Helper()
	lex := NewLexer([]byte(input))
	var toks []Token
	for {
		tok, err := lex.Next()
		require.NoError(t, err)
		toks = append(toks, tok)
		if tok.Kind == TokEOF {
			break
		}
	}
	return toks
}

func TestLexer_Punctuation(t *testing.T) {
	toks := lexAll(t, "{}[]():;,=..|&~<<>>+-@")
	kinds := make([]TokenKind, 0, len(toks))
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
	}
	assert.Equal(t, []TokenKind{
		TokLBrace, TokRBrace, TokLBracket, TokRBracket, TokLParen, TokRParen,
		TokColon, TokSemicolon, TokComma, TokEquals, TokDotDot,
		TokPipe, TokAmp, TokTilde, TokShl, TokShr, TokPlus, TokMinus, TokAt,
		TokEOF,
	}, kinds)
}

func TestLexer_Identifiers(t *testing.T) {
	toks := lexAll(t, "magic VERSION_MAJOR _private u8")
	require.Len(t, toks, 5)
	for i, want := range []string{"magic", "VERSION_MAJOR", "_private", "u8"} {
		assert.Equal(t, TokIdent, toks[i].Kind)
		assert.Equal(t, want, toks[i].Text)
	}
}

func TestLexer_Numbers(t *testing.T) {
	tests := []struct {
		input    string
		expected uint64
	}{
		{"0", 0},
		{"42", 42},
		{"0x2A", 42},
		{"0XFF", 255},
		{"0b101010", 42},
		{"1_000_000", 1000000},
		{"0xDEAD_BEEF", 0xDEADBEEF},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			toks := lexAll(t, tt.input)
			require.Len(t, toks, 2)
			assert.Equal(t, TokInt, toks[0].Kind)
			assert.Equal(t, tt.expected, toks[0].IntValue)
		})
	}
}

func TestLexer_NumberOverflow(t *testing.T) {
	lex := NewLexer([]byte("0x1_0000_0000_0000_0000_0"))
	_, err := lex.Next()
	require.Error(t, err)
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrInvalidNumber, cerr.Code)
}

func TestLexer_String(t *testing.T) {
	toks := lexAll(t, `"DELBIN\n\x41"`)
	require.Len(t, toks, 2)
	assert.Equal(t, TokString, toks[0].Kind)
	assert.Equal(t, "DELBIN\nA", toks[0].Text)
}

func TestLexer_UnclosedString(t *testing.T) {
	lex := NewLexer([]byte(`"unterminated`))
	_, err := lex.Next()
	require.Error(t, err)
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrUnclosedString, cerr.Code)
}

func TestLexer_EnvVar(t *testing.T) {
	toks := lexAll(t, "${VERSION_MAJOR}")
	require.Len(t, toks, 2)
	assert.Equal(t, TokEnvVar, toks[0].Kind)
	assert.Equal(t, "VERSION_MAJOR", toks[0].Text)
}

func TestLexer_Comments(t *testing.T) {
	toks := lexAll(t, "magic // a trailing comment\nu8")
	require.Len(t, toks, 3)
	assert.Equal(t, "magic", toks[0].Text)
	assert.Equal(t, "u8", toks[1].Text)
}

func TestLexer_UnexpectedCharacter(t *testing.T) {
	lex := NewLexer([]byte("#"))
	_, err := lex.Next()
	require.Error(t, err)
}
