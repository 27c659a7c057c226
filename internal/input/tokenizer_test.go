package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMixedLine(t *testing.T) {
	tokens, err := Parse(`a "b\"c" 1 2.5`)
	require.NoError(t, err)
	assert.Equal(t, []Token{
		GeneralToken("a"),
		StringToken(`b"c`),
		IntegerToken(1),
		FloatToken(2.5),
	}, tokens)
}

func TestParseEscapes(t *testing.T) {
	tokens, err := Parse(`"Hello, \"world\"!\t\nB\"" "\r\0\\"`)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, StringToken("Hello, \"world\"!\t\nB\""), tokens[0])
	assert.Equal(t, StringToken("\r\x00\\"), tokens[1])
}

func TestParseCommands(t *testing.T) {
	tokens, err := Parse(`send "bob" "hi there"`)
	require.NoError(t, err)
	assert.Equal(t, []Token{GeneralToken("send"), StringToken("bob"), StringToken("hi there")}, tokens)

	tokens, err = Parse("  usernames \t ")
	require.NoError(t, err)
	assert.Equal(t, []Token{GeneralToken("usernames")}, tokens)

	tokens, err = Parse("")
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestParseNumbers(t *testing.T) {
	tokens, err := Parse("42 -7 3.14 1e3 12abc")
	require.NoError(t, err)
	assert.Equal(t, []Token{
		IntegerToken(42),
		IntegerToken(-7),
		FloatToken(3.14),
		FloatToken(1000),
		GeneralToken("12abc"),
	}, tokens)
}

func TestParseUnicodeWords(t *testing.T) {
	tokens, err := Parse(`héllo "日本語"`)
	require.NoError(t, err)
	assert.Equal(t, []Token{GeneralToken("héllo"), StringToken("日本語")}, tokens)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
		want error
	}{
		{name: "unterminated string", line: `say "hello`, want: ErrUnterminated},
		{name: "quote inside word", line: `ab"c"`, want: ErrUnexpectedQuote},
		{name: "invalid escape", line: `"\q"`, want: ErrInvalidEscape},
		{name: "trailing backslash", line: `"abc\`, want: ErrUnterminated},
		{name: "short unicode escape", line: `"\u00"`, want: ErrInvalidUnicode},
		{name: "non hex unicode escape", line: `"\u00zz"`, want: ErrInvalidUnicode},
		{name: "surrogate unicode escape", line: `"\uD800"`, want: ErrInvalidUnicode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := Parse(tt.line)
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, tokens)
		})
	}
}

func TestTokenWord(t *testing.T) {
	w, ok := StringToken("x").Word()
	assert.True(t, ok)
	assert.Equal(t, "x", w)

	_, ok = IntegerToken(3).Word()
	assert.False(t, ok)
}
