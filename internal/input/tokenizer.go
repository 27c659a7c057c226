// Package input tokenizes console lines typed by operators and interactive
// clients. A line is split on whitespace into bare words, which are
// classified as integers, floats or general words, and double-quoted strings,
// which may contain escape sequences.
package input

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Tokenizer errors. All of them are recoverable: the offending line is
// rejected and the caller may prompt again.
var (
	ErrUnexpectedQuote = errors.New("unexpected quote")
	ErrUnterminated    = errors.New("unexpected end of input")
	ErrInvalidEscape   = errors.New("invalid escape character")
	ErrInvalidUnicode  = errors.New("invalid unicode escape")
)

// Kind identifies the type of a Token.
type Kind int

// Token kinds.
const (
	General Kind = iota
	String
	Integer
	Float
)

func (k Kind) String() string {
	switch k {
	case General:
		return "General"
	case String:
		return "String"
	case Integer:
		return "Integer"
	case Float:
		return "Float"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Token is one element of a tokenized line. Text holds the word for General
// and the unescaped contents for String; Int and Float hold numeric values.
type Token struct {
	Kind  Kind
	Text  string
	Int   int64
	Float float64
}

// GeneralToken builds a bare-word token.
func GeneralToken(s string) Token { return Token{Kind: General, Text: s} }

// StringToken builds a quoted-string token.
func StringToken(s string) Token { return Token{Kind: String, Text: s} }

// IntegerToken builds an integer token.
func IntegerToken(v int64) Token { return Token{Kind: Integer, Int: v} }

// FloatToken builds a float token.
func FloatToken(v float64) Token { return Token{Kind: Float, Float: v} }

// Word returns the textual value of General and String tokens.
func (t Token) Word() (string, bool) {
	if t.Kind == General || t.Kind == String {
		return t.Text, true
	}
	return "", false
}

func (t Token) String() string {
	switch t.Kind {
	case General:
		return "General(" + t.Text + ")"
	case String:
		return "String(" + strconv.Quote(t.Text) + ")"
	case Integer:
		return "Integer(" + strconv.FormatInt(t.Int, 10) + ")"
	case Float:
		return "Float(" + strconv.FormatFloat(t.Float, 'g', -1, 64) + ")"
	default:
		return t.Kind.String()
	}
}

// Parse splits line into tokens.
func Parse(line string) ([]Token, error) {
	var (
		tokens []Token
		word   strings.Builder
	)

	flush := func() {
		if word.Len() > 0 {
			tokens = append(tokens, classify(word.String()))
			word.Reset()
		}
	}

	for i := 0; i < len(line); {
		r, size := utf8.DecodeRuneInString(line[i:])
		switch {
		case r == '"':
			if word.Len() > 0 {
				return nil, fmt.Errorf("%w at offset %d", ErrUnexpectedQuote, i)
			}
			s, next, err := scanString(line, i+size)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, StringToken(s))
			i = next
		case unicode.IsSpace(r):
			flush()
			i += size
		default:
			word.WriteRune(r)
			i += size
		}
	}
	flush()

	return tokens, nil
}

func classify(word string) Token {
	if v, err := strconv.ParseInt(word, 10, 64); err == nil {
		return IntegerToken(v)
	}
	if v, err := strconv.ParseFloat(word, 64); err == nil {
		return FloatToken(v)
	}
	return GeneralToken(word)
}

// scanString reads a quoted string whose opening quote ends just before
// start. It returns the unescaped contents and the offset after the closing
// quote.
func scanString(line string, start int) (string, int, error) {
	var sb strings.Builder
	for i := start; i < len(line); {
		r, size := utf8.DecodeRuneInString(line[i:])
		switch r {
		case '"':
			return sb.String(), i + size, nil
		case '\\':
			next, err := scanEscape(line, i+size, &sb)
			if err != nil {
				return "", 0, err
			}
			i = next
		default:
			sb.WriteRune(r)
			i += size
		}
	}
	return "", 0, ErrUnterminated
}

// scanEscape decodes the escape sequence that follows a backslash.
func scanEscape(line string, i int, sb *strings.Builder) (int, error) {
	if i >= len(line) {
		return 0, ErrUnterminated
	}

	r, size := utf8.DecodeRuneInString(line[i:])
	i += size
	switch r {
	case '"':
		sb.WriteByte('"')
	case '\\':
		sb.WriteByte('\\')
	case 'n':
		sb.WriteByte('\n')
	case 't':
		sb.WriteByte('\t')
	case 'r':
		sb.WriteByte('\r')
	case '0':
		sb.WriteByte(0)
	case 'u':
		if i+4 > len(line) {
			return 0, ErrInvalidUnicode
		}
		hex := line[i : i+4]
		code, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidUnicode, hex)
		}
		cp := rune(code)
		if !utf8.ValidRune(cp) {
			return 0, fmt.Errorf("%w: U+%04X is not a scalar value", ErrInvalidUnicode, code)
		}
		sb.WriteRune(cp)
		i += 4
	default:
		return 0, fmt.Errorf("%w: \\%c", ErrInvalidEscape, r)
	}
	return i, nil
}
