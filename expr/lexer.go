package expr

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokenNumber tokenKind = iota
	tokenIdent
	tokenString
	tokenOperator
	tokenLeftParen
	tokenRightParen
	tokenComma
	tokenEOF
)

func (k tokenKind) String() string {
	switch k {
	case tokenNumber:
		return "number"
	case tokenIdent:
		return "identifier"
	case tokenString:
		return "string"
	case tokenOperator:
		return "operator"
	case tokenLeftParen:
		return "'('"
	case tokenRightParen:
		return "')'"
	case tokenComma:
		return "','"
	default:
		return "end of expression"
	}
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lex splits the expression into tokens. A "$"-prefixed identifier is
// reduced to its bare name here, so the rest of the package never sees the
// prefix.
func lex(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c >= '0' && c <= '9' || c == '.':
			start := i
			seenDot := false
			for i < len(input) && (input[i] >= '0' && input[i] <= '9' || input[i] == '.') {
				if input[i] == '.' {
					if seenDot {
						return nil, fmt.Errorf("%w: malformed number at position %d", ErrSyntax, start)
					}
					seenDot = true
				}
				i++
			}
			text := input[start:i]
			if text == "." {
				return nil, fmt.Errorf("%w: unexpected '.' at position %d", ErrSyntax, start)
			}
			tokens = append(tokens, token{tokenNumber, text, start})
		case isIdentStart(c) || c == '$':
			start := i
			if c == '$' {
				i++
				if i >= len(input) || !isIdentStart(input[i]) {
					return nil, fmt.Errorf("%w: '$' must be followed by a variable name at position %d", ErrSyntax, start)
				}
			}
			nameStart := i
			for i < len(input) && isIdentPart(input[i]) {
				i++
			}
			tokens = append(tokens, token{tokenIdent, input[nameStart:i], start})
		case c == '\'' || c == '"':
			quote := c
			start := i
			i++
			var sb strings.Builder
			for i < len(input) && input[i] != quote {
				sb.WriteByte(input[i])
				i++
			}
			if i >= len(input) {
				return nil, fmt.Errorf("%w: unterminated string at position %d", ErrSyntax, start)
			}
			i++
			tokens = append(tokens, token{tokenString, sb.String(), start})
		case c == '*':
			if i+1 < len(input) && input[i+1] == '*' {
				tokens = append(tokens, token{tokenOperator, "**", i})
				i += 2
			} else {
				tokens = append(tokens, token{tokenOperator, "*", i})
				i++
			}
		case c == '+' || c == '-' || c == '/':
			tokens = append(tokens, token{tokenOperator, string(c), i})
			i++
		case c == '(':
			tokens = append(tokens, token{tokenLeftParen, "(", i})
			i++
		case c == ')':
			tokens = append(tokens, token{tokenRightParen, ")", i})
			i++
		case c == ',':
			tokens = append(tokens, token{tokenComma, ",", i})
			i++
		default:
			return nil, fmt.Errorf("%w: unexpected character %q at position %d", ErrSyntax, string(c), i)
		}
	}
	tokens = append(tokens, token{tokenEOF, "", len(input)})
	return tokens, nil
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}
