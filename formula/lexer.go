package formula

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokEnd
	tokIdent
	tokNumber
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	num  float64
	line int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokEnd:
		return "end of statement"
	}
	return strconv.Quote(t.text)
}

var twoCharPunct = []string{":=", "<=", ">=", "==", "=>"}

const oneCharPunct = "<>=()[],+-*/"

// lex splits src into tokens. Newlines and semicolons end a statement only
// outside brackets, so long formulas may span lines inside parentheses.
func lex(src string) ([]token, error) {
	var toks []token
	line := 1
	depth := 0
	emitEnd := func() {
		if len(toks) > 0 && toks[len(toks)-1].kind != tokEnd {
			toks = append(toks, token{kind: tokEnd, line: line})
		}
	}

	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '\n':
			if depth == 0 {
				emitEnd()
			}
			line++
			i++
		case c == ';':
			if depth > 0 {
				return nil, &Error{Kind: ErrSyntax, Line: line, Msg: "';' inside brackets"}
			}
			emitEnd()
			i++
		case c == '#':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case isIdentStart(rune(c)):
			j := i + 1
			for j < len(src) && isIdentPart(rune(src[j])) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: src[i:j], line: line})
			i = j
		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			j := scanNumber(src, i)
			v, err := strconv.ParseFloat(src[i:j], 64)
			if err != nil {
				return nil, &Error{Kind: ErrSyntax, Line: line, Msg: fmt.Sprintf("bad number %q", src[i:j])}
			}
			toks = append(toks, token{kind: tokNumber, text: src[i:j], num: v, line: line})
			i = j
		default:
			text := ""
			for _, p := range twoCharPunct {
				if strings.HasPrefix(src[i:], p) {
					text = p
					break
				}
			}
			if text == "" && strings.IndexByte(oneCharPunct, c) >= 0 {
				text = string(c)
			}
			if text == "" {
				return nil, &Error{Kind: ErrSyntax, Line: line, Msg: fmt.Sprintf("unexpected character %q", c)}
			}
			switch text {
			case "(", "[":
				depth++
			case ")", "]":
				if depth > 0 {
					depth--
				}
			}
			toks = append(toks, token{kind: tokPunct, text: text, line: line})
			i += len(text)
		}
	}
	emitEnd()
	toks = append(toks, token{kind: tokEOF, line: line})
	return toks, nil
}

func scanNumber(src string, i int) int {
	j := i
	for j < len(src) && (isDigit(src[j]) || src[j] == '.') {
		j++
	}
	if j < len(src) && (src[j] == 'e' || src[j] == 'E') {
		k := j + 1
		if k < len(src) && (src[k] == '+' || src[k] == '-') {
			k++
		}
		if k < len(src) && isDigit(src[k]) {
			for k < len(src) && isDigit(src[k]) {
				k++
			}
			j = k
		}
	}
	return j
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }

func isIdentPart(r rune) bool { return isIdentStart(r) || unicode.IsDigit(r) }
