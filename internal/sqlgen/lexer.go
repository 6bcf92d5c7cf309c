package sqlgen

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokQuotedIdent
	tokString
	tokNumber
	tokSymbol
	tokSemicolon
	tokComment
	tokParam
	tokIllegal
)

type token struct {
	kind  tokenKind
	text  string
	upper string
	pos   int
}

func (t token) is(kind tokenKind, upper string) bool {
	return t.kind == kind && t.upper == upper
}

func (t token) isKeyword(upper string) bool {
	return t.is(tokIdent, upper)
}

func (t token) isSymbol(s string) bool {
	return t.is(tokSymbol, s)
}

// isName reports whether the token names something: a bare or quoted
// identifier.
func (t token) isName() bool {
	return t.kind == tokIdent || t.kind == tokQuotedIdent
}

// name is the case-folded identifier text.
func (t token) name() string {
	return strings.ToLower(t.text)
}

var twoCharSymbols = []string{"<=", ">=", "<>", "!=", "==", "||", "::"}

// lex splits a statement into tokens. Comments are kept as tokens so the
// validator can refuse them; everything the grammar does not know becomes
// tokIllegal rather than an error.
func lex(sql string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(sql) {
		r, size := utf8.DecodeRuneInString(sql[i:])
		switch {
		case unicode.IsSpace(r):
			i += size

		case strings.HasPrefix(sql[i:], "--"):
			end := strings.IndexByte(sql[i:], '\n')
			if end == -1 {
				end = len(sql) - i
			}
			toks = append(toks, token{kind: tokComment, text: sql[i : i+end], pos: i})
			i += end

		case strings.HasPrefix(sql[i:], "/*"):
			end := strings.Index(sql[i+2:], "*/")
			if end == -1 {
				return nil, fmt.Errorf("unterminated comment at offset %d", i)
			}
			toks = append(toks, token{kind: tokComment, text: sql[i : i+2+end+2], pos: i})
			i += 2 + end + 2

		case r == '\'':
			text, n, err := readQuoted(sql[i:], '\'')
			if err != nil {
				return nil, fmt.Errorf("unterminated string at offset %d", i)
			}
			toks = append(toks, token{kind: tokString, text: text, pos: i})
			i += n

		case r == '"':
			text, n, err := readQuoted(sql[i:], '"')
			if err != nil {
				return nil, fmt.Errorf("unterminated identifier at offset %d", i)
			}
			toks = append(toks, token{kind: tokQuotedIdent, text: text, upper: strings.ToUpper(text), pos: i})
			i += n

		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(sql) {
				r, size := utf8.DecodeRuneInString(sql[i:])
				if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
					break
				}
				i += size
			}
			text := sql[start:i]
			toks = append(toks, token{kind: tokIdent, text: text, upper: strings.ToUpper(text), pos: start})

		case isDigit(r) || (r == '.' && i+1 < len(sql) && isDigit(rune(sql[i+1]))):
			start := i
			i = scanNumber(sql, i)
			toks = append(toks, token{kind: tokNumber, text: sql[start:i], pos: start})

		case r == ';':
			toks = append(toks, token{kind: tokSemicolon, text: ";", pos: i})
			i++

		case r == '?' || r == '$':
			toks = append(toks, token{kind: tokParam, text: string(r), pos: i})
			i += size

		default:
			if sym := matchSymbol(sql[i:]); sym != "" {
				toks = append(toks, token{kind: tokSymbol, text: sym, upper: sym, pos: i})
				i += len(sym)
				continue
			}
			toks = append(toks, token{kind: tokIllegal, text: string(r), pos: i})
			i += size
		}
	}
	return toks, nil
}

// readQuoted reads a quoted run starting at s[0]; a doubled quote is an
// escaped quote. It returns the unescaped contents and the bytes consumed.
func readQuoted(s string, q byte) (string, int, error) {
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		if s[i] != q {
			b.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == q {
			b.WriteByte(q)
			i++
			continue
		}
		return b.String(), i + 1, nil
	}
	return "", 0, fmt.Errorf("unterminated")
}

func scanNumber(s string, i int) int {
	for i < len(s) && isDigit(rune(s[i])) {
		i++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(rune(s[i])) {
			i++
		}
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < len(s) && isDigit(rune(s[j])) {
			i = j
			for i < len(s) && isDigit(rune(s[i])) {
				i++
			}
		}
	}
	return i
}

func matchSymbol(s string) string {
	for _, sym := range twoCharSymbols {
		if strings.HasPrefix(s, sym) {
			return sym
		}
	}
	switch s[0] {
	case '(', ')', ',', '.', '*', '+', '-', '/', '%', '=', '<', '>':
		return s[:1]
	}
	return ""
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
