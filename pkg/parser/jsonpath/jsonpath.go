// Package jsonpath implements the narrow JSONPath subset documented at
// https://learn.microsoft.com/kusto/query/jsonpath: a leading "$",
// followed by any mix of ".key", "[N]", "['key']" and "[\"key\"]"
// selectors.
package jsonpath

import (
	"fmt"
	"strconv"
	"strings"
)

// SelectorKind discriminates the two Selector variants.
type SelectorKind int

const (
	SelectorKey SelectorKind = iota
	SelectorIndex
)

// Selector is one step of a parsed path: either a map key or an array
// index.
type Selector struct {
	Kind  SelectorKind
	Key   string
	Index int64
}

// ParseError reports why a JSONPath expression could not be parsed.
// Message mirrors the exact wording used elsewhere in this codebase's
// query-expression error reporting, including the 0-based byte offset
// into the path.
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string { return e.Message }

type cursor struct {
	positions []int
	runes     []rune
	i         int
}

func newCursor(s string) *cursor {
	c := &cursor{}
	for idx, r := range s {
		c.positions = append(c.positions, idx)
		c.runes = append(c.runes, r)
	}
	return c
}

func (c *cursor) peek() (int, rune, bool) {
	if c.i >= len(c.runes) {
		return 0, 0, false
	}
	return c.positions[c.i], c.runes[c.i], true
}

func (c *cursor) next() (int, rune, bool) {
	pos, r, ok := c.peek()
	if ok {
		c.i++
	}
	return pos, r, ok
}

// Parse parses a JSONPath expression into its selector sequence.
func Parse(path string) ([]Selector, error) {
	c := newCursor(path)

	if pos, r, ok := c.next(); !ok || pos != 0 || r != '$' {
		return nil, &ParseError{Message: "JsonPath must start with '$'"}
	}

	var selectors []Selector
	for {
		pos, r, ok := c.next()
		if !ok {
			break
		}

		var isIndex bool
		var content string
		var err error

		switch r {
		case '.':
			content, err = parseContent(c, false, 0, false, 0)
		case '[':
			bracketPos, next, ok := c.next()
			_ = bracketPos
			if !ok {
				return nil, &ParseError{Message: fmt.Sprintf("JsonPath unexpectedly ended at position '%d'", pos)}
			}
			switch next {
			case '\'':
				content, err = parseContent(c, true, 0, true, '\'')
			case '"':
				content, err = parseContent(c, true, 0, true, '"')
			default:
				isIndex = true
				content, err = parseContent(c, true, next, false, 0)
			}
		default:
			return nil, &ParseError{Message: fmt.Sprintf("JsonPath unexpectedly ended at position '%d'", pos)}
		}
		if err != nil {
			return nil, err
		}

		if content == "" {
			return nil, &ParseError{Message: fmt.Sprintf("JsonPath empty key specified at position '%d'", pos)}
		}

		if isIndex {
			n, err := strconv.ParseInt(content, 10, 64)
			if err != nil {
				return nil, &ParseError{Message: fmt.Sprintf("JsonPath index specified at position '%d' could not be parsed", pos)}
			}
			selectors = append(selectors, Selector{Kind: SelectorIndex, Index: n})
		} else {
			selectors = append(selectors, Selector{Kind: SelectorKey, Key: content})
		}
	}

	return selectors, nil
}

// parseContent consumes one selector's content. inBrace distinguishes
// "[...]" selectors (terminated by an unescaped ']' or a matching quote
// char) from ".key" selectors (terminated by the next '.' or '[').
// quoteChar is set for quoted bracket selectors, where the two
// recognized quote characters and the backslash escapes \' \" \\ \n \r
// \t apply.
func parseContent(c *cursor, inBrace bool, firstChar rune, quoted bool, quoteChar rune) (string, error) {
	var b strings.Builder
	if firstChar != 0 {
		b.WriteRune(firstChar)
	}

	escaped := false
	escapePos := 0
	for {
		pos, r, ok := c.peek()
		if !ok {
			break
		}

		if inBrace {
			if quoted {
				if !escaped && r == '\\' {
					escaped = true
					escapePos = pos
					c.next()
					continue
				}

				var out rune
				if !escaped {
					if r == quoteChar {
						c.next()
						closePos, closeR, ok := c.next()
						switch {
						case ok && closeR == ']':
							return b.String(), nil
						case ok:
							return "", &ParseError{Message: fmt.Sprintf("JsonPath invalid character at position '%d'", closePos)}
						default:
							return "", &ParseError{Message: fmt.Sprintf("JsonPath unexpectedly ended at position '%d'", pos)}
						}
					}
					out = r
				} else {
					escaped = false
					switch r {
					case '\'':
						out = '\''
					case '"':
						out = '"'
					case '\\':
						out = '\\'
					case 'n':
						out = '\n'
					case 'r':
						out = '\r'
					case 't':
						out = '\t'
					default:
						return "", &ParseError{Message: fmt.Sprintf("JsonPath invalid escape sequence at position '%d'", escapePos)}
					}
				}

				b.WriteRune(out)
				c.next()
				continue
			}

			if r == ']' {
				c.next()
				break
			}
			b.WriteRune(r)
			c.next()
		} else {
			if r == '.' || r == '[' {
				break
			}
			b.WriteRune(r)
			c.next()
		}
	}

	return b.String(), nil
}

// Render reproduces a canonical JSONPath string for a parsed selector
// sequence. Keys are always rendered as single-quoted bracket
// selectors so Parse(Render(s)) reproduces the same selector sequence
// regardless of what characters a key contains.
func Render(selectors []Selector) string {
	var b strings.Builder
	b.WriteByte('$')
	for _, s := range selectors {
		switch s.Kind {
		case SelectorIndex:
			fmt.Fprintf(&b, "[%d]", s.Index)
		default:
			b.WriteString("['")
			for _, r := range s.Key {
				switch r {
				case '\'':
					b.WriteString(`\'`)
				case '\\':
					b.WriteString(`\\`)
				default:
					b.WriteRune(r)
				}
			}
			b.WriteString("']")
		}
	}
	return b.String()
}
