// Package stream translates the string values of JSON payloads in place.
//
// A payload may carry a non-JSON prefix before the document (for example
// "svdata="); everything before the first '{' or '[' is passed through.
// Object keys are never translated. Strings that come back unchanged are
// copied byte-for-byte, so unrelated escapes and whitespace survive the
// round-trip; replacements are written ASCII-only with \uXXXX escapes.
package stream

import (
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Resolver resolves a single line. *translator.Translator satisfies it.
type Resolver interface {
	Translate(line, tag, key string) string
}

// Translator rewrites payloads from a single endpoint.
type Translator struct {
	resolver Resolver
	tag      string
}

// New returns a Translator for payloads served from urlPath. The last
// path component becomes the location tag of every resolved line.
func New(resolver Resolver, urlPath string) *Translator {
	return &Translator{resolver: resolver, tag: LastPathComponent(urlPath)}
}

// Tag returns the location tag lines are resolved with.
func (t *Translator) Tag() string {
	return t.tag
}

// LastPathComponent returns the final segment of a URL path, ignoring any
// query string and trailing slashes.
func LastPathComponent(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}

// frame is one level of JSON nesting.
type frame struct {
	object    bool
	expectKey bool
	// key is the most recent key of an object, or the key an array was
	// found under.
	key string
}

// Process returns body with every translatable string value resolved.
func (t *Translator) Process(body string) string {
	start := strings.IndexAny(body, "{[")
	if start < 0 {
		return body
	}

	var out strings.Builder
	out.Grow(len(body))
	out.WriteString(body[:start])

	var stack []frame
	top := func() *frame {
		if len(stack) == 0 {
			return nil
		}
		return &stack[len(stack)-1]
	}

	for i := start; i < len(body); i++ {
		c := body[i]
		switch c {
		case '{':
			stack = append(stack, frame{object: true, expectKey: true})
			out.WriteByte(c)
		case '[':
			var key string
			if f := top(); f != nil {
				key = f.key
			}
			stack = append(stack, frame{key: key})
			out.WriteByte(c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			out.WriteByte(c)
		case ':':
			if f := top(); f != nil && f.object {
				f.expectKey = false
			}
			out.WriteByte(c)
		case ',':
			if f := top(); f != nil && f.object {
				f.expectKey = true
			}
			out.WriteByte(c)
		case '"':
			end := literalEnd(body, i)
			if end < 0 {
				out.WriteString(body[i:])
				return out.String()
			}
			lit := body[i : end+1]

			s, ok := unquote(lit)
			if !ok {
				out.WriteString(body[i:])
				return out.String()
			}

			f := top()
			switch {
			case f != nil && f.object && f.expectKey:
				f.key = s
				out.WriteString(lit)
			default:
				var key string
				if f != nil {
					key = f.key
				}
				if tl := t.resolver.Translate(s, t.tag, key); tl != s {
					out.WriteString(Quote(tl))
				} else {
					out.WriteString(lit)
				}
			}
			i = end
		default:
			out.WriteByte(c)
		}
	}

	return out.String()
}

// Copy reads a whole payload from r and writes the processed result to w.
func (t *Translator) Copy(w io.Writer, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading payload: %w", err)
	}
	if _, err := io.WriteString(w, t.Process(string(data))); err != nil {
		return fmt.Errorf("writing payload: %w", err)
	}
	return nil
}

// literalEnd returns the index of the quote closing the string literal
// opened at body[start], or -1 if it is unterminated.
func literalEnd(body string, start int) int {
	for j := start + 1; j < len(body); j++ {
		switch body[j] {
		case '\\':
			j++
		case '"':
			return j
		}
	}
	return -1
}

// unquote decodes a JSON string literal. Bytes outside escapes are kept
// as they are, so lines that are not valid UTF-8 reach the resolver
// unchanged. A lone surrogate escape decodes to its 3-byte WTF-8 form.
func unquote(lit string) (string, bool) {
	body := lit[1 : len(lit)-1]
	if !strings.ContainsRune(body, '\\') {
		return body, true
	}

	b := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' {
			b = append(b, c)
			continue
		}
		i++
		if i >= len(body) {
			return "", false
		}
		switch body[i] {
		case '"', '\\', '/':
			b = append(b, body[i])
		case 'b':
			b = append(b, '\b')
		case 'f':
			b = append(b, '\f')
		case 'n':
			b = append(b, '\n')
		case 'r':
			b = append(b, '\r')
		case 't':
			b = append(b, '\t')
		case 'u':
			r, ok := hex4(body, i+1)
			if !ok {
				return "", false
			}
			i += 4
			if utf16.IsSurrogate(r) {
				if r2, ok := hex4(body, i+3); ok && r < 0xdc00 && body[i+1] == '\\' && body[i+2] == 'u' {
					if dec := utf16.DecodeRune(r, r2); dec != utf8.RuneError {
						b = utf8.AppendRune(b, dec)
						i += 6
						continue
					}
				}
				b = append(b, 0xe0|byte(r>>12), 0x80|byte(r>>6)&0x3f, 0x80|byte(r)&0x3f)
				continue
			}
			b = utf8.AppendRune(b, r)
		default:
			return "", false
		}
	}
	return string(b), true
}

// hex4 parses the four hex digits at s[i:].
func hex4(s string, i int) (rune, bool) {
	if i < 0 || i+4 > len(s) {
		return 0, false
	}
	v, err := strconv.ParseUint(s[i:i+4], 16, 16)
	if err != nil {
		return 0, false
	}
	return rune(v), true
}

// Quote encodes s as an ASCII-only JSON string literal. Bytes that are not
// valid UTF-8 are written through unchanged.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			b.WriteByte(s[i])
			i++
			continue
		}
		i += size
		switch {
		case r == '"':
			b.WriteString(`\"`)
		case r == '\\':
			b.WriteString(`\\`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 0x20 || r >= 0x7f:
			if r > 0xffff {
				r1, r2 := utf16.EncodeRune(r)
				fmt.Fprintf(&b, `\u%04x\u%04x`, r1, r2)
			} else {
				fmt.Fprintf(&b, `\u%04x`, r)
			}
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
