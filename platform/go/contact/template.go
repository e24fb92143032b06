package contact

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errMalformedTemplate = errors.New("malformed template")

// Template is a compiled format-column template such as "{firstname} {lastname}".
// Replacement fields may address nested values with ".key" and "[n]"; "{{"
// and "}}" are literal braces.
type Template struct {
	raw   string
	parts []templatePart
}

type templatePart struct {
	literal string
	field   *fieldRef
}

type fieldRef struct {
	name      string
	accessors []accessor
	spec      string
}

type accessor struct {
	key   string
	index int
	isIdx bool
}

// ParseTemplate compiles raw. Malformed templates return an error; callers
// treat them as always rendering to nothing.
func ParseTemplate(raw string) (*Template, error) {
	t := &Template{raw: raw}
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			t.parts = append(t.parts, templatePart{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch c {
		case '{':
			if i+1 < len(raw) && raw[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(raw[i+1:], '}')
			if end < 0 {
				return nil, errMalformedTemplate
			}
			ref, err := parseFieldRef(raw[i+1 : i+1+end])
			if err != nil {
				return nil, err
			}
			flush()
			t.parts = append(t.parts, templatePart{field: ref})
			i += end + 1
		case '}':
			if i+1 < len(raw) && raw[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, errMalformedTemplate
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return t, nil
}

func parseFieldRef(body string) (*fieldRef, error) {
	if strings.ContainsRune(body, '{') {
		return nil, errMalformedTemplate
	}
	ref := &fieldRef{}
	if idx := strings.IndexByte(body, ':'); idx >= 0 {
		ref.spec = body[idx+1:]
		body = body[:idx]
	}
	if idx := strings.IndexByte(body, '!'); idx >= 0 {
		conv := body[idx+1:]
		if conv != "s" && conv != "r" {
			return nil, errMalformedTemplate
		}
		body = body[:idx]
	}

	end := strings.IndexAny(body, ".[")
	if end < 0 {
		end = len(body)
	}
	ref.name = body[:end]
	rest := body[end:]

	for len(rest) > 0 {
		switch rest[0] {
		case '.':
			next := strings.IndexAny(rest[1:], ".[")
			if next < 0 {
				next = len(rest) - 1
			}
			key := rest[1 : 1+next]
			if key == "" {
				return nil, errMalformedTemplate
			}
			ref.accessors = append(ref.accessors, accessor{key: key})
			rest = rest[1+next:]
		case '[':
			closeIdx := strings.IndexByte(rest, ']')
			if closeIdx < 2 {
				return nil, errMalformedTemplate
			}
			key := rest[1:closeIdx]
			if n, err := strconv.Atoi(key); err == nil {
				ref.accessors = append(ref.accessors, accessor{index: n, isIdx: true, key: key})
			} else {
				ref.accessors = append(ref.accessors, accessor{key: key})
			}
			rest = rest[closeIdx+1:]
		default:
			return nil, errMalformedTemplate
		}
	}
	return ref, nil
}

// Render substitutes fields into the template. The boolean is false when a
// referenced field is missing, nil, not addressable, or uses an unsupported
// format spec.
func (t *Template) Render(fields map[string]any) (string, bool) {
	if t == nil {
		return "", false
	}
	var out strings.Builder
	for _, part := range t.parts {
		if part.field == nil {
			out.WriteString(part.literal)
			continue
		}
		value, ok := part.field.resolve(fields)
		if !ok {
			return "", false
		}
		rendered, ok := renderValue(value, part.field.spec)
		if !ok {
			return "", false
		}
		out.WriteString(rendered)
	}
	return out.String(), true
}

// String returns the source text of the template.
func (t *Template) String() string {
	if t == nil {
		return ""
	}
	return t.raw
}

func (r *fieldRef) resolve(fields map[string]any) (any, bool) {
	if r.name == "" {
		return nil, false
	}
	value, ok := fields[r.name]
	if !ok || value == nil {
		return nil, false
	}
	for _, acc := range r.accessors {
		value, ok = step(value, acc)
		if !ok || value == nil {
			return nil, false
		}
	}
	return value, true
}

func step(value any, acc accessor) (any, bool) {
	switch v := value.(type) {
	case map[string]any:
		inner, ok := v[acc.key]
		return inner, ok
	case map[string]string:
		inner, ok := v[acc.key]
		return inner, ok
	case []string:
		if !acc.isIdx || acc.index < 0 || acc.index >= len(v) {
			return nil, false
		}
		return v[acc.index], true
	case []any:
		if !acc.isIdx || acc.index < 0 || acc.index >= len(v) {
			return nil, false
		}
		return v[acc.index], true
	default:
		return nil, false
	}
}

func renderValue(value any, spec string) (string, bool) {
	if spec != "" {
		return "", false
	}
	switch v := value.(type) {
	case string:
		return v, true
	case []string:
		return strings.Join(v, ", "), true
	case fmt.Stringer:
		return v.String(), true
	default:
		return fmt.Sprint(v), true
	}
}
