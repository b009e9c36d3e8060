package params

import (
	"errors"
	"slices"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/scenariokit/scenariocat/internal/caterr"
	"github.com/scenariokit/scenariocat/internal/schema"
)

// expander resolves names against one scope, memoizing results and tracking
// the chain of names being expanded so cycles can be reported.
type expander struct {
	scope *Scope
	stack []string
	memo  map[string]string
}

func newExpander(s *Scope) *expander {
	return &expander{scope: s, memo: make(map[string]string)}
}

func (x *expander) resolve(name string) (string, error) {
	if v, ok := x.memo[name]; ok {
		return v, nil
	}
	if i := slices.Index(x.stack, name); i >= 0 {
		cycle := append(slices.Clone(x.stack[i:]), name)
		return "", &caterr.Error{Kind: caterr.ParameterCycle, Name: name, Cycle: cycle}
	}
	b, ok := x.scope.Lookup(name)
	if !ok {
		return "", &caterr.Error{Kind: caterr.UndeclaredParameter, Name: name}
	}

	var (
		v   string
		err error
	)
	switch {
	case b.Expanded:
		v = b.Value
	case b.origin != nil:
		v, err = b.origin.Resolve(name)
	default:
		x.stack = append(x.stack, name)
		v, err = x.expand(b.Value)
		x.stack = x.stack[:len(x.stack)-1]
	}
	if err != nil {
		return "", err
	}
	x.memo[name] = v
	return v, nil
}

// expand replaces every ${name} in text. "$$" yields a literal "$". A "${"
// that is not followed by an identifier and a closing brace is kept as text.
func (x *expander) expand(text string) (string, error) {
	if !strings.Contains(text, "$") {
		return text, nil
	}
	var sb strings.Builder
	sb.Grow(len(text))
	for i := 0; i < len(text); {
		c := text[i]
		if c != '$' || i+1 >= len(text) {
			sb.WriteByte(c)
			i++
			continue
		}
		switch text[i+1] {
		case '$':
			sb.WriteByte('$')
			i += 2
		case '{':
			end := strings.IndexByte(text[i+2:], '}')
			if end < 0 || !IsIdent(text[i+2:i+2+end]) {
				sb.WriteByte(c)
				i++
				continue
			}
			v, err := x.resolve(text[i+2 : i+2+end])
			if err != nil {
				return "", err
			}
			sb.WriteString(v)
			i += end + 3
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), nil
}

// IsIdent reports whether s is a valid parameter name: a letter or
// underscore followed by letters, digits or underscores.
func IsIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// Placeholders returns the distinct names referenced by text, in order of
// first appearance. Escaped and malformed placeholders are ignored.
func Placeholders(text string) []string {
	var names []string
	for i := 0; i+1 < len(text); i++ {
		if text[i] != '$' {
			continue
		}
		if text[i+1] == '$' {
			i++
			continue
		}
		if text[i+1] != '{' {
			continue
		}
		end := strings.IndexByte(text[i+2:], '}')
		if end < 0 {
			break
		}
		name := text[i+2 : i+2+end]
		if IsIdent(name) {
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
			i += end + 2
		}
	}
	return names
}

// SoleReference returns the parameter name when text is exactly one
// placeholder and nothing else.
func SoleReference(text string) (string, bool) {
	if !strings.HasPrefix(text, "${") || !strings.HasSuffix(text, "}") {
		return "", false
	}
	name := text[2 : len(text)-1]
	return name, IsIdent(name)
}

// Expand substitutes every placeholder in text from s.
func (s *Scope) Expand(text string) (string, error) {
	return newExpander(s).expand(text)
}

// Resolve returns the fully expanded value of name.
func (s *Scope) Resolve(name string) (string, error) {
	return newExpander(s).resolve(name)
}

// Typed returns the expanded value of name converted to its declared type.
func (s *Scope) Typed(name string) (cty.Value, error) {
	b, ok := s.Lookup(name)
	if !ok {
		return cty.NilVal, &caterr.Error{Kind: caterr.UndeclaredParameter, Name: name}
	}
	raw, err := s.Resolve(name)
	if err != nil {
		return cty.NilVal, err
	}
	v, err := b.Type.Convert(raw)
	if err != nil {
		return cty.NilVal, TypeMismatch(name, err)
	}
	return v, nil
}

// TypeMismatch converts a conversion failure for name into a
// ParameterTypeMismatch error.
func TypeMismatch(name string, err error) error {
	var ce *schema.ConversionError
	if errors.As(err, &ce) {
		return &caterr.Error{
			Kind:     caterr.ParameterTypeMismatch,
			Name:     name,
			Expected: ce.Expected,
			Got:      ce.Got,
			Reason:   ce.Reason,
		}
	}
	return caterr.Wrap(caterr.ParameterTypeMismatch, err, "parameter %q", name)
}
