package compose

import (
	"strings"

	"github.com/mmr-tortoise/stevedore/internal/model"
)

// Lookup resolves a variable name to a value. The second return reports
// whether the variable is set at all.
type Lookup func(name string) (string, bool)

// Interpolate substitutes ${NAME}, ${NAME:-DEFAULT}, and $NAME patterns
// in the raw compose file text before YAML decoding. Unset variables
// substitute their default when the :- form is used, the empty string
// otherwise. "$$" escapes a literal dollar sign.
//
// A ${...} group whose name fails the environment-name grammar is an
// invalid-argument error; a bare "$" not followed by a name start is
// left untouched.
func Interpolate(text string, lookup Lookup) (string, error) {
	var out strings.Builder
	out.Grow(len(text))

	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '$' {
			out.WriteByte(c)
			continue
		}
		if i+1 >= len(text) {
			out.WriteByte(c)
			break
		}
		next := text[i+1]
		switch {
		case next == '$':
			out.WriteByte('$')
			i++
		case next == '{':
			end := strings.IndexByte(text[i+2:], '}')
			if end < 0 {
				return "", model.ErrInvalidArgument("unterminated variable reference %q", text[i:min(i+20, len(text))])
			}
			body := text[i+2 : i+2+end]
			value, err := resolveBraced(body, lookup)
			if err != nil {
				return "", err
			}
			out.WriteString(value)
			i += 2 + end
		case isNameStart(next):
			j := i + 1
			for j < len(text) && isNameChar(text[j]) {
				j++
			}
			value, _ := lookup(text[i+1 : j])
			out.WriteString(value)
			i = j - 1
		default:
			out.WriteByte(c)
		}
	}
	return out.String(), nil
}

// resolveBraced handles the ${NAME} and ${NAME:-DEFAULT} bodies.
func resolveBraced(body string, lookup Lookup) (string, error) {
	name, def, hasDefault := strings.Cut(body, ":-")
	if !model.EnvNamePattern.MatchString(name) {
		return "", model.ErrInvalidArgument("invalid variable name %q in interpolation", name)
	}
	if value, ok := lookup(name); ok {
		return value, nil
	}
	if hasDefault {
		return def, nil
	}
	return "", nil
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}

// EnvLookup chains the explicit override map (from --env flags) over the
// process environment.
func EnvLookup(overrides map[string]string, environ Lookup) Lookup {
	return func(name string) (string, bool) {
		if value, ok := overrides[name]; ok {
			return value, true
		}
		return environ(name)
	}
}
