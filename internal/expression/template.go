package expression

import (
	"fmt"
	"strings"
)

const (
	openDelim  = "${{"
	closeDelim = "}}"
)

type templateSpan struct {
	start, end int // byte offsets of the whole "${{ ... }}" span
	body       string
}

// findSpans locates every `${{ ... }}` occurrence in s. Delimiters do not
// nest, so a simple scan for matching open/close pairs suffices.
func findSpans(s string) ([]templateSpan, error) {
	var spans []templateSpan
	i := 0
	for {
		start := strings.Index(s[i:], openDelim)
		if start == -1 {
			break
		}
		start += i
		end := strings.Index(s[start+len(openDelim):], closeDelim)
		if end == -1 {
			return nil, fmt.Errorf("unterminated template starting at position %d", start)
		}
		end = start + len(openDelim) + end
		body := s[start+len(openDelim) : end]
		spans = append(spans, templateSpan{start: start, end: end + len(closeDelim), body: body})
		i = end + len(closeDelim)
	}
	return spans, nil
}

// ResolveString resolves every `${{ ... }}` occurrence in s. A string that
// is a single, fully-wrapped expression returns the evaluated value with
// its native Go type; a mixed string interpolates each expression's
// canonical string form; a string with no template occurrences returns
// unchanged.
func ResolveString(s string, ctx Context) (interface{}, error) {
	spans, err := findSpans(s)
	if err != nil {
		return nil, err
	}
	if len(spans) == 0 {
		return s, nil
	}

	if len(spans) == 1 && strings.TrimSpace(s) == s[spans[0].start:spans[0].end] {
		expr, err := Parse(spans[0].body)
		if err != nil {
			return nil, err
		}
		val, err := Evaluate(expr, ctx)
		if err != nil {
			return nil, err
		}
		return val.Go(), nil
	}

	var sb strings.Builder
	cursor := 0
	for _, span := range spans {
		sb.WriteString(s[cursor:span.start])
		expr, err := Parse(span.body)
		if err != nil {
			return nil, err
		}
		val, err := Evaluate(expr, ctx)
		if err != nil {
			return nil, err
		}
		sb.WriteString(val.String())
		cursor = span.end
	}
	sb.WriteString(s[cursor:])
	return sb.String(), nil
}

// Resolve walks an arbitrary value tree (as decoded from YAML: maps,
// slices, scalars) and resolves every string field's template
// occurrences, per §4.1's "Resolver" behavior.
func Resolve(value interface{}, ctx Context) (interface{}, error) {
	switch t := value.(type) {
	case string:
		return ResolveString(t, ctx)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, v := range t {
			resolved, err := Resolve(v, ctx)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = resolved
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, v := range t {
			resolved, err := Resolve(v, ctx)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

// CheckSyntax parses every `${{ ... }}` occurrence in value without
// evaluating it, surfacing parse errors during preflight (§4.11/§4.12)
// before any step runs.
func CheckSyntax(value interface{}) error {
	switch t := value.(type) {
	case string:
		spans, err := findSpans(t)
		if err != nil {
			return err
		}
		for _, span := range spans {
			if _, err := Parse(span.body); err != nil {
				return err
			}
		}
		return nil
	case map[string]interface{}:
		for k, v := range t {
			if err := CheckSyntax(v); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
		}
		return nil
	case []interface{}:
		for i, v := range t {
			if err := CheckSyntax(v); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		return nil
	default:
		return nil
	}
}
