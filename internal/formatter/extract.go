package formatter

import (
	"encoding/json"
	"strings"
)

// ExtractJSON recovers a JSON object from a model response. It tries, in
// order: the whole response, a fenced code block, the outermost braces, and
// finally a repair pass that escapes raw control characters inside strings,
// drops trailing commas and closes structures cut off by a token limit.
func ExtractJSON(response string) (json.RawMessage, error) {
	text := strings.TrimSpace(response)
	if text == "" {
		return nil, ErrMalformedOutput
	}

	if isObject(text) {
		return json.RawMessage(text), nil
	}

	if block, ok := fencedBlock(text); ok && isObject(block) {
		return json.RawMessage(block), nil
	}

	start := strings.Index(text, "{")
	if start < 0 {
		return nil, ErrMalformedOutput
	}
	if end := strings.LastIndex(text, "}"); end > start {
		if candidate := text[start : end+1]; isObject(candidate) {
			return json.RawMessage(candidate), nil
		}
	}

	if repaired := repairJSON(text[start:]); isObject(repaired) {
		return json.RawMessage(repaired), nil
	}
	return nil, ErrMalformedOutput
}

func isObject(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "{") && json.Valid([]byte(s))
}

// fencedBlock returns the body of the first ```json or ``` block.
func fencedBlock(text string) (string, bool) {
	for _, fence := range []string{"```json", "```JSON", "```"} {
		i := strings.Index(text, fence)
		if i < 0 {
			continue
		}
		body := text[i+len(fence):]
		if j := strings.Index(body, "```"); j >= 0 {
			body = body[:j]
		}
		return strings.TrimSpace(body), true
	}
	return "", false
}

// repairJSON rewrites s so that a truncated or sloppy object has a chance to
// parse. It never reorders content.
func repairJSON(s string) string {
	var (
		out      strings.Builder
		stack    []byte
		inString bool
		escaped  bool
	)
	out.Grow(len(s) + 16)

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
				out.WriteByte(c)
			case c == '\\':
				escaped = true
				out.WriteByte(c)
			case c == '"':
				inString = false
				out.WriteByte(c)
			case c == '\n':
				out.WriteString(`\n`)
			case c == '\r':
				out.WriteString(`\r`)
			case c == '\t':
				out.WriteString(`\t`)
			default:
				out.WriteByte(c)
			}
			continue
		}

		switch c {
		case '"':
			inString = true
			out.WriteByte(c)
		case '{':
			stack = append(stack, '}')
			out.WriteByte(c)
		case '[':
			stack = append(stack, ']')
			out.WriteByte(c)
		case '}', ']':
			trimTrailingComma(&out)
			if n := len(stack); n > 0 {
				stack = stack[:n-1]
			}
			out.WriteByte(c)
			if len(stack) == 0 {
				return out.String()
			}
		default:
			out.WriteByte(c)
		}
	}

	if escaped {
		// drop a dangling backslash
		str := out.String()
		out.Reset()
		out.WriteString(str[:len(str)-1])
	}
	if inString {
		out.WriteByte('"')
	}
	trimTrailingComma(&out)
	if str := strings.TrimRight(out.String(), " \n\r\t"); strings.HasSuffix(str, ":") {
		out.Reset()
		out.WriteString(str)
		out.WriteString("null")
	}
	for i := len(stack) - 1; i >= 0; i-- {
		out.WriteByte(stack[i])
	}
	return out.String()
}

func trimTrailingComma(b *strings.Builder) {
	s := strings.TrimRight(b.String(), " \n\r\t")
	if !strings.HasSuffix(s, ",") {
		return
	}
	b.Reset()
	b.WriteString(strings.TrimSuffix(s, ","))
}
