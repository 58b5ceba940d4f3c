package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ParseFailure marks model output that could not be coerced into the expected
// JSON shape. Callers degrade gracefully on it instead of failing the task.
type ParseFailure struct {
	Raw string
	Err error
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("model output is not valid JSON: %v", e.Err)
}

func (e *ParseFailure) Unwrap() error {
	return e.Err
}

// ExtractJSON pulls a JSON document out of raw model output. Models wrap JSON
// in prose and code fences more often than not, so extraction tries the whole
// text first, then fenced blocks, then the first balanced object or array,
// repairing truncated or malformed candidates along the way.
func ExtractJSON(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", &ParseFailure{Raw: content, Err: fmt.Errorf("empty output")}
	}

	candidates := []string{content}
	if fenced := extractFenced(content, "```json"); fenced != "" {
		candidates = append(candidates, fenced)
	}
	if fenced := extractFenced(content, "```"); fenced != "" {
		candidates = append(candidates, fenced)
	}
	if span := firstJSONSpan(content); span != "" {
		candidates = append(candidates, span)
	}

	var lastErr error
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		// Repair only document-shaped candidates. Left to its own devices the
		// repairer happily turns bare prose into a quoted string, which would
		// mask refusals as parse successes.
		if candidate[0] != '{' && candidate[0] != '[' {
			if json.Valid([]byte(candidate)) {
				return candidate, nil
			}
			continue
		}
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
		repaired, err := jsonrepair.JSONRepair(candidate)
		if err != nil {
			lastErr = err
			continue
		}
		if json.Valid([]byte(repaired)) {
			return repaired, nil
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no JSON document found")
	}
	return "", &ParseFailure{Raw: content, Err: lastErr}
}

// Decode extracts a JSON document from model output and unmarshals it into v.
func Decode(content string, v any) error {
	doc, err := ExtractJSON(content)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(doc), v); err != nil {
		return &ParseFailure{Raw: content, Err: err}
	}
	return nil
}

// extractFenced returns the body of the first code fence opened by marker.
func extractFenced(content, marker string) string {
	start := strings.Index(content, marker)
	if start < 0 {
		return ""
	}
	rest := content[start+len(marker):]
	if idx := strings.Index(rest, "\n"); idx >= 0 {
		rest = rest[idx+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}

// firstJSONSpan finds the first balanced {...} or [...] span, ignoring
// brackets inside string literals.
func firstJSONSpan(content string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(content); i++ {
		if content[i] == '{' || content[i] == '[' {
			start = i
			open = content[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	// Unbalanced span, return the tail and let repair close it.
	return content[start:]
}
