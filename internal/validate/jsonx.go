package validate

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencedJSON = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")
	fencedAny  = regexp.MustCompile("(?s)```(?:[a-zA-Z]+)?\\s*(\\{.*?\\})\\s*```")
)

// ExtractJSON pulls a JSON object out of free-form model output. Strategies
// are tried in order: the whole text, the last parsable ```json fence, the
// last parsable fence of any language, then the last balanced {...} span.
// Returns nil when nothing parses.
func ExtractJSON(text string) map[string]any {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	if obj := tryParse(trimmed); obj != nil {
		return obj
	}

	for _, re := range []*regexp.Regexp{fencedJSON, fencedAny} {
		matches := re.FindAllStringSubmatch(text, -1)
		for i := len(matches) - 1; i >= 0; i-- {
			if obj := tryParse(matches[i][1]); obj != nil {
				return obj
			}
		}
	}

	spans := balancedSpans(text)
	for i := len(spans) - 1; i >= 0; i-- {
		if obj := tryParse(text[spans[i][0]:spans[i][1]]); obj != nil {
			return obj
		}
	}

	return nil
}

func tryParse(s string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil
	}
	return obj
}

// balancedSpans returns [start,end) offsets of top-level brace pairs,
// ignoring braces inside string literals.
func balancedSpans(text string) [][2]int {
	var spans [][2]int
	depth, start := 0, -1
	inString, escaped := false, false

	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					spans = append(spans, [2]int{start, i + 1})
					start = -1
				}
			}
		}
	}
	return spans
}
