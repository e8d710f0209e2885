package signaldesk

import (
	"encoding/json"
	"regexp"
	"strings"
)

const malformedExcerptLimit = 500

var reCommaBeforeCloser = regexp.MustCompile(`,\s*([}\]])`)

// ParseModelJSON extracts the JSON object from a model reply. Fences and
// surrounding prose are stripped first. If the object does not parse, one
// bounded repair pass fixes the usual truncation damage before a final parse.
func ParseModelJSON(raw string) (map[string]any, error) {
	cleaned := cleanupModelJSON(raw)

	var parsed map[string]any
	if err := json.Unmarshal([]byte(cleaned), &parsed); err == nil && parsed != nil {
		return parsed, nil
	}

	repaired := repairModelJSON(repairCandidate(raw))
	parsed = nil
	if err := json.Unmarshal([]byte(repaired), &parsed); err == nil && parsed != nil {
		return parsed, nil
	}

	return nil, NewError(ErrCodeMalformedResponse, "model reply is not valid JSON: "+excerpt(raw, malformedExcerptLimit))
}

func stripFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		lines := strings.Split(trimmed, "\n")
		if len(lines) >= 2 {
			lines = lines[1:]
			if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
				lines = lines[:len(lines)-1]
			}
			trimmed = strings.Join(lines, "\n")
		}
	}
	return strings.TrimSpace(trimmed)
}

func cleanupModelJSON(content string) string {
	trimmed := stripFences(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		trimmed = trimmed[start : end+1]
	}
	return strings.TrimSpace(trimmed)
}

// repairCandidate is the cleaned text, except that a reply with no closing
// brace after its first opening brace keeps everything from that brace on.
func repairCandidate(content string) string {
	trimmed := stripFences(content)
	start := strings.Index(trimmed, "{")
	if start < 0 {
		return trimmed
	}
	if strings.LastIndex(trimmed, "}") < start {
		return strings.TrimSpace(trimmed[start:])
	}
	return cleanupModelJSON(content)
}

type jsonScanState struct {
	stack       []byte
	inString    bool
	escaped     bool
	stringStart int
}

func scanJSON(s string) jsonScanState {
	var st jsonScanState
	for i := 0; i < len(s); i++ {
		c := s[i]
		if st.inString {
			switch {
			case st.escaped:
				st.escaped = false
			case c == '\\':
				st.escaped = true
			case c == '"':
				st.inString = false
			}
			continue
		}
		switch c {
		case '"':
			st.inString = true
			st.stringStart = i
		case '{', '[':
			st.stack = append(st.stack, c)
		case '}', ']':
			if len(st.stack) > 0 {
				st.stack = st.stack[:len(st.stack)-1]
			}
		}
	}
	return st
}

func repairModelJSON(s string) string {
	s = strings.TrimSpace(s)
	s = reCommaBeforeCloser.ReplaceAllString(s, "$1")

	st := scanJSON(s)
	if st.inString {
		prefix := strings.TrimRight(s[:st.stringStart], " \t\r\n")
		inObject := len(st.stack) > 0 && st.stack[len(st.stack)-1] == '{'
		if inObject && (strings.HasSuffix(prefix, ",") || strings.HasSuffix(prefix, "{")) {
			// unterminated key
			s = strings.TrimSuffix(prefix, ",")
		} else {
			if st.escaped {
				s = s[:len(s)-1]
			}
			s += `"`
		}
	} else if len(st.stack) > 0 && st.stack[len(st.stack)-1] == '{' {
		s = dropDanglingKey(s)
	}

	for {
		s = strings.TrimRight(s, " \t\r\n")
		switch {
		case strings.HasSuffix(s, ","):
			s = s[:len(s)-1]
		case strings.HasSuffix(s, ":"):
			s += "null"
		default:
			return closeContainers(s)
		}
	}
}

// dropDanglingKey removes a complete key string that has no colon yet, as in
// `{"a":1,"b"`. A string preceded by ',' or '{' inside an object is a key.
func dropDanglingKey(s string) string {
	trimmed := strings.TrimRight(s, " \t\r\n")
	if !strings.HasSuffix(trimmed, `"`) {
		return s
	}
	st := scanJSON(trimmed[:len(trimmed)-1])
	if !st.inString {
		return s
	}
	prefix := strings.TrimRight(trimmed[:st.stringStart], " \t\r\n")
	if strings.HasSuffix(prefix, ",") {
		return strings.TrimSuffix(prefix, ",")
	}
	if strings.HasSuffix(prefix, "{") {
		return prefix
	}
	return s
}

func closeContainers(s string) string {
	st := scanJSON(s)
	var b strings.Builder
	b.WriteString(s)
	for i := len(st.stack) - 1; i >= 0; i-- {
		if st.stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

// excerpt returns the first limit characters of s without splitting a rune.
func excerpt(s string, limit int) string {
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}
