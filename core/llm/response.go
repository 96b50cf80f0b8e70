package llm

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// textWrapper matches the repr some SDKs produce for a text content part.
var textWrapper = regexp.MustCompile(`(?s)^type=['"]text['"]\s+text=(['"])(.*)['"]$`)

// ExtractJSON returns the first valid JSON object in a model response.
// Code fences, SDK text wrappers and prose around the object are tolerated.
func ExtractJSON(resp string) (string, bool) {
	return firstObject(CleanResponse(resp))
}

// CleanResponse strips code fences and SDK text wrappers from a model
// response.
func CleanResponse(resp string) string {
	s := strings.TrimSpace(resp)
	if m := textWrapper.FindStringSubmatch(s); m != nil {
		s = strings.NewReplacer(`\n`, "\n", `\'`, "'", `\"`, `"`).Replace(m[2])
	}
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// firstObject returns the first balanced, valid JSON object in s.
func firstObject(s string) (string, bool) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		depth, inString, escaped := 0, false, false
		for i := start; i < len(s); i++ {
			c := s[i]
			switch {
			case escaped:
				escaped = false
			case inString && c == '\\':
				escaped = true
			case c == '"':
				inString = !inString
			case inString:
			case c == '{':
				depth++
			case c == '}':
				depth--
				if depth == 0 {
					if obj := s[start : i+1]; gjson.Valid(obj) {
						return obj, true
					}
					i = len(s)
				}
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}
