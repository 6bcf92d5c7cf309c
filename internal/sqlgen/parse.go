package sqlgen

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

const maxExplanationRunes = 500

// GenerateResponse is the JSON shape the generation prompt asks for.
type GenerateResponse struct {
	SQL         string `json:"sql"`
	Explanation string `json:"explanation"`
}

// ParseGenerateResponse pulls SQL out of a model reply: a JSON object first,
// then a fenced code block, then the bare reply if it looks like SQL.
func ParseGenerateResponse(response string) (sql, explanation string, err error) {
	response = strings.TrimSpace(response)

	if jsonStr := ExtractJSON(response); jsonStr != "" {
		var parsed GenerateResponse
		if err := json.Unmarshal([]byte(jsonStr), &parsed); err == nil && parsed.SQL != "" {
			return cleanSQL(parsed.SQL), parsed.Explanation, nil
		}
	}

	blocks, prose := splitFences(response)
	for _, b := range blocks {
		if b.lang == "sql" || (b.lang == "" && looksLikeSQL(b.body)) {
			return cleanSQL(b.body), truncateRunes(prose, maxExplanationRunes), nil
		}
	}

	if looksLikeSQL(response) {
		return cleanSQL(response), "", nil
	}

	return "", "", fmt.Errorf("could not extract SQL from response")
}

// ExtractJSON finds a JSON object in a reply that may wrap it in markdown or
// prose. A json-tagged block wins over an untagged block holding an object,
// which wins over the first balanced object in the raw text.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)

	blocks, _ := splitFences(response)
	var untagged string
	for _, b := range blocks {
		switch {
		case b.lang == "json":
			return b.body
		case b.lang == "" && untagged == "" && strings.HasPrefix(b.body, "{"):
			untagged = b.body
		}
	}
	if untagged != "" {
		return untagged
	}

	if start := strings.IndexByte(response, '{'); start != -1 {
		return balancedObject(response[start:])
	}
	return ""
}

// balancedObject returns the object opening at s[0], or "" when its braces
// never close. Braces inside JSON strings do not count.
func balancedObject(s string) string {
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
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
				return s[:i+1]
			}
		}
	}
	return ""
}

type fence struct {
	lang string
	body string
}

var fenceTags = []string{"json", "sql"}

// splitFences separates the closed ``` blocks of a reply from the prose
// around them. Only json and sql info strings are recognized; any other
// block is untagged.
func splitFences(s string) ([]fence, string) {
	var blocks []fence
	var prose strings.Builder
	for {
		open := strings.Index(s, "```")
		if open == -1 {
			break
		}
		inner := s[open+3:]
		closing := strings.Index(inner, "```")
		if closing == -1 {
			break
		}
		prose.WriteString(s[:open])
		blocks = append(blocks, newFence(inner[:closing]))
		s = inner[closing+3:]
	}
	prose.WriteString(s)
	return blocks, strings.TrimSpace(prose.String())
}

func newFence(inner string) fence {
	lower := strings.ToLower(inner)
	for _, tag := range fenceTags {
		rest, ok := strings.CutPrefix(lower, tag)
		if ok && (rest == "" || unicode.IsSpace(rune(rest[0]))) {
			return fence{lang: tag, body: strings.TrimSpace(inner[len(tag):])}
		}
	}
	return fence{body: strings.TrimSpace(inner)}
}

// looksLikeSQL accepts text that opens with the SELECT keyword. Other
// statements are not worth extracting since they can never run.
func looksLikeSQL(text string) bool {
	rest, ok := strings.CutPrefix(strings.ToUpper(strings.TrimSpace(text)), "SELECT")
	if !ok {
		return false
	}
	if rest == "" {
		return true
	}
	r := rune(rest[0])
	return r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// cleanSQL trims whitespace and one trailing semicolon.
func cleanSQL(sql string) string {
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sql), ";"))
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
