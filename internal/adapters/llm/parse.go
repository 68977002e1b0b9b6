package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// maxCandidates bounds how many '{' or '[' positions ExtractJSON tries.
const maxCandidates = 64

var errNoJSON = errors.New("no valid JSON found in output")

// ParseJSON decodes a model reply into v. Replies that wrap the payload in
// prose or a Markdown fence are handled by falling back to ExtractJSON.
func ParseJSON(output string, v any) error {
	if json.Unmarshal([]byte(strings.TrimSpace(output)), v) == nil {
		return nil
	}
	if raw := ExtractJSON(output); raw != "" && json.Unmarshal([]byte(raw), v) == nil {
		return nil
	}
	return errNoJSON
}

// ExtractJSON returns the first complete JSON object or array embedded in
// output, or "" when there is none.
func ExtractJSON(output string) string {
	rest := output
	for tries := 0; tries < maxCandidates; tries++ {
		i := strings.IndexAny(rest, "{[")
		if i < 0 {
			return ""
		}
		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(rest[i:])).Decode(&raw); err == nil {
			return string(bytes.TrimSpace(raw))
		}
		rest = rest[i+1:]
	}
	return ""
}
