package logging

import (
	"fmt"
	"regexp"
	"strings"
)

// Placeholder is what redacted values are replaced with by default.
const Placeholder = "[REDACTED]"

// redaction replaces matches of re. When keepPrefix is set the first
// submatch (a URL scheme or a key name) is written back before the
// placeholder and the second, if any, after it.
type redaction struct {
	name       string
	re         *regexp.Regexp
	keepPrefix bool
}

// Sanitizer strips credentials from log records, judge rationales and
// vision findings before they are written anywhere.
type Sanitizer struct {
	rules       []redaction
	placeholder string
}

// NewSanitizer returns a sanitizer that knows the model-provider, GitHub and
// generic key=value credential shapes.
func NewSanitizer() *Sanitizer {
	s := &Sanitizer{placeholder: Placeholder}
	for _, r := range builtinRedactions {
		s.rules = append(s.rules, redaction{name: r.name, re: regexp.MustCompile(r.pattern), keepPrefix: r.keepPrefix})
	}
	return s
}

// Provider keys are listed before the generic sk- shape so the more specific
// rule wins.
var builtinRedactions = []struct {
	name       string
	pattern    string
	keepPrefix bool
}{
	{"openrouter", `sk-or-v1-[a-f0-9]{32,}`, false},
	{"anthropic", `sk-ant-[a-zA-Z0-9-]{40,}`, false},
	{"openai-project", `sk-proj-[A-Za-z0-9_-]{20,}`, false},
	{"openai", `sk-[A-Za-z0-9]{20,}`, false},
	{"google", `AIza[a-zA-Z0-9_-]{35}`, false},
	{"github-token", `gh[pousr]_[A-Za-z0-9]{36}`, false},
	{"github-pat", `github_pat_[A-Za-z0-9_]{22,}`, false},
	{"url-userinfo", `(?i)(https?://)[^/\s:@]+:[^/\s@]+(@)`, true},
	{"bearer", `(?i)(bearer\s+)[a-zA-Z0-9._-]{20,}`, true},
	{"api-key", `(?i)(api[_-]?key["'\s:=]+)[a-zA-Z0-9_-]{20,}`, true},
	{"secret", `(?i)(secret["'\s:=]+)[a-zA-Z0-9_-]{20,}`, true},
	{"password", `(?i)(password["'\s:=]+)[^\s"']{8,}`, true},
	{"token", `(?i)(token["'\s:=]+)[a-zA-Z0-9_-]{20,}`, true},
}

// Add registers an extra redaction. Capture groups are kept the same way as
// for the built-in rules.
func (s *Sanitizer) Add(name, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("redaction %s: %w", name, err)
	}
	s.rules = append(s.rules, redaction{name: name, re: re, keepPrefix: re.NumSubexp() > 0})
	return nil
}

// SetPlaceholder changes the replacement text.
func (s *Sanitizer) SetPlaceholder(placeholder string) {
	s.placeholder = placeholder
}

// Sanitize returns input with every known credential replaced.
func (s *Sanitizer) Sanitize(input string) string {
	out := input
	for _, r := range s.rules {
		if !r.re.MatchString(out) {
			continue
		}
		if r.keepPrefix {
			out = r.re.ReplaceAllString(out, "${1}"+s.placeholder+"${2}")
		} else {
			out = r.re.ReplaceAllLiteralString(out, s.placeholder)
		}
	}
	return out
}

// Matches lists the names of the redactions that fire on input.
func (s *Sanitizer) Matches(input string) []string {
	var names []string
	for _, r := range s.rules {
		if r.re.MatchString(input) {
			names = append(names, r.name)
		}
	}
	return names
}

var sensitiveWords = map[string]bool{
	"AUTH": true, "AUTHORIZATION": true, "CREDENTIAL": true, "CREDENTIALS": true,
	"KEY": true, "APIKEY": true, "PASSWD": true, "PASSWORD": true,
	"PRIVATE": true, "SECRET": true, "TOKEN": true,
}

// SensitiveKey reports whether a log attribute or environment variable
// named key holds a credential, judging by the words in its name
// (OPENAI_API_KEY, github-token, api_key).
func SensitiveKey(key string) bool {
	words := strings.FieldsFunc(strings.ToUpper(key), func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	})
	for _, w := range words {
		if sensitiveWords[w] {
			return true
		}
	}
	return false
}
