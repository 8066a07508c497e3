package security

import (
	"regexp"
	"sort"
	"strings"
)

const redactedMarker = "[REDACTED]"

// credentialPattern names one kind of secret. When the expression has a
// group named "secret" only that group is masked; otherwise the whole match.
type credentialPattern struct {
	name string
	re   *regexp.Regexp
}

var credentialPatterns = []credentialPattern{
	{"labeled_secret", regexp.MustCompile(`(?i)\b(?:api[_-]?key|access[_-]?token|auth[_-]?token|secret|password|passwd|pwd)\s*[:=]\s*["']?(?P<secret>[A-Za-z0-9_\-\.+/]{8,})["']?`)},
	{"bearer_token", regexp.MustCompile(`(?i)\bBearer\s+(?P<secret>[A-Za-z0-9_\-\.]{10,256})`)},
	{"aws_access_key", regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{"github_token", regexp.MustCompile(`\bgh[pous]_[A-Za-z0-9]{36}\b`)},
	{"stripe_key", regexp.MustCompile(`\b[sr]k_(?:live|test)_[0-9A-Za-z]{24,}\b`)},
	{"google_api_key", regexp.MustCompile(`\bAIza[0-9A-Za-z\-_]{35}\b`)},
	{"slack_token", regexp.MustCompile(`\bxox[baprs]-[0-9]{10,}-[0-9]{10,}-[A-Za-z0-9]{24}\b`)},
	{"jwt", regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]{20,}`)},
	{"private_key", regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]+?-----END [A-Z ]*PRIVATE KEY-----`)},
	{"url_credentials", regexp.MustCompile(`\b(?:postgres|postgresql|mysql|mongodb|redis|amqp)://[^\s:@/]*:(?P<secret>[^\s@/]+)@`)},
	{"basic_auth_header", regexp.MustCompile(`(?i)Authorization:\s*Basic\s+(?P<secret>[A-Za-z0-9+/]{20,}={0,2})`)},
	{"card_number", regexp.MustCompile(`\b(?:4[0-9]{3}|5[1-5][0-9]{2})[ -]?[0-9]{4}[ -]?[0-9]{4}[ -]?[0-9]{4}\b`)},
}

// placeholderValues are assignment values that are obviously not secrets.
var placeholderValues = []string{
	"example", "changeme", "placeholder", "your_", "xxxx", "redacted", "<", "${",
}

// CredentialFinding is one detected secret.
type CredentialFinding struct {
	Kind  string
	Start int
	End   int
}

// CredentialScanner detects and masks credentials in produced text and data.
type CredentialScanner struct {
	patterns []credentialPattern
}

// NewCredentialScanner returns a scanner with the built-in pattern table.
func NewCredentialScanner() *CredentialScanner {
	return &CredentialScanner{patterns: credentialPatterns}
}

// Scan returns the secrets found in text, ordered by position.
func (s *CredentialScanner) Scan(text string) []CredentialFinding {
	if text == "" {
		return nil
	}

	var findings []CredentialFinding
	for _, p := range s.patterns {
		secretIdx := p.re.SubexpIndex("secret")
		for _, loc := range p.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[0], loc[1]
			if secretIdx > 0 && loc[2*secretIdx] >= 0 {
				start, end = loc[2*secretIdx], loc[2*secretIdx+1]
			}
			if isPlaceholder(text[start:end]) {
				continue
			}
			findings = append(findings, CredentialFinding{Kind: p.name, Start: start, End: end})
		}
	}

	sort.Slice(findings, func(i, j int) bool { return findings[i].Start < findings[j].Start })
	return findings
}

// Redact masks every detected secret in text.
func (s *CredentialScanner) Redact(text string) string {
	findings := s.Scan(text)
	if len(findings) == 0 {
		return text
	}

	var b strings.Builder
	last := 0
	for _, f := range findings {
		if f.Start < last {
			// overlaps a span already masked
			if f.End > last {
				last = f.End
			}
			continue
		}
		b.WriteString(text[last:f.Start])
		b.WriteString(redactedMarker)
		last = f.End
	}
	b.WriteString(text[last:])
	return b.String()
}

// RedactValue returns a copy of v with every string leaf redacted. Maps and
// slices are walked recursively; other values are returned as is.
func (s *CredentialScanner) RedactValue(v any) any {
	switch t := v.(type) {
	case string:
		return s.Redact(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = s.RedactValue(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = s.RedactValue(item)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, item := range t {
			out[i] = s.Redact(item)
		}
		return out
	default:
		return v
	}
}

func isPlaceholder(value string) bool {
	lower := strings.ToLower(strings.Trim(value, `"'`))
	for _, p := range placeholderValues {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
