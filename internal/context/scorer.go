package context

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`(?:\+?\d{1,3}[\s.\-]?)?\(?\d{3}\)?[\s.\-]\d{3}[\s.\-]\d{4}`)
	urlPattern   = regexp.MustCompile(`https?://[^\s"'<>)]+`)
	listItem     = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+[.)])\s+\S`)
	wordPattern  = regexp.MustCompile(`[a-z0-9]+`)
)

// milestonePatterns mark durable discoveries and state changes.
var milestonePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(successfully|completed|submitted|saved|created|confirmed|logged in|signed in|downloaded|uploaded|booked|purchased)\b`),
	regexp.MustCompile(`(?i)\b(failed to|unable to|could not|cannot|error:|blocked by)\b`),
	regexp.MustCompile(`(?i)\bfound\s+\d+\b`),
	regexp.MustCompile(`(?i)\b\d+\s+(results?|items?|matches|records?|entries|emails?|contacts?|products?|listings?|pages?)\b`),
	emailPattern,
	phonePattern,
}

// lowValuePrefixes open messages that narrate rather than inform.
var lowValuePrefixes = []string{
	"scrolling", "waiting", "let me", "i will", "i'll", "now i", "looking at",
	"checking", "observing", "hovering", "taking a screenshot", "taking screenshot",
	"ok", "okay", "thinking",
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true, "this": true,
	"from": true, "into": true, "onto": true, "all": true, "any": true, "are": true,
	"was": true, "were": true, "will": true, "have": true, "has": true, "had": true,
	"you": true, "your": true, "our": true, "their": true, "them": true, "then": true,
	"than": true, "what": true, "which": true, "who": true, "how": true, "about": true,
	"find": true, "get": true, "please": true, "can": true, "could": true, "would": true,
	"should": true, "some": true, "out": true, "its": true, "his": true, "her": true,
}

// Scorer assigns importance tiers and retention scores.
type Scorer struct{}

// NewScorer creates a scorer with the built-in pattern tables.
func NewScorer() *Scorer {
	return &Scorer{}
}

// DetectImportance picks a tier for a message. firstUser reports whether
// this is the first user message of the session.
func (s *Scorer) DetectImportance(msg Message, firstUser bool) Importance {
	if msg.Role == RoleSystem {
		return ImportanceCritical
	}
	if msg.Role == RoleUser && firstUser {
		return ImportanceCritical
	}
	if msg.Summary {
		return ImportanceMilestone
	}
	if IsMilestoneContent(msg.Content) {
		return ImportanceMilestone
	}

	lower := strings.ToLower(strings.TrimSpace(msg.Content))
	for _, p := range lowValuePrefixes {
		if strings.HasPrefix(lower, p) && (len(lower) == len(p) || !isWordChar(lower[len(p)])) {
			return ImportanceLow
		}
	}
	return ImportanceNormal
}

// IsMilestoneContent reports whether content matches a milestone pattern.
func IsMilestoneContent(content string) bool {
	for _, p := range milestonePatterns {
		if p.MatchString(content) {
			return true
		}
	}
	return false
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '_'
}

// GoalKeywords extracts the keyword set used for goal relevance.
func GoalKeywords(goal string) map[string]bool {
	kw := make(map[string]bool)
	for _, w := range wordPattern.FindAllString(strings.ToLower(goal), -1) {
		if len(w) >= 3 && !stopwords[w] {
			kw[w] = true
		}
	}
	return kw
}

// GoalRelevance is the fraction of goal keywords present in content.
func GoalRelevance(content string, keywords map[string]bool) float64 {
	if len(keywords) == 0 {
		return 0
	}
	present := make(map[string]bool)
	for _, w := range wordPattern.FindAllString(strings.ToLower(content), -1) {
		if keywords[w] {
			present[w] = true
		}
	}
	return float64(len(present)) / float64(len(keywords))
}

// CountDataItems counts recoverable data points: contacts, links and list
// entries.
func CountDataItems(content string) int {
	return len(emailPattern.FindAllStringIndex(content, -1)) +
		len(phonePattern.FindAllStringIndex(content, -1)) +
		len(urlPattern.FindAllStringIndex(content, -1)) +
		len(listItem.FindAllStringIndex(content, -1))
}

// Utility rewards tool results that carry extractable data.
func Utility(msg Message) float64 {
	u := 0.2
	if msg.Role == RoleTool {
		u += 0.3
	}
	u += min(0.5, 0.1*float64(CountDataItems(msg.Content)))
	return u
}

// Score computes the retention score of a middle message at position pos
// out of n. Critical messages bypass scoring.
func (s *Scorer) Score(msg Message, pos, n int, keywords map[string]bool) float64 {
	if msg.Importance == ImportanceCritical {
		return ImportanceCritical.Weight()
	}
	recency := 1.0
	if n > 0 {
		recency = float64(pos+1) / float64(n)
	}
	base := 0.3*recency + 0.4*GoalRelevance(msg.Content, keywords) + 0.3*Utility(msg)
	return msg.Importance.Weight() * base
}
