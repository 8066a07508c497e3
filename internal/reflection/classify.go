package reflection

import (
	"regexp"
	"strings"
)

// failurePattern maps an error message to a category and a suggested
// adjustment. The table is ordered and the first match wins.
type failurePattern struct {
	pattern    *regexp.Regexp
	category   string
	suggestion string
	retryable  bool
}

var failurePatterns = []failurePattern{
	{
		pattern:    regexp.MustCompile(`(element|selector|node).*(not found|missing|no match)|no such element|could not (find|locate)`),
		category:   "element_not_found",
		suggestion: "Re-observe the page and pick a selector from the current state instead of a remembered one",
	},
	{
		pattern:    regexp.MustCompile(`not (visible|interactable|clickable)|obscured|intercepted|detached from`),
		category:   "element_not_interactable",
		suggestion: "Wait for the page to settle or scroll the target into view before interacting",
		retryable:  true,
	},
	{
		pattern:    regexp.MustCompile(`timeout|timed out|deadline exceeded`),
		category:   "timeout",
		suggestion: "Add an explicit wait for the expected state, or split the step into smaller ones",
		retryable:  true,
	},
	{
		pattern:    regexp.MustCompile(`net::|connection (refused|reset)|dns|unreachable|err_name_not_resolved`),
		category:   "network_error",
		suggestion: "Verify the URL and retry later; the site may be temporarily unavailable",
		retryable:  true,
	},
	{
		pattern:    regexp.MustCompile(`captcha|are you a robot|bot detection|access denied|403`),
		category:   "blocked",
		suggestion: "The site is blocking automation; try an alternative source or ask the user",
	},
	{
		pattern:    regexp.MustCompile(`rate limit|too many requests|429|throttl`),
		category:   "rate_limit",
		suggestion: "Slow down and retry after a pause",
		retryable:  true,
	},
	{
		pattern:    regexp.MustCompile(`unauthori[sz]ed|login required|sign in|401|session expired`),
		category:   "auth_required",
		suggestion: "Authentication is required; ask the user instead of guessing credentials",
	},
	{
		pattern:    regexp.MustCompile(`404|page not found|no longer available`),
		category:   "not_found",
		suggestion: "The page does not exist; search for the resource instead of guessing URLs",
	},
	{
		pattern:    regexp.MustCompile(`invalid (argument|parameter|input)|bad request|400|validation failed`),
		category:   "invalid_input",
		suggestion: "Check the parameters against what the form or tool expects",
	},
	{
		pattern:    regexp.MustCompile(`denied by gate|requires approval|not permitted`),
		category:   "policy",
		suggestion: "The action was refused by policy; choose a safer alternative",
	},
}

// Classification is the category assigned to one error message.
type Classification struct {
	Category   string
	Suggestion string
	Retryable  bool
}

// Classify assigns a failure category to an error message.
func Classify(errMsg string) Classification {
	lower := strings.ToLower(errMsg)
	if strings.TrimSpace(lower) == "" {
		return Classification{Category: "unspecified"}
	}
	for _, p := range failurePatterns {
		if p.pattern.MatchString(lower) {
			return Classification{Category: p.category, Suggestion: p.suggestion, Retryable: p.retryable}
		}
	}
	return Classification{
		Category:   "unknown",
		Suggestion: "Try a different approach or break the step down",
	}
}
