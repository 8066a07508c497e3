package gate

import (
	"regexp"

	"pilot/internal/permission"
)

// patternRule is one row of the static safety table.
type patternRule struct {
	ID       string
	Category string
	Pattern  *regexp.Regexp
	Decision Decision
	Risk     permission.RiskLevel
	Reason   string
}

// safetyRules is evaluated top to bottom against the action name and each
// parameter key and value; the first match wins. Deny rows come first.
var safetyRules = []patternRule{
	{
		ID:       "recursive_delete",
		Category: "destructive",
		Pattern:  regexp.MustCompile(`(?i)((^|[^a-z])rm[_\s-]+-{0,2}(rf|fr|r\b|recursive)|recursive[_\s-]*delete|delete[_\s-]*(all|everything)|wipe[_\s-]*(disk|all|data)|format[_\s-]*(disk|drive)|drop[_\s-]+(table|database))`),
		Decision: Deny,
		Risk:     permission.RiskHigh,
		Reason:   "recursive or bulk deletion",
	},
	{
		ID:       "privilege_escalation",
		Category: "destructive",
		Pattern:  regexp.MustCompile(`(?i)((^|[^a-z])(sudo|doas)[\s_]|chmod[\s_]+-?r?\s*777|setuid|escalate[_\s-]*privilege|run[_\s-]*as[_\s-]*(root|admin))`),
		Decision: Deny,
		Risk:     permission.RiskHigh,
		Reason:   "privilege escalation",
	},
	{
		ID:       "payment",
		Category: "financial",
		Pattern:  regexp.MustCompile(`(?i)(purchase|checkout|payment|(^|[^a-z])pay([^a-z]|$)|buy[_\s-]*now|place[_\s-]*order|credit[_\s-]*card|card[_\s-]*number|transfer[_\s-]*(funds|money)|wire[_\s-]*transfer)`),
		Decision: RequiresApproval,
		Risk:     permission.RiskHigh,
		Reason:   "payment or purchase",
	},
	{
		ID:       "credentials",
		Category: "credentials",
		Pattern:  regexp.MustCompile(`(?i)(password|passwd|credential|api[_\s-]*key|secret|(^|[^a-z])(otp|2fa|mfa)([^a-z]|$)|social[_\s-]*security|(^|[^a-z])ssn([^a-z]|$))`),
		Decision: RequiresApproval,
		Risk:     permission.RiskHigh,
		Reason:   "credential handling",
	},
	{
		ID:       "mass_messaging",
		Category: "messaging",
		Pattern:  regexp.MustCompile(`(?i)((bulk|mass)[_\s-]*(email|mail|message|send|dm)|send[_\s-]*(to[_\s-]*)?(all|everyone|bulk|mass)|broadcast|email[_\s-]*all)`),
		Decision: RequiresApproval,
		Risk:     permission.RiskMedium,
		Reason:   "mass messaging",
	},
	{
		ID:       "account_change",
		Category: "irreversible",
		Pattern:  regexp.MustCompile(`(?i)(close[_\s-]*account|delete[_\s-]*account|deactivate|unsubscribe[_\s-]*all|cancel[_\s-]*subscription)`),
		Decision: RequiresApproval,
		Risk:     permission.RiskMedium,
		Reason:   "irreversible account change",
	},
}

// matchSafetyRule returns the first rule matching any of texts, as built by
// Action.matchTexts. With denyOnly set only Deny rows are considered.
func matchSafetyRule(rules []patternRule, texts []string, denyOnly bool) (patternRule, bool) {
	for _, r := range rules {
		if denyOnly && r.Decision != Deny {
			continue
		}
		for _, text := range texts {
			if r.Pattern.MatchString(text) {
				return r, true
			}
		}
	}
	return patternRule{}, false
}
