package permission

import (
	"github.com/bmatcuk/doublestar/v4"
)

// Rule binds an action-name glob to a policy level.
type Rule struct {
	Pattern string
	Level   Level
}

// Rules is an ordered policy table over action names. Deny rules are
// checked before any other rule so an allow glob can never shadow them.
type Rules struct {
	rules []Rule
}

// NewRules builds a table from the given rules, keeping their order.
// Invalid globs are skipped.
func NewRules(rules ...Rule) *Rules {
	valid := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if doublestar.ValidatePattern(r.Pattern) {
			valid = append(valid, r)
		}
	}
	return &Rules{rules: valid}
}

// NewRulesFromLists builds a table from allow and ask glob lists.
func NewRulesFromLists(allow, ask []string) *Rules {
	rules := make([]Rule, 0, len(allow)+len(ask))
	for _, p := range ask {
		rules = append(rules, Rule{Pattern: p, Level: LevelAsk})
	}
	for _, p := range allow {
		rules = append(rules, Rule{Pattern: p, Level: LevelAllow})
	}
	return NewRules(rules...)
}

// Match returns the policy for an action name and the matching pattern.
func (r *Rules) Match(name string) (Level, string, bool) {
	if r == nil {
		return "", "", false
	}
	for _, rule := range r.rules {
		if rule.Level == LevelDeny && globMatch(rule.Pattern, name) {
			return rule.Level, rule.Pattern, true
		}
	}
	for _, rule := range r.rules {
		if rule.Level != LevelDeny && globMatch(rule.Pattern, name) {
			return rule.Level, rule.Pattern, true
		}
	}
	return "", "", false
}

// Len returns the number of rules.
func (r *Rules) Len() int {
	if r == nil {
		return 0
	}
	return len(r.rules)
}

func globMatch(pattern, name string) bool {
	ok, err := doublestar.Match(pattern, name)
	return err == nil && ok
}
