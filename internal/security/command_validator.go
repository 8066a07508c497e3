package security

import (
	"regexp"
	"strings"
)

// CommandLevel is the safety classification of a shell-like command.
type CommandLevel int

const (
	CommandSafe CommandLevel = iota
	CommandCaution
	CommandBlocked
)

func (l CommandLevel) String() string {
	switch l {
	case CommandSafe:
		return "safe"
	case CommandCaution:
		return "caution"
	case CommandBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// commandRule matches either a lowercase substring or a regexp.
type commandRule struct {
	name      string
	level     CommandLevel
	substring string
	pattern   *regexp.Regexp
	reason    string
}

func (r commandRule) matches(raw, lower string) bool {
	if r.substring != "" {
		return strings.Contains(lower, r.substring)
	}
	return r.pattern.MatchString(raw)
}

// commandRules is evaluated top to bottom; the first match wins, so every
// blocked rule precedes the caution rules.
var commandRules = []commandRule{
	{name: "fork_bomb", level: CommandBlocked, pattern: regexp.MustCompile(`:\s*\(\s*\)\s*\{`), reason: "fork bomb"},
	{name: "recursive_delete_root", level: CommandBlocked, pattern: regexp.MustCompile(`\brm\s+(-[a-zA-Z]*[rR][a-zA-Z]*\s+)+(/|~|\$HOME|\$\{HOME\}|\*)(\s|$)`), reason: "recursive delete of root or home"},
	{name: "recursive_delete_var", level: CommandBlocked, pattern: regexp.MustCompile(`\brm\s+(-[a-zA-Z]*[rR][a-zA-Z]*\s+)+\$`), reason: "recursive delete of variable path"},
	{name: "mkfs", level: CommandBlocked, substring: "mkfs", reason: "filesystem format"},
	{name: "raw_disk_write", level: CommandBlocked, pattern: regexp.MustCompile(`\bdd\s+.*of=/dev/(sd|hd|vd|nvme)`), reason: "raw disk write"},
	{name: "chmod_root", level: CommandBlocked, pattern: regexp.MustCompile(`\bch(mod|own)\s+-R\s+\S+\s+/(\s|$)`), reason: "recursive permission change on root"},
	{name: "reverse_shell", level: CommandBlocked, pattern: regexp.MustCompile(`(\bnc(at)?\s+-[ec]\b|/dev/(tcp|udp)/)`), reason: "reverse shell"},
	{name: "pipe_to_shell", level: CommandBlocked, pattern: regexp.MustCompile(`(?i)(wget|curl|base64\s+-d)\b.*\|\s*(ba|z)?sh\b`), reason: "download piped to shell"},
	{name: "shadow_file", level: CommandBlocked, substring: "/etc/shadow", reason: "credential store access"},
	{name: "ssh_keys", level: CommandBlocked, pattern: regexp.MustCompile(`\.ssh/(id_|authorized_keys)`), reason: "ssh key access"},
	{name: "cloud_credentials", level: CommandBlocked, pattern: regexp.MustCompile(`\.(aws/credentials|kube/config)`), reason: "cloud credential access"},
	{name: "history_wipe", level: CommandBlocked, pattern: regexp.MustCompile(`(history\s+-c|unset\s+HISTFILE)`), reason: "history tampering"},

	{name: "privilege_escalation", level: CommandCaution, pattern: regexp.MustCompile(`(^|[\s;&|])(sudo|su|doas)\s`), reason: "privilege escalation"},
	{name: "command_substitution", level: CommandCaution, pattern: regexp.MustCompile("(\\$\\(|`)"), reason: "command substitution"},
	{name: "hex_escape", level: CommandCaution, pattern: regexp.MustCompile(`\\x[0-9a-fA-F]{2}`), reason: "escaped bytes"},
	{name: "eval", level: CommandCaution, pattern: regexp.MustCompile(`\beval\s`), reason: "eval"},
}

// CommandVerdict is the outcome of classifying one command.
type CommandVerdict struct {
	Level  CommandLevel
	Rule   string
	Reason string
}

// CommandValidator classifies shell-like command strings carried in action
// parameters.
type CommandValidator struct {
	rules []commandRule
}

// NewCommandValidator creates a validator over the built-in rule table.
func NewCommandValidator() *CommandValidator {
	return &CommandValidator{rules: commandRules}
}

// Classify returns the first matching rule's level, or CommandSafe.
func (cv *CommandValidator) Classify(command string) CommandVerdict {
	command = strings.TrimSpace(command)
	if command == "" {
		return CommandVerdict{Level: CommandSafe}
	}

	lower := strings.ToLower(command)
	for _, r := range cv.rules {
		if r.matches(command, lower) {
			return CommandVerdict{Level: r.level, Rule: r.name, Reason: r.reason}
		}
	}
	return CommandVerdict{Level: CommandSafe}
}
