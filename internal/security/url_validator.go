package security

import (
	"net"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

// URLProblem classifies what is wrong with a navigation target.
type URLProblem int

const (
	URLOK URLProblem = iota
	URLEmpty
	URLMissingScheme
	URLBlockedScheme
	URLMalformed
	URLInvalidHost
	URLPrivateAddress
)

func (p URLProblem) String() string {
	switch p {
	case URLOK:
		return "ok"
	case URLEmpty:
		return "empty"
	case URLMissingScheme:
		return "missing_scheme"
	case URLBlockedScheme:
		return "blocked_scheme"
	case URLMalformed:
		return "malformed"
	case URLInvalidHost:
		return "invalid_host"
	case URLPrivateAddress:
		return "private_address"
	default:
		return "unknown"
	}
}

// URLVerdict is the result of checking a navigation target. Normalized is
// set when the target can be used after a fix, e.g. a missing scheme.
type URLVerdict struct {
	Problem    URLProblem
	Reason     string
	Normalized string
}

var blockedSchemes = map[string]bool{
	"file": true, "ftp": true, "gopher": true, "data": true,
	"javascript": true, "vbscript": true, "dict": true, "ldap": true,
}

// schemePrefix matches "mailto:x" or "javascript:x" but not "host:8080".
var schemePrefix = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9+.\-]*):[^0-9/]`)

var privateNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"100.64.0.0/10",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

// URLValidator checks navigation targets without any network access.
type URLValidator struct {
	profile *idna.Profile
}

// NewURLValidator creates a validator using IDNA lookup rules for hosts.
func NewURLValidator() *URLValidator {
	return &URLValidator{profile: idna.Lookup}
}

// Check validates raw as a navigation target.
func (v *URLValidator) Check(raw string) URLVerdict {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return URLVerdict{Problem: URLEmpty, Reason: "navigation target is empty"}
	}

	if !strings.Contains(raw, "://") {
		if m := schemePrefix.FindStringSubmatch(raw); m != nil {
			return URLVerdict{Problem: URLBlockedScheme, Reason: "unsupported URL scheme: " + strings.ToLower(m[1])}
		}
		fixed := "https://" + strings.TrimPrefix(raw, "//")
		verdict := v.Check(fixed)
		if verdict.Problem != URLOK {
			return verdict
		}
		return URLVerdict{Problem: URLMissingScheme, Reason: "missing URL scheme", Normalized: verdict.Normalized}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return URLVerdict{Problem: URLMalformed, Reason: "malformed URL: " + err.Error()}
	}

	scheme := strings.ToLower(u.Scheme)
	if blockedSchemes[scheme] {
		return URLVerdict{Problem: URLBlockedScheme, Reason: "blocked URL scheme: " + scheme}
	}
	if scheme != "http" && scheme != "https" {
		return URLVerdict{Problem: URLBlockedScheme, Reason: "unsupported URL scheme: " + scheme}
	}

	host := u.Hostname()
	if host == "" {
		return URLVerdict{Problem: URLInvalidHost, Reason: "missing hostname"}
	}

	if ip := net.ParseIP(host); ip != nil {
		for _, n := range privateNetworks {
			if n.Contains(ip) {
				return URLVerdict{Problem: URLPrivateAddress, Reason: "private address " + ip.String(), Normalized: u.String()}
			}
		}
		return URLVerdict{Problem: URLOK, Normalized: u.String()}
	}

	ascii, err := v.profile.ToASCII(host)
	if err != nil {
		return URLVerdict{Problem: URLInvalidHost, Reason: "invalid hostname: " + err.Error()}
	}
	if ascii == "localhost" || strings.HasSuffix(ascii, ".localhost") {
		return URLVerdict{Problem: URLPrivateAddress, Reason: "localhost", Normalized: u.String()}
	}
	if !strings.Contains(ascii, ".") {
		return URLVerdict{Problem: URLInvalidHost, Reason: "hostname has no domain: " + host}
	}

	if ascii != host {
		if port := u.Port(); port != "" {
			u.Host = net.JoinHostPort(ascii, port)
		} else {
			u.Host = ascii
		}
	}
	return URLVerdict{Problem: URLOK, Normalized: u.String()}
}
