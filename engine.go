package waf

import (
	"fmt"
	"strings"
)

// Action is the outcome of rule evaluation.
type Action int

const (
	// Allow lets the request proceed to the forwarding relay.
	Allow Action = iota

	// Deny rejects the request with a 403 response.
	Deny
)

// Rule identifiers reported in verdicts, metrics, and logs.
const (
	RuleIP         = "ip_blocklist"
	RuleHost       = "missing_host"
	RuleDomain     = "domain_blocklist"
	RulePath       = "path_blocklist"
	RuleDomainPath = "domain_path_blocklist"
	RuleUserAgent  = "user_agent_blocklist"
	RuleQuery      = "suspicious_query"
)

// Verdict is the result of evaluating one request against the RuleSet.
// A Deny verdict always carries a renderable reason naming the rule
// that fired and the offending value.
type Verdict struct {
	Action Action
	Rule   string
	Reason string
}

// Allowed reports whether the verdict permits forwarding.
func (v Verdict) Allowed() bool {
	return v.Action == Allow
}

func allow() Verdict {
	return Verdict{Action: Allow}
}

func deny(rule, reason string) Verdict {
	return Verdict{Action: Deny, Rule: rule, Reason: reason}
}

// Evaluate checks a request descriptor against the rule set and returns
// a verdict. It is a pure function of its inputs: no I/O, no mutation,
// safe to call concurrently against the same RuleSet.
//
// Rules are evaluated in a fixed order and the first match wins. The
// order is part of the contract because the reported denial reason must
// be reproducible:
//
//  1. client IP blocklist
//  2. host presence
//  3. domain blocklist (exact)
//  4. global path blocklist (exact)
//  5. domain-specific path blocklist (exact)
//  6. user-agent blocklist (exact)
//  7. suspicious query patterns (substring, configured order)
func Evaluate(d *RequestDescriptor, rs *RuleSet) Verdict {
	if rs.BlockedIP(d.ClientIP) {
		return deny(RuleIP, fmt.Sprintf("IP address %s is blocked.", d.ClientIP))
	}

	// The normalizer already rejects hostless requests, but a descriptor
	// with an empty host denies here regardless of how it was built.
	if d.Host == "" {
		return deny(RuleHost, "Bad Request: Host header missing in original request.")
	}

	if rs.BlockedDomain(d.Host) {
		return deny(RuleDomain, fmt.Sprintf("Domain '%s' is blocked.", d.Host))
	}

	if rs.BlockedPath(d.Path) {
		return deny(RulePath, fmt.Sprintf("Path '%s' is blocked for all domains.", d.Path))
	}

	if rs.BlockedPathForDomain(d.Host, d.Path) {
		return deny(RuleDomainPath, fmt.Sprintf("Path '%s' is blocked for domain '%s'.", d.Path, d.Host))
	}

	if rs.BlockedUserAgent(d.UserAgent) {
		return deny(RuleUserAgent, fmt.Sprintf("User-Agent '%s' is blocked.", d.UserAgent))
	}

	// Parameters iterate in query-string insertion order, values in
	// order of appearance, patterns in configured order. The first
	// matching triple determines the reported reason.
	for _, param := range d.Query {
		for _, value := range param.Values {
			for _, pattern := range rs.QueryPatterns() {
				// strings.Contains(value, "") is true; an empty
				// configured pattern matching everything is kept on
				// purpose rather than special-cased away.
				if strings.Contains(value, pattern) {
					return deny(RuleQuery, fmt.Sprintf(
						"Suspicious pattern '%s' found in query parameter '%s'. Value: '%s'",
						pattern, param.Name, value))
				}
			}
		}
	}

	return allow()
}

// EvaluateGates applies only the per-method policy gates: the IP and
// user-agent blocklists. These two checks apply to every HTTP method,
// including methods the relay does not forward.
func EvaluateGates(d *RequestDescriptor, rs *RuleSet) Verdict {
	if rs.BlockedIP(d.ClientIP) {
		return deny(RuleIP, fmt.Sprintf("IP address %s is blocked.", d.ClientIP))
	}

	if rs.BlockedUserAgent(d.UserAgent) {
		return deny(RuleUserAgent, fmt.Sprintf("User-Agent '%s' is blocked.", d.UserAgent))
	}

	return allow()
}

