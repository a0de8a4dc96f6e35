package waf

import (
	"strings"
	"testing"
)

func descriptorForTest() *RequestDescriptor {
	return &RequestDescriptor{
		ClientIP:  "203.0.113.7",
		Method:    MethodGet,
		RawMethod: "GET",
		Host:      "example.com",
		Path:      "/page",
		UserAgent: "test-agent/1.0",
		RawTarget: "http://example.com/page",
	}
}

func TestEvaluate_EmptyRuleSetAllows(t *testing.T) {
	v := Evaluate(descriptorForTest(), NewRuleSet())
	if !v.Allowed() {
		t.Fatalf("expected allow, got deny: %s", v.Reason)
	}
}

func TestEvaluate_BlockedIP(t *testing.T) {
	rs := Rules{BlockedIPs: []string{"10.0.0.5"}}.Compile()

	d := descriptorForTest()
	d.ClientIP = "10.0.0.5"

	v := Evaluate(d, rs)
	if v.Allowed() {
		t.Fatal("expected deny")
	}
	if v.Rule != RuleIP {
		t.Errorf("unexpected rule: %s", v.Rule)
	}
	if !strings.Contains(v.Reason, "10.0.0.5") {
		t.Errorf("reason should name the blocked IP: %s", v.Reason)
	}
}

func TestEvaluate_EmptyHostDenies(t *testing.T) {
	d := descriptorForTest()
	d.Host = ""

	v := Evaluate(d, NewRuleSet())
	if v.Allowed() {
		t.Fatal("expected deny for empty host")
	}
	if v.Rule != RuleHost {
		t.Errorf("unexpected rule: %s", v.Rule)
	}
}

func TestEvaluate_BlockedDomain(t *testing.T) {
	rs := Rules{BlockedDomains: []string{"evil.com"}}.Compile()

	d := descriptorForTest()
	d.Host = "evil.com"

	v := Evaluate(d, rs)
	if v.Allowed() {
		t.Fatal("expected deny")
	}
	if v.Rule != RuleDomain {
		t.Errorf("unexpected rule: %s", v.Rule)
	}
}

func TestEvaluate_DomainMatchIsExact(t *testing.T) {
	rs := Rules{BlockedDomains: []string{"evil.com"}}.Compile()

	d := descriptorForTest()
	d.Host = "notevil.com"

	if v := Evaluate(d, rs); !v.Allowed() {
		t.Errorf("substring of blocked domain must not deny: %s", v.Reason)
	}

	d.Host = "Evil.com"
	if v := Evaluate(d, rs); !v.Allowed() {
		t.Errorf("domain match must be case-sensitive: %s", v.Reason)
	}
}

func TestEvaluate_GlobalPath(t *testing.T) {
	rs := Rules{BlockedPathsGlobal: []string{"/admin"}}.Compile()

	d := descriptorForTest()
	d.Path = "/admin"

	v := Evaluate(d, rs)
	if v.Allowed() {
		t.Fatal("expected deny")
	}
	if v.Rule != RulePath {
		t.Errorf("unexpected rule: %s", v.Rule)
	}

	d.Path = "/admin/sub"
	if v := Evaluate(d, rs); !v.Allowed() {
		t.Errorf("path match must be exact, not prefix: %s", v.Reason)
	}
}

func TestEvaluate_DomainSpecificPath(t *testing.T) {
	rs := Rules{
		BlockedPathsByDomain: map[string][]string{
			"a.com": {"/admin"},
		},
	}.Compile()

	d := descriptorForTest()
	d.Host = "a.com"
	d.Path = "/admin"

	v := Evaluate(d, rs)
	if v.Allowed() {
		t.Fatal("expected deny for a.com/admin")
	}
	if v.Rule != RuleDomainPath {
		t.Errorf("unexpected rule: %s", v.Rule)
	}
	if !strings.Contains(v.Reason, "a.com") {
		t.Errorf("reason should name the domain: %s", v.Reason)
	}

	// The same path on another domain is not covered.
	d.Host = "b.com"
	if v := Evaluate(d, rs); !v.Allowed() {
		t.Errorf("domain-specific rule must not apply to b.com: %s", v.Reason)
	}
}

func TestEvaluate_UserAgentExactMatch(t *testing.T) {
	rs := Rules{BlockedUserAgents: []string{"sqlmap/1.0"}}.Compile()

	d := descriptorForTest()
	d.UserAgent = "sqlmap/1.0"

	v := Evaluate(d, rs)
	if v.Allowed() {
		t.Fatal("expected deny")
	}
	if v.Rule != RuleUserAgent {
		t.Errorf("unexpected rule: %s", v.Rule)
	}

	// Substrings never fire; the match is exact.
	d.UserAgent = "sqlmap/1.0 (extra)"
	if v := Evaluate(d, rs); !v.Allowed() {
		t.Errorf("user-agent match must be exact: %s", v.Reason)
	}
}

func TestEvaluate_SuspiciousQueryPattern(t *testing.T) {
	rs := Rules{SuspiciousQueryPatterns: []string{"<script>"}}.Compile()

	d := descriptorForTest()
	d.Query = []QueryParam{{Name: "q", Values: []string{"x<script>alert(1)</script>"}}}

	v := Evaluate(d, rs)
	if v.Allowed() {
		t.Fatal("expected deny for suspicious query value")
	}
	if v.Rule != RuleQuery {
		t.Errorf("unexpected rule: %s", v.Rule)
	}
	if !strings.Contains(v.Reason, "<script>") || !strings.Contains(v.Reason, "'q'") {
		t.Errorf("reason should name pattern and parameter: %s", v.Reason)
	}
}

func TestEvaluate_QueryPatternFirstMatchWins(t *testing.T) {
	rs := Rules{SuspiciousQueryPatterns: []string{"aaa", "bbb"}}.Compile()

	d := descriptorForTest()
	d.Query = []QueryParam{
		{Name: "first", Values: []string{"has bbb"}},
		{Name: "second", Values: []string{"has aaa"}},
	}

	// Parameters iterate in insertion order; "first" matches pattern
	// "bbb" before "second" is ever looked at.
	v := Evaluate(d, rs)
	if v.Allowed() {
		t.Fatal("expected deny")
	}
	if !strings.Contains(v.Reason, "'first'") || !strings.Contains(v.Reason, "'bbb'") {
		t.Errorf("expected first parameter and its matching pattern reported: %s", v.Reason)
	}
}

func TestEvaluate_EmptyPatternMatchesEverything(t *testing.T) {
	rs := Rules{SuspiciousQueryPatterns: []string{""}}.Compile()

	d := descriptorForTest()
	d.Query = []QueryParam{{Name: "q", Values: []string{"anything"}}}

	if v := Evaluate(d, rs); v.Allowed() {
		t.Error("empty pattern must match every value; it is not special-cased")
	}
}

func TestEvaluate_IPWinsOverQueryPattern(t *testing.T) {
	rs := Rules{
		BlockedIPs:              []string{"10.0.0.5"},
		SuspiciousQueryPatterns: []string{"<script>"},
	}.Compile()

	d := descriptorForTest()
	d.ClientIP = "10.0.0.5"
	d.Query = []QueryParam{{Name: "q", Values: []string{"<script>"}}}

	v := Evaluate(d, rs)
	if v.Rule != RuleIP {
		t.Errorf("IP blocklist must win over query pattern, got rule %s", v.Rule)
	}
}

func TestEvaluate_DomainWinsOverPath(t *testing.T) {
	rs := Rules{
		BlockedDomains:     []string{"evil.com"},
		BlockedPathsGlobal: []string{"/admin"},
	}.Compile()

	d := descriptorForTest()
	d.Host = "evil.com"
	d.Path = "/admin"

	if v := Evaluate(d, rs); v.Rule != RuleDomain {
		t.Errorf("domain blocklist must win over path blocklist, got rule %s", v.Rule)
	}
}

func TestEvaluate_IsPure(t *testing.T) {
	rs := Rules{
		BlockedIPs:              []string{"10.0.0.5"},
		SuspiciousQueryPatterns: []string{"x"},
	}.Compile()

	d := descriptorForTest()
	d.Query = []QueryParam{{Name: "q", Values: []string{"x"}}}

	first := Evaluate(d, rs)
	second := Evaluate(d, rs)

	if first != second {
		t.Errorf("identical inputs produced different verdicts: %+v vs %+v", first, second)
	}
	if rs.Count() != 2 {
		t.Errorf("evaluation mutated the rule set: %d rules", rs.Count())
	}
}

func TestEvaluateGates_IPAndUserAgentOnly(t *testing.T) {
	rs := Rules{
		BlockedIPs:        []string{"10.0.0.5"},
		BlockedDomains:    []string{"evil.com"},
		BlockedUserAgents: []string{"badbot"},
	}.Compile()

	// Domain rules are not gates; only IP and user-agent apply.
	d := descriptorForTest()
	d.Host = "evil.com"
	if v := EvaluateGates(d, rs); !v.Allowed() {
		t.Errorf("gates must ignore domain rules: %s", v.Reason)
	}

	d = descriptorForTest()
	d.ClientIP = "10.0.0.5"
	if v := EvaluateGates(d, rs); v.Rule != RuleIP {
		t.Errorf("expected IP gate to fire, got %s", v.Rule)
	}

	d = descriptorForTest()
	d.UserAgent = "badbot"
	if v := EvaluateGates(d, rs); v.Rule != RuleUserAgent {
		t.Errorf("expected user-agent gate to fire, got %s", v.Rule)
	}
}
