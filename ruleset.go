package waf

// Rules holds the filtering criteria in their configuration-facing form.
// Field names match the keys of the configuration document; every field
// defaults to empty when absent, so an all-zero Rules permits everything.
type Rules struct {
	// BlockedIPs is a list of client addresses to reject.
	BlockedIPs []string `mapstructure:"blocked_ips" json:"blocked_ips"`

	// BlockedDomains is a list of Host header values to reject.
	// Matching is exact and case-sensitive.
	BlockedDomains []string `mapstructure:"blocked_domains" json:"blocked_domains"`

	// BlockedPathsGlobal is a list of paths rejected on every domain.
	BlockedPathsGlobal []string `mapstructure:"blocked_paths_for_all_domains" json:"blocked_paths_for_all_domains"`

	// BlockedPathsByDomain maps a host to paths rejected only for that host.
	BlockedPathsByDomain map[string][]string `mapstructure:"blocked_paths_for_specific_domain" json:"blocked_paths_for_specific_domain"`

	// SuspiciousQueryPatterns is an ordered list of substrings checked
	// against every query parameter value. Order determines which pattern
	// is reported when several would match.
	SuspiciousQueryPatterns []string `mapstructure:"suspicious_query_patterns" json:"suspicious_query_patterns"`

	// BlockedUserAgents is a list of User-Agent values to reject.
	// Matching is exact, not substring.
	BlockedUserAgents []string `mapstructure:"blocked_user_agents" json:"blocked_user_agents"`
}

// RuleSet is an immutable snapshot of filtering rules, built once at
// startup and shared read-only across all request handlers. It has no
// mutators and needs no locking.
type RuleSet struct {
	blockedIPs           map[string]struct{}
	blockedDomains       map[string]struct{}
	blockedPathsGlobal   map[string]struct{}
	blockedPathsByDomain map[string]map[string]struct{}
	blockedUserAgents    map[string]struct{}
	queryPatterns        []string
}

// RuleCounts reports the number of entries per rule category.
type RuleCounts struct {
	IPs           int `json:"blocked_ips"`
	Domains       int `json:"blocked_domains"`
	GlobalPaths   int `json:"blocked_paths_for_all_domains"`
	DomainPaths   int `json:"blocked_paths_for_specific_domain"`
	UserAgents    int `json:"blocked_user_agents"`
	QueryPatterns int `json:"suspicious_query_patterns"`
}

// NewRuleSet returns an empty RuleSet that permits every request.
func NewRuleSet() *RuleSet {
	return Rules{}.Compile()
}

// Compile builds the immutable RuleSet from the configuration-facing
// rule lists. Input slices are copied; later changes to r do not affect
// the returned set.
func (r Rules) Compile() *RuleSet {
	rs := &RuleSet{
		blockedIPs:           toSet(r.BlockedIPs),
		blockedDomains:       toSet(r.BlockedDomains),
		blockedPathsGlobal:   toSet(r.BlockedPathsGlobal),
		blockedPathsByDomain: make(map[string]map[string]struct{}, len(r.BlockedPathsByDomain)),
		blockedUserAgents:    toSet(r.BlockedUserAgents),
		queryPatterns:        append([]string(nil), r.SuspiciousQueryPatterns...),
	}

	for host, paths := range r.BlockedPathsByDomain {
		rs.blockedPathsByDomain[host] = toSet(paths)
	}

	return rs
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// BlockedIP reports whether ip is on the IP blocklist.
func (rs *RuleSet) BlockedIP(ip string) bool {
	_, ok := rs.blockedIPs[ip]
	return ok
}

// BlockedDomain reports whether host is on the domain blocklist.
// The match is exact: "evil.com" does not cover "notevil.com".
func (rs *RuleSet) BlockedDomain(host string) bool {
	_, ok := rs.blockedDomains[host]
	return ok
}

// BlockedPath reports whether path is blocked for every domain.
func (rs *RuleSet) BlockedPath(path string) bool {
	_, ok := rs.blockedPathsGlobal[path]
	return ok
}

// BlockedPathForDomain reports whether path is blocked for the given
// host specifically. Hosts without an entry have an empty path set.
func (rs *RuleSet) BlockedPathForDomain(host, path string) bool {
	paths, ok := rs.blockedPathsByDomain[host]
	if !ok {
		return false
	}
	_, ok = paths[path]
	return ok
}

// BlockedUserAgent reports whether ua exactly equals a blocklisted
// User-Agent value.
func (rs *RuleSet) BlockedUserAgent(ua string) bool {
	_, ok := rs.blockedUserAgents[ua]
	return ok
}

// QueryPatterns returns the configured suspicious query patterns in
// order. The returned slice must not be modified.
func (rs *RuleSet) QueryPatterns() []string {
	return rs.queryPatterns
}

// Counts returns per-category rule counts.
func (rs *RuleSet) Counts() RuleCounts {
	domainPaths := 0
	for _, paths := range rs.blockedPathsByDomain {
		domainPaths += len(paths)
	}

	return RuleCounts{
		IPs:           len(rs.blockedIPs),
		Domains:       len(rs.blockedDomains),
		GlobalPaths:   len(rs.blockedPathsGlobal),
		DomainPaths:   domainPaths,
		UserAgents:    len(rs.blockedUserAgents),
		QueryPatterns: len(rs.queryPatterns),
	}
}

// Count returns the total number of rules in the set.
func (rs *RuleSet) Count() int {
	c := rs.Counts()
	return c.IPs + c.Domains + c.GlobalPaths + c.DomainPaths + c.UserAgents + c.QueryPatterns
}
