package detection

import (
	"net/netip"
)

// Rule names, also used as flag keys and metric labels
const (
	RuleRateLimit         = "rate_limit"
	RuleBurstActivity     = "burst_activity"
	RuleNewAccountExtreme = "new_account_extreme"
	RuleDuplicateText     = "duplicate_text"
	RuleLowQuality        = "low_quality"
	RuleVPNIP             = "vpn_ip"
	RuleSameDevice        = "same_device"
)

// Facts are the precomputed inputs a rule evaluation needs. They are
// assembled by the service; predicates never touch storage.
type Facts struct {
	AccountAgeDays       int
	Rating               int
	DuplicateScore       float64
	WordCount            int
	RecentUserReviews    int // user's reviews in the trailing 5 minute window
	RecentProductReviews int // product's reviews in the trailing 10 minute window
	IPAddress            string
	DeviceShared         bool // fingerprint already seen on a different user
}

// Rule is one named threshold check with its score weight
type Rule struct {
	Name      string
	Weight    float64
	Reason    string
	Triggered func(f Facts) bool
}

// RuleVerdict is the result of evaluating the full rule table
type RuleVerdict struct {
	Flags         map[string]bool
	WeightedScore float64
	Reasons       []string
}

// IsFake reports whether any rule triggered
func (v RuleVerdict) IsFake() bool {
	for _, triggered := range v.Flags {
		if triggered {
			return true
		}
	}
	return false
}

// IPChecker decides whether an address belongs to an anonymizing network.
// The default is a static prefix list; a reputation lookup can replace it.
type IPChecker interface {
	IsAnonymizing(ip string) bool
}

// prefixIPChecker matches against a fixed set of CIDR prefixes
type prefixIPChecker struct {
	prefixes []netip.Prefix
}

// Reserved and known anonymizer ranges. Placeholder until a real
// reputation feed is wired in.
var defaultVPNPrefixes = []string{
	"10.0.0.0/8",
	"100.64.0.0/10",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"185.220.100.0/22",
	"198.98.48.0/20",
}

// NewPrefixIPChecker builds the static anonymizer check from CIDR strings.
// Invalid prefixes are skipped.
func NewPrefixIPChecker(cidrs []string) IPChecker {
	checker := &prefixIPChecker{}
	for _, cidr := range cidrs {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			continue
		}
		checker.prefixes = append(checker.prefixes, prefix)
	}
	return checker
}

func (c *prefixIPChecker) IsAnonymizing(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	for _, prefix := range c.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// DefaultRules returns the rule table. Adding a rule means appending an
// entry here; the evaluation loop never changes.
func DefaultRules(ipChecker IPChecker, duplicateThreshold float64) []Rule {
	return []Rule{
		{
			Name:   RuleRateLimit,
			Weight: 0.2,
			Reason: "more than 3 reviews by this user in 5 minutes",
			Triggered: func(f Facts) bool {
				return f.RecentUserReviews > 3
			},
		},
		{
			Name:   RuleBurstActivity,
			Weight: 0.3,
			Reason: "more than 10 reviews on this product in 10 minutes",
			Triggered: func(f Facts) bool {
				return f.RecentProductReviews > 10
			},
		},
		{
			Name:   RuleNewAccountExtreme,
			Weight: 0.2,
			Reason: "account younger than 7 days with an extreme rating",
			Triggered: func(f Facts) bool {
				return f.AccountAgeDays < 7 && (f.Rating == 1 || f.Rating == 5)
			},
		},
		{
			Name:   RuleDuplicateText,
			Weight: 0.4,
			Reason: "text nearly identical to an earlier review",
			Triggered: func(f Facts) bool {
				return f.DuplicateScore > duplicateThreshold
			},
		},
		{
			Name:   RuleLowQuality,
			Weight: 0.2,
			Reason: "fewer than 3 words",
			Triggered: func(f Facts) bool {
				return f.WordCount < 3
			},
		},
		{
			Name:   RuleVPNIP,
			Weight: 0.2,
			Reason: "submitted from an anonymizing or reserved address",
			Triggered: func(f Facts) bool {
				return ipChecker.IsAnonymizing(f.IPAddress)
			},
		},
		{
			Name:   RuleSameDevice,
			Weight: 0.2,
			Reason: "device fingerprint already used by a different user",
			Triggered: func(f Facts) bool {
				return f.DeviceShared
			},
		},
	}
}

// Engine evaluates the rule table. Stateless and pure: identical facts
// always produce identical verdicts.
type Engine struct {
	rules []Rule
}

// NewEngine creates a rule engine with the default rule table and the
// configured duplicate_text threshold
func NewEngine(duplicateThreshold float64) *Engine {
	return NewEngineWithRules(DefaultRules(NewPrefixIPChecker(defaultVPNPrefixes), duplicateThreshold))
}

// NewEngineWithRules creates a rule engine with a custom rule table
func NewEngineWithRules(rules []Rule) *Engine {
	return &Engine{rules: rules}
}

// Evaluate runs every rule against the facts. The weighted score is the
// plain sum of triggered weights and is deliberately not capped here.
func (e *Engine) Evaluate(f Facts) RuleVerdict {
	verdict := RuleVerdict{
		Flags:   make(map[string]bool, len(e.rules)),
		Reasons: make([]string, 0),
	}

	for _, rule := range e.rules {
		triggered := rule.Triggered(f)
		verdict.Flags[rule.Name] = triggered
		if triggered {
			verdict.WeightedScore += rule.Weight
			verdict.Reasons = append(verdict.Reasons, rule.Name+": "+rule.Reason)
		}
	}

	return verdict
}
