package model

import (
	"net/netip"
	"strings"
	"time"
)

// Conditions holds the optional contextual constraints of a permission.
// Each kind is a distinct typed field; an unset field means the rule is not configured.
type Conditions struct {
	TimeWindow       *TimeWindow    `bson:"time_window,omitempty" json:"time_window,omitempty"`
	Weekdays         []time.Weekday `bson:"weekdays,omitempty" json:"weekdays,omitempty"`
	IPRules          *IPRules       `bson:"ip_rules,omitempty" json:"ip_rules,omitempty"`
	RequiresApproval bool           `bson:"requires_approval,omitempty" json:"requires_approval,omitempty"`
}

// TimeWindow allows access while the hour of day lies in [Start, End], inclusive.
type TimeWindow struct {
	Start int `bson:"start" json:"start" validate:"min=0,max=23"`
	End   int `bson:"end" json:"end" validate:"min=0,max=23"`
}

// Contains reports whether hour falls inside the window. A window whose end is
// before its start wraps around midnight.
func (w TimeWindow) Contains(hour int) bool {
	if w.Start <= w.End {
		return hour >= w.Start && hour <= w.End
	}
	return hour >= w.Start || hour <= w.End
}

// IPRules restricts the source address. Entries are single addresses or CIDR prefixes.
type IPRules struct {
	Allow []string `bson:"allow,omitempty" json:"allow,omitempty"`
	Block []string `bson:"block,omitempty" json:"block,omitempty"`
}

// Configured reports whether any rule is set.
func (c Conditions) Configured() bool {
	return c.TimeWindow != nil || len(c.Weekdays) > 0 || c.IPRules != nil || c.RequiresApproval
}

func (c Conditions) Validate() error {
	if c.TimeWindow != nil {
		if err := GetValidator().Struct(c.TimeWindow); err != nil {
			return ValidationErrorf("time window: %s", FormatValidationError(err).Message)
		}
	}
	for _, d := range c.Weekdays {
		if d < time.Sunday || d > time.Saturday {
			return ValidationErrorf("invalid weekday %d", d)
		}
	}
	if c.IPRules != nil {
		for _, entry := range append(append([]string{}, c.IPRules.Allow...), c.IPRules.Block...) {
			if _, err := parseIPEntry(entry); err != nil {
				return ValidationErrorf("invalid ip rule %q", entry)
			}
		}
	}
	return nil
}

// CheckContext carries request facts used by condition validation.
type CheckContext struct {
	Timestamp time.Time `json:"timestamp,omitempty"`
	SourceIP  string    `json:"source_ip,omitempty"`
	Approved  bool      `json:"approved,omitempty"`
}

// ConditionResult is the verdict of a condition check.
type ConditionResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// MatchIP reports whether ip matches any entry. Unparseable input never matches.
func MatchIP(entries []string, ip string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, entry := range entries {
		prefix, err := parseIPEntry(entry)
		if err != nil {
			continue
		}
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func parseIPEntry(entry string) (netip.Prefix, error) {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		p, err := netip.ParsePrefix(entry)
		if err != nil {
			return netip.Prefix{}, err
		}
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}
