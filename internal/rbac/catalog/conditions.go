package catalog

import (
	"fmt"
	"slices"

	"scopedrbac/internal/rbac/model"
)

// Reasons reported by ValidateConditions.
const (
	ReasonOutsideHours    = "outside allowed hours"
	ReasonWeekday         = "not an allowed weekday"
	ReasonIPBlocked       = "source ip is blocked"
	ReasonIPNotAllowed    = "source ip is not allowed"
	ReasonApprovalMissing = "approval required"
)

// ValidateConditions evaluates the permission's conditions against cc. Rules run
// in a fixed order: hour window, weekday, ip block list, ip allow list, approval.
// The first failing rule decides. A zero timestamp means now.
func (c *Catalog) ValidateConditions(p *model.Permission, cc model.CheckContext) model.ConditionResult {
	cond := p.Conditions
	if !cond.Configured() {
		return model.ConditionResult{Valid: true}
	}

	ts := cc.Timestamp
	if ts.IsZero() {
		ts = c.now()
	}

	if w := cond.TimeWindow; w != nil && !w.Contains(ts.Hour()) {
		return model.ConditionResult{
			Reason: fmt.Sprintf("%s (%02d:00-%02d:59)", ReasonOutsideHours, w.Start, w.End),
		}
	}
	if len(cond.Weekdays) > 0 && !slices.Contains(cond.Weekdays, ts.Weekday()) {
		return model.ConditionResult{Reason: ReasonWeekday}
	}
	if rules := cond.IPRules; rules != nil {
		if len(rules.Block) > 0 && model.MatchIP(rules.Block, cc.SourceIP) {
			return model.ConditionResult{Reason: ReasonIPBlocked}
		}
		if len(rules.Allow) > 0 && !model.MatchIP(rules.Allow, cc.SourceIP) {
			return model.ConditionResult{Reason: ReasonIPNotAllowed}
		}
	}
	if cond.RequiresApproval && !cc.Approved {
		return model.ConditionResult{Reason: ReasonApprovalMissing}
	}
	return model.ConditionResult{Valid: true}
}
