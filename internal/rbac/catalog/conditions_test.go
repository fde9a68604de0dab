package catalog

import (
	"testing"
	"time"

	"scopedrbac/internal/rbac/model"

	"github.com/stretchr/testify/assert"
)

func at(hour int, day time.Weekday) time.Time {
	// 2024-01-07 is a Sunday.
	return time.Date(2024, 1, 7+int(day), hour, 30, 0, 0, time.UTC)
}

func TestValidateConditions(t *testing.T) {
	c := New(nil, Options{Clock: func() time.Time { return at(10, time.Monday) }})

	officeHours := &model.Permission{Name: "reports.export.global", Conditions: model.Conditions{
		TimeWindow: &model.TimeWindow{Start: 9, End: 17},
	}}
	night := &model.Permission{Name: "ops.deploy.global", Conditions: model.Conditions{
		TimeWindow: &model.TimeWindow{Start: 22, End: 2},
	}}
	weekdays := &model.Permission{Name: "pay.run.global", Conditions: model.Conditions{
		Weekdays: []time.Weekday{time.Monday, time.Tuesday},
	}}
	ipRules := &model.Permission{Name: "admin.console.global", Conditions: model.Conditions{
		IPRules: &model.IPRules{Allow: []string{"10.0.0.0/8"}, Block: []string{"10.0.0.13"}},
	}}
	approval := &model.Permission{Name: "funds.release.global", Conditions: model.Conditions{RequiresApproval: true}}
	ordered := &model.Permission{Name: "x.y.global", Conditions: model.Conditions{
		TimeWindow: &model.TimeWindow{Start: 9, End: 17},
		IPRules:    &model.IPRules{Block: []string{"1.2.3.4"}},
	}}

	tests := []struct {
		name   string
		perm   *model.Permission
		ctx    model.CheckContext
		valid  bool
		reason string
	}{
		{"no conditions", &model.Permission{}, model.CheckContext{}, true, ""},
		{"inside hours", officeHours, model.CheckContext{Timestamp: at(10, time.Monday)}, true, ""},
		{"end hour inclusive", officeHours, model.CheckContext{Timestamp: at(17, time.Monday)}, true, ""},
		{"outside hours", officeHours, model.CheckContext{Timestamp: at(22, time.Monday)}, false, ReasonOutsideHours},
		{"zero timestamp uses clock", officeHours, model.CheckContext{}, true, ""},
		{"wrapping window late", night, model.CheckContext{Timestamp: at(23, time.Monday)}, true, ""},
		{"wrapping window early", night, model.CheckContext{Timestamp: at(1, time.Monday)}, true, ""},
		{"wrapping window midday", night, model.CheckContext{Timestamp: at(12, time.Monday)}, false, ReasonOutsideHours},
		{"allowed weekday", weekdays, model.CheckContext{Timestamp: at(10, time.Tuesday)}, true, ""},
		{"disallowed weekday", weekdays, model.CheckContext{Timestamp: at(10, time.Sunday)}, false, ReasonWeekday},
		{"allowed ip", ipRules, model.CheckContext{SourceIP: "10.1.2.3"}, true, ""},
		{"block wins over allow", ipRules, model.CheckContext{SourceIP: "10.0.0.13"}, false, ReasonIPBlocked},
		{"not in allow list", ipRules, model.CheckContext{SourceIP: "192.168.1.1"}, false, ReasonIPNotAllowed},
		{"missing ip with allow list", ipRules, model.CheckContext{}, false, ReasonIPNotAllowed},
		{"ipv4 mapped ipv6", ipRules, model.CheckContext{SourceIP: "::ffff:10.1.2.3"}, true, ""},
		{"approval missing", approval, model.CheckContext{}, false, ReasonApprovalMissing},
		{"approval given", approval, model.CheckContext{Approved: true}, true, ""},
		{"hour checked before ip", ordered, model.CheckContext{Timestamp: at(22, time.Monday), SourceIP: "1.2.3.4"}, false, ReasonOutsideHours},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.ValidateConditions(tt.perm, tt.ctx)
			assert.Equal(t, tt.valid, res.Valid)
			if tt.reason != "" {
				assert.Contains(t, res.Reason, tt.reason)
			}
		})
	}
}
