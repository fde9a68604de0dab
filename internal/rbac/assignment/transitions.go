package assignment

import (
	"slices"

	"scopedrbac/internal/rbac/model"
)

// Event is a lifecycle operation on an assignment.
type Event string

const (
	EventApprove    Event = "approve"
	EventReject     Event = "reject"
	EventSuspend    Event = "suspend"
	EventReactivate Event = "reactivate"
	EventRevoke     Event = "revoke"
)

type transition struct {
	from   []model.AssignmentState
	action model.HistoryAction
	apply  func(a *model.Assignment)
}

// transitions is the lifecycle table:
//
//	pending   -approve->    active
//	pending   -reject->     rejected
//	active    -suspend->    suspended
//	suspended -reactivate-> active
//	pending|active|suspended -revoke-> revoked
//
// Expiry is handled by the sweep. Rejected, revoked and expired are terminal.
var transitions = map[Event]transition{
	EventApprove: {
		from:   []model.AssignmentState{model.StatePending},
		action: model.HistoryApproved,
		apply: func(a *model.Assignment) {
			a.ApprovalStatus = model.ApprovalApproved
		},
	},
	EventReject: {
		from:   []model.AssignmentState{model.StatePending},
		action: model.HistoryRejected,
		apply: func(a *model.Assignment) {
			a.ApprovalStatus = model.ApprovalRejected
			a.Active = false
			a.IsPrimary = false
		},
	},
	EventSuspend: {
		from:   []model.AssignmentState{model.StateActive},
		action: model.HistorySuspended,
		apply: func(a *model.Assignment) {
			// Suspended records are never primary.
			a.Active = false
			a.IsPrimary = false
		},
	},
	EventReactivate: {
		from:   []model.AssignmentState{model.StateSuspended},
		action: model.HistoryReactivated,
		apply: func(a *model.Assignment) {
			a.Active = true
		},
	},
	EventRevoke: {
		from:   []model.AssignmentState{model.StatePending, model.StateActive, model.StateSuspended},
		action: model.HistoryRevoked,
		apply: func(a *model.Assignment) {
			a.ApprovalStatus = model.ApprovalRevoked
			a.Active = false
			a.IsPrimary = false
		},
	},
}

// CanTransition reports whether ev is allowed from state.
func CanTransition(state model.AssignmentState, ev Event) bool {
	t, ok := transitions[ev]
	return ok && slices.Contains(t.from, state)
}
