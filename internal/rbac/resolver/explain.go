package resolver

import (
	"context"
	"errors"

	"scopedrbac/internal/rbac/model"
)

// Explain reports, per assignment the user holds in any state, whether it
// grants the permission and from where. Unlike Check it surfaces storage errors.
func (r *Resolver) Explain(ctx context.Context, userID, name string) (*model.Explanation, error) {
	out := &model.Explanation{UserID: userID, Permission: name, Assignments: []model.AssignmentExplanation{}}

	p, err := r.perms.Lookup(ctx, name)
	switch {
	case errors.Is(err, model.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		out.Known = true
		out.Active = p.Active
		out.Permission = p.Name
	}

	assignments, err := r.assignments.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := r.now()
	for _, a := range assignments {
		ae := model.AssignmentExplanation{
			AssignmentID: a.ID,
			Role:         a.Role,
			State:        a.State(),
			CurrentValid: a.IsCurrentlyValid(now),
		}
		grants, restricted, err := r.assignmentGrants(ctx, a, now)
		if err != nil {
			return nil, err
		}
		if src, ok := grants[out.Permission]; ok {
			ae.Grants = true
			ae.Source = src
		}
		ae.Blocked = restricted[out.Permission]
		switch {
		case ae.Blocked:
			ae.Reason = ReasonRestricted
		case !ae.CurrentValid:
			ae.Reason = "assignment not currently valid"
		case !ae.Grants:
			ae.Reason = ReasonNotGranted
		}
		out.Assignments = append(out.Assignments, ae)
	}

	d := r.Check(ctx, userID, out.Permission, model.CheckContext{})
	out.Granted = d.Allowed
	out.Reason = d.Reason
	return out, nil
}
