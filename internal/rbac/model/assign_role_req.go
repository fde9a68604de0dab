package model

import "strings"

type AssignRoleReq struct {
	UserID  string        `json:"user_id" validate:"required,min=1,max=100"`
	Role    string        `json:"role" validate:"required,min=1,max=60"`
	Options AssignOptions `json:"options"`
}

func (r *AssignRoleReq) Validate() error {
	r.UserID = strings.TrimSpace(r.UserID)
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))

	if err := GetValidator().Struct(r); err != nil {
		return FormatValidationError(err)
	}
	if r.Options.ValidFrom != nil && r.Options.ValidUntil != nil && !r.Options.ValidUntil.After(*r.Options.ValidFrom) {
		return &ErrorDetail{Code: "bad_request", Message: "valid_until must be after valid_from"}
	}
	return nil
}

// TransitionReq drives revoke, suspend, reactivate, approve and reject.
type TransitionReq struct {
	UserID string `json:"user_id" validate:"required,min=1,max=100"`
	Role   string `json:"role" validate:"required,min=1,max=60"`
	Reason string `json:"reason" validate:"max=500"`
}

func (r *TransitionReq) Validate() error {
	r.UserID = strings.TrimSpace(r.UserID)
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
	r.Reason = strings.TrimSpace(r.Reason)

	if err := GetValidator().Struct(r); err != nil {
		return FormatValidationError(err)
	}
	return nil
}
