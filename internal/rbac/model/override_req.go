package model

import (
	"strings"
	"time"
)

// OverrideReq adds an assignment-level grant or restriction.
type OverrideReq struct {
	Permission string     `json:"permission" validate:"required,min=3,max=120"`
	Reason     string     `json:"reason" validate:"max=500"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

func (r *OverrideReq) Validate() error {
	r.Permission = strings.ToLower(strings.TrimSpace(r.Permission))
	r.Reason = strings.TrimSpace(r.Reason)

	if err := GetValidator().Struct(r); err != nil {
		return FormatValidationError(err)
	}
	return nil
}
