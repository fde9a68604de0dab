package model

import (
	"strings"
	"time"
)

type CheckPermissionReq struct {
	UserID     string        `json:"user_id" validate:"omitempty,max=100"`
	Permission string        `json:"permission" validate:"required,min=3,max=120"`
	Resource   []ResourceTag `json:"resource,omitempty" validate:"omitempty,max=50,dive"`
	SourceIP   string        `json:"source_ip,omitempty" validate:"omitempty,ip"`
	Timestamp  *time.Time    `json:"timestamp,omitempty"`
	Approved   bool          `json:"approved,omitempty"`
}

func (r *CheckPermissionReq) Validate() error {
	r.UserID = strings.TrimSpace(r.UserID)
	r.Permission = strings.ToLower(strings.TrimSpace(r.Permission))
	r.SourceIP = strings.TrimSpace(r.SourceIP)
	for i := range r.Resource {
		r.Resource[i].Kind = TagKind(strings.ToLower(strings.TrimSpace(string(r.Resource[i].Kind))))
		r.Resource[i].ID = strings.TrimSpace(r.Resource[i].ID)
	}

	if err := GetValidator().Struct(r); err != nil {
		return FormatValidationError(err)
	}
	return nil
}

// CheckContext builds the condition context for the request.
func (r *CheckPermissionReq) CheckContext() CheckContext {
	cc := CheckContext{SourceIP: r.SourceIP, Approved: r.Approved}
	if r.Timestamp != nil {
		cc.Timestamp = *r.Timestamp
	}
	return cc
}

type CheckPermissionResp struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// ResourceAccessReq asks whether any of a user's assignments covers the resource.
type ResourceAccessReq struct {
	UserID   string        `json:"user_id" validate:"required,max=100"`
	Resource []ResourceTag `json:"resource" validate:"max=50,dive"`
}

func (r *ResourceAccessReq) Validate() error {
	r.UserID = strings.TrimSpace(r.UserID)
	if err := GetValidator().Struct(r); err != nil {
		return FormatValidationError(err)
	}
	return nil
}
