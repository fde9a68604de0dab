package model

import (
	"time"
)

// ApprovalStatus of an assignment.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalRevoked  ApprovalStatus = "revoked"
)

// AssignmentState is the lifecycle position derived from the stored flags.
type AssignmentState string

const (
	StatePending   AssignmentState = "pending"
	StateActive    AssignmentState = "active"
	StateSuspended AssignmentState = "suspended"
	StateRevoked   AssignmentState = "revoked"
	StateExpired   AssignmentState = "expired"
	StateRejected  AssignmentState = "rejected"
)

// HistoryAction names a lifecycle event recorded on an assignment.
type HistoryAction string

const (
	HistoryAssigned    HistoryAction = "assigned"
	HistoryModified    HistoryAction = "modified"
	HistoryApproved    HistoryAction = "approved"
	HistoryRejected    HistoryAction = "rejected"
	HistorySuspended   HistoryAction = "suspended"
	HistoryReactivated HistoryAction = "reactivated"
	HistoryRevoked     HistoryAction = "revoked"
	HistoryExpired     HistoryAction = "expired"
)

// Assignment links one user to one role with its own scope, validity and overrides.
type Assignment struct {
	ID         string `bson:"_id" json:"id"`
	UserID     string `bson:"user_id" json:"user_id"`
	Role       string `bson:"role" json:"role"`
	AssignedBy string `bson:"assigned_by" json:"assigned_by"`
	Reason     string `bson:"reason,omitempty" json:"reason,omitempty"`

	Scope ScopeRestriction `bson:"scope" json:"scope"`

	ValidFrom  time.Time  `bson:"valid_from" json:"valid_from"`
	ValidUntil *time.Time `bson:"valid_until,omitempty" json:"valid_until,omitempty"`

	Active         bool           `bson:"active" json:"active"`
	IsPrimary      bool           `bson:"is_primary" json:"is_primary"`
	IsTemporary    bool           `bson:"is_temporary" json:"is_temporary"`
	ApprovalStatus ApprovalStatus `bson:"approval_status" json:"approval_status"`
	ExpiredAt      *time.Time     `bson:"expired_at,omitempty" json:"expired_at,omitempty"`
	RevokedAt      *time.Time     `bson:"revoked_at,omitempty" json:"revoked_at,omitempty"`

	Delegation *Delegation `bson:"delegation,omitempty" json:"delegation,omitempty"`

	AdditionalPermissions []PermissionOverride `bson:"additional_permissions,omitempty" json:"additional_permissions,omitempty"`
	RestrictedPermissions []PermissionOverride `bson:"restricted_permissions,omitempty" json:"restricted_permissions,omitempty"`

	Usage   UsageStats     `bson:"usage" json:"usage"`
	History []HistoryEntry `bson:"history" json:"history"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// ScopeRestriction bounds the resources an assignment applies to.
// An empty set for a kind means unrestricted for that kind.
type ScopeRestriction struct {
	Regions  []string            `bson:"regions,omitempty" json:"regions,omitempty"`
	Projects []string            `bson:"projects,omitempty" json:"projects,omitempty"`
	Schemes  []string            `bson:"schemes,omitempty" json:"schemes,omitempty"`
	Custom   map[string][]string `bson:"custom,omitempty" json:"custom,omitempty"`
}

// IDs returns the restricted id set for a tag kind.
func (s ScopeRestriction) IDs(kind TagKind) []string {
	switch kind {
	case TagRegion:
		return s.Regions
	case TagProject:
		return s.Projects
	case TagScheme:
		return s.Schemes
	default:
		return s.Custom[string(kind)]
	}
}

// Count returns the total number of scope identifiers named by the restriction.
func (s ScopeRestriction) Count() int {
	n := len(s.Regions) + len(s.Projects) + len(s.Schemes)
	for _, ids := range s.Custom {
		n += len(ids)
	}
	return n
}

// Delegation records that an assignment was handed over from another holder.
type Delegation struct {
	OriginalHolder string     `bson:"original_holder" json:"original_holder"`
	OriginalRole   string     `bson:"original_role,omitempty" json:"original_role,omitempty"`
	ExpiresAt      *time.Time `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
}

// PermissionOverride is an assignment-level grant or restriction.
type PermissionOverride struct {
	Permission string     `bson:"permission" json:"permission"`
	Actor      string     `bson:"actor" json:"actor"`
	Reason     string     `bson:"reason,omitempty" json:"reason,omitempty"`
	CreatedAt  time.Time  `bson:"created_at" json:"created_at"`
	ExpiresAt  *time.Time `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
}

// InEffect reports whether the override has not expired at now.
func (o PermissionOverride) InEffect(now time.Time) bool {
	return o.ExpiresAt == nil || now.Before(*o.ExpiresAt)
}

type UsageStats struct {
	LastUsedAt *time.Time `bson:"last_used_at,omitempty" json:"last_used_at,omitempty"`
	Count      int64      `bson:"count" json:"count"`
}

// HistoryEntry is one state-transition event on an assignment.
type HistoryEntry struct {
	Action    HistoryAction     `bson:"action" json:"action"`
	Actor     string            `bson:"actor" json:"actor"`
	Timestamp time.Time         `bson:"timestamp" json:"timestamp"`
	Details   map[string]string `bson:"details,omitempty" json:"details,omitempty"`
}

// State derives the lifecycle state from the stored flags.
func (a *Assignment) State() AssignmentState {
	switch a.ApprovalStatus {
	case ApprovalRejected:
		return StateRejected
	case ApprovalRevoked:
		return StateRevoked
	case ApprovalPending:
		return StatePending
	}
	if a.ExpiredAt != nil {
		return StateExpired
	}
	if !a.Active {
		return StateSuspended
	}
	return StateActive
}

// IsCurrentlyValid holds iff active, approved and now lies in [ValidFrom, ValidUntil).
// An expired delegation also ends validity.
func (a *Assignment) IsCurrentlyValid(now time.Time) bool {
	if !a.Active || a.ApprovalStatus != ApprovalApproved {
		return false
	}
	if now.Before(a.ValidFrom) {
		return false
	}
	if a.ValidUntil != nil && !now.Before(*a.ValidUntil) {
		return false
	}
	if a.Delegation != nil && a.Delegation.ExpiresAt != nil && !now.Before(*a.Delegation.ExpiresAt) {
		return false
	}
	return true
}

// HasLapsed reports whether the validity window or the delegation has ended at now.
func (a *Assignment) HasLapsed(now time.Time) bool {
	if a.ValidUntil != nil && !now.Before(*a.ValidUntil) {
		return true
	}
	return a.Delegation != nil && a.Delegation.ExpiresAt != nil && !now.Before(*a.Delegation.ExpiresAt)
}

// AssignOptions are the optional parameters of an assignment.
type AssignOptions struct {
	Reason      string           `json:"reason,omitempty" validate:"max=500"`
	Scope       ScopeRestriction `json:"scope"`
	ValidFrom   *time.Time       `json:"valid_from,omitempty"`
	ValidUntil  *time.Time       `json:"valid_until,omitempty"`
	IsPrimary   bool             `json:"is_primary,omitempty"`
	IsTemporary bool             `json:"is_temporary,omitempty"`
	Delegation  *Delegation      `json:"delegation,omitempty"`
}

func (o *AssignOptions) Validate() error {
	if err := GetValidator().Struct(o); err != nil {
		return ValidationErrorf("%s", FormatValidationError(err).Message)
	}
	if o.ValidFrom != nil && o.ValidUntil != nil && !o.ValidUntil.After(*o.ValidFrom) {
		return ValidationErrorf("valid_until must be after valid_from")
	}
	return nil
}
