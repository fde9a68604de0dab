package model

// ErrorResponse for consistent error handling
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func (e *ErrorDetail) Error() string {
	return e.Code + ": " + e.Message
}

// Decision is the outcome of an authorization check. Denials always carry a reason.
type Decision struct {
	Allowed     bool     `json:"allowed"`
	Permission  string   `json:"permission"`
	Reason      string   `json:"reason,omitempty"`
	Assignments []string `json:"assignments,omitempty"`
}

// AssignmentExplanation describes how one assignment affects a permission.
type AssignmentExplanation struct {
	AssignmentID string          `json:"assignment_id"`
	Role         string          `json:"role"`
	State        AssignmentState `json:"state"`
	CurrentValid bool            `json:"currently_valid"`
	Grants       bool            `json:"grants"`
	Source       string          `json:"source,omitempty"` // role, inherited:<role>, implied:<perm>, override
	Blocked      bool            `json:"blocked"`
	Reason       string          `json:"reason,omitempty"`
}

// Explanation answers "why was I allowed or denied".
type Explanation struct {
	UserID      string                  `json:"user_id"`
	Permission  string                  `json:"permission"`
	Known       bool                    `json:"known"`
	Active      bool                    `json:"active"`
	Granted     bool                    `json:"granted"`
	Reason      string                  `json:"reason,omitempty"`
	Assignments []AssignmentExplanation `json:"assignments"`
}
