package routing

// Decision is the outcome of offering one lead to automatic routing.
//
// Skips are normal: the lead stays in the unassigned bucket for staff to claim.
type Decision struct {
	LeadID string `json:"lead_id"`

	Action     Action `json:"action"`
	AssigneeID string `json:"assignee_id,omitempty"`

	// Reason is intended for logs and the routing response body.
	Reason string `json:"reason,omitempty"`
}

type Action string

const (
	ActionAssign Action = "assign"
	ActionSkip   Action = "skip"
)

const (
	ReasonSelected        = "selected"
	ReasonAlreadyAssigned = "already_assigned"
	ReasonTerminal        = "terminal"
	ReasonNoEligibleStaff = "no_eligible_staff"
	ReasonConflict        = "conflict"
)
