package assignment

import (
	"fmt"
	"time"

	"salon-leads/internal/leads"
)

// CheckTransition validates moving a lead from its current state to status to.
//
// Rules:
//  1. Nothing leaves converted or lost.
//  2. Entering assigned requires an assignee already on the lead.
//  3. Entering new requires the lead to be unassigned.
//
// Any other move between non-terminal states is legal. Asking for the status the lead
// already has is ErrInvalidArgument: nothing would change, so nothing is recorded.
func CheckTransition(l leads.Lead, to leads.Status) error {
	if l.Status.Terminal() {
		return ErrIllegalTransition
	}
	if l.Status == to {
		return fmt.Errorf("%w: lead is already %s", ErrInvalidArgument, to)
	}
	switch to {
	case leads.StatusAssigned:
		if !l.IsAssigned() {
			return ErrIllegalTransition
		}
	case leads.StatusNew:
		if l.IsAssigned() {
			return ErrIllegalTransition
		}
	}
	return nil
}

// responseStamp returns the response time to record when l leaves new at now, or nil when
// it is not leaving new or a response time is already recorded.
func responseStamp(l leads.Lead, to leads.Status, nowUnix int64) *int64 {
	if l.Status != leads.StatusNew || to == leads.StatusNew || l.ResponseTimeSeconds != nil {
		return nil
	}
	secs := leads.ResponseSeconds(l.CreatedAt, time.Unix(nowUnix, 0))
	return &secs
}
