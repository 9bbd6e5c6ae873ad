package activity

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entry is an immutable, append-only record of one action taken on a lead.
//
// Invariants:
// - Entries are never updated, deleted or reordered.
// - Each entry is owned by exactly one lead.
// - Entries describe history only; the lead row is the source of truth for state.
type Entry struct {
	ID     string `json:"id"`
	LeadID string `json:"lead_id"`

	// Seq is the per-lead append position, starting at 1.
	Seq    int64   `json:"seq"`
	Action Action  `json:"action"`
	Notes  *string `json:"notes,omitempty"`

	// PerformerID is nil for system-generated entries (automatic routing).
	PerformerID *string `json:"performer_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type Action string

const (
	ActionClaimed         Action = "claimed"
	ActionAssigned        Action = "assigned"
	ActionNoteAdded       Action = "note_added"
	ActionRevenueRecorded Action = "revenue_recorded"

	statusChangedPrefix = "status_changed_to_"
)

// StatusChanged builds the action tag for a transition into status.
func StatusChanged(status string) Action {
	return Action(statusChangedPrefix + status)
}

// ChangedTo returns the target status of a status_changed_to_* action.
func (a Action) ChangedTo() (string, bool) {
	s, ok := strings.CutPrefix(string(a), statusChangedPrefix)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// NewEntry builds an entry with a fresh id. An empty performerID marks a system entry;
// an empty notes string is stored as nil.
func NewEntry(leadID string, action Action, notes, performerID string, now time.Time) Entry {
	e := Entry{
		ID:        uuid.NewString(),
		LeadID:    leadID,
		Action:    action,
		CreatedAt: now.UTC(),
	}
	if notes != "" {
		e.Notes = &notes
	}
	if performerID != "" {
		e.PerformerID = &performerID
	}
	return e
}

// Sort orders entries by CreatedAt, then Seq.
func Sort(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].Seq < entries[j].Seq
	})
}
