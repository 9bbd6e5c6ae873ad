package leads

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Source is the channel a lead arrived through. Display labels are a presentation concern.
type Source string

const (
	SourceWebsiteForm    Source = "website_form"
	SourceGoogleBusiness Source = "google_business"
	SourceFacebookLead   Source = "facebook_lead"
	SourceInstagramLead  Source = "instagram_lead"
	SourcePhoneCall      Source = "phone_call"
	SourceWalkIn         Source = "walk_in"
	SourceReferral       Source = "referral"
	SourceOther          Source = "other"
)

var Sources = []Source{
	SourceWebsiteForm, SourceGoogleBusiness, SourceFacebookLead, SourceInstagramLead,
	SourcePhoneCall, SourceWalkIn, SourceReferral, SourceOther,
}

func ParseSource(v string) (Source, error) {
	for _, s := range Sources {
		if string(s) == v {
			return s, nil
		}
	}
	return "", fmt.Errorf("leads: unknown source %q", v)
}

type Status string

const (
	StatusNew                Status = "new"
	StatusContacted          Status = "contacted"
	StatusAssigned           Status = "assigned"
	StatusConsultationBooked Status = "consultation_booked"
	StatusConverted          Status = "converted"
	StatusLost               Status = "lost"
)

var Statuses = []Status{
	StatusNew, StatusContacted, StatusAssigned, StatusConsultationBooked, StatusConverted, StatusLost,
}

func ParseStatus(v string) (Status, error) {
	for _, s := range Statuses {
		if string(s) == v {
			return s, nil
		}
	}
	return "", fmt.Errorf("leads: unknown status %q", v)
}

// Terminal statuses admit no further transitions.
func (s Status) Terminal() bool {
	return s == StatusConverted || s == StatusLost
}

// Lead is one inbound inquiry. The lead row is the single source of truth for its state.
//
// Invariants:
// - Status new implies AssignedTo is nil; status assigned implies it is set.
// - AssignedTo, AssignedBy and AssignedAt are written together.
// - ResponseTimeSeconds and FirstServiceRevenue are written at most once.
type Lead struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Email   *string `json:"email,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Message *string `json:"message,omitempty"`
	Source  Source  `json:"source"`
	Status  Status  `json:"status"`

	AssignedTo *string    `json:"assigned_to,omitempty"`
	AssignedBy *string    `json:"assigned_by,omitempty"`
	AssignedAt *time.Time `json:"assigned_at,omitempty"`

	PreferredLocation *string `json:"preferred_location,omitempty"`
	PreferredService  *string `json:"preferred_service,omitempty"`

	ResponseTimeSeconds *int64              `json:"response_time_seconds,omitempty"`
	FirstServiceRevenue decimal.NullDecimal `json:"first_service_revenue"`

	// ActivityCount is the number of activity entries recorded for the lead.
	ActivityCount int64 `json:"activity_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAssigned reports whether the lead currently has an owner.
func (l Lead) IsAssigned() bool { return l.AssignedTo != nil }

// AssigneeIs reports whether the lead is currently owned by userID.
func (l Lead) AssigneeIs(userID string) bool {
	return l.AssignedTo != nil && *l.AssignedTo == userID
}

// NewLead is the intake payload for a lead.
type NewLead struct {
	Name              string  `json:"name" validate:"max=200"`
	Email             *string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Phone             *string `json:"phone,omitempty" validate:"omitempty,max=40"`
	Message           *string `json:"message,omitempty" validate:"omitempty,max=4000"`
	Source            string  `json:"source" validate:"required"`
	PreferredLocation *string `json:"preferred_location,omitempty" validate:"omitempty,max=120"`
	PreferredService  *string `json:"preferred_service,omitempty" validate:"omitempty,max=120"`
}

// Patch lists the fields a conditional update may write. Nil fields are left untouched.
type Patch struct {
	Status *Status
	// LeaveNew is applied against the stored row and is ignored when Status is set.
	LeaveNew            *NewExit
	AssignedTo          *string
	AssignedBy          *string
	AssignedAt          *time.Time
	ResponseTimeSeconds *int64
	FirstServiceRevenue *decimal.Decimal
	UpdatedAt           time.Time
}

// NewExit moves a lead that is still new, as stored, to To and stamps its response time
// at At when none is recorded. A lead in any other status keeps it.
type NewExit struct {
	To Status
	At time.Time
}

// ResponseSeconds is the whole seconds from created to at, never negative.
func ResponseSeconds(created, at time.Time) int64 {
	secs := at.Unix() - created.Unix()
	if secs < 0 {
		return 0
	}
	return secs
}

// Apply returns a copy of l with the patch written over it.
func (p Patch) Apply(l Lead) Lead {
	if p.Status != nil {
		l.Status = *p.Status
	} else if p.LeaveNew != nil && l.Status == StatusNew {
		l.Status = p.LeaveNew.To
		if l.ResponseTimeSeconds == nil && p.ResponseTimeSeconds == nil {
			secs := ResponseSeconds(l.CreatedAt, p.LeaveNew.At)
			l.ResponseTimeSeconds = &secs
		}
	}
	if p.AssignedTo != nil {
		v := *p.AssignedTo
		l.AssignedTo = &v
	}
	if p.AssignedBy != nil {
		v := *p.AssignedBy
		l.AssignedBy = &v
	}
	if p.AssignedAt != nil {
		v := p.AssignedAt.UTC()
		l.AssignedAt = &v
	}
	if p.ResponseTimeSeconds != nil {
		v := *p.ResponseTimeSeconds
		l.ResponseTimeSeconds = &v
	}
	if p.FirstServiceRevenue != nil {
		l.FirstServiceRevenue = decimal.NewNullDecimal(*p.FirstServiceRevenue)
	}
	l.UpdatedAt = p.UpdatedAt.UTC()
	return l
}

// Expectation is the compare half of a conditional update. All set fields must hold
// against the stored row; the zero value is unconditional.
type Expectation struct {
	Status       *Status
	Unassigned   bool
	Assignee     *string
	NotTerminal  bool
	RevenueUnset bool
}

// Holds reports whether the expectation matches l.
func (e Expectation) Holds(l Lead) bool {
	if e.Status != nil && l.Status != *e.Status {
		return false
	}
	if e.Unassigned && l.AssignedTo != nil {
		return false
	}
	if e.Assignee != nil && !l.AssigneeIs(*e.Assignee) {
		return false
	}
	if e.NotTerminal && l.Status.Terminal() {
		return false
	}
	if e.RevenueUnset && l.FirstServiceRevenue.Valid {
		return false
	}
	return true
}
