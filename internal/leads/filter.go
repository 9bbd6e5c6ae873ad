package leads

import (
	"strings"
	"time"
)

const (
	// Any matches every value of Source or Location.
	Any = "all"
	// Unassigned in Filter.AssignedTo matches leads without an owner.
	Unassigned = "unassigned"

	DefaultLimit = 50
	MaxLimit     = 500
)

// Filter selects leads for List and Count. Empty fields do not constrain.
type Filter struct {
	Search   string
	Source   string
	Location string

	// AssignedTo is a user id or Unassigned.
	AssignedTo string
	Status     Status

	CreatedFrom *time.Time
	CreatedTo   *time.Time

	// Limit and Offset apply to List only.
	Limit  int
	Offset int
}

// Normalize trims the filter and clamps paging.
func (f Filter) Normalize() Filter {
	f.Search = strings.TrimSpace(f.Search)
	f.Source = strings.TrimSpace(f.Source)
	f.Location = strings.TrimSpace(f.Location)
	f.AssignedTo = strings.TrimSpace(f.AssignedTo)
	if f.Source == Any {
		f.Source = ""
	}
	if f.Location == Any {
		f.Location = ""
	}
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Match is the in-memory form of the predicate the SQL store builds.
// Search is a case-insensitive substring match over name, email, phone and message.
// CreatedFrom is inclusive, CreatedTo exclusive.
func (f Filter) Match(l Lead) bool {
	if f.Source != "" && f.Source != Any && string(l.Source) != f.Source {
		return false
	}
	if f.Location != "" && f.Location != Any {
		if l.PreferredLocation == nil || *l.PreferredLocation != f.Location {
			return false
		}
	}
	switch f.AssignedTo {
	case "":
	case Unassigned:
		if l.AssignedTo != nil {
			return false
		}
	default:
		if !l.AssigneeIs(f.AssignedTo) {
			return false
		}
	}
	if f.Status != "" && l.Status != f.Status {
		return false
	}
	if f.CreatedFrom != nil && l.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && !l.CreatedAt.Before(*f.CreatedTo) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if !containsFold(l.Name, q) && !containsFoldPtr(l.Email, q) &&
			!containsFoldPtr(l.Phone, q) && !containsFoldPtr(l.Message, q) {
			return false
		}
	}
	return true
}

func containsFold(s, lowerQ string) bool {
	return strings.Contains(strings.ToLower(s), lowerQ)
}

func containsFoldPtr(s *string, lowerQ string) bool {
	return s != nil && containsFold(*s, lowerQ)
}
