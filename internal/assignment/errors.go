package assignment

import (
	"errors"

	"salon-leads/internal/leads"
)

var (
	ErrAlreadyClaimed         = errors.New("assignment: lead already claimed")
	ErrIllegalTransition      = errors.New("assignment: illegal status transition")
	ErrEmptyNote              = errors.New("assignment: note is empty")
	ErrInvalidArgument        = errors.New("assignment: invalid argument")
	ErrRevenueAlreadyRecorded = errors.New("assignment: first service revenue already recorded")
)

// Rejection is a definitive refusal of an operation together with the lead's state at the
// moment it was refused. Callers show Current instead of retrying.
type Rejection struct {
	Kind    error
	Current leads.Lead
}

func (r *Rejection) Error() string { return r.Kind.Error() }

func (r *Rejection) Unwrap() error { return r.Kind }

func reject(kind error, current leads.Lead) error {
	return &Rejection{Kind: kind, Current: current}
}

// CurrentLead returns the lead state carried by a rejection, if any.
func CurrentLead(err error) (leads.Lead, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Current, true
	}
	var ce *leads.ConflictError
	if errors.As(err, &ce) {
		return ce.Current, true
	}
	return leads.Lead{}, false
}

// IsRejection reports whether err is an expected outcome of concurrent use rather than a failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrAlreadyClaimed) ||
		errors.Is(err, ErrIllegalTransition) ||
		errors.Is(err, ErrEmptyNote) ||
		errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrRevenueAlreadyRecorded) ||
		errors.Is(err, leads.ErrConflict) ||
		errors.Is(err, leads.ErrNotFound)
}
