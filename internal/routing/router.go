package routing

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"salon-leads/internal/assignment"
	"salon-leads/internal/leads"
	"salon-leads/pkg/logger"
)

// LeadReader reads the lead being routed.
type LeadReader interface {
	Get(ctx context.Context, id string) (leads.Lead, error)
}

// Assigner applies the routing decision. It must refuse leads that already have an owner.
type Assigner interface {
	AssignUnclaimed(ctx context.Context, leadID, assignerID, assigneeID string) (leads.Lead, error)
}

// Router proposes an assignee for a lead and applies it through the assignment engine.
//
// Order:
//  1. Skip leads that are terminal or already assigned.
//  2. Filter staff by the lead's preferred location and service.
//  3. Weighted random selection among the eligible staff.
//
// The assignment is recorded as a system action (no performer).
type Router struct {
	Directory Directory
	Leads     LeadReader
	Assigner  Assigner

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRouter builds a router. rng may be nil; tests pass a seeded source.
func NewRouter(dir Directory, reader LeadReader, assigner Assigner, rng *rand.Rand) *Router {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Router{Directory: dir, Leads: reader, Assigner: assigner, rng: rng}
}

// Pick chooses an eligible staff member for l without side effects.
func (r *Router) Pick(ctx context.Context, l leads.Lead) (Staff, bool, error) {
	if r.Directory == nil {
		return Staff{}, false, errors.New("routing: staff directory not configured")
	}
	all, err := r.Directory.Staff(ctx)
	if err != nil {
		return Staff{}, false, err
	}
	eligible := make([]Staff, 0, len(all))
	for _, s := range all {
		if s.serves(l.PreferredLocation, l.PreferredService) {
			eligible = append(eligible, s)
		}
	}
	s, ok := r.pickWeighted(eligible)
	return s, ok, nil
}

func (r *Router) pickWeighted(staff []Staff) (Staff, bool) {
	var total int
	for _, s := range staff {
		if s.Weight <= 0 {
			continue
		}
		total += s.Weight
	}
	if total <= 0 {
		return Staff{}, false
	}

	// *rand.Rand is not safe for concurrent use
	r.mu.Lock()
	n := r.rng.Intn(total) // 0..total-1
	r.mu.Unlock()

	var acc int
	for _, s := range staff {
		if s.Weight <= 0 {
			continue
		}
		acc += s.Weight
		if n < acc {
			return s, true
		}
	}
	return Staff{}, false
}

// Route offers leadID to automatic assignment.
func (r *Router) Route(ctx context.Context, leadID string) (Decision, error) {
	if r.Leads == nil || r.Assigner == nil {
		return Decision{}, errors.New("routing: router not configured")
	}
	l, err := r.Leads.Get(ctx, leadID)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{LeadID: leadID, Action: ActionSkip}
	switch {
	case l.Status.Terminal():
		d.Reason = ReasonTerminal
		return d, nil
	case l.IsAssigned():
		d.Reason = ReasonAlreadyAssigned
		return d, nil
	}

	s, ok, err := r.Pick(ctx, l)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		d.Reason = ReasonNoEligibleStaff
		return d, nil
	}

	if _, err := r.Assigner.AssignUnclaimed(ctx, leadID, "", s.UserID); err != nil {
		switch {
		case errors.Is(err, assignment.ErrAlreadyClaimed):
			d.Reason = ReasonAlreadyAssigned
		case errors.Is(err, assignment.ErrIllegalTransition):
			d.Reason = ReasonTerminal
		case errors.Is(err, leads.ErrConflict):
			d.Reason = ReasonConflict
		default:
			return Decision{}, err
		}
		logger.From(ctx).Debug("routing skipped after race", "lead_id", leadID, "reason", d.Reason)
		return d, nil
	}

	return Decision{LeadID: leadID, Action: ActionAssign, AssigneeID: s.UserID, Reason: ReasonSelected}, nil
}
