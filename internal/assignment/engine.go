package assignment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"salon-leads/internal/activity"
	"salon-leads/internal/leads"
	"salon-leads/internal/metrics"
	"salon-leads/pkg/logger"

	"github.com/shopspring/decimal"
)

// Invalidator is told after every successful mutation so cached counts can be dropped.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Engine enforces exclusive claims and the lead status machine.
//
// Every operation is one read of the lead followed by one conditional update whose
// expectation pins the state the decision was made on. A lost race surfaces as a
// *Rejection carrying the lead's current state; nothing is retried.
//
// The engine performs no authorization. Callers pass the acting user explicitly after their
// own capability checks.
type Engine struct {
	store       leads.Store
	invalidator Invalidator
	metrics     *metrics.Metrics

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

type Option func(*Engine)

func WithInvalidator(i Invalidator) Option { return func(e *Engine) { e.invalidator = i } }

func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

func WithClock(fn func() time.Time) Option { return func(e *Engine) { e.clock = fn } }

func NewEngine(store leads.Store, opts ...Option) *Engine {
	e := &Engine{store: store, clock: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Additional carries fields written atomically with a status change.
type Additional struct {
	// FirstServiceRevenue is only accepted together with a move to converted.
	FirstServiceRevenue *decimal.Decimal
	Notes               string
}

// SystemAssigner is stored as assigned_by for automatic assignments. The matching activity
// entry has no performer.
const SystemAssigner = "system"

const (
	opClaim         = "claim"
	opAssign        = "assign"
	opAutoAssign    = "auto_assign"
	opChangeStatus  = "change_status"
	opAddNote       = "add_note"
	opRecordRevenue = "record_revenue"
)

func (e *Engine) now() time.Time {
	return e.clock().UTC().Truncate(time.Microsecond)
}

// Claim gives an unassigned, non-terminal lead to claimantID. Of any number of concurrent
// claims on the same lead at most one succeeds; the rest get ErrAlreadyClaimed.
func (e *Engine) Claim(ctx context.Context, leadID, claimantID string) (out leads.Lead, err error) {
	start := time.Now()
	defer func() { e.finish(ctx, opClaim, leadID, start, err) }()

	if leadID == "" || claimantID == "" {
		return leads.Lead{}, ErrInvalidArgument
	}
	cur, err := e.store.Get(ctx, leadID)
	if err != nil {
		return leads.Lead{}, err
	}
	if cur.IsAssigned() {
		return leads.Lead{}, reject(ErrAlreadyClaimed, cur)
	}
	if cur.Status.Terminal() {
		return leads.Lead{}, reject(ErrIllegalTransition, cur)
	}

	now := e.now()
	// A new lead moves to assigned; any other status is kept. Both are decided against the
	// stored row, so only a competing assignment or a terminal move can beat the claim.
	p := leads.Patch{
		LeaveNew:   &leads.NewExit{To: leads.StatusAssigned, At: now},
		AssignedTo: &claimantID,
		AssignedBy: &claimantID,
		AssignedAt: &now,
		UpdatedAt:  now,
	}
	exp := leads.Expectation{Unassigned: true, NotTerminal: true}
	entry := activity.NewEntry(leadID, activity.ActionClaimed, "", claimantID, now)

	out, err = e.store.Update(ctx, leadID, p, exp, &entry)
	if err != nil {
		return leads.Lead{}, classify(err, func(cur leads.Lead) error {
			switch {
			case cur.IsAssigned():
				return ErrAlreadyClaimed
			case cur.Status.Terminal():
				return ErrIllegalTransition
			default:
				return leads.ErrConflict
			}
		})
	}
	return out, nil
}

// Assign hands the lead to assigneeID regardless of any current assignee; the last assign
// wins. An empty assignerID records a system action. A new lead moves to assigned.
func (e *Engine) Assign(ctx context.Context, leadID, assignerID, assigneeID string) (leads.Lead, error) {
	return e.assign(ctx, opAssign, leadID, assignerID, assigneeID, false)
}

// AssignUnclaimed is Assign that only applies while the lead has no assignee, so an
// automatic assignment never overrides a staff member's claim. It fails with
// ErrAlreadyClaimed otherwise.
func (e *Engine) AssignUnclaimed(ctx context.Context, leadID, assignerID, assigneeID string) (leads.Lead, error) {
	return e.assign(ctx, opAutoAssign, leadID, assignerID, assigneeID, true)
}

func (e *Engine) assign(ctx context.Context, op, leadID, assignerID, assigneeID string, onlyUnassigned bool) (out leads.Lead, err error) {
	start := time.Now()
	defer func() { e.finish(ctx, op, leadID, start, err) }()

	if leadID == "" || assigneeID == "" {
		return leads.Lead{}, ErrInvalidArgument
	}
	cur, err := e.store.Get(ctx, leadID)
	if err != nil {
		return leads.Lead{}, err
	}
	if cur.Status.Terminal() {
		return leads.Lead{}, reject(ErrIllegalTransition, cur)
	}
	if onlyUnassigned && cur.IsAssigned() {
		return leads.Lead{}, reject(ErrAlreadyClaimed, cur)
	}

	now := e.now()
	assignedBy := assignerID
	if assignedBy == "" {
		assignedBy = SystemAssigner
	}
	p := leads.Patch{
		LeaveNew:   &leads.NewExit{To: leads.StatusAssigned, At: now},
		AssignedTo: &assigneeID,
		AssignedBy: &assignedBy,
		AssignedAt: &now,
		UpdatedAt:  now,
	}
	exp := leads.Expectation{NotTerminal: true, Unassigned: onlyUnassigned}

	notes := "assigned to " + assigneeID
	if cur.AssignedTo != nil && *cur.AssignedTo != assigneeID {
		notes = fmt.Sprintf("reassigned from %s to %s", *cur.AssignedTo, assigneeID)
	}
	entry := activity.NewEntry(leadID, activity.ActionAssigned, notes, assignerID, now)

	out, err = e.store.Update(ctx, leadID, p, exp, &entry)
	if err != nil {
		return leads.Lead{}, classify(err, func(cur leads.Lead) error {
			switch {
			case cur.Status.Terminal():
				return ErrIllegalTransition
			case onlyUnassigned && cur.IsAssigned():
				return ErrAlreadyClaimed
			default:
				return leads.ErrConflict
			}
		})
	}
	return out, nil
}

// ChangeStatus moves the lead to status to, writing any Additional fields in the same update.
func (e *Engine) ChangeStatus(ctx context.Context, leadID string, to leads.Status, performerID string, add *Additional) (out leads.Lead, err error) {
	start := time.Now()
	defer func() { e.finish(ctx, opChangeStatus, leadID, start, err) }()

	if leadID == "" {
		return leads.Lead{}, ErrInvalidArgument
	}
	if _, perr := leads.ParseStatus(string(to)); perr != nil {
		return leads.Lead{}, fmt.Errorf("%w: %v", ErrInvalidArgument, perr)
	}
	if add != nil && add.FirstServiceRevenue != nil {
		if to != leads.StatusConverted || add.FirstServiceRevenue.IsNegative() {
			return leads.Lead{}, ErrInvalidArgument
		}
	}

	cur, err := e.store.Get(ctx, leadID)
	if err != nil {
		return leads.Lead{}, err
	}
	if terr := CheckTransition(cur, to); terr != nil {
		return leads.Lead{}, reject(terr, cur)
	}

	now := e.now()
	observed := cur.Status
	p := leads.Patch{
		Status:              &to,
		ResponseTimeSeconds: responseStamp(cur, to, now.Unix()),
		UpdatedAt:           now,
	}
	exp := leads.Expectation{Status: &observed}
	switch to {
	case leads.StatusAssigned:
		exp.Assignee = cur.AssignedTo
	case leads.StatusNew:
		exp.Unassigned = true
	}

	notes := ""
	if add != nil {
		notes = strings.TrimSpace(add.Notes)
		if add.FirstServiceRevenue != nil {
			rev := *add.FirstServiceRevenue
			p.FirstServiceRevenue = &rev
			exp.RevenueUnset = true
		}
	}
	entry := activity.NewEntry(leadID, activity.StatusChanged(string(to)), notes, performerID, now)

	out, err = e.store.Update(ctx, leadID, p, exp, &entry)
	if err != nil {
		return leads.Lead{}, classify(err, func(cur leads.Lead) error {
			if errors.Is(CheckTransition(cur, to), ErrIllegalTransition) {
				return ErrIllegalTransition
			}
			return leads.ErrConflict
		})
	}
	return out, nil
}

// AddNote appends a note to the lead's history without touching lead state.
func (e *Engine) AddNote(ctx context.Context, leadID, note, performerID string) (out activity.Entry, err error) {
	start := time.Now()
	defer func() { e.finish(ctx, opAddNote, leadID, start, err) }()

	if leadID == "" {
		return activity.Entry{}, ErrInvalidArgument
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return activity.Entry{}, ErrEmptyNote
	}
	entry := activity.NewEntry(leadID, activity.ActionNoteAdded, note, performerID, e.now())
	return e.store.AppendActivity(ctx, leadID, entry)
}

// RecordRevenue stores the first service revenue of a converted lead, once.
func (e *Engine) RecordRevenue(ctx context.Context, leadID string, amount decimal.Decimal, performerID string) (out leads.Lead, err error) {
	start := time.Now()
	defer func() { e.finish(ctx, opRecordRevenue, leadID, start, err) }()

	if leadID == "" || amount.IsNegative() {
		return leads.Lead{}, ErrInvalidArgument
	}
	cur, err := e.store.Get(ctx, leadID)
	if err != nil {
		return leads.Lead{}, err
	}
	if cur.Status != leads.StatusConverted {
		return leads.Lead{}, reject(ErrIllegalTransition, cur)
	}
	if cur.FirstServiceRevenue.Valid {
		return leads.Lead{}, reject(ErrRevenueAlreadyRecorded, cur)
	}

	now := e.now()
	converted := leads.StatusConverted
	p := leads.Patch{FirstServiceRevenue: &amount, UpdatedAt: now}
	exp := leads.Expectation{Status: &converted, RevenueUnset: true}
	entry := activity.NewEntry(leadID, activity.ActionRevenueRecorded, amount.StringFixed(2), performerID, now)

	out, err = e.store.Update(ctx, leadID, p, exp, &entry)
	if err != nil {
		return leads.Lead{}, classify(err, func(cur leads.Lead) error {
			if cur.FirstServiceRevenue.Valid {
				return ErrRevenueAlreadyRecorded
			}
			return leads.ErrConflict
		})
	}
	return out, nil
}

// classify turns a store conflict into the engine's definitive outcome for the stored state.
func classify(err error, kind func(cur leads.Lead) error) error {
	var ce *leads.ConflictError
	if errors.As(err, &ce) {
		return reject(kind(ce.Current), ce.Current)
	}
	return err
}

func (e *Engine) finish(ctx context.Context, op, leadID string, start time.Time, err error) {
	log := logger.From(ctx).With("op", op, "lead_id", leadID)
	switch {
	case err == nil:
		e.metrics.ObserveOperation(op, metrics.OutcomeOK, time.Since(start))
		log.Info("lead updated")
		if e.invalidator != nil {
			if ierr := e.invalidator.Invalidate(ctx); ierr != nil {
				log.Warn("counts invalidation failed", "err", ierr)
			}
		}
	case IsRejection(err):
		e.metrics.ObserveOperation(op, metrics.OutcomeRejected, time.Since(start))
		log.Debug("lead operation rejected", "err", err)
	default:
		e.metrics.ObserveOperation(op, metrics.OutcomeError, time.Since(start))
		log.Error("lead operation failed", "err", err)
	}
}
