package leads

import (
	"context"

	"salon-leads/internal/activity"
)

// Store persists leads and their activity logs.
//
// Every mutation that writes an activity entry does so in the same atomic operation as the
// lead change: either both persist or neither does. Update is the compare-and-swap primitive
// the assignment engine is built on.
type Store interface {
	Create(ctx context.Context, l Lead) (Lead, error)
	Get(ctx context.Context, id string) (Lead, error)

	// Update applies p when every field of exp holds for the stored row, and appends entry
	// (if non-nil) with the next per-lead sequence number. A failed expectation returns a
	// *ConflictError carrying the stored row and writes nothing.
	Update(ctx context.Context, id string, p Patch, exp Expectation, entry *activity.Entry) (Lead, error)

	// AppendActivity records an entry without touching lead state.
	AppendActivity(ctx context.Context, id string, e activity.Entry) (activity.Entry, error)
	Activity(ctx context.Context, id string) ([]activity.Entry, error)

	// List returns matching leads, newest first.
	List(ctx context.Context, f Filter) ([]Lead, error)
	Count(ctx context.Context, f Filter) (int, error)
}
