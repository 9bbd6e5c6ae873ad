package assignment

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"salon-leads/internal/activity"
	"salon-leads/internal/leads"
	"salon-leads/pkg/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2025, 5, 10, 8, 0, 0, 0, time.UTC)

// stepClock advances one second per reading.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type countingInvalidator struct {
	mu sync.Mutex
	n  int
}

func (c *countingInvalidator) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return nil
}

func (c *countingInvalidator) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func sqliteStore(t *testing.T) leads.Store {
	t.Helper()
	ctx := context.Background()
	db, err := utils.OpenSQLite(ctx, filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, leads.Migrate(ctx, db, leads.DialectSQLite))
	s, err := leads.NewSQLStore(db, leads.DialectSQLite)
	require.NoError(t, err)
	return s
}

func eachStore(t *testing.T, fn func(t *testing.T, s leads.Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, leads.NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, sqliteStore(t)) })
}

func newEngine(s leads.Store, opts ...Option) *Engine {
	clock := &stepClock{now: t0}
	return NewEngine(s, append([]Option{WithClock(clock.Now)}, opts...)...)
}

func seedLead(t *testing.T, s leads.Store) leads.Lead {
	t.Helper()
	l, err := s.Create(context.Background(), leads.Lead{
		ID:        uuid.NewString(),
		Name:      "Jo",
		Source:    leads.SourceInstagramLead,
		Status:    leads.StatusNew,
		CreatedAt: t0,
		UpdatedAt: t0,
	})
	require.NoError(t, err)
	return l
}

func history(t *testing.T, s leads.Store, id string) []activity.Entry {
	t.Helper()
	entries, err := s.Activity(context.Background(), id)
	require.NoError(t, err)
	return entries
}

func TestClaim_AtMostOneClaimant(t *testing.T) {
	eachStore(t, func(t *testing.T, s leads.Store) {
		ctx := context.Background()
		inv := &countingInvalidator{}
		eng := newEngine(s, WithInvalidator(inv))
		l := seedLead(t, s)

		const n = 20
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners []string
			lost    int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(who string) {
				defer wg.Done()
				_, err := eng.Claim(ctx, l.ID, who)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					winners = append(winners, who)
				case errors.Is(err, ErrAlreadyClaimed):
					lost++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(fmt.Sprintf("stylist-%02d", i))
		}
		wg.Wait()

		require.Len(t, winners, 1)
		assert.Equal(t, n-1, lost)

		got, err := s.Get(ctx, l.ID)
		require.NoError(t, err)
		assert.True(t, got.AssigneeIs(winners[0]))
		assert.Equal(t, leads.StatusAssigned, got.Status)
		assert.Len(t, history(t, s, l.ID), 1)
		assert.Equal(t, 1, inv.count())
	})
}

func TestScenario_ClaimRace(t *testing.T) {
	eachStore(t, func(t *testing.T, s leads.Store) {
		ctx := context.Background()
		eng := newEngine(s)
		l := seedLead(t, s)

		var (
			wg   sync.WaitGroup
			errs [2]error
		)
		for i, who := range []string{"A", "B"} {
			wg.Add(1)
			go func(i int, who string) {
				defer wg.Done()
				_, errs[i] = eng.Claim(ctx, l.ID, who)
			}(i, who)
		}
		wg.Wait()

		got, err := s.Get(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, leads.StatusAssigned, got.Status)
		switch {
		case errs[0] == nil:
			assert.True(t, got.AssigneeIs("A"))
			assert.ErrorIs(t, errs[1], ErrAlreadyClaimed)
		case errs[1] == nil:
			assert.True(t, got.AssigneeIs("B"))
			assert.ErrorIs(t, errs[0], ErrAlreadyClaimed)
		default:
			t.Fatalf("no claim succeeded: %v, %v", errs[0], errs[1])
		}
	})
}

func TestClaim_RejectionCarriesCurrentLead(t *testing.T) {
	s := leads.NewMemoryStore()
	eng := newEngine(s)
	l := seedLead(t, s)
	ctx := context.Background()

	_, err := eng.Claim(ctx, l.ID, "A")
	require.NoError(t, err)

	_, err = eng.Claim(ctx, l.ID, "B")
	require.ErrorIs(t, err, ErrAlreadyClaimed)
	cur, ok := CurrentLead(err)
	require.True(t, ok)
	assert.True(t, cur.AssigneeIs("A"))

	_, err = eng.Claim(ctx, "missing", "B")
	assert.ErrorIs(t, err, leads.ErrNotFound)
	_, err = eng.Claim(ctx, l.ID, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestClaim_ContactedLeadKeepsStatus(t *testing.T) {
	s := leads.NewMemoryStore()
	eng := newEngine(s)
	l := seedLead(t, s)
	ctx := context.Background()

	_, err := eng.ChangeStatus(ctx, l.ID, leads.StatusContacted, "front-1", nil)
	require.NoError(t, err)

	got, err := eng.Claim(ctx, l.ID, "A")
	require.NoError(t, err)
	assert.Equal(t, leads.StatusContacted, got.Status)
	assert.True(t, got.AssigneeIs("A"))
	require.NotNil(t, got.AssignedBy)
	assert.Equal(t, "A", *got.AssignedBy)
	assert.NotNil(t, got.AssignedAt)
}

func TestTerminalStatesAreFinal(t *testing.T) {
	eachStore(t, func(t *testing.T, s leads.Store) {
		ctx := context.Background()
		eng := newEngine(s)

		for _, terminal := range []leads.Status{leads.StatusConverted, leads.StatusLost} {
			l := seedLead(t, s)
			_, err := eng.Assign(ctx, l.ID, "manager-1", "A")
			require.NoError(t, err)
			if terminal == leads.StatusConverted {
				_, err = eng.ChangeStatus(ctx, l.ID, leads.StatusConsultationBooked, "A", nil)
				require.NoError(t, err)
			}
			before, err := eng.ChangeStatus(ctx, l.ID, terminal, "A", nil)
			require.NoError(t, err)
			entries := len(history(t, s, l.ID))

			for _, to := range leads.Statuses {
				_, err := eng.ChangeStatus(ctx, l.ID, to, "A", nil)
				assert.ErrorIs(t, err, ErrIllegalTransition, "%s -> %s", terminal, to)
			}
			_, err = eng.Claim(ctx, l.ID, "B")
			assert.Error(t, err)
			_, err = eng.Assign(ctx, l.ID, "manager-1", "B")
			assert.ErrorIs(t, err, ErrIllegalTransition)

			after, err := s.Get(ctx, l.ID)
			require.NoError(t, err)
			assert.Equal(t, before, after)
			assert.Len(t, history(t, s, l.ID), entries)
		}
	})
}

func TestScenario_IllegalTransitionFromLost(t *testing.T) {
	s := leads.NewMemoryStore()
	eng := newEngine(s)
	ctx := context.Background()
	l := seedLead(t, s)

	lost, err := eng.ChangeStatus(ctx, l.ID, leads.StatusLost, "u", nil)
	require.NoError(t, err)

	_, err = eng.ChangeStatus(ctx, l.ID, leads.StatusContacted, "u", nil)
	require.ErrorIs(t, err, ErrIllegalTransition)

	got, err := s.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, lost, got)
}

func TestScenario_ManagerReassignmentOverridesClaim(t *testing.T) {
	eachStore(t, func(t *testing.T, s leads.Store) {
		ctx := context.Background()
		eng := newEngine(s)
		l := seedLead(t, s)

		_, err := eng.Claim(ctx, l.ID, "A")
		require.NoError(t, err)

		got, err := eng.Assign(ctx, l.ID, "manager-1", "B")
		require.NoError(t, err)
		assert.True(t, got.AssigneeIs("B"))
		require.NotNil(t, got.AssignedBy)
		assert.Equal(t, "manager-1", *got.AssignedBy)

		entries := history(t, s, l.ID)
		require.Len(t, entries, 2)
		last := entries[1]
		assert.Equal(t, activity.ActionAssigned, last.Action)
		require.NotNil(t, last.Notes)
		assert.Contains(t, *last.Notes, "A")
		require.NotNil(t, last.PerformerID)
		assert.Equal(t, "manager-1", *last.PerformerID)
	})
}

func TestAssign_SystemAssignment(t *testing.T) {
	s := leads.NewMemoryStore()
	eng := newEngine(s)
	l := seedLead(t, s)

	got, err := eng.Assign(context.Background(), l.ID, "", "stylist-7")
	require.NoError(t, err)
	assert.Equal(t, leads.StatusAssigned, got.Status)
	require.NotNil(t, got.AssignedBy)
	assert.Equal(t, SystemAssigner, *got.AssignedBy)

	entries := history(t, s, l.ID)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].PerformerID)
}

func TestChangeStatus_AssignedNeedsAssignee(t *testing.T) {
	s := leads.NewMemoryStore()
	eng := newEngine(s)
	ctx := context.Background()
	l := seedLead(t, s)

	_, err := eng.ChangeStatus(ctx, l.ID, leads.StatusAssigned, "u", nil)
	require.ErrorIs(t, err, ErrIllegalTransition)

	_, err = eng.ChangeStatus(ctx, l.ID, leads.StatusContacted, "u", nil)
	require.NoError(t, err)
	_, err = eng.Claim(ctx, l.ID, "A")
	require.NoError(t, err)
	got, err := eng.ChangeStatus(ctx, l.ID, leads.StatusAssigned, "A", nil)
	require.NoError(t, err)
	assert.Equal(t, leads.StatusAssigned, got.Status)

	_, err = eng.ChangeStatus(ctx, l.ID, leads.StatusAssigned, "A", nil)
	assert.ErrorIs(t, err, ErrInvalidArgument, "re-entering the current status")
	_, err = eng.ChangeStatus(ctx, l.ID, leads.StatusNew, "A", nil)
	assert.ErrorIs(t, err, ErrIllegalTransition, "new requires unassigned")
	_, err = eng.ChangeStatus(ctx, l.ID, leads.Status("archived"), "A", nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestResponseTimeStampedOnce(t *testing.T) {
	eachStore(t, func(t *testing.T, s leads.Store) {
		ctx := context.Background()
		eng := newEngine(s)
		l := seedLead(t, s)

		first, err := eng.ChangeStatus(ctx, l.ID, leads.StatusContacted, "front-1", nil)
		require.NoError(t, err)
		require.NotNil(t, first.ResponseTimeSeconds)
		stamped := *first.ResponseTimeSeconds
		assert.GreaterOrEqual(t, stamped, int64(0))

		steps := []func() (leads.Lead, error){
			func() (leads.Lead, error) { return eng.ChangeStatus(ctx, l.ID, leads.StatusNew, "front-1", nil) },
			func() (leads.Lead, error) { return eng.Claim(ctx, l.ID, "A") },
			func() (leads.Lead, error) {
				return eng.ChangeStatus(ctx, l.ID, leads.StatusConsultationBooked, "A", nil)
			},
			func() (leads.Lead, error) { return eng.ChangeStatus(ctx, l.ID, leads.StatusConverted, "A", nil) },
		}
		for i, step := range steps {
			got, err := step()
			require.NoError(t, err, "step %d", i)
			require.NotNil(t, got.ResponseTimeSeconds)
			assert.Equal(t, stamped, *got.ResponseTimeSeconds, "step %d", i)
		}
	})
}

func TestAddNote(t *testing.T) {
	s := leads.NewMemoryStore()
	eng := newEngine(s)
	ctx := context.Background()
	l := seedLead(t, s)

	_, err := eng.AddNote(ctx, l.ID, "   \n\t", "u")
	require.ErrorIs(t, err, ErrEmptyNote)

	e, err := eng.AddNote(ctx, l.ID, "  prefers Saturday  ", "front-1")
	require.NoError(t, err)
	assert.Equal(t, activity.ActionNoteAdded, e.Action)
	require.NotNil(t, e.Notes)
	assert.Equal(t, "prefers Saturday", *e.Notes)

	got, err := s.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, leads.StatusNew, got.Status)
	assert.Nil(t, got.AssignedTo)
	assert.True(t, got.UpdatedAt.Equal(l.UpdatedAt))

	_, err = eng.AddNote(ctx, "missing", "hello", "u")
	assert.ErrorIs(t, err, leads.ErrNotFound)
}

func TestConversionRevenue(t *testing.T) {
	eachStore(t, func(t *testing.T, s leads.Store) {
		ctx := context.Background()
		eng := newEngine(s)
		l := seedLead(t, s)

		rev := decimal.RequireFromString("85.00")
		_, err := eng.ChangeStatus(ctx, l.ID, leads.StatusContacted, "u", &Additional{FirstServiceRevenue: &rev})
		require.ErrorIs(t, err, ErrInvalidArgument)

		_, err = eng.Claim(ctx, l.ID, "A")
		require.NoError(t, err)
		got, err := eng.ChangeStatus(ctx, l.ID, leads.StatusConverted, "A", &Additional{FirstServiceRevenue: &rev, Notes: "cut and color"})
		require.NoError(t, err)
		require.True(t, got.FirstServiceRevenue.Valid)
		assert.True(t, got.FirstServiceRevenue.Decimal.Equal(rev))

		_, err = eng.RecordRevenue(ctx, l.ID, decimal.NewFromInt(10), "owner-1")
		assert.ErrorIs(t, err, ErrRevenueAlreadyRecorded)

		other := seedLead(t, s)
		_, err = eng.RecordRevenue(ctx, other.ID, decimal.NewFromInt(10), "owner-1")
		assert.ErrorIs(t, err, ErrIllegalTransition)

		_, err = eng.Assign(ctx, other.ID, "owner-1", "B")
		require.NoError(t, err)
		_, err = eng.ChangeStatus(ctx, other.ID, leads.StatusConverted, "B", nil)
		require.NoError(t, err)
		got, err = eng.RecordRevenue(ctx, other.ID, decimal.RequireFromString("42.5"), "owner-1")
		require.NoError(t, err)
		assert.Equal(t, "42.5", got.FirstServiceRevenue.Decimal.String())

		entries := history(t, s, other.ID)
		assert.Equal(t, activity.ActionRevenueRecorded, entries[len(entries)-1].Action)
	})
}

func TestTransitionTable(t *testing.T) {
	assigned := "A"
	cases := []struct {
		from     leads.Status
		assignee *string
		to       leads.Status
		want     error
	}{
		{leads.StatusNew, nil, leads.StatusContacted, nil},
		{leads.StatusNew, nil, leads.StatusLost, nil},
		{leads.StatusNew, nil, leads.StatusAssigned, ErrIllegalTransition},
		{leads.StatusContacted, &assigned, leads.StatusAssigned, nil},
		{leads.StatusAssigned, &assigned, leads.StatusContacted, nil},
		{leads.StatusConsultationBooked, &assigned, leads.StatusAssigned, nil},
		{leads.StatusContacted, &assigned, leads.StatusNew, ErrIllegalTransition},
		{leads.StatusContacted, nil, leads.StatusNew, nil},
		{leads.StatusConverted, &assigned, leads.StatusLost, ErrIllegalTransition},
		{leads.StatusLost, nil, leads.StatusNew, ErrIllegalTransition},
		{leads.StatusContacted, nil, leads.StatusContacted, ErrInvalidArgument},
		{leads.StatusAssigned, &assigned, leads.StatusAssigned, ErrInvalidArgument},
		{leads.StatusLost, nil, leads.StatusLost, ErrIllegalTransition},
	}
	for _, tc := range cases {
		err := CheckTransition(leads.Lead{Status: tc.from, AssignedTo: tc.assignee}, tc.to)
		if tc.want == nil {
			assert.NoError(t, err, "%s -> %s", tc.from, tc.to)
		} else {
			assert.ErrorIs(t, err, tc.want, "%s -> %s", tc.from, tc.to)
		}
	}
}

func TestAssignUnclaimed_NeverOverridesClaim(t *testing.T) {
	eachStore(t, func(t *testing.T, s leads.Store) {
		ctx := context.Background()
		eng := newEngine(s)
		l := seedLead(t, s)

		_, err := eng.Claim(ctx, l.ID, "A")
		require.NoError(t, err)

		_, err = eng.AssignUnclaimed(ctx, l.ID, "", "B")
		require.ErrorIs(t, err, ErrAlreadyClaimed)

		got, err := s.Get(ctx, l.ID)
		require.NoError(t, err)
		assert.True(t, got.AssigneeIs("A"))

		other := seedLead(t, s)
		routed, err := eng.AssignUnclaimed(ctx, other.ID, "", "B")
		require.NoError(t, err)
		assert.True(t, routed.AssigneeIs("B"))
		assert.Equal(t, leads.StatusAssigned, routed.Status)
	})
}

// interleavedStore runs rival once, after the engine has read the lead and before its
// conditional write reaches the inner store.
type interleavedStore struct {
	leads.Store
	once  sync.Once
	rival func()
}

func (s *interleavedStore) Update(ctx context.Context, id string, p leads.Patch, exp leads.Expectation, e *activity.Entry) (leads.Lead, error) {
	s.once.Do(s.rival)
	return s.Store.Update(ctx, id, p, exp, e)
}

func assertLeadInvariants(t *testing.T, l leads.Lead) {
	t.Helper()
	if l.Status == leads.StatusNew {
		assert.Nil(t, l.AssignedTo, "a new lead has no assignee")
	}
	if l.Status == leads.StatusAssigned {
		assert.NotNil(t, l.AssignedTo, "an assigned lead has an assignee")
	}
}

func TestEngine_CompetingWriteBetweenReadAndUpdate(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name   string
		setup  func(t *testing.T, eng *Engine, id string)
		rival  func(eng *Engine, id string) error
		op     func(eng *Engine, id string) (leads.Lead, error)
		want   error // nil when op must succeed
		status leads.Status
		holder string
	}{
		{
			name:   "assign while the lead returns to new",
			setup:  contactLead,
			rival:  moveTo(leads.StatusNew),
			op:     func(eng *Engine, id string) (leads.Lead, error) { return eng.Assign(ctx, id, "manager-1", "B") },
			status: leads.StatusAssigned,
			holder: "B",
		},
		{
			name:   "routing while the lead returns to new",
			setup:  contactLead,
			rival:  moveTo(leads.StatusNew),
			op:     func(eng *Engine, id string) (leads.Lead, error) { return eng.AssignUnclaimed(ctx, id, "", "B") },
			status: leads.StatusAssigned,
			holder: "B",
		},
		{
			name:   "claim while the lead is booked",
			setup:  contactLead,
			rival:  moveTo(leads.StatusConsultationBooked),
			op:     func(eng *Engine, id string) (leads.Lead, error) { return eng.Claim(ctx, id, "A") },
			status: leads.StatusConsultationBooked,
			holder: "A",
		},
		{
			name:   "routing while a stylist claims",
			rival:  func(eng *Engine, id string) error { _, err := eng.Claim(ctx, id, "A"); return err },
			op:     func(eng *Engine, id string) (leads.Lead, error) { return eng.AssignUnclaimed(ctx, id, "", "B") },
			want:   ErrAlreadyClaimed,
			status: leads.StatusAssigned,
			holder: "A",
		},
		{
			name:   "assign while the lead is lost",
			rival:  moveTo(leads.StatusLost),
			op:     func(eng *Engine, id string) (leads.Lead, error) { return eng.Assign(ctx, id, "manager-1", "B") },
			want:   ErrIllegalTransition,
			status: leads.StatusLost,
		},
		{
			name:   "status change while another status change lands",
			setup:  contactLead,
			rival:  moveTo(leads.StatusConsultationBooked),
			op:     func(eng *Engine, id string) (leads.Lead, error) { return eng.ChangeStatus(ctx, id, leads.StatusLost, "u", nil) },
			want:   leads.ErrConflict,
			status: leads.StatusConsultationBooked,
		},
		{
			name:   "status change while the lead is lost",
			setup:  contactLead,
			rival:  moveTo(leads.StatusLost),
			op:     func(eng *Engine, id string) (leads.Lead, error) { return eng.ChangeStatus(ctx, id, leads.StatusConsultationBooked, "u", nil) },
			want:   ErrIllegalTransition,
			status: leads.StatusLost,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eachStore(t, func(t *testing.T, inner leads.Store) {
				direct := newEngine(inner)
				l := seedLead(t, inner)
				if tc.setup != nil {
					tc.setup(t, direct, l.ID)
				}
				before := len(history(t, inner, l.ID))

				var rivalErr error
				wrapped := &interleavedStore{Store: inner, rival: func() { rivalErr = tc.rival(direct, l.ID) }}
				got, err := tc.op(newEngine(wrapped), l.ID)
				require.NoError(t, rivalErr)

				stored, gerr := inner.Get(ctx, l.ID)
				require.NoError(t, gerr)
				assertLeadInvariants(t, stored)
				assert.Equal(t, tc.status, stored.Status)
				if tc.holder == "" {
					assert.Nil(t, stored.AssignedTo)
				} else {
					assert.True(t, stored.AssigneeIs(tc.holder))
				}

				if tc.want == nil {
					require.NoError(t, err)
					assert.Equal(t, stored, got)
					assert.Len(t, history(t, inner, l.ID), before+2)
					return
				}
				require.ErrorIs(t, err, tc.want)
				assert.True(t, IsRejection(err))
				cur, ok := CurrentLead(err)
				require.True(t, ok, "the rejection carries the lead as it now is")
				assert.Equal(t, stored, cur)
				assert.Len(t, history(t, inner, l.ID), before+1, "only the competing write is recorded")
			})
		})
	}
}

func contactLead(t *testing.T, eng *Engine, id string) {
	t.Helper()
	_, err := eng.ChangeStatus(context.Background(), id, leads.StatusContacted, "front-1", nil)
	require.NoError(t, err)
}

func moveTo(to leads.Status) func(eng *Engine, id string) error {
	return func(eng *Engine, id string) error {
		_, err := eng.ChangeStatus(context.Background(), id, to, "front-2", nil)
		return err
	}
}
