package routing

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"salon-leads/internal/assignment"
	"salon-leads/internal/config"
	"salon-leads/internal/leads"
)

func strp(s string) *string { return &s }

func seedLead(t *testing.T, s *leads.MemoryStore, id string, mut func(*leads.Lead)) {
	t.Helper()
	now := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	l := leads.Lead{ID: id, Name: "x", Source: leads.SourceWebsiteForm, Status: leads.StatusNew, CreatedAt: now, UpdatedAt: now}
	if mut != nil {
		mut(&l)
	}
	if _, err := s.Create(context.Background(), l); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestRouter_PicksEligibleStaff(t *testing.T) {
	dir := NewStaticDirectory([]config.StaffConfig{
		{UserID: "uptown-colorist", Locations: []string{"uptown"}, Services: []string{"color"}, Weight: 5},
		{UserID: "downtown-stylist", Locations: []string{"Downtown"}, Weight: 1},
		{UserID: "on-leave", Weight: 0},
	})
	r := NewRouter(dir, nil, nil, rand.New(rand.NewSource(1)))

	for i := 0; i < 50; i++ {
		s, ok, err := r.Pick(context.Background(), leads.Lead{PreferredLocation: strp("downtown")})
		if err != nil || !ok {
			t.Fatalf("expected a pick, got ok=%v err=%v", ok, err)
		}
		if s.UserID != "downtown-stylist" {
			t.Fatalf("picked ineligible staff %q", s.UserID)
		}
	}

	_, ok, err := r.Pick(context.Background(), leads.Lead{PreferredLocation: strp("uptown"), PreferredService: strp("extensions")})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ok {
		t.Fatalf("expected no eligible staff")
	}
}

func TestRouter_WeightedSelection(t *testing.T) {
	dir := StaticDirectory{{UserID: "a", Weight: 1}, {UserID: "b", Weight: 3}}
	r := NewRouter(dir, nil, nil, rand.New(rand.NewSource(1)))

	counts := map[string]int{}
	for i := 0; i < 4000; i++ {
		s, ok, _ := r.Pick(context.Background(), leads.Lead{})
		if !ok {
			t.Fatalf("expected pick")
		}
		counts[s.UserID]++
	}
	if counts["b"] < 2*counts["a"] {
		t.Fatalf("expected b to be picked roughly 3x as often as a: %v", counts)
	}
}

func TestRouter_RouteAssignsAsSystem(t *testing.T) {
	store := leads.NewMemoryStore()
	seedLead(t, store, "l1", func(l *leads.Lead) { l.PreferredLocation = strp("downtown") })
	eng := assignment.NewEngine(store)
	r := NewRouter(StaticDirectory{{UserID: "stylist-1", Weight: 1}}, store, eng, rand.New(rand.NewSource(1)))

	d, err := r.Route(context.Background(), "l1")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if d.Action != ActionAssign || d.AssigneeID != "stylist-1" || d.Reason != ReasonSelected {
		t.Fatalf("unexpected decision: %+v", d)
	}

	l, _ := store.Get(context.Background(), "l1")
	if !l.AssigneeIs("stylist-1") || l.Status != leads.StatusAssigned {
		t.Fatalf("lead not assigned: %+v", l)
	}
	entries, _ := store.Activity(context.Background(), "l1")
	if len(entries) != 1 || entries[0].PerformerID != nil {
		t.Fatalf("expected one system entry, got %+v", entries)
	}
}

func TestRouter_RouteSkips(t *testing.T) {
	store := leads.NewMemoryStore()
	at := time.Now()
	seedLead(t, store, "claimed", func(l *leads.Lead) {
		l.Status = leads.StatusAssigned
		l.AssignedTo, l.AssignedBy, l.AssignedAt = strp("a"), strp("a"), &at
	})
	seedLead(t, store, "lost", func(l *leads.Lead) { l.Status = leads.StatusLost })
	seedLead(t, store, "picky", func(l *leads.Lead) { l.PreferredService = strp("bridal") })

	eng := assignment.NewEngine(store)
	dir := StaticDirectory{{UserID: "stylist-1", Services: []string{"color"}, Weight: 1}}
	r := NewRouter(dir, store, eng, nil)

	cases := map[string]string{
		"claimed": ReasonAlreadyAssigned,
		"lost":    ReasonTerminal,
		"picky":   ReasonNoEligibleStaff,
	}
	for id, reason := range cases {
		d, err := r.Route(context.Background(), id)
		if err != nil {
			t.Fatalf("%s: %v", id, err)
		}
		if d.Action != ActionSkip || d.Reason != reason {
			t.Fatalf("%s: unexpected decision %+v", id, d)
		}
	}

	if _, err := r.Route(context.Background(), "missing"); err == nil {
		t.Fatalf("expected not found")
	}
}
