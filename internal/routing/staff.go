package routing

import (
	"context"
	"strings"

	"salon-leads/internal/config"
)

// Staff is one routable team member.
type Staff struct {
	UserID string
	// Locations and Services restrict eligibility; empty means any.
	Locations []string
	Services  []string
	// Weight must be > 0 for the member to receive leads.
	Weight int
}

// Directory lists the staff eligible for automatic routing.
type Directory interface {
	Staff(ctx context.Context) ([]Staff, error)
}

// StaticDirectory is a fixed staff list, loaded from the config file.
type StaticDirectory []Staff

func (d StaticDirectory) Staff(ctx context.Context) ([]Staff, error) {
	out := make([]Staff, len(d))
	copy(out, d)
	return out, nil
}

func NewStaticDirectory(cfg []config.StaffConfig) StaticDirectory {
	out := make(StaticDirectory, 0, len(cfg))
	for _, s := range cfg {
		out = append(out, Staff{
			UserID:    strings.TrimSpace(s.UserID),
			Locations: s.Locations,
			Services:  s.Services,
			Weight:    s.Weight,
		})
	}
	return out
}

// serves reports whether s can take a lead with the given preferences.
func (s Staff) serves(location, service *string) bool {
	if s.Weight <= 0 || s.UserID == "" {
		return false
	}
	return matchesAny(s.Locations, location) && matchesAny(s.Services, service)
}

func matchesAny(allowed []string, want *string) bool {
	if len(allowed) == 0 || want == nil || strings.TrimSpace(*want) == "" {
		return true
	}
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(*want)) {
			return true
		}
	}
	return false
}
