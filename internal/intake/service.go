package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"salon-leads/internal/leads"
	"salon-leads/internal/routing"
	"salon-leads/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var ErrInvalidLead = errors.New("intake: invalid lead")

// Invalidator drops cached counts after a new lead lands.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Router proposes and applies an automatic assignment for a freshly created lead.
type Router interface {
	Route(ctx context.Context, leadID string) (routing.Decision, error)
}

type Options struct {
	// DefaultRegion is used to parse phone numbers written without a country code.
	DefaultRegion string
	Invalidator   Invalidator
	// Router is optional; when set every new lead is offered to it.
	Router Router
}

// Service turns inbound inquiries (web forms, social lead ads, calls, walk-ins) into leads.
type Service struct {
	store    leads.Store
	opts     Options
	validate *validator.Validate

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(store leads.Store, opts Options) *Service {
	return &Service{store: store, opts: opts, validate: validator.New(), clock: time.Now}
}

// Create validates and normalizes in and stores it as a new, unassigned lead.
func (s *Service) Create(ctx context.Context, in leads.NewLead) (leads.Lead, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = trimmed(in.Email)
	in.Phone = trimmed(in.Phone)
	in.Message = trimmed(in.Message)
	in.PreferredLocation = trimmed(in.PreferredLocation)
	in.PreferredService = trimmed(in.PreferredService)

	if err := s.validate.Struct(in); err != nil {
		return leads.Lead{}, fmt.Errorf("%w: %v", ErrInvalidLead, err)
	}
	src, err := leads.ParseSource(strings.TrimSpace(in.Source))
	if err != nil {
		return leads.Lead{}, fmt.Errorf("%w: %v", ErrInvalidLead, err)
	}

	now := s.clock().UTC().Truncate(time.Microsecond)
	l := leads.Lead{
		ID:                uuid.NewString(),
		Name:              in.Name,
		Email:             in.Email,
		Phone:             in.Phone,
		Message:           in.Message,
		Source:            src,
		Status:            leads.StatusNew,
		PreferredLocation: in.PreferredLocation,
		PreferredService:  in.PreferredService,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if l.Email != nil {
		e := strings.ToLower(*l.Email)
		l.Email = &e
	}
	if l.Phone != nil {
		p := NormalizePhone(*l.Phone, s.opts.DefaultRegion)
		l.Phone = &p
	}
	if l.Name == "" && l.Phone == nil && l.Email == nil {
		return leads.Lead{}, fmt.Errorf("%w: one of name, phone or email is required", ErrInvalidLead)
	}

	out, err := s.store.Create(ctx, l)
	if err != nil {
		return leads.Lead{}, err
	}
	log := logger.From(ctx).With("lead_id", out.ID, "source", string(out.Source))
	log.Info("lead created")

	if s.opts.Invalidator != nil {
		if err := s.opts.Invalidator.Invalidate(ctx); err != nil {
			log.Warn("counts invalidation failed", "err", err)
		}
	}

	if s.opts.Router != nil {
		d, err := s.opts.Router.Route(ctx, out.ID)
		if err != nil {
			// the lead stays in the unassigned bucket for staff to claim
			log.Warn("auto-route failed", "err", err)
			return out, nil
		}
		log.Info("auto-route", "action", string(d.Action), "assignee", d.AssigneeID, "reason", d.Reason)
		if d.Action == routing.ActionAssign {
			if routed, err := s.store.Get(ctx, out.ID); err == nil {
				out = routed
			}
		}
	}
	return out, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
