package reporting

import (
	"context"
	"errors"
	"fmt"

	"salon-leads/internal/leads"

	"github.com/shopspring/decimal"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting. leads.Store satisfies it.
type Repository interface {
	List(ctx context.Context, f leads.Filter) ([]leads.Lead, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

// Summary aggregates the lead funnel for the requested window. It is read-only.
func (s *Service) Summary(ctx context.Context, req SummaryRequest) (Summary, error) {
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return Summary{}, ErrInvalidRequest
	}
	if req.Source != "" && req.Source != leads.Any {
		if _, err := leads.ParseSource(req.Source); err != nil {
			return Summary{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	if s.repo == nil {
		return Summary{}, errors.New("reporting: repository not configured")
	}

	from, to := req.Range.From, req.Range.To
	f := leads.Filter{
		Source:      req.Source,
		Location:    req.Location,
		CreatedFrom: &from,
		CreatedTo:   &to,
		Limit:       leads.MaxLimit,
	}

	out := Summary{
		From:                from,
		To:                  to,
		ByStatus:            map[string]int{},
		BySource:            map[string]int{},
		FirstServiceRevenue: decimal.Zero,
	}
	var responseTotal int64
	for {
		page, err := s.repo.List(ctx, f)
		if err != nil {
			return Summary{}, err
		}
		for _, l := range page {
			out.Total++
			out.ByStatus[string(l.Status)]++
			out.BySource[string(l.Source)]++
			switch l.Status {
			case leads.StatusConverted:
				out.Converted++
			case leads.StatusLost:
				out.Lost++
			}
			if l.ResponseTimeSeconds != nil {
				out.RespondedLeads++
				responseTotal += *l.ResponseTimeSeconds
			}
			if l.FirstServiceRevenue.Valid {
				out.FirstServiceRevenue = out.FirstServiceRevenue.Add(l.FirstServiceRevenue.Decimal)
			}
		}
		if len(page) < f.Limit {
			break
		}
		f.Offset += len(page)
	}

	if closed := out.Converted + out.Lost; closed > 0 {
		out.ConversionRate = float64(out.Converted) / float64(closed)
	}
	if out.RespondedLeads > 0 {
		out.AverageResponseSeconds = float64(responseTotal) / float64(out.RespondedLeads)
	}
	return out, nil
}
