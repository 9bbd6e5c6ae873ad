package activity

import (
	"context"
	"errors"
)

// Reader is the read side of a lead's history. Appends happen only through the lead store,
// inside the same atomic operation as the lead mutation.
type Reader interface {
	Activity(ctx context.Context, leadID string) ([]Entry, error)
}

type Service struct {
	reader Reader
}

func NewService(reader Reader) *Service {
	return &Service{reader: reader}
}

var ErrInvalidLead = errors.New("activity: lead id required")

// History returns the lead's entries in display order.
func (s *Service) History(ctx context.Context, leadID string) ([]Entry, error) {
	if s.reader == nil {
		return nil, errors.New("activity: reader not configured")
	}
	if leadID == "" {
		return nil, ErrInvalidLead
	}
	entries, err := s.reader.Activity(ctx, leadID)
	if err != nil {
		return nil, err
	}
	Sort(entries)
	return entries, nil
}
