package reporting

import (
	"time"

	"github.com/shopspring/decimal"
)

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// SummaryRequest selects leads created in [Range.From, Range.To).
// Source and Location are optional narrowing filters.
type SummaryRequest struct {
	Range    TimeRange `json:"range"`
	Source   string    `json:"source,omitempty"`
	Location string    `json:"location,omitempty"`
}

type Summary struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`

	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	BySource map[string]int `json:"by_source"`

	Converted int `json:"converted"`
	Lost      int `json:"lost"`
	// ConversionRate is converted / (converted + lost); zero when nothing has closed.
	ConversionRate float64 `json:"conversion_rate"`

	RespondedLeads         int     `json:"responded_leads"`
	AverageResponseSeconds float64 `json:"average_response_seconds"`

	FirstServiceRevenue decimal.Decimal `json:"first_service_revenue"`
}
