package httpapi

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"salon-leads/internal/leads"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

type assignRequest struct {
	AssigneeID string `json:"assignee_id" validate:"required,max=128"`
}

type statusRequest struct {
	Status              string           `json:"status" validate:"required"`
	Notes               string           `json:"notes" validate:"max=4000"`
	FirstServiceRevenue *decimal.Decimal `json:"first_service_revenue,omitempty"`
}

type noteRequest struct {
	Note string `json:"note" validate:"max=4000"`
}

type revenueRequest struct {
	Amount *decimal.Decimal `json:"amount" validate:"required"`
}

// bind decodes the JSON body into dst and runs its validate tags.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, "invalid json")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		badRequest(c, err.Error())
		return false
	}
	return true
}

// parseFilter reads list filters from the query string. "all" means no restriction.
func parseFilter(c *gin.Context) (leads.Filter, error) {
	f := leads.Filter{
		Search:     c.Query("search"),
		Source:     c.Query("source"),
		Location:   c.Query("location"),
		AssignedTo: c.Query("assigned_to"),
	}
	if f.AssignedTo == leads.Any {
		f.AssignedTo = ""
	}
	if f.Source != "" && f.Source != leads.Any {
		if _, err := leads.ParseSource(f.Source); err != nil {
			return leads.Filter{}, err
		}
	}
	if s := c.Query("status"); s != "" && s != leads.Any {
		st, err := leads.ParseStatus(s)
		if err != nil {
			return leads.Filter{}, err
		}
		f.Status = st
	}
	var err error
	if f.CreatedFrom, err = parseTime(c.Query("created_from")); err != nil {
		return leads.Filter{}, fmt.Errorf("created_from: %w", err)
	}
	if f.CreatedTo, err = parseTime(c.Query("created_to")); err != nil {
		return leads.Filter{}, fmt.Errorf("created_to: %w", err)
	}
	if f.Limit, err = parseInt(c.Query("limit")); err != nil {
		return leads.Filter{}, fmt.Errorf("limit: %w", err)
	}
	if f.Offset, err = parseInt(c.Query("offset")); err != nil {
		return leads.Filter{}, fmt.Errorf("offset: %w", err)
	}
	return f.Normalize(), nil
}

func parseTime(v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

func parseInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return n, nil
}
