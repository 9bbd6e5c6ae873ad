package httpapi

import (
	"errors"
	"net/http"

	"salon-leads/internal/activity"
	"salon-leads/internal/assignment"
	"salon-leads/internal/intake"
	"salon-leads/internal/leads"
	"salon-leads/internal/query"
	"salon-leads/internal/reporting"
	"salon-leads/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Error codes returned in the "code" field. Clients switch on these, not on messages.
const (
	CodeNotFound          = "not_found"
	CodeAlreadyClaimed    = "already_claimed"
	CodeIllegalTransition = "illegal_transition"
	CodeConflict          = "conflict"
	CodeEmptyNote         = "empty_note"
	CodeRevenueRecorded   = "revenue_already_recorded"
	CodeInvalidArgument   = "invalid_argument"
	CodeInternal          = "internal"
)

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
	// Lead is the current state for rejections the UI should refresh from.
	Lead *leads.Lead `json:"lead,omitempty"`
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, leads.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, assignment.ErrAlreadyClaimed):
		return http.StatusConflict, CodeAlreadyClaimed
	case errors.Is(err, assignment.ErrIllegalTransition):
		return http.StatusConflict, CodeIllegalTransition
	case errors.Is(err, assignment.ErrRevenueAlreadyRecorded):
		return http.StatusConflict, CodeRevenueRecorded
	case errors.Is(err, leads.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, assignment.ErrEmptyNote):
		return http.StatusUnprocessableEntity, CodeEmptyNote
	case errors.Is(err, assignment.ErrInvalidArgument),
		errors.Is(err, intake.ErrInvalidLead),
		errors.Is(err, activity.ErrInvalidLead),
		errors.Is(err, reporting.ErrInvalidRequest),
		errors.Is(err, query.ErrViewerRequired):
		return http.StatusBadRequest, CodeInvalidArgument
	}
	return http.StatusInternalServerError, CodeInternal
}

// writeError maps err to its HTTP status and code. Internal errors are logged and masked.
func writeError(c *gin.Context, err error) {
	status, code := classify(err)
	body := errorBody{Code: code, Error: err.Error()}
	if status == http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "err", err)
		body.Error = "internal error"
	}
	if status == http.StatusConflict {
		if cur, ok := assignment.CurrentLead(err); ok {
			body.Lead = &cur
		}
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Code: CodeInvalidArgument, Error: msg})
}
