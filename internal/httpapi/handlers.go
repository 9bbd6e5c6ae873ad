package httpapi

import (
	"net/http"

	"salon-leads/internal/activity"
	"salon-leads/internal/assignment"
	"salon-leads/internal/auth"
	"salon-leads/internal/intake"
	"salon-leads/internal/leads"
	"salon-leads/internal/query"
	"salon-leads/internal/reporting"
	"salon-leads/internal/routing"
	"salon-leads/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
// The acting user always comes from the verified token, never from the body.
type Handlers struct {
	Leads    leads.Store
	Intake   *intake.Service
	Engine   *assignment.Engine
	Query    *query.Service
	Activity *activity.Service
	Router   *routing.Router
	Reports  *reporting.Service
}

func actor(c *gin.Context) string {
	uid, _ := auth.UserID(c.Request.Context())
	return uid
}

// --- Leads ---

func (h Handlers) CreateLead(c *gin.Context) {
	var req leads.NewLead
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	l, err := h.Intake.Create(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, l)
}

func (h Handlers) GetLead(c *gin.Context) {
	l, err := h.Leads.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h Handlers) ListLeads(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	out, err := h.Query.List(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leads": out, "limit": f.Limit, "offset": f.Offset})
}

func (h Handlers) ListBucket(c *gin.Context) {
	b, err := query.ParseBucket(c.Param("bucket"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	f, err := parseFilter(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	out, err := h.Query.ListBucket(c.Request.Context(), b, actor(c), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bucket": b, "leads": out, "limit": f.Limit, "offset": f.Offset})
}

func (h Handlers) Counts(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	out, err := h.Query.Counts(c.Request.Context(), actor(c), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) LeadActivity(c *gin.Context) {
	out, err := h.Activity.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lead_id": c.Param("id"), "activity": out})
}

// --- Assignment ---

func (h Handlers) Claim(c *gin.Context) {
	l, err := h.Engine.Claim(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h Handlers) Assign(c *gin.Context) {
	var req assignRequest
	if !bind(c, &req) {
		return
	}
	l, err := h.Engine.Assign(c.Request.Context(), c.Param("id"), actor(c), req.AssigneeID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h Handlers) ChangeStatus(c *gin.Context) {
	var req statusRequest
	if !bind(c, &req) {
		return
	}
	to, err := leads.ParseStatus(req.Status)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	var add *assignment.Additional
	if req.Notes != "" || req.FirstServiceRevenue != nil {
		add = &assignment.Additional{Notes: req.Notes, FirstServiceRevenue: req.FirstServiceRevenue}
	}
	l, err := h.Engine.ChangeStatus(c.Request.Context(), c.Param("id"), to, actor(c), add)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h Handlers) AddNote(c *gin.Context) {
	var req noteRequest
	if !bind(c, &req) {
		return
	}
	e, err := h.Engine.AddNote(c.Request.Context(), c.Param("id"), req.Note, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (h Handlers) RecordRevenue(c *gin.Context) {
	var req revenueRequest
	if !bind(c, &req) {
		return
	}
	l, err := h.Engine.RecordRevenue(c.Request.Context(), c.Param("id"), *req.Amount, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// Route offers the lead to the automatic router. A skip is not an error.
func (h Handlers) Route(c *gin.Context) {
	if h.Router == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, errorBody{Code: "routing_disabled", Error: "no staff directory configured"})
		return
	}
	d, err := h.Router.Route(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	logger.FromGin(c).Info("lead routed", "lead_id", d.LeadID, "action", d.Action, "reason", d.Reason)
	c.JSON(http.StatusOK, d)
}

// --- Reports ---

func (h Handlers) Summary(c *gin.Context) {
	from, err := parseTime(c.Query("from"))
	if err != nil || from == nil {
		badRequest(c, "from must be an RFC3339 timestamp")
		return
	}
	to, err := parseTime(c.Query("to"))
	if err != nil || to == nil {
		badRequest(c, "to must be an RFC3339 timestamp")
		return
	}
	out, err := h.Reports.Summary(c.Request.Context(), reporting.SummaryRequest{
		Range:    reporting.TimeRange{From: *from, To: *to},
		Source:   c.Query("source"),
		Location: c.Query("location"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
