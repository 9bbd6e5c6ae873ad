package httpapi

import (
	"salon-leads/internal/rbac"

	"github.com/gin-gonic/gin"
)

// Register mounts the lead API on an authenticated group. Authorization happens here,
// before any engine call.
func (h Handlers) Register(v1 *gin.RouterGroup) {
	managers := rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleManager)

	l := v1.Group("/leads")
	l.Use(rbac.RequireCapability(rbac.IsKnownRole))
	{
		l.POST("", rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleManager, rbac.RoleFrontDesk), h.CreateLead)
		l.GET("", h.ListLeads)
		l.GET("/counts", h.Counts)
		l.GET("/buckets/:bucket", h.ListBucket)
		l.GET("/:id", h.GetLead)
		l.GET("/:id/activity", h.LeadActivity)

		l.POST("/:id/claim", rbac.RequireCapability(rbac.CanSelfClaim), h.Claim)
		l.POST("/:id/assign", rbac.RequireCapability(rbac.CanAssignOthers), h.Assign)
		l.POST("/:id/status", h.ChangeStatus)
		l.POST("/:id/notes", h.AddNote)
		l.POST("/:id/revenue", managers, h.RecordRevenue)
		l.POST("/:id/route", rbac.RequireCapability(rbac.CanAssignOthers), h.Route)
	}

	reports := v1.Group("/reports")
	reports.Use(managers)
	{
		reports.GET("/summary", h.Summary)
	}
}
