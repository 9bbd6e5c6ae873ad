package telephony

import (
	"context"
	"net/http"
	"strings"

	"salon-leads/internal/leads"
	"salon-leads/pkg/logger"

	"github.com/gin-gonic/gin"
)

// LeadCreator records a new lead. intake.Service satisfies it.
type LeadCreator interface {
	Create(ctx context.Context, in leads.NewLead) (leads.Lead, error)
}

// WebhookHandler turns inbound salon calls into phone_call leads and answers with TwiML.
type WebhookHandler struct {
	Intake LeadCreator

	// AuthToken enables X-Twilio-Signature validation when set.
	AuthToken string
	// PublicBaseURL is the externally visible scheme+host Twilio signs against,
	// e.g. "https://leads.example.com". Derived from the request when empty.
	PublicBaseURL string

	// Numbers maps a dialed salon number (E.164) to its location.
	Numbers   map[string]string
	ForwardTo string
	Greeting  string
}

const defaultGreeting = "Thanks for calling. Connecting you to our front desk."

func (h WebhookHandler) HandleInboundCall(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Intake == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": "internal", "message": "intake not configured"})
		return
	}

	form, err := ParseInboundCall(c.Request)
	if err != nil {
		log.Warn("twilio webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"code": "invalid_argument", "message": "invalid form"})
		return
	}

	if h.AuthToken != "" {
		sig := c.GetHeader(SignatureHeader)
		if !ValidSignature(h.AuthToken, h.requestURL(c.Request), c.Request.PostForm, sig) {
			log.Warn("twilio signature mismatch", "call_sid", form.CallSid)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "forbidden", "message": "invalid signature"})
			return
		}
	}

	location := h.Numbers[form.To]
	l, err := h.Intake.Create(c.Request.Context(), form.ToNewLead(location))
	if err != nil {
		// The caller still gets connected; a missed lead is logged, not surfaced.
		log.Error("phone lead intake failed", "call_sid", form.CallSid, "err", err)
	} else {
		log.Info("phone lead created", "lead_id", l.ID, "call_sid", form.CallSid, "location", location)
	}

	greeting := h.Greeting
	if greeting == "" {
		greeting = defaultGreeting
	}
	twiml, err := RenderTwiML(Answer{Greeting: greeting, ForwardTo: h.ForwardTo, CallerID: form.To})
	if err != nil {
		log.Error("twiml render failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": "internal", "message": "twiml failed"})
		return
	}

	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, twiml)
}

func (h WebhookHandler) requestURL(r *http.Request) string {
	base := strings.TrimRight(h.PublicBaseURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
			scheme = p
		}
		base = scheme + "://" + r.Host
	}
	return base + r.URL.RequestURI()
}
