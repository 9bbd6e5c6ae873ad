package telephony

import (
	"net/http"
	"strings"

	"salon-leads/internal/leads"
)

// InboundCall captures the subset of Twilio voice webhook fields used for lead intake.
// Twilio sends application/x-www-form-urlencoded by default.
// Ref: https://www.twilio.com/docs/voice/twiml
type InboundCall struct {
	CallSid    string
	AccountSid string
	From       string
	To         string
	CallStatus string
	CallerName string
	FromCity   string
	FromState  string
}

func ParseInboundCall(r *http.Request) (InboundCall, error) {
	if err := r.ParseForm(); err != nil {
		return InboundCall{}, err
	}
	return InboundCall{
		CallSid:    strings.TrimSpace(r.PostFormValue("CallSid")),
		AccountSid: strings.TrimSpace(r.PostFormValue("AccountSid")),
		From:       callerNumber(r.PostFormValue("From")),
		To:         strings.TrimSpace(r.PostFormValue("To")),
		CallStatus: strings.TrimSpace(r.PostFormValue("CallStatus")),
		CallerName: strings.TrimSpace(r.PostFormValue("CallerName")),
		FromCity:   strings.TrimSpace(r.PostFormValue("FromCity")),
		FromState:  strings.TrimSpace(r.PostFormValue("FromState")),
	}, nil
}

// callerNumber drops the placeholders Twilio uses for withheld caller ids.
func callerNumber(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "anonymous", "restricted", "unknown", "blocked":
		return ""
	}
	return s
}

// ToNewLead builds the intake request for this call. location may be empty
// when the dialed number is not mapped to a salon.
func (f InboundCall) ToNewLead(location string) leads.NewLead {
	name := f.CallerName
	if name == "" {
		name = f.From
	}
	in := leads.NewLead{
		Name:   name,
		Source: string(leads.SourcePhoneCall),
	}
	if f.From != "" {
		from := f.From
		in.Phone = &from
	}
	if location != "" {
		loc := location
		in.PreferredLocation = &loc
	}
	if f.CallSid != "" {
		msg := "Inbound call " + f.CallSid
		if f.FromCity != "" {
			msg += " from " + strings.TrimSpace(f.FromCity+" "+f.FromState)
		}
		in.Message = &msg
	}
	return in
}
