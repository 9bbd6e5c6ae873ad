package telephony

import (
	"bytes"
	"encoding/xml"
	"strings"
)

// TwiML is a minimal Twilio Markup Language response builder.
// It intentionally avoids any provider SDK dependency.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlDial struct {
	XMLName  xml.Name `xml:"Dial"`
	CallerID string   `xml:"callerId,attr,omitempty"`
	Number   string   `xml:",chardata"`
}

// Answer describes how the call should continue once the lead is recorded.
type Answer struct {
	Greeting string
	// ForwardTo is the front desk number. Empty hangs up after the greeting.
	ForwardTo string
	CallerID  string
}

// RenderTwiML maps an Answer to TwiML: Say, then Dial or Hangup.
func RenderTwiML(a Answer) (string, error) {
	var r twimlResponse
	if g := strings.TrimSpace(a.Greeting); g != "" {
		r.Verbs = append(r.Verbs, twimlSay{Text: g})
	}
	if to := strings.TrimSpace(a.ForwardTo); to != "" {
		r.Verbs = append(r.Verbs, twimlDial{Number: to, CallerID: a.CallerID})
	} else {
		r.Verbs = append(r.Verbs, twimlHangup{})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
