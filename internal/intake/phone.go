package intake

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// NormalizePhone formats raw as E.164, parsing national numbers in region.
// Numbers that do not parse as valid are returned trimmed, unchanged otherwise:
// a lead with an odd number is still a lead.
func NormalizePhone(raw, region string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if region == "" {
		region = "US"
	}
	parsed, err := phonenumbers.Parse(raw, region)
	if err != nil || !phonenumbers.IsValidNumber(parsed) {
		return raw
	}
	return phonenumbers.Format(parsed, phonenumbers.E164)
}
