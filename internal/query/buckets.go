package query

import (
	"fmt"

	"salon-leads/internal/leads"
)

// Bucket is a named, predicate-defined subset of leads used for dashboard tabs.
type Bucket string

const (
	BucketAll          Bucket = "all"
	BucketUnassigned   Bucket = "unassigned"
	BucketMyLeads      Bucket = "my_leads"
	BucketConsultation Bucket = "consultation"
	BucketConverted    Bucket = "converted"
)

var Buckets = []Bucket{BucketAll, BucketUnassigned, BucketMyLeads, BucketConsultation, BucketConverted}

func ParseBucket(v string) (Bucket, error) {
	for _, b := range Buckets {
		if string(b) == v {
			return b, nil
		}
	}
	return "", fmt.Errorf("query: unknown bucket %q", v)
}

// BucketFilter is the only place bucket predicates are defined. Lists and counts both go
// through it so badge numbers and list contents agree on meaning.
//
// Only search, source, location and the created window of base are kept; bucket predicates
// replace any assignment or status constraint.
func BucketFilter(b Bucket, viewerID string, base leads.Filter) leads.Filter {
	f := leads.Filter{
		Search:      base.Search,
		Source:      base.Source,
		Location:    base.Location,
		CreatedFrom: base.CreatedFrom,
		CreatedTo:   base.CreatedTo,
		Limit:       base.Limit,
		Offset:      base.Offset,
	}
	switch b {
	case BucketUnassigned:
		f.AssignedTo = leads.Unassigned
		f.Status = leads.StatusNew
	case BucketMyLeads:
		f.AssignedTo = viewerID
	case BucketConsultation:
		f.Status = leads.StatusConsultationBooked
	case BucketConverted:
		f.Status = leads.StatusConverted
	}
	return f
}

// Counts are the dashboard badge numbers, one per bucket.
type Counts struct {
	All                int `json:"all"`
	Unassigned         int `json:"unassigned"`
	MyLeads            int `json:"my_leads"`
	ConsultationBooked int `json:"consultation_booked"`
	Converted          int `json:"converted"`
}

func (c *Counts) set(b Bucket, n int) {
	switch b {
	case BucketAll:
		c.All = n
	case BucketUnassigned:
		c.Unassigned = n
	case BucketMyLeads:
		c.MyLeads = n
	case BucketConsultation:
		c.ConsultationBooked = n
	case BucketConverted:
		c.Converted = n
	}
}

// Get returns the count for one bucket.
func (c Counts) Get(b Bucket) int {
	switch b {
	case BucketAll:
		return c.All
	case BucketUnassigned:
		return c.Unassigned
	case BucketMyLeads:
		return c.MyLeads
	case BucketConsultation:
		return c.ConsultationBooked
	case BucketConverted:
		return c.Converted
	}
	return 0
}
