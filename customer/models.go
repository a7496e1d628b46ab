package customer

import (
	"time"

	"enquiryflow/validation"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusRejected:
		return true
	default:
		return false
	}
}

// Property interest keys, in the order selected interests are reported.
const (
	InterestStudioApt = "studio-apt"
	InterestOneBHK    = "1-bhk"
	InterestTwoBHK    = "2-bhk"
	InterestThreeBHK  = "3-bhk"
	InterestJodiFlat  = "jodi-flat"
)

var interestKeys = []string{
	InterestStudioApt,
	InterestOneBHK,
	InterestTwoBHK,
	InterestThreeBHK,
	InterestJodiFlat,
}

// InterestKeys returns the fixed key order.
func InterestKeys() []string {
	out := make([]string, len(interestKeys))
	copy(out, interestKeys)
	return out
}

var (
	incomeSources = []string{"salary", "business", "freelance", "pension", "investment", "other"}
	references    = []string{"social_media", "friend", "advertisement", "website", "agent", "other"}
)

// PropertyInterests is the normalized form: every key present, every value a bool.
type PropertyInterests struct {
	StudioApt bool
	OneBHK    bool
	TwoBHK    bool
	ThreeBHK  bool
	JodiFlat  bool
}

// Get returns the value for a key; unknown keys are false.
func (p PropertyInterests) Get(key string) bool {
	switch key {
	case InterestStudioApt:
		return p.StudioApt
	case InterestOneBHK:
		return p.OneBHK
	case InterestTwoBHK:
		return p.TwoBHK
	case InterestThreeBHK:
		return p.ThreeBHK
	case InterestJodiFlat:
		return p.JodiFlat
	default:
		return false
	}
}

func (p *PropertyInterests) set(key string, v bool) {
	switch key {
	case InterestStudioApt:
		p.StudioApt = v
	case InterestOneBHK:
		p.OneBHK = v
	case InterestTwoBHK:
		p.TwoBHK = v
	case InterestThreeBHK:
		p.ThreeBHK = v
	case InterestJodiFlat:
		p.JodiFlat = v
	}
}

// Map renders the interests keyed by their wire names.
func (p PropertyInterests) Map() map[string]bool {
	out := make(map[string]bool, len(interestKeys))
	for _, k := range interestKeys {
		out[k] = p.Get(k)
	}
	return out
}

// RemarkEntry is one visit log entry. It has no identity outside its customer.
type RemarkEntry struct {
	Remark     string
	Rating     int
	AttendedBy string
	VisitDate  time.Time
}

// Customer is the domain representation of one enquiry record.
type Customer struct {
	ID                string
	FirstName         string
	LastName          string
	FullName          string
	Address           string
	Age               int
	Mobile            string
	Email             string
	IncomeSource      string
	Income            float64
	Budget            float64
	Reference         string
	ReferencePerson   string
	PropertyInterests PropertyInterests
	SelectedInterests []string
	Remarks           []RemarkEntry
	ClientRating      int
	Status            Status
	Notes             string
	CreatedBy         string
	UpdatedBy         string
	SubmittedAt       time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Input carries caller-supplied fields. A nil pointer (or nil map/slice) means
// the field was not supplied, which matters for partial updates.
type Input struct {
	FirstName       *string
	LastName        *string
	Address         *string
	Age             *float64
	Mobile          *string
	Email           *string
	IncomeSource    *string
	Income          *float64
	Budget          *float64
	Reference       *string
	ReferencePerson *string
	// PropertyInterests values arrive untyped so that non-boolean values can
	// be reported rather than rejected by the decoder.
	PropertyInterests map[string]any
	Remarks           []RemarkInput
	Status            *string
	Notes             *string
	// Malformed lists fields the transport could not decode into their
	// type. They are reported together with the rule violations.
	Malformed []validation.FieldError
}

// RemarkInput is one caller-supplied remark.
type RemarkInput struct {
	Remark     *string
	Rating     *float64
	AttendedBy *string
	// VisitDate accepts RFC 3339 or YYYY-MM-DD; empty means "now".
	VisitDate *string
	// Malformed uses bare field names; list validation adds the index prefix.
	Malformed []validation.FieldError
}

// Actor identifies the authenticated principal behind a mutation.
type Actor struct {
	UserID string
	Role   string
}

// Filter selects records for List.
type Filter struct {
	Status Status
}
