package customer

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"enquiryflow/validation"
)

var (
	// ErrEmptySelection signals that no property interest is selected.
	ErrEmptySelection = errors.New("customer: no property interest selected")
	// ErrInvalidFieldType signals a value of the wrong type, such as a
	// non-boolean property interest or a number where text is expected.
	ErrInvalidFieldType = errors.New("customer: field has the wrong type")
)

var interestLabels = map[string]string{
	InterestStudioApt: "Studio Apt",
	InterestOneBHK:    "1 BHK",
	InterestTwoBHK:    "2 BHK",
	InterestThreeBHK:  "3 BHK",
	InterestJodiFlat:  "Jodi Flat",
}

var visitDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// validateInput runs every field rule against in and returns the normalized
// record with derived fields filled. Status is only checked when supplied.
func validateInput(in Input, now time.Time) (Customer, error) {
	var (
		errs validation.Errors
		c    Customer
		fe   []validation.FieldError
	)

	c.FirstName, fe = checkPersonName("firstName", "First name", in.FirstName)
	errs.Merge(fe)
	c.LastName, fe = checkPersonName("lastName", "Last name", in.LastName)
	errs.Merge(fe)
	c.Address, fe = checkAddress(in.Address)
	errs.Merge(fe)
	c.Age, fe = checkAge(in.Age)
	errs.Merge(fe)
	c.Mobile, fe = validation.Mobile("mobile", in.Mobile)
	errs.Merge(fe)
	c.Email, fe = validation.Email("email", in.Email)
	errs.Merge(fe)
	c.IncomeSource, fe = checkEnum(incomeSourceRule, in.IncomeSource)
	errs.Merge(fe)
	c.Income, fe = checkAmount(incomeRule, in.Income)
	errs.Merge(fe)
	c.Budget, fe = checkAmount(budgetRule, in.Budget)
	errs.Merge(fe)
	c.Reference, fe = checkEnum(referenceRule, in.Reference)
	errs.Merge(fe)
	c.ReferencePerson, fe = checkReferencePerson(c.Reference, in.ReferencePerson)
	errs.Merge(fe)
	c.PropertyInterests, fe = normalizeInterests(in.PropertyInterests)
	errs.Merge(fe)
	c.Remarks, fe = checkRemarks(in.Remarks, now)
	errs.Merge(fe)
	c.Notes, fe = checkNotes(in.Notes)
	errs.Merge(fe)
	if in.Status != nil {
		c.Status, fe = checkStatus(*in.Status)
		errs.Merge(fe)
	}

	errs = validation.Supersede(in.Malformed, errs)
	if err := errs.Err(); err != nil {
		return Customer{}, err
	}

	derive(&c)
	return c, nil
}

// derive recomputes every field that callers cannot set directly.
func derive(c *Customer) {
	c.FullName = FullName(c.FirstName, c.LastName)
	c.SelectedInterests = SelectedInterests(c.PropertyInterests)
	c.ClientRating = ComputeClientRating(c.Remarks)
}

// FullName joins first and last name with a single space.
func FullName(first, last string) string {
	return first + " " + last
}

// SelectedInterests lists the true keys in studio-apt, 1-bhk, 2-bhk, 3-bhk,
// jodi-flat order.
func SelectedInterests(p PropertyInterests) []string {
	out := make([]string, 0, len(interestKeys))
	for _, k := range interestKeys {
		if p.Get(k) {
			out = append(out, k)
		}
	}
	return out
}

// ComputeClientRating is the mean rating rounded half away from zero, so a
// 7.5 mean becomes 8. It returns 0 for an empty list.
func ComputeClientRating(remarks []RemarkEntry) int {
	if len(remarks) == 0 {
		return 0
	}
	sum := 0
	for _, r := range remarks {
		sum += r.Rating
	}
	return int(math.Round(float64(sum) / float64(len(remarks))))
}

// NormalizePropertyInterests maps null or missing keys to false, rejects
// non-boolean values and requires at least one selected interest. Unknown
// keys are dropped.
func NormalizePropertyInterests(raw map[string]any) (PropertyInterests, error) {
	p, fe := normalizeInterests(raw)
	if len(fe) > 0 {
		return PropertyInterests{}, validation.Errors(fe)
	}
	return p, nil
}

func normalizeInterests(raw map[string]any) (PropertyInterests, []validation.FieldError) {
	var (
		p    PropertyInterests
		errs validation.Errors
	)
	for _, k := range interestKeys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		b, isBool := v.(bool)
		if !isBool {
			errs.AddKind("propertyInterests."+k, interestLabels[k]+" interest must be a boolean", ErrInvalidFieldType)
			continue
		}
		p.set(k, b)
	}
	if len(errs) > 0 {
		return PropertyInterests{}, errs
	}
	if len(SelectedInterests(p)) == 0 {
		errs.AddKind("propertyInterests", "At least one property type must be selected", ErrEmptySelection)
		return PropertyInterests{}, errs
	}
	return p, nil
}

// ValidateRemark checks a single remark. An empty prefix reports bare field
// names, which is what the append operation wants.
func ValidateRemark(prefix string, in RemarkInput, now time.Time) (RemarkEntry, error) {
	entry, fe := checkRemark(prefix, in, now)
	if len(fe) > 0 {
		return RemarkEntry{}, validation.Errors(fe)
	}
	return entry, nil
}

func checkRemarks(in []RemarkInput, now time.Time) ([]RemarkEntry, []validation.FieldError) {
	if len(in) == 0 {
		return nil, []validation.FieldError{{Field: "remarks", Message: "At least one remark and attendance record is required"}}
	}
	var errs validation.Errors
	out := make([]RemarkEntry, 0, len(in))
	for i, r := range in {
		entry, fe := checkRemark(remarkPrefix(i), r, now)
		errs.Merge(fe)
		out = append(out, entry)
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

func remarkPrefix(i int) string {
	return "remarks[" + strconv.Itoa(i) + "]."
}

// Field rules. Each maps the validator tag that failed first to the message
// clients see; "" is the fallback for the remaining tags.
var (
	remarkRule = validation.Rule{
		Field: "remark",
		Tags:  "required,min=10,max=1000",
		Messages: map[string]string{
			"required": "Remark is required",
			"":         "Remark must be between 10 and 1000 characters",
		},
	}
	ratingRule = validation.Rule{
		Field: "rating",
		Tags:  "whole,min=1,max=10",
		Messages: map[string]string{
			"required": "Rating is required",
			"":         "Rating must be a whole number between 1 and 10",
		},
	}
	attendedByRule = validation.Rule{
		Field: "attendedBy",
		Tags:  "required,min=2,max=100,alphaspace",
		Messages: map[string]string{
			"required":   "Attended by is required",
			"alphaspace": "Attended by name can only contain letters and spaces",
			"":           "Attended by name must be between 2 and 100 characters",
		},
	}
	addressRule = validation.Rule{
		Field: "address",
		Tags:  "required,min=10,max=500",
		Messages: map[string]string{
			"required": "Address is required",
			"":         "Address must be between 10 and 500 characters",
		},
	}
	ageRule = validation.Rule{
		Field: "age",
		Tags:  "whole,gte=18,lte=100",
		Messages: map[string]string{
			"required": "Age is required",
			"":         "Age must be between 18 and 100",
		},
	}
	incomeSourceRule = validation.Rule{
		Field:    "incomeSource",
		Tags:     "required,oneof=" + strings.Join(incomeSources, " "),
		Messages: map[string]string{"": "Please select a valid income source"},
	}
	referenceRule = validation.Rule{
		Field:    "reference",
		Tags:     "required,oneof=" + strings.Join(references, " "),
		Messages: map[string]string{"": "Please select a valid reference option"},
	}
	incomeRule = validation.Rule{
		Field: "income",
		Tags:  "min=0,gte=1000",
		Messages: map[string]string{
			"required": "Income is required",
			"min":      "Income must be a positive number",
			"gte":      "Income must be at least 1000",
		},
	}
	budgetRule = validation.Rule{
		Field: "budget",
		Tags:  "min=0,gte=50000",
		Messages: map[string]string{
			"required": "Budget is required",
			"min":      "Budget must be a positive number",
			"gte":      "Budget must be at least 50,000",
		},
	}
	notesRule = validation.Rule{
		Field:    "notes",
		Tags:     "max=1000",
		Messages: map[string]string{"": "Notes cannot exceed 1000 characters"},
	}
	statusRule = validation.Rule{
		Field:    "status",
		Tags:     "oneof=pending in_progress completed rejected",
		Messages: map[string]string{"": "Please select a valid status"},
	}
)

func personNameRule(field, label string) validation.Rule {
	return validation.Rule{
		Field: field,
		Tags:  "required,min=2,max=50,alphaspace",
		Messages: map[string]string{
			"required":   label + " is required",
			"alphaspace": label + " can only contain letters and spaces",
			"":           label + " must be between 2 and 50 characters",
		},
	}
}

func referencePersonRule(reference string) validation.Rule {
	tags := "omitempty,min=2,max=100,alphaspace"
	if requiresReferencePerson(reference) {
		tags = "required,min=2,max=100,alphaspace"
	}
	return validation.Rule{
		Field: "referencePerson",
		Tags:  tags,
		Messages: map[string]string{
			"required":   "Reference person name is required when reference is friend or agent",
			"alphaspace": "Reference person name can only contain letters and spaces",
			"":           "Reference person name must be between 2 and 100 characters",
		},
	}
}

func at(prefix string, r validation.Rule) validation.Rule {
	r.Field = prefix + r.Field
	return r
}

func checkRemark(prefix string, in RemarkInput, now time.Time) (RemarkEntry, []validation.FieldError) {
	var (
		errs  validation.Errors
		entry RemarkEntry
	)

	entry.Remark = validation.Trimmed(in.Remark)
	errs.Merge(at(prefix, remarkRule).Check(entry.Remark))

	if fe := at(prefix, ratingRule).CheckNumber(in.Rating); len(fe) > 0 {
		errs.Merge(fe)
	} else {
		entry.Rating = int(*in.Rating)
	}

	entry.AttendedBy = validation.Trimmed(in.AttendedBy)
	errs.Merge(at(prefix, attendedByRule).Check(entry.AttendedBy))

	entry.VisitDate = now.UTC()
	if raw := validation.Trimmed(in.VisitDate); raw != "" {
		visit, ok := parseVisitDate(raw)
		if !ok {
			errs.Add(prefix+"visitDate", "Visit date must be a valid date")
		}
		entry.VisitDate = visit
	}

	malformed := make([]validation.FieldError, 0, len(in.Malformed))
	for _, fe := range in.Malformed {
		fe.Field = prefix + fe.Field
		malformed = append(malformed, fe)
	}
	return entry, validation.Supersede(malformed, errs)
}

func parseVisitDate(raw string) (time.Time, bool) {
	for _, layout := range visitDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func checkPersonName(field, label string, v *string) (string, []validation.FieldError) {
	name := validation.Trimmed(v)
	return name, personNameRule(field, label).Check(name)
}

func checkAddress(v *string) (string, []validation.FieldError) {
	address := validation.Trimmed(v)
	return address, addressRule.Check(address)
}

func checkAge(v *float64) (int, []validation.FieldError) {
	if fe := ageRule.CheckNumber(v); len(fe) > 0 {
		return 0, fe
	}
	return int(*v), nil
}

func checkEnum(rule validation.Rule, v *string) (string, []validation.FieldError) {
	value := validation.Trimmed(v)
	return value, rule.Check(value)
}

func checkAmount(rule validation.Rule, v *float64) (float64, []validation.FieldError) {
	fe := rule.CheckNumber(v)
	if v == nil {
		return 0, fe
	}
	return *v, fe
}

func requiresReferencePerson(reference string) bool {
	return reference == "friend" || reference == "agent"
}

func checkReferencePerson(reference string, v *string) (string, []validation.FieldError) {
	person := validation.Trimmed(v)
	return person, referencePersonRule(reference).Check(person)
}

func checkNotes(v *string) (string, []validation.FieldError) {
	notes := validation.Trimmed(v)
	return notes, notesRule.Check(notes)
}

func checkStatus(v string) (Status, []validation.FieldError) {
	status := Status(strings.TrimSpace(v))
	return status, statusRule.Check(string(status))
}
