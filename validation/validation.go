// Package validation holds the field-level error aggregate shared by the
// customer and auth packages, plus the small rule helpers both of them use.
package validation

import (
	"errors"
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid matches any Errors value via errors.Is.
var ErrInvalid = errors.New("validation: invalid input")

var (
	lettersAndSpaces = regexp.MustCompile(`^[a-zA-Z\s]+$`)
	usernameChars    = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

	validate = newValidator()
)

// newValidator registers the custom tags used by the rule tables:
//
//	alphaspace    letters and spaces only
//	mobileprefix  first digit is 6, 7, 8 or 9
//	username      letters, digits and underscores
//	mixedcase     at least one lower, one upper and one digit
//	whole         a finite number without a fractional part
func newValidator() *validator.Validate {
	v := validator.New()
	must := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(err)
		}
	}
	must("alphaspace", func(fl validator.FieldLevel) bool {
		return lettersAndSpaces.MatchString(fl.Field().String())
	})
	must("mobileprefix", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s != "" && strings.ContainsAny(s[:1], "6789")
	})
	must("username", func(fl validator.FieldLevel) bool {
		return usernameChars.MatchString(fl.Field().String())
	})
	must("mixedcase", func(fl validator.FieldLevel) bool {
		var lower, upper, digit bool
		for _, r := range fl.Field().String() {
			switch {
			case unicode.IsLower(r):
				lower = true
			case unicode.IsUpper(r):
				upper = true
			case unicode.IsDigit(r):
				digit = true
			}
		}
		return lower && upper && digit
	})
	must("whole", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0) && f == math.Trunc(f)
	})
	return v
}

// FieldError is a single user-correctable problem with one input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	// Kind narrows the failure for errors.Is; nil means a plain rule violation.
	Kind error `json:"-"`
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Errors aggregates every field violation found in one pass.
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Error())
	}
	return "validation: " + strings.Join(parts, "; ")
}

// Is reports ErrInvalid for any aggregate, and a field Kind when one matches.
func (e Errors) Is(target error) bool {
	if target == ErrInvalid {
		return true
	}
	for _, fe := range e {
		if fe.Kind != nil && errors.Is(fe.Kind, target) {
			return true
		}
	}
	return false
}

// Add appends a plain rule violation.
func (e *Errors) Add(field, message string) {
	*e = append(*e, FieldError{Field: field, Message: message})
}

// AddKind appends a violation tagged with a sentinel kind.
func (e *Errors) AddKind(field, message string, kind error) {
	*e = append(*e, FieldError{Field: field, Message: message, Kind: kind})
}

// Merge appends all violations from other.
func (e *Errors) Merge(other []FieldError) {
	*e = append(*e, other...)
}

// Err returns nil when nothing was collected.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Supersede returns the decode failures followed by the rule violations of
// every other field. A field that failed to decode carries no value, so its
// rule violation would only restate the problem.
func Supersede(decode, rules []FieldError) Errors {
	if len(decode) == 0 {
		return rules
	}
	skip := make(map[string]bool, len(decode))
	out := make(Errors, 0, len(decode)+len(rules))
	for _, fe := range decode {
		skip[fe.Field] = true
		out = append(out, fe)
	}
	for _, fe := range rules {
		if !skip[fe.Field] {
			out = append(out, fe)
		}
	}
	return out
}

// Fields returns the field names in order, mostly useful in tests.
func (e Errors) Fields() []string {
	out := make([]string, 0, len(e))
	for _, fe := range e {
		out = append(out, fe.Field)
	}
	return out
}

// Rule validates one field with a validator tag chain and reports the message
// registered for the first tag that fails. The "" entry in Messages is the
// fallback for tags without their own message.
type Rule struct {
	Field    string
	Tags     string
	Messages map[string]string
}

// Check runs the rule against v.
func (r Rule) Check(v any) []FieldError {
	err := validate.Var(v, r.Tags)
	if err == nil {
		return nil
	}
	return []FieldError{{Field: r.Field, Message: r.message(failedTag(err))}}
}

// CheckNumber treats nil as a missing value and otherwise runs the tag chain
// on the number. Zero is a real value here, so "required" is never a tag.
func (r Rule) CheckNumber(v *float64) []FieldError {
	if v == nil {
		return []FieldError{{Field: r.Field, Message: r.message("required")}}
	}
	return r.Check(*v)
}

func (r Rule) message(tag string) string {
	if msg, ok := r.Messages[tag]; ok {
		return msg
	}
	return r.Messages[""]
}

func failedTag(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs[0].Tag()
	}
	return ""
}

var mobileRule = Rule{
	Tags: "required,len=10,number,mobileprefix",
	Messages: map[string]string{
		"required":     "Mobile number is required",
		"len":          "Mobile number must be exactly 10 digits",
		"number":       "Mobile number can only contain digits",
		"mobileprefix": "Mobile number must start with 6, 7, 8, or 9",
	},
}

var emailRule = Rule{
	Tags: "required,max=100,email",
	Messages: map[string]string{
		"required": "Email is required",
		"max":      "Email address cannot exceed 100 characters",
		"email":    "Please provide a valid email address",
	},
}

// Mobile checks a 10 digit number starting with 6, 7, 8 or 9 and returns the
// trimmed value.
func Mobile(field string, v *string) (string, []FieldError) {
	mobile := Trimmed(v)
	r := mobileRule
	r.Field = field
	return mobile, r.Check(mobile)
}

// Email trims and lowercases the address before checking its shape.
func Email(field string, v *string) (string, []FieldError) {
	email := strings.ToLower(Trimmed(v))
	r := emailRule
	r.Field = field
	return email, r.Check(email)
}

// Trimmed dereferences v and strips surrounding whitespace; nil is "".
func Trimmed(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}
