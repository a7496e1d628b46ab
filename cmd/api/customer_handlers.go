package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"enquiryflow/customer"
	"enquiryflow/metrics"
	"enquiryflow/validation"
)

// flexNumber accepts a JSON number or a numeric string, matching what HTML
// form clients send.
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", s)
		}
		*n = flexNumber(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*n = flexNumber(f)
	return nil
}

func (n *flexNumber) ptr() *float64 {
	if n == nil {
		return nil
	}
	f := float64(*n)
	return &f
}

type remarkRequest struct {
	Remark     *string
	Rating     *flexNumber
	AttendedBy *string
	VisitDate  *string

	malformed []validation.FieldError
}

// UnmarshalJSON decodes field by field so that one value of the wrong type is
// reported against its field instead of rejecting the whole body.
func (r *remarkRequest) UnmarshalJSON(b []byte) error {
	fields, err := decodeObject(b)
	if err != nil {
		return err
	}
	r.malformed = append(r.malformed, fields.text("remark", &r.Remark)...)
	r.malformed = append(r.malformed, fields.number("rating", &r.Rating)...)
	r.malformed = append(r.malformed, fields.text("attendedBy", &r.AttendedBy)...)
	r.malformed = append(r.malformed, fields.text("visitDate", &r.VisitDate)...)
	return nil
}

func (r remarkRequest) input() customer.RemarkInput {
	return customer.RemarkInput{
		Remark:     r.Remark,
		Rating:     r.Rating.ptr(),
		AttendedBy: r.AttendedBy,
		VisitDate:  r.VisitDate,
		Malformed:  r.malformed,
	}
}

type customerRequest struct {
	FirstName         *string
	LastName          *string
	Address           *string
	Age               *flexNumber
	Mobile            *string
	Email             *string
	IncomeSource      *string
	Income            *flexNumber
	Budget            *flexNumber
	Reference         *string
	ReferencePerson   *string
	PropertyInterests map[string]any
	Remarks           []remarkRequest
	Status            *string
	Notes             *string

	malformed []validation.FieldError
}

func (r *customerRequest) UnmarshalJSON(b []byte) error {
	fields, err := decodeObject(b)
	if err != nil {
		return err
	}
	for key, dst := range map[string]**string{
		"firstName":       &r.FirstName,
		"lastName":        &r.LastName,
		"address":         &r.Address,
		"mobile":          &r.Mobile,
		"email":           &r.Email,
		"incomeSource":    &r.IncomeSource,
		"reference":       &r.Reference,
		"referencePerson": &r.ReferencePerson,
		"status":          &r.Status,
		"notes":           &r.Notes,
	} {
		r.malformed = append(r.malformed, fields.text(key, dst)...)
	}
	for key, dst := range map[string]**flexNumber{
		"age":    &r.Age,
		"income": &r.Income,
		"budget": &r.Budget,
	} {
		r.malformed = append(r.malformed, fields.number(key, dst)...)
	}

	if raw, ok := fields["propertyInterests"]; ok {
		if err := json.Unmarshal(raw, &r.PropertyInterests); err != nil {
			r.PropertyInterests = nil
			r.malformed = append(r.malformed, typeError("propertyInterests", "Property interests must be an object"))
		}
	}

	if raw, ok := fields["remarks"]; ok {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			r.malformed = append(r.malformed, typeError("remarks", "Remarks must be a list"))
		} else if items != nil {
			r.Remarks = make([]remarkRequest, len(items))
			for i, item := range items {
				if err := json.Unmarshal(item, &r.Remarks[i]); err != nil {
					field := "remarks[" + strconv.Itoa(i) + "]"
					r.malformed = append(r.malformed, typeError(field, "Each remark must be an object"))
				}
			}
		}
	}

	// Map iteration above is unordered; keep responses stable.
	sort.SliceStable(r.malformed, func(i, j int) bool {
		return r.malformed[i].Field < r.malformed[j].Field
	})
	return nil
}

func (r customerRequest) input() customer.Input {
	in := customer.Input{
		FirstName:         r.FirstName,
		LastName:          r.LastName,
		Address:           r.Address,
		Age:               r.Age.ptr(),
		Mobile:            r.Mobile,
		Email:             r.Email,
		IncomeSource:      r.IncomeSource,
		Income:            r.Income.ptr(),
		Budget:            r.Budget.ptr(),
		Reference:         r.Reference,
		ReferencePerson:   r.ReferencePerson,
		PropertyInterests: r.PropertyInterests,
		Status:            r.Status,
		Notes:             r.Notes,
		Malformed:         r.malformed,
	}
	if r.Remarks != nil {
		in.Remarks = make([]customer.RemarkInput, 0, len(r.Remarks))
		for _, rr := range r.Remarks {
			in.Remarks = append(in.Remarks, rr.input())
		}
	}
	return in
}

// jsonObject holds the undecoded members of a request body.
type jsonObject map[string]json.RawMessage

// decodeObject fails only when the body is not a JSON object at all.
func decodeObject(b []byte) (jsonObject, error) {
	var fields jsonObject
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func (o jsonObject) text(key string, dst **string) []validation.FieldError {
	raw, ok := o[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		*dst = nil
		return []validation.FieldError{typeError(key, key+" must be a string")}
	}
	return nil
}

func (o jsonObject) number(key string, dst **flexNumber) []validation.FieldError {
	raw, ok := o[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		*dst = nil
		return []validation.FieldError{typeError(key, key+" must be a number")}
	}
	return nil
}

func typeError(field, message string) validation.FieldError {
	return validation.FieldError{Field: field, Message: message, Kind: customer.ErrInvalidFieldType}
}

type remarkResponse struct {
	Remark     string    `json:"remark"`
	Rating     int       `json:"rating"`
	AttendedBy string    `json:"attendedBy"`
	VisitDate  time.Time `json:"visitDate"`
}

type customerResponse struct {
	ID                string           `json:"_id"`
	FirstName         string           `json:"firstName"`
	LastName          string           `json:"lastName"`
	FullName          string           `json:"fullName"`
	Address           string           `json:"address"`
	Age               int              `json:"age"`
	Mobile            string           `json:"mobile"`
	Email             string           `json:"email"`
	IncomeSource      string           `json:"incomeSource"`
	Income            float64          `json:"income"`
	Budget            float64          `json:"budget"`
	Reference         string           `json:"reference"`
	ReferencePerson   string           `json:"referencePerson,omitempty"`
	PropertyInterests map[string]bool  `json:"propertyInterests"`
	SelectedInterests []string         `json:"selectedInterests"`
	Remarks           []remarkResponse `json:"remarks"`
	ClientRating      int              `json:"clientRating"`
	Status            customer.Status  `json:"status"`
	Notes             string           `json:"notes,omitempty"`
	CreatedBy         string           `json:"createdBy,omitempty"`
	UpdatedBy         string           `json:"updatedBy,omitempty"`
	SubmittedAt       time.Time        `json:"submittedAt"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

func newCustomerResponse(c customer.Customer) customerResponse {
	remarks := make([]remarkResponse, 0, len(c.Remarks))
	for _, r := range c.Remarks {
		remarks = append(remarks, remarkResponse{
			Remark:     r.Remark,
			Rating:     r.Rating,
			AttendedBy: r.AttendedBy,
			VisitDate:  r.VisitDate,
		})
	}
	selected := c.SelectedInterests
	if selected == nil {
		selected = []string{}
	}
	return customerResponse{
		ID:                c.ID,
		FirstName:         c.FirstName,
		LastName:          c.LastName,
		FullName:          c.FullName,
		Address:           c.Address,
		Age:               c.Age,
		Mobile:            c.Mobile,
		Email:             c.Email,
		IncomeSource:      c.IncomeSource,
		Income:            c.Income,
		Budget:            c.Budget,
		Reference:         c.Reference,
		ReferencePerson:   c.ReferencePerson,
		PropertyInterests: c.PropertyInterests.Map(),
		SelectedInterests: selected,
		Remarks:           remarks,
		ClientRating:      c.ClientRating,
		Status:            c.Status,
		Notes:             c.Notes,
		CreatedBy:         c.CreatedBy,
		UpdatedBy:         c.UpdatedBy,
		SubmittedAt:       c.SubmittedAt,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

func newCustomerList(list []customer.Customer) []customerResponse {
	out := make([]customerResponse, 0, len(list))
	for _, c := range list {
		out = append(out, newCustomerResponse(c))
	}
	return out
}

func (s *server) createCustomer(c *gin.Context) {
	var req customerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.CustomerOperation("create", "invalid")
		respondFail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	created, err := s.customers.Create(c.Request.Context(), req.input(), actorFrom(c))
	if err != nil {
		s.customerError(c, "create", "Failed to create customer", err)
		return
	}

	metrics.CustomerOperation("create", "success")
	respondOK(c, http.StatusCreated, "Customer created successfully", newCustomerResponse(created))
}

func (s *server) listCustomers(c *gin.Context) {
	filter := customer.Filter{Status: customer.Status(strings.TrimSpace(c.Query("status")))}

	list, err := s.customers.List(c.Request.Context(), filter)
	if err != nil {
		s.customerError(c, "list", "Failed to fetch customers", err)
		return
	}
	respondList(c, newCustomerList(list), len(list))
}

func (s *server) listPendingCustomers(c *gin.Context) {
	list, err := s.customers.ListPending(c.Request.Context())
	if err != nil {
		s.customerError(c, "list_pending", "Failed to fetch pending customers", err)
		return
	}
	respondList(c, newCustomerList(list), len(list))
}

func (s *server) getCustomerByMobile(c *gin.Context) {
	found, err := s.customers.GetByMobile(c.Request.Context(), c.Param("mobile"))
	if err != nil {
		s.customerError(c, "get_by_mobile", "Failed to fetch customer", err)
		return
	}
	respondOK(c, http.StatusOK, "", newCustomerResponse(found))
}

func (s *server) getCustomer(c *gin.Context) {
	found, err := s.customers.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.customerError(c, "get", "Failed to fetch customer", err)
		return
	}
	respondOK(c, http.StatusOK, "", newCustomerResponse(found))
}

func (s *server) updateCustomer(c *gin.Context) {
	var req customerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.CustomerOperation("update", "invalid")
		respondFail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := s.customers.Update(c.Request.Context(), c.Param("id"), req.input(), actorFrom(c))
	if err != nil {
		s.customerError(c, "update", "Failed to update customer", err)
		return
	}

	metrics.CustomerOperation("update", "success")
	respondOK(c, http.StatusOK, "Customer updated successfully", newCustomerResponse(updated))
}

func (s *server) appendRemark(c *gin.Context) {
	var req remarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.CustomerOperation("append_remark", "invalid")
		respondFail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := s.customers.AppendRemark(c.Request.Context(), c.Param("id"), req.input(), actorFrom(c))
	if err != nil {
		s.customerError(c, "append_remark", "Failed to add remark", err)
		return
	}

	metrics.CustomerOperation("append_remark", "success")
	respondOK(c, http.StatusOK, "Remark added successfully", newCustomerResponse(updated))
}

// customerError maps service errors onto status codes.
func (s *server) customerError(c *gin.Context, op, failure string, err error) {
	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		metrics.ValidationFailure(verrs.Fields()...)
		respondInvalid(c, err)
	case errors.Is(err, customer.ErrNotFound):
		respondFail(c, http.StatusNotFound, "Customer not found")
	case errors.Is(err, customer.ErrConflict):
		respondFail(c, http.StatusConflict, "Customer was modified concurrently, please retry")
	default:
		s.respondServerError(c, failure, err)
	}
	metrics.CustomerOperation(op, metrics.StatusClass(c.Writer.Status()))
}
