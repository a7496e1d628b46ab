package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"enquiryflow/auth"
	"enquiryflow/config"
	"enquiryflow/customer"
	"enquiryflow/validation"
)

const goodToken = "good-token"

type stubCustomerService struct {
	customer customer.Customer
	list     []customer.Customer
	err      error

	gotInput  customer.Input
	gotRemark customer.RemarkInput
	gotActor  customer.Actor
	gotID     string
	gotFilter customer.Filter
}

func (s *stubCustomerService) Create(_ context.Context, in customer.Input, actor customer.Actor) (customer.Customer, error) {
	s.gotInput, s.gotActor = in, actor
	return s.customer, s.err
}

func (s *stubCustomerService) Update(_ context.Context, id string, in customer.Input, actor customer.Actor) (customer.Customer, error) {
	s.gotID, s.gotInput, s.gotActor = id, in, actor
	return s.customer, s.err
}

func (s *stubCustomerService) AppendRemark(_ context.Context, id string, in customer.RemarkInput, actor customer.Actor) (customer.Customer, error) {
	s.gotID, s.gotRemark, s.gotActor = id, in, actor
	return s.customer, s.err
}

func (s *stubCustomerService) GetByID(_ context.Context, id string) (customer.Customer, error) {
	s.gotID = id
	return s.customer, s.err
}

func (s *stubCustomerService) GetByMobile(_ context.Context, mobile string) (customer.Customer, error) {
	s.gotID = mobile
	return s.customer, s.err
}

func (s *stubCustomerService) List(_ context.Context, filter customer.Filter) ([]customer.Customer, error) {
	s.gotFilter = filter
	return s.list, s.err
}

func (s *stubCustomerService) ListPending(_ context.Context) ([]customer.Customer, error) {
	s.gotFilter = customer.Filter{Status: customer.StatusPending}
	return s.list, s.err
}

type stubAuthService struct {
	user      auth.User
	login     auth.LoginResult
	access    string
	err       error
	verifyErr error

	loggedOut string
	gotUserID string
}

func (s *stubAuthService) Register(_ context.Context, _ auth.RegisterRequest) (*auth.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &s.user, nil
}

func (s *stubAuthService) Login(_ context.Context, _ auth.LoginRequest) (auth.LoginResult, error) {
	return s.login, s.err
}

func (s *stubAuthService) Refresh(_ context.Context, _ string) (string, error) {
	return s.access, s.err
}

func (s *stubAuthService) Logout(_ context.Context, userID string) error {
	s.loggedOut = userID
	return s.err
}

func (s *stubAuthService) GetUserByID(_ context.Context, userID string) (*auth.User, error) {
	s.gotUserID = userID
	if s.err != nil {
		return nil, s.err
	}
	return &s.user, nil
}

func (s *stubAuthService) VerifyToken(token string) (auth.Principal, error) {
	if s.verifyErr != nil {
		return auth.Principal{}, s.verifyErr
	}
	if token != goodToken {
		return auth.Principal{}, auth.ErrInvalidToken
	}
	return auth.Principal{UserID: "u-1", Username: "sales_one", Role: auth.RoleSalesperson}, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func newTestRouter(cs customerService, as authService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &config.Config{
		Server: config.ServerConfig{Env: "production"},
		CORS:   config.CORSConfig{AllowedOrigins: config.DefaultAllowedOrigins},
	}
	return newRouter(&server{
		customers: cs,
		auth:      as,
		store:     stubPinger{},
		log:       logrus.NewEntry(logger),
	}, cfg)
}

func doRequest(r http.Handler, method, path, body string, authorized bool) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authorized {
		req.Header.Set("Authorization", "Bearer "+goodToken)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

type testEnvelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Data    json.RawMessage        `json:"data"`
	Count   *int                   `json:"count"`
	Errors  []validation.FieldError `json:"errors"`
	Error   string                 `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var env testEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return env
}

func sampleCustomer() customer.Customer {
	now := time.Date(2024, 10, 31, 15, 4, 5, 0, time.UTC)
	return customer.Customer{
		ID:                "c-1",
		FirstName:         "Asha",
		LastName:          "Patil",
		FullName:          "Asha Patil",
		Mobile:            "9876543210",
		PropertyInterests: customer.PropertyInterests{TwoBHK: true},
		SelectedInterests: []string{"2-bhk"},
		Remarks:           []customer.RemarkEntry{{Remark: "Liked the sample flat", Rating: 8, AttendedBy: "Ravi", VisitDate: now}},
		ClientRating:      8,
		Status:            customer.StatusPending,
		SubmittedAt:       now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

const validCustomerBody = `{
	"firstName": "Asha",
	"lastName": "Patil",
	"address": "12 Hill Road, Pune",
	"age": 34,
	"mobile": "9876543210",
	"email": "asha@example.com",
	"incomeSource": "salary",
	"income": 90000,
	"budget": 7500000,
	"reference": "website",
	"propertyInterests": {"2-bhk": true},
	"remarks": [{"remark": "Liked the sample flat", "rating": 8, "attendedBy": "Ravi"}]
}`

// memCustomers is a map-backed customer.Repository so handler tests can run
// the real service rules end to end.
type memCustomers struct {
	mu   sync.Mutex
	byID map[string]customer.Customer
}

func newMemCustomers() *memCustomers {
	return &memCustomers{byID: map[string]customer.Customer{}}
}

func newRealCustomerService(repo customer.Repository) *customer.Service {
	now := time.Date(2024, 10, 31, 15, 4, 5, 0, time.UTC)
	return customer.NewService(repo).
		WithIDGenerator(func() string { return "c-1" }).
		WithClock(func() time.Time { return now })
}

func (m *memCustomers) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

func (m *memCustomers) get(id string) customer.Customer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

func (m *memCustomers) Create(_ context.Context, c customer.Customer) (customer.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[c.ID] = c
	return c, nil
}

func (m *memCustomers) GetByID(_ context.Context, id string) (customer.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return customer.Customer{}, customer.ErrNotFound
	}
	return c, nil
}

func (m *memCustomers) GetByMobile(_ context.Context, mobile string) (customer.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.byID {
		if c.Mobile == mobile {
			return c, nil
		}
	}
	return customer.Customer{}, customer.ErrNotFound
}

func (m *memCustomers) List(_ context.Context, _ customer.Filter) ([]customer.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]customer.Customer, 0, len(m.byID))
	for _, c := range m.byID {
		out = append(out, c)
	}
	return out, nil
}

func (m *memCustomers) Mutate(_ context.Context, id string, fn customer.MutateFunc) (customer.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return customer.Customer{}, customer.ErrNotFound
	}
	next, err := fn(c)
	if err != nil {
		return customer.Customer{}, err
	}
	m.byID[id] = next
	return next, nil
}

func (m *memCustomers) AppendRemark(_ context.Context, id string, entry customer.RemarkEntry, at time.Time, actorID string) (customer.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return customer.Customer{}, customer.ErrNotFound
	}
	c.Remarks = append(append([]customer.RemarkEntry{}, c.Remarks...), entry)
	c.ClientRating = customer.ComputeClientRating(c.Remarks)
	c.UpdatedAt = at
	if actorID != "" {
		c.UpdatedBy = actorID
	}
	m.byID[id] = c
	return c, nil
}

func errorsByField(errs []validation.FieldError) map[string]string {
	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		out[fe.Field] = fe.Message
	}
	return out
}

func countField(errs []validation.FieldError, field string) int {
	n := 0
	for _, fe := range errs {
		if fe.Field == field {
			n++
		}
	}
	return n
}

func TestCustomerRoutes_RequireToken(t *testing.T) {
	r := newTestRouter(&stubCustomerService{}, &stubAuthService{})

	rec := doRequest(r, http.MethodGet, "/api/customer", "", false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Message != "No token provided" {
		t.Fatalf("unexpected message %q", env.Message)
	}
}

func TestCustomerRoutes_ExpiredAndInvalidToken(t *testing.T) {
	r := newTestRouter(&stubCustomerService{}, &stubAuthService{verifyErr: auth.ErrTokenExpired})
	rec := doRequest(r, http.MethodGet, "/api/customer", "", true)
	if env := decodeEnvelope(t, rec); rec.Code != http.StatusUnauthorized || env.Message != "Token has expired" {
		t.Fatalf("expected expired token 401, got %d %q", rec.Code, env.Message)
	}

	r = newTestRouter(&stubCustomerService{}, &stubAuthService{verifyErr: fmt.Errorf("%w: bad signature", auth.ErrInvalidToken)})
	rec = doRequest(r, http.MethodGet, "/api/customer", "", true)
	if env := decodeEnvelope(t, rec); rec.Code != http.StatusUnauthorized || env.Message != "Invalid token" {
		t.Fatalf("expected invalid token 401, got %d %q", rec.Code, env.Message)
	}
}

func TestCreateCustomer_Success(t *testing.T) {
	svc := &stubCustomerService{customer: sampleCustomer()}
	r := newTestRouter(svc, &stubAuthService{})

	body := `{
		"firstName": "Asha",
		"age": "34",
		"budget": 7500000,
		"propertyInterests": {"2-bhk": true, "3-bhk": null},
		"remarks": [{"remark": "Liked the sample flat", "rating": 8, "attendedBy": "Ravi"}]
	}`
	rec := doRequest(r, http.MethodPost, "/api/customer", body, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	if svc.gotActor.UserID != "u-1" || svc.gotActor.Role != "salesperson" {
		t.Fatalf("unexpected actor %+v", svc.gotActor)
	}
	if svc.gotInput.Age == nil || *svc.gotInput.Age != 34 {
		t.Fatalf("expected numeric-string age to decode, got %v", svc.gotInput.Age)
	}
	if svc.gotInput.Mobile != nil {
		t.Fatalf("absent mobile must stay nil")
	}
	if v, ok := svc.gotInput.PropertyInterests["3-bhk"]; !ok || v != nil {
		t.Fatalf("null interest must reach the service as nil, got %v", svc.gotInput.PropertyInterests)
	}
	if len(svc.gotInput.Remarks) != 1 || *svc.gotInput.Remarks[0].Rating != 8 {
		t.Fatalf("unexpected remarks %+v", svc.gotInput.Remarks)
	}

	env := decodeEnvelope(t, rec)
	if !env.Success || env.Message != "Customer created successfully" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	var data customerResponse
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.ID != "c-1" || data.ClientRating != 8 || data.FullName != "Asha Patil" {
		t.Fatalf("unexpected payload %+v", data)
	}
	if len(data.PropertyInterests) != 5 || !data.PropertyInterests["2-bhk"] {
		t.Fatalf("expected all five interest keys, got %v", data.PropertyInterests)
	}
}

func TestCreateCustomer_ValidationErrors(t *testing.T) {
	var verrs validation.Errors
	verrs.Add("firstName", "First name must be between 2 and 50 characters")
	verrs.Add("remarks", "At least one remark and attendance record is required")
	r := newTestRouter(&stubCustomerService{err: verrs}, &stubAuthService{})

	rec := doRequest(r, http.MethodPost, "/api/customer", `{"firstName":"A"}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Message != "Validation failed" || len(env.Errors) != 2 {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if env.Errors[1].Field != "remarks" {
		t.Fatalf("expected field order kept, got %+v", env.Errors)
	}
}

func TestCreateCustomer_MalformedBody(t *testing.T) {
	r := newTestRouter(&stubCustomerService{}, &stubAuthService{})

	for _, body := range []string{`not json`, `[1, 2]`, `{"firstName": "Asha"`} {
		rec := doRequest(r, http.MethodPost, "/api/customer", body, true)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rec.Code)
		}
		if env := decodeEnvelope(t, rec); env.Message != "Invalid request body" || len(env.Errors) != 0 {
			t.Fatalf("body %q: unexpected envelope %+v", body, env)
		}
	}
}

func TestCreateCustomer_WrongTypesBecomeFieldErrors(t *testing.T) {
	repo := newMemCustomers()
	r := newTestRouter(newRealCustomerService(repo), &stubAuthService{})

	rec := doRequest(r, http.MethodPost, "/api/customer", `{"firstName":"A","mobile":5123456789,"age":30}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Message != "Validation failed" {
		t.Fatalf("unexpected message %q", env.Message)
	}

	got := errorsByField(env.Errors)
	if got["mobile"] != "mobile must be a string" {
		t.Fatalf("expected a type error for mobile, got %+v", env.Errors)
	}
	if got["firstName"] != "First name must be between 2 and 50 characters" {
		t.Fatalf("expected firstName rule to still run, got %+v", env.Errors)
	}
	if got["lastName"] != "Last name is required" || got["remarks"] == "" {
		t.Fatalf("expected the remaining rules to run, got %+v", env.Errors)
	}
	if _, ok := got["age"]; ok {
		t.Fatalf("age 30 is valid, got %+v", env.Errors)
	}
	if n := countField(env.Errors, "mobile"); n != 1 {
		t.Fatalf("expected one mobile error, got %d", n)
	}
	if repo.len() != 0 {
		t.Fatalf("nothing may be stored")
	}

	rec = doRequest(r, http.MethodPost, "/api/customer", `{"age": "thirty", "remarks": [7]}`, true)
	env = decodeEnvelope(t, rec)
	got = errorsByField(env.Errors)
	if rec.Code != http.StatusBadRequest || got["age"] != "age must be a number" {
		t.Fatalf("expected age type error, got %d %+v", rec.Code, env.Errors)
	}
	if got["remarks[0]"] != "Each remark must be an object" {
		t.Fatalf("expected remark element error, got %+v", env.Errors)
	}
}

func TestUpdateCustomer_NonObjectInterests(t *testing.T) {
	repo := newMemCustomers()
	r := newTestRouter(newRealCustomerService(repo), &stubAuthService{})

	rec := doRequest(r, http.MethodPost, "/api/customer", validCustomerBody, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	before := repo.get("c-1")

	rec = doRequest(r, http.MethodPut, "/api/customer/c-1", `{"propertyInterests":"2-bhk"}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if len(env.Errors) != 1 || env.Errors[0].Field != "propertyInterests" ||
		env.Errors[0].Message != "Property interests must be an object" {
		t.Fatalf("unexpected errors %+v", env.Errors)
	}

	rec = doRequest(r, http.MethodPut, "/api/customer/c-1", `{"propertyInterests":"2-bhk","age":10}`, true)
	env = decodeEnvelope(t, rec)
	if rec.Code != http.StatusBadRequest || len(env.Errors) != 2 ||
		env.Errors[0].Field != "propertyInterests" || env.Errors[1].Field != "age" {
		t.Fatalf("expected interests and age errors, got %d %+v", rec.Code, env.Errors)
	}

	after := repo.get("c-1")
	if !after.UpdatedAt.Equal(before.UpdatedAt) || after.PropertyInterests != before.PropertyInterests || after.Age != before.Age {
		t.Fatalf("rejected updates must not change the record: %+v", after)
	}
}

func TestAppendRemark_WrongRatingType(t *testing.T) {
	repo := newMemCustomers()
	r := newTestRouter(newRealCustomerService(repo), &stubAuthService{})
	if rec := doRequest(r, http.MethodPost, "/api/customer", validCustomerBody, true); rec.Code != http.StatusCreated {
		t.Fatalf("seed: expected 201, got %d", rec.Code)
	}

	rec := doRequest(r, http.MethodPatch, "/api/customer/c-1/remarks", `{"remark":"Came back with family","rating":true,"attendedBy":7}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}
	got := errorsByField(decodeEnvelope(t, rec).Errors)
	if got["rating"] != "rating must be a number" || got["attendedBy"] != "attendedBy must be a string" {
		t.Fatalf("unexpected errors %+v", got)
	}
	if n := len(repo.get("c-1").Remarks); n != 1 {
		t.Fatalf("expected the remark list untouched, got %d entries", n)
	}
}

func TestListCustomers(t *testing.T) {
	svc := &stubCustomerService{list: []customer.Customer{sampleCustomer(), sampleCustomer()}}
	r := newTestRouter(svc, &stubAuthService{})

	rec := doRequest(r, http.MethodGet, "/api/customer?status=completed", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.gotFilter.Status != customer.StatusCompleted {
		t.Fatalf("expected status filter, got %+v", svc.gotFilter)
	}
	env := decodeEnvelope(t, rec)
	if env.Count == nil || *env.Count != 2 {
		t.Fatalf("expected count 2, got %v", env.Count)
	}

	svc.list = nil
	rec = doRequest(r, http.MethodGet, "/api/customer/pending", "", true)
	env = decodeEnvelope(t, rec)
	if env.Count == nil || *env.Count != 0 || string(env.Data) != "[]" {
		t.Fatalf("expected empty list with zero count, got %+v", env)
	}
	if svc.gotFilter.Status != customer.StatusPending {
		t.Fatalf("pending route must filter on pending")
	}
}

func TestGetCustomerByMobile_NotFound(t *testing.T) {
	svc := &stubCustomerService{err: customer.ErrNotFound}
	r := newTestRouter(svc, &stubAuthService{})

	rec := doRequest(r, http.MethodGet, "/api/customer/mobile/9876543210", "", true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if svc.gotID != "9876543210" {
		t.Fatalf("expected mobile param, got %q", svc.gotID)
	}
	if env := decodeEnvelope(t, rec); env.Message != "Customer not found" {
		t.Fatalf("unexpected message %q", env.Message)
	}
}

func TestUpdateCustomer_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", customer.ErrNotFound, http.StatusNotFound},
		{"conflict", customer.ErrConflict, http.StatusConflict},
		{"store unavailable", fmt.Errorf("%w: update: timeout", customer.ErrStoreUnavailable), http.StatusInternalServerError},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(&stubCustomerService{err: tt.err}, &stubAuthService{})
			rec := doRequest(r, http.MethodPut, "/api/customer/c-1", `{"notes":"call back"}`, true)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			if env := decodeEnvelope(t, rec); env.Error != "" {
				t.Fatalf("error detail must not leak outside development: %q", env.Error)
			}
		})
	}
}

func TestAppendRemark_Success(t *testing.T) {
	svc := &stubCustomerService{customer: sampleCustomer()}
	r := newTestRouter(svc, &stubAuthService{})

	rec := doRequest(r, http.MethodPatch, "/api/customer/c-1/remarks",
		`{"remark":"Second visit with parents","rating":"9","attendedBy":"Ravi","visitDate":"2024-11-02"}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.gotID != "c-1" || svc.gotRemark.Rating == nil || *svc.gotRemark.Rating != 9 {
		t.Fatalf("unexpected remark input %+v", svc.gotRemark)
	}
	if svc.gotRemark.VisitDate == nil || *svc.gotRemark.VisitDate != "2024-11-02" {
		t.Fatalf("visit date not forwarded")
	}
	if env := decodeEnvelope(t, rec); env.Message != "Remark added successfully" {
		t.Fatalf("unexpected message %q", env.Message)
	}
}

func TestRegister(t *testing.T) {
	created := time.Date(2024, 10, 1, 8, 0, 0, 0, time.UTC)
	as := &stubAuthService{user: auth.User{ID: "u-9", Username: "new_user", Email: "n@example.com", Mobile: "9123456789", Role: auth.RoleUser, CreatedAt: created}}
	r := newTestRouter(&stubCustomerService{}, as)

	rec := doRequest(r, http.MethodPost, "/api/user", `{"username":"new_user"}`, false)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	var data userResponse
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.ID != "u-9" || data.Role != auth.RoleUser || !data.CreatedAt.Equal(created) {
		t.Fatalf("unexpected user payload %+v", data)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("password material leaked: %s", rec.Body.String())
	}

	duplicates := map[error]string{
		auth.ErrDuplicateUsername: "Username already exists",
		auth.ErrDuplicateEmail:    "Email already exists",
		auth.ErrDuplicateMobile:   "Mobile number already exists",
	}
	for err, message := range duplicates {
		as.err = err
		rec := doRequest(r, http.MethodPost, "/api/user", `{"username":"new_user"}`, false)
		if env := decodeEnvelope(t, rec); rec.Code != http.StatusConflict || env.Message != message {
			t.Fatalf("expected 409 %q, got %d %q", message, rec.Code, env.Message)
		}
	}
}

func TestLoginRefreshLogout(t *testing.T) {
	as := &stubAuthService{login: auth.LoginResult{AccessToken: "a", RefreshToken: "r"}, access: "a2"}
	r := newTestRouter(&stubCustomerService{}, as)

	rec := doRequest(r, http.MethodPost, "/api/auth/login", `{"username":"sales_one","password":"Secret1"}`, false)
	var login loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &login); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("login: %d %v", rec.Code, err)
	}
	if login.AccessToken != "a" || login.RefreshToken != "r" || !login.Success {
		t.Fatalf("unexpected login response %+v", login)
	}

	rec = doRequest(r, http.MethodPost, "/api/auth/refresh", `{}`, false)
	if env := decodeEnvelope(t, rec); rec.Code != http.StatusUnauthorized || env.Message != "Refresh token not provided" {
		t.Fatalf("missing refresh token: %d %q", rec.Code, env.Message)
	}

	rec = doRequest(r, http.MethodPost, "/api/auth/refresh", `{"refreshToken":"r"}`, false)
	if !strings.Contains(rec.Body.String(), `"accessToken":"a2"`) {
		t.Fatalf("unexpected refresh body %s", rec.Body.String())
	}

	rec = doRequest(r, http.MethodPost, "/api/auth/logout", "", true)
	if rec.Code != http.StatusOK || as.loggedOut != "u-1" {
		t.Fatalf("logout: %d for %q", rec.Code, as.loggedOut)
	}

	as.err = auth.ErrInvalidRefreshToken
	rec = doRequest(r, http.MethodPost, "/api/auth/refresh", `{"refreshToken":"stale"}`, false)
	if env := decodeEnvelope(t, rec); rec.Code != http.StatusForbidden || env.Message != "Invalid refresh token" {
		t.Fatalf("stale refresh token: %d %q", rec.Code, env.Message)
	}

	as.err = auth.ErrInvalidCredentials
	rec = doRequest(r, http.MethodPost, "/api/auth/login", `{"username":"x","password":"y"}`, false)
	if env := decodeEnvelope(t, rec); rec.Code != http.StatusUnauthorized || env.Message != "Invalid credentials" {
		t.Fatalf("bad credentials: %d %q", rec.Code, env.Message)
	}
}

func TestCurrentUser(t *testing.T) {
	created := time.Date(2024, 10, 1, 9, 0, 0, 0, time.UTC)
	as := &stubAuthService{user: auth.User{
		ID:           "u-1",
		Username:     "sales_one",
		Email:        "sales@example.com",
		Mobile:       "9876543210",
		PasswordHash: "$2a$10$hash",
		Role:         auth.RoleSalesperson,
		CreatedAt:    created,
	}}
	r := newTestRouter(&stubCustomerService{}, as)

	if rec := doRequest(r, http.MethodGet, "/api/auth/me", "", false); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec := doRequest(r, http.MethodGet, "/api/auth/me", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if as.gotUserID != "u-1" {
		t.Fatalf("expected lookup by token subject, got %q", as.gotUserID)
	}
	if strings.Contains(rec.Body.String(), "hash") {
		t.Fatalf("password hash leaked: %s", rec.Body.String())
	}
	var data userResponse
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Username != "sales_one" || data.Role != auth.RoleSalesperson || !data.CreatedAt.Equal(created) {
		t.Fatalf("unexpected user %+v", data)
	}

	as.err = auth.ErrUserNotFound
	rec = doRequest(r, http.MethodGet, "/api/auth/me", "", true)
	if env := decodeEnvelope(t, rec); rec.Code != http.StatusNotFound || env.Message != "User not found" {
		t.Fatalf("missing user: %d %q", rec.Code, env.Message)
	}
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cfg := &config.Config{Server: config.ServerConfig{Env: "development"}}

	r := newRouter(&server{store: stubPinger{err: errors.New("down")}, log: logrus.NewEntry(logger)}, cfg)
	rec := doRequest(r, http.MethodGet, "/health", "", false)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestCORS_AllowList(t *testing.T) {
	r := newTestRouter(&stubCustomerService{}, &stubAuthService{})

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/customer", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := preflight("http://localhost:4200")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:4200" {
		t.Fatalf("expected allowed origin echoed, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("expected credentials allowed, got %q", got)
	}

	rec = preflight("https://evil.example.com")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func TestFlexNumber(t *testing.T) {
	var v struct {
		A *flexNumber `json:"a"`
		B *flexNumber `json:"b"`
		C *flexNumber `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a": 12.5, "b": " 40 ", "c": null}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if *v.A.ptr() != 12.5 || *v.B.ptr() != 40 || v.C.ptr() != nil {
		t.Fatalf("unexpected values %v %v %v", v.A, v.B, v.C)
	}
	if err := json.Unmarshal([]byte(`{"a": true}`), &v); err == nil {
		t.Fatalf("expected error for boolean")
	}
}
