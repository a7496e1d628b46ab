package customer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"enquiryflow/validation"
)

// DefaultStoreTimeout bounds every store call made by the service.
const DefaultStoreTimeout = 5 * time.Second

// Service applies validation and derivation rules on top of a Repository.
type Service struct {
	repo        Repository
	idGenerator func() string
	now         func() time.Time
	timeout     time.Duration
	log         *logrus.Entry
}

func NewService(repo Repository) *Service {
	return &Service{
		repo:        repo,
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
		timeout:     DefaultStoreTimeout,
		log:         logrus.NewEntry(logrus.StandardLogger()),
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithTimeout sets the per-call store deadline; zero or negative keeps the default.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

func (s *Service) WithLogger(log *logrus.Entry) *Service {
	if log != nil {
		s.log = log
	}
	return s
}

// Create validates in, fills the derived fields and stores a new pending
// record. A status in the input is ignored.
func (s *Service) Create(ctx context.Context, in Input, actor Actor) (Customer, error) {
	now := s.now().UTC()

	in.Status = nil
	c, err := validateInput(in, now)
	if err != nil {
		return Customer{}, err
	}

	c.ID = s.idGenerator()
	c.Status = StatusPending
	c.CreatedBy = actor.UserID
	c.SubmittedAt = now
	c.CreatedAt = now
	c.UpdatedAt = now

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	created, err := s.repo.Create(ctx, c)
	if err != nil {
		return Customer{}, s.storeErr("create", err)
	}

	s.log.WithFields(logrus.Fields{
		"customer_id": created.ID,
		"rating":      created.ClientRating,
		"interests":   created.SelectedInterests,
	}).Info("customer created")
	return created, nil
}

// Update overlays patch on the stored record and re-runs the full rule set on
// the merged result. Mobile is immutable; property interests and remarks are
// replaced as whole values when present.
func (s *Service) Update(ctx context.Context, id string, patch Input, actor Actor) (Customer, error) {
	now := s.now().UTC()
	patch.Mobile = nil

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	updated, err := s.repo.Mutate(ctx, id, func(existing Customer) (Customer, error) {
		next, err := validateInput(mergeInput(existing, patch), now)
		if err != nil {
			return Customer{}, err
		}
		next.ID = existing.ID
		next.Mobile = existing.Mobile
		next.CreatedBy = existing.CreatedBy
		next.UpdatedBy = existing.UpdatedBy
		if actor.UserID != "" {
			next.UpdatedBy = actor.UserID
		}
		next.SubmittedAt = existing.SubmittedAt
		next.CreatedAt = existing.CreatedAt
		next.UpdatedAt = now
		return next, nil
	})
	if err != nil {
		return Customer{}, s.storeErr("update", err)
	}

	s.log.WithFields(logrus.Fields{
		"customer_id": updated.ID,
		"status":      updated.Status,
		"rating":      updated.ClientRating,
	}).Info("customer updated")
	return updated, nil
}

// AppendRemark validates one remark and appends it atomically. The stored
// rating is recomputed over the full list including the new entry.
func (s *Service) AppendRemark(ctx context.Context, id string, in RemarkInput, actor Actor) (Customer, error) {
	now := s.now().UTC()

	entry, err := ValidateRemark("", in, now)
	if err != nil {
		return Customer{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	updated, err := s.repo.AppendRemark(ctx, id, entry, now, actor.UserID)
	if err != nil {
		return Customer{}, s.storeErr("append remark", err)
	}

	s.log.WithFields(logrus.Fields{
		"customer_id": updated.ID,
		"remarks":     len(updated.Remarks),
		"rating":      updated.ClientRating,
	}).Info("remark appended")
	return updated, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (Customer, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Customer{}, ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Customer{}, s.storeErr("get by id", err)
	}
	return c, nil
}

// GetByMobile returns the most recently created record for the number.
func (s *Service) GetByMobile(ctx context.Context, mobile string) (Customer, error) {
	mobile = strings.TrimSpace(mobile)
	if mobile == "" {
		return Customer{}, ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	c, err := s.repo.GetByMobile(ctx, mobile)
	if err != nil {
		return Customer{}, s.storeErr("get by mobile", err)
	}
	return c, nil
}

// List returns every record newest first, or when a status is set, the
// records with that status ordered by submission time, newest first.
func (s *Service) List(ctx context.Context, filter Filter) ([]Customer, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		var errs validation.Errors
		errs.Add("status", "Please select a valid status")
		return nil, errs
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	list, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, s.storeErr("list", err)
	}
	return list, nil
}

func (s *Service) ListByStatus(ctx context.Context, status Status) ([]Customer, error) {
	return s.List(ctx, Filter{Status: status})
}

func (s *Service) ListPending(ctx context.Context) ([]Customer, error) {
	return s.ListByStatus(ctx, StatusPending)
}

// storeErr keeps domain sentinels intact and folds deadline failures into
// ErrStoreUnavailable.
func (s *Service) storeErr(op string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConflict),
		errors.Is(err, validation.ErrInvalid):
		return err
	case errors.Is(err, ErrStoreUnavailable):
		s.log.WithError(err).WithField("op", op).Error("customer store unavailable")
		return err
	case errors.Is(err, context.DeadlineExceeded):
		s.log.WithError(err).WithField("op", op).Error("customer store timed out")
		return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
	}
	s.log.WithError(err).WithField("op", op).Error("customer store failure")
	return err
}

// mergeInput renders existing as an Input and overlays every field present in
// patch.
func mergeInput(existing Customer, patch Input) Input {
	in := inputFromCustomer(existing)

	overlay := func(dst **string, src *string) {
		if src != nil {
			*dst = src
		}
	}
	overlay(&in.FirstName, patch.FirstName)
	overlay(&in.LastName, patch.LastName)
	overlay(&in.Address, patch.Address)
	overlay(&in.Mobile, patch.Mobile)
	overlay(&in.Email, patch.Email)
	overlay(&in.IncomeSource, patch.IncomeSource)
	overlay(&in.Reference, patch.Reference)
	overlay(&in.ReferencePerson, patch.ReferencePerson)
	overlay(&in.Status, patch.Status)
	overlay(&in.Notes, patch.Notes)

	if patch.Age != nil {
		in.Age = patch.Age
	}
	if patch.Income != nil {
		in.Income = patch.Income
	}
	if patch.Budget != nil {
		in.Budget = patch.Budget
	}
	if patch.PropertyInterests != nil {
		in.PropertyInterests = patch.PropertyInterests
	}
	if patch.Remarks != nil {
		in.Remarks = patch.Remarks
	}
	in.Malformed = patch.Malformed
	return in
}

func inputFromCustomer(c Customer) Input {
	age := float64(c.Age)
	income := c.Income
	budget := c.Budget
	status := string(c.Status)

	interests := make(map[string]any, len(interestKeys))
	for k, v := range c.PropertyInterests.Map() {
		interests[k] = v
	}

	remarks := make([]RemarkInput, 0, len(c.Remarks))
	for _, e := range c.Remarks {
		remarks = append(remarks, remarkInputFromEntry(e))
	}

	return Input{
		FirstName:         strPtr(c.FirstName),
		LastName:          strPtr(c.LastName),
		Address:           strPtr(c.Address),
		Age:               &age,
		Mobile:            strPtr(c.Mobile),
		Email:             strPtr(c.Email),
		IncomeSource:      strPtr(c.IncomeSource),
		Income:            &income,
		Budget:            &budget,
		Reference:         strPtr(c.Reference),
		ReferencePerson:   strPtr(c.ReferencePerson),
		PropertyInterests: interests,
		Remarks:           remarks,
		Status:            &status,
		Notes:             strPtr(c.Notes),
	}
}

func remarkInputFromEntry(e RemarkEntry) RemarkInput {
	rating := float64(e.Rating)
	visit := e.VisitDate.UTC().Format(time.RFC3339Nano)
	return RemarkInput{
		Remark:     strPtr(e.Remark),
		Rating:     &rating,
		AttendedBy: strPtr(e.AttendedBy),
		VisitDate:  &visit,
	}
}

func strPtr(v string) *string {
	return &v
}
