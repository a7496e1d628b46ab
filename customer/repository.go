package customer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals that no record matches the identifier.
	ErrNotFound = errors.New("customer: not found")
	// ErrConflict signals that a concurrent writer changed the record first.
	ErrConflict = errors.New("customer: concurrent modification")
	// ErrStoreUnavailable signals a timeout or a connection failure.
	ErrStoreUnavailable = errors.New("customer: store unavailable")
)

// MutateFunc derives the next state of a record from the current one.
type MutateFunc func(existing Customer) (Customer, error)

// Repository persists customer records. Mutate and AppendRemark must be
// atomic per record: a concurrent writer never sees a stale read.
type Repository interface {
	Create(ctx context.Context, c Customer) (Customer, error)
	GetByID(ctx context.Context, id string) (Customer, error)
	GetByMobile(ctx context.Context, mobile string) (Customer, error)
	List(ctx context.Context, filter Filter) ([]Customer, error)
	Mutate(ctx context.Context, id string, fn MutateFunc) (Customer, error)
	AppendRemark(ctx context.Context, id string, entry RemarkEntry, at time.Time, actorID string) (Customer, error)
}

const customerColumns = `id, first_name, last_name, full_name, address, age, mobile, email, income_source,
	income, budget, reference, reference_person, property_interests, selected_interests, remarks,
	client_rating, status, notes, created_by, updated_by, submitted_at, created_at, updated_at`

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed customer repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Create(ctx context.Context, c Customer) (Customer, error) {
	const insertSQL = `
		INSERT INTO customers (` + customerColumns + `)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24)
		RETURNING ` + customerColumns

	interests, remarks, err := encodeDocuments(c)
	if err != nil {
		return Customer{}, err
	}

	created, err := scanCustomer(r.pool.QueryRow(ctx, insertSQL,
		c.ID,
		c.FirstName,
		c.LastName,
		c.FullName,
		c.Address,
		c.Age,
		c.Mobile,
		c.Email,
		c.IncomeSource,
		c.Income,
		c.Budget,
		c.Reference,
		c.ReferencePerson,
		interests,
		c.SelectedInterests,
		remarks,
		c.ClientRating,
		c.Status,
		c.Notes,
		nullableString(c.CreatedBy),
		nullableString(c.UpdatedBy),
		c.SubmittedAt,
		c.CreatedAt,
		c.UpdatedAt,
	))
	if err != nil {
		return Customer{}, pgError("create", err)
	}
	return created, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Customer, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Customer{}, ErrNotFound
	}

	const selectSQL = `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`
	c, err := scanCustomer(r.pool.QueryRow(ctx, selectSQL, id))
	if err != nil {
		return Customer{}, pgError("get by id", err)
	}
	return c, nil
}

// GetByMobile returns the newest record for the number. Mobile is not unique.
func (r *PGRepository) GetByMobile(ctx context.Context, mobile string) (Customer, error) {
	const selectSQL = `SELECT ` + customerColumns + `
		FROM customers
		WHERE mobile = $1
		ORDER BY created_at DESC
		LIMIT 1`

	c, err := scanCustomer(r.pool.QueryRow(ctx, selectSQL, mobile))
	if err != nil {
		return Customer{}, pgError("get by mobile", err)
	}
	return c, nil
}

func (r *PGRepository) List(ctx context.Context, filter Filter) ([]Customer, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if filter.Status == "" {
		rows, err = r.pool.Query(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY created_at DESC`)
	} else {
		rows, err = r.pool.Query(ctx, `SELECT `+customerColumns+`
			FROM customers
			WHERE status = $1
			ORDER BY submitted_at DESC`, filter.Status)
	}
	if err != nil {
		return nil, pgError("query list", err)
	}
	defer rows.Close()

	list := []Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, pgError("scan list", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, pgError("iterate list", err)
	}
	return list, nil
}

// Mutate locks the row for the duration of fn so that concurrent writers
// serialize on it.
func (r *PGRepository) Mutate(ctx context.Context, id string, fn MutateFunc) (Customer, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Customer{}, ErrNotFound
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Customer{}, pgError("begin tx", err)
	}
	defer tx.Rollback(ctx)

	const lockSQL = `SELECT ` + customerColumns + ` FROM customers WHERE id = $1 FOR UPDATE`
	existing, err := scanCustomer(tx.QueryRow(ctx, lockSQL, id))
	if err != nil {
		return Customer{}, pgError("get for update", err)
	}

	next, err := fn(existing)
	if err != nil {
		return Customer{}, err
	}

	interests, remarks, err := encodeDocuments(next)
	if err != nil {
		return Customer{}, err
	}

	const updateSQL = `
		UPDATE customers
		SET first_name = $2,
		    last_name = $3,
		    full_name = $4,
		    address = $5,
		    age = $6,
		    email = $7,
		    income_source = $8,
		    income = $9,
		    budget = $10,
		    reference = $11,
		    reference_person = $12,
		    property_interests = $13,
		    selected_interests = $14,
		    remarks = $15,
		    client_rating = $16,
		    status = $17,
		    notes = $18,
		    updated_by = $19,
		    updated_at = $20
		WHERE id = $1
		RETURNING ` + customerColumns

	updated, err := scanCustomer(tx.QueryRow(ctx, updateSQL,
		id,
		next.FirstName,
		next.LastName,
		next.FullName,
		next.Address,
		next.Age,
		next.Email,
		next.IncomeSource,
		next.Income,
		next.Budget,
		next.Reference,
		next.ReferencePerson,
		interests,
		next.SelectedInterests,
		remarks,
		next.ClientRating,
		next.Status,
		next.Notes,
		nullableString(next.UpdatedBy),
		next.UpdatedAt,
	))
	if err != nil {
		return Customer{}, pgError("update", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Customer{}, pgError("commit tx", err)
	}
	return updated, nil
}

// AppendRemark adds one entry and recomputes the rating in a single statement,
// so two concurrent appends both land.
func (r *PGRepository) AppendRemark(ctx context.Context, id string, entry RemarkEntry, at time.Time, actorID string) (Customer, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Customer{}, ErrNotFound
	}

	payload, err := json.Marshal(newRemarkJSON(entry))
	if err != nil {
		return Customer{}, fmt.Errorf("customer: encode remark: %w", err)
	}

	const appendSQL = `
		UPDATE customers
		SET remarks = remarks || jsonb_build_array($2::jsonb),
		    client_rating = (
		        SELECT round(avg((r->>'rating')::int))::int
		        FROM jsonb_array_elements(remarks || jsonb_build_array($2::jsonb)) AS r
		    ),
		    updated_by = COALESCE($3, updated_by),
		    updated_at = $4
		WHERE id = $1
		RETURNING ` + customerColumns

	updated, err := scanCustomer(r.pool.QueryRow(ctx, appendSQL, id, payload, nullableString(actorID), at))
	if err != nil {
		return Customer{}, pgError("append remark", err)
	}
	return updated, nil
}

type remarkJSON struct {
	Remark     string    `json:"remark"`
	Rating     int       `json:"rating"`
	AttendedBy string    `json:"attendedBy"`
	VisitDate  time.Time `json:"visitDate"`
}

func newRemarkJSON(e RemarkEntry) remarkJSON {
	return remarkJSON{Remark: e.Remark, Rating: e.Rating, AttendedBy: e.AttendedBy, VisitDate: e.VisitDate.UTC()}
}

func encodeDocuments(c Customer) ([]byte, []byte, error) {
	interests, err := json.Marshal(c.PropertyInterests.Map())
	if err != nil {
		return nil, nil, fmt.Errorf("customer: encode property interests: %w", err)
	}
	docs := make([]remarkJSON, 0, len(c.Remarks))
	for _, e := range c.Remarks {
		docs = append(docs, newRemarkJSON(e))
	}
	remarks, err := json.Marshal(docs)
	if err != nil {
		return nil, nil, fmt.Errorf("customer: encode remarks: %w", err)
	}
	return interests, remarks, nil
}

func scanCustomer(row pgx.Row) (Customer, error) {
	var (
		c         Customer
		interests []byte
		remarks   []byte
		createdBy *string
		updatedBy *string
	)
	err := row.Scan(
		&c.ID,
		&c.FirstName,
		&c.LastName,
		&c.FullName,
		&c.Address,
		&c.Age,
		&c.Mobile,
		&c.Email,
		&c.IncomeSource,
		&c.Income,
		&c.Budget,
		&c.Reference,
		&c.ReferencePerson,
		&interests,
		&c.SelectedInterests,
		&remarks,
		&c.ClientRating,
		&c.Status,
		&c.Notes,
		&createdBy,
		&updatedBy,
		&c.SubmittedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return Customer{}, err
	}

	var flags map[string]bool
	if err := json.Unmarshal(interests, &flags); err != nil {
		return Customer{}, fmt.Errorf("customer: decode property interests: %w", err)
	}
	for k, v := range flags {
		c.PropertyInterests.set(k, v)
	}

	var docs []remarkJSON
	if err := json.Unmarshal(remarks, &docs); err != nil {
		return Customer{}, fmt.Errorf("customer: decode remarks: %w", err)
	}
	c.Remarks = make([]RemarkEntry, 0, len(docs))
	for _, d := range docs {
		c.Remarks = append(c.Remarks, RemarkEntry{
			Remark:     d.Remark,
			Rating:     d.Rating,
			AttendedBy: d.AttendedBy,
			VisitDate:  d.VisitDate.UTC(),
		})
	}

	if c.SelectedInterests == nil {
		c.SelectedInterests = []string{}
	}
	if createdBy != nil {
		c.CreatedBy = *createdBy
	}
	if updatedBy != nil {
		c.UpdatedBy = *updatedBy
	}
	c.SubmittedAt = c.SubmittedAt.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

// pgError maps driver failures onto the package sentinels.
func pgError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if isUnavailable(err) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
	}
	return fmt.Errorf("customer: %s: %w", op, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
