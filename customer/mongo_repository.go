package customer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName is the MongoDB collection holding customer documents.
const CollectionName = "customers"

const maxMutateAttempts = 5

type customerDoc struct {
	ID                string       `bson:"_id"`
	FirstName         string       `bson:"firstName"`
	LastName          string       `bson:"lastName"`
	FullName          string       `bson:"fullName"`
	Address           string       `bson:"address"`
	Age               int          `bson:"age"`
	Mobile            string       `bson:"mobile"`
	Email             string       `bson:"email"`
	IncomeSource      string       `bson:"incomeSource"`
	Income            float64      `bson:"income"`
	Budget            float64      `bson:"budget"`
	Reference         string       `bson:"reference"`
	ReferencePerson   string       `bson:"referencePerson,omitempty"`
	PropertyInterests interestsDoc `bson:"propertyInterests"`
	SelectedInterests []string     `bson:"selectedInterests"`
	Remarks           []remarkDoc  `bson:"remarks"`
	ClientRating      int          `bson:"clientRating"`
	Status            string       `bson:"status"`
	Notes             string       `bson:"notes,omitempty"`
	CreatedBy         string       `bson:"createdBy,omitempty"`
	UpdatedBy         string       `bson:"updatedBy,omitempty"`
	SubmittedAt       time.Time    `bson:"submittedAt"`
	CreatedAt         time.Time    `bson:"createdAt"`
	UpdatedAt         time.Time    `bson:"updatedAt"`
	Version           int64        `bson:"version"`
}

type interestsDoc struct {
	StudioApt bool `bson:"studio-apt"`
	OneBHK    bool `bson:"1-bhk"`
	TwoBHK    bool `bson:"2-bhk"`
	ThreeBHK  bool `bson:"3-bhk"`
	JodiFlat  bool `bson:"jodi-flat"`
}

type remarkDoc struct {
	Remark     string    `bson:"remark"`
	Rating     int       `bson:"rating"`
	AttendedBy string    `bson:"attendedBy"`
	VisitDate  time.Time `bson:"visitDate"`
}

func newCustomerDoc(c Customer, version int64) customerDoc {
	remarks := make([]remarkDoc, 0, len(c.Remarks))
	for _, e := range c.Remarks {
		remarks = append(remarks, newRemarkDoc(e))
	}
	selected := c.SelectedInterests
	if selected == nil {
		selected = []string{}
	}
	return customerDoc{
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
		PropertyInterests: interestsDoc(c.PropertyInterests),
		SelectedInterests: selected,
		Remarks:           remarks,
		ClientRating:      c.ClientRating,
		Status:            string(c.Status),
		Notes:             c.Notes,
		CreatedBy:         c.CreatedBy,
		UpdatedBy:         c.UpdatedBy,
		SubmittedAt:       c.SubmittedAt.UTC(),
		CreatedAt:         c.CreatedAt.UTC(),
		UpdatedAt:         c.UpdatedAt.UTC(),
		Version:           version,
	}
}

func newRemarkDoc(e RemarkEntry) remarkDoc {
	return remarkDoc{Remark: e.Remark, Rating: e.Rating, AttendedBy: e.AttendedBy, VisitDate: e.VisitDate.UTC()}
}

func (d customerDoc) toDomain() Customer {
	remarks := make([]RemarkEntry, 0, len(d.Remarks))
	for _, r := range d.Remarks {
		remarks = append(remarks, RemarkEntry{
			Remark:     r.Remark,
			Rating:     r.Rating,
			AttendedBy: r.AttendedBy,
			VisitDate:  r.VisitDate.UTC(),
		})
	}
	selected := d.SelectedInterests
	if selected == nil {
		selected = []string{}
	}
	return Customer{
		ID:                d.ID,
		FirstName:         d.FirstName,
		LastName:          d.LastName,
		FullName:          d.FullName,
		Address:           d.Address,
		Age:               d.Age,
		Mobile:            d.Mobile,
		Email:             d.Email,
		IncomeSource:      d.IncomeSource,
		Income:            d.Income,
		Budget:            d.Budget,
		Reference:         d.Reference,
		ReferencePerson:   d.ReferencePerson,
		PropertyInterests: PropertyInterests(d.PropertyInterests),
		SelectedInterests: selected,
		Remarks:           remarks,
		ClientRating:      d.ClientRating,
		Status:            Status(d.Status),
		Notes:             d.Notes,
		CreatedBy:         d.CreatedBy,
		UpdatedBy:         d.UpdatedBy,
		SubmittedAt:       d.SubmittedAt.UTC(),
		CreatedAt:         d.CreatedAt.UTC(),
		UpdatedAt:         d.UpdatedAt.UTC(),
	}
}

// MongoRepository implements Repository on a MongoDB collection. Full updates
// use a version field for compare-and-swap; appends are a single pipeline
// update.
type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository creates a repository over the customers collection of db.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(CollectionName)}
}

// EnsureIndexes creates the lookup indexes used by List and GetByMobile.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "submittedAt", Value: -1}}},
		{Keys: bson.D{{Key: "firstName", Value: 1}, {Key: "lastName", Value: 1}}},
		{Keys: bson.D{{Key: "reference", Value: 1}}},
		{Keys: bson.D{{Key: "mobile", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, models); err != nil {
		return mongoError("ensure indexes", err)
	}
	return nil
}

func (r *MongoRepository) Create(ctx context.Context, c Customer) (Customer, error) {
	doc := newCustomerDoc(c, 1)
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return Customer{}, mongoError("create", err)
	}
	return doc.toDomain(), nil
}

func (r *MongoRepository) GetByID(ctx context.Context, id string) (Customer, error) {
	var doc customerDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return Customer{}, mongoError("get by id", err)
	}
	return doc.toDomain(), nil
}

func (r *MongoRepository) GetByMobile(ctx context.Context, mobile string) (Customer, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	var doc customerDoc
	if err := r.coll.FindOne(ctx, bson.M{"mobile": mobile}, opts).Decode(&doc); err != nil {
		return Customer{}, mongoError("get by mobile", err)
	}
	return doc.toDomain(), nil
}

func (r *MongoRepository) List(ctx context.Context, filter Filter) ([]Customer, error) {
	query := bson.M{}
	sort := bson.D{{Key: "createdAt", Value: -1}}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
		sort = bson.D{{Key: "submittedAt", Value: -1}}
	}

	cur, err := r.coll.Find(ctx, query, options.Find().SetSort(sort))
	if err != nil {
		return nil, mongoError("query list", err)
	}
	defer cur.Close(ctx)

	var docs []customerDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mongoError("decode list", err)
	}

	list := make([]Customer, 0, len(docs))
	for _, d := range docs {
		list = append(list, d.toDomain())
	}
	return list, nil
}

// Mutate re-reads and retries when another writer bumps the version between
// the read and the replace.
func (r *MongoRepository) Mutate(ctx context.Context, id string, fn MutateFunc) (Customer, error) {
	for attempt := 0; attempt < maxMutateAttempts; attempt++ {
		var current customerDoc
		if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&current); err != nil {
			return Customer{}, mongoError("get for update", err)
		}

		next, err := fn(current.toDomain())
		if err != nil {
			return Customer{}, err
		}
		next.ID = current.ID
		next.Mobile = current.Mobile

		doc := newCustomerDoc(next, current.Version+1)
		res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": id, "version": current.Version}, doc)
		if err != nil {
			return Customer{}, mongoError("replace", err)
		}
		if res.MatchedCount == 1 {
			return doc.toDomain(), nil
		}
	}
	return Customer{}, ErrConflict
}

func (r *MongoRepository) AppendRemark(ctx context.Context, id string, entry RemarkEntry, at time.Time, actorID string) (Customer, error) {
	set := bson.D{
		{Key: "remarks", Value: bson.D{{Key: "$concatArrays", Value: bson.A{
			bson.D{{Key: "$ifNull", Value: bson.A{"$remarks", bson.A{}}}},
			bson.D{{Key: "$literal", Value: bson.A{newRemarkDoc(entry)}}},
		}}}},
		{Key: "updatedAt", Value: at.UTC()},
		{Key: "version", Value: bson.D{{Key: "$add", Value: bson.A{
			bson.D{{Key: "$ifNull", Value: bson.A{"$version", 0}}},
			1,
		}}}},
	}
	if actorID != "" {
		set = append(set, bson.E{Key: "updatedBy", Value: actorID})
	}

	// $round is banker's rounding, so half-up is spelled out as floor(avg + 0.5).
	rating := bson.D{{Key: "$toInt", Value: bson.D{{Key: "$floor", Value: bson.D{{Key: "$add", Value: bson.A{
		bson.D{{Key: "$avg", Value: "$remarks.rating"}},
		0.5,
	}}}}}}}

	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: set}},
		{{Key: "$set", Value: bson.D{{Key: "clientRating", Value: rating}}}},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc customerDoc
	if err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, pipeline, opts).Decode(&doc); err != nil {
		return Customer{}, mongoError("append remark", err)
	}
	return doc.toDomain(), nil
}

func mongoError(op string, err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case isUnavailable(err), mongo.IsTimeout(err), mongo.IsNetworkError(err):
		return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
	}
	return fmt.Errorf("customer: %s: %w", op, err)
}
