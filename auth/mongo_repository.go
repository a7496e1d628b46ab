package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const usersCollection = "users"

// Unique index names; duplicate-key errors are mapped back through them.
const (
	usernameIndex = "users_username_key"
	emailIndex    = "users_email_key"
	mobileIndex   = "users_mobile_key"
)

type userDoc struct {
	ID           string    `bson:"_id"`
	Username     string    `bson:"username"`
	Email        string    `bson:"email"`
	Mobile       string    `bson:"mobile"`
	Role         string    `bson:"role"`
	PasswordHash string    `bson:"password"`
	RefreshToken string    `bson:"refreshToken,omitempty"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

func (d userDoc) toDomain() User {
	return User{
		ID:           d.ID,
		Username:     d.Username,
		Email:        d.Email,
		Mobile:       d.Mobile,
		Role:         Role(d.Role),
		PasswordHash: d.PasswordHash,
		RefreshToken: d.RefreshToken,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}

// MongoRepository implements Repository on the users collection.
type MongoRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoRepository creates a MongoDB-backed auth repository.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(usersCollection), now: time.Now}
}

// EnsureIndexes creates the unique indexes that back duplicate detection.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true).SetName(usernameIndex)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName(emailIndex)},
		{Keys: bson.D{{Key: "mobile", Value: 1}}, Options: options.Index().SetUnique(true).SetName(mobileIndex)},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("auth: ensure indexes: %w", err)
	}
	return nil
}

func (r *MongoRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	now := r.now().UTC().Truncate(time.Millisecond)
	doc := userDoc{
		ID:           uuid.NewString(),
		Username:     params.Username,
		Email:        params.Email,
		Mobile:       params.Mobile,
		Role:         string(params.Role),
		PasswordHash: params.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return User{}, duplicateForIndex(err.Error())
		}
		return User{}, fmt.Errorf("auth: create user: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *MongoRepository) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return r.findOne(ctx, bson.M{"username": username}, "get user by username")
}

func (r *MongoRepository) GetUserByID(ctx context.Context, userID string) (User, error) {
	return r.findOne(ctx, bson.M{"_id": userID}, "get user by id")
}

func (r *MongoRepository) SetRefreshToken(ctx context.Context, userID, token string) error {
	update := bson.M{"$set": bson.M{"updatedAt": r.now().UTC()}}
	if token == "" {
		update["$unset"] = bson.M{"refreshToken": ""}
	} else {
		update["$set"] = bson.M{"refreshToken": token, "updatedAt": r.now().UTC()}
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		return fmt.Errorf("auth: set refresh token: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M, op string) (User, error) {
	var doc userDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("auth: %s: %w", op, err)
	}
	return doc.toDomain(), nil
}

func duplicateForIndex(msg string) error {
	switch {
	case strings.Contains(msg, usernameIndex):
		return ErrDuplicateUsername
	case strings.Contains(msg, mobileIndex):
		return ErrDuplicateMobile
	default:
		return ErrDuplicateEmail
	}
}
