// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/microauthx/microauthx/internal/models"
)

// ErrDuplicate is the storage-agnostic conflict signal. The store's unique
// index is the authoritative arbiter: a race between an existence check and
// the insert still surfaces as ErrDuplicate, never a silent overwrite.
var ErrDuplicate = errors.New("user already exists")

// UserRepository defines the interface for identity record operations.
type UserRepository interface {
	// Insert persists a new user. Returns ErrDuplicate when a record with
	// the same username or email already exists.
	Insert(ctx context.Context, user *models.User) error

	// FindByEmail returns the user with the given (normalized) email,
	// or (nil, nil) when no user matches.
	FindByEmail(ctx context.Context, email string) (*models.User, error)

	// FindByEmailOrUsername returns a user matching either field,
	// or (nil, nil) when none does.
	FindByEmailOrUsername(ctx context.Context, email, username string) (*models.User, error)

	// UpdateLastLogin sets the last-login timestamp for the given user.
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error

	// Count returns the total number of users.
	Count(ctx context.Context) (int64, error)

	// CountCreatedSince returns the number of users created at or after t.
	CountCreatedSince(ctx context.Context, t time.Time) (int64, error)
}

type userRepo struct {
	coll *mongo.Collection
}

// NewUserRepository creates a MongoDB-backed user repository.
func NewUserRepository(db *mongo.Database) UserRepository {
	return &userRepo{coll: db.Collection("users")}
}

// EnsureIndexes creates the unique username/email indexes. Must run once at
// startup before any insert; uniqueness enforcement lives in these indexes.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection("users")
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}
	return nil
}

func (r *userRepo) Insert(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := r.coll.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.coll.FindOne(ctx, bson.D{{Key: "email", Value: email}}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) FindByEmailOrUsername(ctx context.Context, email, username string) (*models.User, error) {
	filter := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "email", Value: email}},
		bson.D{{Key: "username", Value: username}},
	}}}

	var user models.User
	err := r.coll.FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "last_login_at", Value: at}}}},
	)
	return err
}

func (r *userRepo) Count(ctx context.Context) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.D{})
}

func (r *userRepo) CountCreatedSince(ctx context.Context, t time.Time) (int64, error) {
	filter := bson.D{{Key: "created_at", Value: bson.D{{Key: "$gte", Value: t}}}}
	return r.coll.CountDocuments(ctx, filter)
}
