package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eaglebank/identity-service/shared/apperr"
	"github.com/eaglebank/identity-service/shared/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const accountsCollection = "accounts"

// accountDocument is the BSON shape of an account. An absent otp field means
// no outstanding code.
type accountDocument struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	Mobile       string    `bson:"mobile"`
	PasswordHash string    `bson:"password_hash"`
	OTP          string    `bson:"otp,omitempty"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func toDocument(a *models.Account) accountDocument {
	return accountDocument{
		ID:           a.ID,
		Name:         a.Name,
		Email:        a.Email,
		Mobile:       a.Mobile,
		PasswordHash: a.PasswordHash,
		OTP:          a.OTP,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func (d *accountDocument) toModel() *models.Account {
	return &models.Account{
		ID:           d.ID,
		Name:         d.Name,
		Email:        d.Email,
		Mobile:       d.Mobile,
		PasswordHash: d.PasswordHash,
		OTP:          d.OTP,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// MongoAccountRepository stores accounts as documents. Single-document
// updates are atomic in MongoDB, which covers the per-record guarantees.
type MongoAccountRepository struct {
	col *mongo.Collection
}

func NewMongoAccountRepository(db *mongo.Database) *MongoAccountRepository {
	return &MongoAccountRepository{col: db.Collection(accountsCollection)}
}

// EnsureIndexes creates the unique email and mobile indexes.
func (r *MongoAccountRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName(emailConstraint)},
		{Keys: bson.D{{Key: "mobile", Value: 1}}, Options: options.Index().SetUnique(true).SetName(mobileConstraint)},
	})
	if err != nil {
		return fmt.Errorf("failed to create account indexes: %w", err)
	}
	return nil
}

func (r *MongoAccountRepository) Create(ctx context.Context, account *models.Account) error {
	if _, err := r.col.InsertOne(ctx, toDocument(account)); err != nil {
		if mapped := mapDuplicateKey(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *MongoAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *MongoAccountRepository) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	return r.exists(ctx, bson.M{"email": email, "_id": bson.M{"$ne": excludeID}})
}

func (r *MongoAccountRepository) MobileTaken(ctx context.Context, mobile, excludeID string) (bool, error) {
	return r.exists(ctx, bson.M{"mobile": mobile, "_id": bson.M{"$ne": excludeID}})
}

func (r *MongoAccountRepository) UpdateProfile(ctx context.Context, id, name, email, mobile string, at time.Time) error {
	update := bson.M{"$set": bson.M{"name": name, "email": email, "mobile": mobile, "updated_at": at}}
	result, err := r.col.UpdateByID(ctx, id, update)
	if err != nil {
		if mapped := mapDuplicateKey(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("failed to update account: %w", err)
	}
	if result.MatchedCount == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *MongoAccountRepository) SetOTP(ctx context.Context, id, otp string, at time.Time) error {
	result, err := r.col.UpdateByID(ctx, id, bson.M{"$set": bson.M{"otp": otp, "updated_at": at}})
	if err != nil {
		return fmt.Errorf("failed to store otp: %w", err)
	}
	if result.MatchedCount == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// ConsumeOTP matches on email and otp and unsets the otp in one
// findAndModify, so a code is accepted at most once.
func (r *MongoAccountRepository) ConsumeOTP(ctx context.Context, email, otp string, at time.Time) (*models.Account, error) {
	filter := bson.M{"email": email, "otp": otp}
	update := bson.M{
		"$unset": bson.M{"otp": ""},
		"$set":   bson.M{"updated_at": at},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc accountDocument
	err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume otp: %w", err)
	}
	return doc.toModel(), nil
}

func (r *MongoAccountRepository) UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	result, err := r.col.UpdateByID(ctx, id, bson.M{"$set": bson.M{"password_hash": hash, "updated_at": at}})
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if result.MatchedCount == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *MongoAccountRepository) findOne(ctx context.Context, filter bson.M) (*models.Account, error) {
	var doc accountDocument
	err := r.col.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return doc.toModel(), nil
}

func (r *MongoAccountRepository) exists(ctx context.Context, filter bson.M) (bool, error) {
	n, err := r.col.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check account uniqueness: %w", err)
	}
	return n > 0, nil
}

func mapDuplicateKey(err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, emailConstraint):
		return apperr.ErrDuplicateEmail
	case strings.Contains(msg, mobileConstraint):
		return apperr.ErrDuplicateMobile
	default:
		return fmt.Errorf("duplicate key: %w", apperr.ErrValidation)
	}
}
