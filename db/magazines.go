package db

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SetMagazine creates the magazine, assigning it a new ID, or replaces it if
// the ID is already set and exists.
func (ms *MongoStorage) SetMagazine(magazine *Magazine) error {
	if magazine == nil || magazine.Title == "" || !IsValidCategory(magazine.Category) {
		return ErrInvalidData
	}
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	ctx, cancel := defaultContext()
	defer cancel()

	if magazine.ID == "" {
		magazine.ID = uuid.NewString()
	}
	if magazine.CreatedAt.IsZero() {
		magazine.CreatedAt = time.Now()
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := ms.magazines.ReplaceOne(ctx, bson.M{"_id": magazine.ID}, magazine, opts); err != nil {
		return err
	}
	return nil
}

// Magazine returns the magazine with the given ID.
func (ms *MongoStorage) Magazine(id string) (*Magazine, error) {
	ms.keysLock.RLock()
	defer ms.keysLock.RUnlock()
	ctx, cancel := defaultContext()
	defer cancel()

	magazine := &Magazine{}
	if err := ms.magazines.FindOne(ctx, bson.M{"_id": id}).Decode(magazine); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return magazine, nil
}

// Magazines returns the newest magazines matching the filter.
func (ms *MongoStorage) Magazines(filter MagazineFilter) ([]Magazine, error) {
	if filter.Category != "" && !IsValidCategory(filter.Category) {
		return nil, ErrInvalidData
	}
	ms.keysLock.RLock()
	defer ms.keysLock.RUnlock()
	ctx, cancel := defaultContext()
	defer cancel()

	query := bson.M{}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultMagazinesLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(limit)
	magazines := []Magazine{}
	if err := findAll(ctx, ms.magazines, query, opts, &magazines); err != nil {
		return nil, err
	}
	return magazines, nil
}
