package db

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SetSchedule stores a new scheduled charge in SCHEDULED status. The payment
// ID must be unique, ErrAlreadyExists is returned otherwise.
func (ms *MongoStorage) SetSchedule(schedule *Schedule) error {
	if schedule == nil || schedule.PaymentID == "" || schedule.BillingKey == "" || schedule.TimeToPay.IsZero() {
		return ErrInvalidData
	}
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	ctx, cancel := defaultContext()
	defer cancel()

	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	now := time.Now()
	schedule.Status = ScheduleStatusScheduled
	schedule.CreatedAt = now
	schedule.UpdatedAt = now
	if _, err := ms.schedules.InsertOne(ctx, schedule); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Schedule returns the schedule with the given ID.
func (ms *MongoStorage) Schedule(id string) (*Schedule, error) {
	ms.keysLock.RLock()
	defer ms.keysLock.RUnlock()
	ctx, cancel := defaultContext()
	defer cancel()

	schedule := &Schedule{}
	if err := ms.schedules.FindOne(ctx, bson.M{"_id": id}).Decode(schedule); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return schedule, nil
}

// Schedules returns the schedules matching the filter, ordered by time to
// pay.
func (ms *MongoStorage) Schedules(filter ScheduleFilter) ([]Schedule, error) {
	ms.keysLock.RLock()
	defer ms.keysLock.RUnlock()
	ctx, cancel := defaultContext()
	defer cancel()

	query := bson.M{}
	if filter.BillingKey != "" {
		query["billingKey"] = filter.BillingKey
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if r := timeRange(filter.From, filter.Until); r != nil {
		query["timeToPay"] = r
	}
	schedules := []Schedule{}
	opts := options.Find().SetSort(bson.D{{Key: "timeToPay", Value: 1}})
	if err := findAll(ctx, ms.schedules, query, opts, &schedules); err != nil {
		return nil, err
	}
	return schedules, nil
}

// RevokeSchedules marks the given pending schedules of the billing key as
// revoked and returns how many were changed.
func (ms *MongoStorage) RevokeSchedules(billingKey string, ids []string) (int64, error) {
	if billingKey == "" || len(ids) == 0 {
		return 0, ErrInvalidData
	}
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	ctx, cancel := defaultContext()
	defer cancel()

	res, err := ms.schedules.UpdateMany(ctx, bson.M{
		"_id":        bson.M{"$in": ids},
		"billingKey": billingKey,
		"status":     ScheduleStatusScheduled,
	}, bson.M{"$set": bson.M{
		"status":    ScheduleStatusRevoked,
		"updatedAt": time.Now(),
	}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// ClaimDueSchedule atomically moves one pending schedule whose time to pay
// is not after now to STARTED and returns it. It returns ErrNotFound when
// nothing is due, so concurrent workers never execute the same charge.
func (ms *MongoStorage) ClaimDueSchedule(now time.Time) (*Schedule, error) {
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	ctx, cancel := defaultContext()
	defer cancel()

	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "timeToPay", Value: 1}}).
		SetReturnDocument(options.After)
	schedule := &Schedule{}
	err := ms.schedules.FindOneAndUpdate(ctx, bson.M{
		"status":    ScheduleStatusScheduled,
		"timeToPay": bson.M{"$lte": now},
	}, bson.M{"$set": bson.M{
		"status":    ScheduleStatusStarted,
		"updatedAt": time.Now(),
	}}, opts).Decode(schedule)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return schedule, nil
}

// SetScheduleStatus updates the status of a schedule, recording lastError
// when it is not empty.
func (ms *MongoStorage) SetScheduleStatus(id string, status ScheduleStatus, lastError string) error {
	ms.keysLock.Lock()
	defer ms.keysLock.Unlock()
	ctx, cancel := defaultContext()
	defer cancel()

	set := bson.M{"status": status, "updatedAt": time.Now()}
	if lastError != "" {
		set["lastError"] = lastError
	}
	res, err := ms.schedules.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
