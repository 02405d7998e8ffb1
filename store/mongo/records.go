package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rbaliyan/board/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
)

func (s *Store) Create(ctx context.Context, rec *store.Record) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if _, err := s.collection.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicateEntry
		}
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*store.Record, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, store.ErrInvalidID
	}
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *Store) GetByHash(ctx context.Context, hash string) (*store.Record, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if hash == "" {
		return nil, store.ErrNotFound
	}
	return s.findOne(ctx, bson.M{"hash": hash})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*store.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var rec store.Record
	if err := s.collection.FindOne(ctx, filter).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("find record: %w", err)
	}
	return &rec, nil
}

func (s *Store) IncrementRef(ctx context.Context, id string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	res, err := s.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"ref_count": 1}})
	if err != nil {
		return fmt.Errorf("increment ref: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DecrementRefAndDeleteIfZero decrements with findOneAndUpdate and then deletes
// only while the count is still at or below zero, so a concurrent IncrementRef
// between the two steps keeps the record alive.
func (s *Store) DecrementRefAndDeleteIfZero(ctx context.Context, id string) (bool, string, error) {
	if err := s.checkConnected(); err != nil {
		return false, "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var rec store.Record
	opts := mongoopts.FindOneAndUpdate().SetReturnDocument(mongoopts.After)
	err := s.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"ref_count": -1}},
		opts,
	).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, "", store.ErrNotFound
	}
	if err != nil {
		return false, "", fmt.Errorf("decrement ref: %w", err)
	}
	if rec.RefCount > 0 {
		return false, "", nil
	}

	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": id, "ref_count": bson.M{"$lte": 0}})
	if err != nil {
		return false, "", fmt.Errorf("delete record: %w", err)
	}
	if res.DeletedCount == 0 {
		return false, "", nil
	}
	return true, rec.URI, nil
}

func (s *Store) DeleteIfUnreferenced(ctx context.Context, id string) (string, error) {
	if err := s.checkConnected(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var rec store.Record
	err := s.collection.FindOneAndDelete(ctx, bson.M{"_id": id, "ref_count": bson.M{"$lte": 0}}).Decode(&rec)
	if err == nil {
		return rec.URI, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return "", fmt.Errorf("delete record: %w", err)
	}

	n, err := s.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return "", fmt.Errorf("check record: %w", err)
	}
	if n > 0 {
		return "", store.ErrInUse
	}
	return "", store.ErrNotFound
}

func (s *Store) ListUnreferenced(ctx context.Context, before time.Time, limit int) ([]*store.Record, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.opts.listLimit
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	filter := bson.M{
		"ref_count":  bson.M{"$lte": 0},
		"created_at": bson.M{"$lt": before},
	}
	opts := mongoopts.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(limit))

	cur, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list unreferenced: %w", err)
	}
	var recs []*store.Record
	if err := cur.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return recs, nil
}
