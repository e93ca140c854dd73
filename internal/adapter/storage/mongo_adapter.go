package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rl1809/farm-market/internal/core/domain"
	"github.com/rl1809/farm-market/internal/port"
)

const mongoConnectTimeout = 5 * time.Second

// ConnectMongo dials uri and verifies the deployment is reachable.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetRegistry(mongoRegistry()).
		SetServerSelectionTimeout(mongoConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// MongoCollection stores one kind of owner-scoped record as documents keyed
// by _id, with owner_id indexed for listing.
type MongoCollection[T domain.Record[T]] struct {
	coll *mongo.Collection
}

func NewMongoCollection[T domain.Record[T]](db *mongo.Database, name string) *MongoCollection[T] {
	return &MongoCollection[T]{coll: db.Collection(name)}
}

var _ port.RecordRepository[domain.Reminder] = (*MongoCollection[domain.Reminder])(nil)

// EnsureIndexes creates the owner_id index used by ListByOwner.
func (c *MongoCollection[T]) EnsureIndexes(ctx context.Context) error {
	_, err := c.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create index on %s: %w", c.coll.Name(), err)
	}
	return nil
}

func (c *MongoCollection[T]) Create(ctx context.Context, record T) error {
	_, err := c.coll.InsertOne(ctx, record)
	if mongo.IsDuplicateKeyError(err) {
		return port.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert %s: %w", c.coll.Name(), err)
	}
	return nil
}

func (c *MongoCollection[T]) Get(ctx context.Context, id string) (T, error) {
	var record T
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return record, port.ErrNotFound
	}
	if err != nil {
		return record, fmt.Errorf("find %s: %w", c.coll.Name(), err)
	}
	return record, nil
}

func (c *MongoCollection[T]) Replace(ctx context.Context, record T) error {
	result, err := c.coll.ReplaceOne(ctx, bson.M{"_id": record.RecordID()}, record)
	if err != nil {
		return fmt.Errorf("replace %s: %w", c.coll.Name(), err)
	}
	if result.MatchedCount == 0 {
		return port.ErrNotFound
	}
	return nil
}

func (c *MongoCollection[T]) Delete(ctx context.Context, id string) error {
	result, err := c.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete %s: %w", c.coll.Name(), err)
	}
	if result.DeletedCount == 0 {
		return port.ErrNotFound
	}
	return nil
}

func (c *MongoCollection[T]) ListByOwner(ctx context.Context, ownerID string) ([]T, error) {
	cursor, err := c.coll.Find(ctx, bson.M{"owner_id": ownerID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", c.coll.Name(), err)
	}

	var records []T
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.coll.Name(), err)
	}
	return records, nil
}
