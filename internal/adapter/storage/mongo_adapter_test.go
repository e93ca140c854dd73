package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/rl1809/farm-market/internal/core/domain"
	"github.com/rl1809/farm-market/internal/port"
)

func getMongoDB(t *testing.T) *mongo.Database {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}

	client, err := ConnectMongo(context.Background(), uri)
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}

	db := client.Database("farmmarket_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		ctx := context.Background()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return db
}

func TestMongoCollection_CRUD(t *testing.T) {
	db := getMongoDB(t)
	ctx := context.Background()
	coll := NewMongoCollection[domain.Reminder](db, domain.CollectionReminders)
	require.NoError(t, coll.EnsureIndexes(ctx))

	now := time.Now().UTC().Truncate(time.Millisecond)
	r := domain.Reminder{Title: "Water corn", Kind: domain.ReminderWater}.WithIdentity("r1", "farmer-1", now, now)
	require.NoError(t, coll.Create(ctx, r))
	assert.ErrorIs(t, coll.Create(ctx, r), port.ErrDuplicate)

	got, err := coll.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "Water corn", got.Title)
	assert.Equal(t, "farmer-1", got.OwnerID)

	got.Completed = true
	require.NoError(t, coll.Replace(ctx, got))

	list, err := coll.ListByOwner(ctx, "farmer-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Completed)

	others, err := coll.ListByOwner(ctx, "farmer-2")
	require.NoError(t, err)
	assert.Empty(t, others)

	require.NoError(t, coll.Delete(ctx, "r1"))
	_, err = coll.Get(ctx, "r1")
	assert.ErrorIs(t, err, port.ErrNotFound)
	assert.ErrorIs(t, coll.Delete(ctx, "r1"), port.ErrNotFound)
	assert.ErrorIs(t, coll.Replace(ctx, got), port.ErrNotFound)
}
