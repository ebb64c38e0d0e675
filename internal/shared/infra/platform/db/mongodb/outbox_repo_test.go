package mongodb

import (
	"context"
	"os"
	"testing"
	"time"

	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestOutboxRepoMongoDB_Lifecycle(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI no definida, se omite el test de MongoDB")
	}
	ctx := context.Background()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	defer client.Disconnect(ctx)

	dbName := "hexadelivery_outbox_test"
	db := client.Database(dbName)
	require.NoError(t, db.Drop(ctx))
	require.NoError(t, EnsureOutboxIndexes(ctx, db))
	repo := NewOutboxRepoMongoDB(client, dbName)

	now := time.Now().UTC().Truncate(time.Millisecond)
	first, err := sharedDomain.NewOutboxMessage("Delivery", "DEL-1", "DeliveryCreated", []byte(`{}`), now)
	require.NoError(t, err)
	second, err := sharedDomain.NewOutboxMessage("Delivery", "DEL-2", "DeliveryCreated", []byte(`{}`), now.Add(time.Second))
	require.NoError(t, err)
	coll := db.Collection(OutboxCollection)
	require.NoError(t, InsertOutbox(ctx, coll, second))
	require.NoError(t, InsertOutbox(ctx, coll, first))

	due, err := repo.FetchDue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, first.ID, due[0].ID)

	// Sólo el primer claim gana
	claimed, err := repo.MarkProcessing(ctx, first.ID, now)
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = repo.MarkProcessing(ctx, first.ID, now)
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, repo.MarkProcessed(ctx, first.ID, now))
	require.NoError(t, repo.MarkProcessed(ctx, first.ID, now.Add(time.Minute)))
	got, err := repo.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, sharedDomain.OutboxProcessed, got.Status)
	require.NotNil(t, got.ProcessedAt)
	assert.True(t, now.Equal(*got.ProcessedAt))

	// Un claim colgado vuelve a PENDING
	claimed, err = repo.MarkProcessing(ctx, second.ID, now.Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, claimed)
	n, err := repo.ReclaimStuck(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[sharedDomain.OutboxProcessed])
	assert.Equal(t, int64(1), counts[sharedDomain.OutboxPending])
}
