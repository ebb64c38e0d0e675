package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	deliveryDomain "github.com/davicafu/hexadelivery/internal/delivery/domain"
	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
	sharedPostgres "github.com/davicafu/hexadelivery/internal/shared/infra/platform/db/postgres"
	sharedQuery "github.com/davicafu/hexadelivery/internal/shared/infra/platform/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL no definida, se omite el test de Postgres")
	}
	db, err := sharedPostgres.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, InitPostgresDeliverySchema(ctx, db))
	_, err = db.ExecContext(ctx, `TRUNCATE deliveries, outbox`)
	require.NoError(t, err)
	return db
}

func TestDeliveryRepoPostgres_AtomicStaging(t *testing.T) {
	// Arrange
	ctx := context.Background()
	db := setupPostgres(t)
	repo := NewDeliveryRepoPostgres(db)
	now := time.Now().UTC().Truncate(time.Millisecond)

	addr, err := deliveryDomain.NewAddress("Calle Mayor 1", "Madrid", "", "28013", "ES")
	require.NoError(t, err)
	d, _, err := deliveryDomain.NewDelivery("DEL-1", "ORD-1", addr, nil, "", now)
	require.NoError(t, err)
	created, err := sharedDomain.NewOutboxMessage("Delivery", "DEL-1", "DeliveryCreated", []byte(`{}`), now)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, d, []sharedDomain.OutboxMessage{created}))

	// Act: reutilizar el id del mensaje fuerza el fallo del INSERT del outbox
	_, err = d.Confirm(now)
	require.NoError(t, err)
	err = repo.Update(ctx, d, []sharedDomain.OutboxMessage{created})

	// Assert
	require.Error(t, err)
	stored, err := repo.GetByID(ctx, "DEL-1")
	require.NoError(t, err)
	assert.Equal(t, deliveryDomain.DeliveryCreated, stored.Status)

	list, err := repo.ListByCriteria(ctx, deliveryDomain.CityCriteria{City: "madrid"}, sharedQuery.OffsetPagination{Limit: 10}, sharedQuery.Sort{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDeliveryRepoPostgres_DeleteStagesOutbox(t *testing.T) {
	// Arrange
	ctx := context.Background()
	db := setupPostgres(t)
	repo := NewDeliveryRepoPostgres(db)
	now := time.Now().UTC().Truncate(time.Millisecond)

	addr, err := deliveryDomain.NewAddress("Calle Mayor 1", "Madrid", "", "28013", "ES")
	require.NoError(t, err)
	d, _, err := deliveryDomain.NewDelivery("DEL-1", "ORD-1", addr, nil, "", now)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, d, nil))
	deleted, err := sharedDomain.NewOutboxMessage("Delivery", "DEL-1", "DeliveryDeleted", []byte(`{}`), now)
	require.NoError(t, err)

	// Act
	err = repo.Delete(ctx, "DEL-1", []sharedDomain.OutboxMessage{deleted})

	// Assert
	require.NoError(t, err)
	_, err = repo.GetByID(ctx, "DEL-1")
	assert.ErrorIs(t, err, deliveryDomain.ErrDeliveryNotFound)
	counts, err := sharedPostgres.NewOutboxRepoPostgres(db).CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[sharedDomain.OutboxPending])
	assert.ErrorIs(t, repo.Delete(ctx, "DEL-1", nil), deliveryDomain.ErrDeliveryNotFound)
}
