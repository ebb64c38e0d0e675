package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	orderDomain "github.com/davicafu/hexadelivery/internal/order/domain"
	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
	sharedPostgres "github.com/davicafu/hexadelivery/internal/shared/infra/platform/db/postgres"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderRepoPostgres_ConfirmStagesOutbox(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL no definida, se omite el test de Postgres")
	}
	ctx := context.Background()
	db, err := sharedPostgres.Open(dsn)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, InitPostgresOrderSchema(ctx, db))
	_, err = db.ExecContext(ctx, `TRUNCATE orders, outbox`)
	require.NoError(t, err)

	repo := NewOrderRepoPostgres(db)
	now := time.Now().UTC().Truncate(time.Millisecond)
	o, _, err := orderDomain.NewOrder("ORD-1", "CUST-1",
		orderDomain.ShippingAddress{Street: "Gran Vía 1", City: "Madrid", PostalCode: "28013", Country: "ES"},
		[]orderDomain.Item{{ProductNumber: "P-1", Quantity: 2, UnitPrice: decimal.RequireFromString("4.35")}},
		now)
	require.NoError(t, err)
	created, err := sharedDomain.NewOutboxMessage("Order", "ORD-1", "OrderCreated", []byte(`{}`), now)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, o, []sharedDomain.OutboxMessage{created}))

	_, err = o.Confirm(now)
	require.NoError(t, err)
	confirmed, err := sharedDomain.NewOutboxMessage("Order", "ORD-1", "OrderConfirmed", []byte(`{}`), now)
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, o, []sharedDomain.OutboxMessage{confirmed}))

	got, err := repo.GetByNumber(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, orderDomain.OrderConfirmed, got.Status)
	assert.True(t, decimal.RequireFromString("8.70").Equal(got.Total()))

	counts, err := sharedPostgres.NewOutboxRepoPostgres(db).CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[sharedDomain.OutboxPending])

	stale := *got
	stale.Version = 1
	assert.ErrorIs(t, repo.Update(ctx, &stale, nil), orderDomain.ErrConcurrentModification)

	deleted, err := sharedDomain.NewOutboxMessage("Order", "ORD-1", "OrderDeleted", []byte(`{}`), now)
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, "ORD-1", []sharedDomain.OutboxMessage{deleted}))
	_, err = repo.GetByNumber(ctx, "ORD-1")
	assert.ErrorIs(t, err, orderDomain.ErrOrderNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "ORD-1", nil), orderDomain.ErrOrderNotFound)
}
