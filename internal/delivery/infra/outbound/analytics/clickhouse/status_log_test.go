package clickhouse

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	deliveryDomain "github.com/davicafu/hexadelivery/internal/delivery/domain"
)

func TestStatusLogRepo_LogAndCount(t *testing.T) {
	addr := os.Getenv("CLICKHOUSE_ADDR")
	if addr == "" {
		t.Skip("CLICKHOUSE_ADDR no definida; se omite el test de ClickHouse")
	}
	ctx := context.Background()
	repo, err := NewStatusLogRepo(ctx, addr, "default")
	require.NoError(t, err)
	defer repo.Close()
	require.NoError(t, repo.InitSchema(ctx))

	// Ventana propia para no contar filas de ejecuciones anteriores.
	base := time.Now().UTC().Truncate(time.Millisecond).Add(-time.Hour)
	id := "DEL-CH-" + base.Format("150405.000")
	changes := []deliveryDomain.StatusChange{
		{DeliveryID: id, OrderNumber: "ORD-1", Status: deliveryDomain.DeliveryCreated, OccurredAt: base},
		{DeliveryID: id, OrderNumber: "ORD-1", Status: deliveryDomain.DeliveryConfirmed, OccurredAt: base.Add(time.Millisecond)},
	}

	require.NoError(t, repo.LogBatch(ctx, changes))
	counts, err := repo.CountByStatus(ctx, base, base.Add(time.Millisecond))

	require.NoError(t, err)
	got := map[deliveryDomain.DeliveryStatus]uint64{}
	for _, c := range counts {
		got[c.Status] = c.Count
	}
	assert.GreaterOrEqual(t, got[deliveryDomain.DeliveryCreated], uint64(1))
	assert.GreaterOrEqual(t, got[deliveryDomain.DeliveryConfirmed], uint64(1))
}
