package events

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	deliveryDomain "github.com/davicafu/hexadelivery/internal/delivery/domain"
)

type recordingAnalytics struct {
	batches  [][]deliveryDomain.StatusChange
	failNext error
	down     bool
}

func (r *recordingAnalytics) LogBatch(ctx context.Context, changes []deliveryDomain.StatusChange) error {
	if r.down {
		return errors.New("clickhouse down")
	}
	if err := r.failNext; err != nil {
		r.failNext = nil
		return err
	}
	r.batches = append(r.batches, append([]deliveryDomain.StatusChange(nil), changes...))
	return nil
}

func (r *recordingAnalytics) CountByStatus(ctx context.Context, start, end time.Time) ([]deliveryDomain.StatusCount, error) {
	return nil, nil
}

const (
	createdPayload = `{"eventType":"DeliveryCreated","aggregateBusinessId":"DEL-1","occurredAt":"2026-03-10T09:00:00Z","orderNumber":"ORD-1","status":"CREATED"}`
	changedPayload = `{"eventType":"DeliveryStatusChanged","aggregateBusinessId":"DEL-1","occurredAt":"2026-03-10T10:00:00Z","orderNumber":"ORD-1","status":"CONFIRMED"}`
	orderPayload   = `{"eventType":"OrderCreated","aggregateBusinessId":"ORD-1","occurredAt":"2026-03-10T09:00:00Z"}`
)

func TestStatusProjector_FlushesWhenBatchIsFull(t *testing.T) {
	// Arrange
	repo := &recordingAnalytics{}
	p := NewStatusProjector(repo, 2, zap.NewNop())
	ctx := context.Background()

	// Act
	require.NoError(t, p.HandleMessage(ctx, "", []byte(createdPayload)))
	require.NoError(t, p.HandleMessage(ctx, "", []byte(orderPayload)))
	assert.Empty(t, repo.batches)
	require.NoError(t, p.HandleMessage(ctx, "", []byte(changedPayload)))

	// Assert
	require.Len(t, repo.batches, 1)
	batch := repo.batches[0]
	require.Len(t, batch, 2)
	assert.Equal(t, deliveryDomain.DeliveryCreated, batch[0].Status)
	assert.Equal(t, deliveryDomain.DeliveryConfirmed, batch[1].Status)
	assert.Equal(t, "DEL-1", batch[1].DeliveryID)
	assert.Equal(t, "ORD-1", batch[1].OrderNumber)
	assert.True(t, time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC).Equal(batch[1].OccurredAt))
}

func TestStatusProjector_KeepsBatchOnFailure(t *testing.T) {
	repo := &recordingAnalytics{failNext: errors.New("clickhouse down")}
	p := NewStatusProjector(repo, 10, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, p.HandleMessage(ctx, "", []byte(createdPayload)))

	assert.Error(t, p.Flush(ctx))
	require.NoError(t, p.Flush(ctx))

	require.Len(t, repo.batches, 1)
	assert.Len(t, repo.batches[0], 1)
	assert.NoError(t, p.Flush(ctx), "un lote vacío no llega al repositorio")
	assert.Len(t, repo.batches, 1)
}

func TestStatusProjector_RunFlushesOnShutdown(t *testing.T) {
	repo := &recordingAnalytics{}
	p := NewStatusProjector(repo, 10, zap.NewNop())
	require.NoError(t, p.HandleMessage(context.Background(), "", []byte(changedPayload)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, time.Hour)
		close(done)
	}()
	cancel()
	<-done

	require.Len(t, repo.batches, 1)
}

func TestStatusProjector_RejectsInvalidPayload(t *testing.T) {
	p := NewStatusProjector(&recordingAnalytics{}, 10, zap.NewNop())

	assert.Error(t, p.HandleMessage(context.Background(), "", []byte(`{`)))
}

func changedFor(id string) []byte {
	return []byte(fmt.Sprintf(`{"eventType":"DeliveryStatusChanged","aggregateBusinessId":%q,"occurredAt":"2026-03-10T10:00:00Z","orderNumber":"ORD-1","status":"CONFIRMED"}`, id))
}

func TestStatusProjector_BoundedWhileRepositoryIsDown(t *testing.T) {
	// Arrange
	repo := &recordingAnalytics{down: true}
	p := NewStatusProjector(repo, 2, zap.NewNop())
	ctx := context.Background()

	// Act: 25 cambios con capacidad para 2*10
	for i := 1; i <= 25; i++ {
		require.NoError(t, p.HandleMessage(ctx, "", changedFor(fmt.Sprintf("DEL-%d", i))))
	}

	// Assert
	assert.Equal(t, 20, p.Pending())

	repo.down = false
	require.NoError(t, p.Flush(ctx))
	require.Len(t, repo.batches, 1)
	batch := repo.batches[0]
	require.Len(t, batch, 20)
	assert.Equal(t, "DEL-6", batch[0].DeliveryID, "se descartan los más antiguos")
	assert.Equal(t, "DEL-25", batch[19].DeliveryID)
	assert.Equal(t, 0, p.Pending())
}

func TestStatusProjector_FlushFailureIsNotRedelivered(t *testing.T) {
	repo := &recordingAnalytics{failNext: errors.New("clickhouse down")}
	p := NewStatusProjector(repo, 1, zap.NewNop())
	ctx := context.Background()

	// El lote lleno intenta volcar, falla, y el mensaje se da por aceptado
	require.NoError(t, p.HandleMessage(ctx, "", []byte(createdPayload)))
	assert.Equal(t, 1, p.Pending())

	require.NoError(t, p.HandleMessage(ctx, "", []byte(changedPayload)))
	require.Len(t, repo.batches, 1)
	assert.Len(t, repo.batches[0], 2)
}
