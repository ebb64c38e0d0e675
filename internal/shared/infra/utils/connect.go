package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ConnectWithRetry reintenta connect con backoff exponencial durante maxElapsed como mucho.
// Pensado para el arranque: la base de datos o Kafka pueden tardar en estar disponibles.
func ConnectWithRetry(ctx context.Context, log *zap.Logger, name string, maxElapsed time.Duration, connect func(ctx context.Context) error) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 500 * time.Millisecond
	expBackoff.MaxInterval = 10 * time.Second
	expBackoff.MaxElapsedTime = maxElapsed

	operation := func() error {
		return connect(ctx)
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("⏳ Conexión fallida, reintentando",
			zap.String("target", name),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(expBackoff, ctx), notify); err != nil {
		return fmt.Errorf("failed to connect to %s after retries: %w", name, err)
	}
	return nil
}
