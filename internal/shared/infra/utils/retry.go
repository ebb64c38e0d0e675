package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry ejecuta fn hasta attempts veces con una espera fija entre intentos.
// Se corta en cuanto fn devuelve nil, un error envuelto con backoff.Permanent
// o el contexto se cancela.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1))
	return backoff.Retry(fn, backoff.WithContext(policy, ctx))
}
