package cache

import (
	"context"
)

// Cache es una caché clave-valor genérica. Los valores viajan serializados en JSON.
type Cache interface {
	// Get rellena dest (puntero). (true, nil) es un hit; (false, nil) un miss.
	Get(ctx context.Context, key string, dest interface{}) (bool, error)

	// Set guarda el valor con un TTL en segundos; 0 usa el TTL por defecto de la implementación.
	Set(ctx context.Context, key string, val interface{}, ttlSecs int) error

	Delete(ctx context.Context, key string) error
}
