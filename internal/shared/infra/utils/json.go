package utils

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	sharedEvents "github.com/davicafu/hexadelivery/internal/shared/events"
)

// UnmarshalAndHandle decodifica data como T y se lo pasa a handler.
// Un payload que no decodifica se registra y se devuelve como error: reintentarlo no lo arregla.
func UnmarshalAndHandle[T any](log *zap.Logger, data []byte, handler func(T) error) error {
	var evt T
	if err := json.Unmarshal(data, &evt); err != nil {
		log.Warn("Failed to unmarshal event data", zap.Error(err))
		return fmt.Errorf("%w: unmarshal %T: %w", sharedEvents.ErrMalformedPayload, evt, err)
	}
	return handler(evt)
}
