package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
	"github.com/davicafu/hexadelivery/pkg/utils"
)

const checkTimeout = 2 * time.Second

// Check comprueba una dependencia (base de datos, broker...). nil es sano.
type Check func(ctx context.Context) error

// OpsHandler expone salud del proceso y estado del outbox.
type OpsHandler struct {
	outbox sharedDomain.OutboxStore
	checks map[string]Check
	log    *zap.Logger
}

func NewOpsHandler(outbox sharedDomain.OutboxStore, checks map[string]Check, log *zap.Logger) *OpsHandler {
	return &OpsHandler{outbox: outbox, checks: checks, log: log}
}

// Health endpoint GET /health. 503 si alguna dependencia falla.
func (h *OpsHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Warn("⚠️ Health check fallido", zap.String("check", name), zap.Error(err))
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "checks": results})
}

// OutboxStats endpoint GET /outbox/stats: filas por estado, con cero para los que no tienen.
func (h *OpsHandler) OutboxStats(c *gin.Context) {
	counts, err := h.outbox.CountByStatus(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		utils.SendInternalServerError(c, "could not read outbox stats")
		return
	}

	stats := make(map[string]int64, 4)
	for _, s := range []sharedDomain.OutboxStatus{
		sharedDomain.OutboxPending,
		sharedDomain.OutboxProcessing,
		sharedDomain.OutboxProcessed,
		sharedDomain.OutboxFailed,
	} {
		stats[string(s)] = counts[s]
	}
	utils.SendSuccess(c, http.StatusOK, stats)
}

func RegisterOpsRoutes(r gin.IRouter, handler *OpsHandler) {
	r.GET("/health", handler.Health)
	r.GET("/outbox/stats", handler.OutboxStats)
}
