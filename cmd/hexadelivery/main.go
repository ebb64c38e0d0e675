package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/davicafu/hexadelivery/internal/config"
	deliveryApp "github.com/davicafu/hexadelivery/internal/delivery/application"
	deliveryEvents "github.com/davicafu/hexadelivery/internal/delivery/infra/inbound/events"
	deliveryHttp "github.com/davicafu/hexadelivery/internal/delivery/infra/inbound/http"
	deliveryAnalytics "github.com/davicafu/hexadelivery/internal/delivery/infra/outbound/analytics/clickhouse"
	orderApp "github.com/davicafu/hexadelivery/internal/order/application"
	orderHttp "github.com/davicafu/hexadelivery/internal/order/infra/inbound/http"
	sharedHttp "github.com/davicafu/hexadelivery/internal/shared/infra/http"
	sharedCache "github.com/davicafu/hexadelivery/internal/shared/infra/platform/cache"
	"github.com/davicafu/hexadelivery/internal/shared/infra/relayer"
	sharedUtils "github.com/davicafu/hexadelivery/internal/shared/infra/utils"
	"github.com/davicafu/hexadelivery/pkg/clock"
	"github.com/davicafu/hexadelivery/pkg/logger"
)

const (
	shutdownTimeout   = 10 * time.Second
	projectorInterval = 5 * time.Second
)

// ---------------- Main ----------------
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		// Sin configuración válida no hay nivel: se informa con el de por defecto.
		logger.Init("")
		logger.Logger().Fatal("invalid configuration", zap.Error(err))
	}

	logger.Init(cfg.LogLevel) // inicializa zap
	log := logger.Logger()    // obtiene logger estructurado
	defer log.Sync()          // flush buffers al salir

	if err := run(cfg, log); err != nil {
		log.Fatal("❌ hexadelivery terminó con error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Los procesos de fondo tienen su propio ctx: se cancela después de parar HTTP.
	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()
	var bgWG sync.WaitGroup

	// ---------------- DB ----------------
	store, err := openStorage(rootCtx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.close(context.Background()); err != nil {
			log.Warn("Error al cerrar el almacenamiento", zap.Error(err))
		}
	}()

	// ---------------- Cache ----------------
	cache, stopCache := openCache(rootCtx, cfg, log)
	defer stopCache()

	// --------------- Servicios --------------
	clk := clock.NewRealClock()
	deliveryService := deliveryApp.NewDeliveryService(store.deliveries, cache, clk, log)
	orderService := orderApp.NewOrderService(store.orders, cache, clk, log)

	// ---------------- Events ---------------
	bus, err := openMessaging(rootCtx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.close(); err != nil {
			log.Warn("Error al cerrar el bus de eventos", zap.Error(err))
		}
	}()

	bus.subscribe(bgCtx, subscription{
		routingKey: orderConfirmedKey,
		handler:    deliveryEvents.NewOrderConfirmedConsumer(deliveryService, log),
	})

	if cfg.ClickHouseAddr != "" {
		projector, closeAnalytics, err := openProjector(rootCtx, cfg, log)
		if err != nil {
			return err
		}
		defer closeAnalytics()
		for _, key := range []string{deliveryCreatedKey, deliveryStatusChangedKey} {
			bus.subscribe(bgCtx, subscription{routingKey: key, group: "-analytics", handler: projector})
		}
		bgWG.Add(1)
		go func() {
			defer bgWG.Done()
			projector.Run(bgCtx, projectorInterval)
		}()
	}

	// ------------ Outbox Worker ------------
	worker := relayer.NewOutboxWorker(store.outbox, bus.publisher, log,
		relayer.WithInterval(cfg.OutboxInterval),
		relayer.WithBatchSize(cfg.OutboxBatchSize),
		relayer.WithPublishTimeout(cfg.OutboxPublishTimeout),
		relayer.WithReclaimAfter(cfg.OutboxReclaimAfter),
		relayer.WithMaxAttempts(cfg.OutboxMaxAttempts),
		relayer.WithConcurrency(cfg.OutboxConcurrency),
		relayer.WithKeyedPublisher(bus.keyed),
		relayer.WithClock(clk),
	)
	go worker.Start(bgCtx)

	// ---------------- HTTP ----------------
	router := gin.Default()
	deliveryHttp.RegisterDeliveryRoutes(router, deliveryHttp.NewDeliveryHandler(deliveryService))
	orderHttp.RegisterOrderRoutes(router, orderHttp.NewOrderHandler(orderService))
	sharedHttp.RegisterOpsRoutes(router, sharedHttp.NewOpsHandler(store.outbox, map[string]sharedHttp.Check{
		"storage": store.check,
		"broker":  bus.check,
	}, log))

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: router}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("🚀 Server running", zap.String("url", "http://localhost:"+cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-rootCtx.Done():
		log.Info("🛑 Señal recibida, apagando...")
	case runErr = <-serveErr:
	}

	// Orden de apagado: HTTP deja de aceptar, el worker termina el mensaje en curso,
	// después se cierran consumidores, broker y base de datos (defers).
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incompleto", zap.Error(err))
	}
	cancelBg()
	worker.Stop()
	bgWG.Wait()
	log.Info("👋 hexadelivery detenido")
	return runErr
}

// openCache usa Redis si responde; si no, cae a la caché en memoria.
func openCache(ctx context.Context, cfg *config.Config, log *zap.Logger) (sharedCache.Cache, func()) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	redisCache := sharedCache.NewRedisCache(rdb, "hexadelivery:", cfg.CacheTTL)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := redisCache.Ping(pingCtx); err != nil {
		log.Warn("⚠️ Redis no disponible, cache en memoria", zap.Error(err))
		_ = rdb.Close()
		mem := sharedCache.NewInMemoryCache(cfg.CacheTTL, 3*cfg.CacheTTL)
		return mem, mem.Stop
	}

	log.Info("✅ Redis conectado, cache habilitado")
	return redisCache, func() { _ = rdb.Close() }
}

func openProjector(ctx context.Context, cfg *config.Config, log *zap.Logger) (*deliveryEvents.StatusProjector, func(), error) {
	var repo *deliveryAnalytics.StatusLogRepo
	connect := func(ctx context.Context) error {
		var err error
		repo, err = deliveryAnalytics.NewStatusLogRepo(ctx, cfg.ClickHouseAddr, cfg.ClickHouseDB)
		return err
	}
	if err := sharedUtils.ConnectWithRetry(ctx, log, "clickhouse", cfg.ConnectTimeout, connect); err != nil {
		return nil, nil, err
	}
	if err := repo.InitSchema(ctx); err != nil {
		repo.Close()
		return nil, nil, err
	}

	log.Info("📊 Proyección analítica en ClickHouse activada", zap.String("addr", cfg.ClickHouseAddr))
	return deliveryEvents.NewStatusProjector(repo, 0, log), func() { _ = repo.Close() }, nil
}
