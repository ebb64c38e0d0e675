package main

import (
	"context"
	"database/sql"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/davicafu/hexadelivery/internal/config"
	deliveryDomain "github.com/davicafu/hexadelivery/internal/delivery/domain"
	deliveryMongo "github.com/davicafu/hexadelivery/internal/delivery/infra/outbound/db/mongodb"
	deliveryPostgres "github.com/davicafu/hexadelivery/internal/delivery/infra/outbound/db/postgre"
	deliverySQLite "github.com/davicafu/hexadelivery/internal/delivery/infra/outbound/db/sqlite"
	orderDomain "github.com/davicafu/hexadelivery/internal/order/domain"
	orderMongo "github.com/davicafu/hexadelivery/internal/order/infra/outbound/db/mongodb"
	orderPostgres "github.com/davicafu/hexadelivery/internal/order/infra/outbound/db/postgre"
	orderSQLite "github.com/davicafu/hexadelivery/internal/order/infra/outbound/db/sqlite"
	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
	sharedHttp "github.com/davicafu/hexadelivery/internal/shared/infra/http"
	sharedMongo "github.com/davicafu/hexadelivery/internal/shared/infra/platform/db/mongodb"
	sharedPostgres "github.com/davicafu/hexadelivery/internal/shared/infra/platform/db/postgres"
	sharedSQLite "github.com/davicafu/hexadelivery/internal/shared/infra/platform/db/sqlite"
	sharedUtils "github.com/davicafu/hexadelivery/internal/shared/infra/utils"
)

// storage agrupa los repositorios de un mismo backend. Pedidos, entregas y outbox
// comparten base de datos: así el outbox se escribe en la transacción del agregado.
type storage struct {
	deliveries deliveryDomain.DeliveryRepository
	orders     orderDomain.OrderRepository
	outbox     sharedDomain.OutboxStore
	check      sharedHttp.Check
	close      func(ctx context.Context) error
}

func openStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (*storage, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		return openPostgres(ctx, cfg, log)
	case config.DriverMongo:
		return openMongo(ctx, cfg, log)
	default:
		return openSQLite(ctx, cfg, log)
	}
}

func openSQLite(ctx context.Context, cfg *config.Config, log *zap.Logger) (*storage, error) {
	db, err := sharedSQLite.Open(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	if err := initSQL(ctx, db, deliverySQLite.InitDeliverySchema, orderSQLite.InitOrderSchema); err != nil {
		db.Close()
		return nil, err
	}

	log.Info("🗄️ SQLite listo", zap.String("path", cfg.SQLitePath))
	return &storage{
		deliveries: deliverySQLite.NewDeliveryRepoSQLite(db),
		orders:     orderSQLite.NewOrderRepoSQLite(db),
		outbox:     sharedSQLite.NewOutboxRepoSQLite(db),
		check:      db.PingContext,
		close:      func(context.Context) error { return db.Close() },
	}, nil
}

func openPostgres(ctx context.Context, cfg *config.Config, log *zap.Logger) (*storage, error) {
	db, err := sharedPostgres.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := sharedUtils.ConnectWithRetry(ctx, log, "postgres", cfg.ConnectTimeout, db.PingContext); err != nil {
		db.Close()
		return nil, err
	}
	if err := initSQL(ctx, db, deliveryPostgres.InitPostgresDeliverySchema, orderPostgres.InitPostgresOrderSchema); err != nil {
		db.Close()
		return nil, err
	}

	log.Info("🐘 PostgreSQL listo")
	return &storage{
		deliveries: deliveryPostgres.NewDeliveryRepoPostgres(db),
		orders:     orderPostgres.NewOrderRepoPostgres(db),
		outbox:     sharedPostgres.NewOutboxRepoPostgres(db),
		check:      db.PingContext,
		close:      func(context.Context) error { return db.Close() },
	}, nil
}

// openMongo necesita un replica set: las transacciones multi-documento no existen en un standalone.
func openMongo(ctx context.Context, cfg *config.Config, log *zap.Logger) (*storage, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	ping := func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) }
	if err := sharedUtils.ConnectWithRetry(ctx, log, "mongodb", cfg.ConnectTimeout, ping); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	deliveries, err := deliveryMongo.NewDeliveryRepoMongoDB(ctx, client, cfg.MongoDB)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	log.Info("🍃 MongoDB listo", zap.String("db", cfg.MongoDB))
	return &storage{
		deliveries: deliveries,
		orders:     orderMongo.NewOrderRepoMongoDB(client, cfg.MongoDB),
		outbox:     sharedMongo.NewOutboxRepoMongoDB(client, cfg.MongoDB),
		check:      ping,
		close:      client.Disconnect,
	}, nil
}

func initSQL(ctx context.Context, db *sql.DB, inits ...func(context.Context, *sql.DB) error) error {
	for _, initSchema := range inits {
		if err := initSchema(ctx, db); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}
