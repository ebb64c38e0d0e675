package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	orderDomain "github.com/davicafu/hexadelivery/internal/order/domain"
	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
	sharedMongo "github.com/davicafu/hexadelivery/internal/shared/infra/platform/db/mongodb"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// OrderRepoMongoDB implementa OrderRepository con transacciones de sesión.
type OrderRepoMongoDB struct {
	client     *mongo.Client
	ordersColl *mongo.Collection
	outboxColl *mongo.Collection
}

func NewOrderRepoMongoDB(client *mongo.Client, dbName string) *OrderRepoMongoDB {
	db := client.Database(dbName)
	return &OrderRepoMongoDB{
		client:     client,
		ordersColl: db.Collection("orders"),
		outboxColl: db.Collection(sharedMongo.OutboxCollection),
	}
}

var _ orderDomain.OrderRepository = (*OrderRepoMongoDB)(nil)

// decimal.Decimal no tiene codec BSON: el precio se guarda como texto.
type mongoItem struct {
	ProductNumber string `bson:"productNumber"`
	Quantity      int    `bson:"quantity"`
	UnitPrice     string `bson:"unitPrice"`
}

type mongoOrder struct {
	OrderNumber string      `bson:"_id"`
	CustomerID  string      `bson:"customerId"`
	Street      string      `bson:"street"`
	City        string      `bson:"city"`
	PostalCode  string      `bson:"postalCode"`
	Country     string      `bson:"country"`
	Items       []mongoItem `bson:"items"`
	Status      string      `bson:"status"`
	ConfirmedAt *time.Time  `bson:"confirmedAt,omitempty"`
	Version     int64       `bson:"version"`
	CreatedAt   time.Time   `bson:"createdAt"`
	UpdatedAt   time.Time   `bson:"updatedAt"`
}

func (r *OrderRepoMongoDB) Create(ctx context.Context, o *orderDomain.Order, msgs []sharedDomain.OutboxMessage) error {
	session, err := r.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		if _, err := r.ordersColl.InsertOne(sessCtx, toMongoOrder(o)); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, fmt.Errorf("%w: %s", orderDomain.ErrOrderAlreadyExists, o.OrderNumber)
			}
			return nil, err
		}
		for _, msg := range msgs {
			if err := sharedMongo.InsertOutbox(sessCtx, r.outboxColl, msg); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (r *OrderRepoMongoDB) Update(ctx context.Context, o *orderDomain.Order, msgs []sharedDomain.OutboxMessage) error {
	session, err := r.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		set := bson.M{"status": string(o.Status), "updatedAt": o.UpdatedAt}
		if o.ConfirmedAt != nil {
			set["confirmedAt"] = *o.ConfirmedAt
		}
		res, err := r.ordersColl.UpdateOne(sessCtx,
			bson.M{"_id": o.OrderNumber, "version": o.Version},
			bson.M{"$set": set, "$inc": bson.M{"version": 1}},
		)
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 0 {
			n, err := r.ordersColl.CountDocuments(sessCtx, bson.M{"_id": o.OrderNumber})
			if err != nil {
				return nil, err
			}
			if n == 0 {
				return nil, orderDomain.ErrOrderNotFound
			}
			return nil, fmt.Errorf("%w: %s (version %d)", orderDomain.ErrConcurrentModification, o.OrderNumber, o.Version)
		}
		for _, msg := range msgs {
			if err := sharedMongo.InsertOutbox(sessCtx, r.outboxColl, msg); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	o.Version++
	return nil
}

func (r *OrderRepoMongoDB) Delete(ctx context.Context, orderNumber string, msgs []sharedDomain.OutboxMessage) error {
	session, err := r.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		res, err := r.ordersColl.DeleteOne(sessCtx, bson.M{"_id": orderNumber})
		if err != nil {
			return nil, err
		}
		if res.DeletedCount == 0 {
			return nil, orderDomain.ErrOrderNotFound
		}
		for _, msg := range msgs {
			if err := sharedMongo.InsertOutbox(sessCtx, r.outboxColl, msg); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (r *OrderRepoMongoDB) GetByNumber(ctx context.Context, orderNumber string) (*orderDomain.Order, error) {
	var mo mongoOrder
	if err := r.ordersColl.FindOne(ctx, bson.M{"_id": orderNumber}).Decode(&mo); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, orderDomain.ErrOrderNotFound
		}
		return nil, err
	}
	return fromMongoOrder(&mo)
}

func toMongoOrder(o *orderDomain.Order) *mongoOrder {
	items := make([]mongoItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, mongoItem{ProductNumber: it.ProductNumber, Quantity: it.Quantity, UnitPrice: it.UnitPrice.String()})
	}
	return &mongoOrder{
		OrderNumber: o.OrderNumber,
		CustomerID:  o.CustomerID,
		Street:      o.Address.Street,
		City:        o.Address.City,
		PostalCode:  o.Address.PostalCode,
		Country:     o.Address.Country,
		Items:       items,
		Status:      string(o.Status),
		ConfirmedAt: o.ConfirmedAt,
		Version:     o.Version,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

func fromMongoOrder(mo *mongoOrder) (*orderDomain.Order, error) {
	items := make([]orderDomain.Item, 0, len(mo.Items))
	for _, it := range mo.Items {
		price, err := decimal.NewFromString(it.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("invalid unit price in order %s: %w", mo.OrderNumber, err)
		}
		items = append(items, orderDomain.Item{ProductNumber: it.ProductNumber, Quantity: it.Quantity, UnitPrice: price})
	}
	o := &orderDomain.Order{
		OrderNumber: mo.OrderNumber,
		CustomerID:  mo.CustomerID,
		Address: orderDomain.ShippingAddress{
			Street: mo.Street, City: mo.City, PostalCode: mo.PostalCode, Country: mo.Country,
		},
		Items:     items,
		Status:    orderDomain.OrderStatus(mo.Status),
		Version:   mo.Version,
		CreatedAt: mo.CreatedAt.UTC(),
		UpdatedAt: mo.UpdatedAt.UTC(),
	}
	if mo.ConfirmedAt != nil {
		t := mo.ConfirmedAt.UTC()
		o.ConfirmedAt = &t
	}
	return o, nil
}
