package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	// --- Importaciones del dominio y compartidas ---
	deliveryDomain "github.com/davicafu/hexadelivery/internal/delivery/domain"
	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
	sharedMongo "github.com/davicafu/hexadelivery/internal/shared/infra/platform/db/mongodb"
	sharedQuery "github.com/davicafu/hexadelivery/internal/shared/infra/platform/query"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// DeliveryRepoMongoDB implementa DeliveryRepository. Las transacciones necesitan un replica set.
type DeliveryRepoMongoDB struct {
	client         *mongo.Client
	deliveriesColl *mongo.Collection
	outboxColl     *mongo.Collection
}

// NewDeliveryRepoMongoDB es el constructor del repositorio.
func NewDeliveryRepoMongoDB(ctx context.Context, client *mongo.Client, dbName string) (*DeliveryRepoMongoDB, error) {
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("could not ping mongoDB: %w", err)
	}

	db := client.Database(dbName)
	if err := sharedMongo.EnsureOutboxIndexes(ctx, db); err != nil {
		return nil, fmt.Errorf("could not create outbox indexes: %w", err)
	}
	return &DeliveryRepoMongoDB{
		client:         client,
		deliveriesColl: db.Collection("deliveries"),
		outboxColl:     db.Collection(sharedMongo.OutboxCollection),
	}, nil
}

var _ deliveryDomain.DeliveryRepository = (*DeliveryRepoMongoDB)(nil)

// --- Structs de BSON para el mapeo ---
// Se definen localmente para no "contaminar" el dominio con tags de BSON.

type mongoAddress struct {
	Street     string `bson:"street"`
	City       string `bson:"city"`
	State      string `bson:"state"`
	PostalCode string `bson:"postalCode"`
	Country    string `bson:"country"`
}

type mongoDelivery struct {
	ID            string       `bson:"_id"`
	OrderNumber   string       `bson:"orderNumber"`
	Address       mongoAddress `bson:"address"`
	Status        string       `bson:"status"`
	ScheduledDate *time.Time   `bson:"scheduledDate,omitempty"`
	Notes         string       `bson:"notes"`
	Version       int64        `bson:"version"`
	CreatedAt     time.Time    `bson:"createdAt"`
	UpdatedAt     time.Time    `bson:"updatedAt"`
}

var (
	filterFields = map[string]string{
		"status":       "status",
		"order_number": "orderNumber",
		"city":         "address.city",
	}
	sortFields = map[string]string{
		"id":             "_id",
		"status":         "status",
		"created_at":     "createdAt",
		"updated_at":     "updatedAt",
		"scheduled_date": "scheduledDate",
	}
)

// --- CRUD Transaccional ---

func (r *DeliveryRepoMongoDB) Create(ctx context.Context, d *deliveryDomain.Delivery, msgs []sharedDomain.OutboxMessage) error {
	session, err := r.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	// La transacción asegura que la entrega y sus mensajes se escriban juntos.
	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		if _, err := r.deliveriesColl.InsertOne(sessCtx, toMongoDelivery(d)); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, fmt.Errorf("%w: %s", deliveryDomain.ErrDeliveryAlreadyExists, d.ID)
			}
			return nil, err
		}
		return nil, r.insertOutbox(sessCtx, msgs)
	})
	return err
}

func (r *DeliveryRepoMongoDB) Update(ctx context.Context, d *deliveryDomain.Delivery, msgs []sharedDomain.OutboxMessage) error {
	session, err := r.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		md := toMongoDelivery(d)
		set := bson.M{
			"address":   md.Address,
			"status":    md.Status,
			"notes":     md.Notes,
			"updatedAt": md.UpdatedAt,
		}
		update := bson.M{"$set": set, "$inc": bson.M{"version": 1}}
		if md.ScheduledDate != nil {
			set["scheduledDate"] = md.ScheduledDate
		} else {
			update["$unset"] = bson.M{"scheduledDate": ""}
		}

		res, err := r.deliveriesColl.UpdateOne(sessCtx, bson.M{"_id": d.ID, "version": d.Version}, update)
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 0 {
			n, err := r.deliveriesColl.CountDocuments(sessCtx, bson.M{"_id": d.ID})
			if err != nil {
				return nil, err
			}
			if n == 0 {
				return nil, deliveryDomain.ErrDeliveryNotFound
			}
			return nil, fmt.Errorf("%w: %s (version %d)", deliveryDomain.ErrConcurrentModification, d.ID, d.Version)
		}
		return nil, r.insertOutbox(sessCtx, msgs)
	})
	if err != nil {
		return err
	}
	d.Version++
	return nil
}

func (r *DeliveryRepoMongoDB) Delete(ctx context.Context, id string, msgs []sharedDomain.OutboxMessage) error {
	session, err := r.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		res, err := r.deliveriesColl.DeleteOne(sessCtx, bson.M{"_id": id})
		if err != nil {
			return nil, err
		}
		if res.DeletedCount == 0 {
			return nil, deliveryDomain.ErrDeliveryNotFound
		}
		return nil, r.insertOutbox(sessCtx, msgs)
	})
	return err
}

func (r *DeliveryRepoMongoDB) insertOutbox(sessCtx mongo.SessionContext, msgs []sharedDomain.OutboxMessage) error {
	for _, msg := range msgs {
		if err := sharedMongo.InsertOutbox(sessCtx, r.outboxColl, msg); err != nil {
			return err
		}
	}
	return nil
}

// --- Lectura ---

func (r *DeliveryRepoMongoDB) GetByID(ctx context.Context, id string) (*deliveryDomain.Delivery, error) {
	var md mongoDelivery
	if err := r.deliveriesColl.FindOne(ctx, bson.M{"_id": id}).Decode(&md); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, deliveryDomain.ErrDeliveryNotFound
		}
		return nil, err
	}
	return fromMongoDelivery(&md), nil
}

func (r *DeliveryRepoMongoDB) ListByCriteria(ctx context.Context, criteria sharedDomain.Criteria, pagination sharedQuery.Pagination, sort sharedQuery.Sort) ([]*deliveryDomain.Delivery, error) {
	filter, err := criteriaToMongoFilter(criteria)
	if err != nil {
		return nil, err
	}

	page := sharedQuery.OffsetPagination{}
	if p, ok := pagination.(sharedQuery.OffsetPagination); ok {
		page = p
	}
	page = page.Normalize()

	sortDir := 1 // Ascendente por defecto
	if sort.Desc {
		sortDir = -1
	}
	opts := options.Find().
		SetSkip(int64(page.Offset)).
		SetLimit(int64(page.Limit)).
		SetSort(bson.D{{Key: sort.Column(sortFields, "createdAt"), Value: sortDir}, {Key: "_id", Value: 1}})

	cursor, err := r.deliveriesColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	deliveries := []*deliveryDomain.Delivery{}
	for cursor.Next(ctx) {
		var md mongoDelivery
		if err := cursor.Decode(&md); err != nil {
			return nil, err
		}
		deliveries = append(deliveries, fromMongoDelivery(&md))
	}
	return deliveries, cursor.Err()
}

// --- Helpers de Mapeo y Conversión ---

func toMongoDelivery(d *deliveryDomain.Delivery) *mongoDelivery {
	return &mongoDelivery{
		ID:          d.ID,
		OrderNumber: d.OrderNumber,
		Address: mongoAddress{
			Street: d.Address.Street, City: d.Address.City, State: d.Address.State,
			PostalCode: d.Address.PostalCode, Country: d.Address.Country,
		},
		Status:        string(d.Status),
		ScheduledDate: d.ScheduledDate,
		Notes:         d.Notes,
		Version:       d.Version,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func fromMongoDelivery(md *mongoDelivery) *deliveryDomain.Delivery {
	d := &deliveryDomain.Delivery{
		ID:          md.ID,
		OrderNumber: md.OrderNumber,
		Address: deliveryDomain.Address{
			Street: md.Address.Street, City: md.Address.City, State: md.Address.State,
			PostalCode: md.Address.PostalCode, Country: md.Address.Country,
		},
		Status:    deliveryDomain.DeliveryStatus(md.Status),
		Notes:     md.Notes,
		Version:   md.Version,
		CreatedAt: md.CreatedAt.UTC(),
		UpdatedAt: md.UpdatedAt.UTC(),
	}
	if md.ScheduledDate != nil {
		t := md.ScheduledDate.UTC()
		d.ScheduledDate = &t
	}
	return d
}

func criteriaToMongoFilter(criteria sharedDomain.Criteria) (bson.M, error) {
	if criteria == nil {
		return bson.M{}, nil
	}
	conds := criteria.ToConditions()
	if len(conds) == 0 {
		return bson.M{}, nil
	}

	var clauses []bson.M
	for _, c := range conds {
		field, ok := filterFields[c.Field]
		if !ok {
			return nil, fmt.Errorf("%w: unsupported filter %q", deliveryDomain.ErrInvalidDelivery, c.Field)
		}
		// Mapeo de operadores genéricos a operadores de MongoDB
		var value interface{}
		switch c.Op {
		case sharedDomain.OpGt:
			value = bson.M{"$gt": c.Value}
		case sharedDomain.OpGte:
			value = bson.M{"$gte": c.Value}
		case sharedDomain.OpLt:
			value = bson.M{"$lt": c.Value}
		case sharedDomain.OpLte:
			value = bson.M{"$lte": c.Value}
		case sharedDomain.OpLike, sharedDomain.OpILike:
			pattern := regexp.QuoteMeta(strings.Trim(fmt.Sprintf("%v", c.Value), "%"))
			value = bson.M{"$regex": pattern, "$options": "i"}
		default:
			value = bson.M{"$eq": c.Value}
		}
		clauses = append(clauses, bson.M{field: value})
	}

	if c, ok := criteria.(sharedDomain.CompositeCriteria); ok && c.Operator == sharedDomain.OpOr {
		return bson.M{"$or": clauses}, nil
	}
	return bson.M{"$and": clauses}, nil
}
