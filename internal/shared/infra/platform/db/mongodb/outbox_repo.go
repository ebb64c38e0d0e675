package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const OutboxCollection = "outbox"

// OutboxRepoMongoDB implementa la interfaz sharedDomain.OutboxStore.
type OutboxRepoMongoDB struct {
	outboxColl *mongo.Collection
}

func NewOutboxRepoMongoDB(client *mongo.Client, dbName string) *OutboxRepoMongoDB {
	return &OutboxRepoMongoDB{outboxColl: client.Database(dbName).Collection(OutboxCollection)}
}

// mongoOutboxMessage mapea el documento; los ids van como string para que sean legibles en la shell.
type mongoOutboxMessage struct {
	ID            string     `bson:"_id"`
	AggregateType string     `bson:"aggregateType"`
	AggregateID   string     `bson:"aggregateId"`
	EventType     string     `bson:"eventType"`
	Payload       string     `bson:"payload"`
	Status        string     `bson:"status"`
	Attempts      int        `bson:"attempts"`
	CreatedAt     time.Time  `bson:"createdAt"`
	ClaimedAt     *time.Time `bson:"claimedAt,omitempty"`
	ProcessedAt   *time.Time `bson:"processedAt,omitempty"`
	ErrorMessage  *string    `bson:"errorMessage,omitempty"`
}

// InsertOutbox se llama desde dentro de session.WithTransaction con el contexto de la sesión.
func InsertOutbox(ctx context.Context, coll *mongo.Collection, msg sharedDomain.OutboxMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	doc := mongoOutboxMessage{
		ID:            msg.ID.String(),
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID.String(),
		EventType:     msg.EventType,
		Payload:       msg.Payload,
		Status:        string(sharedDomain.OutboxPending),
		CreatedAt:     msg.CreatedAt,
	}
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert outbox message: %w", err)
	}
	return nil
}

// EnsureOutboxIndexes crea el índice que usa FetchDue.
func EnsureOutboxIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(OutboxCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	return err
}

// FetchDue obtiene los PENDING más antiguos.
func (r *OutboxRepoMongoDB) FetchDue(ctx context.Context, limit int) ([]sharedDomain.OutboxMessage, error) {
	filter := bson.M{"status": string(sharedDomain.OutboxPending)}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.outboxColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var msgs []sharedDomain.OutboxMessage
	for cursor.Next(ctx) {
		var mo mongoOutboxMessage
		if err := cursor.Decode(&mo); err != nil {
			return nil, err
		}
		msg, err := fromMongoOutbox(&mo)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, cursor.Err()
}

func (r *OutboxRepoMongoDB) Get(ctx context.Context, id uuid.UUID) (sharedDomain.OutboxMessage, error) {
	var mo mongoOutboxMessage
	if err := r.outboxColl.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&mo); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return sharedDomain.OutboxMessage{}, sharedDomain.ErrOutboxMessageNotFound
		}
		return sharedDomain.OutboxMessage{}, err
	}
	return fromMongoOutbox(&mo)
}

func (r *OutboxRepoMongoDB) MarkProcessing(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res, err := r.outboxColl.UpdateOne(ctx,
		bson.M{"_id": id.String(), "status": string(sharedDomain.OutboxPending)},
		bson.M{
			"$set": bson.M{"status": string(sharedDomain.OutboxProcessing), "claimedAt": at},
			"$inc": bson.M{"attempts": 1},
		},
	)
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 1 {
		return true, nil
	}
	if _, err := r.currentStatus(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *OutboxRepoMongoDB) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.outboxColl.UpdateOne(ctx,
		bson.M{"_id": id.String(), "status": string(sharedDomain.OutboxProcessing)},
		bson.M{
			"$set":   bson.M{"status": string(sharedDomain.OutboxProcessed), "processedAt": at},
			"$unset": bson.M{"errorMessage": ""},
		},
	)
	if err != nil {
		return err
	}
	return r.settle(ctx, res, id, sharedDomain.OutboxProcessed)
}

func (r *OutboxRepoMongoDB) MarkFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	res, err := r.outboxColl.UpdateOne(ctx,
		bson.M{"_id": id.String(), "status": string(sharedDomain.OutboxProcessing)},
		bson.M{"$set": bson.M{"status": string(sharedDomain.OutboxFailed), "errorMessage": reason}},
	)
	if err != nil {
		return err
	}
	return r.settle(ctx, res, id, sharedDomain.OutboxFailed)
}

func (r *OutboxRepoMongoDB) ReclaimStuck(ctx context.Context, claimedBefore time.Time) (int64, error) {
	res, err := r.outboxColl.UpdateMany(ctx,
		bson.M{"status": string(sharedDomain.OutboxProcessing), "claimedAt": bson.M{"$lte": claimedBefore}},
		bson.M{"$set": bson.M{"status": string(sharedDomain.OutboxPending)}, "$unset": bson.M{"claimedAt": ""}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *OutboxRepoMongoDB) RequeueFailed(ctx context.Context, maxAttempts int) (int64, error) {
	res, err := r.outboxColl.UpdateMany(ctx,
		bson.M{"status": string(sharedDomain.OutboxFailed), "attempts": bson.M{"$lt": maxAttempts}},
		bson.M{"$set": bson.M{"status": string(sharedDomain.OutboxPending)}, "$unset": bson.M{"claimedAt": ""}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *OutboxRepoMongoDB) CountByStatus(ctx context.Context) (map[sharedDomain.OutboxStatus]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$status"}, {Key: "count", Value: bson.M{"$sum": 1}}}}},
	}
	cursor, err := r.outboxColl.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	counts := make(map[sharedDomain.OutboxStatus]int64)
	for cursor.Next(ctx) {
		var row struct {
			Status string `bson:"_id"`
			Count  int64  `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		counts[sharedDomain.OutboxStatus(row.Status)] = row.Count
	}
	return counts, cursor.Err()
}

func (r *OutboxRepoMongoDB) settle(ctx context.Context, res *mongo.UpdateResult, id uuid.UUID, target sharedDomain.OutboxStatus) error {
	if res.MatchedCount == 1 {
		return nil
	}
	current, err := r.currentStatus(ctx, id)
	if err != nil {
		return err
	}
	return sharedDomain.ResolveUnapplied(current, target)
}

func (r *OutboxRepoMongoDB) currentStatus(ctx context.Context, id uuid.UUID) (sharedDomain.OutboxStatus, error) {
	var doc struct {
		Status string `bson:"status"`
	}
	err := r.outboxColl.FindOne(ctx, bson.M{"_id": id.String()},
		options.FindOne().SetProjection(bson.M{"status": 1})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", fmt.Errorf("%w: %s", sharedDomain.ErrOutboxMessageNotFound, id)
	}
	if err != nil {
		return "", err
	}
	return sharedDomain.OutboxStatus(doc.Status), nil
}

// fromMongoOutbox convierte de BSON a nuestro tipo de dominio.
func fromMongoOutbox(mo *mongoOutboxMessage) (sharedDomain.OutboxMessage, error) {
	id, err := uuid.Parse(mo.ID)
	if err != nil {
		return sharedDomain.OutboxMessage{}, fmt.Errorf("invalid UUID in outbox document: %w", err)
	}
	aggID, err := uuid.Parse(mo.AggregateID)
	if err != nil {
		return sharedDomain.OutboxMessage{}, fmt.Errorf("invalid aggregate UUID in outbox document %s: %w", mo.ID, err)
	}
	return sharedDomain.OutboxMessage{
		ID:            id,
		AggregateType: mo.AggregateType,
		AggregateID:   aggID,
		EventType:     mo.EventType,
		Payload:       mo.Payload,
		Status:        sharedDomain.OutboxStatus(mo.Status),
		Attempts:      mo.Attempts,
		CreatedAt:     mo.CreatedAt.UTC(),
		ClaimedAt:     mo.ClaimedAt,
		ProcessedAt:   mo.ProcessedAt,
		ErrorMessage:  mo.ErrorMessage,
	}, nil
}

// Verificación en tiempo de compilación.
var _ sharedDomain.OutboxStore = (*OutboxRepoMongoDB)(nil)
