// Package archive keeps an append-only copy of order events in MongoDB.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/dasarishourya007-oss/vArogra-sub000/internal/events"
)

type inserter interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// Mongo consumes order events from the hub and writes them to a collection
// from a single background goroutine.
type Mongo struct {
	coll   inserter
	logger *zap.Logger
	queue  chan events.Event
}

// Connect opens the collection and pings the server.
func Connect(ctx context.Context, uri, database, collection string) (*mongo.Client, *mongo.Collection, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, client.Database(database).Collection(collection), nil
}

func NewMongo(coll *mongo.Collection, logger *zap.Logger) *Mongo {
	return newMongo(coll, logger, 256)
}

func newMongo(coll inserter, logger *zap.Logger, buffer int) *Mongo {
	return &Mongo{coll: coll, logger: logger, queue: make(chan events.Event, buffer)}
}

// Attach subscribes to order events on hub. Events that arrive while the
// queue is full are dropped with a warning.
func (m *Mongo) Attach(hub *events.Hub) (unsubscribe func()) {
	return hub.Subscribe(func(e events.Event) {
		if e.Type != events.OrderCreated && e.Type != events.OrderStatusChanged {
			return
		}
		select {
		case m.queue <- e:
		default:
			m.logger.Warn("order archive queue full, dropping event", zap.String("event_id", e.ID), zap.String("order_id", e.OrderID))
		}
	})
}

// Run writes queued events until ctx is done, then drains what is left.
func (m *Mongo) Run(ctx context.Context) {
	for {
		select {
		case e := <-m.queue:
			m.write(ctx, e)
		case <-ctx.Done():
			drain, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for {
				select {
				case e := <-m.queue:
					m.write(drain, e)
				default:
					return
				}
			}
		}
	}
}

func (m *Mongo) write(ctx context.Context, e events.Event) {
	var payload map[string]interface{}
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		m.logger.Warn("order archive: bad payload", zap.String("event_id", e.ID), zap.Error(err))
		return
	}
	doc := bson.M{
		"_id":         e.ID,
		"type":        e.Type,
		"pharmacy_id": e.PharmacyID,
		"order_id":    e.OrderID,
		"payload":     payload,
		"timestamp":   e.Timestamp,
	}
	if _, err := m.coll.InsertOne(ctx, doc); err != nil {
		m.logger.Error("order archive insert failed", zap.String("event_id", e.ID), zap.Error(err))
	}
}
