package archive

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/dasarishourya007-oss/vArogra-sub000/internal/events"
)

type fakeCollection struct {
	mu   sync.Mutex
	docs []bson.M
}

func (f *fakeCollection) InsertOne(_ context.Context, document interface{}, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := document.(bson.M)
	f.docs = append(f.docs, doc)
	return &mongo.InsertOneResult{InsertedID: doc["_id"]}, nil
}

func (f *fakeCollection) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

func TestArchiveWritesOrderEvents(t *testing.T) {
	coll := &fakeCollection{}
	hub := events.NewHub()
	m := newMongo(coll, zap.NewNop(), 8)
	unsubscribe := m.Attach(hub)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	created, err := events.New(events.OrderCreated, "ph-1", "ord-1", map[string]string{"total": "10.50"})
	require.NoError(t, err)
	stock, err := events.New(events.StockChanged, "ph-1", "ord-1", map[string]string{"item_id": "napa"})
	require.NoError(t, err)
	require.NoError(t, hub.Publish(ctx, created))
	require.NoError(t, hub.Publish(ctx, stock))

	require.Eventually(t, func() bool { return coll.len() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	doc := coll.docs[0]
	assert.Equal(t, created.ID, doc["_id"])
	assert.Equal(t, "ord-1", doc["order_id"])
	assert.Equal(t, "10.50", doc["payload"].(map[string]interface{})["total"])
}

func TestArchiveDropsWhenQueueFull(t *testing.T) {
	coll := &fakeCollection{}
	hub := events.NewHub()
	m := newMongo(coll, zap.NewNop(), 1)
	m.Attach(hub)

	for i := 0; i < 3; i++ {
		e, err := events.New(events.OrderCreated, "ph-1", "ord", map[string]int{"n": i})
		require.NoError(t, err)
		require.NoError(t, hub.Publish(context.Background(), e))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Run(ctx)
	assert.Equal(t, 1, coll.len())
}
