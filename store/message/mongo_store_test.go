package message

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// newMongoStore connects to MONGO_URI and returns a store on a throwaway
// database. Tests are skipped when no server is configured.
func newMongoStore(t *testing.T) *MongoStore {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)

	db := client.Database("bazaar_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})

	store := NewMongoStore(db)
	require.NoError(t, store.EnsureIndexes(context.Background()))
	return store
}

func TestMongoStoreReceipts(t *testing.T) {
	store := newMongoStore(t)
	ctx := context.Background()

	m := New("p1", "alice", "bob", "Alice", "hi", time.Now())
	require.NoError(t, store.Insert(ctx, m))
	require.NotEmpty(t, m.ID)

	first, err := store.MarkDelivered(ctx, "bob", []string{m.ID, "not-an-object-id"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{m.ID}, IDs(first))

	second, err := store.MarkDelivered(ctx, "bob", []string{m.ID}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, second)

	read, err := store.MarkRead(ctx, "p1", "alice", "bob", time.Now())
	require.NoError(t, err)
	assert.Len(t, read, 1)

	msgs, err := store.ListConversation(ctx, "p1", "bob", "alice")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, StatusRead, msgs[0].Status)
	assert.True(t, msgs[0].Read)
}

func TestMongoStoreConcurrentDeliveredSplitsCount(t *testing.T) {
	store := newMongoStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		m := New("p1", "alice", "bob", "Alice", "hi", time.Now())
		require.NoError(t, store.Insert(ctx, m))
		ids = append(ids, m.ID)
	}

	var wg sync.WaitGroup
	counts := make([]int, 2)
	errs := make([]error, 2)
	for i := range counts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			moved, err := store.MarkDelivered(ctx, "bob", ids, time.Now())
			counts[i], errs[i] = len(moved), err
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, len(ids), counts[0]+counts[1])
}

func TestMongoStoreDeliveredSkipsReadMessages(t *testing.T) {
	store := newMongoStore(t)
	ctx := context.Background()

	m := New("p1", "alice", "bob", "Alice", "hi", time.Now())
	require.NoError(t, store.Insert(ctx, m))

	read, err := store.MarkRead(ctx, "p1", "alice", "bob", time.Now())
	require.NoError(t, err)
	assert.Len(t, read, 1)

	delivered, err := store.MarkDelivered(ctx, "bob", []string{m.ID}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, delivered)
}
