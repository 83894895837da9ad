package conversation

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/nexus-im/bazaar/store/message"
)

func TestSQLStoreListForUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "product_id", "sender_id", "receiver_id", "sender_name", "body",
		"created_at", "read", "status", "delivered_at", "read_at",
		"other_user_id", "unread_count",
	}).
		AddRow("m9", "p1", "bob", "alice", "Bob", "still available?", now, false, "sent", nil, nil, "bob", 3).
		AddRow("m4", "p2", "alice", "carol", "Alice", "thanks", now.Add(-time.Hour), true, "read", nil, now, "carol", 0)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT ON (product_id, other_user_id) *")).
		WithArgs("alice").
		WillReturnRows(rows)

	store := NewSQLStore(db)
	got, err := store.ListForUser(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "p1", got[0].ProductID)
	assert.Equal(t, "bob", got[0].OtherUserID)
	assert.Equal(t, int64(3), got[0].UnreadCount)
	assert.Equal(t, "m9", got[0].LastMessage.ID)
	assert.Equal(t, message.StatusSent, got[0].LastMessage.Status)

	assert.Equal(t, "carol", got[1].OtherUserID)
	assert.Zero(t, got[1].UnreadCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreListForUserError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()

	boom := errors.New("db down")
	mock.ExpectQuery("WITH scoped AS").WillReturnError(boom)

	_, err = NewSQLStore(db).ListForUser(context.Background(), "alice")
	assert.ErrorIs(t, err, boom)
}

func TestSummaryPipelineShape(t *testing.T) {
	p := summaryPipeline("alice")
	require.Len(t, p, 6)

	stages := make([]string, 0, len(p))
	for _, stage := range p {
		stages = append(stages, stage[0].Key)
	}
	assert.Equal(t, []string{"$match", "$sort", "$addFields", "$group", "$project", "$sort"}, stages)

	group, ok := p[3][0].Value.(bson.M)
	require.True(t, ok)
	assert.Contains(t, group, "unreadCount")
	assert.Equal(t, bson.M{"$first": "$$ROOT"}, group["lastMessageObj"])
}
