package conversation

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/nexus-im/bazaar/store/message"
)

// MongoStore implements Store with an aggregation over the messages collection.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore creates a new MongoStore using db's messages collection.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(message.CollectionName)}
}

type summaryDoc struct {
	ProductID   string           `bson:"productId"`
	OtherUserID string           `bson:"otherUserId"`
	LastMessage message.Document `bson:"lastMessageObj"`
	UnreadCount int64            `bson:"unreadCount"`
}

func (s *MongoStore) ListForUser(ctx context.Context, userID string) ([]Summary, error) {
	cursor, err := s.coll.Aggregate(ctx, summaryPipeline(userID))
	if err != nil {
		return nil, err
	}
	var docs []summaryDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(docs))
	for _, d := range docs {
		summaries = append(summaries, Summary{
			ProductID:   d.ProductID,
			OtherUserID: d.OtherUserID,
			LastMessage: d.LastMessage.Message(),
			UnreadCount: d.UnreadCount,
		})
	}
	return summaries, nil
}

// summaryPipeline groups the user's messages by (product, counterpart),
// keeping the newest message and counting unread ones addressed to the user.
func summaryPipeline(userID string) mongo.Pipeline {
	unread := bson.M{"$cond": bson.A{
		bson.M{"$and": bson.A{
			bson.M{"$eq": bson.A{"$receiverId", userID}},
			bson.M{"$eq": bson.A{"$read", false}},
		}},
		1, 0,
	}}

	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"senderId": userID},
			bson.M{"receiverId": userID},
		}}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
		{{Key: "$addFields", Value: bson.M{
			"otherUserId": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$senderId", userID}}, "$receiverId", "$senderId",
			}},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":            bson.M{"productId": "$productId", "otherUserId": "$otherUserId"},
			"lastMessageObj": bson.M{"$first": "$$ROOT"},
			"unreadCount":    bson.M{"$sum": unread},
		}}},
		{{Key: "$project", Value: bson.M{
			"_id":            0,
			"productId":      "$_id.productId",
			"otherUserId":    "$_id.otherUserId",
			"lastMessageObj": 1,
			"unreadCount":    1,
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "lastMessageObj.createdAt", Value: -1}}}},
	}
}
