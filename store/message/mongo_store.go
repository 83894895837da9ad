package message

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// CollectionName is the document collection holding messages.
const CollectionName = "messages"

// Document is the stored shape of a message in the document backend.
type Document struct {
	ID          bson.ObjectID `bson:"_id,omitempty"`
	ProductID   string        `bson:"productId"`
	SenderID    string        `bson:"senderId"`
	ReceiverID  string        `bson:"receiverId"`
	SenderName  string        `bson:"senderName,omitempty"`
	Text        string        `bson:"text"`
	CreatedAt   time.Time     `bson:"createdAt"`
	Read        bool          `bson:"read"`
	Status      Status        `bson:"status"`
	DeliveredAt *time.Time    `bson:"deliveredAt,omitempty"`
	ReadAt      *time.Time    `bson:"readAt,omitempty"`
}

// Message converts the stored document to the API shape.
func (d Document) Message() Message {
	return Message{
		ID:          d.ID.Hex(),
		ProductID:   d.ProductID,
		SenderID:    d.SenderID,
		ReceiverID:  d.ReceiverID,
		SenderName:  d.SenderName,
		Text:        d.Text,
		CreatedAt:   d.CreatedAt,
		Read:        d.Read,
		Status:      d.Status,
		DeliveredAt: d.DeliveredAt,
		ReadAt:      d.ReadAt,
	}
}

// MongoStore implements Store on a MongoDB collection.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore creates a new MongoStore using db's messages collection.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(CollectionName)}
}

// EnsureIndexes creates the indexes the queries below rely on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "productId", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "receiverId", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "senderId", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	return err
}

func (s *MongoStore) Insert(ctx context.Context, m *Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.Status == "" {
		m.Status = StatusSent
	}

	doc := Document{
		ID:         bson.NewObjectID(),
		ProductID:  m.ProductID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		SenderName: m.SenderName,
		Text:       m.Text,
		CreatedAt:  m.CreatedAt,
		Read:       m.Read,
		Status:     m.Status,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return err
	}
	m.ID = doc.ID.Hex()
	return nil
}

func (s *MongoStore) ListByProduct(ctx context.Context, productID string) ([]Message, error) {
	return s.find(ctx, bson.M{"productId": productID})
}

func (s *MongoStore) ListConversation(ctx context.Context, productID, userA, userB string) ([]Message, error) {
	return s.find(ctx, bson.M{
		"productId": productID,
		"$or": bson.A{
			bson.M{"senderId": userA, "receiverId": userB},
			bson.M{"senderId": userB, "receiverId": userA},
		},
	})
}

// MarkDelivered reports only the documents this call moved. Concurrent calls
// over the same ids split them between each other.
func (s *MongoStore) MarkDelivered(ctx context.Context, receiverID string, ids []string, at time.Time) ([]Transition, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make(bson.A, 0, len(ids))
	for _, id := range ids {
		if oid, err := bson.ObjectIDFromHex(id); err == nil {
			keys = append(keys, oid)
		} else {
			keys = append(keys, id)
		}
	}

	filter := bson.M{
		"_id":        bson.M{"$in": keys},
		"receiverId": receiverID,
		"status":     StatusSent,
	}
	update := bson.M{"$set": bson.M{"status": StatusDelivered, "deliveredAt": at}}
	return s.transition(ctx, filter, update)
}

func (s *MongoStore) MarkRead(ctx context.Context, productID, senderID, readerID string, at time.Time) ([]Transition, error) {
	filter := bson.M{
		"productId":  productID,
		"senderId":   senderID,
		"receiverId": readerID,
		"read":       bson.M{"$ne": true},
	}
	update := bson.M{"$set": bson.M{"read": true, "status": StatusRead, "readAt": at}}
	return s.transition(ctx, filter, update)
}

func (s *MongoStore) find(ctx context.Context, filter bson.M) ([]Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	msgs := make([]Message, 0, len(docs))
	for _, d := range docs {
		msgs = append(msgs, d.Message())
	}
	return msgs, nil
}

// transition collects candidate ids with filter, then moves each one with a
// single-document find-and-update that repeats the filter, so a document
// changed by someone else in between is skipped rather than reported.
func (s *MongoStore) transition(ctx context.Context, filter, update bson.M) ([]Transition, error) {
	cursor, err := s.coll.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	var candidates []Document
	if err := cursor.All(ctx, &candidates); err != nil {
		return nil, err
	}

	opts := options.FindOneAndUpdate().
		SetProjection(bson.M{"_id": 1, "productId": 1, "senderId": 1, "receiverId": 1})
	var out []Transition
	for _, c := range candidates {
		scoped := bson.M{"_id": c.ID}
		for k, v := range filter {
			if k != "_id" {
				scoped[k] = v
			}
		}
		var d Document
		err := s.coll.FindOneAndUpdate(ctx, scoped, update, opts).Decode(&d)
		if errors.Is(err, mongo.ErrNoDocuments) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Transition{
			ID:         d.ID.Hex(),
			ProductID:  d.ProductID,
			SenderID:   d.SenderID,
			ReceiverID: d.ReceiverID,
		})
	}
	return out, nil
}
