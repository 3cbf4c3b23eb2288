package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gogotex/gogotex/backend/go-collab/internal/document"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoRecord is the stored shape. Content is kept as the JSON text of the
// editor state so it stays readable in the database shell.
type mongoRecord struct {
	ID        string    `bson:"_id"`
	RoomID    string    `bson:"roomId"`
	Title     string    `bson:"title"`
	Content   string    `bson:"content"`
	OwnerID   string    `bson:"ownerId,omitempty"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func toRecord(d *document.Document) mongoRecord {
	return mongoRecord{
		ID:        d.RoomID,
		RoomID:    d.RoomID,
		Title:     d.Title,
		Content:   string(d.Content),
		OwnerID:   d.OwnerID,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func (r mongoRecord) toDocument() *document.Document {
	d := &document.Document{
		ID:        r.ID,
		RoomID:    r.RoomID,
		Title:     r.Title,
		OwnerID:   r.OwnerID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Content != "" {
		d.Content = json.RawMessage(r.Content)
	}
	return d
}

// MongoRepo implements a MongoDB-backed document store. The roomId field
// carries a unique index so a room can never hold two documents.
type MongoRepo struct {
	col *mongo.Collection
}

func NewMongoRepo(ctx context.Context, col *mongo.Collection) (*MongoRepo, error) {
	idxModel := mongo.IndexModel{Keys: bson.D{{Key: "roomId", Value: 1}}, Options: options.Index().SetUnique(true)}
	if _, err := col.Indexes().CreateOne(ctx, idxModel); err != nil {
		return nil, fmt.Errorf("ensure roomId index: %w", err)
	}
	return &MongoRepo{col: col}, nil
}

func (m *MongoRepo) Create(ctx context.Context, doc *document.Document) (*document.Document, error) {
	now := time.Now().UTC()
	d := doc.Clone()
	d.ID = d.RoomID
	d.CreatedAt = now
	d.UpdatedAt = now
	if _, err := m.col.InsertOne(ctx, toRecord(d)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, document.ErrAlreadyExists
		}
		return nil, fmt.Errorf("insert document %s: %w", d.RoomID, err)
	}
	return d, nil
}

func (m *MongoRepo) Get(ctx context.Context, roomID string) (*document.Document, error) {
	var rec mongoRecord
	if err := m.col.FindOne(ctx, bson.M{"roomId": roomID}).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, document.ErrNotFound
		}
		return nil, fmt.Errorf("find document %s: %w", roomID, err)
	}
	return rec.toDocument(), nil
}

func (m *MongoRepo) UpdateContent(ctx context.Context, roomID string, content json.RawMessage) (*document.Document, error) {
	return m.set(ctx, roomID, bson.M{"content": string(content)})
}

func (m *MongoRepo) UpdateTitle(ctx context.Context, roomID, title string) (*document.Document, error) {
	return m.set(ctx, roomID, bson.M{"title": title})
}

func (m *MongoRepo) set(ctx context.Context, roomID string, fields bson.M) (*document.Document, error) {
	fields["updatedAt"] = time.Now().UTC()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var rec mongoRecord
	err := m.col.FindOneAndUpdate(ctx, bson.M{"roomId": roomID}, bson.M{"$set": fields}, opts).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, document.ErrNotFound
		}
		return nil, fmt.Errorf("update document %s: %w", roomID, err)
	}
	return rec.toDocument(), nil
}

func (m *MongoRepo) Ping(ctx context.Context) error {
	return m.col.Database().Client().Ping(ctx, nil)
}
