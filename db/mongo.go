package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"anomaly-detection/anomaly"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore persists analysis records in a MongoDB collection. The full
// record travels as a JSON document string alongside a few top-level
// fields used for sorting and filtering.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type mongoRecord struct {
	ID        int64     `bson:"_id"`
	Timestamp time.Time `bson:"timestamp"`
	RiskLevel string    `bson:"risk_level"`
	SoundType string    `bson:"sound_type"`
	Document  string    `bson:"document"`
}

// NewMongoStore connects to the MongoDB deployment at uri.
func NewMongoStore(uri, dbName string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(dbName).Collection("analysis_records"),
	}, nil
}

// Append stores one analysis record.
func (s *MongoStore) Append(record anomaly.AnalysisRecord) error {
	document, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis record: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = s.collection.InsertOne(ctx, mongoRecord{
		ID:        record.ID,
		Timestamp: record.Timestamp.UTC(),
		RiskLevel: record.Risk.RiskLevel.String(),
		SoundType: record.Classification.SoundType.String(),
		Document:  string(document),
	})
	if err != nil {
		return fmt.Errorf("failed to insert analysis record: %w", err)
	}
	return nil
}

// Recent returns the latest records, newest first. A non-positive limit
// defaults to 50.
func (s *MongoStore) Recent(limit int) ([]anomaly.AnalysisRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []anomaly.AnalysisRecord
	for cursor.Next(ctx) {
		var stored mongoRecord
		if err := cursor.Decode(&stored); err != nil {
			return nil, fmt.Errorf("failed to decode analysis record: %w", err)
		}
		var record anomaly.AnalysisRecord
		if err := json.Unmarshal([]byte(stored.Document), &record); err != nil {
			return nil, fmt.Errorf("corrupt record %d: %w", stored.ID, err)
		}
		records = append(records, record)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analysis records: %w", err)
	}
	return records, nil
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
