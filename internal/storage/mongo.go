package storage

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/LesyaTkachuk/goit-cs-hw-06/internal/config"
)

// MongoConnector opens a new MongoDB client for every session
type MongoConnector struct {
	uri        string
	database   string
	collection string
}

// NewMongoConnector creates a connector for the configured database and collection
func NewMongoConnector(cfg config.StorageConfig) *MongoConnector {
	return &MongoConnector{
		uri:        cfg.URI,
		database:   cfg.Database,
		collection: cfg.Collection,
	}
}

// Connect creates a client. The driver dials lazily, so an unreachable
// server usually surfaces on Insert rather than here.
func (c *MongoConnector) Connect(ctx context.Context) (Session, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.uri, err)
	}

	return &mongoSession{
		client:     client,
		collection: client.Database(c.database).Collection(c.collection),
	}, nil
}

type mongoSession struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func (s *mongoSession) Insert(ctx context.Context, doc Document) error {
	if _, err := s.collection.InsertOne(ctx, doc.BSON()); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", s.collection.Name(), err)
	}
	return nil
}

func (s *mongoSession) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
