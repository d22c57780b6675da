package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/annel0/voxel-world/internal/world"
)

// MongoConfig - параметры подключения к MongoDB
type MongoConfig struct {
	URI        string // e.g. mongodb://localhost:27017
	Database   string // e.g. voxelworld
	Collection string // e.g. chunks
}

// MongoChunkStore хранит записи чанков документами {x, z, data}
type MongoChunkStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type chunkDoc struct {
	X         int       `bson:"x"`
	Z         int       `bson:"z"`
	Data      []byte    `bson:"data"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoChunkStore подключается к MongoDB и создаёт уникальный индекс по (x, z)
func NewMongoChunkStore(ctx context.Context, cfg MongoConfig) (*MongoChunkStore, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "voxelworld"
	}
	if cfg.Collection == "" {
		cfg.Collection = "chunks"
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	s := &MongoChunkStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoChunkStore) ensureIndexes(ctx context.Context) error {
	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "x", Value: 1}, {Key: "z", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("coord_unique"),
	}
	_, err := s.collection.Indexes().CreateOne(ctx, idx)
	return err
}

func (s *MongoChunkStore) SaveChunk(ctx context.Context, coord world.ChunkCoord, voxels []byte) error {
	rec, err := EncodeChunk(coord, voxels)
	if err != nil {
		return err
	}
	doc := chunkDoc{X: coord.X, Z: coord.Z, Data: rec, UpdatedAt: time.Now().UTC()}
	filter := bson.M{"x": coord.X, "z": coord.Z}
	if _, err := s.collection.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("ошибка сохранения чанка %s: %w", coord, err)
	}
	return nil
}

func (s *MongoChunkStore) LoadChunk(ctx context.Context, coord world.ChunkCoord) ([]byte, bool, error) {
	var doc chunkDoc
	err := s.collection.FindOne(ctx, bson.M{"x": coord.X, "z": coord.Z}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка загрузки чанка %s: %w", coord, err)
	}

	voxels, err := DecodeChunk(coord, doc.Data)
	if err != nil {
		return nil, false, err
	}
	return voxels, true, nil
}

// Close отключается от сервера
func (s *MongoChunkStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
