package export

import (
	"context"
	"fmt"
	"time"

	"github.com/RecoveryAshes/WxSpider/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSink 写入MongoDB集合
type MongoSink struct {
	client     *mongo.Client
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoSink 连接MongoDB并在path上建索引
func NewMongoSink(ctx context.Context, uri, database, collection string) (*MongoSink, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("连接MongoDB失败: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("MongoDB无法访问: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys: bson.D{{Key: "path", Value: 1}},
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("创建path索引失败: %w", err)
	}

	return &MongoSink{client: client, collection: coll, now: time.Now}, nil
}

func (s *MongoSink) Name() string { return "mongo" }

// Write 整批InsertMany
func (s *MongoSink) Write(ctx context.Context, batch []*models.QuestionRecord) (BatchResult, error) {
	if len(batch) == 0 {
		return BatchResult{}, nil
	}

	now := s.now()
	docs := make([]interface{}, 0, len(batch))
	for _, rec := range batch {
		docs = append(docs, ToRow(rec, now))
	}

	res, err := s.collection.InsertMany(ctx, docs)
	if err != nil {
		written := 0
		if res != nil {
			written = len(res.InsertedIDs)
		}
		return BatchResult{Written: written}, fmt.Errorf("写入MongoDB失败: %w", err)
	}
	return BatchResult{Written: len(res.InsertedIDs)}, nil
}

// Close 断开连接
func (s *MongoSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
