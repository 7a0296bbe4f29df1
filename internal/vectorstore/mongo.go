package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/xxxsen/examrag/internal/config"
	"github.com/xxxsen/examrag/internal/model"
	appErr "github.com/xxxsen/examrag/internal/pkg/errors"
)

const embeddingField = "embedding"

type mongoChunk struct {
	ID          string    `bson:"_id"`
	ChunkID     string    `bson:"chunk_id"`
	SourceID    string    `bson:"source_id"`
	Source      string    `bson:"source"`
	Ordinal     int       `bson:"ordinal"`
	Text        string    `bson:"text"`
	StartOffset int       `bson:"start_offset"`
	Category    string    `bson:"category"`
	Embedding   []float32 `bson:"embedding,omitempty"`
	Seq         int64     `bson:"seq"`
	Score       float64   `bson:"score,omitempty"`
}

type mongoDocument struct {
	SourceID    string `bson:"source_id"`
	ContentHash string `bson:"content_hash"`
	ContentType string `bson:"type"`
	Category    string `bson:"category"`
	CollectedAt int64  `bson:"collected_at"`
	ChunkCount  int    `bson:"chunk_count"`
	Mtime       int64  `bson:"mtime"`
}

// MongoStore keeps chunks in a MongoDB Atlas collection and searches them
// with $vectorSearch. The vector search index named by cfg.VectorIndex must
// exist on the embedding field with cosine similarity.
type MongoStore struct {
	client        *mongo.Client
	chunks        *mongo.Collection
	docs          *mongo.Collection
	index         string
	numCandidates int
	dim           int
	now           func() time.Time
}

func NewMongoStore(ctx context.Context, cfg config.MongoConfig, dim int) (*MongoStore, error) {
	connectTimeout := time.Duration(cfg.ConnectTimeout) * time.Second
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(connectTimeout).
		SetServerSelectionTimeout(connectTimeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: connect mongodb: %w", appErr.ErrConfiguration, err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: ping mongodb: %w", appErr.ErrStoreUnavailable, err)
	}
	database := client.Database(cfg.Database)
	s := &MongoStore{
		client:        client,
		chunks:        database.Collection(cfg.Collection),
		docs:          database.Collection(cfg.DocumentCollection),
		index:         cfg.VectorIndex,
		numCandidates: cfg.NumCandidates,
		dim:           dim,
		now:           time.Now,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	logutil.GetLogger(ctx).Info("mongodb store connected",
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.Collection),
		zap.String("vector_index", cfg.VectorIndex))
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.docs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "source_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "content_hash", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "type", Value: 1}}},
		{Keys: bson.D{{Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "collected_at", Value: -1}}},
	})
	if err != nil {
		return s.wrap("create document indexes", err)
	}
	_, err = s.chunks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "chunk_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "source_id", Value: 1}, {Key: "ordinal", Value: 1}}},
	})
	if err != nil {
		return s.wrap("create chunk indexes", err)
	}
	return nil
}

func (s *MongoStore) Name() string {
	return config.StoreTypeMongo
}

func (s *MongoStore) Dimension() int {
	return s.dim
}

func (s *MongoStore) Upsert(ctx context.Context, doc model.Document, chunks []model.Chunk) error {
	if err := checkChunks(doc, chunks, s.dim); err != nil {
		return err
	}
	now := s.now()
	base := now.UnixNano()
	items := make([]interface{}, 0, len(chunks))
	for i, c := range chunks {
		items = append(items, mongoChunk{
			ID:          c.ChunkID,
			ChunkID:     c.ChunkID,
			SourceID:    c.SourceID,
			Source:      c.SourceID,
			Ordinal:     c.Ordinal,
			Text:        c.Text,
			StartOffset: c.StartOffset,
			Category:    c.Category,
			Embedding:   c.Embedding,
			Seq:         base + int64(i),
		})
	}
	record := mongoDocument{
		SourceID:    doc.SourceID,
		ContentHash: doc.ContentHash,
		ContentType: doc.ContentType,
		Category:    doc.Category,
		CollectedAt: doc.CollectedAt,
		ChunkCount:  len(chunks),
		Mtime:       now.Unix(),
	}

	session, err := s.client.StartSession()
	if err != nil {
		return s.wrap("start session", err)
	}
	defer session.EndSession(context.Background())
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := s.chunks.DeleteMany(sc, bson.M{"source_id": doc.SourceID}); err != nil {
			return nil, err
		}
		if _, err := s.docs.ReplaceOne(sc, bson.M{"source_id": doc.SourceID}, record, options.Replace().SetUpsert(true)); err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, nil
		}
		_, err := s.chunks.InsertMany(sc, items)
		return nil, err
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return appErr.ErrDuplicateContent
		}
		return s.wrap("upsert source", err)
	}
	return nil
}

func (s *MongoStore) SourceHash(ctx context.Context, sourceID string) (string, bool, error) {
	var record mongoDocument
	err := s.docs.FindOne(ctx, bson.M{"source_id": sourceID}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", false, nil
		}
		return "", false, s.wrap("find document", err)
	}
	return record.ContentHash, true, nil
}

func (s *MongoStore) CountBySource(ctx context.Context, sourceID string) (int, error) {
	n, err := s.chunks.CountDocuments(ctx, bson.M{"source_id": sourceID})
	if err != nil {
		return 0, s.wrap("count chunks", err)
	}
	return int(n), nil
}

func (s *MongoStore) SimilaritySearch(ctx context.Context, vec []float32, k int) ([]model.ScoredChunk, error) {
	if err := checkQuery(vec, k, s.dim); err != nil {
		return nil, err
	}
	candidates := max(s.numCandidates, k*10)
	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: s.index},
			{Key: "path", Value: embeddingField},
			{Key: "queryVector", Value: vec},
			{Key: "numCandidates", Value: candidates},
			{Key: "limit", Value: k},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "chunk_id", Value: 1},
			{Key: "source_id", Value: 1},
			{Key: "ordinal", Value: 1},
			{Key: "text", Value: 1},
			{Key: "start_offset", Value: 1},
			{Key: "category", Value: 1},
			{Key: "seq", Value: 1},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}
	cursor, err := s.chunks.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, s.wrap("vector search", err)
	}
	var rows []mongoChunk
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, s.wrap("read search results", err)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].Seq < rows[j].Seq
	})
	out := make([]model.ScoredChunk, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.ScoredChunk{
			Chunk: model.Chunk{
				ChunkID:     row.ChunkID,
				SourceID:    row.SourceID,
				Ordinal:     row.Ordinal,
				Text:        row.Text,
				StartOffset: row.StartOffset,
				Category:    row.Category,
			},
			Score: atlasScoreToCosine(row.Score),
		})
	}
	return out, nil
}

// atlasScoreToCosine undoes the (1 + cosine) / 2 normalisation Atlas applies
// to cosine scores.
func atlasScoreToCosine(score float64) float32 {
	return float32(2*score - 1)
}

func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%w: %w", appErr.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	err := s.client.Disconnect(ctx)
	if errors.Is(err, mongo.ErrClientDisconnected) {
		return nil
	}
	return err
}

func (s *MongoStore) wrap(op string, err error) error {
	if isMongoUnavailable(err) {
		return fmt.Errorf("%w: mongodb %s: %w", appErr.ErrStoreUnavailable, op, err)
	}
	return fmt.Errorf("mongodb %s: %w", op, err)
}

func isMongoUnavailable(err error) bool {
	return mongo.IsNetworkError(err) ||
		mongo.IsTimeout(err) ||
		errors.Is(err, mongo.ErrClientDisconnected) ||
		errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(err.Error(), "server selection")
}

func createMongoStore(ctx context.Context, cfg config.StoreConfig, dim int) (Store, error) {
	return NewMongoStore(ctx, cfg.Mongo, dim)
}

func init() {
	Register(config.StoreTypeMongo, createMongoStore)
}
