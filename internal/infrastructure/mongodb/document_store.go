package mongodb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"InsightFlow/internal/config"
	"InsightFlow/internal/domain"
	"InsightFlow/internal/ports"
)

const (
	articlesCollection     = "articles"
	modelUpdatesCollection = "model_updates"
	defaultMaxDocuments    = 5
)

// ArticleDoc mirrors one notable item.
type ArticleDoc struct {
	IdentityKey    string    `bson:"identity_key"`
	Source         string    `bson:"source"`
	SourceID       string    `bson:"source_id"`
	Title          string    `bson:"title"`
	URL            string    `bson:"url"`
	DiscussionURL  string    `bson:"discussion_url"`
	Summary        string    `bson:"summary"`
	RelevanceScore float64   `bson:"relevance_score"`
	Tags           []string  `bson:"tags"`
	PublishedAt    string    `bson:"published_at"`
	Read           bool      `bson:"read"`
	SyncedAt       time.Time `bson:"synced_at"`
}

// ModelUpdateDoc is one line of the model delta, keyed by (date, kind, model_id).
type ModelUpdateDoc struct {
	Date              string   `bson:"date"`
	Kind              string   `bson:"kind"`
	ModelID           string   `bson:"model_id"`
	Name              string   `bson:"name"`
	Creator           string   `bson:"creator,omitempty"`
	IntelligenceIndex *float64 `bson:"intelligence_index,omitempty"`
	OldRank           int      `bson:"old_rank,omitempty"`
	NewRank           int      `bson:"new_rank,omitempty"`
	OldPrice          float64  `bson:"old_price,omitempty"`
	NewPrice          float64  `bson:"new_price,omitempty"`
	ChangePct         float64  `bson:"change_pct,omitempty"`
}

// collection is the part of *mongo.Collection the store writes through.
type collection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// DocumentStore syncs notable items and model deltas into MongoDB.
type DocumentStore struct {
	articles     collection
	modelUpdates collection
	maxDocuments int
	logger       *slog.Logger
	now          func() time.Time
}

var (
	_ ports.DocumentStore = (*DocumentStore)(nil)
	_ collection          = (*mongo.Collection)(nil)
)

// Connect opens a client for cfg.URI and verifies it with a ping.
func Connect(ctx context.Context, cfg config.MongoDBConfig) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}
	return client, nil
}

// NewDocumentStore binds the collections and creates their unique indexes.
func NewDocumentStore(ctx context.Context, db *mongo.Database, maxDocuments int, logger *slog.Logger) (*DocumentStore, error) {
	articles := db.Collection(articlesCollection)
	modelUpdates := db.Collection(modelUpdatesCollection)

	unique := options.Index().SetUnique(true)
	if _, err := articles.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "identity_key", Value: 1}},
		Options: unique,
	}); err != nil {
		return nil, fmt.Errorf("articles index: %w", err)
	}
	if _, err := modelUpdates.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "date", Value: 1}, {Key: "kind", Value: 1}, {Key: "model_id", Value: 1}},
		Options: unique,
	}); err != nil {
		return nil, fmt.Errorf("model updates index: %w", err)
	}
	return newDocumentStore(articles, modelUpdates, maxDocuments, logger), nil
}

func newDocumentStore(articles, modelUpdates collection, maxDocuments int, logger *slog.Logger) *DocumentStore {
	if maxDocuments <= 0 {
		maxDocuments = defaultMaxDocuments
	}
	return &DocumentStore{
		articles:     articles,
		modelUpdates: modelUpdates,
		maxDocuments: maxDocuments,
		logger:       logger,
		now:          time.Now,
	}
}

// SyncItems inserts notable items that are not stored yet, at most maxDocuments
// per call. It returns how many documents were newly created.
func (s *DocumentStore) SyncItems(ctx context.Context, items []domain.Item) (int, error) {
	notable := domain.NotableItems(items)
	if len(notable) > s.maxDocuments {
		notable = notable[:s.maxDocuments]
	}

	created := 0
	for _, it := range notable {
		doc := NewArticleDoc(it, s.now())
		res, err := s.articles.UpdateOne(ctx,
			bson.M{"identity_key": doc.IdentityKey},
			bson.M{"$setOnInsert": doc},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return created, fmt.Errorf("articles: upsert %s: %w", doc.IdentityKey, err)
		}
		if res.UpsertedCount > 0 {
			created++
		} else {
			s.debug("article already stored", "item", doc.IdentityKey)
		}
	}

	s.info("articles synced", "created", created, "candidates", len(notable))
	return created, nil
}

// SyncModelUpdates writes the delta for date, replacing lines already stored for it.
func (s *DocumentStore) SyncModelUpdates(ctx context.Context, date string, updates domain.ModelUpdates) (int, error) {
	docs := NewModelUpdateDocs(date, updates)
	for _, doc := range docs {
		filter := bson.M{"date": doc.Date, "kind": doc.Kind, "model_id": doc.ModelID}
		if _, err := s.modelUpdates.UpdateOne(ctx, filter, bson.M{"$set": doc}, options.Update().SetUpsert(true)); err != nil {
			return 0, fmt.Errorf("model updates: upsert %s/%s: %w", doc.Kind, doc.ModelID, err)
		}
	}

	s.info("model updates synced", "date", date, "documents", len(docs))
	return len(docs), nil
}

// NewArticleDoc converts an item into its stored shape.
func NewArticleDoc(it domain.Item, syncedAt time.Time) ArticleDoc {
	tags := it.Tags
	if tags == nil {
		tags = []string{}
	}
	return ArticleDoc{
		IdentityKey:    it.IdentityKey(),
		Source:         it.Source,
		SourceID:       it.SourceID,
		Title:          it.Title,
		URL:            it.URL,
		DiscussionURL:  it.DiscussionURL,
		Summary:        truncate(it.DisplaySummary(), 2000),
		RelevanceScore: it.RelevanceScore,
		Tags:           tags,
		PublishedAt:    it.PublishedAt,
		SyncedAt:       syncedAt.UTC(),
	}
}

// NewModelUpdateDocs flattens a delta into one document per change.
func NewModelUpdateDocs(date string, u domain.ModelUpdates) []ModelUpdateDoc {
	docs := make([]ModelUpdateDoc, 0, len(u.NewModels)+len(u.RankChanges)+len(u.PriceChanges))
	for _, m := range u.NewModels {
		docs = append(docs, ModelUpdateDoc{
			Date: date, Kind: "new", ModelID: m.ModelID, Name: m.Name,
			Creator: m.Creator, IntelligenceIndex: m.IntelligenceIndex,
		})
	}
	for _, rc := range u.RankChanges {
		idx := rc.IntelligenceIndex
		docs = append(docs, ModelUpdateDoc{
			Date: date, Kind: "rank", ModelID: rc.ModelID, Name: rc.Name,
			OldRank: rc.OldRank, NewRank: rc.NewRank, IntelligenceIndex: &idx,
		})
	}
	for _, pc := range u.PriceChanges {
		docs = append(docs, ModelUpdateDoc{
			Date: date, Kind: "price", ModelID: pc.ModelID, Name: pc.Name,
			OldPrice: pc.OldPrice, NewPrice: pc.NewPrice, ChangePct: pc.ChangePct,
		})
	}
	return docs
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func (s *DocumentStore) info(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *DocumentStore) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
