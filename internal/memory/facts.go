package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
)

// ErrEmptyFact is returned when adding a blank fact
var ErrEmptyFact = errors.New("fact content is empty")

const scrollPage = 100

// Fact is one remembered utterance of a member conversation
type Fact struct {
	ID        string    `json:"id"`
	MemberID  string    `json:"member_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ScoredFact is a search hit
type ScoredFact struct {
	Fact
	Score float64 `json:"score"`
}

// points is the part of *qdrant.Client the store uses
type points interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	CreateFieldIndex(ctx context.Context, request *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Scroll(ctx context.Context, request *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error)
}

// FactStore keeps member facts in a Qdrant collection
type FactStore struct {
	client     points
	collection string
	dimensions uint64
	embedder   Embedder
	now        func() time.Time
	logger     *zap.Logger
}

// NewFactStore connects to Qdrant over gRPC and makes sure the collection exists
func NewFactStore(ctx context.Context, qdrantURL, collection, apiKey string, embedder Embedder, logger *zap.Logger) (*FactStore, error) {
	host, port, useTLS := splitQdrantURL(qdrantURL)
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}
	return newFactStore(ctx, client, collection, embedder, logger)
}

func newFactStore(ctx context.Context, client points, collection string, embedder Embedder, logger *zap.Logger) (*FactStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &FactStore{
		client:     client,
		collection: collection,
		dimensions: DefaultDimensions,
		embedder:   embedder,
		now:        time.Now,
		logger:     logger.Named("memory"),
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}
	return s, nil
}

// splitQdrantURL turns http://host:6333 style addresses into gRPC settings.
// The REST port is swapped for the gRPC port.
func splitQdrantURL(raw string) (string, int, bool) {
	useTLS := strings.HasPrefix(raw, "https://")
	host := strings.TrimPrefix(strings.TrimPrefix(raw, "http://"), "https://")
	host = strings.TrimRight(host, "/")
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return host, 6334, useTLS
}

func (s *FactStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.dimensions,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	indexes := []struct {
		field string
		typ   qdrant.PayloadSchemaType
	}{
		{"member_id", qdrant.PayloadSchemaType_Keyword},
		{"created_at", qdrant.PayloadSchemaType_Integer},
	}
	for _, idx := range indexes {
		fieldType := qdrant.FieldType(idx.typ)
		_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      idx.field,
			FieldType:      &fieldType,
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for %s: %w", idx.field, err)
		}
	}
	s.logger.Info("Created collection", zap.String("collection", s.collection))
	return nil
}

// Add embeds and stores one fact
func (s *FactStore) Add(ctx context.Context, memberID, role, content string) (Fact, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Fact{}, ErrEmptyFact
	}
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return Fact{}, fmt.Errorf("failed to embed fact: %w", err)
	}

	f := Fact{
		ID:        uuid.New().String(),
		MemberID:  memberID,
		Role:      role,
		Content:   content,
		CreatedAt: s.now().UTC(),
	}
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(f.ID),
			Vectors: qdrant.NewVectors(vec...),
			Payload: map[string]*qdrant.Value{
				"member_id":  qdrant.NewValueString(f.MemberID),
				"role":       qdrant.NewValueString(f.Role),
				"content":    qdrant.NewValueString(f.Content),
				"created_at": qdrant.NewValueInt(f.CreatedAt.UnixNano()),
			},
		}},
	})
	if err != nil {
		return Fact{}, fmt.Errorf("failed to store fact: %w", err)
	}
	s.logger.Debug("Stored fact", zap.String("member_id", memberID), zap.String("id", f.ID))
	return f, nil
}

// All returns every fact of a member, oldest first
func (s *FactStore) All(ctx context.Context, memberID string) ([]Fact, error) {
	var (
		facts  []Fact
		offset *qdrant.PointId
	)
	for {
		// the offset point is inclusive, so ask for one extra to learn the next page
		page, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Filter:         memberFilter(memberID),
			Limit:          qdrant.PtrOf(uint32(scrollPage + 1)),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll facts: %w", err)
		}
		n := len(page)
		if n > scrollPage {
			n = scrollPage
		}
		for _, p := range page[:n] {
			facts = append(facts, pointToFact(p.GetId(), p.GetPayload()))
		}
		if len(page) <= scrollPage {
			break
		}
		offset = page[scrollPage].GetId()
	}

	slices.SortStableFunc(facts, func(a, b Fact) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return facts, nil
}

// Search returns the facts of a member closest to query
func (s *FactStore) Search(ctx context.Context, memberID, query string, limit int) ([]ScoredFact, error) {
	if limit <= 0 {
		limit = 5
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vec...),
		Filter:         memberFilter(memberID),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	out := make([]ScoredFact, 0, len(hits))
	for _, h := range hits {
		out = append(out, ScoredFact{Fact: pointToFact(h.GetId(), h.GetPayload()), Score: float64(h.GetScore())})
	}
	return out, nil
}

func memberFilter(memberID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("member_id", memberID)},
	}
}

func pointToFact(id *qdrant.PointId, payload map[string]*qdrant.Value) Fact {
	return Fact{
		ID:        id.GetUuid(),
		MemberID:  payloadString(payload, "member_id"),
		Role:      payloadString(payload, "role"),
		Content:   payloadString(payload, "content"),
		CreatedAt: time.Unix(0, payloadInt(payload, "created_at")).UTC(),
	}
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	if val, ok := payload[key]; ok {
		return val.GetStringValue()
	}
	return ""
}

func payloadInt(payload map[string]*qdrant.Value, key string) int64 {
	if val, ok := payload[key]; ok {
		return val.GetIntegerValue()
	}
	return 0
}
