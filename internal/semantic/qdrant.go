package semantic

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/xxxsen/mlibrary/internal/config"
	"github.com/xxxsen/mlibrary/internal/model"
)

const payloadEntryID = "entry_id"

// QdrantIndex keeps chunks in one collection; entry scoping is a payload filter.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dimension  uint64
}

func NewQdrantIndex(ctx context.Context, cfg config.QdrantConfig) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: create client: %w", err)
	}
	idx := &QdrantIndex{client: client, collection: cfg.Collection, dimension: cfg.Dimension}
	if err := idx.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return idx, nil
}

func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("qdrant: check collection: %w", err)
	}
	if exists {
		return nil
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.dimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %q: %w", q.collection, err)
	}
	_, err = q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: q.collection,
		FieldName:      payloadEntryID,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("qdrant: index %s: %w", payloadEntryID, err)
	}
	return nil
}

func (q *QdrantIndex) Name() string { return "qdrant" }

// PointID is stable per (entry, chunk) so re-indexing overwrites in place.
func PointID(entryID string, chunkIndex int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(entryID+":"+strconv.Itoa(chunkIndex))).String()
}

func (q *QdrantIndex) Upsert(ctx context.Context, chunks []model.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d != %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, ch := range chunks {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(ch.EntryID, ch.ChunkIndex)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadEntryID: ch.EntryID,
				"page_number":  int64(ch.PageNumber),
				"chunk_index":  int64(ch.ChunkIndex),
				"title":        ch.Title,
				"author":       ch.Author,
				"text":         ch.Text,
			}),
		})
	}
	wait := true
	if _, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("qdrant: upsert: %w", err)
	}
	return nil
}

func entryFilter(entryID string) *qdrant.Filter {
	return &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch(payloadEntryID, entryID)}}
}

func (q *QdrantIndex) DeleteEntry(ctx context.Context, entryID string) error {
	wait := true
	if _, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelectorFilter(entryFilter(entryID)),
	}); err != nil {
		return fmt.Errorf("qdrant: delete: %w", err)
	}
	return nil
}

func (q *QdrantIndex) Search(ctx context.Context, vector []float32, entryID string, limit int) ([]model.ChunkMatch, error) {
	l := uint64(limit)
	req := &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &l,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if entryID != "" {
		req.Filter = entryFilter(entryID)
	}
	points, err := q.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant: query: %w", err)
	}
	matches := make([]model.ChunkMatch, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		matches = append(matches, model.ChunkMatch{
			Chunk: model.Chunk{
				EntryID:    payload[payloadEntryID].GetStringValue(),
				Title:      payload["title"].GetStringValue(),
				Author:     payload["author"].GetStringValue(),
				PageNumber: int(payload["page_number"].GetIntegerValue()),
				ChunkIndex: int(payload["chunk_index"].GetIntegerValue()),
				Text:       payload["text"].GetStringValue(),
			},
			Score: p.GetScore(),
		})
	}
	return matches, nil
}

func (q *QdrantIndex) Close() error {
	return q.client.Close()
}
