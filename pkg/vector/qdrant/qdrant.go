// Package qdrant provides a Qdrant-backed vector search driver using the
// official gRPC client. Hybrid keyword blending is approximated client-side;
// Qdrant scores the vector side and keyword overlap adjusts the final rank.
package qdrant

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/ashenvale/recall/pkg/memstore"
	"github.com/ashenvale/recall/pkg/vector"
)

const (
	payloadDocIDKey = "doc_id"
	payloadOwnerKey = "owner"
	payloadBodyKey  = "body"
)

// Point ids must be UUIDs, so string document ids map through a deterministic
// SHA1 UUID.
var pointIDNamespace = uuid.MustParse("7b1c1e92-58b4-49a7-9f0d-6a42c9b3f217")

// Driver implements vector.Driver against a Qdrant instance.
type Driver struct {
	client *qdrant.Client
	logger *zap.Logger
}

// Config holds configuration for the Qdrant driver.
type Config struct {
	// Host is the Qdrant host (e.g., "localhost").
	Host string

	// Port is the Qdrant gRPC port. Defaults to 6334 if zero.
	Port int

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions uint
}

// NewDriver creates a new Qdrant driver and ensures a collection exists for
// every memory collection.
func NewDriver(c Config, logger *zap.Logger) (*Driver, error) {
	if c.Host == "" {
		return nil, fmt.Errorf("qdrant host is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("qdrant embedding dimensions cannot be 0, must be configured")
	}

	port := c.Port
	if port == 0 {
		port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: c.Host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vector.ErrConnection, err)
	}

	d := &Driver{
		client: client,
		logger: logger,
	}

	if err := d.ensureCollections(context.Background(), uint64(c.Dimensions)); err != nil {
		client.Close()
		return nil, err
	}

	logger.Info("connected to Qdrant",
		zap.String("host", c.Host),
		zap.Int("port", port),
		zap.Uint("dimensions", c.Dimensions),
	)

	return d, nil
}

func (d *Driver) ensureCollections(ctx context.Context, dimensions uint64) error {
	for _, collection := range memstore.Collections() {
		exists, err := d.client.CollectionExists(ctx, collection)
		if err != nil {
			return fmt.Errorf("%w: checking collection %q: %v", vector.ErrConnection, collection, err)
		}
		if exists {
			continue
		}

		err = d.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     dimensions,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("creating collection %q: %w", collection, err)
		}

		d.logger.Info("created qdrant collection", zap.String("collection", collection))
	}

	return nil
}

// Index stores a document with its embedding. An existing document with the
// same ID is replaced.
func (d *Driver) Index(ctx context.Context, doc vector.Document) error {
	if len(doc.Embedding) == 0 {
		return fmt.Errorf("document %s has no embedding", doc.ID)
	}

	_, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: doc.Collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDUUID(pointID(doc.Collection, doc.ID)),
				Vectors: qdrant.NewVectors(doc.Embedding...),
				Payload: qdrant.NewValueMap(map[string]any{
					payloadDocIDKey: doc.ID,
					payloadOwnerKey: doc.Owner,
					payloadBodyKey:  doc.Text,
				}),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("upserting point for doc %s: %w", doc.ID, err)
	}

	d.logger.Debug("indexed document in qdrant",
		zap.String("collection", doc.Collection),
		zap.String("id", doc.ID),
	)

	return nil
}

// Search runs a vector query scoped to the owner and blends keyword overlap
// into the returned scores according to the query's alpha.
func (d *Driver) Search(ctx context.Context, q vector.SearchQuery) ([]vector.Hit, error) {
	if len(q.Embedding) == 0 {
		// Qdrant has no keyword index; nothing to rank without a vector.
		return nil, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	query := &qdrant.QueryPoints{
		CollectionName: q.Collection,
		Query:          qdrant.NewQuery(q.Embedding...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if q.Owner != "" {
		query.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch(payloadOwnerKey, q.Owner),
			},
		}
	}

	points, err := d.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying collection %q: %w", q.Collection, err)
	}

	terms := strings.Fields(strings.ToLower(q.Text))

	hits := make([]vector.Hit, 0, len(points))
	for _, point := range points {
		hit := vector.Hit{
			Score: point.Score,
		}
		if v, ok := point.Payload[payloadDocIDKey]; ok {
			hit.ID = v.GetStringValue()
		}
		if v, ok := point.Payload[payloadOwnerKey]; ok {
			hit.Owner = v.GetStringValue()
		}
		if v, ok := point.Payload[payloadBodyKey]; ok {
			hit.Text = v.GetStringValue()
		}
		if len(terms) > 0 && q.Alpha < 1 {
			hit.Score = q.Alpha*point.Score + (1-q.Alpha)*keywordScore(hit.Text, terms)
		}
		hits = append(hits, hit)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	d.logger.Debug("searched qdrant",
		zap.String("collection", q.Collection),
		zap.Int("results", len(hits)),
	)

	return hits, nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	return d.client.Close()
}

func pointID(collection, docID string) string {
	return uuid.NewSHA1(pointIDNamespace, []byte(collection+"|"+docID)).String()
}

// keywordScore is the fraction of query terms present in the text.
func keywordScore(text string, terms []string) float32 {
	if len(terms) == 0 {
		return 0
	}

	lower := strings.ToLower(text)
	matched := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			matched++
		}
	}

	return float32(matched) / float32(len(terms))
}

var _ vector.Driver = (*Driver)(nil)
