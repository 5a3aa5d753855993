// Package weaviate provides a Weaviate-backed vector search driver using its
// GraphQL hybrid search API.
package weaviate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ashenvale/recall/pkg/memstore"
	"github.com/ashenvale/recall/pkg/vector"
)

// Driver implements vector.Driver against a Weaviate instance. It shares the
// server with the memstore driver but speaks only the search surface.
type Driver struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Config holds configuration for the Weaviate search driver.
type Config struct {
	// URL is the Weaviate server URL (e.g., "http://localhost:8080").
	URL string
}

// NewDriver creates a new Weaviate search driver.
func NewDriver(c Config, logger *zap.Logger) (*Driver, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("weaviate URL is required")
	}

	return &Driver{
		baseURL: strings.TrimRight(c.URL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}, nil
}

// Index attaches the document's embedding to its stored object so hybrid
// search can score it on the vector side. The object's properties are
// preserved as stored.
func (d *Driver) Index(ctx context.Context, doc vector.Document) error {
	url := fmt.Sprintf("%s/v1/objects/%s/%s", d.baseURL, doc.Collection, doc.ID)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("creating get request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", vector.ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s/%s", vector.ErrNotFound, doc.Collection, doc.ID)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to get object: status %d: %s", resp.StatusCode, string(body))
	}

	var obj objectPayload
	if err := json.NewDecoder(resp.Body).Decode(&obj); err != nil {
		return fmt.Errorf("decoding object response: %w", err)
	}

	obj.Vector = doc.Embedding

	jsonBody, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("marshaling object request: %w", err)
	}

	req, err = http.NewRequestWithContext(ctx, "PUT", url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("creating put request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err = d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", vector.ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to index object: status %d: %s", resp.StatusCode, string(body))
	}

	d.logger.Debug("indexed document",
		zap.String("collection", doc.Collection),
		zap.String("id", doc.ID),
	)

	return nil
}

// Search runs a hybrid query against the collection, optionally scoped to one
// owner.
func (d *Driver) Search(ctx context.Context, q vector.SearchQuery) ([]vector.Hit, error) {
	textField := memstore.TextProperty(q.Collection)
	if textField == "" {
		return nil, fmt.Errorf("collection %q has no searchable text", q.Collection)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	var args []string
	args = append(args, hybridArg(q))
	args = append(args, fmt.Sprintf("limit: %d", limit))
	if q.Owner != "" {
		args = append(args, fmt.Sprintf(
			`where: {path: [%s], operator: Equal, valueText: %s}`,
			strconv.Quote(memstore.OwnerProperty), strconv.Quote(q.Owner),
		))
	}

	query := fmt.Sprintf(
		"{ Get { %s(%s) { %s %s _additional { id score } } } }",
		q.Collection, strings.Join(args, ", "), textField, memstore.OwnerProperty,
	)

	jsonBody, err := json.Marshal(graphqlRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("marshaling graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", d.baseURL+"/v1/graphql", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("creating graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vector.ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("hybrid search failed: status %d: %s", resp.StatusCode, string(body))
	}

	var gqlResp graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gqlResp); err != nil {
		return nil, fmt.Errorf("decoding graphql response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("hybrid search failed: %s", gqlResp.Errors[0].Message)
	}

	raw, ok := gqlResp.Data.Get[q.Collection]
	if !ok {
		return nil, nil
	}

	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decoding %s rows: %w", q.Collection, err)
	}

	hits := make([]vector.Hit, 0, len(rows))
	for _, row := range rows {
		hit := vector.Hit{}
		if s, ok := row[textField].(string); ok {
			hit.Text = s
		}
		if s, ok := row[memstore.OwnerProperty].(string); ok {
			hit.Owner = s
		}
		if additional, ok := row["_additional"].(map[string]any); ok {
			if id, ok := additional["id"].(string); ok {
				hit.ID = id
			}
			if raw, ok := additional["score"].(string); ok {
				if score, err := strconv.ParseFloat(raw, 32); err == nil {
					hit.Score = float32(score)
				}
			}
		}
		hits = append(hits, hit)
	}

	d.logger.Debug("hybrid search",
		zap.String("collection", q.Collection),
		zap.Int("results", len(hits)),
	)

	return hits, nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	// HTTP client doesn't require explicit cleanup
	return nil
}

// hybridArg builds the hybrid clause. Without an embedding the query degrades
// to keyword-only scoring by pinning alpha to 0.
func hybridArg(q vector.SearchQuery) string {
	if len(q.Embedding) == 0 {
		return fmt.Sprintf("hybrid: {query: %s, alpha: 0}", strconv.Quote(q.Text))
	}

	var b strings.Builder
	b.WriteString("[")
	for i, f := range q.Embedding {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteString("]")

	return fmt.Sprintf(
		"hybrid: {query: %s, vector: %s, alpha: %s}",
		strconv.Quote(q.Text), b.String(),
		strconv.FormatFloat(float64(q.Alpha), 'g', -1, 32),
	)
}

type graphqlRequest struct {
	Query string `json:"query"`
}

type graphqlResponse struct {
	Data struct {
		Get map[string]json.RawMessage `json:"Get"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type objectPayload struct {
	Class      string         `json:"class"`
	ID         string         `json:"id"`
	Properties map[string]any `json:"properties"`
	Vector     []float32      `json:"vector,omitempty"`
}
