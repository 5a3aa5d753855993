// Package weaviate provides a Weaviate-backed memory store driver using its
// REST and GraphQL APIs.
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
)

// DefaultPoolSize bounds concurrent requests to the store when no size is
// configured.
const DefaultPoolSize = 8

// Driver implements memstore.Driver against a Weaviate instance.
//
// Each call acquires a slot from a bounded pool before touching the network
// and releases it on every exit path, so a slow store can never absorb an
// unbounded number of in-flight requests.
type Driver struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	slots      chan struct{}
}

// Config holds configuration for the Weaviate driver.
type Config struct {
	// URL is the Weaviate server URL (e.g., "http://localhost:8080").
	URL string

	// PoolSize bounds concurrent requests. Defaults to DefaultPoolSize.
	PoolSize int
}

// NewDriver creates a new Weaviate driver and verifies the server is
// reachable.
func NewDriver(c Config, logger *zap.Logger) (*Driver, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("weaviate URL is required")
	}

	poolSize := c.PoolSize
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}

	d := &Driver{
		baseURL: strings.TrimRight(c.URL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
		slots:  make(chan struct{}, poolSize),
	}

	if err := d.ready(context.Background()); err != nil {
		return nil, err
	}

	logger.Info("connected to Weaviate",
		zap.String("url", c.URL),
		zap.Int("pool_size", poolSize),
	)

	return d, nil
}

func (d *Driver) ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", d.baseURL+"/v1/.well-known/ready", nil)
	if err != nil {
		return fmt.Errorf("creating readiness request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", memstore.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: readiness check returned status %d", memstore.ErrUnavailable, resp.StatusCode)
	}

	return nil
}

// acquire takes a pool slot, honoring ctx cancellation while waiting.
func (d *Driver) acquire(ctx context.Context) (func(), error) {
	select {
	case d.slots <- struct{}{}:
		return func() { <-d.slots }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// FetchOne returns the first object in the collection whose field equals
// value. Returns memstore.ErrNotFound if no object matches.
func (d *Driver) FetchOne(ctx context.Context, collection, field, value string) (*memstore.Object, error) {
	objs, err := d.fetch(ctx, collection, field, value, 1, false)
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return nil, memstore.ErrNotFound{Collection: collection, Field: field, Value: value}
	}

	return &objs[0], nil
}

// FetchMany returns up to limit objects whose field equals value. When
// newestFirst is set, results are ordered by creation time descending.
func (d *Driver) FetchMany(ctx context.Context, collection, field, value string, limit int, newestFirst bool) ([]memstore.Object, error) {
	return d.fetch(ctx, collection, field, value, limit, newestFirst)
}

func (d *Driver) fetch(ctx context.Context, collection, field, value string, limit int, newestFirst bool) ([]memstore.Object, error) {
	props := memstore.Properties(collection)
	if props == nil {
		return nil, fmt.Errorf("%w: unknown collection %q", memstore.ErrSchemaMismatch, collection)
	}

	release, err := d.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	names := make([]string, len(props))
	for i, p := range props {
		names[i] = p.Name
	}

	var args []string
	args = append(args, fmt.Sprintf(
		`where: {path: [%s], operator: Equal, valueText: %s}`,
		strconv.Quote(field), strconv.Quote(value),
	))
	if limit > 0 {
		args = append(args, fmt.Sprintf("limit: %d", limit))
	}
	if newestFirst {
		args = append(args, `sort: [{path: ["_creationTimeUnix"], order: desc}]`)
	}

	query := fmt.Sprintf(
		"{ Get { %s(%s) { %s _additional { id creationTimeUnix } } } }",
		collection, strings.Join(args, ", "), strings.Join(names, " "),
	)

	raw, err := d.graphql(ctx, query, collection)
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decoding %s rows: %w", collection, err)
	}

	objs := make([]memstore.Object, 0, len(rows))
	for _, row := range rows {
		objs = append(objs, objectFromRow(row))
	}

	d.logger.Debug("fetched objects",
		zap.String("collection", collection),
		zap.String("field", field),
		zap.Int("count", len(objs)),
	)

	return objs, nil
}

// graphql posts a GraphQL query and returns the raw rows under
// data.Get.<collection>.
func (d *Driver) graphql(ctx context.Context, query, collection string) (json.RawMessage, error) {
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
		return nil, fmt.Errorf("%w: %v", memstore.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("graphql query failed: status %d: %s", resp.StatusCode, string(body))
	}

	var gqlResp graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gqlResp); err != nil {
		return nil, fmt.Errorf("decoding graphql response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		msg := gqlResp.Errors[0].Message
		if strings.Contains(msg, "Cannot query field") || strings.Contains(msg, "Unknown type") {
			return nil, fmt.Errorf("%w: %s", memstore.ErrSchemaMismatch, msg)
		}
		return nil, fmt.Errorf("graphql query failed: %s", msg)
	}

	raw, ok := gqlResp.Data.Get[collection]
	if !ok {
		return json.RawMessage("[]"), nil
	}

	return raw, nil
}

// Insert stores a new object and returns its id.
func (d *Driver) Insert(ctx context.Context, collection string, props map[string]any) (string, error) {
	release, err := d.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	return d.putObject(ctx, "POST", d.baseURL+"/v1/objects", objectPayload{
		Class:      collection,
		Properties: props,
	})
}

// Upsert stores props under the object whose keyField equals keyValue,
// creating it if absent. Last writer wins.
func (d *Driver) Upsert(ctx context.Context, collection, keyField, keyValue string, props map[string]any) (string, error) {
	existing, err := d.FetchOne(ctx, collection, keyField, keyValue)
	if err != nil {
		if memstore.IsNotFound(err) {
			return d.Insert(ctx, collection, props)
		}
		return "", err
	}

	release, err := d.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	url := fmt.Sprintf("%s/v1/objects/%s/%s", d.baseURL, collection, existing.ID)
	return d.putObject(ctx, "PUT", url, objectPayload{
		Class:      collection,
		ID:         existing.ID,
		Properties: props,
	})
}

func (d *Driver) putObject(ctx context.Context, method, url string, payload objectPayload) (string, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling object request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("creating object request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", memstore.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: %s", memstore.ErrSchemaMismatch, string(body))
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("failed to store object: status %d: %s", resp.StatusCode, string(body))
	}

	var stored objectPayload
	if err := json.NewDecoder(resp.Body).Decode(&stored); err != nil {
		return "", fmt.Errorf("decoding object response: %w", err)
	}

	d.logger.Debug("stored object",
		zap.String("collection", payload.Class),
		zap.String("id", stored.ID),
	)

	return stored.ID, nil
}

// Delete removes the object with the given id. Deleting an absent object is
// not an error.
func (d *Driver) Delete(ctx context.Context, collection, id string) error {
	release, err := d.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	url := fmt.Sprintf("%s/v1/objects/%s/%s", d.baseURL, collection, id)
	req, err := http.NewRequestWithContext(ctx, "DELETE", url, nil)
	if err != nil {
		return fmt.Errorf("creating delete request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", memstore.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to delete object: status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// EnsureSchema creates any missing collection classes. Existing classes are
// left untouched.
func (d *Driver) EnsureSchema(ctx context.Context) error {
	for _, collection := range memstore.Collections() {
		exists, err := d.classExists(ctx, collection)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := d.createClass(ctx, collection); err != nil {
			return err
		}
		d.logger.Info("created collection", zap.String("collection", collection))
	}

	return nil
}

func (d *Driver) classExists(ctx context.Context, collection string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", d.baseURL+"/v1/schema/"+collection, nil)
	if err != nil {
		return false, fmt.Errorf("creating schema request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", memstore.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		body, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("failed to read schema: status %d: %s", resp.StatusCode, string(body))
	}
}

func (d *Driver) createClass(ctx context.Context, collection string) error {
	props := memstore.Properties(collection)

	class := classPayload{Class: collection}
	for _, p := range props {
		class.Properties = append(class.Properties, classProperty{
			Name:     p.Name,
			DataType: []string{p.Type},
		})
	}

	jsonBody, err := json.Marshal(class)
	if err != nil {
		return fmt.Errorf("marshaling class request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", d.baseURL+"/v1/schema", bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("creating class request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", memstore.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to create collection %q: status %d: %s", collection, resp.StatusCode, string(body))
	}

	return nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	// HTTP client doesn't require explicit cleanup
	return nil
}

func objectFromRow(row map[string]any) memstore.Object {
	obj := memstore.Object{
		Properties: make(map[string]any, len(row)),
	}

	for name, value := range row {
		if name == "_additional" {
			additional, _ := value.(map[string]any)
			if id, ok := additional["id"].(string); ok {
				obj.ID = id
			}
			if raw, ok := additional["creationTimeUnix"].(string); ok {
				if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
					obj.CreatedAt = time.UnixMilli(ms).UTC()
				}
			}
			continue
		}
		obj.Properties[name] = value
	}

	return obj
}
