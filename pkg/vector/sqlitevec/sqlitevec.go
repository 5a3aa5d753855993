// Package sqlitevec provides a SQLite-backed vector search driver using
// sqlite-vec. It serves local single-node deployments where running a
// separate vector database is overkill.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/ashenvale/recall/pkg/vector"
)

// knnOversample widens KNN queries so post-filtering by collection and owner
// still yields enough hits.
const knnOversample = 4

// SQLiteVecDriver implements vector.Driver using SQLite with sqlite-vec.
type SQLiteVecDriver struct {
	db     *sql.DB
	logger *zap.Logger
}

// Config holds configuration for the SQLite vec driver.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions uint
}

// NewSQLiteVecDriver creates a new SQLite vector driver backed by sqlite-vec.
func NewSQLiteVecDriver(c Config, logger *zap.Logger) (*SQLiteVecDriver, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if c.Dimensions == 0 {
		return nil, fmt.Errorf("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Verify sqlite-vec is loaded
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	// vec0 virtual tables use integer rowids, so string document IDs map
	// through this table.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS memory_documents (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			doc_id TEXT NOT NULL UNIQUE,
			collection TEXT NOT NULL,
			owner TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating documents table: %w", err)
	}

	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS memory_embeddings USING vec0(embedding float[%d])`,
		c.Dimensions,
	)
	if _, err := db.Exec(createVec); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vec0 table: %w", err)
	}

	logger.Info("sqlite-vec vector driver initialized",
		zap.String("db_path", c.DBPath),
		zap.Uint("dimensions", c.Dimensions),
		zap.String("vec_version", vecVersion),
	)

	return &SQLiteVecDriver{
		db:     db,
		logger: logger,
	}, nil
}

// serializeFloat32 converts a float32 slice to a little-endian byte slice
// suitable for sqlite-vec BLOB format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// Index stores a document with its embedding. An existing document with the
// same ID is replaced.
func (d *SQLiteVecDriver) Index(ctx context.Context, doc vector.Document) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	embBlob := serializeFloat32(doc.Embedding)

	var existingRowID int64
	err = tx.QueryRowContext(ctx,
		`SELECT rowid FROM memory_documents WHERE doc_id = ?`, doc.ID,
	).Scan(&existingRowID)

	switch err {
	case nil:
		if _, err := tx.ExecContext(ctx,
			`UPDATE memory_documents SET collection = ?, owner = ?, body = ? WHERE rowid = ?`,
			doc.Collection, doc.Owner, doc.Text, existingRowID,
		); err != nil {
			return fmt.Errorf("updating document %s: %w", doc.ID, err)
		}

		// vec0 does not support UPDATE, so replace via DELETE + INSERT
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM memory_embeddings WHERE rowid = ?`, existingRowID,
		); err != nil {
			return fmt.Errorf("deleting old embedding for doc %s: %w", doc.ID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memory_embeddings(rowid, embedding) VALUES (?, ?)`,
			existingRowID, embBlob,
		); err != nil {
			return fmt.Errorf("re-inserting embedding for doc %s: %w", doc.ID, err)
		}
	case sql.ErrNoRows:
		result, err := tx.ExecContext(ctx,
			`INSERT INTO memory_documents(doc_id, collection, owner, body) VALUES (?, ?, ?, ?)`,
			doc.ID, doc.Collection, doc.Owner, doc.Text,
		)
		if err != nil {
			return fmt.Errorf("inserting document %s: %w", doc.ID, err)
		}

		rowID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("getting rowid for doc %s: %w", doc.ID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memory_embeddings(rowid, embedding) VALUES (?, ?)`,
			rowID, embBlob,
		); err != nil {
			return fmt.Errorf("inserting embedding for doc %s: %w", doc.ID, err)
		}
	default:
		return fmt.Errorf("checking for existing document %s: %w", doc.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("indexed document in sqlite-vec",
		zap.String("collection", doc.Collection),
		zap.String("id", doc.ID),
	)

	return nil
}

// Search blends KNN distance with keyword overlap according to the query's
// alpha. Without an embedding it falls back to keyword matching alone.
func (d *SQLiteVecDriver) Search(ctx context.Context, q vector.SearchQuery) ([]vector.Hit, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	if len(q.Embedding) == 0 {
		return d.keywordSearch(ctx, q, limit)
	}

	queryBlob := serializeFloat32(q.Embedding)

	// KNN first, then filter by collection and owner on the joined table.
	rows, err := d.db.QueryContext(ctx, `
		SELECT
			md.doc_id,
			md.owner,
			md.body,
			me.distance
		FROM memory_embeddings me
		INNER JOIN memory_documents md ON md.rowid = me.rowid
		WHERE me.embedding MATCH ?
			AND me.k = ?
			AND md.collection = ?
			AND (? = '' OR md.owner = ?)
		ORDER BY me.distance
	`, queryBlob, limit*knnOversample, q.Collection, q.Owner, q.Owner)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	terms := queryTerms(q.Text)

	var hits []vector.Hit
	for rows.Next() {
		var hit vector.Hit
		var distance float64
		if err := rows.Scan(&hit.ID, &hit.Owner, &hit.Text, &distance); err != nil {
			return nil, fmt.Errorf("scanning query result: %w", err)
		}

		// Lower distance = higher similarity
		vecScore := float32(1.0 / (1.0 + distance))
		hit.Score = q.Alpha*vecScore + (1-q.Alpha)*keywordScore(hit.Text, terms)
		hits = append(hits, hit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query results: %w", err)
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	d.logger.Debug("searched sqlite-vec",
		zap.String("collection", q.Collection),
		zap.Int("results", len(hits)),
	)

	return hits, nil
}

func (d *SQLiteVecDriver) keywordSearch(ctx context.Context, q vector.SearchQuery, limit int) ([]vector.Hit, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT doc_id, owner, body
		FROM memory_documents
		WHERE collection = ?
			AND (? = '' OR owner = ?)
	`, q.Collection, q.Owner, q.Owner)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	terms := queryTerms(q.Text)

	var hits []vector.Hit
	for rows.Next() {
		var hit vector.Hit
		if err := rows.Scan(&hit.ID, &hit.Owner, &hit.Text); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		hit.Score = keywordScore(hit.Text, terms)
		if hit.Score > 0 {
			hits = append(hits, hit)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	return hits, nil
}

// Close releases resources held by the driver.
func (d *SQLiteVecDriver) Close() error {
	return d.db.Close()
}

func queryTerms(text string) []string {
	return strings.Fields(strings.ToLower(text))
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

var _ vector.Driver = (*SQLiteVecDriver)(nil)
