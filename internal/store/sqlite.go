// Package store provides the durable SQLite-backed StoreHandle for one
// scope's rules, learnings, and heuristics. Keyword search uses an FTS5
// index over learning content; embeddings are stored as packed
// little-endian float32 blobs with a dimension check on load.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/recalld/internal/memory"
)

// ErrBadEmbedding indicates a stored embedding blob that does not match
// the deployment's vector dimension.
var ErrBadEmbedding = errors.New("stored embedding has wrong dimension")

// SQLite implements memory.StoreHandle on a single database file.
type SQLite struct {
	db         *sql.DB
	scope      memory.Scope
	dimensions int
	logger     *zap.Logger
}

// New opens (creating if needed) the database at path for the given
// scope. The parent directory is created when missing.
func New(path string, scope memory.Scope, dimensions int, logger *zap.Logger) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if !scope.Valid() {
		return nil, memory.ErrInvalidScope
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling pragmas: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLite{
		db:         db,
		scope:      scope,
		dimensions: dimensions,
		logger:     logger.Named("store").With(zap.String("scope", string(scope))),
	}, nil
}

// Scope returns the scope this store serves.
func (s *SQLite) Scope() memory.Scope {
	return s.scope
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("executing %s: %w", pragma, err)
		}
	}
	return nil
}

func createSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS rules (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			embedding BLOB,
			created_at INTEGER NOT NULL,
			hit_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS learnings (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			category TEXT NOT NULL,
			embedding BLOB,
			created_at INTEGER NOT NULL,
			context_hash TEXT NOT NULL,
			utility_score REAL NOT NULL DEFAULT 1.0
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_learnings_context_hash ON learnings(context_hash)`,
		`CREATE TABLE IF NOT EXISTS heuristics (
			id TEXT PRIMARY KEY,
			pattern TEXT NOT NULL,
			suggestion TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS learnings_fts USING fts5(
			item_id UNINDEXED,
			content,
			tokenize='unicode61 remove_diacritics 2'
		)`,
		`CREATE TRIGGER IF NOT EXISTS learnings_fts_insert AFTER INSERT ON learnings BEGIN
			INSERT INTO learnings_fts(item_id, content) VALUES (new.id, new.content);
		END`,
		`CREATE TRIGGER IF NOT EXISTS learnings_fts_delete AFTER DELETE ON learnings BEGIN
			DELETE FROM learnings_fts WHERE item_id = old.id;
		END`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// InsertRule persists a new rule.
func (s *SQLite) InsertRule(ctx context.Context, r *memory.Rule) error {
	if r == nil {
		return fmt.Errorf("rule cannot be nil")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rules (id, content, embedding, created_at, hit_count) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Content, packEmbedding(r.Embedding), r.CreatedAt.UnixNano(), r.HitCount)
	if err != nil {
		return fmt.Errorf("inserting rule: %w", err)
	}
	return nil
}

// InsertLearning persists a new learning. A learning whose context hash
// already exists in this store is silently ignored.
func (s *SQLite) InsertLearning(ctx context.Context, l *memory.Learning) error {
	if l == nil {
		return fmt.Errorf("learning cannot be nil")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO learnings (id, content, category, embedding, created_at, context_hash, utility_score)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(context_hash) DO NOTHING`,
		l.ID, l.Content, string(l.Category), packEmbedding(l.Embedding), l.CreatedAt.UnixNano(), l.ContextHash, l.UtilityScore)
	if err != nil {
		return fmt.Errorf("inserting learning: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.logger.Debug("duplicate learning ignored", zap.String("context_hash", l.ContextHash))
	}
	return nil
}

// InsertHeuristic persists a new heuristic.
func (s *SQLite) InsertHeuristic(ctx context.Context, h *memory.Heuristic) error {
	if h == nil {
		return fmt.Errorf("heuristic cannot be nil")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO heuristics (id, pattern, suggestion, created_at) VALUES (?, ?, ?, ?)`,
		h.ID, h.Pattern, h.Suggestion, h.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("inserting heuristic: %w", err)
	}
	return nil
}

// ListRules returns all rules ordered by hit count descending.
func (s *SQLite) ListRules(ctx context.Context) ([]memory.Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, embedding, created_at, hit_count FROM rules ORDER BY hit_count DESC, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	defer rows.Close()

	var rules []memory.Rule
	for rows.Next() {
		var (
			r       memory.Rule
			blob    []byte
			created int64
		)
		if err := rows.Scan(&r.ID, &r.Content, &blob, &created, &r.HitCount); err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		vec, err := s.unpackEmbedding(blob)
		if err != nil {
			s.logger.Warn("skipping rule with bad embedding", zap.String("id", r.ID), zap.Error(err))
			continue
		}
		r.Embedding = vec
		r.CreatedAt = time.Unix(0, created)
		r.Scope = s.scope
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// ListLearnings returns all learnings.
func (s *SQLite) ListLearnings(ctx context.Context) ([]memory.Learning, error) {
	return s.listLearnings(ctx,
		`SELECT id, content, category, embedding, created_at, context_hash, utility_score FROM learnings`)
}

// ListLearningsSince returns learnings created at or after the cutoff.
func (s *SQLite) ListLearningsSince(ctx context.Context, cutoff time.Time) ([]memory.Learning, error) {
	return s.listLearnings(ctx,
		`SELECT id, content, category, embedding, created_at, context_hash, utility_score
		 FROM learnings WHERE created_at >= ? ORDER BY created_at ASC`,
		cutoff.UnixNano())
}

func (s *SQLite) listLearnings(ctx context.Context, query string, args ...any) ([]memory.Learning, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing learnings: %w", err)
	}
	defer rows.Close()

	var learnings []memory.Learning
	for rows.Next() {
		l, err := s.scanLearning(rows)
		if err != nil {
			if errors.Is(err, ErrBadEmbedding) {
				s.logger.Warn("skipping learning with bad embedding", zap.Error(err))
				continue
			}
			return nil, err
		}
		learnings = append(learnings, *l)
	}
	return learnings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLite) scanLearning(row rowScanner) (*memory.Learning, error) {
	var (
		l        memory.Learning
		category string
		blob     []byte
		created  int64
	)
	if err := row.Scan(&l.ID, &l.Content, &category, &blob, &created, &l.ContextHash, &l.UtilityScore); err != nil {
		return nil, fmt.Errorf("scanning learning: %w", err)
	}
	vec, err := s.unpackEmbedding(blob)
	if err != nil {
		return nil, fmt.Errorf("learning %s: %w", l.ID, err)
	}
	l.Category = memory.Category(category)
	l.Embedding = vec
	l.CreatedAt = time.Unix(0, created)
	l.Scope = s.scope
	return &l, nil
}

// ListHeuristics returns all heuristics.
func (s *SQLite) ListHeuristics(ctx context.Context) ([]memory.Heuristic, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pattern, suggestion, created_at FROM heuristics ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing heuristics: %w", err)
	}
	defer rows.Close()

	var heuristics []memory.Heuristic
	for rows.Next() {
		var (
			h       memory.Heuristic
			created int64
		)
		if err := rows.Scan(&h.ID, &h.Pattern, &h.Suggestion, &created); err != nil {
			return nil, fmt.Errorf("scanning heuristic: %w", err)
		}
		h.CreatedAt = time.Unix(0, created)
		h.Scope = s.scope
		heuristics = append(heuristics, h)
	}
	return heuristics, rows.Err()
}

// GetLearning returns one learning by ID.
func (s *SQLite) GetLearning(ctx context.Context, id string) (*memory.Learning, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, content, category, embedding, created_at, context_hash, utility_score
		 FROM learnings WHERE id = ?`, id)
	l, err := s.scanLearning(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, memory.ErrNotFound
		}
		return nil, err
	}
	return l, nil
}

// UpdateRuleHitCount adds delta to a rule's hit count.
func (s *SQLite) UpdateRuleHitCount(ctx context.Context, id string, delta int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE rules SET hit_count = hit_count + ? WHERE id = ?`, delta, id)
	if err != nil {
		return fmt.Errorf("updating rule hit count: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return memory.ErrNotFound
	}
	return nil
}

// UpdateLearningUtility adds delta to a learning's utility score.
func (s *SQLite) UpdateLearningUtility(ctx context.Context, id string, delta float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE learnings SET utility_score = utility_score + ? WHERE id = ?`, delta, id)
	if err != nil {
		return fmt.Errorf("updating learning utility: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return memory.ErrNotFound
	}
	return nil
}

// KeywordSearch matches the sanitized query against indexed learning
// content. Tokens are OR-joined so conversational queries still match.
func (s *SQLite) KeywordSearch(ctx context.Context, query string, limit int) ([]memory.KeywordMatch, error) {
	if limit <= 0 {
		limit = 10
	}

	ftsQuery := buildFTSQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, snippet(learnings_fts, 1, '', '', '…', 12)
		 FROM learnings_fts WHERE learnings_fts MATCH ?
		 ORDER BY bm25(learnings_fts) LIMIT ?`,
		ftsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var matches []memory.KeywordMatch
	for rows.Next() {
		var m memory.KeywordMatch
		if err := rows.Scan(&m.ID, &m.Snippet); err != nil {
			return nil, fmt.Errorf("scanning keyword match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// buildFTSQuery turns a sanitized query into an OR-joined FTS5 match
// expression with each token quoted as a phrase literal.
func buildFTSQuery(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, `"`+f+`"`)
	}
	return strings.Join(parts, " OR ")
}

// DeleteExpiredRules removes low-hit rules older than maxAge.
func (s *SQLite) DeleteExpiredRules(ctx context.Context, maxAge time.Duration, minHits int) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UnixNano()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM rules WHERE created_at < ? AND hit_count < ?`, cutoff, minHits)
	if err != nil {
		return 0, fmt.Errorf("deleting expired rules: %w", err)
	}
	return res.RowsAffected()
}

// DeleteExpiredLearnings removes learnings older than maxAge, regardless
// of utility score.
func (s *SQLite) DeleteExpiredLearnings(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UnixNano()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM learnings WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting expired learnings: %w", err)
	}
	return res.RowsAffected()
}

// DeleteExpiredHeuristics removes heuristics older than maxAge.
func (s *SQLite) DeleteExpiredHeuristics(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UnixNano()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM heuristics WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting expired heuristics: %w", err)
	}
	return res.RowsAffected()
}

// packEmbedding serializes a vector as little-endian float32 bytes.
func packEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// unpackEmbedding deserializes a vector, enforcing the deployment's
// dimension so a model change that alters D surfaces as an error rather
// than silently corrupt similarity scores.
func (s *SQLite) unpackEmbedding(buf []byte) ([]float32, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadEmbedding, len(buf))
	}
	n := len(buf) / 4
	if n != s.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrBadEmbedding, n, s.dimensions)
	}
	vec := make([]float32, n)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}

// Compile-time check that SQLite implements memory.StoreHandle.
var _ memory.StoreHandle = (*SQLite)(nil)
