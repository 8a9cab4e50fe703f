// Package store caches raw analysis responses in SQLite, keyed by shard
// content hash, so re-running an audit over an unchanged export skips
// the remote round trips.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"plcaudit/internal/logging"
)

// Entry is one cached analysis response.
type Entry struct {
	Key              string
	ShardID          string
	AnalysisType     string
	Content          string
	PromptTokens     int
	CompletionTokens int
	CreatedAt        time.Time
}

// Cache is the on-disk response cache.
type Cache struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Open creates or opens the cache database at path.
func Open(dbPath string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	c := &Cache{db: db, dbPath: dbPath}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return c, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Path returns the database file path.
func (c *Cache) Path() string {
	return c.dbPath
}

func (c *Cache) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS responses (
		key TEXT PRIMARY KEY,
		shard_id TEXT NOT NULL,
		analysis_type TEXT NOT NULL,
		content TEXT NOT NULL,
		prompt_tokens INTEGER NOT NULL DEFAULT 0,
		completion_tokens INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_responses_type ON responses(analysis_type);
	CREATE INDEX IF NOT EXISTS idx_responses_created ON responses(created_at);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Get returns the cached entry for key, if present.
func (c *Cache) Get(key string) (*Entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var e Entry
	err := c.db.QueryRow(`
		SELECT key, shard_id, analysis_type, content, prompt_tokens, completion_tokens, created_at
		FROM responses WHERE key = ?`, key).
		Scan(&e.Key, &e.ShardID, &e.AnalysisType, &e.Content, &e.PromptTokens, &e.CompletionTokens, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return &e, true, nil
}

// Put stores an entry, replacing any previous response for the same key.
func (c *Cache) Put(e *Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := c.db.Exec(`
		INSERT OR REPLACE INTO responses
		(key, shard_id, analysis_type, content, prompt_tokens, completion_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Key, e.ShardID, e.AnalysisType, e.Content, e.PromptTokens, e.CompletionTokens, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	logging.StoreDebug("cached response for shard %s (key %.12s)", e.ShardID, e.Key)
	return nil
}

// Purge deletes entries older than maxAge and returns how many went.
func (c *Cache) Purge(maxAge time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge)
	res, err := c.db.Exec(`DELETE FROM responses WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logging.Store("purged %d cache entries older than %v", n, maxAge)
	}
	return n, nil
}

// Count returns the number of cached responses.
func (c *Cache) Count() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var n int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM responses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return n, nil
}
