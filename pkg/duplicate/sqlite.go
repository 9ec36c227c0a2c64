package duplicate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/op/go-logging"
)

// DefaultSearchLimit bounds ListValid when the caller passes no limit
const DefaultSearchLimit = 100

// Upload represents a cached upload record
type Upload struct {
	ID           int64
	Filename     string
	URL          string
	FilePath     string
	FileSize     *int64
	FileHash     string
	UploadDate   time.Time
	LastVerified *time.Time
	IsValid      bool
	Metadata     map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Stats aggregates the current state of the uploads table
type Stats struct {
	TotalCount      int64
	ValidCount      int64
	InvalidCount    int64
	TotalValidBytes int64
	EarliestUpload  *time.Time
	LatestUpload    *time.Time
}

// SQLiteCache is the durable record store for uploads
type SQLiteCache struct {
	db  *sql.DB
	now func() time.Time
	log *logging.Logger
}

// Option configures a SQLiteCache
type Option func(*SQLiteCache)

// WithClock overrides the time source used for timestamps
func WithClock(now func() time.Time) Option {
	return func(c *SQLiteCache) {
		c.now = now
	}
}

// WithLogger sets the logger used for non-fatal diagnostics
func WithLogger(log *logging.Logger) Option {
	return func(c *SQLiteCache) {
		c.log = log
	}
}

// NewSQLiteCache opens (and if needed creates) the cache database at dbPath
func NewSQLiteCache(dbPath string, opts ...Option) (*SQLiteCache, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dataSourceName(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	cache := &SQLiteCache{
		db:  db,
		now: time.Now,
		log: logging.MustGetLogger("duplicate"),
	}
	for _, opt := range opts {
		opt(cache)
	}

	if err := cache.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return cache, nil
}

// uriEscaper escapes the characters that would end or corrupt the path part
// of a SQLite file: URI
var uriEscaper = strings.NewReplacer("%", "%25", "?", "%3F", "#", "%23")

// dataSourceName builds the driver DSN for dbPath
func dataSourceName(dbPath string) string {
	return "file:" + uriEscaper.Replace(dbPath) + "?_busy_timeout=5000"
}

// init creates the database schema
func (c *SQLiteCache) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS uploads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL,
		url TEXT NOT NULL,
		file_path TEXT,
		file_size INTEGER,
		file_hash TEXT,
		upload_date INTEGER NOT NULL,
		last_verified INTEGER,
		is_valid INTEGER NOT NULL DEFAULT 1,
		metadata TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_filename ON uploads(filename);
	CREATE INDEX IF NOT EXISTS idx_file_hash ON uploads(file_hash);
	CREATE INDEX IF NOT EXISTS idx_url ON uploads(url);
	CREATE INDEX IF NOT EXISTS idx_upload_date ON uploads(upload_date);
	CREATE INDEX IF NOT EXISTS idx_is_valid ON uploads(is_valid);
	`

	_, err := c.db.Exec(schema)
	return err
}

const selectColumns = `
	SELECT id, filename, url, file_path, file_size, file_hash,
	       upload_date, last_verified, is_valid, metadata, created_at, updated_at
	FROM uploads
`

// Insert records a new upload. Size and hash are taken from filePath when it
// is readable; otherwise they are left empty.
func (c *SQLiteCache) Insert(ctx context.Context, filename, url, filePath string, metadata map[string]any) (int64, error) {
	if filename == "" || url == "" {
		return 0, fmt.Errorf("%w: filename and url are required", ErrInvalidRecord)
	}

	var (
		fileSize sql.NullInt64
		fileHash sql.NullString
	)
	if filePath != "" {
		info, err := GetFileInfo(filePath)
		if err != nil {
			c.log.Debugf("no hash for %s: %v", filePath, err)
		} else {
			fileSize = sql.NullInt64{Int64: info.Size, Valid: true}
			fileHash = sql.NullString{String: info.Hash, Valid: true}
		}
	}

	var meta sql.NullString
	if len(metadata) > 0 {
		data, err := json.Marshal(metadata)
		if err != nil {
			return 0, fmt.Errorf("%w: encode metadata: %v", ErrStoreWrite, err)
		}
		meta = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT INTO uploads
		(filename, url, file_path, file_size, file_hash, upload_date,
		 last_verified, is_valid, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
	`

	now := c.now().UnixNano()
	res, err := c.db.ExecContext(ctx, query,
		filename,
		url,
		nullString(filePath),
		fileSize,
		fileHash,
		now,
		now,
		meta,
		now,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: insert upload: %v", ErrStoreWrite, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: read insert id: %v", ErrStoreWrite, err)
	}
	return id, nil
}

// Invalidate marks a record as logically deleted. Calling it again is a no-op
// apart from refreshing updated_at.
func (c *SQLiteCache) Invalidate(ctx context.Context, id int64) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE uploads SET is_valid = 0, updated_at = ? WHERE id = ?`,
		c.now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("%w: invalidate %d: %v", ErrStoreWrite, id, err)
	}
	return nil
}

// MarkVerified stamps a successful liveness confirmation
func (c *SQLiteCache) MarkVerified(ctx context.Context, id int64) error {
	now := c.now().UnixNano()
	_, err := c.db.ExecContext(ctx,
		`UPDATE uploads SET last_verified = ?, updated_at = ? WHERE id = ?`,
		now, now, id)
	if err != nil {
		return fmt.Errorf("%w: mark verified %d: %v", ErrStoreWrite, id, err)
	}
	return nil
}

// FindLatestByFilename returns the newest valid record for filename, or nil
func (c *SQLiteCache) FindLatestByFilename(ctx context.Context, filename string) (*Upload, error) {
	query := selectColumns + `
		WHERE filename = ? AND is_valid = 1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	upload, err := c.queryOne(ctx, query, filename)
	if err != nil {
		return nil, fmt.Errorf("query by filename: %w", err)
	}
	return upload, nil
}

// FindLatestByHash returns the newest valid record with the given content hash, or nil
func (c *SQLiteCache) FindLatestByHash(ctx context.Context, hash string) (*Upload, error) {
	if hash == "" {
		return nil, nil
	}
	query := selectColumns + `
		WHERE file_hash = ? AND is_valid = 1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	upload, err := c.queryOne(ctx, query, strings.ToLower(hash))
	if err != nil {
		return nil, fmt.Errorf("query by hash: %w", err)
	}
	return upload, nil
}

// Get returns a record by id whether or not it is valid
func (c *SQLiteCache) Get(ctx context.Context, id int64) (*Upload, error) {
	upload, err := c.queryOne(ctx, selectColumns+` WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query by id: %w", err)
	}
	return upload, nil
}

// ListValid searches valid records whose filename, url or path contains
// query (case-insensitive), newest first
func (c *SQLiteCache) ListValid(ctx context.Context, query string, limit int) ([]*Upload, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	if query == "" {
		return c.queryMany(ctx, selectColumns+`
			WHERE is_valid = 1
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		`, limit)
	}

	pattern := "%" + escapeLike(query) + "%"
	return c.queryMany(ctx, selectColumns+`
		WHERE (filename LIKE ? ESCAPE '\' OR url LIKE ? ESCAPE '\' OR file_path LIKE ? ESCAPE '\')
		AND is_valid = 1
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, pattern, pattern, pattern, limit)
}

// ValidBatch returns up to limit valid records, oldest first
func (c *SQLiteCache) ValidBatch(ctx context.Context, limit int) ([]*Upload, error) {
	if limit <= 0 {
		return nil, nil
	}
	return c.queryMany(ctx, selectColumns+`
		WHERE is_valid = 1
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, limit)
}

// Stats aggregates counts, sizes and the upload date range
func (c *SQLiteCache) Stats(ctx context.Context) (*Stats, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN is_valid = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_valid = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_valid = 1 THEN file_size ELSE 0 END), 0),
			MIN(CASE WHEN is_valid = 1 THEN upload_date END),
			MAX(CASE WHEN is_valid = 1 THEN upload_date END)
		FROM uploads
	`

	var (
		stats            Stats
		earliest, latest sql.NullInt64
	)
	err := c.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalCount,
		&stats.ValidCount,
		&stats.InvalidCount,
		&stats.TotalValidBytes,
		&earliest,
		&latest,
	)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}

	stats.EarliestUpload = nullTime(earliest)
	stats.LatestUpload = nullTime(latest)
	return &stats, nil
}

// Close closes the database connection
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUpload(row rowScanner) (*Upload, error) {
	var (
		upload                          Upload
		filePath, fileHash, metadata    sql.NullString
		fileSize, lastVerified          sql.NullInt64
		uploadDate, createdAt, updateAt int64
		isValid                         int64
	)

	err := row.Scan(
		&upload.ID,
		&upload.Filename,
		&upload.URL,
		&filePath,
		&fileSize,
		&fileHash,
		&uploadDate,
		&lastVerified,
		&isValid,
		&metadata,
		&createdAt,
		&updateAt,
	)
	if err != nil {
		return nil, err
	}

	upload.FilePath = filePath.String
	upload.FileHash = fileHash.String
	if fileSize.Valid {
		size := fileSize.Int64
		upload.FileSize = &size
	}
	upload.UploadDate = time.Unix(0, uploadDate)
	upload.LastVerified = nullTime(lastVerified)
	upload.IsValid = isValid != 0
	upload.CreatedAt = time.Unix(0, createdAt)
	upload.UpdatedAt = time.Unix(0, updateAt)

	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &upload.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %d: %w", upload.ID, err)
		}
	}

	return &upload, nil
}

func (c *SQLiteCache) queryOne(ctx context.Context, query string, args ...any) (*Upload, error) {
	upload, err := scanUpload(c.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return upload, nil
}

func (c *SQLiteCache) queryMany(ctx context.Context, query string, args ...any) ([]*Upload, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query uploads: %w", err)
	}
	defer rows.Close()

	var uploads []*Upload
	for rows.Next() {
		upload, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		uploads = append(uploads, upload)
	}

	return uploads, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64)
	return &t
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// DefaultCachePath returns the default cache database path
func DefaultCachePath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "upcache", "uploads.db")
}
