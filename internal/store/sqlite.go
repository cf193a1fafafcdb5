package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fyrsmithlabs/codetoname/internal/cursor"
	"github.com/fyrsmithlabs/codetoname/internal/logging"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/codetoname/internal/store"

type pendingDoc struct {
	id        string
	partition string
	body      []byte
	createdAt time.Time
}

// SQLiteStore implements Store on a single SQLite connection.
type SQLiteStore struct {
	db     *sql.DB
	tracer trace.Tracer
	logger *logging.Logger

	mu      sync.Mutex
	pending map[string][]pendingDoc
	closed  bool
}

// Open creates or opens the database at path. The parent directory is
// created if needed. A nil logger discards output.
func Open(path string, logger *logging.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("store path is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection: reads and writes are sequential, and :memory:
	// databases are per connection.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLiteStore{
		db:      db,
		tracer:  otel.Tracer(instrumentationName),
		logger:  logger,
		pending: make(map[string][]pendingDoc),
	}, nil
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *SQLiteStore) startSpan(ctx context.Context, name, index string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, name)
	span.SetAttributes(attribute.String("index", index))
	return ctx, span
}

func recordError(span trace.Span, err error) error {
	if err != nil && !errors.Is(err, ErrIndexNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// IndexExists reports whether index has been created.
func (s *SQLiteStore) IndexExists(ctx context.Context, index string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	if err := validateIndex(index); err != nil {
		return false, err
	}
	return s.indexExists(ctx, index)
}

func (s *SQLiteStore) indexExists(ctx context.Context, index string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM indices WHERE name = ?", index).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking index %s: %w", index, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) requireIndex(ctx context.Context, index string) error {
	ok, err := s.indexExists(ctx, index)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrIndexNotFound, index)
	}
	return nil
}

// CreateIndex creates index if it does not exist.
func (s *SQLiteStore) CreateIndex(ctx context.Context, index string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := validateIndex(index); err != nil {
		return err
	}
	ctx, span := s.startSpan(ctx, "store.create_index", index)
	defer span.End()

	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO indices (name, created_at) VALUES (?, ?)",
		index, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return recordError(span, fmt.Errorf("creating index %s: %w", index, err))
	}
	return nil
}

// DeleteIndex removes index, its documents and any unrefreshed writes.
func (s *SQLiteStore) DeleteIndex(ctx context.Context, index string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := validateIndex(index); err != nil {
		return err
	}
	ctx, span := s.startSpan(ctx, "store.delete_index", index)
	defer span.End()

	s.mu.Lock()
	delete(s.pending, index)
	s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM indices WHERE name = ?", index)
	if err != nil {
		return recordError(span, fmt.Errorf("deleting index %s: %w", index, err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrIndexNotFound, index)
	}
	s.logger.Info(ctx, "index deleted", zap.String("index", index))
	return nil
}

// Write buffers doc until the next Refresh of index.
func (s *SQLiteStore) Write(ctx context.Context, index, partition string, doc interface{}) error {
	if err := validateIndex(index); err != nil {
		return err
	}
	if err := validatePartition(partition); err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.requireIndex(ctx, index); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[index] = append(s.pending[index], pendingDoc{
		id:        uuid.NewString(),
		partition: partition,
		body:      body,
		createdAt: time.Now().UTC(),
	})
	return nil
}

// Refresh commits buffered writes for index in one transaction.
func (s *SQLiteStore) Refresh(ctx context.Context, index string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := validateIndex(index); err != nil {
		return err
	}
	return s.refresh(ctx, index)
}

func (s *SQLiteStore) refresh(ctx context.Context, index string) error {
	ctx, span := s.startSpan(ctx, "store.refresh", index)
	defer span.End()

	s.mu.Lock()
	docs := s.pending[index]
	delete(s.pending, index)
	s.mu.Unlock()

	span.SetAttributes(attribute.Int("documents", len(docs)))
	if len(docs) == 0 {
		return nil
	}

	if err := s.insert(ctx, index, docs); err != nil {
		// Keep the batch so a later refresh can retry it.
		s.mu.Lock()
		s.pending[index] = append(docs, s.pending[index]...)
		s.mu.Unlock()
		return recordError(span, err)
	}
	return nil
}

// Discard drops the writes buffered for index. A refresh that failed keeps
// its batch, so Discard also drops that.
func (s *SQLiteStore) Discard(index string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.pending[index])
	delete(s.pending, index)
	return n
}

func (s *SQLiteStore) insert(ctx context.Context, index string, docs []pendingDoc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin refresh: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO documents (id, index_name, partition, body, created_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare refresh: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		if _, err := stmt.ExecContext(ctx, d.id, index, d.partition, string(d.body), d.createdAt.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("inserting document: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit refresh: %w", err)
	}
	return nil
}

// Count returns the number of visible documents in index.
func (s *SQLiteStore) Count(ctx context.Context, index string) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if err := validateIndex(index); err != nil {
		return 0, err
	}
	ctx, span := s.startSpan(ctx, "store.count", index)
	defer span.End()

	if err := s.requireIndex(ctx, index); err != nil {
		return 0, recordError(span, err)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE index_name = ?", index).Scan(&n); err != nil {
		return 0, recordError(span, fmt.Errorf("counting documents: %w", err))
	}
	return n, nil
}

// TermQueryCount counts documents in a partition whose field equals value.
func (s *SQLiteStore) TermQueryCount(ctx context.Context, index, partition, field string, value interface{}) (int64, error) {
	return s.aggregate(ctx, "store.term_query_count", "COUNT(*)", index, partition, field, value)
}

// CardinalityAggregate counts distinct non-null values of field in a
// partition.
func (s *SQLiteStore) CardinalityAggregate(ctx context.Context, index, partition, field string) (int64, error) {
	return s.aggregate(ctx, "store.cardinality", "", index, partition, field, nil)
}

// aggregate runs COUNT(*) filtered by field = value, or a distinct count of
// field when fn is empty.
func (s *SQLiteStore) aggregate(ctx context.Context, name, fn, index, partition, field string, value interface{}) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if err := validateIndex(index); err != nil {
		return 0, err
	}
	if err := validatePartition(partition); err != nil {
		return 0, err
	}
	path, err := fieldPath(field)
	if err != nil {
		return 0, err
	}

	ctx, span := s.startSpan(ctx, name, index)
	defer span.End()
	span.SetAttributes(attribute.String("partition", partition), attribute.String("field", field))

	if err := s.requireIndex(ctx, index); err != nil {
		return 0, recordError(span, err)
	}

	expr := jsonExpr(path)
	var (
		query string
		args  = []interface{}{index, partition}
	)
	if fn == "" {
		query = fmt.Sprintf("SELECT COUNT(DISTINCT %s) FROM documents WHERE index_name = ? AND partition = ?", expr)
	} else {
		query = fmt.Sprintf("SELECT %s FROM documents WHERE index_name = ? AND partition = ? AND %s = ?", fn, expr)
		args = append(args, value)
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, recordError(span, fmt.Errorf("querying %s: %w", field, err))
	}
	return n, nil
}

// Search returns up to limit documents of a partition in write order. A
// limit of 0 or less returns every document.
func (s *SQLiteStore) Search(ctx context.Context, index, partition string, limit int) ([]Document, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := validateIndex(index); err != nil {
		return nil, err
	}
	if err := validatePartition(partition); err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "store.search", index)
	defer span.End()

	if err := s.requireIndex(ctx, index); err != nil {
		return nil, recordError(span, err)
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, partition, body, created_at FROM documents WHERE index_name = ? AND partition = ? ORDER BY rowid LIMIT ?",
		index, partition, limit)
	if err != nil {
		return nil, recordError(span, fmt.Errorf("searching documents: %w", err))
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var (
			d       Document
			body    string
			created string
		)
		if err := rows.Scan(&d.ID, &d.Partition, &body, &created); err != nil {
			return nil, recordError(span, fmt.Errorf("scanning document: %w", err))
		}
		d.Body = json.RawMessage(body)
		d.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, recordError(span, fmt.Errorf("searching documents: %w", err))
	}
	span.SetAttributes(attribute.Int("documents", len(docs)))
	return docs, nil
}

func cursorKey(key string) string {
	return "cursor/" + key
}

// LoadCursor returns the cursor saved under key, or nil.
func (s *SQLiteStore) LoadCursor(ctx context.Context, key string) (*cursor.State, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", cursorKey(key)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading cursor %s: %w", key, err)
	}

	var st cursor.State
	if err := json.Unmarshal([]byte(value), &st); err != nil {
		return nil, fmt.Errorf("decoding cursor %s: %w", key, err)
	}
	return &st, nil
}

// SaveCursor stores st under key, replacing any previous state.
func (s *SQLiteStore) SaveCursor(ctx context.Context, key string, st cursor.State) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	value, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding cursor: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		cursorKey(key), string(value))
	if err != nil {
		return fmt.Errorf("saving cursor %s: %w", key, err)
	}
	return nil
}

// Close flushes buffered writes and closes the database. Calling Close more
// than once is safe.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	indices := make([]string, 0, len(s.pending))
	for index := range s.pending {
		indices = append(indices, index)
	}
	s.mu.Unlock()

	var errs []error
	for _, index := range indices {
		if err := s.refresh(context.Background(), index); err != nil {
			s.logger.Error(context.Background(), "failed to flush writes on close", zap.String("index", index), zap.Error(err))
			errs = append(errs, err)
		}
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing db: %w", err))
	}
	return errors.Join(errs...)
}

var _ Store = (*SQLiteStore)(nil)
