// Package store is the document store behind the crawler.
//
// Documents are JSON bodies grouped by index and partition (the crawl
// language). Writes are buffered and become visible to reads only after
// Refresh, mirroring the near-real-time search engines the crawler was
// designed against. SQLiteStore keeps everything in one SQLite file.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/fyrsmithlabs/codetoname/internal/cursor"
)

var (
	// ErrIndexNotFound is returned for operations on a missing index.
	ErrIndexNotFound = errors.New("index not found")
	// ErrInvalidName is returned for malformed index or partition names.
	ErrInvalidName = errors.New("invalid name")
	// ErrInvalidField is returned for malformed document field paths.
	ErrInvalidField = errors.New("invalid field")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store is closed")
)

var (
	indexNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,127}$`)
	fieldPattern     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
)

// Document is a stored document.
type Document struct {
	ID        string
	Partition string
	Body      json.RawMessage
	CreatedAt time.Time
}

// Store is the document store used by the crawler.
type Store interface {
	IndexExists(ctx context.Context, index string) (bool, error)
	// CreateIndex creates index if it does not exist.
	CreateIndex(ctx context.Context, index string) error
	// DeleteIndex removes index and all its documents.
	DeleteIndex(ctx context.Context, index string) error
	// Write buffers doc, JSON encoded, until the next Refresh of index.
	Write(ctx context.Context, index, partition string, doc interface{}) error
	// Refresh makes buffered writes visible.
	Refresh(ctx context.Context, index string) error
	// Discard drops the writes buffered for index since the last Refresh and
	// returns how many there were.
	Discard(index string) int
	// Count returns the number of visible documents in index.
	Count(ctx context.Context, index string) (int64, error)
	// TermQueryCount counts documents in a partition whose field equals value.
	TermQueryCount(ctx context.Context, index, partition, field string, value interface{}) (int64, error)
	// CardinalityAggregate counts distinct values of field in a partition.
	CardinalityAggregate(ctx context.Context, index, partition, field string) (int64, error)
	// Search returns up to limit documents of a partition in write order.
	Search(ctx context.Context, index, partition string, limit int) ([]Document, error)

	cursor.Persister

	Close() error
}

func validateIndex(index string) error {
	if !indexNamePattern.MatchString(index) {
		return fmt.Errorf("%w: index %q", ErrInvalidName, index)
	}
	return nil
}

func validatePartition(partition string) error {
	if partition == "" || len(partition) > 64 {
		return fmt.Errorf("%w: partition %q", ErrInvalidName, partition)
	}
	return nil
}

// fieldPath converts a dotted field name such as repo.github_id into a
// JSON path.
func fieldPath(field string) (string, error) {
	if !fieldPattern.MatchString(field) {
		return "", fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	return "$." + field, nil
}
