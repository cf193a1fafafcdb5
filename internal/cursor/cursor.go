// Package cursor tracks pagination state against the repository feed.
//
// Paging starts offset based. Once a batch reports pushed timestamps the
// cursor switches to timestamp paging for the rest of its life: the next
// query asks for repositories pushed at or after the newest timestamp seen,
// which tolerates a feed that reorders or inserts items between pages.
//
// A Cursor is owned by a single crawler and is not safe for concurrent use.
package cursor

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidState is returned for page sizes below 1 or negative counters.
var ErrInvalidState = errors.New("invalid cursor state")

// State is the serializable form of a Cursor.
type State struct {
	PageSize   int        `json:"page_size"`
	PageNumber int        `json:"page_number"`
	LastPushed *time.Time `json:"last_pushed,omitempty"`
	// Offset is the page index within a single pinned pushed timestamp. It
	// only grows while full batches share the same timestamp and drops back
	// to 0 on the first short one.
	Offset int `json:"offset"`
}

// Validate checks the state's invariants.
func (s State) Validate() error {
	if s.PageSize < 1 {
		return fmt.Errorf("%w: page size must be > 0, got %d", ErrInvalidState, s.PageSize)
	}
	if s.PageNumber < 0 {
		return fmt.Errorf("%w: page number must be >= 0, got %d", ErrInvalidState, s.PageNumber)
	}
	if s.Offset < 0 {
		return fmt.Errorf("%w: offset must be >= 0, got %d", ErrInvalidState, s.Offset)
	}
	return nil
}

// Query holds the feed parameters for one batch. Page is 1-based.
type Query struct {
	PushedSince *time.Time
	Page        int
	PerPage     int
}

// Cursor advances through the feed one batch at a time.
type Cursor struct {
	state State
}

// New creates a cursor starting at the given page.
func New(pageSize, pageNumber int) (*Cursor, error) {
	return FromState(State{PageSize: pageSize, PageNumber: pageNumber})
}

// FromState restores a cursor, typically one loaded from a Persister.
func FromState(s State) (*Cursor, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.LastPushed != nil {
		t := s.LastPushed.UTC()
		s.LastPushed = &t
	}
	return &Cursor{state: s}, nil
}

// State returns a copy of the current state.
func (c *Cursor) State() State {
	s := c.state
	if s.LastPushed != nil {
		t := *s.LastPushed
		s.LastPushed = &t
	}
	return s
}

// Advance returns the parameters of the next unseen batch. It does not
// change the cursor; Observe does once the batch has been received.
func (c *Cursor) Advance() Query {
	if c.state.LastPushed == nil {
		return Query{
			Page:    c.state.PageNumber + 1,
			PerPage: c.state.PageSize,
		}
	}
	since := *c.state.LastPushed
	return Query{
		PushedSince: &since,
		Page:        c.state.Offset + 1,
		PerPage:     c.state.PageSize,
	}
}

// Observe records the pushed timestamps of a received batch. It reports
// whether the cursor has caught up with the feed: in timestamp paging, a
// short or empty batch that did not move the newest timestamp forward.
//
// Only a full batch pinned at the current timestamp pages forward. Anything
// shorter restarts at the first page of that timestamp, since repositories
// pushed later sort onto the pages already seen.
func (c *Cursor) Observe(pushed []time.Time) bool {
	c.state.PageNumber++
	last := c.state.LastPushed
	if len(pushed) == 0 {
		if last == nil {
			return false
		}
		c.state.Offset = 0
		return true
	}

	newest := pushed[0]
	for _, t := range pushed[1:] {
		if t.After(newest) {
			newest = t
		}
	}
	newest = newest.UTC()
	full := len(pushed) >= c.state.PageSize

	switch {
	case last == nil || newest.After(*last):
		c.state.LastPushed = &newest
		c.state.Offset = 0
		return false
	case newest.Equal(*last) && full:
		c.state.Offset++
		return false
	default:
		c.state.Offset = 0
		return !full
	}
}

// Key names the persisted cursor of one index and language.
func Key(index, language string) string {
	return index + "/" + language
}
