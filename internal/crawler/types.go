package crawler

import (
	"fmt"

	"github.com/fyrsmithlabs/codetoname/internal/logging"
)

// Repository describes a repository returned by the feed. The JSON names
// form the repo object of every stored entry; dedup queries repo.github_id.
type Repository struct {
	ID     int64  `json:"github_id"`
	URL    string `json:"url"`
	Branch string `json:"branch"`
	Fork   bool   `json:"fork"`
}

// Entry is the stored document. Feature holds a serialized feature.Record
// and is absent for repositories without any functions.
type Entry struct {
	Repo    Repository `json:"repo"`
	Feature *string    `json:"feature,omitempty"`
}

// RepoError is a failure to index one repository.
type RepoError struct {
	Repo Repository
	Err  error
}

func (e *RepoError) Error() string {
	return fmt.Sprintf("repository %d (%s): %v", e.Repo.ID, logging.RedactURL(e.Repo.URL), e.Err)
}

func (e *RepoError) Unwrap() error { return e.Err }

// StepResult summarizes one crawl step.
type StepResult struct {
	// Fetched is the number of repositories returned by the feed.
	Fetched int
	// Skipped counts repositories already indexed, or forks when forks are
	// skipped.
	Skipped int
	// Indexed counts repositories written successfully.
	Indexed int
	// Written is the number of entries written.
	Written int
	// Failures lists repositories that could not be indexed.
	Failures []*RepoError
	// CaughtUp is set when the batch ended the feed without moving the
	// cursor past the newest timestamp already seen.
	CaughtUp bool
}

// Exhausted reports whether the feed has nothing unseen left: it returned
// nothing, or the cursor caught up with it.
func (r *StepResult) Exhausted() bool {
	return r.Fetched == 0 || r.CaughtUp
}

// RunSummary accumulates the step results of a run.
type RunSummary struct {
	Steps    int
	Fetched  int
	Skipped  int
	Indexed  int
	Written  int
	Failures int
}

func (s *RunSummary) add(r *StepResult) {
	s.Steps++
	s.Fetched += r.Fetched
	s.Skipped += r.Skipped
	s.Indexed += r.Indexed
	s.Written += r.Written
	s.Failures += len(r.Failures)
}
