package store

import (
	"database/sql"
	"fmt"
)

// githubIDExpr must match the expression used by TermQueryCount for the
// dedup field, or SQLite will not use the index.
var githubIDExpr = jsonExpr("$.repo.github_id")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS indices (
		name       TEXT PRIMARY KEY,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id         TEXT PRIMARY KEY,
		index_name TEXT NOT NULL REFERENCES indices(name) ON DELETE CASCADE,
		partition  TEXT NOT NULL,
		body       TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_partition ON documents(index_name, partition)`,
	fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_documents_github_id ON documents(index_name, partition, %s)`, githubIDExpr),
	`CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

func initSchema(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}

func jsonExpr(path string) string {
	return fmt.Sprintf("json_extract(body, '%s')", path)
}
