//go:build sqlite_fts5

package store

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS records_fts USING fts5(
			record_id UNINDEXED,
			title,
			summary,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, id int64, title, summary string, tags []string) error {
	_, _ = tx.Exec(`DELETE FROM records_fts WHERE record_id = ?`, id)
	_, err := tx.Exec(`INSERT INTO records_fts (record_id, title, summary, tags) VALUES (?, ?, ?, ?)`,
		id, title, summary, strings.Join(tags, " "))
	if err != nil {
		return fmt.Errorf("store: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, id int64) {
	_, _ = tx.Exec(`DELETE FROM records_fts WHERE record_id = ?`, id)
}

// Search performs an FTS5 full-text search and returns matching records
// with snippets.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT record_id,
		       title,
		       snippet(records_fts, 2, '<b>', '</b>', '...', 64)
		FROM records_fts
		WHERE records_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
