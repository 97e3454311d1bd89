package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/JohnTocci/KnowledgeHub/internal/apperr"
	"github.com/JohnTocci/KnowledgeHub/internal/models"
)

// Insert adds one record inside a transaction and returns the generated id.
// The row becomes visible in full or not at all. A duplicate file_path maps
// to apperr.ErrAlreadyExists.
func (db *DB) Insert(rec *models.Record) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	tagsJSON, _ := json.Marshal(nonNil(rec.Tags))
	pointsJSON, _ := json.Marshal(nonNil(rec.KeyPoints))

	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	res, err := tx.Exec(`
		INSERT INTO records (url, title, tags, summary, key_points, file_path, source_kind, word_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.URL, rec.Title, string(tagsJSON), rec.Summary, string(pointsJSON),
		rec.FilePath, string(rec.SourceKind), rec.WordCount, created)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return 0, fmt.Errorf("store: insert %s: %w", rec.FilePath, apperr.ErrAlreadyExists)
		}
		return 0, fmt.Errorf("store: insert record: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: last insert id: %w", err)
	}

	if err := ftsUpsert(tx, id, rec.Title, rec.Summary, rec.Tags); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit: %w", err)
	}
	rec.ID = id
	rec.CreatedAt = created
	return id, nil
}

const recordColumns = `id, url, title, tags, summary, key_points, file_path, source_kind, word_count, created_at`

// Get returns one record by id, or apperr.ErrNotFound.
func (db *DB) Get(id int64) (*models.Record, error) {
	row := db.conn.QueryRow(`SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	return scanRecord(row)
}

// GetByPath returns one record by vault file path, or apperr.ErrNotFound.
func (db *DB) GetByPath(filePath string) (*models.Record, error) {
	row := db.conn.QueryRow(`SELECT `+recordColumns+` FROM records WHERE file_path = ?`, filePath)
	return scanRecord(row)
}

// List returns records matching q ordered by recency, plus the total count
// for that filter (ignoring limit/offset).
func (db *DB) List(q Query) ([]models.Record, int, error) {
	var conds []string
	var args []interface{}

	if q.Text != "" {
		like := "%" + strings.ToLower(q.Text) + "%"
		conds = append(conds, `(LOWER(title) LIKE ? OR LOWER(summary) LIKE ? OR LOWER(tags) LIKE ?)`)
		args = append(args, like, like, like)
	}
	if q.Tag != "" {
		conds = append(conds, `EXISTS (SELECT 1 FROM json_each(records.tags) WHERE json_each.value = ?)`)
		args = append(args, strings.ToLower(q.Tag))
	}
	if q.Kind != "" {
		conds = append(conds, `source_kind = ?`)
		args = append(args, string(q.Kind))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM records`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count: %w", err)
	}

	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := db.conn.Query(
		`SELECT `+recordColumns+` FROM records`+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		rec, err := scanRecordRows(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *rec)
	}
	return out, total, rows.Err()
}

// Related returns records sharing at least one tag with the record id,
// most overlapping first. Ties break toward newer records. A record with
// no tags has no neighbours.
func (db *DB) Related(id int64, limit int) ([]RelatedResult, error) {
	src, err := db.Get(id)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 50 {
		limit = 5
	}
	if len(src.Tags) == 0 {
		return []RelatedResult{}, nil
	}
	tagsJSON, _ := json.Marshal(src.Tags)

	rows, err := db.conn.Query(`
		SELECT r.id, r.title, r.file_path, COUNT(*) AS shared
		FROM records r, json_each(r.tags) jt
		WHERE r.id != ?
		  AND jt.value IN (SELECT value FROM json_each(?))
		GROUP BY r.id
		ORDER BY shared DESC, r.created_at DESC, r.id DESC
		LIMIT ?
	`, id, string(tagsJSON), limit)
	if err != nil {
		return nil, fmt.Errorf("store: related: %w", err)
	}
	defer rows.Close()

	out := []RelatedResult{}
	for rows.Next() {
		var rr RelatedResult
		if err := rows.Scan(&rr.ID, &rr.Title, &rr.FilePath, &rr.SharedTags); err != nil {
			return nil, err
		}
		out = append(out, rr)
	}
	return out, rows.Err()
}

// Delete removes a record row. Vault file removal is a separate, explicit
// caller action, never implicit.
func (db *DB) Delete(id int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, id)
	res, err := tx.Exec(`DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.ErrNotFound
	}
	return tx.Commit()
}

// DeleteByPath removes the record whose file_path matches. Missing rows are
// not an error: reconciliation calls this for paths that may never have
// been recorded.
func (db *DB) DeleteByPath(filePath string) error {
	var id int64
	err := db.conn.QueryRow(`SELECT id FROM records WHERE file_path = ?`, filePath).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: lookup %s: %w", filePath, err)
	}
	return db.Delete(id)
}

// AllPaths returns every recorded vault file path.
func (db *DB) AllPaths() (map[string]struct{}, error) {
	rows, err := db.conn.Query(`SELECT file_path FROM records`)
	if err != nil {
		return nil, fmt.Errorf("store: all paths: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out[p] = struct{}{}
	}
	return out, rows.Err()
}

// AllTags returns every tag with its usage count, most used first.
func (db *DB) AllTags() ([]TagCount, error) {
	rows, err := db.conn.Query(`
		SELECT json_each.value, COUNT(*) AS n
		FROM records, json_each(records.tags)
		GROUP BY json_each.value
		ORDER BY n DESC, json_each.value
	`)
	if err != nil {
		return nil, fmt.Errorf("store: all tags: %w", err)
	}
	defer rows.Close()

	var out []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Name, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// ContentStats returns counters for the dashboard analytics view.
func (db *DB) ContentStats() (*Stats, error) {
	s := &Stats{ByKind: make(map[string]int)}

	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&s.Total); err != nil {
		return nil, fmt.Errorf("store: stats total: %w", err)
	}

	rows, err := db.conn.Query(`SELECT source_kind, COUNT(*) FROM records GROUP BY source_kind`)
	if err != nil {
		return nil, fmt.Errorf("store: stats by kind: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		s.ByKind[kind] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tags, err := db.AllTags()
	if err != nil {
		return nil, err
	}
	if len(tags) > 20 {
		tags = tags[:20]
	}
	s.TopTags = tags
	return s, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row *sql.Row) (*models.Record, error) {
	rec, err := scanRecordRows(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	return rec, err
}

func scanRecordRows(row rowScanner) (*models.Record, error) {
	var rec models.Record
	var tagsJSON, pointsJSON, kind string
	err := row.Scan(&rec.ID, &rec.URL, &rec.Title, &tagsJSON, &rec.Summary,
		&pointsJSON, &rec.FilePath, &kind, &rec.WordCount, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan record: %w", err)
	}
	_ = json.Unmarshal([]byte(tagsJSON), &rec.Tags)
	_ = json.Unmarshal([]byte(pointsJSON), &rec.KeyPoints)
	rec.Tags = nonNil(rec.Tags)
	rec.KeyPoints = nonNil(rec.KeyPoints)
	rec.SourceKind = models.SourceKind(kind)
	return &rec, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
