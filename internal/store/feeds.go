package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/JohnTocci/KnowledgeHub/internal/apperr"
	"github.com/JohnTocci/KnowledgeHub/internal/models"
)

// AddFeed subscribes a new feed URL. A duplicate URL maps to
// apperr.ErrAlreadyExists.
func (db *DB) AddFeed(url string) (*models.Feed, error) {
	added := time.Now()
	res, err := db.conn.Exec(`INSERT INTO feeds (url, added_at) VALUES (?, ?)`, url, added)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return nil, fmt.Errorf("store: add feed %s: %w", url, apperr.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("store: add feed: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: feed insert id: %w", err)
	}
	return &models.Feed{ID: id, URL: url, AddedAt: added}, nil
}

// ListFeeds returns every subscribed feed, oldest subscription first.
func (db *DB) ListFeeds() ([]models.Feed, error) {
	rows, err := db.conn.Query(`SELECT id, url, title, added_at, last_fetched FROM feeds ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list feeds: %w", err)
	}
	defer rows.Close()

	var out []models.Feed
	for rows.Next() {
		var f models.Feed
		var fetched sql.NullTime
		if err := rows.Scan(&f.ID, &f.URL, &f.Title, &f.AddedAt, &fetched); err != nil {
			return nil, err
		}
		if fetched.Valid {
			t := fetched.Time
			f.LastFetched = &t
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// RemoveFeed unsubscribes a feed and drops its seen-item history.
func (db *DB) RemoveFeed(id int64) error {
	res, err := db.conn.Exec(`DELETE FROM feeds WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: remove feed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// TouchFeed stamps a feed's last fetch time and, when non-empty, records the
// title the feed advertised.
func (db *DB) TouchFeed(id int64, title string) error {
	var err error
	if title != "" {
		_, err = db.conn.Exec(`UPDATE feeds SET last_fetched = ?, title = ? WHERE id = ?`, time.Now(), title, id)
	} else {
		_, err = db.conn.Exec(`UPDATE feeds SET last_fetched = ? WHERE id = ?`, time.Now(), id)
	}
	if err != nil {
		return fmt.Errorf("store: touch feed: %w", err)
	}
	return nil
}

// SeenItem reports whether a feed item URL has already been captured.
func (db *DB) SeenItem(feedID int64, itemURL string) (bool, error) {
	var one int
	err := db.conn.QueryRow(`SELECT 1 FROM feed_items WHERE feed_id = ? AND url = ?`, feedID, itemURL).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: seen item: %w", err)
	}
	return true, nil
}

// MarkItemSeen records a feed item URL as captured so later refreshes skip
// it. Marking the same URL twice is a no-op.
func (db *DB) MarkItemSeen(feedID int64, itemURL string) error {
	_, err := db.conn.Exec(`INSERT OR IGNORE INTO feed_items (feed_id, url) VALUES (?, ?)`, feedID, itemURL)
	if err != nil {
		return fmt.Errorf("store: mark item seen: %w", err)
	}
	return nil
}
