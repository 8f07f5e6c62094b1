package store

import (
	"database/sql"
	"errors"
	"time"
)

func scanItem(row interface {
	Scan(dest ...interface{}) error
}) (*ContentItem, error) {
	var it ContentItem
	var originalDate sql.NullString
	var ingestedAt string
	err := row.Scan(&it.ID, &it.SourceID, &it.DedupKey, &it.UpstreamID, &it.Title,
		&it.URL, &it.Author, &it.Body, &originalDate, &ingestedAt, &it.UpstreamChanged)
	if err != nil {
		return nil, err
	}
	if originalDate.Valid {
		t, err := time.Parse(time.RFC3339, originalDate.String)
		if err == nil {
			it.OriginalDate = &t
		}
	}
	it.IngestedAt, _ = time.Parse(time.RFC3339, ingestedAt)
	return &it, nil
}

const itemColumns = `id, source_id, dedup_key, upstream_id, title, url, author, body, original_date, ingested_at, upstream_changed`

// GetItemByDedupKey looks up an existing item for the (source_id,
// dedup_key) pair that enforces content-level uniqueness per source.
func (s *Store) GetItemByDedupKey(sourceID int64, dedupKey string) (*ContentItem, error) {
	row := s.db.QueryRow(`SELECT `+itemColumns+` FROM content_items WHERE source_id = ? AND dedup_key = ?`, sourceID, dedupKey)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return it, err
}

// InsertItem inserts a newly-ingested item. Callers must have already
// checked GetItemByDedupKey to decide between insert and the
// upstream-changed update path.
func (s *Store) InsertItem(it *ContentItem) (int64, error) {
	var originalDate interface{}
	if it.OriginalDate != nil {
		originalDate = it.OriginalDate.Format(time.RFC3339)
	}
	res, err := s.db.Exec(`INSERT INTO content_items
		(source_id, dedup_key, upstream_id, title, url, author, body, original_date, ingested_at, upstream_changed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		it.SourceID, it.DedupKey, it.UpstreamID, it.Title, it.URL, it.Author, it.Body,
		originalDate, it.IngestedAt.Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// MarkUpstreamChanged flips the one-way upstream_changed latch on an
// existing item, updating its body/title in place without touching
// ingested_at or original_date (those are fixed at first ingest).
func (s *Store) MarkUpstreamChanged(id int64, title, body string) error {
	_, err := s.db.Exec(`UPDATE content_items SET title = ?, body = ?, upstream_changed = 1 WHERE id = ?`, title, body, id)
	return err
}

// ItemsInWindow returns content items for the given source IDs whose
// original_date (falling back to ingested_at when absent) lies in
// [from, to), ordered oldest-first.
func (s *Store) ItemsInWindow(sourceIDs []int64, from, to time.Time) ([]*ContentItem, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + itemColumns + ` FROM content_items
		WHERE source_id IN (` + placeholders(len(sourceIDs)) + `)
		AND COALESCE(original_date, ingested_at) >= ? AND COALESCE(original_date, ingested_at) < ?
		ORDER BY COALESCE(original_date, ingested_at) ASC`

	args := make([]interface{}, 0, len(sourceIDs)+2)
	for _, id := range sourceIDs {
		args = append(args, id)
	}
	args = append(args, from.Format(time.RFC3339), to.Format(time.RFC3339))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ContentItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes content items ingested before cutoff, returning
// the number of rows removed (used by the retention sweeper).
func (s *Store) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM content_items WHERE ingested_at < ?`, cutoff.Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func placeholders(n int) string {
	b := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}
