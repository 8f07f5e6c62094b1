package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

func scanArticle(row interface {
	Scan(dest ...interface{}) error
}) (*GeneratedArticle, error) {
	var a GeneratedArticle
	var windowStart, windowEnd sql.NullString
	var generatedAt, topicsJSON, itemIDsJSON string
	err := row.Scan(&a.ID, &a.OutputChannelID, &a.Title, &topicsJSON, &a.BodyMarkdown, &a.HTMLBody,
		&itemIDsJSON, &a.GenerationLog, &a.ModelUsed, &windowStart, &windowEnd, &generatedAt)
	if err != nil {
		return nil, err
	}
	if windowStart.Valid {
		t, err := time.Parse(time.RFC3339, windowStart.String)
		if err == nil {
			a.WindowStart = &t
		}
	}
	if windowEnd.Valid {
		t, err := time.Parse(time.RFC3339, windowEnd.String)
		if err == nil {
			a.WindowEnd = &t
		}
	}
	_ = json.Unmarshal([]byte(topicsJSON), &a.Topics)
	_ = json.Unmarshal([]byte(itemIDsJSON), &a.ContentItemIDs)
	a.GeneratedAt, _ = time.Parse(time.RFC3339, generatedAt)
	return &a, nil
}

const articleColumns = `id, output_channel_id, title, topics_json, body_markdown, html_body, content_item_ids_json, generation_log, model_used, window_start, window_end, generated_at`

// InsertArticle persists a completed generation run's output: the
// canonical markdown body, its derived HTML cache, the topic list, the
// exact set of content_item ids the window covered, and the generator's
// accumulated stdout/stderr log.
func (s *Store) InsertArticle(a *GeneratedArticle) error {
	var windowStart, windowEnd interface{}
	if a.WindowStart != nil {
		windowStart = a.WindowStart.Format(time.RFC3339)
	}
	if a.WindowEnd != nil {
		windowEnd = a.WindowEnd.Format(time.RFC3339)
	}
	topics := a.Topics
	if topics == nil {
		topics = []string{}
	}
	itemIDs := a.ContentItemIDs
	if itemIDs == nil {
		itemIDs = []int64{}
	}
	topicsJSON, err := json.Marshal(topics)
	if err != nil {
		return err
	}
	itemIDsJSON, err := json.Marshal(itemIDs)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`INSERT INTO generated_articles
		(id, output_channel_id, title, topics_json, body_markdown, html_body, content_item_ids_json, generation_log, model_used, window_start, window_end, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.OutputChannelID, a.Title, string(topicsJSON), a.BodyMarkdown, a.HTMLBody,
		string(itemIDsJSON), a.GenerationLog, a.ModelUsed, windowStart, windowEnd,
		a.GeneratedAt.Format(time.RFC3339))
	return err
}

// GetArticle looks up a single generated article by its UUID, for the
// unauthenticated permalink route.
func (s *Store) GetArticle(id string) (*GeneratedArticle, error) {
	row := s.db.QueryRow(`SELECT `+articleColumns+` FROM generated_articles WHERE id = ?`, id)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// RecentArticles returns the most recent articles for a channel, newest
// first, capped at limit (the feed server caps this at 50 entries).
func (s *Store) RecentArticles(channelID int64, limit int) ([]*GeneratedArticle, error) {
	rows, err := s.db.Query(`SELECT `+articleColumns+` FROM generated_articles
		WHERE output_channel_id = ? ORDER BY generated_at DESC LIMIT ?`, channelID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*GeneratedArticle
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
