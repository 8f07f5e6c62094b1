package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("store: not found")

func scanSource(row interface {
	Scan(dest ...interface{}) error
}) (*Source, error) {
	var s Source
	var excludeJSON string
	var pollSeconds int
	var lastFetched sql.NullString
	var createdAt string
	err := row.Scan(&s.ID, &s.Name, &s.Kind, &s.DisplayName, &s.Enabled, &s.Description,
		&s.URL, &pollSeconds, &s.MaxItems, &s.AuthHeader, &s.AuthValue,
		&s.ChatPeerID, &s.ChatUsername, &s.FolderName, &excludeJSON,
		&s.ETag, &s.LastModified, &lastFetched, &createdAt)
	if err != nil {
		return nil, err
	}
	s.PollInterval = time.Duration(pollSeconds) * time.Second
	_ = json.Unmarshal([]byte(excludeJSON), &s.Exclude)
	if lastFetched.Valid {
		t, err := time.Parse(time.RFC3339, lastFetched.String)
		if err == nil {
			s.LastFetchedAt = &t
		}
	}
	s.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", createdAt)
	return &s, nil
}

const sourceColumns = `id, name, kind, display_name, enabled, description,
	url, poll_interval_seconds, max_items, auth_header, auth_value,
	chat_peer_id, chat_username, folder_name, exclude_json,
	etag, last_modified, last_fetched_at, created_at`

// ListSources returns every configured source, enabled or not.
func (s *Store) ListSources() ([]*Source, error) {
	rows, err := s.db.Query(`SELECT ` + sourceColumns + ` FROM sources ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// GetSourceByName looks up a source by its config-declared name.
func (s *Store) GetSourceByName(name string) (*Source, error) {
	row := s.db.QueryRow(`SELECT `+sourceColumns+` FROM sources WHERE name = ?`, name)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return src, err
}

// UpsertSource inserts a new source or updates the mutable fields of an
// existing one (matched by name). Polling cursors (etag, last_fetched_at)
// are left untouched on update.
func (s *Store) UpsertSource(src *Source) (int64, error) {
	excludeJSON, err := json.Marshal(src.Exclude)
	if err != nil {
		return 0, err
	}

	existing, err := s.GetSourceByName(src.Name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	if existing != nil {
		_, err := s.db.Exec(`UPDATE sources SET
			kind = ?, display_name = ?, enabled = ?, description = ?,
			url = ?, poll_interval_seconds = ?, max_items = ?,
			auth_header = ?, auth_value = ?, chat_peer_id = ?,
			chat_username = ?, folder_name = ?, exclude_json = ?
			WHERE name = ?`,
			src.Kind, src.DisplayName, src.Enabled, src.Description,
			src.URL, int(src.PollInterval.Seconds()), src.MaxItems,
			src.AuthHeader, src.AuthValue, src.ChatPeerID,
			src.ChatUsername, src.FolderName, string(excludeJSON),
			src.Name)
		return existing.ID, err
	}

	res, err := s.db.Exec(`INSERT INTO sources
		(name, kind, display_name, enabled, description, url,
		 poll_interval_seconds, max_items, auth_header, auth_value,
		 chat_peer_id, chat_username, folder_name, exclude_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.Name, src.Kind, src.DisplayName, src.Enabled, src.Description, src.URL,
		int(src.PollInterval.Seconds()), src.MaxItems, src.AuthHeader, src.AuthValue,
		src.ChatPeerID, src.ChatUsername, src.FolderName, string(excludeJSON))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// DeleteSource removes a source (and, via cascade, its content items and
// output_channel_sources references).
func (s *Store) DeleteSource(name string) error {
	_, err := s.db.Exec(`DELETE FROM sources WHERE name = ?`, name)
	return err
}

// UpdateSourceFetchCursor records the conditional-GET cache state and
// fetch timestamp after a successful poll.
func (s *Store) UpdateSourceFetchCursor(id int64, etag, lastModified string, fetchedAt time.Time) error {
	_, err := s.db.Exec(`UPDATE sources SET etag = ?, last_modified = ?, last_fetched_at = ? WHERE id = ?`,
		etag, lastModified, fetchedAt.Format(time.RFC3339), id)
	return err
}
