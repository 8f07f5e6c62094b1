package store

import (
	"database/sql"
	"errors"
	"time"
)

func scanChannel(row interface {
	Scan(dest ...interface{}) error
}) (*OutputChannel, error) {
	var c OutputChannel
	var lastGenerated sql.NullString
	var createdAt string
	err := row.Scan(&c.ID, &c.Name, &c.URLSlug, &c.Enabled, &c.Schedule,
		&c.Prompt, &c.Model, &c.Language, &lastGenerated, &createdAt)
	if err != nil {
		return nil, err
	}
	if lastGenerated.Valid {
		t, err := time.Parse(time.RFC3339, lastGenerated.String)
		if err == nil {
			c.LastGenerated = &t
		}
	}
	c.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", createdAt)
	return &c, nil
}

const channelColumns = `id, name, url_slug, enabled, schedule, prompt, model, language, last_generated, created_at`

// ListChannels returns every output channel, with its source IDs populated.
func (s *Store) ListChannels() ([]*OutputChannel, error) {
	rows, err := s.db.Query(`SELECT ` + channelColumns + ` FROM output_channels ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*OutputChannel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, ch := range out {
		ids, err := s.channelSourceIDs(ch.ID)
		if err != nil {
			return nil, err
		}
		ch.SourceIDs = ids
	}
	return out, nil
}

// GetChannelBySlug looks up a channel by its public URL slug.
func (s *Store) GetChannelBySlug(slug string) (*OutputChannel, error) {
	row := s.db.QueryRow(`SELECT `+channelColumns+` FROM output_channels WHERE url_slug = ?`, slug)
	ch, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ids, err := s.channelSourceIDs(ch.ID)
	if err != nil {
		return nil, err
	}
	ch.SourceIDs = ids
	return ch, nil
}

func (s *Store) channelSourceIDs(channelID int64) ([]int64, error) {
	rows, err := s.db.Query(`SELECT source_id FROM output_channel_sources WHERE output_channel_id = ?`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertChannel inserts a new channel or updates an existing one (matched
// by url_slug), and replaces its source membership wholesale.
func (s *Store) UpsertChannel(ch *OutputChannel, sourceIDs []int64) (int64, error) {
	existing, err := s.GetChannelBySlug(ch.URLSlug)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	var id int64
	if existing != nil {
		id = existing.ID
		if _, err := s.db.Exec(`UPDATE output_channels SET
			name = ?, enabled = ?, schedule = ?, prompt = ?, model = ?, language = ?
			WHERE id = ?`,
			ch.Name, ch.Enabled, ch.Schedule, ch.Prompt, ch.Model, ch.Language, id); err != nil {
			return 0, err
		}
	} else {
		res, err := s.db.Exec(`INSERT INTO output_channels
			(name, url_slug, enabled, schedule, prompt, model, language)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ch.Name, ch.URLSlug, ch.Enabled, ch.Schedule, ch.Prompt, ch.Model, ch.Language)
		if err != nil {
			return 0, err
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, err
		}
	}

	if _, err := s.db.Exec(`DELETE FROM output_channel_sources WHERE output_channel_id = ?`, id); err != nil {
		return 0, err
	}
	for _, sid := range sourceIDs {
		if _, err := s.db.Exec(`INSERT INTO output_channel_sources (output_channel_id, source_id) VALUES (?, ?)`, id, sid); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// DeleteChannel removes a channel no longer present in config.
func (s *Store) DeleteChannel(slug string) error {
	_, err := s.db.Exec(`DELETE FROM output_channels WHERE url_slug = ?`, slug)
	return err
}

// MarkGenerated advances last_generated for a channel. Callers must only
// invoke this after a successful *scheduled* run; manual/override runs
// must not advance the cursor.
func (s *Store) MarkGenerated(channelID int64, at time.Time) error {
	_, err := s.db.Exec(`UPDATE output_channels SET last_generated = ? WHERE id = ?`, at.Format(time.RFC3339), channelID)
	return err
}
