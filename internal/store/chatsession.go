package store

import (
	"database/sql"
	"errors"
	"time"
)

// ChatSessionBlob gets the raw gotd session bytes stored under key
// (gotd's session.Storage interface only ever needs a single key, but the
// table supports more for forward compatibility with multi-account setups).
func (s *Store) ChatSessionBlob(key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM chat_session WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return data, err
}

// SetChatSessionBlob upserts the raw gotd session bytes for key.
func (s *Store) SetChatSessionBlob(key string, data []byte) error {
	_, err := s.db.Exec(`INSERT INTO chat_session (key, data) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data`, key, data)
	return err
}

// ListFolderChannels returns the channels currently known to belong to
// folderName, as last observed by the chat listener's dialog sync.
func (s *Store) ListFolderChannels(folderName string) ([]*FolderChannel, error) {
	rows, err := s.db.Query(`SELECT folder_name, channel_peer_id, channel_username, updated_at
		FROM tg_folder_channels WHERE folder_name = ?`, folderName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*FolderChannel
	for rows.Next() {
		var fc FolderChannel
		var updatedAt string
		if err := rows.Scan(&fc.FolderName, &fc.ChannelPeerID, &fc.ChannelUsername, &updatedAt); err != nil {
			return nil, err
		}
		fc.UpdatedAt, _ = time.Parse("2006-01-02 15:04:05", updatedAt)
		out = append(out, &fc)
	}
	return out, rows.Err()
}

// SetFolderMembership replaces the known channel membership of folderName
// wholesale, reflecting a live update from the chat subsystem.
func (s *Store) SetFolderMembership(folderName string, channels []*FolderChannel) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM tg_folder_channels WHERE folder_name = ?`, folderName); err != nil {
		return err
	}
	for _, ch := range channels {
		if _, err := tx.Exec(`INSERT INTO tg_folder_channels (folder_name, channel_peer_id, channel_username)
			VALUES (?, ?, ?)`, folderName, ch.ChannelPeerID, ch.ChannelUsername); err != nil {
			return err
		}
	}
	return tx.Commit()
}
