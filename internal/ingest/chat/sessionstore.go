package chat

import (
	"context"

	"github.com/roelfdiedericks/pail/internal/store"
)

const sessionKey = "default"

// SessionStorage adapts gotd/td's session.Storage interface onto pail's
// main SQLite store, so the chat subsystem does not open a second SQLite
// file handle alongside the store's.
type SessionStorage struct {
	st *store.Store
}

// NewSessionStorage wraps st as a gotd session.Storage.
func NewSessionStorage(st *store.Store) *SessionStorage {
	return &SessionStorage{st: st}
}

// LoadSession implements session.Storage.
func (s *SessionStorage) LoadSession(ctx context.Context) ([]byte, error) {
	data, err := s.st.ChatSessionBlob(sessionKey)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	return data, nil
}

// StoreSession implements session.Storage.
func (s *SessionStorage) StoreSession(ctx context.Context, data []byte) error {
	return s.st.SetChatSessionBlob(sessionKey, data)
}

// HasSession reports whether a session has ever been persisted, i.e.
// whether `tg login` has been completed.
func (s *SessionStorage) HasSession(ctx context.Context) (bool, error) {
	data, err := s.LoadSession(ctx)
	if err != nil {
		return false, err
	}
	return len(data) > 0, nil
}
