package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Session is the seat a client held in its last room.
type Session struct {
	RoomID   string    `json:"roomId"`
	PlayerID string    `json:"playerId"`
	Token    string    `json:"token,omitempty"`
	SavedAt  time.Time `json:"savedAt"`
}

// SessionStore persists a Session as a JSON file so a restarted client can rejoin.
type SessionStore struct {
	path string
}

// NewSessionStore returns a store backed by path.
func NewSessionStore(path string) *SessionStore {
	return &SessionStore{path: path}
}

// Load returns the stored session. ok is false when nothing has been stored.
func (s *SessionStore) Load() (sess Session, ok bool, err error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, false, fmt.Errorf("session file %s: %w", s.path, err)
	}
	return sess, sess.RoomID != "" && sess.PlayerID != "", nil
}

// Save writes sess, replacing the previous file atomically.
func (s *SessionStore) Save(sess Session) error {
	if sess.SavedAt.IsZero() {
		sess.SavedAt = time.Now()
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Clear forgets the stored session.
func (s *SessionStore) Clear() error {
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
