package telegram

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"

	"github.com/gotd/td/session"
	"github.com/pkg/errors"
)

// ErrSessionEmpty means there is no usable authorization in the session.
var ErrSessionEmpty = errors.New("telegram session is empty")

// StringStorage keeps a gotd session in memory so it can be exported as a
// single string and passed around as an environment variable.
type StringStorage struct {
	mu   sync.Mutex
	data []byte
}

// NewStringStorage decodes s, which is either a string produced by Encode or a
// Telethon StringSession. An empty s gives an empty storage.
func NewStringStorage(s string) (*StringStorage, error) {
	st := &StringStorage{}
	s = strings.TrimSpace(s)
	if s == "" {
		return st, nil
	}

	if raw, err := base64.RawURLEncoding.DecodeString(s); err == nil && json.Valid(raw) {
		st.data = raw
		return st, nil
	}

	data, err := session.TelethonSession(s)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode session string")
	}
	loader := session.Loader{Storage: st}
	if err := loader.Save(context.Background(), data); err != nil {
		return nil, errors.Wrap(err, "failed to import telethon session")
	}
	return st, nil
}

func (s *StringStorage) LoadSession(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.data) == 0 {
		return nil, session.ErrNotFound
	}
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out, nil
}

func (s *StringStorage) StoreSession(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = append(s.data[:0], data...)
	return nil
}

// Empty reports whether nothing has been stored yet.
func (s *StringStorage) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data) == 0
}

// Encode returns the session string.
func (s *StringStorage) Encode() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.data) == 0 {
		return "", ErrSessionEmpty
	}
	return base64.RawURLEncoding.EncodeToString(s.data), nil
}
