package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/krizar/koboldbot/internal/logging"
	"github.com/krizar/koboldbot/internal/store/filestore"
)

// Store maps a user ID to at most one Session. Reads treat missing or
// corrupt entries as absent; writes are last-writer-wins at file granularity.
type Store struct {
	files filestore.Store
	log   logging.Logger
}

func NewStore(files filestore.Store, log logging.Logger) *Store {
	if log == nil {
		log = logging.NewNop()
	}
	return &Store{files: files, log: log}
}

func key(userID string) string { return userID + ".json" }

// Load returns the user's session, or nil when none exists. A stored entry
// that fails to parse is logged and treated as absent, never fatal.
func (s *Store) Load(ctx context.Context, userID string) (*Session, error) {
	raw, err := s.files.Read(key(userID))
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			return nil, nil
		}
		s.log.Warn(ctx, "session read failed, treating as absent", "user", userID, "error", err)
		return nil, nil
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		s.log.Warn(ctx, "corrupt session, treating as absent", "user", userID, "error", err)
		return nil, nil
	}
	return &sess, nil
}

// Save overwrites the user's session. The underlying store publishes the new
// value atomically, so concurrent readers never see a partial write.
func (s *Store) Save(ctx context.Context, userID string, sess *Session) error {
	if sess == nil {
		return s.Clear(ctx, userID)
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: marshal for %s: %w", userID, err)
	}
	return s.files.Write(key(userID), raw)
}

// Clear removes the user's session entirely.
func (s *Store) Clear(ctx context.Context, userID string) error {
	_ = ctx
	return s.files.Delete(key(userID))
}
