package card

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/krizar/koboldbot/internal/logging"
	"github.com/krizar/koboldbot/internal/store/filestore"
)

const customPrefix = "custom"

// Cache is an optional read-through cache for the scanned index. The store
// works identically without one; LoadAll just re-scans storage every call.
type Cache interface {
	Get(ctx context.Context) (map[string]Card, bool)
	Set(ctx context.Context, index map[string]Card)
	Invalidate(ctx context.Context)
}

// Summary describes a successful import.
type Summary struct {
	// Key the card is selectable under (sanitized display name).
	Key string
	// StoredAs is the full storage key including the owner prefix.
	StoredAs string
}

// Store produces a unified card index from the builtin collection and the
// per-user custom collection, and imports uploaded cards into the latter.
type Store struct {
	files filestore.Store
	cache Cache
	log   logging.Logger
}

func NewStore(files filestore.Store, cache Cache, log logging.Logger) *Store {
	if log == nil {
		log = logging.NewNop()
	}
	return &Store{files: files, cache: cache, log: log}
}

// LoadAll scans both collections and returns the full index keyed by storage
// key, so same-named builtin and custom cards coexist as distinct entries.
// Entries that fail to parse or miss required fields are logged and skipped,
// never fatal. Per-user visibility and shadowing happen in ListForUser.
func (s *Store) LoadAll(ctx context.Context) (map[string]Card, error) {
	if s.cache != nil {
		if idx, ok := s.cache.Get(ctx); ok {
			return idx, nil
		}
	}

	index := make(map[string]Card)
	if err := s.scanInto(ctx, index, "", false); err != nil {
		return nil, err
	}
	if err := s.scanInto(ctx, index, customPrefix, true); err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, index)
	}
	return index, nil
}

// ListForUser returns the cards visible to one user, keyed by card key: all
// builtins plus that user's own custom cards. The user's custom card shadows
// a builtin of the same key in their view only; other users keep the builtin.
func (s *Store) ListForUser(ctx context.Context, ownerID string) (map[string]Card, error) {
	all, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	view := make(map[string]Card, len(all))
	for _, c := range all {
		if !c.Custom {
			view[c.Key] = c
		}
	}
	// own customs merge second so they win over same-keyed builtins
	for _, c := range all {
		if c.Custom && c.OwnerID == ownerID {
			view[c.Key] = c
		}
	}
	return view, nil
}

func (s *Store) scanInto(ctx context.Context, index map[string]Card, prefix string, custom bool) error {
	keys, err := s.files.List(prefix)
	if err != nil {
		return fmt.Errorf("card: scan %q: %w", prefix, err)
	}

	for _, k := range keys {
		base := path.Base(k)
		if !strings.HasSuffix(base, ".json") {
			continue
		}
		stem := strings.TrimSuffix(base, ".json")

		raw, err := s.files.Read(k)
		if err != nil {
			s.log.Warn(ctx, "card file unreadable, skipping", "file", k, "error", err)
			continue
		}
		data, err := Parse(raw)
		if err != nil {
			s.log.Warn(ctx, "invalid card file, skipping", "file", k, "error", err)
			continue
		}

		c := Card{Key: stem, Data: data}
		if custom {
			c.Key = DeriveKey(stem)
			c.OwnerID = ownerOf(stem)
			c.Custom = true
		}
		index[k] = c
	}
	return nil
}

// ImportFromUpload ingests an uploaded card file for ownerID. PNG files go
// through metadata extraction first; anything else is parsed as JSON
// directly. On success the card (and for images the original image bytes)
// are persisted under "<ownerID>_<sanitizedName>" and become immediately
// visible to LoadAll.
func (s *Store) ImportFromUpload(ctx context.Context, ownerID, filename string, raw []byte) (Summary, error) {
	isImage := strings.EqualFold(path.Ext(filename), ".png")

	doc := raw
	if isImage {
		var err error
		doc, err = ExtractCharaData(raw)
		if err != nil {
			return Summary{}, err
		}
	}

	data, err := Parse(doc)
	if err != nil {
		return Summary{}, err
	}

	safeName := SanitizeName(data.Name)
	if safeName == "" {
		return Summary{}, ErrInvalidName
	}

	stem := ownerID + "_" + safeName
	if err := s.files.Write(customPrefix+"/"+stem+".json", doc); err != nil {
		return Summary{}, fmt.Errorf("card: store %s: %w", stem, err)
	}
	if isImage {
		if err := s.files.Write(customPrefix+"/"+stem+".png", raw); err != nil {
			return Summary{}, fmt.Errorf("card: store image %s: %w", stem, err)
		}
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}

	s.log.Info(ctx, "card imported", "owner", ownerID, "key", safeName, "image", isImage)
	return Summary{Key: safeName, StoredAs: stem}, nil
}

// marshalIndex/unmarshalIndex define the wire form cache implementations use.

func MarshalIndex(index map[string]Card) ([]byte, error) {
	return json.Marshal(index)
}

func UnmarshalIndex(raw []byte) (map[string]Card, error) {
	var index map[string]Card
	if err := json.Unmarshal(raw, &index); err != nil {
		return nil, err
	}
	return index, nil
}
