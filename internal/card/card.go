// Package card loads, indexes and imports character cards. A card is a JSON
// document with a top-level "data" object; custom cards may also arrive as
// PNG images with the JSON embedded in a tEXt metadata chunk.
package card

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// Import failure modes. All of them are recoverable: the engine maps them to
// user-facing text and no state changes.
var (
	ErrInvalidName    = errors.New("card: name empty after sanitizing")
	ErrUnreadable     = errors.New("card: unreadable container")
	ErrNoEmbeddedData = errors.New("card: no embedded character data")
	ErrMalformedCard  = errors.New("card: missing required fields")
)

// Data holds the persona fields of a card. All four are required; a record
// missing any of them is invalid and excluded from the index.
type Data struct {
	Name         string `json:"name"`
	Personality  string `json:"personality"`
	Scenario     string `json:"scenario"`
	FirstMessage string `json:"first_mes"`
}

// Card is an indexed character definition.
type Card struct {
	// Key is the derived identifier: filename stem for builtins, stem with
	// the "<ownerID>_" prefix stripped for custom cards.
	Key string `json:"key"`
	// OwnerID is set for custom cards only.
	OwnerID string `json:"owner_id,omitempty"`
	Custom  bool   `json:"custom"`
	Data    Data   `json:"data"`
}

type cardFile struct {
	Data Data `json:"data"`
}

// Parse decodes a raw card document and validates the required fields.
// Arbitrary extra fields are ignored.
func Parse(raw []byte) (Data, error) {
	var f cardFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return Data{}, ErrUnreadable
	}
	d := f.Data
	if d.Name == "" || d.Personality == "" || d.Scenario == "" || d.FirstMessage == "" {
		return Data{}, ErrMalformedCard
	}
	return d, nil
}

var nameFilter = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeName keeps only alphanumerics, underscore and hyphen from a card's
// declared name. The result is used as the storage key suffix.
func SanitizeName(name string) string {
	return nameFilter.ReplaceAllString(name, "")
}

// DeriveKey turns a stored filename stem into the card key. Custom entries
// carry an "<ownerID>_" prefix that is stripped so display names stay stable
// across re-uploads.
func DeriveKey(stem string) string {
	if i := strings.Index(stem, "_"); i >= 0 {
		return stem[i+1:]
	}
	return stem
}

// ownerOf extracts the "<ownerID>" prefix of a custom filename stem, or ""
// when there is none.
func ownerOf(stem string) string {
	if i := strings.Index(stem, "_"); i >= 0 {
		return stem[:i]
	}
	return ""
}
