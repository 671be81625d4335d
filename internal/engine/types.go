package engine

import (
	"context"

	"github.com/krizar/koboldbot/internal/prompt"
)

// Update is the inbound message envelope the engine consumes. The platform
// transport maps its own wire format onto this.
type Update struct {
	ChatID   int64
	UserID   string
	UserName string
	Text     string
	Document *Document
}

// Document is a file attachment reference; the bytes are fetched lazily
// through the FileFetcher capability.
type Document struct {
	FileID   string
	FileName string
}

// Keyboard is the reply-markup grid offered with an action. Remove asks the
// platform client to drop any visible keyboard instead.
type Keyboard struct {
	Rows   [][]string
	Remove bool
}

// Action is the outbound reply produced for one update.
type Action struct {
	ChatID    int64
	Text      string
	ParseMode string
	Keyboard  *Keyboard
}

// Generator is the generation-backend contract the engine consumes.
type Generator interface {
	Generate(ctx context.Context, req prompt.GenerationRequest) (string, error)
}

// FileFetcher downloads the bytes of an attachment by its platform file ID.
type FileFetcher interface {
	Fetch(ctx context.Context, fileID string) ([]byte, error)
}

// Archiver records completed chat turns. Failures are logged and swallowed;
// archiving never affects the user-visible flow.
type Archiver interface {
	RecordTurn(ctx context.Context, userID, charName, utterance, reply string) error
}
