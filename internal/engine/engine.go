// Package engine implements the conversation state machine: it interprets
// each inbound update against the user's session and the card index, and
// produces the outbound action. All recoverable errors are converted to
// user-facing text here; nothing internal leaks to the end user.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/krizar/koboldbot/internal/card"
	"github.com/krizar/koboldbot/internal/logging"
	"github.com/krizar/koboldbot/internal/prompt"
	"github.com/krizar/koboldbot/internal/session"
)

const (
	msgWelcome      = "Welcome! Choose a character to start chatting."
	msgChoose       = "Choose a character:"
	msgStopped      = "Session stopped. Use /start to begin again."
	msgUploadHint   = "Send me a character card JSON file or PNG (as FILE not PHOTO)."
	msgSelectFirst  = "Please select a character first!"
	msgGenApology   = "⚠️ Connection error. Please try again later."
	msgFetchFailure = "❌ File access error"
)

const menuRowSize = 3

type Engine struct {
	cards    *card.Store
	sessions *session.Store
	gen      Generator
	fetcher  FileFetcher
	archive  Archiver // optional
	log      logging.Logger
}

func New(cards *card.Store, sessions *session.Store, gen Generator, fetcher FileFetcher, archive Archiver, log logging.Logger) *Engine {
	if log == nil {
		log = logging.NewNop()
	}
	return &Engine{
		cards:    cards,
		sessions: sessions,
		gen:      gen,
		fetcher:  fetcher,
		archive:  archive,
		log:      log,
	}
}

// Handle runs one update through the state machine and returns the reply
// action. It never returns an error: every failure path maps to a
// user-facing message.
func (e *Engine) Handle(ctx context.Context, up Update) Action {
	if up.UserName == "" {
		up.UserName = "User"
	}

	switch classify(up.Text) {
	case cmdStart:
		return e.reply(ctx, up, msgWelcome)
	case cmdSwitch:
		return e.reply(ctx, up, msgChoose)
	case cmdStop:
		if err := e.sessions.Clear(ctx, up.UserID); err != nil {
			e.log.Error(ctx, "session clear failed", "user", up.UserID, "error", err)
		}
		return e.reply(ctx, up, msgStopped)
	case cmdUpload:
		return Action{ChatID: up.ChatID, Text: msgUploadHint, Keyboard: &Keyboard{Remove: true}}
	}

	if up.Document != nil {
		return e.handleUpload(ctx, up)
	}

	view, err := e.cards.ListForUser(ctx, up.UserID)
	if err != nil {
		e.log.Error(ctx, "card index load failed", "user", up.UserID, "error", err)
		view = map[string]card.Card{}
	}
	if c, ok := view[up.Text]; ok {
		return e.selectCharacter(ctx, up, c)
	}

	sess, err := e.sessions.Load(ctx, up.UserID)
	if err != nil {
		e.log.Error(ctx, "session load failed", "user", up.UserID, "error", err)
	}
	if sess == nil {
		return e.reply(ctx, up, msgSelectFirst)
	}
	return e.chatTurn(ctx, up, sess)
}

func (e *Engine) selectCharacter(ctx context.Context, up Update, c card.Card) Action {
	sess := session.New(c.Data)
	if err := e.sessions.Save(ctx, up.UserID, sess); err != nil {
		e.log.Error(ctx, "session save failed", "user", up.UserID, "error", err)
	}
	e.log.Info(ctx, "character selected", "user", up.UserID, "character", c.Key)

	opening := personalize(c.Data.FirstMessage, c.Data.Name, up.UserName)
	return e.reply(ctx, up, opening)
}

func (e *Engine) chatTurn(ctx context.Context, up Update, sess *session.Session) Action {
	req := prompt.Build(sess.ConversationHistory, up.UserName, up.Text, sess.CharName, sess.CharData)

	generated, err := e.gen.Generate(ctx, req)
	if err != nil {
		// history stays untouched: no partial turn is ever recorded
		e.log.Error(ctx, "generation failed", "user", up.UserID, "error", err)
		return Action{ChatID: up.ChatID, Text: msgGenApology}
	}

	reply := sanitizeReply(generated, sess.CharName, up.UserName)

	sess.AppendTurn(up.UserName, up.Text, reply)
	if err := e.sessions.Save(ctx, up.UserID, sess); err != nil {
		e.log.Error(ctx, "session save failed", "user", up.UserID, "error", err)
	}

	if e.archive != nil {
		if err := e.archive.RecordTurn(ctx, up.UserID, sess.CharName, up.Text, reply); err != nil {
			e.log.Warn(ctx, "turn archive failed", "user", up.UserID, "error", err)
		}
	}

	return Action{
		ChatID:    up.ChatID,
		Text:      escapeMarkdownV2(reply),
		ParseMode: "MarkdownV2",
		Keyboard:  e.menu(ctx, up.UserID),
	}
}

func (e *Engine) handleUpload(ctx context.Context, up Update) Action {
	raw, err := e.fetcher.Fetch(ctx, up.Document.FileID)
	if err != nil {
		e.log.Error(ctx, "attachment fetch failed", "user", up.UserID, "file", up.Document.FileName, "error", err)
		return e.reply(ctx, up, msgFetchFailure)
	}

	sum, err := e.cards.ImportFromUpload(ctx, up.UserID, up.Document.FileName, raw)
	if err != nil {
		return e.reply(ctx, up, "❌ "+importErrorText(err))
	}

	text := fmt.Sprintf("✅ Character card processed! New character '%s' added!", sum.Key)
	return e.reply(ctx, up, text)
}

// importErrorText maps import failures to the text shown to the uploader.
// Raw error details never reach the user.
func importErrorText(err error) string {
	switch {
	case errors.Is(err, card.ErrNoEmbeddedData):
		return "Invalid character card image"
	case errors.Is(err, card.ErrUnreadable):
		return "Could not read that card file"
	case errors.Is(err, card.ErrMalformedCard):
		return "Card is missing required fields"
	case errors.Is(err, card.ErrInvalidName):
		return "Card name is empty after removing special characters"
	default:
		return "Processing error"
	}
}

// reply wraps text with the character-selection menu.
func (e *Engine) reply(ctx context.Context, up Update, text string) Action {
	return Action{ChatID: up.ChatID, Text: text, Keyboard: e.menu(ctx, up.UserID)}
}

// menu builds the selection keyboard for one user: their card keys in sorted
// order followed by the reserved commands, chunked into rows of three.
func (e *Engine) menu(ctx context.Context, userID string) *Keyboard {
	view, err := e.cards.ListForUser(ctx, userID)
	if err != nil {
		e.log.Error(ctx, "menu build failed", "user", userID, "error", err)
		view = map[string]card.Card{}
	}

	keys := make([]string, 0, len(view)+3)
	for k := range view {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	keys = append(keys, labelStop, labelSwitch, labelUpload)

	var rows [][]string
	for len(keys) > 0 {
		n := menuRowSize
		if len(keys) < n {
			n = len(keys)
		}
		rows = append(rows, keys[:n])
		keys = keys[n:]
	}
	return &Keyboard{Rows: rows}
}
