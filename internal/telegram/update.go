package telegram

import (
	"strconv"

	"github.com/krizar/koboldbot/internal/engine"
)

// WebhookUpdate is the wire shape of an incoming Bot API update, reduced to
// the fields the relay consumes.
type WebhookUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From struct {
			ID        int64  `json:"id"`
			FirstName string `json:"first_name"`
		} `json:"from"`
		Text     string `json:"text"`
		Document *struct {
			FileID   string `json:"file_id"`
			FileName string `json:"file_name"`
		} `json:"document"`
	} `json:"message"`
}

// ToEngineUpdate maps a wire update onto the engine envelope. The second
// return is false for updates without a message, which the relay ignores.
func ToEngineUpdate(u WebhookUpdate) (engine.Update, bool) {
	if u.Message == nil {
		return engine.Update{}, false
	}

	up := engine.Update{
		ChatID:   u.Message.Chat.ID,
		UserID:   strconv.FormatInt(u.Message.From.ID, 10),
		UserName: u.Message.From.FirstName,
		Text:     u.Message.Text,
	}
	if u.Message.Document != nil {
		up.Document = &engine.Document{
			FileID:   u.Message.Document.FileID,
			FileName: u.Message.Document.FileName,
		}
	}
	return up, true
}
