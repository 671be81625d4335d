// Package session persists per-user conversation state: the active character
// snapshot plus the running transcript.
package session

import (
	"fmt"

	"github.com/krizar/koboldbot/internal/card"
)

// Session is the stored conversation state of one user. CharData is a
// snapshot of the card taken at selection time, immune to later edits of the
// underlying card file.
type Session struct {
	CharName            string    `json:"char_name"`
	CharData            card.Data `json:"char_data"`
	ConversationHistory string    `json:"conversation_history"`
}

// New seeds a session for the given card: persona framing followed by the
// character's opening line.
func New(data card.Data) *Session {
	history := fmt.Sprintf("%s's Persona: %s\n", data.Name, data.Personality)
	history += fmt.Sprintf("World Scenario: %s\n\n", data.Scenario)
	history += fmt.Sprintf("%s: %s\n", data.Name, data.FirstMessage)

	return &Session{
		CharName:            data.Name,
		CharData:            data,
		ConversationHistory: history,
	}
}

// AppendTurn records one completed exchange in the transcript.
func (s *Session) AppendTurn(speaker, utterance, reply string) {
	s.ConversationHistory += fmt.Sprintf("%s: %s\n%s: %s\n", speaker, utterance, s.CharName, reply)
}
