// Package prompt turns a conversation state into a KoboldAI generation
// request. Build is a pure function: identical inputs always produce an
// identical request.
package prompt

import (
	"fmt"

	"github.com/krizar/koboldbot/internal/card"
)

// Fixed sampling parameters. The values are tuned for short in-character
// chat replies and are part of the relay's contract with the backend.
const (
	maxContextLength = 2048
	maxLength        = 120
	repPen           = 1.1
	repPenRange      = 1024
	temperature      = 0.69
	topP             = 0.9
)

// GenerationRequest is the body POSTed to /api/v1/generate. It is assembled
// fresh per turn and never persisted.
type GenerationRequest struct {
	Prompt           string  `json:"prompt"`
	Memory           string  `json:"memory"`
	UseStory         bool    `json:"use_story"`
	UseMemory        bool    `json:"use_memory"`
	UseAuthorsNote   bool    `json:"use_authors_note"`
	UseWorldInfo     bool    `json:"use_world_info"`
	MaxContextLength int     `json:"max_context_length"`
	MaxLength        int     `json:"max_length"`
	RepPen           float64 `json:"rep_pen"`
	RepPenRange      int     `json:"rep_pen_range"`
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"top_p"`
	SingleLine       bool    `json:"singleline"`
}

// Build constructs the request for one chat turn: the running transcript plus
// the new turn marker, with the persona preamble in the memory field.
func Build(history, speaker, utterance, charName string, data card.Data) GenerationRequest {
	memory := fmt.Sprintf("You are %s, a character with the following traits:\n", data.Name) +
		fmt.Sprintf("Personality: %s\nScenario: %s\n", data.Personality, data.Scenario) +
		fmt.Sprintf("Always stay in character and respond as %s.\n", data.Name) +
		"Do not break character or act as the user.\n" +
		fmt.Sprintf("First Message: %s", data.FirstMessage)

	return GenerationRequest{
		Prompt:           fmt.Sprintf("%s\n%s: %s\n%s:", history, speaker, utterance, charName),
		Memory:           memory,
		MaxContextLength: maxContextLength,
		MaxLength:        maxLength,
		RepPen:           repPen,
		RepPenRange:      repPenRange,
		Temperature:      temperature,
		TopP:             topP,
		SingleLine:       true,
	}
}
