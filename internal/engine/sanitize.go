package engine

import "strings"

// markdownV2Escaper escapes every character with special meaning in the
// outbound rich-text format.
var markdownV2Escaper = strings.NewReplacer(
	"*", "\\*", "_", "\\_", "[", "\\[", "]", "\\]",
	"(", "\\(", ")", "\\)", "~", "\\~", "`", "\\`",
	">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-",
	"=", "\\=", "|", "\\|", "{", "\\{", "}", "\\}",
	".", "\\.", "!", "\\!",
)

func escapeMarkdownV2(s string) string {
	return markdownV2Escaper.Replace(s)
}

// personalize substitutes the card template tokens with the concrete
// character and user names.
func personalize(s, charName, userName string) string {
	return strings.NewReplacer("{{char}}", charName, "{{user}}", userName).Replace(s)
}

// sanitizeReply applies the relay's reply policy to raw generated text: keep
// the first line only (a deliberate truncation, not a bug), neutralize
// embedded newlines and emphasis markers, then fill in the template tokens.
func sanitizeReply(generated, charName, userName string) string {
	first, _, _ := strings.Cut(generated, "\n")
	first = strings.TrimSpace(first)
	first = strings.NewReplacer("\n", " ", "*", "_").Replace(first)
	return personalize(first, charName, userName)
}
