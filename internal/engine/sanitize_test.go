package engine

import "testing"

func TestSanitizeReply_FirstLineOnly(t *testing.T) {
	got := sanitizeReply("  first line \nsecond line\nthird", "Villain", "Alice")
	if got != "first line" {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestSanitizeReply_TokensAndEmphasis(t *testing.T) {
	got := sanitizeReply("*{{char}} bows to {{user}}*", "Villain", "Alice")
	if got != "_Villain bows to Alice_" {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestEscapeMarkdownV2(t *testing.T) {
	got := escapeMarkdownV2("a.b!c(d)e-f")
	want := `a\.b\!c\(d\)e\-f`
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestClassify(t *testing.T) {
	cases := map[string]command{
		"/start":             cmdStart,
		"Stop Session":       cmdStop,
		"Switch Character":   cmdSwitch,
		"Upload Custom Card": cmdUpload,
		"stop session":       cmdNone, // exact match only
		"hello":              cmdNone,
	}
	for text, want := range cases {
		if got := classify(text); got != want {
			t.Fatalf("classify(%q) = %d, want %d", text, got, want)
		}
	}
}
