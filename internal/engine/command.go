package engine

// Reserved command labels, matched verbatim against message text before any
// other interpretation. Keeping the dispatch in one typed classifier avoids
// ambiguity with a card literally named e.g. "Stop Session": the command
// always wins.
const (
	labelStart  = "/start"
	labelStop   = "Stop Session"
	labelSwitch = "Switch Character"
	labelUpload = "Upload Custom Card"
)

type command int

const (
	cmdNone command = iota
	cmdStart
	cmdStop
	cmdSwitch
	cmdUpload
)

func classify(text string) command {
	switch text {
	case labelStart:
		return cmdStart
	case labelStop:
		return cmdStop
	case labelSwitch:
		return cmdSwitch
	case labelUpload:
		return cmdUpload
	default:
		return cmdNone
	}
}
