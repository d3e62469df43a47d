package orchestrator

import (
	"strings"

	"github.com/wolfman30/leadflow/internal/qualification"
	"github.com/wolfman30/leadflow/internal/session"
)

// MaxHighlights bounds the messages quoted in a hand-off record.
const MaxHighlights = 5

// Highlights selects up to limit user messages that carry a qualification
// signal: an amount, a timeframe, a job title or a stated problem. Order
// follows the transcript.
func Highlights(st session.State, limit int) []string {
	if limit <= 0 {
		limit = MaxHighlights
	}
	out := make([]string, 0, limit)
	for _, m := range st.Messages {
		if len(out) == limit {
			break
		}
		if m.Speaker != session.SpeakerUser {
			continue
		}
		text := strings.TrimSpace(m.Text)
		if text == "" || !hasSignal(text) {
			continue
		}
		out = append(out, text)
	}
	return out
}

func hasSignal(text string) bool {
	if _, ok := qualification.LargestAmount(text); ok {
		return true
	}
	in := qualification.Input{Text: text}
	switch qualification.ScoreTimeline(in).Status {
	case qualification.TimelineExploring, qualification.TimelineUnknown:
	default:
		return true
	}
	if qualification.ExtractTitle(text) != "" {
		return true
	}
	return len(qualification.ExtractConcerns(text)) > 0
}
