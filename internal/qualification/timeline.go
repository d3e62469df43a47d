package qualification

import (
	"regexp"
	"strings"

	"github.com/wolfman30/leadflow/internal/session"
)

// Timeline statuses.
const (
	TimelineImmediate   = "immediate"
	TimelineThisQuarter = "this_quarter"
	TimelineNextQuarter = "next_quarter"
	TimelineThisYear    = "this_year"
	TimelineNextYear    = "next_year"
	TimelineExploring   = "exploring"
	TimelineUnknown     = "unknown"
)

type timelineRule struct {
	re     *regexp.Regexp
	score  int
	status string
}

// explicit timeframes win over urgency words
var timeframeRules = []timelineRule{
	{regexp.MustCompile(`(?i)\b(this month|end of (the )?month|this quarter|end of (the )?quarter|within (a|one|1) month|within (a few|\d+) weeks|next (few )?weeks?|30 days|60 days)\b`), 18, TimelineThisQuarter},
	{regexp.MustCompile(`(?i)\b(next quarter|q[1-4]|(3|three|four|4) months|90 days)\b`), 15, TimelineNextQuarter},
	{regexp.MustCompile(`(?i)\b(this year|end of (the )?year|(6|six|nine|9) months|later this year|h2)\b`), 12, TimelineThisYear},
	{regexp.MustCompile(`(?i)\b(next year|(12|twelve) months|a year from now|long[- ]term)\b`), 8, TimelineNextYear},
}

var urgencyRE = regexp.MustCompile(`(?i)\b(immediate(ly)?|urgent(ly)?|asap|right away|right now|as soon as possible)\b`)

// ScoreTimeline grades how soon the lead intends to buy.
func ScoreTimeline(in Input) session.TimelineScore {
	text := in.Text
	if t := strings.TrimSpace(in.Info.Timeline); t != "" {
		text = t + "\n" + text
	}
	if strings.TrimSpace(text) == "" {
		return session.TimelineScore{Score: 5, Status: TimelineUnknown}
	}
	for _, r := range timeframeRules {
		if r.re.MatchString(text) {
			return session.TimelineScore{Score: r.score, Status: r.status}
		}
	}
	if urgencyRE.MatchString(text) {
		return session.TimelineScore{Score: MaxTimeline, Status: TimelineImmediate}
	}
	return session.TimelineScore{Score: 5, Status: TimelineExploring}
}
