package qualification

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/wolfman30/leadflow/internal/session"
)

// HighValueKeywords add a bonus to the Need score when mentioned.
var HighValueKeywords = []string{"compliance", "fraud", "security", "automation", "ai", "scale"}

var (
	clauseSplitRE  = regexp.MustCompile(`[!?;\n]+|[.,]\s+|[.,]$`)
	painRE         = regexp.MustCompile(`(?i)\b(problems?|issues?|failures?|failing|challenges?|struggl\w*|pain|bottlenecks?|broken|outages?|errors?|delays?|downtime|churn|losing|leaks?|manual)\b`)
	criticalRE     = regexp.MustCompile(`(?i)\b(critical|severe|showstopper|blocking)\b`)
	highRE         = regexp.MustCompile(`(?i)\b(urgent|high[- ]priority|major|serious|costly)\b`)
	quantityRE     = regexp.MustCompile(`(?i)\b(\d{1,2}|two|three|four|five|six|seven|eight|nine|ten|several|multiple)\b`)
	goalRE         = regexp.MustCompile(`(?i)\b(?:goal is|goals are|objective is|we want to|we'd like to|we would like to|looking to|hoping to|aim to|plan to)\s+([^.!?;\n]+)`)
	highValueWords = buildKeywordRE(HighValueKeywords)
)

var quantityWords = map[string]int{
	"two": 2, "three": 3, "four": 4, "five": 5, "six": 6, "seven": 7,
	"eight": 8, "nine": 9, "ten": 10, "several": 3, "multiple": 2,
}

// ScoreNeed grades how much pain the lead described.
func ScoreNeed(in Input) session.NeedScore {
	concerns := make([]session.Concern, 0, len(in.Info.PainPoints)+len(in.Info.CurrentChallenges))
	concerns = append(concerns, in.Info.PainPoints...)
	concerns = append(concerns, in.Info.CurrentChallenges...)
	if len(concerns) == 0 {
		concerns = ExtractConcerns(in.Text)
	}

	items := 0
	urgent := false
	for _, c := range concerns {
		items += ConcernCount(c)
		if c.Severity == session.SeverityCritical || c.Severity == session.SeverityHigh {
			urgent = true
		}
	}

	goals := in.Info.Goals
	if len(goals) == 0 {
		goals = ExtractGoals(in.Text)
	}

	var score int
	switch {
	case items >= 3 || urgent:
		score = 25
	case items == 2:
		score = 20
	case items == 1:
		score = 15
	case len(goals) > 0:
		score = 10
	default:
		score = 5
	}

	corpus := make([]string, 0, len(concerns)+len(goals)+1)
	corpus = append(corpus, in.Text)
	for _, c := range concerns {
		corpus = append(corpus, c.Text)
	}
	corpus = append(corpus, goals...)
	highValue := MatchHighValue(strings.Join(corpus, "\n"))
	if len(highValue) > 0 {
		score += 5
	}

	return session.NeedScore{
		Score:     clampInt(score, 0, MaxNeed),
		Items:     items,
		Urgent:    urgent,
		HighValue: highValue,
	}
}

// ExtractConcerns finds clauses in which the user describes a problem.
func ExtractConcerns(text string) []session.Concern {
	var out []session.Concern
	for _, clause := range splitClauses(text) {
		if !painRE.MatchString(clause) {
			continue
		}
		out = append(out, session.Concern{Text: clause, Severity: severityOf(clause)})
	}
	return out
}

// ExtractGoals finds stated goals ("we want to ...", "looking to ...").
func ExtractGoals(text string) []string {
	var out []string
	for _, m := range goalRE.FindAllStringSubmatch(text, -1) {
		if g := strings.TrimSpace(m[1]); g != "" {
			out = append(out, g)
		}
	}
	return out
}

// ConcernCount is the number of items a concern stands for: "3 urgent
// operational failures" counts three, anything else one.
func ConcernCount(c session.Concern) int {
	loc := painRE.FindStringIndex(c.Text)
	if loc == nil {
		return 1
	}
	// only quantities in front of the pain word count
	head := c.Text[:loc[0]]
	matches := quantityRE.FindAllString(head, -1)
	if len(matches) == 0 {
		return 1
	}
	q := strings.ToLower(matches[len(matches)-1])
	if n, ok := quantityWords[q]; ok {
		return n
	}
	n, err := strconv.Atoi(q)
	if err != nil || n < 1 {
		return 1
	}
	if n > 10 {
		n = 10
	}
	return n
}

// MatchHighValue returns the high-value keywords present in text.
func MatchHighValue(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range highValueWords.FindAllString(text, -1) {
		k := strings.ToLower(m)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func severityOf(clause string) session.Severity {
	switch {
	case criticalRE.MatchString(clause):
		return session.SeverityCritical
	case highRE.MatchString(clause):
		return session.SeverityHigh
	default:
		return session.SeverityMedium
	}
}

func splitClauses(text string) []string {
	parts := clauseSplitRE.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func buildKeywordRE(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
}
