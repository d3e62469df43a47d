package qualification

import (
	"regexp"
	"strings"

	"github.com/wolfman30/leadflow/internal/session"
)

// Authority roles.
const (
	RoleDecisionMaker = "decision_maker"
	RoleInfluencer    = "influencer"
	RoleResearcher    = "researcher"
)

var (
	decisionMakerRE = regexp.MustCompile(`(?i)\b(ceo|coo|cfo|cto|cio|cmo|president|owner|co-?founder|founder|vp|svp|evp|vice president|director|chief [a-z]+ officer)\b`)
	influencerRE    = regexp.MustCompile(`(?i)\b(manager|head|lead|senior|principal|architect)\b`)

	// first-person title statements: "I'm the VP of Operations", "as the CTO"
	titleStatementRE = regexp.MustCompile(`(?i)\b(?:i'?m|i am|as|title is|role is|position is|work as|serve as)\s+(?:the\s+|a\s+|an\s+|our\s+)?([a-z][a-z&/ -]{1,60})`)
	titleCutRE       = regexp.MustCompile(`(?i)\s+(?:and|but|so|at|for|with|who|which|because)\s+.*$`)
)

// ScoreAuthority grades the lead's buying power from their title.
func ScoreAuthority(in Input) session.AuthorityScore {
	title := strings.TrimSpace(in.Info.Role)
	if title == "" {
		title = ExtractTitle(in.Text)
	}

	switch {
	case title != "" && decisionMakerRE.MatchString(title):
		return session.AuthorityScore{Score: 25, Role: RoleDecisionMaker, Title: title, CanSign: true}
	case strings.EqualFold(in.Info.DecisionRole, RoleDecisionMaker):
		return session.AuthorityScore{Score: 25, Role: RoleDecisionMaker, Title: title, CanSign: true}
	case title != "" && influencerRE.MatchString(title):
		return session.AuthorityScore{Score: 15, Role: RoleInfluencer, Title: title}
	case strings.EqualFold(in.Info.DecisionRole, RoleInfluencer):
		return session.AuthorityScore{Score: 15, Role: RoleInfluencer, Title: title}
	case in.Info.TeamSize > 5:
		return session.AuthorityScore{Score: 10, Role: RoleInfluencer, Title: title}
	default:
		return session.AuthorityScore{Score: 5, Role: RoleResearcher, Title: title}
	}
}

// ExtractTitle returns the first job title the user states about
// themselves, or "" when none is found.
func ExtractTitle(text string) string {
	for _, clause := range splitClauses(text) {
		for _, m := range titleStatementRE.FindAllStringSubmatch(clause, -1) {
			phrase := strings.TrimSpace(titleCutRE.ReplaceAllString(m[1], ""))
			words := strings.Fields(phrase)
			if len(words) > 4 {
				words = words[:4]
			}
			candidate := strings.Join(words, " ")
			if decisionMakerRE.MatchString(candidate) || influencerRE.MatchString(candidate) {
				return candidate
			}
		}
	}
	return ""
}
