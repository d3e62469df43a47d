// Package qualification scores a lead against the Budget/Authority/Need/
// Timeline rubric. Every step is a pure function of the session: the
// pipeline never fails and falls back to the lowest band when the
// conversation carries no signal.
package qualification

import (
	"math"

	"github.com/wolfman30/leadflow/internal/session"
)

// Score bounds for each step.
const (
	MaxBudget    = 30
	MaxAuthority = 25
	MaxNeed      = 25
	MaxTimeline  = 20
	MaxTotal     = 100

	// QualifiedThreshold is the lowest total score counted as qualified.
	QualifiedThreshold = 30
)

// Input is the slice of session state the steps read.
type Input struct {
	Info session.CustomerInfo
	// Text is the user's side of the transcript, newest last.
	Text string
}

// InputFromState extracts the scoring input from a session.
func InputFromState(st session.State) Input {
	return Input{Info: st.CustomerInfo, Text: st.UserText()}
}

// Scorer runs the five-step pipeline with a configured industry table.
type Scorer struct {
	multipliers Multipliers
}

// NewScorer returns a scorer. A zero Multipliers value uses the defaults.
func NewScorer(m Multipliers) *Scorer {
	if len(m.Industries) == 0 && m.Default == 0 {
		m = DefaultMultipliers()
	}
	return &Scorer{multipliers: m.normalized()}
}

// Score runs Budget, Authority, Need, Timeline and Final in that order.
func (s *Scorer) Score(st session.State) session.Qualification {
	return s.Evaluate(InputFromState(st))
}

// Evaluate scores a raw input.
func (s *Scorer) Evaluate(in Input) session.Qualification {
	budget := ScoreBudget(in)
	authority := ScoreAuthority(in)
	need := ScoreNeed(in)
	timeline := ScoreTimeline(in)
	return Finalize(budget, authority, need, timeline, s.multipliers.For(in.Info.Industry))
}

// Finalize sums the sub-scores, applies the industry multiplier and assigns
// the tier. The multiplier must already be clamped; the total is rounded
// and capped at 100.
func Finalize(b session.BudgetScore, a session.AuthorityScore, n session.NeedScore, t session.TimelineScore, multiplier float64) session.Qualification {
	base := b.Score + a.Score + n.Score + t.Score
	total := int(math.Round(float64(base) * multiplier))
	total = clampInt(total, 0, MaxTotal)

	tier := TierFor(total)
	return session.Qualification{
		Budget:             b,
		Authority:          a,
		Need:               n,
		Timeline:           t,
		BaseScore:          base,
		IndustryMultiplier: multiplier,
		TotalScore:         total,
		Tier:               tier,
		IsQualified:        total >= QualifiedThreshold,
		NextAction:         NextActionFor(tier),
	}
}

// TierFor maps a total score onto a tier.
func TierFor(total int) session.Tier {
	switch {
	case total >= 80:
		return session.TierHot
	case total >= 60:
		return session.TierWarm
	case total >= 40:
		return session.TierCold
	case total >= 20:
		return session.TierNurture
	default:
		return session.TierDisqualified
	}
}

// NextActionFor names the sales follow-up for a tier.
func NextActionFor(t session.Tier) string {
	switch t {
	case session.TierHot:
		return "schedule_demo"
	case session.TierWarm:
		return "send_proposal"
	case session.TierCold:
		return "nurture_sequence"
	case session.TierNurture:
		return "educational_content"
	default:
		return "close_out"
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
