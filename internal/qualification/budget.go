package qualification

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/wolfman30/leadflow/internal/session"
)

var (
	dollarAmountRE = regexp.MustCompile(`(?i)\$\s*(\d[\d,]*(?:\.\d+)?)\s*(k|mm|m|million|thousand|bn|b|billion)?\b`)
	kAmountRE      = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*k\b`)
	budgetWordRE   = regexp.MustCompile(`(?i)\b(budget|budgeted|allocated)\b`)
	allocatedRE    = regexp.MustCompile(`(?i)\ballocated\b`)
)

// ScoreBudget looks for the largest stated amount in the user's messages.
// Amounts under $50k score as if no budget were mentioned.
func ScoreBudget(in Input) session.BudgetScore {
	text := in.Text
	if strings.TrimSpace(in.Info.Budget) != "" {
		text = in.Info.Budget + "\n" + text
	}
	if strings.TrimSpace(text) == "" {
		return session.BudgetScore{Score: 5, Status: session.BudgetUnknown}
	}

	if amount, ok := LargestAmount(text); ok {
		switch {
		case amount >= 500_000:
			return session.BudgetScore{Score: 30, Status: session.BudgetAllocated, Amount: amount}
		case amount >= 250_000:
			return session.BudgetScore{Score: 25, Status: session.BudgetAllocated, Amount: amount}
		case amount >= 100_000:
			return session.BudgetScore{Score: 20, Status: session.BudgetAllocated, Amount: amount}
		case amount >= 50_000:
			return session.BudgetScore{Score: 15, Status: session.BudgetPlanned, Amount: amount}
		}
		// a stated figure under the lowest band is not a budget signal
		return session.BudgetScore{Score: 5, Status: session.BudgetExploring, Amount: amount}
	}

	if budgetWordRE.MatchString(text) {
		status := session.BudgetPlanned
		if allocatedRE.MatchString(text) {
			status = session.BudgetAllocated
		}
		return session.BudgetScore{Score: 15, Status: status}
	}
	return session.BudgetScore{Score: 5, Status: session.BudgetExploring}
}

// LargestAmount returns the largest dollar or k-suffixed amount in text.
func LargestAmount(text string) (float64, bool) {
	var (
		best  float64
		found bool
	)
	consider := func(v float64) {
		if v > best {
			best = v
		}
		found = true
	}

	for _, m := range dollarAmountRE.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			continue
		}
		consider(v * amountSuffix(m[2]))
	}
	for _, m := range kAmountRE.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		consider(v * 1_000)
	}
	return best, found
}

func amountSuffix(s string) float64 {
	switch strings.ToLower(s) {
	case "k", "thousand":
		return 1_000
	case "m", "mm", "million":
		return 1_000_000
	case "b", "bn", "billion":
		return 1_000_000_000
	default:
		return 1
	}
}
