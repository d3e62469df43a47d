package orchestrator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/wolfman30/leadflow/internal/collection"
	"github.com/wolfman30/leadflow/internal/qualification"
	"github.com/wolfman30/leadflow/internal/session"
)

var (
	nameRE             = regexp.MustCompile(`(?:[Mm]y name is|[Tt]his is|I'm|I am|[Nn]ame's)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)\b`)
	companyRE          = regexp.MustCompile(`(?:\bat|\bfrom|\bwith|[Ww]ork for|[Cc]ompany is|[Cc]ompany called|[Ww]e are|[Ww]e're)\s+([A-Z][\w&\-]*(?:\.[A-Za-z]+)?(?:\s+[A-Z][\w&\-]*(?:\.[A-Za-z]+)?){0,3})`)
	teamRE             = regexp.MustCompile(`(?i)\b(?:team of|manage|lead|managing|leading)\s+(\d{1,5})\b|\b(\d{1,5})[- ](?:person|people|member)\s+team\b`)
	addressRE          = regexp.MustCompile(`\S+@\S+`)
	companyHeadcountRE = regexp.MustCompile(`(?i)\b(\d[\d,]{0,6})\s+(?:employees|staff|people\s+(?:company|org))\b`)

	// Subjects and titles that follow "I'm"/"at"/"with" but are not names.
	notName = map[string]bool{
		"Director": true, "President": true, "Founder": true, "Owner": true, "Manager": true,
		"Head": true, "Chief": true, "Lead": true, "Senior": true, "Looking": true, "Interested": true,
		"Responsible": true, "Here": true, "Just": true, "Not": true, "Currently": true, "Also": true,
	}
	notCompany = map[string]bool{
		"I": true, "The": true, "This": true, "We": true, "My": true, "Our": true, "Q1": true, "Q2": true,
		"Q3": true, "Q4": true, "Monday": true, "Friday": true,
	}

	industryKeywords = []struct {
		industry string
		re       *regexp.Regexp
	}{
		{"financial services", regexp.MustCompile(`(?i)\b(financial services|fintech|wealth management|payments company)\b`)},
		{"banking", regexp.MustCompile(`(?i)\b(bank|banking|credit union)\b`)},
		{"insurance", regexp.MustCompile(`(?i)\b(insurance|insurer|underwriting)\b`)},
		{"healthcare", regexp.MustCompile(`(?i)\b(healthcare|health care|hospital|clinic|medical)\b`)},
		{"saas", regexp.MustCompile(`(?i)\b(saas|software company|software startup)\b`)},
		{"technology", regexp.MustCompile(`(?i)\b(tech company|technology)\b`)},
		{"manufacturing", regexp.MustCompile(`(?i)\b(manufactur\w*|factory|plant floor)\b`)},
		{"retail", regexp.MustCompile(`(?i)\b(retail|e-?commerce|stores?)\b`)},
		{"education", regexp.MustCompile(`(?i)\b(education|university|school district|edtech)\b`)},
		{"government", regexp.MustCompile(`(?i)\b(government|public sector|municipal|agency)\b`)},
		{"nonprofit", regexp.MustCompile(`(?i)\b(non-?profit|charity|foundation)\b`)},
	}
)

// Extract pulls the customer facts stated in a single user message. Missing
// facts stay zero so merging never erases what is already known.
func Extract(text string) session.CustomerInfo {
	var info session.CustomerInfo
	if strings.TrimSpace(text) == "" {
		return info
	}

	// addresses look like capitalised words to the name and company patterns
	plain := addressRE.ReplaceAllString(text, " ")
	if m := nameRE.FindStringSubmatch(plain); m != nil {
		first := strings.Fields(m[1])[0]
		if !notName[first] {
			info.Name = m[1]
		}
	}
	for _, m := range companyRE.FindAllStringSubmatch(plain, -1) {
		candidate := m[1]
		if notCompany[strings.Fields(candidate)[0]] || candidate == info.Name {
			continue
		}
		info.Company = candidate
		break
	}
	for _, k := range industryKeywords {
		if k.re.MatchString(text) {
			info.Industry = k.industry
			break
		}
	}

	if title := qualification.ExtractTitle(text); title != "" {
		info.Role = title
	}
	if m := teamRE.FindStringSubmatch(text); m != nil {
		info.TeamSize = atoiFirst(m[1], m[2])
	}
	if m := companyHeadcountRE.FindStringSubmatch(text); m != nil {
		info.CompanySize = atoiFirst(strings.ReplaceAll(m[1], ",", ""))
	}
	if amount, ok := qualification.LargestAmount(text); ok {
		info.Budget = fmt.Sprintf("$%.0f", amount)
	}

	info.CurrentChallenges = qualification.ExtractConcerns(text)
	info.Goals = qualification.ExtractGoals(text)

	if email, ok := collection.MatchEmail(text); ok {
		info.Email = email
	}
	if phone, ok := collection.MatchPhone(text); ok {
		info.Phone = phone
	}
	return info
}

func atoiFirst(vals ...string) int {
	for _, v := range vals {
		if v == "" {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}
