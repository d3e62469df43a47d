package session

import (
	"time"

	"github.com/google/uuid"
)

// Phase is the top-level position of a conversation in the sales flow.
type Phase string

const (
	PhaseGreeting       Phase = "greeting"
	PhaseDiscovery      Phase = "discovery"
	PhaseQualification  Phase = "qualification"
	PhaseRecommendation Phase = "recommendation"
	PhaseClosing        Phase = "closing"
	PhaseFollowUp       Phase = "follow_up"
)

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseGreeting, PhaseDiscovery, PhaseQualification, PhaseRecommendation, PhaseClosing, PhaseFollowUp:
		return true
	}
	return false
}

// UIState is the position of the contact-collection protocol.
type UIState string

const (
	UIIdle            UIState = "idle"
	UIAskingEmail     UIState = "asking_email"
	UIWaitingEmail    UIState = "waiting_email"
	UIConfirmingEmail UIState = "confirming_email"
	UIAskingPhone     UIState = "asking_phone"
	UIWaitingPhone    UIState = "waiting_phone"
	UIConfirmingPhone UIState = "confirming_phone"
	UICompleted       UIState = "completed"
)

// Active reports whether the collection protocol is mid-flight.
func (s UIState) Active() bool {
	return s != "" && s != UIIdle && s != UICompleted
}

// Status is the lifecycle status of a conversation.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

// Terminal reports whether the conversation no longer accepts writes.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// Speaker identifies who produced a message.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// Message is a single transcript entry.
type Message struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Severity grades a pain point or challenge.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Concern is a pain point or challenge the lead described.
type Concern struct {
	Text     string   `json:"text"`
	Severity Severity `json:"severity,omitempty"`
}

// CustomerInfo holds known facts about the lead.
type CustomerInfo struct {
	Name              string    `json:"name,omitempty"`
	Email             string    `json:"email,omitempty"`
	Phone             string    `json:"phone,omitempty"`
	Company           string    `json:"company,omitempty"`
	Industry          string    `json:"industry,omitempty"`
	CompanySize       int       `json:"companySize,omitempty"`
	Role              string    `json:"role,omitempty"`
	DecisionRole      string    `json:"decisionRole,omitempty"`
	TeamSize          int       `json:"teamSize,omitempty"`
	Budget            string    `json:"budget,omitempty"`
	Timeline          string    `json:"timeline,omitempty"`
	PainPoints        []Concern `json:"painPoints,omitempty"`
	CurrentChallenges []Concern `json:"currentChallenges,omitempty"`
	Goals             []string  `json:"goals,omitempty"`
}

// HasContact reports whether both contact fields are known.
func (c CustomerInfo) HasContact() bool {
	return c.Email != "" && c.Phone != ""
}

// HasBusinessContext reports whether any challenge or pain point is known.
func (c CustomerInfo) HasBusinessContext() bool {
	return len(c.CurrentChallenges) > 0 || len(c.PainPoints) > 0
}

// Tier is the coarse qualification bucket.
type Tier string

const (
	TierHot          Tier = "hot"
	TierWarm         Tier = "warm"
	TierCold         Tier = "cold"
	TierNurture      Tier = "nurture"
	TierDisqualified Tier = "disqualified"
)

// BudgetStatus describes what the lead said about money.
type BudgetStatus string

const (
	BudgetAllocated BudgetStatus = "allocated"
	BudgetPlanned   BudgetStatus = "planned"
	BudgetExploring BudgetStatus = "exploring"
	BudgetUnknown   BudgetStatus = "unknown"
)

// BudgetScore is the Budget step output.
type BudgetScore struct {
	Score  int          `json:"score"`
	Status BudgetStatus `json:"status"`
	Amount float64      `json:"amount,omitempty"`
}

// AuthorityScore is the Authority step output.
type AuthorityScore struct {
	Score   int    `json:"score"`
	Role    string `json:"role"`
	Title   string `json:"title,omitempty"`
	CanSign bool   `json:"canSign"`
}

// NeedScore is the Need step output.
type NeedScore struct {
	Score     int      `json:"score"`
	Items     int      `json:"items"`
	Urgent    bool     `json:"urgent"`
	HighValue []string `json:"highValue,omitempty"`
}

// TimelineScore is the Timeline step output.
type TimelineScore struct {
	Score  int    `json:"score"`
	Status string `json:"status"`
}

// Qualification is the complete BANT record. It is always replaced as a
// whole so the sub-scores stay consistent with the total.
type Qualification struct {
	Budget             BudgetScore    `json:"budget"`
	Authority          AuthorityScore `json:"authority"`
	Need               NeedScore      `json:"need"`
	Timeline           TimelineScore  `json:"timeline"`
	BaseScore          int            `json:"baseScore"`
	IndustryMultiplier float64        `json:"industryMultiplier"`
	TotalScore         int            `json:"totalScore"`
	Tier               Tier           `json:"tier"`
	IsQualified        bool           `json:"isQualified"`
	NextAction         string         `json:"nextAction"`
}

// ExecutionStatus is the status of one node execution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// Finished reports whether the execution has left pending/running.
func (s ExecutionStatus) Finished() bool {
	return s == ExecutionCompleted || s == ExecutionFailed
}

// AgentExecution records one node run.
type AgentExecution struct {
	Agent      string          `json:"agent"`
	StartTime  time.Time       `json:"startTime"`
	EndTime    time.Time       `json:"endTime,omitempty"`
	Status     ExecutionStatus `json:"status"`
	Error      string          `json:"error,omitempty"`
	RetryCount int             `json:"retryCount"`
}

// Duration is zero until the execution finished.
func (e AgentExecution) Duration() time.Duration {
	if !e.Status.Finished() || e.EndTime.Before(e.StartTime) {
		return 0
	}
	return e.EndTime.Sub(e.StartTime)
}

// ErrorEntry records a failure observed while handling the conversation.
type ErrorEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
	Recovered bool      `json:"recovered"`
}

// State is the canonical record for one conversation.
type State struct {
	SessionID           string           `json:"sessionId"`
	CorrelationID       string           `json:"correlationId"`
	Messages            []Message        `json:"messages"`
	CustomerInfo        CustomerInfo     `json:"customerInfo"`
	Qualification       *Qualification   `json:"qualification"`
	Phase               Phase            `json:"phase"`
	UIState             UIState          `json:"uiState"`
	Status              Status           `json:"conversationStatus"`
	PendingNotification bool             `json:"pendingNotification"`
	NotifiedAt          *time.Time       `json:"notifiedAt,omitempty"`
	AgentExecutions     []AgentExecution `json:"agentExecutions"`
	Errors              []ErrorEntry     `json:"errors"`
	StartTime           time.Time        `json:"startTime"`
	LastUpdateTime      time.Time        `json:"lastUpdateTime"`
}

// New returns a fresh state for a session seen for the first time.
func New(sessionID string, now time.Time) State {
	now = now.UTC()
	return State{
		SessionID:       sessionID,
		CorrelationID:   uuid.NewString(),
		Messages:        []Message{},
		Phase:           PhaseGreeting,
		UIState:         UIIdle,
		Status:          StatusActive,
		AgentExecutions: []AgentExecution{},
		Errors:          []ErrorEntry{},
		StartTime:       now,
		LastUpdateTime:  now,
	}
}

// UserText joins the user's messages, oldest first.
func (s State) UserText() string {
	var n int
	for _, m := range s.Messages {
		if m.Speaker == SpeakerUser {
			n += len(m.Text) + 1
		}
	}
	buf := make([]byte, 0, n)
	for _, m := range s.Messages {
		if m.Speaker != SpeakerUser {
			continue
		}
		if len(buf) > 0 {
			buf = append(buf, '\n')
		}
		buf = append(buf, m.Text...)
	}
	return string(buf)
}

// LastUserMessage returns the most recent user message text.
func (s State) LastUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Speaker == SpeakerUser {
			return s.Messages[i].Text
		}
	}
	return ""
}

// Clone returns a deep copy so stores never share slices with callers.
func (s State) Clone() State {
	out := s
	out.Messages = cloneSlice(s.Messages)
	out.CustomerInfo = s.CustomerInfo.clone()
	if s.Qualification != nil {
		q := *s.Qualification
		q.Need.HighValue = cloneSlice(s.Qualification.Need.HighValue)
		out.Qualification = &q
	}
	if s.NotifiedAt != nil {
		t := *s.NotifiedAt
		out.NotifiedAt = &t
	}
	out.AgentExecutions = cloneSlice(s.AgentExecutions)
	out.Errors = cloneSlice(s.Errors)
	return out
}

func (c CustomerInfo) clone() CustomerInfo {
	out := c
	out.PainPoints = cloneSlice(c.PainPoints)
	out.CurrentChallenges = cloneSlice(c.CurrentChallenges)
	out.Goals = cloneSlice(c.Goals)
	return out
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
