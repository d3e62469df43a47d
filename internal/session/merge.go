package session

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrSessionClosed is returned when an update targets a completed or abandoned session.
	ErrSessionClosed = errors.New("session: conversation is closed")
	// ErrInvalidUpdate is returned for updates carrying values outside the model.
	ErrInvalidUpdate = errors.New("session: invalid update")
)

// Update is a partial state change. Zero values mean "absent".
type Update struct {
	At                  time.Time
	Messages            []Message
	CustomerInfo        *CustomerInfo
	Qualification       *Qualification
	Phase               Phase
	UIState             UIState
	Status              Status
	PendingNotification *bool
	NotifiedAt          *time.Time
	AgentExecutions     []AgentExecution
	Errors              []ErrorEntry
}

// Empty reports whether the update carries no field at all.
func (u Update) Empty() bool {
	return len(u.Messages) == 0 &&
		u.CustomerInfo == nil &&
		u.Qualification == nil &&
		u.Phase == "" &&
		u.UIState == "" &&
		u.Status == "" &&
		u.PendingNotification == nil &&
		u.NotifiedAt == nil &&
		len(u.AgentExecutions) == 0 &&
		len(u.Errors) == 0
}

// Strategy names how a field combines the current and incoming value.
type Strategy string

const (
	StrategyOverwrite     Strategy = "overwrite"
	StrategyUnionList     Strategy = "union_list"
	StrategyAppendLog     Strategy = "append_log"
	StrategyReplaceRecord Strategy = "replace_record"
	// StrategyMergeRecord merges a nested record using its own field table.
	StrategyMergeRecord Strategy = "merge_record"
)

type stateField struct {
	name     string
	strategy Strategy
	merge    func(dst *State, u Update)
}

type customerField struct {
	name     string
	strategy Strategy
	merge    func(dst *CustomerInfo, in CustomerInfo)
}

var stateFields = []stateField{
	{"messages", StrategyAppendLog, func(dst *State, u Update) {
		dst.Messages = AppendLog(dst.Messages, u.Messages)
	}},
	{"customerInfo", StrategyMergeRecord, func(dst *State, u Update) {
		if u.CustomerInfo != nil {
			dst.CustomerInfo = MergeCustomerInfo(dst.CustomerInfo, *u.CustomerInfo)
		}
	}},
	{"qualification", StrategyReplaceRecord, func(dst *State, u Update) {
		dst.Qualification = ReplaceIfPresent(dst.Qualification, u.Qualification)
	}},
	{"phase", StrategyOverwrite, func(dst *State, u Update) {
		dst.Phase = OverwriteScalar(dst.Phase, u.Phase)
	}},
	{"uiState", StrategyOverwrite, func(dst *State, u Update) {
		dst.UIState = OverwriteScalar(dst.UIState, u.UIState)
	}},
	{"conversationStatus", StrategyOverwrite, func(dst *State, u Update) {
		dst.Status = OverwriteScalar(dst.Status, u.Status)
	}},
	{"pendingNotification", StrategyOverwrite, func(dst *State, u Update) {
		if u.PendingNotification != nil {
			dst.PendingNotification = *u.PendingNotification
		}
	}},
	{"notifiedAt", StrategyReplaceRecord, func(dst *State, u Update) {
		dst.NotifiedAt = ReplaceIfPresent(dst.NotifiedAt, u.NotifiedAt)
	}},
	{"agentExecutions", StrategyAppendLog, func(dst *State, u Update) {
		dst.AgentExecutions = AppendLog(dst.AgentExecutions, normalizeExecutions(u.AgentExecutions))
	}},
	{"errors", StrategyAppendLog, func(dst *State, u Update) {
		dst.Errors = AppendLog(dst.Errors, u.Errors)
	}},
}

var customerFields = []customerField{
	{"name", StrategyOverwrite, func(d *CustomerInfo, in CustomerInfo) { d.Name = OverwriteString(d.Name, in.Name) }},
	{"email", StrategyOverwrite, func(d *CustomerInfo, in CustomerInfo) { d.Email = OverwriteString(d.Email, in.Email) }},
	{"phone", StrategyOverwrite, func(d *CustomerInfo, in CustomerInfo) { d.Phone = OverwriteString(d.Phone, in.Phone) }},
	{"company", StrategyOverwrite, func(d *CustomerInfo, in CustomerInfo) { d.Company = OverwriteString(d.Company, in.Company) }},
	{"industry", StrategyOverwrite, func(d *CustomerInfo, in CustomerInfo) { d.Industry = OverwriteString(d.Industry, in.Industry) }},
	{"companySize", StrategyOverwrite, func(d *CustomerInfo, in CustomerInfo) { d.CompanySize = OverwriteScalar(d.CompanySize, in.CompanySize) }},
	{"role", StrategyOverwrite, func(d *CustomerInfo, in CustomerInfo) { d.Role = OverwriteString(d.Role, in.Role) }},
	{"decisionRole", StrategyOverwrite, func(d *CustomerInfo, in CustomerInfo) {
		d.DecisionRole = OverwriteString(d.DecisionRole, in.DecisionRole)
	}},
	{"teamSize", StrategyOverwrite, func(d *CustomerInfo, in CustomerInfo) { d.TeamSize = OverwriteScalar(d.TeamSize, in.TeamSize) }},
	{"budget", StrategyOverwrite, func(d *CustomerInfo, in CustomerInfo) { d.Budget = OverwriteString(d.Budget, in.Budget) }},
	{"timeline", StrategyOverwrite, func(d *CustomerInfo, in CustomerInfo) { d.Timeline = OverwriteString(d.Timeline, in.Timeline) }},
	{"painPoints", StrategyUnionList, func(d *CustomerInfo, in CustomerInfo) {
		d.PainPoints = UnionList(d.PainPoints, in.PainPoints, concernKey)
	}},
	{"currentChallenges", StrategyUnionList, func(d *CustomerInfo, in CustomerInfo) {
		d.CurrentChallenges = UnionList(d.CurrentChallenges, in.CurrentChallenges, concernKey)
	}},
	{"goals", StrategyUnionList, func(d *CustomerInfo, in CustomerInfo) {
		d.Goals = UnionList(d.Goals, in.Goals, normalizeKey)
	}},
}

// FieldStrategies lists the merge strategy for every mergeable field.
// Nested customer fields are keyed as "customerInfo.<field>".
func FieldStrategies() map[string]Strategy {
	out := make(map[string]Strategy, len(stateFields)+len(customerFields))
	for _, f := range stateFields {
		out[f.name] = f.strategy
	}
	for _, f := range customerFields {
		out["customerInfo."+f.name] = f.strategy
	}
	return out
}

// Apply merges a partial update into the current state. It performs no I/O
// and never mutates current.
func Apply(current State, u Update) (State, error) {
	if u.Empty() {
		return current, nil
	}
	if current.Status.Terminal() {
		return current, ErrSessionClosed
	}
	if u.Phase != "" && !u.Phase.Valid() {
		return current, fmt.Errorf("%w: unknown phase %q", ErrInvalidUpdate, u.Phase)
	}

	next := current.Clone()
	for _, f := range stateFields {
		f.merge(&next, u)
	}
	if !u.At.IsZero() && u.At.After(next.LastUpdateTime) {
		next.LastUpdateTime = u.At.UTC()
	}
	return next, nil
}

// MergeCustomerInfo combines two customer records field by field.
func MergeCustomerInfo(current, in CustomerInfo) CustomerInfo {
	out := current.clone()
	for _, f := range customerFields {
		f.merge(&out, in)
	}
	return out
}

// OverwriteScalar returns next unless it is the zero value.
func OverwriteScalar[T comparable](current, next T) T {
	var zero T
	if next == zero {
		return current
	}
	return next
}

// OverwriteString is OverwriteScalar that also treats whitespace as absent.
func OverwriteString(current, next string) string {
	next = strings.TrimSpace(next)
	if next == "" {
		return current
	}
	return next
}

// UnionList appends the items of next whose key is not already present,
// preserving first-seen order.
func UnionList[T any](current, next []T, key func(T) string) []T {
	if len(next) == 0 {
		return current
	}
	seen := make(map[string]struct{}, len(current)+len(next))
	out := make([]T, 0, len(current)+len(next))
	for _, item := range current {
		seen[key(item)] = struct{}{}
		out = append(out, item)
	}
	for _, item := range next {
		k := key(item)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, item)
	}
	return out
}

// AppendLog appends every entry of next to current.
func AppendLog[T any](current, next []T) []T {
	if len(next) == 0 {
		return current
	}
	out := make([]T, 0, len(current)+len(next))
	out = append(out, current...)
	return append(out, next...)
}

// ReplaceIfPresent returns next when non-nil, current otherwise.
func ReplaceIfPresent[T any](current, next *T) *T {
	if next == nil {
		return current
	}
	v := *next
	return &v
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func concernKey(c Concern) string {
	return normalizeKey(c.Text)
}

// finished executions must end no earlier than they started
func normalizeExecutions(in []AgentExecution) []AgentExecution {
	if len(in) == 0 {
		return in
	}
	out := make([]AgentExecution, len(in))
	for i, e := range in {
		if e.Status.Finished() && e.EndTime.Before(e.StartTime) {
			e.EndTime = e.StartTime
		}
		out[i] = e
	}
	return out
}
