// Package orchestrator runs the sales conversation: it routes each inbound
// message through the node graph, merges node output into the session and
// hands qualified leads off to the sales side.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/leadflow/internal/collection"
	"github.com/wolfman30/leadflow/internal/monitoring"
	"github.com/wolfman30/leadflow/internal/notify"
	"github.com/wolfman30/leadflow/internal/qualification"
	"github.com/wolfman30/leadflow/internal/session"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// ApologyReply is sent when a node fails.
const ApologyReply = "Sorry, something went wrong on our side. Could you say that again?"

// ErrEmptyMessage is returned for inbound messages with no text.
var ErrEmptyMessage = errors.New("orchestrator: empty message")

// Inbound is one user message.
type Inbound struct {
	SessionID string    `json:"sessionId"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Outbound is the engine's answer to one inbound message. Directives are
// applied by the presentation layer after ReplyText is shown.
type Outbound struct {
	SessionID     string                 `json:"sessionId"`
	CorrelationID string                 `json:"correlationId"`
	ReplyText     string                 `json:"replyText"`
	Directives    []collection.Directive `json:"uiDirectives"`
	Phase         session.Phase          `json:"phase"`
	UIState       session.UIState        `json:"uiState"`
	Status        session.Status         `json:"conversationStatus"`
	// Inert is set when the session was already closed and nothing ran.
	Inert bool `json:"inert,omitempty"`
}

// Config wires an Engine.
type Config struct {
	Store     session.Store
	Scorer    *qualification.Scorer
	Collector *collection.Machine
	Responder Responder
	Notifier  notify.Notifier
	Monitor   *monitoring.Monitor
	Logger    *logging.Logger
	Tracer    trace.Tracer

	// MaxRetries is the number of extra responder attempts per node.
	MaxRetries   int
	RetryBackoff time.Duration
	Now          func() time.Time
}

// Engine is safe for concurrent use. Messages for the same session are
// processed one at a time, in arrival order.
type Engine struct {
	store        session.Store
	scorer       *qualification.Scorer
	collector    *collection.Machine
	responder    Responder
	notifier     notify.Notifier
	monitor      *monitoring.Monitor
	logger       *logging.Logger
	tracer       trace.Tracer
	maxRetries   int
	retryBackoff time.Duration
	now          func() time.Time

	locks *keyedMutex
	graph map[Node]nodeFunc
}

// New builds an Engine. A store is mandatory; everything else has a default.
func New(cfg Config) *Engine {
	if cfg.Store == nil {
		panic("orchestrator: session store cannot be nil")
	}
	if cfg.Scorer == nil {
		cfg.Scorer = qualification.NewScorer(qualification.DefaultMultipliers())
	}
	if cfg.Collector == nil {
		cfg.Collector = collection.NewMachine(collection.DefaultPrompts())
	}
	if cfg.Responder == nil {
		cfg.Responder = TemplateResponder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("leadflow.internal.orchestrator")
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	e := &Engine{
		store:        cfg.Store,
		scorer:       cfg.Scorer,
		collector:    cfg.Collector,
		responder:    cfg.Responder,
		notifier:     cfg.Notifier,
		monitor:      cfg.Monitor,
		logger:       cfg.Logger.WithComponent("orchestrator"),
		tracer:       cfg.Tracer,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		now:          cfg.Now,
		locks:        newKeyedMutex(),
	}
	e.graph = e.nodes()
	return e
}

// Handle processes one inbound message to a quiescent point and persists the
// result. Node failures are recovered into the reply; only store failures
// and invalid input are returned as errors.
func (e *Engine) Handle(ctx context.Context, in Inbound) (Outbound, error) {
	in.SessionID = strings.TrimSpace(in.SessionID)
	if in.SessionID == "" {
		return Outbound{}, fmt.Errorf("orchestrator: session id required")
	}
	if strings.TrimSpace(in.Text) == "" {
		return Outbound{}, ErrEmptyMessage
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = e.now()
	}

	ctx, span := e.tracer.Start(ctx, "orchestrator.handle", trace.WithAttributes(
		attribute.String("session.id", in.SessionID),
	))
	defer span.End()

	unlock := e.locks.Lock(in.SessionID)
	defer unlock()

	st, created, err := e.loadOrCreate(ctx, in.SessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return Outbound{}, err
	}
	span.SetAttributes(attribute.String("correlation.id", st.CorrelationID))
	logger := e.logger.WithSession(st.SessionID, st.CorrelationID)

	if st.Status.Terminal() {
		logger.Debug("message for closed session ignored", "status", st.Status)
		return outbound(st, "", nil, true), nil
	}
	if created {
		e.monitor.SessionStarted(st.SessionID, st.CorrelationID)
	}

	st, err = session.Apply(st, session.Update{
		At:       in.Timestamp,
		Messages: []session.Message{{Speaker: session.SpeakerUser, Text: in.Text, Timestamp: in.Timestamp.UTC()}},
	})
	if err != nil {
		return Outbound{}, fmt.Errorf("orchestrator: append message: %w", err)
	}

	st, replies, directives, closeAs := e.traverse(ctx, st, in.Text, logger)
	st = e.handOff(ctx, st, logger)
	st = e.close(st, closeAs, logger)

	reply := strings.Join(replies, " ")
	if err := e.store.Save(ctx, st); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		return Outbound{}, fmt.Errorf("orchestrator: save session: %w", err)
	}
	if st.Status.Terminal() {
		e.monitor.SessionEnded(st.SessionID, st.CorrelationID, st.Status)
	}

	span.SetAttributes(
		attribute.String("session.phase", string(st.Phase)),
		attribute.String("session.ui_state", string(st.UIState)),
	)
	logger.Info("message handled", "phase", st.Phase, "ui_state", st.UIState, "status", st.Status, "directives", len(directives))
	return outbound(st, reply, directives, false), nil
}

func (e *Engine) loadOrCreate(ctx context.Context, sessionID string) (session.State, bool, error) {
	st, err := e.store.Load(ctx, sessionID)
	if err == nil {
		return st, false, nil
	}
	if !errors.Is(err, session.ErrNotFound) {
		return session.State{}, false, fmt.Errorf("orchestrator: load session: %w", err)
	}
	return session.New(sessionID, e.now()), true, nil
}

// traverse runs nodes from the routed entry point until one waits for the
// user. A failing node stops the traversal; updates from nodes that already
// finished this turn are kept. A terminal status requested by a node is
// returned instead of applied, so the hand-off runs on an open session.
func (e *Engine) traverse(ctx context.Context, st session.State, text string, logger *logging.Logger) (session.State, []string, []collection.Directive, session.Status) {
	var (
		replies    []string
		directives []collection.Directive
		closeAs    session.Status
	)
	node := route(st)
	for steps := 0; node != ""; steps++ {
		if steps == maxSteps {
			logger.Warn("node traversal limit reached", "node", node)
			break
		}
		t := &turn{state: st, text: text}
		start := e.now()
		res, err := e.run(ctx, node, t)
		exec := session.AgentExecution{
			Agent:      string(node),
			StartTime:  start.UTC(),
			EndTime:    e.now().UTC(),
			Status:     session.ExecutionCompleted,
			RetryCount: t.retries,
		}

		var next session.State
		if err == nil {
			u := res.update
			if u.Status.Terminal() {
				closeAs, u.Status = u.Status, ""
			}
			u.At = exec.EndTime
			u.AgentExecutions = append(u.AgentExecutions, exec)
			if res.reply != "" {
				u.Messages = append(u.Messages, agentMessage(res.reply, exec.EndTime))
			}
			next, err = session.Apply(st, u)
		}
		if err != nil {
			exec.Status = session.ExecutionFailed
			exec.Error = err.Error()
			entry := session.ErrorEntry{Timestamp: exec.EndTime, Component: string(node), Message: err.Error(), Recovered: false}
			if failed, applyErr := session.Apply(st, session.Update{
				At:              exec.EndTime,
				Messages:        []session.Message{agentMessage(ApologyReply, exec.EndTime)},
				AgentExecutions: []session.AgentExecution{exec},
				Errors:          []session.ErrorEntry{entry},
			}); applyErr == nil {
				st = failed
			}
			e.monitor.RecordExecution(st.SessionID, st.CorrelationID, exec)
			e.monitor.RecordError(st.SessionID, st.CorrelationID, entry)
			logger.Error("node failed", "node", node, "error", err, "retries", exec.RetryCount)
			replies = append(replies, ApologyReply)
			break
		}

		e.monitor.RecordExecution(st.SessionID, st.CorrelationID, exec)
		e.monitor.RecordTransition(st.SessionID, st.CorrelationID, st.Phase, next.Phase)
		st = next
		if res.reply != "" {
			replies = append(replies, res.reply)
		}
		directives = append(directives, res.directives...)
		node = res.next
	}
	return st, replies, directives, closeAs
}

// close applies a terminal status. A session with an undelivered lead stays
// active so a later message can retry the hand-off.
func (e *Engine) close(st session.State, status session.Status, logger *logging.Logger) session.State {
	if status == "" {
		return st
	}
	if e.awaitingHandOff(st) {
		logger.Warn("session kept open until the lead is handed off", "status", status)
		return st
	}
	next, err := session.Apply(st, session.Update{At: e.now(), Status: status})
	if err != nil {
		logger.Warn("failed to close session", "error", err)
		return st
	}
	return next
}

// run executes one node, converting a panic into an error.
func (e *Engine) run(ctx context.Context, node Node, t *turn) (res step, err error) {
	fn, ok := e.graph[node]
	if !ok {
		return step{}, fmt.Errorf("orchestrator: unknown node %q", node)
	}
	defer func() {
		if r := recover(); r != nil {
			res = step{}
			err = fmt.Errorf("orchestrator: node %s panicked: %v", node, r)
		}
	}()
	return fn(ctx, t)
}

// handOff delivers a pending notification. Delivery failures are recorded
// as recovered errors and retried on the next message.
func (e *Engine) handOff(ctx context.Context, st session.State, logger *logging.Logger) session.State {
	if !e.awaitingHandOff(st) {
		return st
	}
	rec := notify.Record{
		SessionID:              st.SessionID,
		CorrelationID:          st.CorrelationID,
		CustomerInfo:           st.CustomerInfo,
		Qualification:          *st.Qualification,
		ConversationHighlights: Highlights(st, MaxHighlights),
		CreatedAt:              e.now().UTC(),
	}

	now := e.now()
	if err := e.notifier.Notify(ctx, rec); err != nil {
		entry := session.ErrorEntry{Timestamp: now.UTC(), Component: "notify", Message: err.Error(), Recovered: true}
		e.monitor.RecordError(st.SessionID, st.CorrelationID, entry)
		logger.Warn("lead hand-off failed", "error", err)
		if next, applyErr := session.Apply(st, session.Update{At: now, Errors: []session.ErrorEntry{entry}}); applyErr == nil {
			return next
		}
		return st
	}

	cleared := false
	notifiedAt := now.UTC()
	next, err := session.Apply(st, session.Update{At: now, PendingNotification: &cleared, NotifiedAt: &notifiedAt})
	if err != nil {
		logger.Warn("failed to mark lead notified", "error", err)
		return st
	}
	e.monitor.RecordConversion(st.SessionID, st.CorrelationID, st.Qualification.Tier)
	logger.Info("lead handed off", "tier", st.Qualification.Tier, "score", st.Qualification.TotalScore)
	return next
}

func (e *Engine) awaitingHandOff(st session.State) bool {
	return st.PendingNotification && e.notifier != nil && st.Qualification != nil
}

func agentMessage(text string, at time.Time) session.Message {
	return session.Message{Speaker: session.SpeakerAgent, Text: text, Timestamp: at.UTC()}
}

// Session returns the stored state for sessionID.
func (e *Engine) Session(ctx context.Context, sessionID string) (session.State, error) {
	st, err := e.store.Load(ctx, sessionID)
	if err != nil {
		return session.State{}, fmt.Errorf("orchestrator: load session: %w", err)
	}
	return st, nil
}

// Abandon closes an active session without completing it. Closing an
// already closed session is a no-op.
func (e *Engine) Abandon(ctx context.Context, sessionID string) (session.State, error) {
	unlock := e.locks.Lock(sessionID)
	defer unlock()

	st, err := e.store.Load(ctx, sessionID)
	if err != nil {
		return session.State{}, fmt.Errorf("orchestrator: load session: %w", err)
	}
	if st.Status.Terminal() {
		return st, nil
	}
	logger := e.logger.WithSession(st.SessionID, st.CorrelationID)
	if st = e.handOff(ctx, st, logger); e.awaitingHandOff(st) {
		logger.Warn("abandoning session with an undelivered lead")
	}
	st, err = session.Apply(st, session.Update{At: e.now(), Status: session.StatusAbandoned})
	if err != nil {
		return session.State{}, fmt.Errorf("orchestrator: abandon: %w", err)
	}
	if err := e.store.Save(ctx, st); err != nil {
		return session.State{}, fmt.Errorf("orchestrator: save session: %w", err)
	}
	e.monitor.SessionEnded(st.SessionID, st.CorrelationID, st.Status)
	logger.Info("session abandoned")
	return st, nil
}

func outbound(st session.State, reply string, directives []collection.Directive, inert bool) Outbound {
	if directives == nil {
		directives = []collection.Directive{}
	}
	return Outbound{
		SessionID:     st.SessionID,
		CorrelationID: st.CorrelationID,
		ReplyText:     reply,
		Directives:    directives,
		Phase:         st.Phase,
		UIState:       st.UIState,
		Status:        st.Status,
		Inert:         inert,
	}
}
