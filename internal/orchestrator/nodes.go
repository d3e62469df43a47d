package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/wolfman30/leadflow/internal/collection"
	"github.com/wolfman30/leadflow/internal/session"
)

// Node names a unit of work in the conversation graph. Executions are
// recorded under these names.
type Node string

const (
	NodeGreeting          Node = "greeting"
	NodeDiscovery         Node = "discovery"
	NodeContactCollection Node = "contact_collection"
	NodeQualification     Node = "qualification"
	NodeRecommendation    Node = "recommendation"
	NodeClosing           Node = "closing"
	NodeFollowUp          Node = "follow_up"
	// NodeFarewell is only a prompt kind; follow_up asks for it.
	NodeFarewell Node = "farewell"
)

// maxSteps bounds the nodes run for a single inbound message.
const maxSteps = 8

var farewellRE = regexp.MustCompile(`(?i)\b(bye|goodbye|good bye|that'?s all|that is all|nothing else|no,? thanks|no thank you|have a (good|great|nice) (day|one|evening|weekend)|talk soon)\b`)

// turn is the per-message context a node reads. state is the snapshot
// before the node runs; nodes never mutate it.
type turn struct {
	state   session.State
	text    string
	retries int
}

// step is a node's outcome. next is empty when the node waits for the user.
type step struct {
	update     session.Update
	reply      string
	directives []collection.Directive
	next       Node
}

type nodeFunc func(ctx context.Context, t *turn) (step, error)

func (e *Engine) nodes() map[Node]nodeFunc {
	return map[Node]nodeFunc{
		NodeGreeting:          e.greeting,
		NodeDiscovery:         e.discovery,
		NodeContactCollection: e.contactCollection,
		NodeQualification:     e.qualify,
		NodeRecommendation:    e.recommend,
		NodeClosing:           e.closing,
		NodeFollowUp:          e.followUp,
	}
}

// route picks the first node for an inbound message.
func route(st session.State) Node {
	if st.UIState.Active() {
		return NodeContactCollection
	}
	switch st.Phase {
	case session.PhaseDiscovery:
		return NodeDiscovery
	case session.PhaseQualification:
		return NodeQualification
	case session.PhaseRecommendation:
		return NodeRecommendation
	case session.PhaseClosing:
		return NodeClosing
	case session.PhaseFollowUp:
		return NodeFollowUp
	default:
		return NodeGreeting
	}
}

func (e *Engine) greeting(ctx context.Context, t *turn) (step, error) {
	facts := Extract(t.text)
	reply, err := e.reply(ctx, t, NodeGreeting, session.MergeCustomerInfo(t.state.CustomerInfo, facts))
	if err != nil {
		return step{}, err
	}
	return step{
		update: session.Update{CustomerInfo: &facts, Phase: session.PhaseDiscovery},
		reply:  reply,
	}, nil
}

func (e *Engine) discovery(ctx context.Context, t *turn) (step, error) {
	facts := Extract(t.text)
	info := session.MergeCustomerInfo(t.state.CustomerInfo, facts)

	switch {
	case info.HasBusinessContext() && !info.HasContact():
		return step{
			update: session.Update{CustomerInfo: &facts},
			next:   NodeContactCollection,
		}, nil
	case info.HasBusinessContext():
		return step{
			update: session.Update{CustomerInfo: &facts, Phase: session.PhaseQualification},
			next:   NodeQualification,
		}, nil
	}

	reply, err := e.reply(ctx, t, NodeDiscovery, info)
	if err != nil {
		return step{}, err
	}
	return step{update: session.Update{CustomerInfo: &facts}, reply: reply}, nil
}

func (e *Engine) contactCollection(_ context.Context, t *turn) (step, error) {
	res, err := e.collector.Step(t.state.UIState, t.text)
	if err != nil {
		return step{}, err
	}
	s := step{
		update:     session.Update{UIState: res.State},
		reply:      res.Reply,
		directives: prefill(res.Directives, t.state.CustomerInfo),
	}
	if res.Captured.Email != "" || res.Captured.Phone != "" {
		captured := res.Captured
		s.update.CustomerInfo = &captured
	}
	if res.State == session.UICompleted {
		s.update.Phase = session.PhaseQualification
		s.next = NodeQualification
	}
	return s, nil
}

// prefill offers an already known value as the widget placeholder. The
// protocol still asks for the field.
func prefill(ds []collection.Directive, info session.CustomerInfo) []collection.Directive {
	for i, d := range ds {
		show, ok := d.(collection.ShowInput)
		if !ok {
			continue
		}
		switch {
		case show.Field == collection.FieldEmail && info.Email != "":
			show.Placeholder = info.Email
		case show.Field == collection.FieldPhone && info.Phone != "":
			show.Placeholder = info.Phone
		default:
			continue
		}
		ds[i] = show
	}
	return ds
}

func (e *Engine) qualify(_ context.Context, t *turn) (step, error) {
	q := e.scorer.Score(t.state)
	return step{
		update: session.Update{Qualification: &q, Phase: session.PhaseRecommendation},
		next:   NodeRecommendation,
	}, nil
}

func (e *Engine) recommend(ctx context.Context, t *turn) (step, error) {
	reply, err := e.reply(ctx, t, NodeRecommendation, t.state.CustomerInfo)
	if err != nil {
		return step{}, err
	}
	return step{update: session.Update{Phase: session.PhaseClosing}, reply: reply}, nil
}

func (e *Engine) closing(ctx context.Context, t *turn) (step, error) {
	reply, err := e.reply(ctx, t, NodeClosing, t.state.CustomerInfo)
	if err != nil {
		return step{}, err
	}
	pending := true
	return step{
		update: session.Update{Phase: session.PhaseFollowUp, PendingNotification: &pending},
		reply:  reply,
	}, nil
}

func (e *Engine) followUp(ctx context.Context, t *turn) (step, error) {
	facts := Extract(t.text)
	if raisesNewConcern(t.state.CustomerInfo, facts) {
		return step{update: session.Update{Phase: session.PhaseDiscovery}, next: NodeDiscovery}, nil
	}
	if farewellRE.MatchString(t.text) {
		reply, err := e.reply(ctx, t, NodeFarewell, t.state.CustomerInfo)
		if err != nil {
			return step{}, err
		}
		return step{update: session.Update{Status: session.StatusCompleted}, reply: reply}, nil
	}
	reply, err := e.reply(ctx, t, NodeFollowUp, t.state.CustomerInfo)
	if err != nil {
		return step{}, err
	}
	return step{reply: reply}, nil
}

func raisesNewConcern(known, facts session.CustomerInfo) bool {
	merged := session.MergeCustomerInfo(known, facts)
	return len(merged.CurrentChallenges) > len(known.CurrentChallenges) ||
		len(merged.PainPoints) > len(known.PainPoints)
}

// reply asks the responder, retrying up to MaxRetries times. Retries are
// counted on the turn so the execution record carries them.
func (e *Engine) reply(ctx context.Context, t *turn, node Node, info session.CustomerInfo) (string, error) {
	p := Prompt{
		Node:          node,
		CustomerInfo:  info,
		Qualification: t.state.Qualification,
		Transcript:    t.state.Messages,
	}
	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			t.retries++
			if err := sleepCtx(ctx, e.retryBackoff*time.Duration(attempt)); err != nil {
				return "", fmt.Errorf("orchestrator: %s reply: %w", node, err)
			}
		}
		text, err := e.responder.Reply(ctx, p)
		if err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text), nil
		}
		if err == nil {
			err = ErrEmptyReply
		}
		lastErr = err
		e.logger.Warn("responder failed", "node", node, "attempt", attempt+1, "error", err, "session_id", t.state.SessionID)
	}
	return "", fmt.Errorf("orchestrator: %s reply after %d attempt(s): %w", node, e.maxRetries+1, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
