package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/leadflow/internal/llm"
	"github.com/wolfman30/leadflow/internal/session"
)

// Prompt is what a node hands the responder.
type Prompt struct {
	Node          Node
	CustomerInfo  session.CustomerInfo
	Qualification *session.Qualification
	// Transcript is the conversation so far, newest last.
	Transcript []session.Message
}

// Responder produces the agent's reply for one node.
type Responder interface {
	Reply(ctx context.Context, p Prompt) (string, error)
}

// TemplateResponder answers with canned copy per node. It never fails.
type TemplateResponder struct{}

func (TemplateResponder) Reply(_ context.Context, p Prompt) (string, error) {
	name := firstName(p.CustomerInfo.Name)
	switch p.Node {
	case NodeGreeting:
		if name != "" {
			return fmt.Sprintf("Hi %s, thanks for reaching out! What's the biggest challenge your team is dealing with right now?", name), nil
		}
		return "Hi there, thanks for reaching out! What's the biggest challenge your team is dealing with right now?", nil
	case NodeDiscovery:
		if p.CustomerInfo.Company == "" {
			return "Tell me a bit more about your company and what isn't working the way you'd like today.", nil
		}
		return fmt.Sprintf("Got it. What problems is %s running into that made you start looking for a solution?", p.CustomerInfo.Company), nil
	case NodeRecommendation:
		return recommendationCopy(p.Qualification), nil
	case NodeClosing:
		return "Great. I'm passing your details to our sales team now, and someone will be in touch shortly. Anything else I can help with in the meantime?", nil
	case NodeFollowUp:
		return "Happy to help. Is there anything else about your setup you'd like us to know before the call?", nil
	case NodeFarewell:
		if name != "" {
			return fmt.Sprintf("Thanks %s, talk soon!", name), nil
		}
		return "Thanks for chatting, talk soon!", nil
	}
	return "", fmt.Errorf("orchestrator: no template for node %q", p.Node)
}

func recommendationCopy(q *session.Qualification) string {
	tier := session.TierNurture
	if q != nil {
		tier = q.Tier
	}
	switch tier {
	case session.TierHot:
		return "Based on what you've shared, this is a strong fit. I'd recommend a demo with a solutions engineer this week. Does that work for you?"
	case session.TierWarm:
		return "This sounds like a good fit. I'd suggest a discovery call with our team to map out a plan. Would that be useful?"
	case session.TierCold:
		return "Thanks for the detail. I can send over a few case studies similar to your situation. Would you like those?"
	case session.TierDisqualified:
		return "Thanks for sharing. We may not be the right fit today, but I can send some resources that might help. Want me to?"
	default:
		return "Thanks for sharing. I'll send some helpful material so you can explore at your own pace. Sound good?"
	}
}

func firstName(name string) string {
	if f := strings.Fields(name); len(f) > 0 {
		return f[0]
	}
	return ""
}

const defaultSystemPrompt = `You are a friendly B2B sales development assistant chatting with a prospect on a website.
Keep replies under three sentences. Ask at most one question per reply. Never invent prices or commitments.`

var nodeInstructions = map[Node]string{
	NodeGreeting:       "Greet the prospect and ask what challenge brought them here.",
	NodeDiscovery:      "Ask one discovery question about their current challenges, team or goals.",
	NodeRecommendation: "Recommend a next step that fits the qualification tier. Hot: demo this week. Warm: discovery call. Cold: case studies. Nurture or disqualified: self-serve resources.",
	NodeClosing:        "Confirm that the sales team will follow up and ask whether there is anything else.",
	NodeFollowUp:       "Answer briefly and ask whether there is anything else they want the team to know.",
	NodeFarewell:       "Say a short goodbye.",
}

// ErrEmptyReply is returned when a provider answers with no text.
var ErrEmptyReply = errors.New("orchestrator: empty reply")

// LLMResponder generates replies through a chat-completion provider.
type LLMResponder struct {
	client      llm.Client
	system      string
	maxTokens   int32
	timeout     time.Duration
	maxMessages int
}

// LLMResponderOption configures an LLMResponder.
type LLMResponderOption func(*LLMResponder)

// WithSystemPrompt replaces the persona prompt.
func WithSystemPrompt(s string) LLMResponderOption {
	return func(r *LLMResponder) {
		if strings.TrimSpace(s) != "" {
			r.system = s
		}
	}
}

// WithReplyTimeout bounds each provider call.
func WithReplyTimeout(d time.Duration) LLMResponderOption {
	return func(r *LLMResponder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewLLMResponder panics on a nil client.
func NewLLMResponder(client llm.Client, opts ...LLMResponderOption) *LLMResponder {
	if client == nil {
		panic("orchestrator: llm client cannot be nil")
	}
	r := &LLMResponder{
		client:      client,
		system:      defaultSystemPrompt,
		maxTokens:   300,
		timeout:     20 * time.Second,
		maxMessages: 20,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *LLMResponder) Reply(ctx context.Context, p Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.client.Complete(ctx, r.request(p))
	if err != nil {
		return "", fmt.Errorf("orchestrator: llm reply for %s: %w", p.Node, err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

func (r *LLMResponder) request(p Prompt) llm.Request {
	system := []string{r.system}
	if instr := nodeInstructions[p.Node]; instr != "" {
		system = append(system, "Current step: "+instr)
	}
	if facts := describeFacts(p.CustomerInfo, p.Qualification); facts != "" {
		system = append(system, "Known facts:\n"+facts)
	}

	transcript := p.Transcript
	if len(transcript) > r.maxMessages {
		transcript = transcript[len(transcript)-r.maxMessages:]
	}
	msgs := make([]llm.Message, 0, len(transcript))
	for _, m := range transcript {
		role := llm.RoleUser
		if m.Speaker == session.SpeakerAgent {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Text})
	}
	// providers expect the conversation to open with the user
	for len(msgs) > 0 && msgs[0].Role != llm.RoleUser {
		msgs = msgs[1:]
	}
	return llm.Request{
		System:      system,
		Messages:    msgs,
		MaxTokens:   r.maxTokens,
		Temperature: 0.4,
	}
}

func describeFacts(info session.CustomerInfo, q *session.Qualification) string {
	var b strings.Builder
	line := func(label, v string) {
		if v != "" {
			fmt.Fprintf(&b, "- %s: %s\n", label, v)
		}
	}
	line("name", info.Name)
	line("company", info.Company)
	line("industry", info.Industry)
	line("role", info.Role)
	for _, c := range info.CurrentChallenges {
		line("challenge", c.Text)
	}
	if q != nil {
		line("tier", string(q.Tier))
		line("next action", q.NextAction)
	}
	return b.String()
}
