// Package collection implements the contact-collection protocol: the agent
// asks for a field, waits for a valid answer, confirms it, then moves on.
// Input widgets are only ever shown through directives the consumer applies
// after the accompanying reply has been delivered.
package collection

import (
	"errors"
	"fmt"

	"github.com/wolfman30/leadflow/internal/session"
)

// ErrIllegalTransition is returned for a move not in the transition table.
var ErrIllegalTransition = errors.New("collection: illegal transition")

var transitions = map[session.UIState][]session.UIState{
	session.UIIdle:            {session.UIAskingEmail},
	session.UIAskingEmail:     {session.UIWaitingEmail},
	session.UIWaitingEmail:    {session.UIWaitingEmail, session.UIConfirmingEmail},
	session.UIConfirmingEmail: {session.UIAskingPhone},
	session.UIAskingPhone:     {session.UIWaitingPhone},
	session.UIWaitingPhone:    {session.UIWaitingPhone, session.UIConfirmingPhone},
	session.UIConfirmingPhone: {session.UICompleted},
}

// CanTransition reports whether from → to is in the table.
func CanTransition(from, to session.UIState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Prompts are the agent lines spoken by the machine. %s is replaced by the
// captured value in the confirmation lines.
type Prompts struct {
	AskEmail     string
	RetryEmail   string
	ConfirmEmail string
	AskPhone     string
	RetryPhone   string
	ConfirmPhone string
}

// DefaultPrompts returns the built-in wording.
func DefaultPrompts() Prompts {
	return Prompts{
		AskEmail:     "So I can send you a summary, what's the best email address to reach you?",
		RetryEmail:   "I didn't catch a valid email address. Could you type it in the field below?",
		ConfirmEmail: "Thanks, I have %s.",
		AskPhone:     "And what's the best phone number for a quick follow-up?",
		RetryPhone:   "That doesn't look like a full phone number. Please include the area code.",
		ConfirmPhone: "Perfect, I have %s. Thanks!",
	}
}

// Result is the outcome of one Step.
type Result struct {
	State session.UIState
	// Path lists every state entered during the step, in order.
	Path       []session.UIState
	Reply      string
	Directives []Directive
	// Captured holds only the field captured this step, if any.
	Captured session.CustomerInfo
}

// Machine runs the collection protocol. It is stateless; the current
// UIState lives in the session.
type Machine struct {
	prompts Prompts
}

// NewMachine returns a machine with the given prompts. Empty prompts fall
// back to the defaults.
func NewMachine(p Prompts) *Machine {
	def := DefaultPrompts()
	fill := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
	}
	fill(&p.AskEmail, def.AskEmail)
	fill(&p.RetryEmail, def.RetryEmail)
	fill(&p.ConfirmEmail, def.ConfirmEmail)
	fill(&p.AskPhone, def.AskPhone)
	fill(&p.RetryPhone, def.RetryPhone)
	fill(&p.ConfirmPhone, def.ConfirmPhone)
	return &Machine{prompts: p}
}

// Step advances the machine from state using the inbound user text until it
// reaches a waiting state or completed. At most one field is captured per
// step.
func (m *Machine) Step(state session.UIState, inbound string) (Result, error) {
	if state == "" {
		state = session.UIIdle
	}
	w := &walker{state: state}

	switch state {
	case session.UIIdle, session.UIAskingEmail:
		if state == session.UIIdle {
			w.move(session.UIAskingEmail)
		}
		w.say(m.prompts.AskEmail)
		w.directive(ShowInput{Field: FieldEmail, Placeholder: "you@company.com"})
		w.move(session.UIWaitingEmail)

	case session.UIWaitingEmail:
		email, ok := MatchEmail(inbound)
		if !ok {
			w.move(session.UIWaitingEmail)
			w.say(m.prompts.RetryEmail)
			break
		}
		w.move(session.UIConfirmingEmail)
		w.captured.Email = email
		m.confirmEmail(w, email)

	case session.UIConfirmingEmail:
		// resumed after a crash between confirm and ask
		m.confirmEmail(w, "")

	case session.UIAskingPhone:
		w.say(m.prompts.AskPhone)
		w.directive(ShowInput{Field: FieldPhone, Placeholder: "(555) 123-4567"})
		w.move(session.UIWaitingPhone)

	case session.UIWaitingPhone:
		phone, ok := MatchPhone(inbound)
		if !ok {
			w.move(session.UIWaitingPhone)
			w.say(m.prompts.RetryPhone)
			break
		}
		w.move(session.UIConfirmingPhone)
		w.captured.Phone = phone
		w.say(fmt.Sprintf(m.prompts.ConfirmPhone, phone))
		w.directive(HideInput{Field: FieldPhone})
		w.move(session.UICompleted)

	case session.UIConfirmingPhone:
		w.directive(HideInput{Field: FieldPhone})
		w.move(session.UICompleted)

	case session.UICompleted:
		// nothing left to collect

	default:
		return Result{}, fmt.Errorf("collection: unknown state %q", state)
	}

	if w.err != nil {
		return Result{}, w.err
	}
	return w.result(), nil
}

func (m *Machine) confirmEmail(w *walker, email string) {
	if email != "" {
		w.say(fmt.Sprintf(m.prompts.ConfirmEmail, email))
	}
	w.directive(HideInput{Field: FieldEmail})
	w.move(session.UIAskingPhone)
	w.say(m.prompts.AskPhone)
	w.directive(ShowInput{Field: FieldPhone, Placeholder: "(555) 123-4567"})
	w.move(session.UIWaitingPhone)
}

// walker accumulates one step. The first illegal move sticks in err.
type walker struct {
	state      session.UIState
	path       []session.UIState
	replies    []string
	directives []Directive
	captured   session.CustomerInfo
	err        error
}

func (w *walker) move(to session.UIState) {
	if w.err != nil {
		return
	}
	if !CanTransition(w.state, to) {
		w.err = fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, w.state, to)
		return
	}
	w.state = to
	w.path = append(w.path, to)
}

func (w *walker) say(line string) {
	if line != "" {
		w.replies = append(w.replies, line)
	}
}

func (w *walker) directive(d Directive) {
	w.directives = append(w.directives, d)
}

func (w *walker) result() Result {
	reply := ""
	for i, r := range w.replies {
		if i > 0 {
			reply += " "
		}
		reply += r
	}
	return Result{
		State:      w.state,
		Path:       w.path,
		Reply:      reply,
		Directives: w.directives,
		Captured:   w.captured,
	}
}
