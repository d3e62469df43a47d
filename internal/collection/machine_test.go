package collection

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/leadflow/internal/session"
)

func TestStepFullProtocol(t *testing.T) {
	m := NewMachine(Prompts{})

	res, err := m.Step(session.UIIdle, "sure")
	require.NoError(t, err)
	assert.Equal(t, session.UIWaitingEmail, res.State)
	assert.Equal(t, []session.UIState{session.UIAskingEmail, session.UIWaitingEmail}, res.Path)
	assert.Equal(t, DefaultPrompts().AskEmail, res.Reply)
	require.Len(t, res.Directives, 1)
	assert.Equal(t, ShowInput{Field: FieldEmail, Placeholder: "you@company.com"}, res.Directives[0])

	res, err = m.Step(res.State, "you can reach me at Jane.Doe@Example.COM thanks")
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@example.com", res.Captured.Email)
	assert.Empty(t, res.Captured.Phone)
	assert.Equal(t, session.UIWaitingPhone, res.State)
	assert.Equal(t, []session.UIState{session.UIConfirmingEmail, session.UIAskingPhone, session.UIWaitingPhone}, res.Path)
	require.Len(t, res.Directives, 2)
	assert.Equal(t, HideInput{Field: FieldEmail}, res.Directives[0])
	assert.Equal(t, FieldPhone, res.Directives[1].Target())
	assert.Contains(t, res.Reply, "jane.doe@example.com")

	res, err = m.Step(res.State, "call me at (555) 123-4567")
	require.NoError(t, err)
	assert.Equal(t, "(555) 123-4567", res.Captured.Phone)
	assert.Equal(t, session.UICompleted, res.State)
	assert.Equal(t, []session.UIState{session.UIConfirmingPhone, session.UICompleted}, res.Path)
	require.Len(t, res.Directives, 1)
	assert.Equal(t, HideInput{Field: FieldPhone}, res.Directives[0])
}

func TestStepRejectsShortPhone(t *testing.T) {
	m := NewMachine(Prompts{})
	res, err := m.Step(session.UIWaitingPhone, "call me at 555")
	require.NoError(t, err)
	assert.Equal(t, session.UIWaitingPhone, res.State)
	assert.Empty(t, res.Captured.Phone)
	assert.Empty(t, res.Directives)
	assert.Equal(t, DefaultPrompts().RetryPhone, res.Reply)
}

func TestStepWaitingEmailReprompts(t *testing.T) {
	m := NewMachine(Prompts{RetryEmail: "again please"})
	res, err := m.Step(session.UIWaitingEmail, "what do you need it for?")
	require.NoError(t, err)
	assert.Equal(t, session.UIWaitingEmail, res.State)
	assert.Equal(t, []session.UIState{session.UIWaitingEmail}, res.Path)
	assert.Equal(t, "again please", res.Reply)
	assert.Empty(t, res.Directives)
}

func TestStepCapturesOneFieldPerTurn(t *testing.T) {
	m := NewMachine(Prompts{})
	res, err := m.Step(session.UIWaitingEmail, "bob@acme.io or 555-123-4567")
	require.NoError(t, err)
	assert.Equal(t, "bob@acme.io", res.Captured.Email)
	assert.Empty(t, res.Captured.Phone)
	assert.Equal(t, session.UIWaitingPhone, res.State)
}

func TestStepCompletedIsNoop(t *testing.T) {
	res, err := NewMachine(Prompts{}).Step(session.UICompleted, "hello")
	require.NoError(t, err)
	assert.Equal(t, session.UICompleted, res.State)
	assert.Empty(t, res.Path)
	assert.Empty(t, res.Reply)
}

func TestStepUnknownState(t *testing.T) {
	_, err := NewMachine(Prompts{}).Step(session.UIState("bogus"), "")
	require.Error(t, err)
}

func TestConfirmingOnlyAfterWaiting(t *testing.T) {
	m := NewMachine(Prompts{})
	inputs := []string{"", "nope", "a@b.co", "123", "+1 555 123 4567", "done"}
	state := session.UIIdle
	prev := state
	for _, in := range inputs {
		res, err := m.Step(state, in)
		require.NoError(t, err)
		for _, s := range res.Path {
			if s == session.UIConfirmingEmail {
				assert.Equal(t, session.UIWaitingEmail, prev)
			}
			if s == session.UIConfirmingPhone {
				assert.Equal(t, session.UIWaitingPhone, prev)
			}
			require.True(t, CanTransition(prev, s), "%s -> %s", prev, s)
			prev = s
		}
		state = res.State
	}
	assert.Equal(t, session.UICompleted, state)
}

func TestTransitionTable(t *testing.T) {
	assert.True(t, CanTransition(session.UIIdle, session.UIAskingEmail))
	assert.True(t, CanTransition(session.UIWaitingPhone, session.UIWaitingPhone))
	assert.False(t, CanTransition(session.UIIdle, session.UIWaitingEmail))
	assert.False(t, CanTransition(session.UIAskingEmail, session.UIConfirmingEmail))
	assert.False(t, CanTransition(session.UICompleted, session.UIIdle))

	w := &walker{state: session.UIIdle}
	w.move(session.UICompleted)
	assert.True(t, errors.Is(w.err, ErrIllegalTransition))
	assert.Equal(t, session.UIIdle, w.state)
}

func TestMatchEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"you can reach me at Jane.Doe@Example.COM thanks", "jane.doe@example.com", true},
		{"mail: ops+leads@sub.corp.co.uk.", "ops+leads@sub.corp.co.uk", true},
		{"jane at example dot com", "", false},
		{"@nobody", "", false},
	}
	for _, tt := range tests {
		got, ok := MatchEmail(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("MatchEmail(%q) = %q,%v want %q,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestMatchPhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"call me at (555) 123-4567", "(555) 123-4567", true},
		{"+1 555.123.4567 works", "+1 555.123.4567", true},
		{"call me at 555", "", false},
		{"555-1234", "", false},
		{"no digits", "", false},
	}
	for _, tt := range tests {
		got, ok := MatchPhone(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("MatchPhone(%q) = %q,%v want %q,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDirectiveJSON(t *testing.T) {
	b, err := json.Marshal([]Directive{ShowInput{Field: FieldEmail, Placeholder: "x"}, HideInput{Field: FieldPhone}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"action":"show_input","field":"email","placeholder":"x"},{"action":"hide_input","field":"phone"}]`, string(b))
}
