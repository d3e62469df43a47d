package collection

import "encoding/json"

// Field names a collectable contact field.
type Field string

const (
	FieldEmail Field = "email"
	FieldPhone Field = "phone"
)

// Directive is an instruction for the presentation layer. It must be
// applied only after the reply it accompanies has been fully delivered.
type Directive interface {
	Action() string
	Target() Field
	directive()
}

// ShowInput asks the front end to display an input widget.
type ShowInput struct {
	Field       Field
	Placeholder string
}

func (ShowInput) Action() string  { return "show_input" }
func (d ShowInput) Target() Field { return d.Field }
func (ShowInput) directive()      {}

// MarshalJSON renders the wire form {action, field, placeholder}.
func (d ShowInput) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireDirective{Action: d.Action(), Field: d.Field, Placeholder: d.Placeholder})
}

// HideInput asks the front end to close an input widget.
type HideInput struct {
	Field Field
}

func (HideInput) Action() string  { return "hide_input" }
func (d HideInput) Target() Field { return d.Field }
func (HideInput) directive()      {}

// MarshalJSON renders the wire form {action, field}.
func (d HideInput) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireDirective{Action: d.Action(), Field: d.Field})
}

type wireDirective struct {
	Action      string `json:"action"`
	Field       Field  `json:"field"`
	Placeholder string `json:"placeholder,omitempty"`
}
