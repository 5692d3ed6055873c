package dialog

// PromptKind selects the input widget a dialog prompt asks for.
type PromptKind string

const (
	PromptString   PromptKind = "string"
	PromptPassword PromptKind = "password"
	PromptBoolean  PromptKind = "boolean"
	PromptChoice   PromptKind = "choice"
)

// Prompt is one labeled input requested by a dialog. The label doubles as
// the key under which the collected value is returned to the callback.
type Prompt struct {
	Kind    PromptKind `json:"kind"`
	Label   string     `json:"label"`
	Choices []string   `json:"choices,omitempty"`
	Default string     `json:"default,omitempty"`
}

// Dialog is a declarative description of a user-facing dialog box. It
// carries no rendering knowledge; clients decide how to present it.
type Dialog struct {
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	OKText     string   `json:"ok"`
	CancelText string   `json:"cancel,omitempty"`
	Image      string   `json:"image,omitempty"`
	Prompts    []Prompt `json:"prompts,omitempty"`
}

// NewDialog builds a dialog with no prompts.
func NewDialog(title, body, ok, cancel, image string) *Dialog {
	return &Dialog{Title: title, Body: body, OKText: ok, CancelText: cancel, Image: image}
}

// AddString appends a free-text prompt.
func (d *Dialog) AddString(label string) *Dialog {
	d.Prompts = append(d.Prompts, Prompt{Kind: PromptString, Label: label})
	return d
}

// AddPassword appends a password prompt.
func (d *Dialog) AddPassword(label string) *Dialog {
	d.Prompts = append(d.Prompts, Prompt{Kind: PromptPassword, Label: label})
	return d
}

// AddBoolean appends a yes/no prompt.
func (d *Dialog) AddBoolean(label string) *Dialog {
	d.Prompts = append(d.Prompts, Prompt{Kind: PromptBoolean, Label: label})
	return d
}

// AddChoice appends a pick-one prompt with an optional preselected value.
func (d *Dialog) AddChoice(label string, choices []string, def string) *Dialog {
	d.Prompts = append(d.Prompts, Prompt{Kind: PromptChoice, Label: label, Choices: choices, Default: def})
	return d
}
