package schemas

// -- Page Action Schemas --

// ActionKind classifies what selecting an action does.
type ActionKind string

const (
	ActionLink  ActionKind = "link"
	ActionForm  ActionKind = "form"
	ActionRead  ActionKind = "read"
	ActionOther ActionKind = "other"
)

// ParseActionKind maps a model-supplied type onto a known kind. Anything
// unrecognized becomes ActionOther.
func ParseActionKind(s string) ActionKind {
	switch ActionKind(s) {
	case ActionLink, ActionForm, ActionRead:
		return ActionKind(s)
	default:
		return ActionOther
	}
}

// ReadActionName is the label of the synthetic action appended to every list.
const ReadActionName = "Read page content"

// FormIdentity carries the hints used to re-anchor a form action onto the DOM.
// Every field is optional.
type FormIdentity struct {
	FormID        string `json:"form_id,omitempty"`
	FormAction    string `json:"form_action_value,omitempty"`
	InputSelector string `json:"input_selector,omitempty"`
}

// IsEmpty reports whether no hint is set.
func (f FormIdentity) IsEmpty() bool {
	return f.FormID == "" && f.FormAction == "" && f.InputSelector == ""
}

// PageAction is one operator-selectable step derived from a page.
//
// An action never holds a DOM node. It is bound to the page generation it was
// extracted from and its form hints are re-resolved against the current tree
// when executed.
type PageAction struct {
	Name       string        `json:"name"`
	Kind       ActionKind    `json:"kind"`
	URL        string        `json:"url,omitempty"`
	Form       *FormIdentity `json:"form,omitempty"`
	Generation uint64        `json:"generation"`
}

// PageSnapshot is the raw result of one navigation.
type PageSnapshot struct {
	Title      string `json:"title"`
	HTML       string `json:"html"`
	URL        string `json:"url"`
	Generation uint64 `json:"generation"`
}

// ExtractionResult is the validated output of one model completion.
// Actions keep the model's order and always end with the read action.
type ExtractionResult struct {
	Summary string       `json:"summary"`
	Actions []PageAction `json:"actions"`
}

// Find returns the action with the given name.
func (r *ExtractionResult) Find(name string) (PageAction, bool) {
	for _, a := range r.Actions {
		if a.Name == name {
			return a, true
		}
	}
	return PageAction{}, false
}

// PageState is the page observed after a form submission.
type PageState struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
}
