// internal/prompt/prompt.go
package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/xkilldash9x/pagepilot/api/schemas"
)

// Prompter asks the operator to choose an action and to type form input.
// Backing out of a prompt returns schemas.ErrOperatorCancelled.
type Prompter interface {
	SelectAction(ctx context.Context, summary string, actions []schemas.PageAction) (string, error)
	InputText(ctx context.Context, title, placeholder string) (string, error)
}

// errEmptyInput is shown under the input field until a value is entered.
var errEmptyInput = errors.New("please enter a value")

// HuhPrompter renders prompts with huh forms.
type HuhPrompter struct {
	in         io.Reader
	out        io.Writer
	accessible bool
}

var _ Prompter = (*HuhPrompter)(nil)

// Option configures a HuhPrompter.
type Option func(*HuhPrompter)

// WithIO sets the streams the prompts read from and draw to.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(p *HuhPrompter) {
		p.in = in
		p.out = out
	}
}

// WithAccessible switches to huh's line based mode, which works without a TTY.
func WithAccessible(accessible bool) Option {
	return func(p *HuhPrompter) {
		p.accessible = accessible
	}
}

// NewHuhPrompter creates a prompter on the process terminal unless overridden.
func NewHuhPrompter(opts ...Option) *HuhPrompter {
	p := &HuhPrompter{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SelectAction shows the page summary and returns the name of the chosen action.
func (p *HuhPrompter) SelectAction(ctx context.Context, summary string, actions []schemas.PageAction) (string, error) {
	if len(actions) == 0 {
		return "", errors.New("no actions to choose from")
	}

	choice := actions[0].Name
	field := huh.NewSelect[string]().
		Title(summary).
		Description("Select a page action to perform:").
		Options(actionOptions(actions)...).
		Value(&choice)

	if err := p.run(ctx, field); err != nil {
		return "", err
	}
	return choice, nil
}

// InputText asks for a single non-empty line of text.
func (p *HuhPrompter) InputText(ctx context.Context, title, placeholder string) (string, error) {
	var value string
	field := huh.NewInput().
		Title(title).
		Placeholder(placeholder).
		Validate(validateNonEmpty).
		Value(&value)

	if err := p.run(ctx, field); err != nil {
		return "", err
	}
	return value, nil
}

func (p *HuhPrompter) run(ctx context.Context, field huh.Field) error {
	form := huh.NewForm(huh.NewGroup(field)).
		WithTheme(huh.ThemeDracula()).
		WithAccessible(p.accessible)
	if p.in != nil {
		form = form.WithInput(p.in)
	}
	if p.out != nil {
		form = form.WithOutput(p.out)
	}
	return mapError(form.RunWithContext(ctx))
}

// actionOptions labels each action with its kind. The option value is the
// action name, which is unique within a list.
func actionOptions(actions []schemas.PageAction) []huh.Option[string] {
	opts := make([]huh.Option[string], 0, len(actions))
	for _, a := range actions {
		opts = append(opts, huh.NewOption(fmt.Sprintf("%s (%s)", a.Name, a.Kind), a.Name))
	}
	return opts
}

func validateNonEmpty(s string) error {
	if strings.TrimSpace(s) == "" {
		return errEmptyInput
	}
	return nil
}

// mapError turns huh's abort into the operator cancellation sentinel.
func mapError(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return schemas.ErrOperatorCancelled
	}
	return err
}

// FormPrompt builds the title and placeholder for a form input prompt from
// the field's attributes, falling back to the action name.
func FormPrompt(actionName, placeholder, fieldName string) (title, hint string) {
	switch {
	case placeholder != "":
		return fmt.Sprintf("Enter %s:", placeholder), placeholder
	case fieldName != "":
		return fmt.Sprintf("Enter value for %s:", fieldName), "Value for " + fieldName
	default:
		return fmt.Sprintf("Enter input for the form %q:", actionName), "Type your input here..."
	}
}
