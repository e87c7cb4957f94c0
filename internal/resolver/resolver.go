// internal/resolver/resolver.go
package resolver

import (
	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/browser/dom"
)

// Strategy names the hint that located a form.
type Strategy string

const (
	ByFormID        Strategy = "form_id"
	ByFormAction    Strategy = "form_action_value"
	ByInputSelector Strategy = "input_selector"
)

// inputCapable matches the elements a form hint may point at directly.
const inputCapable = "input, textarea, select"

// Resolution is a form located in the current tree.
type Resolution struct {
	Form dom.Node
	// Input is the element the input selector hint landed on. It is nil for
	// the other strategies.
	Input    dom.Node
	Strategy Strategy
}

// Resolve locates the form described by hints. The hints are tried in a
// fixed order and the first one that yields a form wins:
//
//  1. FormID: the element with that id, only if it is a <form>.
//  2. FormAction: the first <form> whose action attribute equals the hint.
//  3. InputSelector: every match in document order, each narrowed to an
//     input, textarea or select inside it when needed. The first one with an
//     enclosing <form> wins, so wrappers and stray fields are skipped.
//
// The second return value is false when no hint matched.
func Resolve(tree dom.Tree, hints schemas.FormIdentity) (Resolution, bool) {
	if tree == nil {
		return Resolution{}, false
	}
	if form := byFormID(tree, hints.FormID); form != nil {
		return Resolution{Form: form, Strategy: ByFormID}, true
	}
	if form := byFormAction(tree, hints.FormAction); form != nil {
		return Resolution{Form: form, Strategy: ByFormAction}, true
	}
	if form, input := byInputSelector(tree, hints.InputSelector); form != nil {
		return Resolution{Form: form, Input: input, Strategy: ByInputSelector}, true
	}
	return Resolution{}, false
}

// ResolveAction resolves a form action or reports a *schemas.ResolutionMiss.
func ResolveAction(tree dom.Tree, action schemas.PageAction) (Resolution, error) {
	var hints schemas.FormIdentity
	if action.Form != nil {
		hints = *action.Form
	}
	res, ok := Resolve(tree, hints)
	if !ok {
		return Resolution{}, &schemas.ResolutionMiss{Action: action.Name, Hints: hints}
	}
	return res, nil
}

func byFormID(tree dom.Tree, id string) dom.Node {
	if id == "" {
		return nil
	}
	n := tree.ByID(id)
	if n == nil || n.Tag() != "form" {
		return nil
	}
	return n
}

func byFormAction(tree dom.Tree, action string) dom.Node {
	if action == "" {
		return nil
	}
	forms, err := tree.QueryAll("form")
	if err != nil {
		return nil
	}
	for _, f := range forms {
		if v, ok := f.Attr("action"); ok && v == action {
			return f
		}
	}
	return nil
}

func byInputSelector(tree dom.Tree, selector string) (form, input dom.Node) {
	if selector == "" {
		return nil, nil
	}
	// Model supplied selectors that do not compile are a miss like any other.
	matches, err := tree.QueryAll(selector)
	if err != nil {
		return nil, nil
	}
	for _, n := range matches {
		if !n.Is(inputCapable) {
			if n = n.Find(inputCapable); n == nil {
				continue
			}
		}
		if form = n.Closest("form"); form != nil {
			return form, n
		}
	}
	return nil, nil
}
