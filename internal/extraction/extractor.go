// internal/extraction/extractor.go
package extraction

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/browser/dom"
	"github.com/xkilldash9x/pagepilot/internal/config"
	"github.com/xkilldash9x/pagepilot/internal/llmutil"
)

// systemPrompt describes the one JSON object the model must return for a page.
const systemPrompt = `You are a web navigation assistant. You are given the visible text of a web page.

Summarize the page concisely in at most 2 sentences, then list the actions a user could take next.
Respond with ONLY a JSON object of the following form. Do not wrap it in markdown or add any commentary.

{
  "content": "A short summary of the page.",
  "actions": [
    {
      "name": "A short, human readable label for the action",
      "type": "link" or "form",
      "url": "The link target, for link actions",
      "form_id": "The id attribute of the form, if it has one",
      "form_action_value": "The exact action attribute of the form, if it has one",
      "input_selector": "A CSS selector for the form's main text input"
    }
  ]
}

Rules:
- Return between 1 and 6 actions, most useful first.
- Only use the types "link" and "form".
- Link actions must carry a url. Relative urls are allowed.
- Form actions should carry as many of form_id, form_action_value and input_selector as you can infer.
- Omit fields you do not know instead of guessing.`

const userPromptPrefix = "Please summarize the following web page content:\n\n"

// noSummary stands in for an empty model summary.
const noSummary = "No summary available."

// rawAction and rawResponse mirror the JSON the model is asked to produce.
type rawAction struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	URL           string `json:"url"`
	FormID        string `json:"form_id"`
	FormAction    string `json:"form_action_value"`
	InputSelector string `json:"input_selector"`
}

type rawResponse struct {
	Content string      `json:"content"`
	Actions []rawAction `json:"actions"`
}

// Extractor turns page text into a summary and a list of selectable actions
// with exactly one model completion per page.
type Extractor struct {
	llm             schemas.LLMClient
	logger          *zap.Logger
	maxActions      int
	maxContentChars int
}

// NewExtractor creates an Extractor bound to llm.
func NewExtractor(llm schemas.LLMClient, cfg config.NavigatorConfig, logger *zap.Logger) *Extractor {
	return &Extractor{
		llm:             llm,
		logger:          logger.Named("extraction"),
		maxActions:      cfg.MaxActions,
		maxContentChars: cfg.MaxContentChars,
	}
}

// ExtractPage cleans the snapshot's HTML and extracts actions from it. The
// returned actions are stamped with the snapshot's generation.
func (e *Extractor) ExtractPage(ctx context.Context, snap *schemas.PageSnapshot) (*schemas.ExtractionResult, error) {
	text, err := dom.CleanText(snap.HTML)
	if err != nil {
		return nil, err
	}
	result, err := e.Extract(ctx, text, snap.URL)
	if err != nil {
		return nil, err
	}
	for i := range result.Actions {
		result.Actions[i].Generation = snap.Generation
	}
	return result, nil
}

// Extract issues one completion for the cleaned page text and validates the
// answer. Relative link targets are resolved against pageURL.
func (e *Extractor) Extract(ctx context.Context, pageText, pageURL string) (*schemas.ExtractionResult, error) {
	if e.maxContentChars > 0 {
		pageText = llmutil.TruncateString(pageText, e.maxContentChars)
	}

	req := schemas.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPromptPrefix + pageText,
		Tier:         schemas.TierPowerful,
		Options:      schemas.GenerationOptions{ForceJSONFormat: true},
	}

	e.logger.Debug("Requesting page actions.", zap.String("url", pageURL), zap.Int("text_length", len(pageText)))
	response, err := e.llm.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to generate page actions: %w", err)
	}

	result, err := e.Process(response, pageURL)
	if err != nil {
		e.logger.Error("Model output could not be parsed.", zap.String("url", pageURL), zap.Error(err))
		return nil, err
	}

	e.logger.Info("Extracted page actions.", zap.String("url", pageURL), zap.Int("actions", len(result.Actions)))
	return result, nil
}

// Process repairs and decodes a raw model response and applies the action
// post-processing rules. It makes no model call.
func (e *Extractor) Process(response, pageURL string) (*schemas.ExtractionResult, error) {
	raw, err := llmutil.ParseJSONObject[rawResponse](response)
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		e.logger.Warn("Page URL does not parse, relative links are kept as is.", zap.String("url", pageURL), zap.Error(err))
		base = nil
	}

	summary := dom.SanitizeText(raw.Content)
	if summary == "" {
		summary = noSummary
	}

	names := newNameSet()
	names.reserve(schemas.ReadActionName)

	actions := make([]schemas.PageAction, 0, len(raw.Actions)+1)
	for _, ra := range raw.Actions {
		if e.maxActions > 0 && len(actions) >= e.maxActions {
			e.logger.Debug("Dropping actions beyond the configured limit.", zap.Int("max_actions", e.maxActions))
			break
		}
		name := dom.SanitizeText(ra.Name)
		if name == "" {
			e.logger.Debug("Dropping action without a name.", zap.String("type", ra.Type))
			continue
		}

		action := schemas.PageAction{
			Name: names.unique(name),
			Kind: schemas.ParseActionKind(strings.ToLower(strings.TrimSpace(ra.Type))),
		}
		if target := strings.TrimSpace(ra.URL); target != "" {
			action.URL = NormalizeURL(target, base)
		}
		if action.Kind == schemas.ActionForm {
			// The action hint is compared byte for byte with the form's
			// attribute, so it is passed through untouched.
			action.Form = &schemas.FormIdentity{
				FormID:        strings.TrimSpace(ra.FormID),
				FormAction:    ra.FormAction,
				InputSelector: strings.TrimSpace(ra.InputSelector),
			}
		}
		actions = append(actions, action)
	}

	actions = append(actions, schemas.PageAction{Name: schemas.ReadActionName, Kind: schemas.ActionRead})
	return &schemas.ExtractionResult{Summary: summary, Actions: actions}, nil
}

// NormalizeURL resolves raw against base. Absolute URLs, unparseable input and
// a nil base leave raw unchanged.
func NormalizeURL(raw string, base *url.URL) string {
	ref, err := url.Parse(raw)
	if err != nil || ref.IsAbs() || base == nil {
		return raw
	}
	return base.ResolveReference(ref).String()
}

// nameSet hands out unique action labels by appending " (n)" to repeats.
type nameSet map[string]struct{}

func newNameSet() nameSet { return nameSet{} }

func (s nameSet) reserve(name string) { s[name] = struct{}{} }

func (s nameSet) unique(name string) string {
	candidate := name
	for n := 2; ; n++ {
		if _, taken := s[candidate]; !taken {
			s[candidate] = struct{}{}
			return candidate
		}
		candidate = fmt.Sprintf("%s (%d)", name, n)
	}
}
