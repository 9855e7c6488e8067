package llm2

import (
	"context"
	"strings"
)

const openrouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterProvider wraps OpenAIProvider to speak to OpenRouter's
// OpenAI-compatible Chat Completions endpoint. It overrides the base URL
// and, when web search is requested via ExtraBody["web_search"], appends
// OpenRouter's ":online" model-suffix per its aggregator convention.
type OpenRouterProvider struct {
	DefaultModel string
}

func (p OpenRouterProvider) Stream(ctx context.Context, request StreamRequest, eventChan chan<- Event) (*MessageResponse, error) {
	model := request.Options.Params.Model
	if model == "" {
		model = p.DefaultModel
	}
	if wantsWebSearch(request.Options.Params.ExtraBody) && !strings.HasSuffix(model, ":online") {
		model = model + ":online"
	}
	request.Options.Params.Model = model

	inner := OpenAIProvider{
		BaseURL:      openrouterBaseURL,
		DefaultModel: p.DefaultModel,
	}
	return inner.Stream(ctx, request, eventChan)
}

func wantsWebSearch(extraBody map[string]any) bool {
	if extraBody == nil {
		return false
	}
	v, ok := extraBody["web_search"]
	if !ok {
		return false
	}
	enabled, ok := v.(bool)
	return ok && enabled
}
