package llm2

import (
	"glidecode/common"
	"glidecode/secret_manager"
)

// Params holds the LLM request parameters including messages, tools, and model configuration.
type Params struct {
	Messages          []Message
	Tools             []*common.Tool
	ToolChoice        common.ToolChoice
	ParallelToolCalls *bool
	Temperature       *float32
	// ServiceTier requests a provider-specific latency/cost tier (e.g.
	// Anthropic's "auto"/"standard_only"). Empty means provider default.
	ServiceTier string
	common.ModelConfig
}

// Options combines request parameters with secrets for provider authentication.
type Options struct {
	Params  Params
	Secrets secret_manager.SecretManagerContainer
}

// StreamRequest is the canonical input to Provider.Stream: the messages to
// send plus the resolved Options (model config, tools, secrets) needed to
// authenticate and shape the call. Providers read Messages from here rather
// than from a chat-history object, keeping them decoupled from any particular
// history/storage representation.
type StreamRequest struct {
	Messages      []Message
	Options       Options
	SecretManager secret_manager.SecretManager
}

// ActionParams returns a map of action parameters suitable for logging or workflow metadata.
func (o Options) ActionParams() map[string]any {
	return map[string]any{
		"messages":          o.Params.Messages,
		"tools":             o.Params.Tools,
		"toolChoice":        o.Params.ToolChoice,
		"model":             o.Params.Model,
		"reasoningEffort":   o.Params.ReasoningEffort,
		"provider":          o.Params.Provider,
		"temperature":       o.Params.Temperature,
		"parallelToolCalls": o.Params.ParallelToolCalls,
	}
}
