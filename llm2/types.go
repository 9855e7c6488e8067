package llm2

// Role for the v2 message model. Provider-specific synonyms like "developer" should be
// handled in adapters (map to RoleSystem on ingest/emit as needed).
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Usage is surfaced on final responses (not deltas).
type Usage struct {
	InputTokens           int `json:"inputTokens"`
	OutputTokens          int `json:"outputTokens"`
	CacheReadInputTokens  int `json:"cacheReadInputTokens,omitempty"`
	CacheWriteInputTokens int `json:"cacheWriteInputTokens,omitempty"`
}

// ContentBlockType enumerates standardized content block kinds.
type ContentBlockType string

const (
	ContentBlockTypeText       ContentBlockType = "text"
	ContentBlockTypeImage      ContentBlockType = "image"
	ContentBlockTypeFile       ContentBlockType = "file"
	ContentBlockTypeToolUse    ContentBlockType = "tool_use"
	ContentBlockTypeToolResult ContentBlockType = "tool_result"
	ContentBlockTypeRefusal    ContentBlockType = "refusal"
	ContentBlockTypeReasoning  ContentBlockType = "reasoning"
	ContentBlockTypeMcpCall    ContentBlockType = "mcp_call"
)

// Media references for input blocks.
type ImageRef struct {
	Url string `json:"url,omitempty"`
}

type FileRef struct {
	Url      string `json:"url,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Structured payloads for certain block types.
type RefusalBlock struct {
	Type   string `json:"type,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type ReasoningBlock struct {
	Text             string `json:"text"`
	Summary          string `json:"summary"`
	EncryptedContent string `json:"encryptedContent,omitempty"`
	// Signature carries a provider-opaque verification token for the reasoning
	// content (e.g. Anthropic's thinking signature, Gemini's thought signature).
	// It must be echoed back unmodified on the next turn.
	Signature []byte `json:"signature,omitempty"`
}

type McpCallBlock struct {
	Server    string `json:"server"`
	Tool      string `json:"tool"`
	Arguments string `json:"arguments,omitempty"` // JSON string
}

// Tool invocation emitted by the assistant.
type ToolUseBlock struct {
	Id        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string
	// Signature carries a provider-opaque verification token tied to this
	// tool call (e.g. Gemini's thought signature on function-call parts).
	Signature []byte `json:"signature,omitempty"`
}

// Tool result content provided back to the assistant, modeled within a user-role message.
type ToolResultBlock struct {
	ToolCallId string `json:"toolCallId"`
	Name       string `json:"name,omitempty"`
	IsError    bool   `json:"isError,omitempty"`
	Text       string `json:"text,omitempty"`
	// Content carries structured nested blocks (e.g. an image alongside text)
	// for providers that support rich tool results. When empty, Text is used.
	Content []ContentBlock `json:"content,omitempty"`
	// ContextType marks why this tool result is retained across history
	// trimming; empty means ordinary trimmable content.
	ContextType string `json:"contextType,omitempty"`
}

// A single content block within a message turn.
type ContentBlock struct {
	Id           string           `json:"id"`
	Type         ContentBlockType `json:"type"`
	Text         string           `json:"text,omitempty"`
	Image        *ImageRef        `json:"image,omitempty"`
	File         *FileRef         `json:"file,omitempty"`
	ToolUse      *ToolUseBlock    `json:"toolUse,omitempty"`
	ToolResult   *ToolResultBlock `json:"toolResult,omitempty"`
	Refusal      *RefusalBlock    `json:"refusal,omitempty"`
	Reasoning    *ReasoningBlock  `json:"reasoning,omitempty"`
	McpCall      *McpCallBlock    `json:"mcpCall,omitempty"`
	CacheControl string           `json:"cacheControl,omitempty"`
	// Signature carries a provider-opaque verification token for this block
	// (e.g. Gemini's thought signature on a text part). Most providers leave
	// this empty; it travels with the block on replay.
	Signature []byte `json:"signature,omitempty"`
	// ContextType marks why this block is retained across history trimming
	// (e.g. "initial_instructions", "user_feedback"); empty means ordinary
	// trimmable content.
	ContextType string `json:"contextType,omitempty"`
}

// A single chat turn (message) consisting of a role and ordered content blocks.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// GetRole returns the message role as a string.
func (m Message) GetRole() string {
	return string(m.Role)
}

// GetContentString concatenates the Text of the message's text blocks; other
// block types are skipped.
func (m Message) GetContentString() string {
	s := ""
	for _, block := range m.Content {
		if block.Type == ContentBlockTypeText {
			s += block.Text
		}
	}
	return s
}

// SanitizeToolNames rewrites tool_use block names to satisfy the conservative
// identifier rules shared across provider APIs ([a-zA-Z0-9_-]{1,128}), in case
// a provider streamed back something looser (seen occasionally from
// OpenAI-compatible proxies). It mutates the message in place and returns it
// for chaining.
func (m *Message) SanitizeToolNames() *Message {
	for i := range m.Content {
		block := &m.Content[i]
		if block.Type != ContentBlockTypeToolUse || block.ToolUse == nil {
			continue
		}
		block.ToolUse.Name = sanitizeToolName(block.ToolUse.Name)
	}
	return m
}

func sanitizeToolName(name string) string {
	if name == "" {
		return name
	}
	b := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b = append(b, r)
		default:
			b = append(b, '_')
		}
	}
	if len(b) > 128 {
		b = b[:128]
	}
	return string(b)
}

// Provider-agnostic response with metadata and a single synthesized output message.
type MessageResponse struct {
	Id              string  `json:"id"`
	Model           string  `json:"model"`
	Provider        string  `json:"provider"`
	Output          Message `json:"output"`
	StopReason      string  `json:"stopReason"`
	StopSequence    string  `json:"stopSequence,omitempty"`
	Usage           Usage   `json:"usage"`
	ReasoningEffort string  `json:"reasoningEffort,omitempty"`
}

// EventType enumerates provider-agnostic streaming event kinds for content blocks.
// This is a small whitelist we can reliably map from OpenAI/Anthropic, etc.
// No message-level start/stop or usage events are included by design.
type EventType string

const (
	// A new content block starts. Append ContentBlock to the assistant Message.Content.
	EventBlockStarted EventType = "block_started"

	// No further deltas will target this block (also used to mark the end of a
	// tool_use block's arguments streaming).
	EventBlockDone EventType = "block_done"

	// A text fragment for the targeted block.
	// - For text blocks: append to ContentBlock.Text
	// - For reasoning blocks: append to ContentBlock.Reasoning.Text
	// - For refusal blocks: append to ContentBlock.Refusal.Reason
	// - For tool_use blocks: append to ContentBlock.ToolUse.Arguments (JSON string)
	EventTextDelta EventType = "text_delta"

	// Reasoning-summary text (e.g., OpenAI Responses reasoning summaries).
	// On a reasoning block it is appended to Reasoning.Summary; on a text
	// block, to ContentBlock.Text.
	EventSummaryTextDelta EventType = "summary_text_delta"

	// Verification payload for a reasoning block. Anthropic's thinking
	// signature arrives in Event.Signature and is appended to
	// Reasoning.Signature; the OpenAI Responses accumulator stores Delta as
	// Reasoning.EncryptedContent.
	EventSignatureDelta EventType = "signature_delta"
)

// Event represents a single provider-agnostic streaming event at the
// content-block level. Consumers apply events sequentially to reconstruct
// the assistant Message.Content.
//
// Targeting:
//   - Index is REQUIRED for all events and is the 0-based index of the
//     target block within the assistant Message.Content after applying
//     all prior events.
//
// Semantics:
//   - EventBlockStarted: append ContentBlock at Index (minimally populated, e.g.,
//     type=text with empty Text; type=tool_use with ToolUse.Id/Name when known,
//     empty ToolUse.Arguments; type=refusal with empty Refusal.Reason; etc.).
//   - EventBlockDone: close the block at Index; no further deltas should target it.
//     For tool_use blocks, this marks the end of arguments streaming.
//   - EventTextDelta: append Delta to the appropriate field depending on
//     ContentBlock.Type (see EventType const docs above). For tool_use, append
//     to ToolUse.Arguments (JSON string).
//   - EventSummaryTextDelta: append Delta to Reasoning.Summary of a reasoning
//     block (or to Text of a text block).
//   - EventSignatureDelta: append Signature to Reasoning.Signature of the
//     reasoning block (Anthropic); the OpenAI Responses accumulator stores
//     Delta as Reasoning.EncryptedContent.
//
// Provider mapping:
//   - Anthropic:
//   - content_block_start -> block_started
//   - content_block_delta {type=text_delta} on text/reasoning -> text_delta
//   - content_block_delta {type=thinking_delta} on reasoning -> text_delta
//   - content_block_delta {type=signature_delta} on reasoning -> signature_delta
//   - content_block_delta {type=input_json_delta} for server tool use -> text_delta targeting tool_use
//   - content_block_stop -> block_done
//   - OpenAI Responses:
//   - response.output_item.added -> block_started for reasoning and function_call items;
//     message items start their blocks through content_part.added instead
//   - response.content_part.added -> block_started for output_text, refusal or reasoning_text parts
//   - response.output_text.delta -> text_delta on a text block
//   - response.reasoning_text.delta -> text_delta on a reasoning block
//   - response.reasoning_summary_text.delta -> summary_text_delta on a reasoning block
//   - response.function_call_arguments.delta -> text_delta targeting tool_use
//   - response.completed -> block_done for each reasoning item
//   - no other block_done events are emitted, and refusal deltas are not forwarded
//
// Note: We do NOT expose provider item/part IDs on Event; Index and ordering
// are the canonical targeting mechanism.
type Event struct {
	Type         EventType     `json:"type"`
	Index        int           `json:"index"`                  // 0-based block index
	ContentBlock *ContentBlock `json:"contentBlock,omitempty"` // present for block_started; MAY be included for other events in future
	Delta        string        `json:"delta,omitempty"`        // for *_delta events (text_delta, summary_text_delta)
	Signature    []byte        `json:"signature,omitempty"`    // payload for signature_delta events
}
