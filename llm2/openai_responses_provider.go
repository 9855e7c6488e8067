package llm2

import (
	"context"
	"encoding/json"
	"fmt"
	"glidecode/common"
	"glidecode/utils"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"
)

const defaultModel = "gpt-5-codex"

// ResponsesTransport selects how OpenAIResponsesProvider delivers the
// streaming request: over a WebSocket connection (Codex's low-latency
// transport), over the standard HTTP SSE endpoint, or "auto" which tries
// WebSocket first and falls back to HTTP once per call.
type ResponsesTransport string

const (
	ResponsesTransportAuto      ResponsesTransport = "auto"
	ResponsesTransportWebSocket ResponsesTransport = "websocket"
	ResponsesTransportHTTP      ResponsesTransport = "http"
)

// firstFrameTimeout bounds how long auto mode waits for the first
// WebSocket frame before giving up and falling back to HTTP SSE.
const firstFrameTimeout = 2 * time.Second

type OpenAIResponsesProvider struct {
	// Transport controls the streaming transport. Zero value behaves as
	// ResponsesTransportAuto.
	Transport ResponsesTransport
	// WebSocketURL overrides the default wss endpoint, mainly for tests.
	WebSocketURL string
}

func (p OpenAIResponsesProvider) transport() ResponsesTransport {
	if p.Transport == "" {
		return ResponsesTransportAuto
	}
	return p.Transport
}

func (p OpenAIResponsesProvider) Stream(ctx context.Context, request StreamRequest, eventChan chan<- Event) (*MessageResponse, error) {
	options := request.Options

	providerNameNormalized := options.Params.ModelConfig.NormalizedProviderName()
	token, err := request.SecretManager.GetSecret(fmt.Sprintf("%s_API_KEY", providerNameNormalized))
	if err != nil {
		return nil, err
	}

	client := openai.NewClient(option.WithAPIKey(token))

	model := options.Params.Model
	if model == "" {
		model = defaultModel
	}

	inputItems, err := messageToResponsesInput(request.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to build input: %w", err)
	}

	params := responses.ResponseNewParams{
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: inputItems,
		},
		Model: openai.ChatModel(model),
	}

	if options.Params.Temperature != nil {
		params.Temperature = openai.Float(float64(*options.Params.Temperature))
	}

	if len(options.Params.Tools) > 0 {
		toolsToUse := options.Params.Tools
		if options.Params.ToolChoice.Type == common.ToolChoiceTypeTool {
			toolsToUse = filterToolsByName(options.Params.Tools, options.Params.ToolChoice.Name)
		}

		tools, err := openaiResponsesFromTools(toolsToUse)
		if err != nil {
			return nil, fmt.Errorf("failed to convert tools: %w", err)
		}
		params.Tools = tools

		toolChoice := openaiResponsesFromToolChoice(options.Params.ToolChoice, toolsToUse)
		if toolChoice != nil {
			params.ToolChoice = *toolChoice
		}
	}

	params.Store = openai.Bool(false)
	modelInfo, _ := common.GetModel(options.Params.Provider, model)
	if modelInfo != nil && modelInfo.Reasoning {
		params.Include = []responses.ResponseIncludable{responses.ResponseIncludableReasoningEncryptedContent}
		if options.Params.ReasoningEffort != "" {
			params.Reasoning.Effort = shared.ReasoningEffort(options.Params.ReasoningEffort)
			params.Reasoning.Summary = shared.ReasoningSummaryAuto
		}
	}

	state := &responsesStreamState{reasoningItemIndexByID: make(map[string]int)}

	usedWebSocket := false
	if p.transport() != ResponsesTransportHTTP {
		ok, wsErr := p.streamWebSocket(ctx, token, params, eventChan, state)
		if wsErr != nil && p.transport() == ResponsesTransportWebSocket {
			return nil, wsErr
		}
		usedWebSocket = ok
	}

	if !usedWebSocket {
		stream := client.Responses.NewStreaming(ctx, params)
		for stream.Next() {
			if state.apply(stream.Current(), eventChan) {
				break
			}
		}
		if err := stream.Err(); err != nil {
			return nil, err
		}
	}

	outputMessage := accumulateOpenaiEventsToMessage(state.events)

	return &MessageResponse{
		Id:              "",
		Model:           model,
		Provider:        options.Params.Provider,
		Output:          outputMessage,
		StopReason:      state.stopReason,
		StopSequence:    "",
		Usage:           state.usage,
		ReasoningEffort: options.Params.ReasoningEffort,
	}, nil
}

// responsesStreamState accumulates events across either transport so both
// the WebSocket and HTTP SSE paths share identical event-to-Message
// reconstruction logic.
type responsesStreamState struct {
	events                 []Event
	stopReason             string
	usage                  Usage
	reasoningItemIndexByID map[string]int
}

// apply processes one decoded stream event, forwarding derived llm2.Events
// onto eventChan. It returns true when the response is complete.
func (state *responsesStreamState) apply(data responses.ResponseStreamEventUnion, eventChan chan<- Event) (done bool) {
	events := state.events
	stopReason := state.stopReason
	usage := state.usage
	reasoningItemIndexByID := state.reasoningItemIndexByID
	defer func() {
		state.events = events
		state.stopReason = stopReason
		state.usage = usage
	}()

	switch data.AsAny().(type) {
	case responses.ResponseCompletedEvent:
			response := data.Response
			if response.IncompleteDetails.Reason != "" {
				stopReason = string(response.IncompleteDetails.Reason)
			} else {
				switch response.Status {
				case responses.ResponseStatusCompleted:
					stopReason = "stop"
				case responses.ResponseStatusFailed:
					stopReason = "failed"
				case responses.ResponseStatusCancelled:
					stopReason = "cancelled"
				default:
					stopReason = fmt.Sprintf("response_status=%s", response.Status)
				}
			}
			if response.Usage.InputTokens > 0 {
				usage.InputTokens = int(response.Usage.InputTokens)
			}
			if response.Usage.OutputTokens > 0 {
				usage.OutputTokens = int(response.Usage.OutputTokens)
			}

			for _, output := range response.Output {
				switch output.AsAny().(type) {
				case responses.ResponseReasoningItem:
					item := output.AsReasoning()
					if idx, ok := reasoningItemIndexByID[item.ID]; ok {
						evt := Event{
							Type:  EventBlockDone,
							Index: idx,
							ContentBlock: &ContentBlock{
								Type: ContentBlockTypeReasoning,
								Reasoning: &ReasoningBlock{
									Text:             reasoningTextFromOpenaiContent(item.Content),
									Summary:          reasoningSummaryFromOpenaiContent(item.Summary),
									EncryptedContent: item.EncryptedContent,
								},
							},
						}
						eventChan <- evt
						events = append(events, evt)
					}
				}
			}

			return true

		case responses.ResponseContentPartAddedEvent:
			openaiEvent := data.AsResponseContentPartAdded()

			switch openaiEvent.Part.AsAny().(type) {
			case responses.ResponseOutputText:
				part := openaiEvent.Part.AsOutputText()
				evt := Event{
					Type:  EventBlockStarted,
					Index: int(openaiEvent.OutputIndex),
					ContentBlock: &ContentBlock{
						Id:   openaiEvent.ItemID,
						Type: ContentBlockTypeText,
						Text: part.Text,
					},
				}
				eventChan <- evt
				events = append(events, evt)
			case responses.ResponseOutputRefusal:
				part := openaiEvent.Part.AsRefusal()
				evt := Event{
					Type:  EventBlockStarted,
					Index: int(openaiEvent.OutputIndex),
					ContentBlock: &ContentBlock{
						Id:   openaiEvent.ItemID,
						Type: ContentBlockTypeRefusal,
						Refusal: &RefusalBlock{
							Reason: part.Refusal,
						},
					},
				}
				eventChan <- evt
				events = append(events, evt)
			case responses.ResponseContentPartAddedEventPartReasoningText:
				part := openaiEvent.Part.AsReasoningText()
				evt := Event{
					Type:  EventBlockStarted,
					Index: int(openaiEvent.OutputIndex),
					ContentBlock: &ContentBlock{
						Id:   openaiEvent.ItemID,
						Type: ContentBlockTypeReasoning,
						Text: part.Text,
					},
				}
				eventChan <- evt
				events = append(events, evt)
			}
		case responses.ResponseOutputItemAddedEvent:
			openaiEvent := data.AsResponseOutputItemAdded()
			switch openaiEvent.Item.AsAny().(type) {
			// NOTE here are the other item types we might handle in the future,
			// leaving them here for reference:
			//
			//	case responses.ResponseFileSearchToolCall:
			//	case responses.ResponseFunctionWebSearch:
			//	case responses.ResponseComputerToolCall:
			//	case responses.ResponseOutputItemImageGenerationCall:
			//	case responses.ResponseCodeInterpreterToolCall:
			//	case responses.ResponseOutputItemLocalShellCall:
			//	case responses.ResponseOutputItemMcpCall:
			//	case responses.ResponseOutputItemMcpListTools:
			//	case responses.ResponseOutputItemMcpApprovalRequest:
			//	case responses.ResponseCustomToolCall:
			case responses.ResponseOutputMessage:
				// NOTE we don't have a type for the message yet as we don't
				// know if it's an output_text or a refusal, so we'll wait for
				// "response.content_part.added" before emitting the block
				// started event

			case responses.ResponseFunctionToolCall:
				item := openaiEvent.Item.AsFunctionCall()
				evt := Event{
					Type:  EventBlockStarted,
					Index: int(openaiEvent.OutputIndex),
					ContentBlock: &ContentBlock{
						Id:   item.ID,
						Type: ContentBlockTypeToolUse,
						ToolUse: &ToolUseBlock{
							Id:        item.CallID,
							Name:      item.Name,
							Arguments: item.Arguments,
						},
					},
				}
				eventChan <- evt
				events = append(events, evt)

			case responses.ResponseReasoningItem:
				item := openaiEvent.Item.AsReasoning()
				blockIndex := int(openaiEvent.OutputIndex)
				reasoningItemIndexByID[item.ID] = blockIndex

				evt := Event{
					Type:  EventBlockStarted,
					Index: blockIndex,
					ContentBlock: &ContentBlock{
						Id:   item.ID,
						Type: ContentBlockTypeReasoning,
						Reasoning: &ReasoningBlock{
							Text:    reasoningTextFromOpenaiContent(item.Content),
							Summary: reasoningSummaryFromOpenaiContent(item.Summary),
						},
					},
				}
				eventChan <- evt
				events = append(events, evt)
			}

		case responses.ResponseFunctionCallArgumentsDeltaEvent:
			openaiEvent := data.AsResponseFunctionCallArgumentsDelta()
			evt := Event{
				Type:  EventTextDelta,
				Index: int(openaiEvent.OutputIndex),
				Delta: openaiEvent.Delta,
			}
			eventChan <- evt
			events = append(events, evt)

		case responses.ResponseTextDeltaEvent:
			openaiEvent := data.AsResponseOutputTextDelta()
			evt := Event{
				Type:  EventTextDelta,
				Index: int(openaiEvent.OutputIndex),
				Delta: openaiEvent.Delta,
			}
			eventChan <- evt
			events = append(events, evt)

		case responses.ResponseReasoningTextDeltaEvent:
			openaiEvent := data.AsResponseReasoningTextDelta()
			evt := Event{
				Type:  EventTextDelta,
				Index: int(openaiEvent.OutputIndex),
				Delta: openaiEvent.Delta,
			}
			eventChan <- evt
			events = append(events, evt)

		case responses.ResponseReasoningSummaryTextDeltaEvent:
			openaiEvent := data.AsResponseReasoningSummaryTextDelta()
			evt := Event{
				Type:  EventSummaryTextDelta,
				Index: int(openaiEvent.OutputIndex),
				Delta: openaiEvent.Delta,
			}
			eventChan <- evt
			events = append(events, evt)
		}

	return false
}

const defaultResponsesWebSocketURL = "wss://api.openai.com/v1/responses/stream"

// streamWebSocket attempts to deliver params over a WebSocket connection,
// applying each decoded frame to state as it arrives. It reports handled=true
// once at least one frame has been successfully applied, at which point the
// caller must NOT also run the HTTP SSE path (the response is already
// in-flight/complete). handled=false with a nil error means nothing arrived
// in time and the caller falls back to HTTP. URL, dial, encode and write
// failures come back as handled=false with a non-nil error in every mode; the
// caller returns that error only when Transport is pinned to "websocket" and
// otherwise falls back to HTTP. A frame that fails to decode after the first
// one comes back as handled=true with an error.
func (p OpenAIResponsesProvider) streamWebSocket(ctx context.Context, token string, params responses.ResponseNewParams, eventChan chan<- Event, state *responsesStreamState) (handled bool, err error) {
	wsURL := p.WebSocketURL
	if wsURL == "" {
		wsURL = defaultResponsesWebSocketURL
	}
	parsed, err := url.Parse(wsURL)
	if err != nil {
		return false, fmt.Errorf("invalid websocket url: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialer := websocket.Dialer{HandshakeTimeout: firstFrameTimeout}
	conn, _, dialErr := dialer.DialContext(ctx, parsed.String(), header)
	if dialErr != nil {
		return false, dialErr
	}
	defer conn.Close()

	body, err := json.Marshal(params)
	if err != nil {
		return false, fmt.Errorf("failed to encode request for websocket: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
		return false, err
	}

	firstFrame := true
	for {
		if firstFrame {
			_ = conn.SetReadDeadline(time.Now().Add(firstFrameTimeout))
		} else {
			_ = conn.SetReadDeadline(time.Time{})
		}

		_, raw, readErr := conn.ReadMessage()
		if readErr != nil {
			if firstFrame {
				// Nothing arrived in time (or handshake-adjacent failure):
				// fall back to HTTP SSE for this call.
				return false, nil
			}
			// A frame had already been applied; the stream ended without a
			// terminal event. Per the resolved Open Question, this is NOT
			// retried within the same call.
			return true, nil
		}

		var evt responses.ResponseStreamEventUnion
		if err := json.Unmarshal(raw, &evt); err != nil {
			if firstFrame {
				return false, nil
			}
			return true, fmt.Errorf("failed to decode websocket frame: %w", err)
		}

		firstFrame = false
		if state.apply(evt, eventChan) {
			return true, nil
		}
	}
}

func reasoningSummaryFromOpenaiContent(responseReasoningItemSummary []responses.ResponseReasoningItemSummary) string {
	var summary string
	for _, summaryItem := range responseReasoningItemSummary {
		summary += summaryItem.Text
	}
	return summary
}

func reasoningTextFromOpenaiContent(responseReasoningItemContent []responses.ResponseReasoningItemContent) string {
	var text string
	for _, content := range responseReasoningItemContent {
		text += content.Text
	}
	return text
}

func messageToResponsesInput(messages []Message) ([]responses.ResponseInputItemUnionParam, error) {
	var items []responses.ResponseInputItemUnionParam

	for _, msg := range messages {
	contentBlocksLoop:
		for _, block := range msg.Content {
			switch block.Type {
			case ContentBlockTypeText:
				var role responses.EasyInputMessageRole
				switch msg.Role {
				case RoleUser:
					role = responses.EasyInputMessageRoleUser
				case RoleSystem:
					role = responses.EasyInputMessageRoleSystem // switch to developer?
				case RoleAssistant:
					role = responses.EasyInputMessageRoleAssistant
					content := []responses.ResponseOutputMessageContentUnionParam{
						{
							OfOutputText: &responses.ResponseOutputTextParam{
								Text: block.Text,
							},
						},
					}
					items = append(items, responses.ResponseInputItemParamOfOutputMessage(
						content,
						block.Id,
						responses.ResponseOutputMessageStatusCompleted,
					))
					continue contentBlocksLoop

				default:
					return nil, fmt.Errorf("unsupported role %s for text block", msg.Role)
				}

				// user or system role only here, as it's an "input" item
				items = append(items, responses.ResponseInputItemParamOfMessage(
					block.Text,
					role,
				))

			case ContentBlockTypeToolUse:
				if msg.Role != RoleAssistant {
					return nil, fmt.Errorf("tool_use blocks must be in assistant messages, got role %s", msg.Role)
				}
				if block.ToolUse == nil {
					return nil, fmt.Errorf("tool_use block missing ToolUse data")
				}
				if block.ToolUse.Id == "" {
					return nil, fmt.Errorf("tool_use block missing Id")
				}
				if block.ToolUse.Name == "" {
					return nil, fmt.Errorf("tool_use block missing Name")
				}
				items = append(items, responses.ResponseInputItemParamOfFunctionCall(
					block.ToolUse.Arguments,
					block.ToolUse.Id,
					block.ToolUse.Name,
				))

			case ContentBlockTypeToolResult:
				if block.ToolResult == nil {
					return nil, fmt.Errorf("tool_result block missing ToolResult data")
				}
				if block.ToolResult.ToolCallId == "" {
					return nil, fmt.Errorf("tool_result block missing ToolCallId")
				}
				items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(
					block.ToolResult.ToolCallId,
					block.ToolResult.Text,
				))

			case ContentBlockTypeReasoning:
				if msg.Role != RoleAssistant {
					return nil, fmt.Errorf("reasoning blocks must be in assistant messages, got role %s", msg.Role)
				}
				if block.Reasoning != nil {
					reasoning := responses.ResponseReasoningItemParam{ID: block.Id}
					if block.Reasoning.Text != "" {
						reasoning.Content = append(reasoning.Content, responses.ResponseReasoningItemContentParam{
							Text: block.Reasoning.Text,
						})
					}

					reasoning.Summary = []responses.ResponseReasoningItemSummaryParam{}
					if block.Reasoning.Summary != "" {
						reasoning.Summary = append(reasoning.Summary, responses.ResponseReasoningItemSummaryParam{
							Text: block.Reasoning.Summary,
						})
					}

					if block.Reasoning.EncryptedContent != "" {
						reasoning.EncryptedContent = param.NewOpt(block.Reasoning.EncryptedContent)
					}

					reasoningItem := responses.ResponseInputItemUnionParam{OfReasoning: &reasoning}
					items = append(items, reasoningItem)
				} else {
					return nil, fmt.Errorf("reasoning block missing seasoning data: %s", utils.PanicJSON(block))
				}

			case ContentBlockTypeRefusal:
				// NOTE: refusals aren't represented in openai's input params,
				// we're working around it basically here to try to keep the
				// conversation going, as we don't have business logic to handle
				// refusals yet. Later, this could be considered a bad request
				// that returns a client-side validation error to disallow such
				// inputs.
				if msg.Role != RoleAssistant {
					return nil, fmt.Errorf("refusal blocks must be in assistant messages, got role %s", msg.Role)
				}
				text := ""
				if block.Refusal != nil {
					text = block.Refusal.Reason
				}
				items = append(items, responses.ResponseInputItemParamOfMessage(
					text,
					responses.EasyInputMessageRoleAssistant,
				))

			case ContentBlockTypeImage, ContentBlockTypeFile, ContentBlockTypeMcpCall:
				return nil, fmt.Errorf("unsupported content block type: %s", block.Type)

			default:
				return nil, fmt.Errorf("unknown content block type: %s", block.Type)
			}
		}
	}

	return items, nil
}

func accumulateOpenaiEventsToMessage(events []Event) Message {
	blocks := make(map[int]*ContentBlock)
	maxIndex := -1

	for _, evt := range events {
		if evt.Index > maxIndex {
			maxIndex = evt.Index
		}

		switch evt.Type {
		case EventBlockStarted:
			if evt.ContentBlock != nil {
				blockCopy := *evt.ContentBlock
				if blockCopy.Type == ContentBlockTypeToolUse && blockCopy.ToolUse != nil {
					toolUseCopy := *blockCopy.ToolUse
					blockCopy.ToolUse = &toolUseCopy
				} else if blockCopy.Type == ContentBlockTypeReasoning && blockCopy.Reasoning != nil {
					reasoningCopy := *blockCopy.Reasoning
					blockCopy.Reasoning = &reasoningCopy
				}
				blocks[evt.Index] = &blockCopy
			}

		case EventTextDelta:
			if block, ok := blocks[evt.Index]; ok {
				if block.Type == ContentBlockTypeText {
					block.Text += evt.Delta
				} else if block.Type == ContentBlockTypeReasoning && block.Reasoning != nil {
					block.Reasoning.Text += evt.Delta
				} else if block.Type == ContentBlockTypeToolUse && block.ToolUse != nil {
					block.ToolUse.Arguments += evt.Delta
				}
			}

		case EventSummaryTextDelta:
			if block, ok := blocks[evt.Index]; ok {
				if block.Type == ContentBlockTypeText {
					block.Text += evt.Delta
				} else if block.Type == ContentBlockTypeReasoning && block.Reasoning != nil {
					block.Reasoning.Summary += evt.Delta
				}
			}

		case EventSignatureDelta:
			if block, ok := blocks[evt.Index]; ok {
				if block.Reasoning == nil {
					block.Reasoning = &ReasoningBlock{}
				}
				// it's not a delta actually, it's the full encrypted content...
				block.Reasoning.EncryptedContent = evt.Delta
			}

		case EventBlockDone:
			if evt.ContentBlock != nil {
				if block, ok := blocks[evt.Index]; ok {
					if block.Type == ContentBlockTypeReasoning && evt.ContentBlock.Type == ContentBlockTypeReasoning {
						if evt.ContentBlock.Reasoning != nil {
							if block.Reasoning == nil {
								block.Reasoning = &ReasoningBlock{}
							}
							if evt.ContentBlock.Reasoning.Text != "" {
								block.Reasoning.Text = evt.ContentBlock.Reasoning.Text
							}
							if evt.ContentBlock.Reasoning.Summary != "" {
								block.Reasoning.Summary = evt.ContentBlock.Reasoning.Summary
							}
							if evt.ContentBlock.Reasoning.EncryptedContent != "" {
								block.Reasoning.EncryptedContent = evt.ContentBlock.Reasoning.EncryptedContent
							}
						}
					}
				}
			}
		}
	}

	orderedBlocks := make([]ContentBlock, 0, maxIndex+1)
	for i := 0; i <= maxIndex; i++ {
		if block, ok := blocks[i]; ok {
			orderedBlocks = append(orderedBlocks, *block)
		}
	}

	return Message{
		Role:    RoleAssistant,
		Content: orderedBlocks,
	}
}

func openaiResponsesFromTools(tools []*common.Tool) ([]responses.ToolUnionParam, error) {
	result := make([]responses.ToolUnionParam, 0, len(tools))

	for _, tool := range tools {
		params, err := jsonSchemaToMap(tool.Parameters)
		if err != nil {
			return nil, fmt.Errorf("failed to convert parameters for tool %s: %w", tool.Name, err)
		}

		functionTool := responses.FunctionToolParam{
			Name:        tool.Name,
			Description: param.NewOpt(tool.Description),
			Parameters:  params,
		}

		result = append(result, responses.ToolUnionParam{
			OfFunction: &functionTool,
		})
	}

	return result, nil
}

func jsonSchemaToMap(schema interface{}) (map[string]any, error) {
	if schema == nil {
		return map[string]any{}, nil
	}

	jsonBytes, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return nil, err
	}

	return result, nil
}

func openaiResponsesFromToolChoice(toolChoice common.ToolChoice, tools []*common.Tool) *responses.ResponseNewParamsToolChoiceUnion {
	if len(tools) == 0 {
		return nil
	}

	var mode responses.ToolChoiceOptions
	switch toolChoice.Type {
	case common.ToolChoiceTypeAuto, common.ToolChoiceTypeUnspecified:
		mode = responses.ToolChoiceOptionsAuto
	case common.ToolChoiceTypeRequired:
		mode = responses.ToolChoiceOptionsRequired
	case common.ToolChoiceTypeTool:
		mode = responses.ToolChoiceOptionsRequired
	default:
		panic("Unknown tool choice: " + string(toolChoice.Type))
	}

	return &responses.ResponseNewParamsToolChoiceUnion{
		OfToolChoiceMode: param.NewOpt(mode),
	}
}

func filterToolsByName(tools []*common.Tool, name string) []*common.Tool {
	for _, tool := range tools {
		if tool.Name == name {
			return []*common.Tool{tool}
		}
	}
	return tools
}
