package toolexec

import (
	"glidecode/common"

	"github.com/invopop/jsonschema"
)

// AskUserQuestionParams is the schema surfaced to the model. The orchestrator
// intercepts calls to this tool before they reach the executor (spec.md
// §4.6 step 7's AskUser partition), so Execute below is only exercised by
// direct callers of the executor (e.g. tests exercising the Interactive
// suspension path in isolation).
type AskUserQuestionParams struct {
	Question string   `json:"question" jsonschema:"description=The question to ask the user."`
	Options  []string `json:"options,omitempty" jsonschema:"description=Optional suggested answers to present to the user."`
}

type AskUserQuestionTool struct{}

func (AskUserQuestionTool) Name() string        { return "AskUserQuestion" }
func (AskUserQuestionTool) Description() string { return "Ask the user a clarifying question and wait for their answer." }
func (AskUserQuestionTool) Category() common.ToolCategory { return common.ToolCategoryInteractive }

func (AskUserQuestionTool) Schema() *jsonschema.Schema {
	return (&jsonschema.Reflector{ExpandedStruct: true}).Reflect(&AskUserQuestionParams{})
}

func (t AskUserQuestionTool) Execute(ctx ExecuteContext, rawArgs []byte) common.ToolResult {
	var params AskUserQuestionParams
	if err := unmarshalParams(rawArgs, &params); err != nil {
		return common.ErrResult(common.ToolErrorInvalidParameters, err.Error())
	}
	return common.OkResult(map[string]any{"question": params.Question, "options": params.Options})
}
