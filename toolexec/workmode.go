package toolexec

import (
	"glidecode/common"

	"github.com/invopop/jsonschema"
)

// SetWorkModeParams is the schema surfaced to the model for the set_work_mode
// tool, which lets the assistant switch a session between Plan and Build.
type SetWorkModeParams struct {
	Mode string `json:"mode" jsonschema:"enum=plan,enum=build,description=The work mode to switch to."`
}

type SetWorkModeTool struct{}

func (SetWorkModeTool) Name() string                      { return "set_work_mode" }
func (SetWorkModeTool) Description() string                { return "Switch the session's work mode between plan and build." }
func (SetWorkModeTool) Category() common.ToolCategory       { return common.ToolCategoryInteractive }
func (SetWorkModeTool) Schema() *jsonschema.Schema {
	return (&jsonschema.Reflector{ExpandedStruct: true}).Reflect(&SetWorkModeParams{})
}

func (t SetWorkModeTool) Execute(ctx ExecuteContext, rawArgs []byte) common.ToolResult {
	var params SetWorkModeParams
	if err := unmarshalParams(rawArgs, &params); err != nil {
		return common.ErrResult(common.ToolErrorInvalidParameters, err.Error())
	}
	if params.Mode != "plan" && params.Mode != "build" {
		return common.ErrResult(common.ToolErrorInvalidParameters, "mode must be \"plan\" or \"build\"")
	}
	return common.OkResult(map[string]any{"mode": params.Mode})
}

// EnterPlanModeTool takes no parameters and always switches to plan mode; it
// exists alongside SetWorkModeTool because models are more reliable calling a
// zero-argument tool to express unconditional intent to start planning.
type EnterPlanModeTool struct{}

func (EnterPlanModeTool) Name() string                { return "enter_plan_mode" }
func (EnterPlanModeTool) Description() string          { return "Switch the session into plan mode." }
func (EnterPlanModeTool) Category() common.ToolCategory { return common.ToolCategoryInteractive }
func (EnterPlanModeTool) Schema() *jsonschema.Schema {
	return (&jsonschema.Reflector{ExpandedStruct: true}).Reflect(&struct{}{})
}

func (t EnterPlanModeTool) Execute(ctx ExecuteContext, rawArgs []byte) common.ToolResult {
	return common.OkResult(map[string]any{"mode": "plan"})
}
