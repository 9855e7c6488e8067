// Package bridge is the SSE front end: it accepts chat/tool_result/
// tool_approval requests over HTTP and streams an orchestrator.LoopEvent
// stream back as Server-Sent Events. Grounded on api/api.go's Controller +
// gin router setup, generalized from the teacher's Redis/Temporal-backed
// task and flow endpoints to the three session-scoped endpoints spec.md
// §4.7 names (SPEC_FULL.md §6.7).
package bridge

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"glidecode/common"
	"glidecode/llm2"
	"glidecode/logger"
	"glidecode/orchestrator"
	"glidecode/secret_manager"
	"glidecode/session"
	"glidecode/toolexec"
)

// Controller holds every process-wide dependency the bridge's handlers
// need: the persistence and execution layers plus the bookkeeping used to
// enforce at-most-one-orchestrator-per-session. Mirrors the teacher's
// Controller{dbAccessor, flowEventAccessor, temporalClient, ...} shape.
type Controller struct {
	Store         session.Store
	Registry      *toolexec.Registry
	Executor      *toolexec.Executor
	Provider      llm2.Provider
	SecretManager secret_manager.SecretManager
	Flags         orchestrator.FeatureFlags

	ClientDefaultModel common.ModelConfig

	locks *sessionLocks
	runs  *activeRuns
}

// NewController wires a Controller from its already-constructed dependencies.
// Unlike the teacher's NewController, this never dials out (no Redis ping,
// no Temporal client): every dependency here is already a local, in-process
// value (sqlite-backed store, in-memory registries), so there's nothing to
// fail at startup. flags may be the zero value, in which case orchestrator
// runs use the package's default exploration-budget thresholds.
func NewController(store session.Store, registry *toolexec.Registry, executor *toolexec.Executor, provider llm2.Provider, secrets secret_manager.SecretManager, clientDefaultModel common.ModelConfig, flags orchestrator.FeatureFlags) *Controller {
	return &Controller{
		Store:              store,
		Registry:           registry,
		Executor:           executor,
		Provider:           provider,
		SecretManager:      secrets,
		Flags:              flags,
		ClientDefaultModel: clientDefaultModel,
		locks:              newSessionLocks(),
		runs:               newActiveRuns(),
	}
}

// DefineRoutes lays out the HTTP surface: one route group per spec.md §4.7
// endpoint, plus a health check. Grounded on api.go's DefineRoutes (gin.Default,
// ForwardedByClientIP/SetTrustedProxies(nil) hardening), trimmed to this
// system's three endpoints instead of the teacher's task/flow/websocket set.
func DefineRoutes(ctrl *Controller) *gin.Engine {
	r := gin.Default()
	r.ForwardedByClientIP = true
	r.SetTrustedProxies(nil)

	v1 := r.Group("/api/v1/sessions")
	v1.POST("/chat", ctrl.ChatHandler)
	v1.POST("/tool_result", ctrl.ToolResultHandler)
	v1.POST("/tool_approval", ctrl.ToolApprovalHandler)

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	return r
}

func (ctrl *Controller) errorResponse(c *gin.Context, status int, err error) {
	logger.Get().Error().Err(err).Msg("bridge request failed")
	c.JSON(status, gin.H{"error": err.Error()})
}

// orchestratorInstance builds a new Orchestrator for one run; the tool
// registry/executor/store/secrets it is given are process-wide and shared
// across runs, passed in from the Controller rather than reached through a
// global.
func (ctrl *Controller) orchestratorInstance() *orchestrator.Orchestrator {
	o := orchestrator.NewOrchestrator(ctrl.Provider, ctrl.Registry, ctrl.Executor, ctrl.Store, ctrl.SecretManager)
	o.Flags = ctrl.Flags
	return o
}

// resolveModel applies spec.md §4.7's override order: request wins, then
// session, then the client default. The request and session models are
// trimmed, and an empty one means "no override"; the client default's
// model is used as given.
func resolveModel(requestModel string, sessionModel string, clientDefault common.ModelConfig) common.ModelConfig {
	cfg := clientDefault
	if trimmed := strings.TrimSpace(sessionModel); trimmed != "" {
		cfg.Model = trimmed
	}
	if trimmed := strings.TrimSpace(requestModel); trimmed != "" {
		cfg.Model = trimmed
	}
	return cfg
}
