package orchestrator

import (
	"context"
	"os"
	"time"

	ffclient "github.com/thomaspoignant/go-feature-flag"
	"github.com/thomaspoignant/go-feature-flag/ffcontext"
	"github.com/thomaspoignant/go-feature-flag/retriever"
	"github.com/thomaspoignant/go-feature-flag/retriever/fileretriever"
	"github.com/thomaspoignant/go-feature-flag/retriever/httpretriever"
	"github.com/rs/zerolog/log"
)

// FeatureFlags lets operators retune exploration-budget thresholds (and gate
// future experimental behavior) without a redeploy, the way fflag/fflag.go
// wraps go-feature-flag for the worker. Unlike the workflow-bound original,
// evaluation here is keyed on sessionId rather than a Temporal WorkflowID.
type FeatureFlags struct {
	client *ffclient.GoFeatureFlag
}

// NewFeatureFlags polls flagsFilePath (dev) or a hosted flag file (anywhere
// else) for flag definitions, mirroring fflag.NewFFlag's retriever choice.
func NewFeatureFlags(flagsFilePath string) (FeatureFlags, error) {
	var r retriever.Retriever
	if os.Getenv("GLIDE_APP_ENV") == "development" {
		r = &fileretriever.Retriever{Path: flagsFilePath}
	} else {
		r = &httpretriever.Retriever{
			URL:     "https://glidecode.dev/flags.yml",
			Timeout: 10 * time.Second,
		}
	}

	client, err := ffclient.New(ffclient.Config{
		PollingInterval: 60 * time.Second,
		Context:         context.Background(),
		Retriever:       r,
	})
	if err != nil {
		return FeatureFlags{}, err
	}
	return FeatureFlags{client: client}, nil
}

// intVariation fails open to def on any evaluation error, since a bad flag
// retrieval should never block the turn loop.
func (f FeatureFlags) intVariation(sessionId, flagName string, def int) int {
	if f.client == nil {
		return def
	}
	evalCtx := ffcontext.NewEvaluationContext(sessionId)
	v, err := f.client.IntVariation(flagName, evalCtx, def)
	if err != nil {
		log.Warn().Err(err).Str("flag", flagName).Msg("feature flag evaluation failed, using default")
		return def
	}
	return v
}

// explorationWarnThresholdFor and explorationEscalateThresholdFor let
// "exploration_warn_threshold"/"exploration_escalate_threshold" override the
// package defaults per session, e.g. to loosen the budget for a session
// known to be doing legitimate wide-scale reading.
func (f FeatureFlags) explorationWarnThresholdFor(sessionId string) int {
	return f.intVariation(sessionId, "exploration_warn_threshold", explorationWarnThreshold)
}

func (f FeatureFlags) explorationEscalateThresholdFor(sessionId string) int {
	return f.intVariation(sessionId, "exploration_escalate_threshold", explorationEscalateThreshold)
}
