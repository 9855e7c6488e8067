package orchestrator

import (
	"context"
	"strings"
	"unicode/utf8"

	"glidecode/llm2"
)

const maxTitleLength = 60

// generateTitle spawns a short LLM call to summarize the first turn's text
// into a title, then enforces a UTF-8-safe word-boundary truncation at
// maxTitleLength. Grounded on the teacher's general truncate-with-marker
// convention in dev/truncate.go, generalized here to word-boundary title
// truncation rather than mid-message elision.
func (o *Orchestrator) generateTitle(ctx context.Context, firstUserText string, opts CallOptions) (string, error) {
	prompt := "Summarize the following request as a short title (no punctuation at the end, no quotes):\n\n" + firstUserText

	req := llm2.StreamRequest{
		Messages: []llm2.Message{{
			Role: llm2.RoleUser,
			Content: []llm2.ContentBlock{{
				Type: llm2.ContentBlockTypeText,
				Text: prompt,
			}},
		}},
		Options: llm2.Options{
			Params: llm2.Params{
				ModelConfig: opts.ModelConfig,
			},
		},
		SecretManager: o.SecretManager,
	}

	eventChan := make(chan llm2.Event, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range eventChan {
		}
	}()

	resp, err := o.Provider.Stream(ctx, req, eventChan)
	close(eventChan)
	<-done
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, block := range resp.Output.Content {
		if block.Type == llm2.ContentBlockTypeText {
			text.WriteString(block.Text)
		}
	}

	return truncateTitle(strings.TrimSpace(text.String())), nil
}

// truncateTitle truncates s to at most maxTitleLength runes, breaking on a
// word boundary rather than mid-rune or mid-word when possible.
func truncateTitle(s string) string {
	if utf8.RuneCountInString(s) <= maxTitleLength {
		return s
	}

	cut := string([]rune(s)[:maxTitleLength])

	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		return strings.TrimSpace(cut[:idx])
	}

	return strings.TrimSpace(cut)
}
