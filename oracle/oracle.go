package oracle

import (
	"context"
	"errors"
	"fmt"
	"os"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"

	"marketbrief/types"
)

// Oracle is the external reasoning call abstraction: prompt in, raw text and
// usage counters out. The pipeline never assumes the oracle returns valid
// structured output and always re-parses defensively.
type Oracle interface {
	Invoke(ctx context.Context, prompt string) (string, types.UsageStats, error)
}

// CohereOracle implements Oracle using the Cohere chat API.
// Docs: https://docs.cohere.com/reference/chat
// SDK: github.com/cohere-ai/cohere-go/v2
type CohereOracle struct {
	client      *cohereclient.Client
	model       string
	temperature float64
}

// NewCohereOracle creates an oracle backed by the Cohere chat API. If model
// is empty a reasonable default is used.
func NewCohereOracle(apiKey, model string) *CohereOracle {
	if model == "" {
		model = "command-r-plus-08-2024"
	}
	client := cohereclient.NewClient(cohereclient.WithToken(apiKey))
	return &CohereOracle{client: client, model: model, temperature: 0.3}
}

// NewCohereOracleFromEnv creates an oracle from COHERE_API_KEY and the
// optional COHERE_CHAT_MODEL override.
func NewCohereOracleFromEnv() (*CohereOracle, error) {
	apiKey := os.Getenv("COHERE_API_KEY")
	if apiKey == "" {
		return nil, errors.New("COHERE_API_KEY is not set")
	}
	return NewCohereOracle(apiKey, os.Getenv("COHERE_CHAT_MODEL")), nil
}

// Invoke sends one prompt and returns the raw response text plus token usage.
// Cancellation and deadlines are honored via ctx.
func (o *CohereOracle) Invoke(ctx context.Context, prompt string) (string, types.UsageStats, error) {
	temperature := o.temperature
	resp, err := o.client.Chat(ctx, &cohere.ChatRequest{
		Message:     prompt,
		Model:       &o.model,
		Temperature: &temperature,
	})
	if err != nil {
		return "", types.UsageStats{}, fmt.Errorf("cohere chat error: %w", err)
	}
	if resp == nil {
		return "", types.UsageStats{}, errors.New("cohere chat returned empty response")
	}

	usage := types.UsageStats{Calls: 1}
	if resp.Meta != nil && resp.Meta.Tokens != nil {
		if resp.Meta.Tokens.InputTokens != nil {
			usage.InputTokens = int(*resp.Meta.Tokens.InputTokens)
		}
		if resp.Meta.Tokens.OutputTokens != nil {
			usage.OutputTokens = int(*resp.Meta.Tokens.OutputTokens)
		}
	}

	return resp.Text, usage, nil
}
