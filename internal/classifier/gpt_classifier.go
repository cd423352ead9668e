package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/xaenox/stylist-bot/internal/models"
)

// GPTAnalysis is the structured answer requested from the model
type GPTAnalysis struct {
	Items  []string `json:"items"`
	Colors []string `json:"colors"`
}

// GPTClassifier asks an OpenAI-compatible model to extract the clothing items
// and colors an AI reply talks about. It falls back to the keyword pass when
// the model is unreachable or answers with something that is not JSON.
type GPTClassifier struct {
	client   *openai.Client
	model    string
	fallback TextClassifier
	logger   *zap.Logger
}

func NewGPTClassifier(apiKey, baseURL, model string, fallback TextClassifier, logger *zap.Logger) *GPTClassifier {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return NewGPTClassifierWithClient(openai.NewClientWithConfig(cfg), model, fallback, logger)
}

func NewGPTClassifierWithClient(client *openai.Client, model string, fallback TextClassifier, logger *zap.Logger) *GPTClassifier {
	return &GPTClassifier{
		client:   client,
		model:    model,
		fallback: fallback,
		logger:   logger,
	}
}

// Enrich returns caller-supplied metadata for an exchange built from reply
func (c *GPTClassifier) Enrich(ctx context.Context, reply string) (*models.ExchangeMetadata, error) {
	prompt := fmt.Sprintf(`List the clothing items and colors mentioned in the following stylist reply.
Use lowercase single words where possible.

Return the response as a JSON object with this structure:
{
    "items": ["item1", "item2", ...],
    "colors": ["color1", "color2", ...]
}

Reply: %s`, reply)

	resp, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			Temperature: 0,
		},
	)
	if err != nil {
		c.logger.Error("Failed to get GPT analysis", zap.Error(err))
		return c.fallbackAnalysis(reply), nil
	}
	if len(resp.Choices) == 0 {
		c.logger.Warn("GPT analysis returned no choices")
		return c.fallbackAnalysis(reply), nil
	}

	var analysis GPTAnalysis
	response := strings.TrimSpace(resp.Choices[0].Message.Content)
	response = strings.TrimSuffix(strings.TrimPrefix(response, "```json"), "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(response)), &analysis); err != nil {
		c.logger.Error("Failed to parse GPT analysis",
			zap.Error(err),
			zap.String("response", response))
		return c.fallbackAnalysis(reply), nil
	}

	return &models.ExchangeMetadata{
		DetectedItems:  normalize(analysis.Items),
		DetectedColors: normalize(analysis.Colors),
	}, nil
}

func (c *GPTClassifier) fallbackAnalysis(reply string) *models.ExchangeMetadata {
	return &models.ExchangeMetadata{
		DetectedItems:  c.fallback.ExtractItems(reply),
		DetectedColors: c.fallback.ExtractColors(reply),
	}
}

// normalize lowercases and de-duplicates model output
func normalize(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
