package router

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/xaenox/stylist-bot/internal/apperr"
	"github.com/xaenox/stylist-bot/internal/models"
)

// ChatBackend talks to any OpenAI-compatible chat completion endpoint.
// One client is kept per endpoint.
type ChatBackend struct {
	tokens     map[models.Provider]string
	httpClient *http.Client

	mu      sync.Mutex
	clients map[string]*openai.Client
}

func NewChatBackend(tokens map[models.Provider]string, httpClient *http.Client) *ChatBackend {
	return &ChatBackend{
		tokens:     tokens,
		httpClient: httpClient,
		clients:    make(map[string]*openai.Client),
	}
}

func (c *ChatBackend) client(model models.ModelDescriptor) *openai.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := string(model.Provider) + "|" + model.Endpoint
	if cl, ok := c.clients[key]; ok {
		return cl
	}
	cfg := openai.DefaultConfig(c.tokens[model.Provider])
	cfg.BaseURL = strings.TrimSuffix(model.Endpoint, "/")
	if c.httpClient != nil {
		cfg.HTTPClient = c.httpClient
	}
	cl := openai.NewClientWithConfig(cfg)
	c.clients[key] = cl
	return cl
}

func (c *ChatBackend) Complete(ctx context.Context, model models.ModelDescriptor, imageRef, prompt string) (string, error) {
	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: prompt},
	}
	if imageRef != "" {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: imageRef, Detail: openai.ImageURLDetailAuto},
		})
	}

	req := openai.ChatCompletionRequest{
		Model: model.ModelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		Stream: model.Stream,
	}

	provider := string(model.Provider)
	client := c.client(model)

	if model.Stream {
		return c.completeStream(ctx, client, provider, req)
	}

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", mapChatError(provider, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", &apperr.EmptyResponseError{Provider: provider}
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *ChatBackend) completeStream(ctx context.Context, client *openai.Client, provider string, req openai.ChatCompletionRequest) (string, error) {
	stream, err := client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", mapChatError(provider, err)
	}
	defer stream.Close()

	var text strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", mapChatError(provider, err)
		}
		if len(resp.Choices) > 0 {
			text.WriteString(resp.Choices[0].Delta.Content)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", &apperr.EmptyResponseError{Provider: provider}
	}
	return text.String(), nil
}

// mapChatError converts go-openai failures into the shared error kinds.
// Transport errors (including deadline expiry) pass through unchanged.
func mapChatError(provider string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &apperr.APIError{Provider: provider, StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &apperr.APIError{Provider: provider, StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}
	return err
}
