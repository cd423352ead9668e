package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/xaenox/stylist-bot/internal/apperr"
	"github.com/xaenox/stylist-bot/internal/models"
)

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
	FileData   *geminiFileData   `json:"fileData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiFileData struct {
	MimeType string `json:"mimeType"`
	FileURI  string `json:"fileUri"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// GeminiBackend calls the generateContent REST endpoint directly
type GeminiBackend struct {
	apiKey string
	client *http.Client
}

func NewGeminiBackend(apiKey string, client *http.Client) *GeminiBackend {
	return &GeminiBackend{apiKey: apiKey, client: client}
}

func (g *GeminiBackend) Complete(ctx context.Context, model models.ModelDescriptor, imageRef, prompt string) (string, error) {
	parts := []geminiPart{{Text: prompt}}
	switch {
	case strings.HasPrefix(imageRef, "data:"):
		mimeType, data := splitDataURI(imageRef)
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{MimeType: mimeType, Data: data}})
	case imageRef != "":
		parts = append(parts, geminiPart{FileData: &geminiFileData{MimeType: "image/jpeg", FileURI: imageRef}})
	}

	jsonData, err := json.Marshal(geminiRequest{Contents: []geminiContent{{Parts: parts}}})
	if err != nil {
		return "", fmt.Errorf("encode gemini request: %w", err)
	}

	apiURL := fmt.Sprintf("%s/%s:generateContent?key=%s",
		strings.TrimSuffix(model.Endpoint, "/"), model.ModelName, url.QueryEscape(g.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("build gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read gemini response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &apperr.APIError{
			Provider:   string(models.ProviderGemini),
			StatusCode: resp.StatusCode,
			Message:    geminiErrorMessage(body),
		}
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}

	var text strings.Builder
	finishReason := ""
	if len(parsed.Candidates) > 0 {
		finishReason = parsed.Candidates[0].FinishReason
		for _, part := range parsed.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		blockReason := parsed.PromptFeedback.BlockReason
		if blockReason == "" && finishReason == "SAFETY" {
			blockReason = finishReason
		}
		return "", &apperr.EmptyResponseError{Provider: string(models.ProviderGemini), BlockReason: blockReason}
	}
	return text.String(), nil
}

func geminiErrorMessage(body []byte) string {
	var errorResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
		return errorResp.Error.Message
	}
	return string(body)
}
