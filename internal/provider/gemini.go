package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider implements Provider for the Gemini generateContent API.
type GeminiProvider struct {
	id      string
	baseURL string
	apiKey  string
	models  []ModelInfo
	client  *http.Client
}

// GeminiOption configures a GeminiProvider.
type GeminiOption func(*GeminiProvider)

// WithGeminiHTTPClient sets a custom HTTP client.
func WithGeminiHTTPClient(c *http.Client) GeminiOption {
	return func(p *GeminiProvider) { p.client = c }
}

// NewGeminiProvider creates a provider for the Gemini API.
func NewGeminiProvider(id, baseURL, apiKey string, models []ModelInfo, opts ...GeminiOption) *GeminiProvider {
	if baseURL == "" {
		baseURL = geminiDefaultBaseURL
	}
	p := &GeminiProvider{
		id:      id,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		models:  models,
		client:  defaultHTTPClient(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *GeminiProvider) ID() string { return p.id }

func (p *GeminiProvider) Models() []ModelInfo { return p.models }

// -- Gemini wire types --

type gemRequest struct {
	SystemInstruction *gemContent         `json:"systemInstruction,omitempty"`
	Contents          []gemContent        `json:"contents"`
	GenerationConfig  gemGenerationConfig `json:"generationConfig"`
}

type gemContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []gemPart `json:"parts"`
}

type gemPart struct {
	Text string `json:"text"`
}

type gemGenerationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

type gemResponse struct {
	ResponseID    string         `json:"responseId"`
	ModelVersion  string         `json:"modelVersion"`
	Candidates    []gemCandidate `json:"candidates"`
	UsageMetadata gemUsage       `json:"usageMetadata"`
	Error         *gemError      `json:"error,omitempty"`
}

type gemCandidate struct {
	Content gemContent `json:"content"`
}

type gemUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

type gemError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Complete sends a non-streaming generateContent request. Gemini reports
// errors in the body, so its own code wins over the HTTP status.
func (p *GeminiProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	header := http.Header{}
	if p.apiKey != "" {
		header.Set("x-goog-api-key", p.apiKey)
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, url.PathEscape(req.Model))

	var gemResp gemResponse
	if _, err := postJSON(ctx, p.client, p.id, endpoint, header, p.toGemRequest(req), &gemResp); err != nil {
		return nil, err
	}
	if gemResp.Error != nil {
		return nil, &StatusError{
			Provider:   p.id,
			StatusCode: gemResp.Error.Code,
			Type:       gemResp.Error.Status,
			Message:    gemResp.Error.Message,
		}
	}

	var parts []string
	if len(gemResp.Candidates) > 0 {
		for _, part := range gemResp.Candidates[0].Content.Parts {
			parts = append(parts, part.Text)
		}
	}

	return &CompletionResponse{
		ID:      gemResp.ResponseID,
		Model:   gemResp.ModelVersion,
		Content: strings.Join(parts, ""),
		Usage: Usage{
			InputTokens:  gemResp.UsageMetadata.PromptTokenCount,
			OutputTokens: gemResp.UsageMetadata.CandidatesTokenCount,
		},
	}, nil
}

// toGemRequest maps assistant turns to Gemini's "model" role and lifts
// system turns into systemInstruction.
func (p *GeminiProvider) toGemRequest(req *CompletionRequest) gemRequest {
	var system []gemPart
	contents := make([]gemContent, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, gemPart{Text: m.Content})
		case RoleAssistant:
			contents = append(contents, gemContent{Role: "model", Parts: []gemPart{{Text: m.Content}}})
		default:
			contents = append(contents, gemContent{Role: "user", Parts: []gemPart{{Text: m.Content}}})
		}
	}

	out := gemRequest{
		Contents: contents,
		GenerationConfig: gemGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if len(system) > 0 {
		out.SystemInstruction = &gemContent{Parts: system}
	}
	if req.JSONMode {
		out.GenerationConfig.ResponseMimeType = "application/json"
	}
	return out
}
