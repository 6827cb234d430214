// Package gemini implements the generation-service adapter on Google's
// Gemini API. It exposes free-text generation and schema-constrained topic
// extraction; retry policy is the caller's concern, while a circuit breaker
// here fails fast when the upstream is down.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/knowbase/knowbot/internal/config"
	"github.com/knowbase/knowbot/internal/retry"
)

// Client defines the interface for generation operations.
type Client interface {
	// GenerateText produces a free-text completion for the given system and
	// user prompts.
	GenerateText(ctx context.Context, system, user string) (string, error)

	// GenerateTopics produces a structured topic list from a conversation
	// transcript, using JSON-schema constrained output.
	GenerateTopics(ctx context.Context, system, user string) ([]TopicItem, error)
}

// TopicItem is one element of the structured topic-extraction response.
type TopicItem struct {
	Subject string `json:"subject"`
	Summary string `json:"summary"`
}

type sdkClient struct {
	genaiClient   *genai.Client
	log           *slog.Logger
	contentConfig *genai.GenerateContentConfig
	modelName     string
	breaker       *retry.Breaker
}

// NewClient creates a new Gemini client with the provided configuration.
func NewClient(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	baseCfg := &genai.GenerateContentConfig{
		Temperature: &cfg.Temperature,

		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
		},
	}

	if cfg.MaxOutputTokens > 0 {
		baseCfg.MaxOutputTokens = cfg.MaxOutputTokens
	}

	logger := log.With("component", "gemini_client")
	logger.Info("Gemini client initialized successfully", "model", cfg.ModelName)
	return &sdkClient{
		genaiClient:   gi,
		log:           logger,
		contentConfig: baseCfg,
		modelName:     cfg.ModelName,
		breaker: retry.NewBreaker(retry.BreakerConfig{
			Name:    "gemini",
			Timeout: config.DefaultAITimeout,
		}, logger),
	}, nil
}

func (c *sdkClient) generateContent(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.genaiClient.Models.GenerateContent(ctx, c.modelName, contents, cfg)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GenerateText produces a free-text completion.
func (c *sdkClient) GenerateText(ctx context.Context, system, user string) (string, error) {
	c.log.DebugContext(ctx, "Generating text", "user_prompt_len", len(user))

	copyCfg := *c.contentConfig
	if system != "" {
		copyCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	contents := []*genai.Content{genai.NewContentFromText(user, genai.RoleUser)}

	resp, err := c.generateContent(ctx, contents, &copyCfg)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini text generation failed", "error", err)
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}

	return c.extractTextFromResponse(ctx, resp, "GenerateText")
}

var topicSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"subject": {Type: genai.TypeString, Description: "Short title of the discussion topic."},
		"summary": {Type: genai.TypeString, Description: "Self-contained summary of what was discussed, keeping the @-speaker references from the transcript."},
	},
	Required: []string{"subject", "summary"},
}

var topicListSchema = &genai.Schema{
	Type:        genai.TypeArray,
	Description: "The distinct discussion topics found in the conversation transcript.",
	Items:       topicSchema,
}

// GenerateTopics produces a structured topic list from a transcript.
func (c *sdkClient) GenerateTopics(ctx context.Context, system, user string) ([]TopicItem, error) {
	c.log.DebugContext(ctx, "Generating topics using JSON schema mode", "transcript_len", len(user))

	copyCfg := *c.contentConfig
	if system != "" {
		copyCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	copyCfg.ResponseMIMEType = "application/json"
	copyCfg.ResponseSchema = topicListSchema

	contents := []*genai.Content{genai.NewContentFromText(user, genai.RoleUser)}

	resp, err := c.generateContent(ctx, contents, &copyCfg)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini topic generation failed", "error", err)
		return nil, fmt.Errorf("failed to generate topics: %w", err)
	}

	jsonText, err := c.extractTextFromResponse(ctx, resp, "GenerateTopics")
	if err != nil {
		return nil, fmt.Errorf("failed to extract topics response: %w", err)
	}

	var items []TopicItem
	if err := json.Unmarshal([]byte(jsonText), &items); err != nil {
		c.log.ErrorContext(ctx, "Failed to parse topics JSON array", "error", err, "response_text", jsonText)
		return nil, fmt.Errorf("invalid topics JSON array received: %w", err)
	}

	c.log.DebugContext(ctx, "Parsed topics from Gemini JSON response", "count", len(items))
	return items, nil
}

func (c *sdkClient) extractTextFromResponse(ctx context.Context, resp *genai.GenerateContentResponse, op string) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reasonMsg := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reasonMsg = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.ErrorContext(ctx, "Gemini request blocked", "operation", op, "reason", reasonMsg)
		return "", fmt.Errorf("%s blocked by safety filter: %s", op, reasonMsg)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		c.log.WarnContext(ctx, "Gemini response missing candidates or content", "operation", op, "finish_reason", finishReason)

		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonStop {
			return "", fmt.Errorf("%s returned no content, finish reason: %s", op, finishReason)
		}

		return "", fmt.Errorf("%s returned empty content", op)
	}

	text := resp.Text()
	if text == "" {
		c.log.WarnContext(ctx, "Gemini response text is empty", "operation", op)
		return "", fmt.Errorf("%s returned empty text", op)
	}

	return text, nil
}
