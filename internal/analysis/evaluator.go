// Package analysis evaluates parsed emails with an LLM served through Ollama's
// OpenAI-compatible API.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"mailtriage/internal/cache"
	"mailtriage/internal/config"
	"mailtriage/internal/emails"
	"mailtriage/internal/metrics"
	"mailtriage/internal/models"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

// ErrInvalidResponse is returned when the model's reply is not the expected JSON document
var ErrInvalidResponse = errors.New("failed to parse analysis from the AI model")

const promptTemplate = `
You are a senior cybersecurity analyst specializing in email threat detection.
Your task is to analyze a JSON representation of an email and determine its category based on the detailed guidelines provided below.
You must return your analysis in a structured JSON format.

The JSON output MUST contain the following keys:
- "verdict": One of "Malicious", "Spam", "Graymail", "Benign", or "Unknown".
- "category": The specific subcategory from the guidelines (e.g., "Credential Harvesting (Phishing)", "Lead Generation/Contact List Solicitation").
- "reason": A brief, clear explanation for your verdict, referencing specific evidence from the email JSON.
- "rules": A list of simple, actionable detection rules based on your analysis. Each rule should be a JSON object with "type" and "value" keys. Examples: {"type": "subject_keyword", "value": "urgent payment"}, {"type": "domain_reputation", "value": "suspicious-site.com"}.

--- START OF GUIDELINES ---
%s
--- END OF GUIDELINES ---

Now, analyze the following email JSON and provide your response in the specified JSON format only. Do not add any extra text or explanations outside of the JSON structure.
`

// Evaluator sends parsed emails to the model and decodes its verdict
type Evaluator struct {
	client    *openai.Client
	model     string
	guidePath string
	timeout   time.Duration
	promptTTL time.Duration
	prompts   *cache.Cache[string]
	logger    zerolog.Logger
}

// NewEvaluator creates an evaluator pointed at cfg.OllamaHost
func NewEvaluator(cfg *config.Config, logger zerolog.Logger) *Evaluator {
	token := cfg.OllamaAPIKey
	if token == "" {
		token = "ollama" // ignored by Ollama, required by the client
	}
	clientConfig := openai.DefaultConfig(token)
	clientConfig.BaseURL = strings.TrimRight(cfg.OllamaHost, "/") + "/v1"

	return &Evaluator{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     cfg.OllamaModel,
		guidePath: cfg.LabelingGuidePath,
		timeout:   time.Duration(cfg.AnalysisTimeout) * time.Second,
		promptTTL: time.Duration(cfg.PromptCacheTTL) * time.Minute,
		prompts:   cache.New[string](),
		logger:    logger.With().Str("model", cfg.OllamaModel).Logger(),
	}
}

// SystemPrompt renders the analyst prompt around the labeling guide. The result is cached
// so the guide is read at most once per TTL.
func (e *Evaluator) SystemPrompt() (string, error) {
	return e.prompts.GetOrLoad(e.guidePath, e.promptTTL, func() (string, error) {
		e.logger.Info().Str("path", e.guidePath).Msg("Loading labeling guide for system prompt")
		guide, err := os.ReadFile(e.guidePath)
		if err != nil {
			e.logger.Error().Err(err).Str("path", e.guidePath).Msg("Labeling guide not found")
			return "", fmt.Errorf("labeling guide not found at %s: %w", e.guidePath, err)
		}
		return fmt.Sprintf(promptTemplate, string(guide)), nil
	})
}

// Evaluate asks the model for a verdict on msg
func (e *Evaluator) Evaluate(ctx context.Context, msg *emails.Message) (*models.Analysis, error) {
	start := time.Now()
	analysis, err := e.evaluate(ctx, msg)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.RecordAnalysis(result, time.Since(start))
	return analysis, err
}

func (e *Evaluator) evaluate(ctx context.Context, msg *emails.Message) (*models.Analysis, error) {
	systemPrompt, err := e.SystemPrompt()
	if err != nil {
		return nil, err
	}

	userPrompt, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode email for analysis: %w", err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	e.logger.Debug().Int("prompt_bytes", len(userPrompt)).Msg("Sending email to analysis model")

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(userPrompt)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		e.logger.Error().Err(err).Msg("Error communicating with the analysis model")
		return nil, fmt.Errorf("could not communicate with the analysis service: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrInvalidResponse)
	}

	content := resp.Choices[0].Message.Content
	var analysis models.Analysis
	if err := json.Unmarshal([]byte(content), &analysis); err != nil {
		e.logger.Error().Err(err).Str("content", content).Msg("Failed to decode analysis JSON")
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if !models.ValidVerdict(analysis.Verdict) {
		e.logger.Warn().Str("verdict", analysis.Verdict).Msg("Model returned an unknown verdict")
	}

	return &analysis, nil
}
